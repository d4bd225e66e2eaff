package relay

import (
	"errors"
	"fmt"

	"github.com/segmentio/ksuid"
)

type Op uint8

const (
	OpAnnounce Op = iota + 1
	OpJoin
	OpData
	OpLeave
)

func (o Op) String() string {
	switch o {
	case OpAnnounce:
		return "announce"
	case OpJoin:
		return "join"
	case OpData:
		return "data"
	case OpLeave:
		return "leave"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

const idLen = 20

var ErrBadEnvelope = errors.New("relay: bad envelope")

// Envelope wraps every message published on the shared channel so each peer
// can drop its own echoes and ignore third parties.
//
//	[op:1][sender ksuid:20][payload]
type Envelope struct {
	Op      Op
	Sender  ksuid.KSUID
	Payload []byte
}

func EncodeEnvelope(env Envelope) []byte {
	buf := make([]byte, 0, 1+idLen+len(env.Payload))
	buf = append(buf, byte(env.Op))
	buf = append(buf, env.Sender.Bytes()...)
	return append(buf, env.Payload...)
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) < 1+idLen {
		return Envelope{}, fmt.Errorf("%w: %d bytes", ErrBadEnvelope, len(b))
	}
	op := Op(b[0])
	if op < OpAnnounce || op > OpLeave {
		return Envelope{}, fmt.Errorf("%w: unknown op %d", ErrBadEnvelope, b[0])
	}
	id, err := ksuid.FromBytes(b[1 : 1+idLen])
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	env := Envelope{Op: op, Sender: id}
	if rest := b[1+idLen:]; len(rest) > 0 {
		env.Payload = append([]byte(nil), rest...)
	}
	if op == OpData && len(env.Payload) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty data", ErrBadEnvelope)
	}
	return env, nil
}
