package protocol

import "fmt"

// Decode parses one complete wire message. The returned message never
// aliases buf.
func Decode(buf []byte) (Message, error) {
	if len(buf) == 0 {
		return nil, ErrEmptyMessage
	}
	kind := Kind(buf[0])
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, buf[0])
	}
	r := &payloadReader{kind: kind, buf: buf, off: 1}

	var msg Message
	switch kind {
	case KindSendColor:
		msg = SendColor{Color: string(r.rest())}
	case KindSetHost:
		msg = SetHost{}
	case KindSendMovement:
		msg = SendMovement{Name: r.name(), Position: r.vec3(), Rotation: r.quat()}
	case KindParticleTrigger:
		msg = ParticleTrigger{}
	case KindSpawnObject:
		msg = SpawnObject{Name: r.name(), Position: r.vec3()}
	case KindSpawnObjectRequest:
		msg = SpawnObjectRequest{}
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return msg, nil
}

// PeekKind returns the kind byte of buf without decoding the payload.
func PeekKind(buf []byte) (Kind, error) {
	if len(buf) == 0 {
		return 0, ErrEmptyMessage
	}
	kind := Kind(buf[0])
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownKind, buf[0])
	}
	return kind, nil
}
