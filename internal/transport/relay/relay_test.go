package relay

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/peersync/internal/testutil/testlog"
	"github.com/danmuck/peersync/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	testlog.Start(t)
	id := ksuid.New()
	in := Envelope{Op: OpData, Sender: id, Payload: []byte{2, 1, 'x'}}
	b := EncodeEnvelope(in)
	if len(b) != 1+20+3 {
		t.Fatalf("len=%d", len(b))
	}
	out, err := DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Op != OpData || out.Sender != id || !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("out=%+v", out)
	}
	b[21] = 'z'
	if out.Payload[0] != 2 {
		t.Fatalf("decoded payload aliases input")
	}
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	testlog.Start(t)
	id := ksuid.New()
	cases := map[string][]byte{
		"short":      {byte(OpAnnounce), 1, 2},
		"unknown op": EncodeEnvelope(Envelope{Op: 9, Sender: id}),
		"empty data": EncodeEnvelope(Envelope{Op: OpData, Sender: id}),
	}
	for name, b := range cases {
		if _, err := DecodeEnvelope(b); !errors.Is(err, ErrBadEnvelope) {
			t.Fatalf("%s: expected ErrBadEnvelope, got %v", name, err)
		}
	}
}

type published struct {
	ch chan Envelope
}

func newTestTransport(t *testing.T) (*Transport, *published) {
	t.Helper()
	tr, err := newTransport(DefaultConfig(), log.Logger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	pub := &published{ch: make(chan Envelope, 64)}
	tr.publish = func(_ context.Context, payload []byte) error {
		env, err := DecodeEnvelope(payload)
		if err != nil {
			return err
		}
		pub.ch <- env
		return nil
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr, pub
}

func (p *published) wait(t *testing.T, op Op) Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-p.ch:
			if env.Op == op {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s publish", op)
			return Envelope{}
		}
	}
}

func nextEvent(t *testing.T, tr *Transport) transport.Event {
	t.Helper()
	select {
	case ev := <-tr.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event")
		return transport.Event{}
	}
}

func TestAnnounceJoinDataLeave(t *testing.T) {
	testlog.Start(t)
	tr, pub := newTestTransport(t)
	if env := pub.wait(t, OpAnnounce); env.Sender != tr.ID() {
		t.Fatalf("announce sender=%s", env.Sender)
	}

	if err := tr.Connect(context.Background()); !errors.Is(err, transport.ErrNoPeer) {
		t.Fatalf("expected ErrNoPeer before discovery, got %v", err)
	}

	remote := ksuid.New()
	tr.handle(Envelope{Op: OpAnnounce, Sender: remote})
	if ev := nextEvent(t, tr); ev.Kind != transport.EventPeerDiscovered || ev.Addr != remote.String() {
		t.Fatalf("event=%+v", ev)
	}

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if ev := nextEvent(t, tr); ev.Kind != transport.EventConnected {
		t.Fatalf("event=%+v", ev)
	}
	pub.wait(t, OpJoin)

	if err := tr.Send([]byte{3}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if env := pub.wait(t, OpData); !bytes.Equal(env.Payload, []byte{3}) {
		t.Fatalf("data=%v", env.Payload)
	}

	tr.handle(Envelope{Op: OpData, Sender: ksuid.New(), Payload: []byte{9}})
	tr.handle(Envelope{Op: OpData, Sender: remote, Payload: []byte{1}})
	if ev := nextEvent(t, tr); ev.Kind != transport.EventBytesReceived || !bytes.Equal(ev.Payload, []byte{1}) {
		t.Fatalf("event=%+v", ev)
	}

	tr.handle(Envelope{Op: OpLeave, Sender: remote})
	ev := nextEvent(t, tr)
	if ev.Kind != transport.EventDisconnected || !errors.Is(ev.Err, ErrPeerLeft) {
		t.Fatalf("event=%+v", ev)
	}
	if err := tr.Send([]byte{3}); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestIncomingJoinConnects(t *testing.T) {
	testlog.Start(t)
	tr, _ := newTestTransport(t)
	remote := ksuid.New()
	tr.handle(Envelope{Op: OpJoin, Sender: remote})
	if ev := nextEvent(t, tr); ev.Kind != transport.EventConnected || ev.Addr != remote.String() {
		t.Fatalf("event=%+v", ev)
	}
	// a third peer cannot take over the pairing
	tr.handle(Envelope{Op: OpJoin, Sender: ksuid.New()})
	tr.handle(Envelope{Op: OpData, Sender: remote, Payload: []byte{5}})
	if ev := nextEvent(t, tr); ev.Kind != transport.EventBytesReceived {
		t.Fatalf("event=%+v", ev)
	}
}

func TestSilentPartnerTimesOut(t *testing.T) {
	testlog.Start(t)
	tr, pub := newTestTransport(t)
	remote := ksuid.New()
	tr.handle(Envelope{Op: OpJoin, Sender: remote})
	if ev := nextEvent(t, tr); ev.Kind != transport.EventConnected {
		t.Fatalf("event=%+v", ev)
	}

	// announces keep going out while paired
	for drained := false; !drained; {
		select {
		case <-pub.ch:
		default:
			drained = true
		}
	}
	pub.wait(t, OpAnnounce)

	timeout := DefaultConfig().PeerTimeout
	if tr.checkLiveness(time.Now().Add(timeout / 2)) {
		t.Fatalf("partner dropped before timeout")
	}
	// a heartbeat from the partner pushes the deadline out
	tr.mu.Lock()
	tr.lastSeen = time.Now().Add(-timeout)
	tr.mu.Unlock()
	tr.handle(Envelope{Op: OpAnnounce, Sender: remote})
	if tr.checkLiveness(time.Now().Add(timeout / 2)) {
		t.Fatalf("heartbeat did not refresh liveness")
	}

	if !tr.checkLiveness(time.Now().Add(2 * timeout)) {
		t.Fatalf("silent partner was not dropped")
	}
	ev := nextEvent(t, tr)
	if ev.Kind != transport.EventDisconnected || !errors.Is(ev.Err, ErrPeerTimeout) || ev.Addr != remote.String() {
		t.Fatalf("event=%+v", ev)
	}
	if err := tr.Send([]byte{1}); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	// a fresh announce can be discovered again
	next := ksuid.New()
	tr.handle(Envelope{Op: OpAnnounce, Sender: next})
	if ev := nextEvent(t, tr); ev.Kind != transport.EventPeerDiscovered || ev.Addr != next.String() {
		t.Fatalf("event=%+v", ev)
	}
}

func TestOwnEchoIgnored(t *testing.T) {
	testlog.Start(t)
	tr, _ := newTestTransport(t)
	tr.handle(Envelope{Op: OpAnnounce, Sender: tr.ID()})
	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestChannelRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channel = " "
	if _, err := newTransport(cfg, log.Logger); !errors.Is(err, ErrChannelRequired) {
		t.Fatalf("expected ErrChannelRequired, got %v", err)
	}
}
