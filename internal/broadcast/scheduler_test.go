package broadcast

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/peersync/internal/geom"
	"github.com/danmuck/peersync/internal/protocol"
	"github.com/danmuck/peersync/internal/registry"
	"github.com/danmuck/peersync/internal/testutil/testlog"
)

type recorder struct {
	sent []protocol.Message
	err  error
}

func (r *recorder) send(m protocol.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, m)
	return nil
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.EffectMin = time.Hour
	cfg.EffectMax = time.Hour
	return cfg
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, o := range []*registry.Object{
		{Name: "NetObj0", HasAuthority: true, Position: geom.Vec3{Z: -8}, Rotation: geom.Identity()},
		{Name: "remote", HasAuthority: false},
		{Name: "NetObj1", HasAuthority: true, Position: geom.Vec3{Z: -16}, Rotation: geom.Identity()},
	} {
		if err := reg.Insert(o); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return reg
}

func TestMovementSentForAuthoritativeObjectsInOrder(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	s, err := New(quietConfig(), rand.New(rand.NewSource(1)), rec.send)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	reg := newRegistry(t)

	rep, err := s.Tick(20*time.Millisecond, true, reg)
	if err != nil || rep.Movements != 0 {
		t.Fatalf("sent before interval: rep=%+v err=%v", rep, err)
	}
	rep, err = s.Tick(30*time.Millisecond, true, reg)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Movements != 2 || len(rec.sent) != 2 {
		t.Fatalf("rep=%+v sent=%d", rep, len(rec.sent))
	}
	first := rec.sent[0].(protocol.SendMovement)
	second := rec.sent[1].(protocol.SendMovement)
	if first.Name != "NetObj0" || second.Name != "NetObj1" {
		t.Fatalf("order=%s,%s", first.Name, second.Name)
	}
}

func TestInactiveSchedulerSendsNothing(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.EffectMin, cfg.EffectMax = 10*time.Millisecond, 10*time.Millisecond
	s, _ := New(cfg, nil, rec.send)
	reg := newRegistry(t)
	for i := 0; i < 20; i++ {
		rep, err := s.Tick(50*time.Millisecond, false, reg)
		if err != nil || rep.Movements != 0 || rep.Effect {
			t.Fatalf("inactive tick produced output: %+v %v", rep, err)
		}
	}
	if len(rec.sent) != 0 {
		t.Fatalf("sent=%d", len(rec.sent))
	}
}

func TestEffectFiresAndResamples(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.BroadcastInterval = time.Hour
	s, _ := New(cfg, rand.New(rand.NewSource(3)), rec.send)
	reg := newRegistry(t)

	fired := 0
	for i := 0; i < 600; i++ {
		next := s.nextEffect
		if next < cfg.EffectMin || next > cfg.EffectMax {
			t.Fatalf("armed interval %s outside range", next)
		}
		rep, err := s.Tick(50*time.Millisecond, true, reg)
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if rep.Effect {
			fired++
		}
	}
	// 30s of ticks with intervals in [1s,5s]
	if fired < 6 || fired > 30 {
		t.Fatalf("fired=%d", fired)
	}
	for _, m := range rec.sent {
		if _, ok := m.(protocol.ParticleTrigger); !ok {
			t.Fatalf("unexpected message %T", m)
		}
	}
	reg.Each(func(o *registry.Object) bool {
		if o.Effects != uint64(fired) {
			t.Fatalf("%s effects=%d want=%d", o.Name, o.Effects, fired)
		}
		return true
	})
}

func TestSendErrorsAreJoined(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("boom")
	rec := &recorder{err: boom}
	s, _ := New(quietConfig(), nil, rec.send)
	rep, err := s.Tick(time.Second, true, newRegistry(t))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if rep.Movements != 0 {
		t.Fatalf("failed sends counted: %+v", rep)
	}
}

func TestValidate(t *testing.T) {
	bad := DefaultConfig()
	bad.EffectMax = bad.EffectMin - 1
	if _, err := New(bad, nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
