// Package peer runs one side of a two-party sync session.
//
// A Peer is single-threaded: the session, registry and scheduler are touched
// only from inside Tick. Transport I/O happens on other goroutines and is
// queued until the next tick; other goroutines reach the Peer through Do and
// read it through Snapshot.
package peer

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/peersync/internal/broadcast"
	"github.com/danmuck/peersync/internal/geom"
	"github.com/danmuck/peersync/internal/logging"
	"github.com/danmuck/peersync/internal/observability"
	"github.com/danmuck/peersync/internal/protocol"
	"github.com/danmuck/peersync/internal/registry"
	"github.com/danmuck/peersync/internal/replica"
	"github.com/danmuck/peersync/internal/session"
	"github.com/danmuck/peersync/internal/transport"
	"github.com/rs/zerolog"
)

var (
	ErrNotEstablished   = errors.New("peer: session not established")
	ErrNotHost          = errors.New("peer: not host")
	ErrUnhandledMessage = errors.New("peer: unhandled message")
	ErrAuthorityClash   = errors.New("peer: movement for locally authoritative object")
	ErrStopped          = errors.New("peer: stopped")
	ErrNilTransport     = errors.New("peer: transport required")
)

const (
	actionPending int32 = iota
	actionRunning
	actionAbandoned
)

// action is claimed exactly once: by the tick (running) or by a caller whose
// ctx ended first (abandoned). Abandoned actions never run.
type action struct {
	fn    func() error
	done  chan error
	state atomic.Int32
}

type Peer struct {
	cfg    Config
	log    zerolog.Logger
	tr     transport.Transport
	hooks  Hooks
	rng    *rand.Rand
	sched  *broadcast.Scheduler
	interp *replica.Interpolator

	// tick-owned state
	ctx        context.Context
	session    *session.State
	reg        *registry.Registry
	spawnSeq   int
	nextSpawn  geom.Vec3
	connected  bool
	peerAddr   string
	discovered string
	lastColor  string
	ticks      uint64
	sendBuf    []byte

	actions   chan *action
	snap      atomic.Pointer[Snapshot]
	startOnce sync.Once
	startErr  error
	stopOnce  sync.Once
	stopped   chan struct{}
}

// Peer constructor; hooks may be nil.
func New(cfg Config, tr transport.Transport, hooks Hooks) (*Peer, error) {
	if tr == nil {
		return nil, ErrNilTransport
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hooks == nil {
		hooks = NopHooks{}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	p := &Peer{
		cfg:     cfg,
		log:     logging.Component("peer").With().Str("peer", cfg.Name).Logger(),
		tr:      tr,
		hooks:   hooks,
		rng:     rng,
		interp:  replica.New(cfg.Replica),
		ctx:     context.Background(),
		actions: make(chan *action, 64),
		stopped: make(chan struct{}),
	}
	sched, err := broadcast.New(cfg.Broadcast, rng, p.send)
	if err != nil {
		return nil, err
	}
	p.sched = sched
	kinds := protocol.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	observability.PrimeMessageKinds(cfg.Name, names)
	p.resetSession()
	p.publish()
	return p, nil
}

func (p *Peer) Config() Config { return p.cfg }

// Start starts the transport. ctx bounds the transport's background work and
// any Connect issued later.
func (p *Peer) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		p.ctx = ctx
		p.startErr = p.tr.Start(ctx)
		if p.startErr == nil {
			p.log.Info().Msg("peer started")
		}
	})
	return p.startErr
}

// Run ticks the peer at TickInterval until ctx ends.
func (p *Peer) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.stop()

	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("peer stopping")
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			p.Tick(dt)
		}
	}
}

func (p *Peer) stop() {
	p.stopOnce.Do(func() { close(p.stopped) })
}

// Do runs fn inside the next tick and waits for its result. If ctx ends or
// the peer stops before the tick picks fn up, fn never runs; once it has
// started, Do waits for its result.
func (p *Peer) Do(ctx context.Context, fn func() error) error {
	a := &action{fn: fn, done: make(chan error, 1)}
	select {
	case p.actions <- a:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		return ErrStopped
	}
	var cause error
	select {
	case err := <-a.done:
		return err
	case <-ctx.Done():
		cause = ctx.Err()
	case <-p.stopped:
		cause = ErrStopped
	}
	if a.state.CompareAndSwap(actionPending, actionAbandoned) {
		return cause
	}
	return <-a.done
}

// Tick advances the peer by dt: inbound events and queued actions first,
// then the host broadcast, then local motion and replica blending.
func (p *Peer) Tick(dt time.Duration) {
	start := time.Now()
	p.ticks++

	for _, ev := range transport.Drain(p.tr.Events(), p.cfg.MaxEventsPerTick) {
		p.handleEvent(ev)
	}
	p.drainActions()

	rep, err := p.sched.Tick(dt, p.session.IsHost(), p.reg)
	if err != nil {
		p.log.Warn().Err(err).Msg("broadcast send failed")
	}
	if rep.Effect {
		p.hooks.OnEffectTriggered()
	}

	p.advance(dt)
	p.publish()
	observability.RecordTick(p.cfg.Name, time.Since(start))
}

func (p *Peer) drainActions() {
	for {
		select {
		case a := <-p.actions:
			if !a.state.CompareAndSwap(actionPending, actionRunning) {
				continue
			}
			a.done <- a.fn()
		default:
			return
		}
	}
}

func (p *Peer) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventPeerDiscovered:
		p.discovered = ev.Addr
		p.log.Info().Str("addr", ev.Addr).Msg("peer discovered")
		p.hooks.OnPeerDiscovered(ev.Addr)
		if p.cfg.AutoConnect && !p.connected {
			if err := p.tr.Connect(p.ctx); err != nil {
				p.log.Warn().Err(err).Str("addr", ev.Addr).Msg("auto connect failed")
			}
		}
	case transport.EventConnected:
		p.connected = true
		p.peerAddr = ev.Addr
		observability.RecordConnected(p.cfg.Name, true)
		p.log.Info().Str("addr", ev.Addr).Msg("connected")
		p.hooks.OnConnected()
	case transport.EventBytesReceived:
		p.receive(ev.Payload)
	case transport.EventDisconnected:
		p.log.Warn().Err(ev.Err).Str("addr", ev.Addr).Msg("connection lost")
		p.connected = false
		p.peerAddr = ""
		observability.RecordConnected(p.cfg.Name, false)
		p.resetSession()
		p.hooks.OnConnectionLost(ev.Err)
	}
}

func (p *Peer) receive(payload []byte) {
	msg, err := protocol.Decode(payload)
	if err != nil {
		why := decodeFailure(payload)
		observability.RecordMessageDropped(p.cfg.Name, "in", why)
		ev := p.log.Warn().Err(err).Int("bytes", len(payload)).Str("reason", why)
		if k, perr := protocol.PeekKind(payload); perr == nil {
			ev = ev.Str("kind", k.String())
		}
		ev.Msg("dropping undecodable message")
		return
	}
	kind := msg.Kind().String()
	observability.RecordMessageReceived(p.cfg.Name, kind)
	if err := p.dispatch(msg); err != nil {
		p.logDispatchError(kind, err)
	}
}

// decodeFailure labels a payload Decode rejected: "unknown_kind" when the
// leading byte names no message, "malformed" when the body is bad.
func decodeFailure(payload []byte) string {
	if _, err := protocol.PeekKind(payload); err != nil {
		return "unknown_kind"
	}
	return "malformed"
}

func (p *Peer) logDispatchError(kind string, err error) {
	switch {
	case errors.Is(err, session.ErrAlreadyEstablished):
		p.log.Debug().Str("kind", kind).Msg("late negotiation ignored")
	case errors.Is(err, registry.ErrUnknownObject),
		errors.Is(err, registry.ErrDuplicateObject),
		errors.Is(err, ErrNotHost),
		errors.Is(err, ErrAuthorityClash):
		observability.RecordMessageDropped(p.cfg.Name, "in", reason(err))
		p.log.Warn().Str("kind", kind).Err(err).Msg("message dropped")
	default:
		p.log.Error().Str("kind", kind).Err(err).Msg("dispatch failed")
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, registry.ErrUnknownObject):
		return "unknown_object"
	case errors.Is(err, registry.ErrDuplicateObject):
		return "duplicate_object"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, ErrAuthorityClash):
		return "authority_clash"
	default:
		return "other"
	}
}

// send encodes msg into the reusable buffer and hands it to the transport.
// Transports copy what they keep.
func (p *Peer) send(msg protocol.Message) error {
	buf, err := protocol.AppendEncode(p.sendBuf[:0], msg)
	if err != nil {
		return err
	}
	p.sendBuf = buf
	kind := msg.Kind().String()
	if err := p.tr.Send(buf); err != nil {
		observability.RecordMessageDropped(p.cfg.Name, "out", kind)
		return err
	}
	observability.RecordMessageSent(p.cfg.Name, kind)
	return nil
}

// resetSession starts a fresh, empty session. Nothing carries over from a
// lost connection.
func (p *Peer) resetSession() {
	p.session = session.New()
	p.reg = registry.New()
	p.spawnSeq = 0
	p.nextSpawn = p.cfg.SpawnOrigin
}

// advance runs local motion for owned objects and blends replicas.
func (p *Peer) advance(dt time.Duration) {
	p.reg.Each(func(obj *registry.Object) bool {
		var pos geom.Vec3
		var rot geom.Quat
		switch {
		case obj.HasAuthority:
			pos, rot = obj.Motion.Step(p.cfg.Motion, dt)
		case obj.Replica.Active:
			pos, rot = p.interp.Advance(&obj.Replica, dt, obj.Position, obj.Rotation)
		default:
			return true
		}
		obj.Position, obj.Rotation = pos, rot
		p.hooks.OnObjectMoved(obj.Name, pos, rot)
		return true
	})
	authoritative, replicas := p.reg.Counts()
	observability.RecordObjects(p.cfg.Name, authoritative, replicas)
}
