// Package relay joins two peers through a Redis pub/sub channel when they
// cannot reach each other directly. Peers find each other by announcing on
// the channel; the first join pairs them. Announces continue while paired and
// serve as a heartbeat: a partner silent for PeerTimeout is reported lost.
package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/peersync/internal/transport"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

var (
	ErrChannelRequired = errors.New("relay: channel required")
	ErrPeerLeft        = errors.New("relay: peer left")
	ErrPeerTimeout     = errors.New("relay: peer timed out")
)

type Config struct {
	Addr             string
	Password         string
	DB               int
	Channel          string
	AnnounceInterval time.Duration
	PeerTimeout      time.Duration // 0 means 5 announce intervals
	Transport        transport.Config
}

func DefaultConfig() Config {
	return Config{
		Addr:             "127.0.0.1:6379",
		Channel:          "peersync:lobby",
		AnnounceInterval: time.Second,
		PeerTimeout:      5 * time.Second,
		Transport:        transport.DefaultConfig(),
	}
}

type publishFunc func(ctx context.Context, payload []byte) error

type Transport struct {
	cfg     Config
	log     zerolog.Logger
	id      ksuid.KSUID
	queue   *transport.Queue
	rdb     *redis.Client
	publish publishFunc
	out     chan []byte

	mu        sync.Mutex
	pubsub    *redis.PubSub
	remote    ksuid.KSUID
	lastSeen  time.Time
	connected bool
	started   bool
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg Config, logger zerolog.Logger) (*Transport, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(rdb, cfg, logger)
}

func NewWithClient(rdb *redis.Client, cfg Config, logger zerolog.Logger) (*Transport, error) {
	t, err := newTransport(cfg, logger)
	if err != nil {
		return nil, err
	}
	t.rdb = rdb
	t.publish = func(ctx context.Context, payload []byte) error {
		return rdb.Publish(ctx, cfg.Channel, payload).Err()
	}
	return t, nil
}

func newTransport(cfg Config, logger zerolog.Logger) (*Transport, error) {
	if strings.TrimSpace(cfg.Channel) == "" {
		return nil, ErrChannelRequired
	}
	if cfg.AnnounceInterval <= 0 {
		cfg.AnnounceInterval = DefaultConfig().AnnounceInterval
	}
	if cfg.PeerTimeout <= 0 {
		cfg.PeerTimeout = 5 * cfg.AnnounceInterval
	}
	sendBuffer := cfg.Transport.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = transport.DefaultConfig().SendBuffer
	}
	id := ksuid.New()
	return &Transport{
		cfg:   cfg,
		log:   logger.With().Str("transport", "relay").Str("relay_id", id.String()).Logger(),
		id:    id,
		queue: transport.NewQueue(cfg.Transport.EventBuffer),
		out:   make(chan []byte, sendBuffer),
	}, nil
}

// ID is this peer's identity on the channel.
func (t *Transport) ID() ksuid.KSUID { return t.id }

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	runCtx := t.ctx
	t.mu.Unlock()

	if t.rdb != nil {
		ps := t.rdb.Subscribe(runCtx, t.cfg.Channel)
		if _, err := ps.Receive(runCtx); err != nil {
			_ = ps.Close()
			return err
		}
		t.mu.Lock()
		t.pubsub = ps
		t.mu.Unlock()
		t.wg.Add(1)
		go t.receiveLoop(runCtx, ps.Channel())
	}
	t.log.Info().Str("channel", t.cfg.Channel).Msg("relay started")

	t.wg.Add(2)
	go t.writeLoop(runCtx)
	go t.announceLoop(runCtx)
	return nil
}

// Connect pairs with the announced peer. It fails with ErrNoPeer until an
// announce has been seen.
func (t *Transport) Connect(context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	if t.remote.IsNil() {
		t.mu.Unlock()
		return transport.ErrNoPeer
	}
	remote := t.remote
	t.connected = true
	t.lastSeen = time.Now()
	t.mu.Unlock()

	if !t.enqueue(OpJoin, nil) {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		return transport.ErrBackpressure
	}
	t.queue.Emit(transport.Event{Kind: transport.EventConnected, Addr: remote.String()})
	return nil
}

func (t *Transport) Send(payload []byte) error {
	t.mu.Lock()
	ok := t.connected && !t.closed
	t.mu.Unlock()
	if !ok {
		return transport.ErrNotConnected
	}
	if !t.enqueue(OpData, payload) {
		return transport.ErrBackpressure
	}
	return nil
}

func (t *Transport) Events() <-chan transport.Event {
	return t.queue.Events()
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	connected := t.connected
	t.connected = false
	ps := t.pubsub
	cancel := t.cancel
	t.mu.Unlock()

	if connected && t.publish != nil {
		ctx, done := context.WithTimeout(context.Background(), time.Second)
		if err := t.publish(ctx, EncodeEnvelope(Envelope{Op: OpLeave, Sender: t.id})); err != nil {
			t.log.Warn().Err(err).Msg("leave publish failed")
		}
		done()
	}
	if cancel != nil {
		cancel()
	}
	var err error
	if ps != nil {
		err = ps.Close()
	}
	t.queue.Close()
	t.wg.Wait()
	if t.rdb != nil {
		if cerr := t.rdb.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (t *Transport) enqueue(op Op, payload []byte) bool {
	env := EncodeEnvelope(Envelope{Op: op, Sender: t.id, Payload: payload})
	select {
	case t.out <- env:
		return true
	default:
		return false
	}
}

// handle applies one envelope from the channel.
func (t *Transport) handle(env Envelope) {
	if env.Sender == t.id {
		return
	}
	now := time.Now()
	t.mu.Lock()
	if env.Sender == t.remote {
		t.lastSeen = now
	}
	switch env.Op {
	case OpAnnounce:
		if !t.remote.IsNil() {
			t.mu.Unlock()
			return
		}
		t.remote = env.Sender
		t.lastSeen = now
		t.mu.Unlock()
		t.queue.Emit(transport.Event{Kind: transport.EventPeerDiscovered, Addr: env.Sender.String()})
	case OpJoin:
		if t.connected {
			t.mu.Unlock()
			if env.Sender != t.remote {
				t.log.Warn().Str("sender", env.Sender.String()).Msg("ignoring join from third peer")
			}
			return
		}
		t.remote = env.Sender
		t.lastSeen = now
		t.connected = true
		t.mu.Unlock()
		t.queue.Emit(transport.Event{Kind: transport.EventConnected, Addr: env.Sender.String()})
	case OpData:
		ok := t.connected && env.Sender == t.remote
		t.mu.Unlock()
		if ok {
			t.queue.Emit(transport.Event{Kind: transport.EventBytesReceived, Addr: env.Sender.String(), Payload: env.Payload})
		}
	case OpLeave:
		if !t.connected || env.Sender != t.remote {
			t.mu.Unlock()
			return
		}
		t.connected = false
		t.remote = ksuid.Nil
		t.mu.Unlock()
		t.queue.Emit(transport.Event{Kind: transport.EventDisconnected, Addr: env.Sender.String(), Err: ErrPeerLeft})
	default:
		t.mu.Unlock()
	}
}

func (t *Transport) receiveLoop(ctx context.Context, ch <-chan *redis.Message) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				t.mu.Lock()
				wasConnected := t.connected && !t.closed
				t.connected = false
				t.mu.Unlock()
				if wasConnected {
					t.queue.Emit(transport.Event{Kind: transport.EventDisconnected, Err: transport.ErrClosed})
				}
				return
			}
			env, err := DecodeEnvelope([]byte(msg.Payload))
			if err != nil {
				t.log.Debug().Err(err).Msg("dropping envelope")
				continue
			}
			t.handle(env)
		}
	}
}

func (t *Transport) writeLoop(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-t.out:
			if err := t.publish(ctx, env); err != nil {
				if ctx.Err() != nil {
					return
				}
				t.log.Warn().Err(err).Msg("publish failed")
			}
		}
	}
}

// announceLoop republishes presence every interval and drops a partner that
// has gone quiet.
func (t *Transport) announceLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.AnnounceInterval)
	defer ticker.Stop()
	for {
		if err := t.publish(ctx, EncodeEnvelope(Envelope{Op: OpAnnounce, Sender: t.id})); err != nil && ctx.Err() == nil {
			t.log.Warn().Err(err).Msg("announce failed")
		}
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.checkLiveness(now)
		}
	}
}

// checkLiveness reports the partner lost once nothing has arrived from it
// for PeerTimeout. It reports whether the pairing was dropped.
func (t *Transport) checkLiveness(now time.Time) bool {
	t.mu.Lock()
	if !t.connected || t.closed || now.Sub(t.lastSeen) <= t.cfg.PeerTimeout {
		t.mu.Unlock()
		return false
	}
	remote := t.remote
	silent := now.Sub(t.lastSeen)
	t.connected = false
	t.remote = ksuid.Nil
	t.mu.Unlock()
	t.log.Warn().Str("remote", remote.String()).Dur("silent", silent).Msg("peer timed out")
	t.queue.Emit(transport.Event{Kind: transport.EventDisconnected, Addr: remote.String(), Err: ErrPeerTimeout})
	return true
}

var _ transport.Transport = (*Transport)(nil)
