// Package tcp carries protocol messages over a single TCP connection, one
// frame per message.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/peersync/internal/protocol/frame"
	"github.com/danmuck/peersync/internal/transport"
	"github.com/rs/zerolog"
)

// Config: ListenAddr accepts the peer, PeerAddr dials it. A pair is one
// listener and one dialer. If both sides listen and dial at once, each may
// keep a different socket and refuse the other's.
type Config struct {
	ListenAddr string
	PeerAddr   string
	Transport  transport.Config
	Limits     frame.Limits
}

func DefaultConfig() Config {
	return Config{
		Transport: transport.DefaultConfig(),
		Limits:    frame.DefaultLimits(),
	}
}

type Transport struct {
	cfg   Config
	log   zerolog.Logger
	queue *transport.Queue
	link  *transport.Link
	rng   *rand.Rand

	mu      sync.Mutex
	ln      net.Listener
	ctx     context.Context
	cancel  context.CancelFunc
	dialing bool
	closed  bool
	wg      sync.WaitGroup
}

func New(cfg Config, logger zerolog.Logger) *Transport {
	if cfg.Limits.MaxPayloadBytes <= 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	queue := transport.NewQueue(cfg.Transport.EventBuffer)
	logger = logger.With().Str("transport", "tcp").Logger()
	return &Transport{
		cfg:   cfg,
		log:   logger,
		queue: queue,
		link:  transport.NewLink(queue, cfg.Transport.SendBuffer, logger),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Addr is the bound listen address, empty when not listening.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return ""
	}
	return t.ln.Addr().String()
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	if addr := strings.TrimSpace(t.cfg.ListenAddr); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.ln = ln
		t.mu.Unlock()
		t.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
		t.wg.Add(1)
		go t.acceptLoop(ln)
	}
	if addr := strings.TrimSpace(t.cfg.PeerAddr); addr != "" {
		t.queue.Emit(transport.Event{Kind: transport.EventPeerDiscovered, Addr: addr})
	}
	return nil
}

// Connect dials PeerAddr in the background with backoff. The result arrives
// as EventConnected or EventDisconnected.
func (t *Transport) Connect(context.Context) error {
	addr := strings.TrimSpace(t.cfg.PeerAddr)
	if addr == "" {
		return transport.ErrNoPeer
	}
	t.mu.Lock()
	if t.closed || t.ctx == nil {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	if t.dialing || t.link.Connected() {
		t.mu.Unlock()
		return nil
	}
	t.dialing = true
	ctx := t.ctx
	t.wg.Add(1)
	t.mu.Unlock()

	go t.dialLoop(ctx, addr)
	return nil
}

func (t *Transport) Send(payload []byte) error {
	return t.link.Send(payload)
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
	ln := t.ln
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if ln != nil {
		err = ln.Close()
	}
	t.queue.Close()
	t.link.Detach(transport.ErrClosed)
	t.wg.Wait()
	t.link.Wait()
	return err
}

func (t *Transport) acceptLoop(ln net.Listener) {
	defer t.wg.Done()
	for {
		c, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.log.Warn().Err(err).Msg("accept failed")
			}
			return
		}
		t.link.Attach(newConn(c, t.cfg))
	}
}

func (t *Transport) dialLoop(ctx context.Context, addr string) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		t.dialing = false
		t.mu.Unlock()
	}()

	var c net.Conn
	err := transport.Retry(ctx, t.cfg.Transport.Backoff, t.cfg.Transport.MaxAttempts, t.rng, func(attempt int) error {
		if t.link.Connected() {
			return nil
		}
		dialer := net.Dialer{Timeout: t.cfg.Transport.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			t.log.Warn().Int("attempt", attempt).Str("addr", addr).Err(err).Msg("dial failed")
			return err
		}
		c = conn
		return nil
	})
	if err != nil {
		t.queue.Emit(transport.Event{Kind: transport.EventDisconnected, Addr: addr, Err: err})
		return
	}
	if c != nil {
		t.link.Attach(newConn(c, t.cfg))
	}
}

// conn frames messages over one net.Conn.
type conn struct {
	c            net.Conn
	r            *bufio.Reader
	limits       frame.Limits
	writeTimeout time.Duration
}

func newConn(c net.Conn, cfg Config) *conn {
	return &conn{
		c:            c,
		r:            bufio.NewReader(c),
		limits:       cfg.Limits,
		writeTimeout: cfg.Transport.WriteTimeout,
	}
}

func (c *conn) ReadMessage() ([]byte, error) {
	return frame.ReadFrame(c.r, c.limits)
}

func (c *conn) WriteMessage(payload []byte) error {
	if c.writeTimeout > 0 {
		if err := c.c.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return frame.WriteFrame(c.c, payload, c.limits)
}

func (c *conn) RemoteAddr() string {
	return c.c.RemoteAddr().String()
}

func (c *conn) Close() error {
	return c.c.Close()
}

var _ transport.Transport = (*Transport)(nil)
