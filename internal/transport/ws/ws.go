// Package ws carries protocol messages as binary WebSocket messages. The
// accepting side is a gin route so it can share a port with the admin API.
package ws

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/peersync/internal/protocol/frame"
	"github.com/danmuck/peersync/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const DefaultPath = "/peer"

var ErrUnexpectedMessageType = errors.New("ws: unexpected message type")

// Config: ListenAddr serves Path, PeerURL dials a remote ws:// endpoint.
// Limits bounds inbound messages the same way the tcp backend bounds frames.
type Config struct {
	ListenAddr string
	PeerURL    string
	Path       string
	Transport  transport.Config
	Limits     frame.Limits
}

func DefaultConfig() Config {
	return Config{
		Path:      DefaultPath,
		Transport: transport.DefaultConfig(),
		Limits:    frame.DefaultLimits(),
	}
}

type Transport struct {
	cfg      Config
	log      zerolog.Logger
	queue    *transport.Queue
	link     *transport.Link
	rng      *rand.Rand
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
	engine   *gin.Engine

	mu      sync.Mutex
	srv     *http.Server
	ln      net.Listener
	ctx     context.Context
	cancel  context.CancelFunc
	dialing bool
	closed  bool
	wg      sync.WaitGroup
}

func New(cfg Config, logger zerolog.Logger) *Transport {
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Limits.MaxPayloadBytes <= 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	queue := transport.NewQueue(cfg.Transport.EventBuffer)
	logger = logger.With().Str("transport", "ws").Logger()
	t := &Transport{
		cfg:   cfg,
		log:   logger,
		queue: queue,
		link:  transport.NewLink(queue, cfg.Transport.SendBuffer, logger),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Transport.DialTimeout},
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	t.Register(engine)
	t.engine = engine
	return t
}

// Register mounts the upgrade route on an existing router.
func (t *Transport) Register(r gin.IRoutes) {
	r.GET(t.cfg.Path, t.handleUpgrade)
}

// Handler serves only the upgrade route.
func (t *Transport) Handler() http.Handler {
	return t.engine
}

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
		srv := &http.Server{Handler: t.engine, ReadHeaderTimeout: 5 * time.Second}
		t.mu.Lock()
		t.ln = ln
		t.srv = srv
		t.mu.Unlock()
		t.log.Info().Str("addr", ln.Addr().String()).Str("path", t.cfg.Path).Msg("listening")
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				t.log.Error().Err(err).Msg("serve failed")
			}
		}()
	}
	if u := strings.TrimSpace(t.cfg.PeerURL); u != "" {
		t.queue.Emit(transport.Event{Kind: transport.EventPeerDiscovered, Addr: u})
	}
	return nil
}

func (t *Transport) Connect(context.Context) error {
	u := strings.TrimSpace(t.cfg.PeerURL)
	if u == "" {
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

	go t.dialLoop(ctx, u)
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
	srv := t.srv
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		err = srv.Shutdown(shutdownCtx)
		done()
	}
	t.queue.Close()
	t.link.Detach(transport.ErrClosed)
	t.wg.Wait()
	t.link.Wait()
	return err
}

func (t *Transport) handleUpgrade(c *gin.Context) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	if t.link.Connected() {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "peer already connected"})
		return
	}
	wsConn, err := t.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		t.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	t.link.Attach(newConn(wsConn, t.cfg.Transport.WriteTimeout, t.cfg.Limits))
}

func (t *Transport) dialLoop(ctx context.Context, u string) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		t.dialing = false
		t.mu.Unlock()
	}()

	var wsConn *websocket.Conn
	err := transport.Retry(ctx, t.cfg.Transport.Backoff, t.cfg.Transport.MaxAttempts, t.rng, func(attempt int) error {
		if t.link.Connected() {
			return nil
		}
		c, resp, err := t.dialer.DialContext(ctx, u, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			t.log.Warn().Int("attempt", attempt).Str("url", u).Err(err).Msg("dial failed")
			return err
		}
		wsConn = c
		return nil
	})
	if err != nil {
		t.queue.Emit(transport.Event{Kind: transport.EventDisconnected, Addr: u, Err: err})
		return
	}
	if wsConn != nil {
		t.link.Attach(newConn(wsConn, t.cfg.Transport.WriteTimeout, t.cfg.Limits))
	}
}

type conn struct {
	c            *websocket.Conn
	writeTimeout time.Duration
}

// newConn caps reads at limits; an oversized message fails ReadMessage with
// websocket.ErrReadLimit and the link reports a disconnect.
func newConn(c *websocket.Conn, writeTimeout time.Duration, limits frame.Limits) *conn {
	c.SetReadLimit(int64(limits.MaxPayloadBytes))
	return &conn{c: c, writeTimeout: writeTimeout}
}

func (c *conn) ReadMessage() ([]byte, error) {
	for {
		mt, p, err := c.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch mt {
		case websocket.BinaryMessage:
			return p, nil
		case websocket.TextMessage:
			return nil, ErrUnexpectedMessageType
		}
	}
}

func (c *conn) WriteMessage(payload []byte) error {
	if c.writeTimeout > 0 {
		if err := c.c.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.c.WriteMessage(websocket.BinaryMessage, payload)
}

func (c *conn) RemoteAddr() string {
	return c.c.RemoteAddr().String()
}

func (c *conn) Close() error {
	return c.c.Close()
}

var _ transport.Transport = (*Transport)(nil)
