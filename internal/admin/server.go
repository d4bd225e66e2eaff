// Package admin exposes a running peer over HTTP: health and metrics for
// operators, the session snapshot, and the local actions a UI would trigger.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/peersync/internal/auth"
	"github.com/danmuck/peersync/internal/observability"
	"github.com/danmuck/peersync/internal/peer"
	"github.com/danmuck/peersync/internal/registry"
	"github.com/danmuck/peersync/internal/session"
	"github.com/danmuck/peersync/internal/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Peer is the slice of *peer.Peer the admin surface drives.
type Peer interface {
	Snapshot() *peer.Snapshot
	Do(ctx context.Context, fn func() error) error
	BecomeHost() error
	SpawnLocal() (string, error)
	SendColor() (string, error)
	Connect() error
}

// Config: a non-empty ActionToken is required on every /actions request.
type Config struct {
	ListenAddr    string
	CORSOrigins   []string
	ActionTimeout time.Duration
	ActionToken   string
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:    "127.0.0.1:7070",
		ActionTimeout: 2 * time.Second,
	}
}

type Server struct {
	cfg     Config
	peer    Peer
	router  *gin.Engine
	started time.Time
}

func New(cfg Config, p Peer) *Server {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultConfig().ActionTimeout
	}
	name := p.Snapshot().Peer
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger.With().Str("peer", name).Logger()))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", auth.HeaderToken},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{cfg: cfg, peer: p, router: r, started: time.Now()}
	s.registerRoutes()
	return s
}

// Router is exposed so other handlers (the ws transport) can share the port.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Serve listens on ListenAddr until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("admin listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		snap := s.peer.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"peer":   snap.Peer,
			"uptime": time.Since(s.started).Round(time.Second).String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ready", func(c *gin.Context) {
		snap := s.peer.Snapshot()
		status := http.StatusOK
		if !snap.Connected {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":       snap.Connected,
			"established": snap.Established,
		})
	})
	r.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.peer.Snapshot())
	})
	r.GET("/session/objects/:name", func(c *gin.Context) {
		obj, ok := s.peer.Snapshot().Object(c.Param("name"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": registry.ErrUnknownObject.Error()})
			return
		}
		c.JSON(http.StatusOK, obj)
	})

	actions := r.Group("/actions")
	if token := strings.TrimSpace(s.cfg.ActionToken); token != "" {
		actions.Use(requireToken(auth.StaticToken{Token: token}))
	}
	actions.POST("/host", s.action(func() (gin.H, error) {
		return gin.H{"role": "host"}, s.peer.BecomeHost()
	}))
	actions.POST("/spawn", s.action(func() (gin.H, error) {
		name, err := s.peer.SpawnLocal()
		if name == "" {
			return gin.H{"requested": true}, err
		}
		return gin.H{"object": name}, err
	}))
	actions.POST("/color", s.action(func() (gin.H, error) {
		color, err := s.peer.SendColor()
		return gin.H{"color": color}, err
	}))
	actions.POST("/connect", s.action(func() (gin.H, error) {
		return gin.H{"connecting": true}, s.peer.Connect()
	}))
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Check(v, c.Request); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// action runs fn inside the peer's tick and renders its result.
func (s *Server) action(fn func() (gin.H, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.ActionTimeout)
		defer cancel()

		var body gin.H
		err := s.peer.Do(ctx, func() error {
			var err error
			body, err = fn()
			return err
		})
		if err != nil {
			_ = c.Error(err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		body["status"] = "ok"
		c.JSON(http.StatusOK, body)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyEstablished),
		errors.Is(err, peer.ErrNotEstablished),
		errors.Is(err, peer.ErrNotHost),
		errors.Is(err, registry.ErrDuplicateObject),
		errors.Is(err, transport.ErrNotConnected),
		errors.Is(err, transport.ErrNoPeer):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, peer.ErrStopped), errors.Is(err, transport.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
