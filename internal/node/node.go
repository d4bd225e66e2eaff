// Package node assembles one running peer process: the configured transport,
// the peer tick loop, the optional admin server and a periodic heartbeat log.
package node

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/peersync/internal/admin"
	"github.com/danmuck/peersync/internal/config"
	"github.com/danmuck/peersync/internal/logging"
	"github.com/danmuck/peersync/internal/peer"
	"github.com/danmuck/peersync/internal/transport"
	"github.com/danmuck/peersync/internal/transport/relay"
	"github.com/danmuck/peersync/internal/transport/tcp"
	"github.com/danmuck/peersync/internal/transport/ws"
	"github.com/rs/zerolog"
)

var (
	ErrLoopbackStandalone = errors.New("node: loopback transport needs an in-process partner")
	ErrInvalidHeartbeat   = errors.New("node: invalid heartbeat interval")
)

const DefaultHeartbeat = 5 * time.Second

type Node struct {
	cfg       config.Config
	log       zerolog.Logger
	tr        transport.Transport
	peer      *peer.Peer
	admin     *admin.Server
	heartbeat time.Duration
}

// New builds the transport named by cfg and wires a node around it.
func New(cfg config.Config) (*Node, error) {
	logger := logging.Component("node").With().Str("peer", cfg.Peer.Name).Logger()
	tr, err := BuildTransport(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithTransport(cfg, tr)
}

// NewWithTransport wires a node around an already constructed transport.
func NewWithTransport(cfg config.Config, tr transport.Transport) (*Node, error) {
	logger := logging.Component("node").With().Str("peer", cfg.Peer.Name).Logger()
	p, err := peer.New(cfg.Peer, tr, NewLogHooks(logger))
	if err != nil {
		return nil, err
	}
	n := &Node{
		cfg:       cfg,
		log:       logger,
		tr:        tr,
		peer:      p,
		heartbeat: DefaultHeartbeat,
	}
	if cfg.Heartbeat > 0 {
		n.heartbeat = cfg.Heartbeat
	}
	if cfg.AdminEnabled {
		n.admin = admin.New(cfg.Admin, p)
		// a ws peer without its own listener accepts on the admin port
		if wt, ok := tr.(*ws.Transport); ok && strings.TrimSpace(cfg.Transport.Listen) == "" {
			wt.Register(n.admin.Router())
		}
	}
	return n, nil
}

// BuildTransport maps the configured kind onto a backend.
func BuildTransport(cfg config.Config, logger zerolog.Logger) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case config.TransportTCP:
		return tcp.New(cfg.Transport.TCP(), logger), nil
	case config.TransportWS:
		return ws.New(cfg.Transport.WS(), logger), nil
	case config.TransportRelay:
		rt, err := relay.New(cfg.Transport.RelayConfig(), logger)
		if err != nil {
			return nil, err
		}
		return rt, nil
	case config.TransportLoopback:
		return nil, ErrLoopbackStandalone
	default:
		return nil, fmt.Errorf("%w: unknown transport kind %q", config.ErrInvalid, cfg.Transport.Kind)
	}
}

func (n *Node) Peer() *peer.Peer { return n.peer }

// Admin returns nil when the admin surface is disabled.
func (n *Node) Admin() *admin.Server { return n.admin }

func (n *Node) SetHeartbeat(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidHeartbeat
	}
	n.heartbeat = d
	return nil
}

// Run blocks until ctx ends or a component fails. The transport is closed on
// the way out.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := n.peer.Start(ctx); err != nil {
		_ = n.tr.Close()
		return fmt.Errorf("start peer: %w", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- n.peer.Run(ctx)
	}()
	if n.admin != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.admin.Serve(ctx); err != nil {
				errs <- fmt.Errorf("admin: %w", err)
				return
			}
			errs <- nil
		}()
	}

	err := n.serve(ctx, errs)
	cancel()
	wg.Wait()
	if cerr := n.tr.Close(); cerr != nil && !errors.Is(cerr, transport.ErrClosed) {
		n.log.Warn().Err(cerr).Msg("transport close failed")
	}
	return err
}

func (n *Node) serve(ctx context.Context, errs <-chan error) error {
	ticker := time.NewTicker(n.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			n.log.Info().Msg("node shutdown")
			return nil
		case err := <-errs:
			if err != nil {
				return err
			}
		case <-ticker.C:
			n.logHeartbeat()
		}
	}
}

func (n *Node) logHeartbeat() {
	snap := n.peer.Snapshot()
	authoritative := 0
	for _, o := range snap.Objects {
		if o.HasAuthority {
			authoritative++
		}
	}
	n.log.Info().
		Str("role", snap.Role).
		Bool("established", snap.Established).
		Bool("connected", snap.Connected).
		Int("objects", len(snap.Objects)).
		Int("authoritative", authoritative).
		Uint64("tick", snap.Tick).
		Msg("heartbeat")
}
