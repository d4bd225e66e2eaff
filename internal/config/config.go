// Package config resolves a peerctl runtime configuration from defaults, an
// optional TOML file, an optional .env file and PEERSYNC_* environment
// variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/peersync/internal/admin"
	"github.com/danmuck/peersync/internal/geom"
	"github.com/danmuck/peersync/internal/peer"
	"github.com/danmuck/peersync/internal/transport"
	"github.com/danmuck/peersync/internal/transport/relay"
	"github.com/danmuck/peersync/internal/transport/tcp"
	"github.com/danmuck/peersync/internal/transport/ws"
)

var ErrInvalid = errors.New("config: invalid")

type TransportKind string

const (
	TransportLoopback TransportKind = "loopback"
	TransportTCP      TransportKind = "tcp"
	TransportWS       TransportKind = "ws"
	TransportRelay    TransportKind = "relay"
)

func (k TransportKind) Valid() bool {
	switch k {
	case TransportLoopback, TransportTCP, TransportWS, TransportRelay:
		return true
	}
	return false
}

// TransportConfig selects and configures one backend. Listen and Peer are
// shared by tcp (host:port) and ws (listen host:port, peer ws:// URL); one
// side of a pair sets Listen, the other sets Peer. The default kind,
// loopback, runs both peers in one process.
type TransportConfig struct {
	Kind    TransportKind
	Listen  string
	Peer    string
	WSPath  string
	Relay   relay.Config
	Options transport.Config
}

type Config struct {
	Peer         peer.Config
	Transport    TransportConfig
	AdminEnabled bool
	Admin        admin.Config
	Heartbeat    time.Duration
}

func Default() Config {
	return Config{
		Peer: peer.DefaultConfig(),
		Transport: TransportConfig{
			Kind:    TransportLoopback,
			WSPath:  ws.DefaultPath,
			Relay:   relay.DefaultConfig(),
			Options: transport.DefaultConfig(),
		},
		AdminEnabled: true,
		Admin:        admin.DefaultConfig(),
		Heartbeat:    5 * time.Second,
	}
}

// Load builds a Config. path may be empty to skip the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if err := cfg.Peer.Validate(); err != nil {
		return err
	}
	t := cfg.Transport
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: unknown transport kind %q", ErrInvalid, t.Kind)
	}
	switch t.Kind {
	case TransportTCP, TransportWS:
		listen, dial := strings.TrimSpace(t.Listen) != "", strings.TrimSpace(t.Peer) != ""
		if listen && dial {
			return fmt.Errorf("%w: %s transport takes listen or peer, not both", ErrInvalid, t.Kind)
		}
		// a ws listener may ride on the admin port
		sharesAdmin := t.Kind == TransportWS && cfg.AdminEnabled
		if !listen && !dial && !sharesAdmin {
			return fmt.Errorf("%w: %s transport needs listen or peer", ErrInvalid, t.Kind)
		}
		if t.Kind == TransportWS && t.Peer != "" &&
			!strings.HasPrefix(t.Peer, "ws://") && !strings.HasPrefix(t.Peer, "wss://") {
			return fmt.Errorf("%w: ws peer must be a ws:// or wss:// url", ErrInvalid)
		}
	case TransportRelay:
		if strings.TrimSpace(t.Relay.Addr) == "" {
			return fmt.Errorf("%w: relay addr required", ErrInvalid)
		}
		if strings.TrimSpace(t.Relay.Channel) == "" {
			return fmt.Errorf("%w: relay channel required", ErrInvalid)
		}
	}
	if t.Options.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial timeout must be > 0", ErrInvalid)
	}
	if t.Options.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must be >= 0", ErrInvalid)
	}
	if cfg.Heartbeat <= 0 {
		return fmt.Errorf("%w: heartbeat must be > 0", ErrInvalid)
	}
	if cfg.AdminEnabled && strings.TrimSpace(cfg.Admin.ListenAddr) == "" {
		return fmt.Errorf("%w: admin listen required when admin is enabled", ErrInvalid)
	}
	return nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrInvalid, field, err)
	}
	return d, nil
}

func vec3(field string, v []float32) (geom.Vec3, error) {
	if len(v) != 3 {
		return geom.Vec3{}, fmt.Errorf("%w: %s needs 3 components, got %d", ErrInvalid, field, len(v))
	}
	return geom.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func (t TransportConfig) TCP() tcp.Config {
	cfg := tcp.DefaultConfig()
	cfg.ListenAddr = t.Listen
	cfg.PeerAddr = t.Peer
	cfg.Transport = t.Options
	return cfg
}

func (t TransportConfig) WS() ws.Config {
	cfg := ws.DefaultConfig()
	cfg.ListenAddr = t.Listen
	cfg.PeerURL = t.Peer
	if t.WSPath != "" {
		cfg.Path = t.WSPath
	}
	cfg.Transport = t.Options
	return cfg
}

func (t TransportConfig) RelayConfig() relay.Config {
	cfg := t.Relay
	cfg.Transport = t.Options
	return cfg
}
