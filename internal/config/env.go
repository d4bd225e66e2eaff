package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envOverrides are applied after the file. Unset variables stay nil.
type envOverrides struct {
	Name          *string        `env:"PEERSYNC_NAME"`
	Tick          *time.Duration `env:"PEERSYNC_TICK"`
	AutoConnect   *bool          `env:"PEERSYNC_AUTO_CONNECT"`
	Seed          *int64         `env:"PEERSYNC_SEED"`
	Transport     *string        `env:"PEERSYNC_TRANSPORT"`
	Listen        *string        `env:"PEERSYNC_LISTEN"`
	Peer          *string        `env:"PEERSYNC_PEER"`
	AdminEnabled  *bool          `env:"PEERSYNC_ADMIN_ENABLED"`
	AdminListen   *string        `env:"PEERSYNC_ADMIN_LISTEN"`
	AdminToken    *string        `env:"PEERSYNC_ADMIN_TOKEN"`
	CORSOrigins   []string       `env:"PEERSYNC_CORS_ORIGINS" envSeparator:","`
	RelayAddr     *string        `env:"PEERSYNC_RELAY_ADDR"`
	RelayPassword *string        `env:"PEERSYNC_RELAY_PASSWORD"`
	RelayChannel  *string        `env:"PEERSYNC_RELAY_CHANNEL"`
}

// LoadDotEnv reads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("%w: parse env: %v", ErrInvalid, err)
	}
	if o.Name != nil {
		cfg.Peer.Name = strings.TrimSpace(*o.Name)
	}
	if o.Tick != nil {
		cfg.Peer.TickInterval = *o.Tick
	}
	if o.AutoConnect != nil {
		cfg.Peer.AutoConnect = *o.AutoConnect
	}
	if o.Seed != nil {
		cfg.Peer.Seed = *o.Seed
	}
	if o.Transport != nil {
		cfg.Transport.Kind = TransportKind(strings.ToLower(strings.TrimSpace(*o.Transport)))
	}
	if o.Listen != nil {
		cfg.Transport.Listen = strings.TrimSpace(*o.Listen)
	}
	if o.Peer != nil {
		cfg.Transport.Peer = strings.TrimSpace(*o.Peer)
	}
	if o.AdminEnabled != nil {
		cfg.AdminEnabled = *o.AdminEnabled
	}
	if o.AdminListen != nil {
		cfg.Admin.ListenAddr = strings.TrimSpace(*o.AdminListen)
	}
	if o.AdminToken != nil {
		cfg.Admin.ActionToken = strings.TrimSpace(*o.AdminToken)
	}
	if len(o.CORSOrigins) > 0 {
		cfg.Admin.CORSOrigins = o.CORSOrigins
	}
	if o.RelayAddr != nil {
		cfg.Transport.Relay.Addr = strings.TrimSpace(*o.RelayAddr)
	}
	if o.RelayPassword != nil {
		cfg.Transport.Relay.Password = *o.RelayPassword
	}
	if o.RelayChannel != nil {
		cfg.Transport.Relay.Channel = strings.TrimSpace(*o.RelayChannel)
	}
	return nil
}
