package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Name        string    `toml:"name"`
	Tick        string    `toml:"tick"`
	Heartbeat   string    `toml:"heartbeat"`
	AutoConnect bool      `toml:"auto_connect"`
	Seed        int64     `toml:"seed"`
	NameBase    string    `toml:"name_base"`
	SpawnOrigin []float32 `toml:"spawn_origin"`
	SpawnStep   []float32 `toml:"spawn_step"`

	Sync      syncFile      `toml:"sync"`
	Motion    motionFile    `toml:"motion"`
	Admin     adminFile     `toml:"admin"`
	Transport transportFile `toml:"transport"`
}

type syncFile struct {
	BroadcastInterval string  `toml:"broadcast_interval"`
	EffectMin         string  `toml:"effect_min"`
	EffectMax         string  `toml:"effect_max"`
	BlendRestart      float32 `toml:"blend_restart"`
	SmoothingWindow   string  `toml:"smoothing_window"`
	MaxEventsPerTick  int     `toml:"max_events_per_tick"`
}

type motionFile struct {
	Radius      float64 `toml:"radius"`
	OrbitSpeed  float64 `toml:"orbit_speed"`
	SwingLimit  float64 `toml:"swing_limit"`
	SwingSpeed  float64 `toml:"swing_speed"`
	SwingJitter float64 `toml:"swing_jitter"`
}

type adminFile struct {
	Enabled     bool     `toml:"enabled"`
	Listen      string   `toml:"listen"`
	CORSOrigins []string `toml:"cors_origins"`
	Timeout     string   `toml:"action_timeout"`
	Token       string   `toml:"action_token"`
}

type transportFile struct {
	Kind        string    `toml:"kind"`
	Listen      string    `toml:"listen"`
	Peer        string    `toml:"peer"`
	DialTimeout string    `toml:"dial_timeout"`
	MaxAttempts int       `toml:"max_attempts"`
	WS          wsFile    `toml:"ws"`
	Relay       relayFile `toml:"relay"`
}

type wsFile struct {
	Path string `toml:"path"`
}

type relayFile struct {
	Addr             string `toml:"addr"`
	Password         string `toml:"password"`
	DB               int    `toml:"db"`
	Channel          string `toml:"channel"`
	AnnounceInterval string `toml:"announce_interval"`
	PeerTimeout      string `toml:"peer_timeout"`
}

// applyFile overlays only the keys present in the file.
func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}

	p := &cfg.Peer
	if meta.IsDefined("name") {
		p.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("tick") {
		if p.TickInterval, err = parseDuration("tick", raw.Tick); err != nil {
			return err
		}
	}
	if meta.IsDefined("heartbeat") {
		if cfg.Heartbeat, err = parseDuration("heartbeat", raw.Heartbeat); err != nil {
			return err
		}
	}
	if meta.IsDefined("auto_connect") {
		p.AutoConnect = raw.AutoConnect
	}
	if meta.IsDefined("seed") {
		p.Seed = raw.Seed
	}
	if meta.IsDefined("name_base") {
		p.NameBase = strings.TrimSpace(raw.NameBase)
	}
	if meta.IsDefined("spawn_origin") {
		if p.SpawnOrigin, err = vec3("spawn_origin", raw.SpawnOrigin); err != nil {
			return err
		}
	}
	if meta.IsDefined("spawn_step") {
		if p.SpawnStep, err = vec3("spawn_step", raw.SpawnStep); err != nil {
			return err
		}
	}

	if meta.IsDefined("sync", "broadcast_interval") {
		if p.Broadcast.BroadcastInterval, err = parseDuration("sync.broadcast_interval", raw.Sync.BroadcastInterval); err != nil {
			return err
		}
	}
	if meta.IsDefined("sync", "effect_min") {
		if p.Broadcast.EffectMin, err = parseDuration("sync.effect_min", raw.Sync.EffectMin); err != nil {
			return err
		}
	}
	if meta.IsDefined("sync", "effect_max") {
		if p.Broadcast.EffectMax, err = parseDuration("sync.effect_max", raw.Sync.EffectMax); err != nil {
			return err
		}
	}
	if meta.IsDefined("sync", "blend_restart") {
		p.Replica.BlendRestart = raw.Sync.BlendRestart
	}
	if meta.IsDefined("sync", "smoothing_window") {
		if p.Replica.SmoothingWindow, err = parseDuration("sync.smoothing_window", raw.Sync.SmoothingWindow); err != nil {
			return err
		}
	}
	if meta.IsDefined("sync", "max_events_per_tick") {
		p.MaxEventsPerTick = raw.Sync.MaxEventsPerTick
	}

	if meta.IsDefined("motion", "radius") {
		p.Motion.Radius = raw.Motion.Radius
	}
	if meta.IsDefined("motion", "orbit_speed") {
		p.Motion.OrbitSpeed = raw.Motion.OrbitSpeed
	}
	if meta.IsDefined("motion", "swing_limit") {
		p.Motion.SwingLimit = raw.Motion.SwingLimit
	}
	if meta.IsDefined("motion", "swing_speed") {
		p.Motion.SwingSpeed = raw.Motion.SwingSpeed
	}
	if meta.IsDefined("motion", "swing_jitter") {
		p.Motion.SwingJitter = raw.Motion.SwingJitter
	}

	if meta.IsDefined("admin", "enabled") {
		cfg.AdminEnabled = raw.Admin.Enabled
	}
	if meta.IsDefined("admin", "listen") {
		cfg.Admin.ListenAddr = strings.TrimSpace(raw.Admin.Listen)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CORSOrigins = raw.Admin.CORSOrigins
	}
	if meta.IsDefined("admin", "action_timeout") {
		if cfg.Admin.ActionTimeout, err = parseDuration("admin.action_timeout", raw.Admin.Timeout); err != nil {
			return err
		}
	}

	if meta.IsDefined("admin", "action_token") {
		cfg.Admin.ActionToken = strings.TrimSpace(raw.Admin.Token)
	}

	t := &cfg.Transport
	if meta.IsDefined("transport", "kind") {
		t.Kind = TransportKind(strings.ToLower(strings.TrimSpace(raw.Transport.Kind)))
	}
	if meta.IsDefined("transport", "listen") {
		t.Listen = strings.TrimSpace(raw.Transport.Listen)
	}
	if meta.IsDefined("transport", "peer") {
		t.Peer = strings.TrimSpace(raw.Transport.Peer)
	}
	if meta.IsDefined("transport", "dial_timeout") {
		if t.Options.DialTimeout, err = parseDuration("transport.dial_timeout", raw.Transport.DialTimeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("transport", "max_attempts") {
		t.Options.MaxAttempts = raw.Transport.MaxAttempts
	}
	if meta.IsDefined("transport", "ws", "path") {
		t.WSPath = strings.TrimSpace(raw.Transport.WS.Path)
	}
	if meta.IsDefined("transport", "relay", "addr") {
		t.Relay.Addr = strings.TrimSpace(raw.Transport.Relay.Addr)
	}
	if meta.IsDefined("transport", "relay", "password") {
		t.Relay.Password = raw.Transport.Relay.Password
	}
	if meta.IsDefined("transport", "relay", "db") {
		t.Relay.DB = raw.Transport.Relay.DB
	}
	if meta.IsDefined("transport", "relay", "channel") {
		t.Relay.Channel = strings.TrimSpace(raw.Transport.Relay.Channel)
	}
	if meta.IsDefined("transport", "relay", "announce_interval") {
		if t.Relay.AnnounceInterval, err = parseDuration("transport.relay.announce_interval", raw.Transport.Relay.AnnounceInterval); err != nil {
			return err
		}
	}
	if meta.IsDefined("transport", "relay", "peer_timeout") {
		if t.Relay.PeerTimeout, err = parseDuration("transport.relay.peer_timeout", raw.Transport.Relay.PeerTimeout); err != nil {
			return err
		}
	}
	return nil
}
