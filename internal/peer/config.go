package peer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/peersync/internal/broadcast"
	"github.com/danmuck/peersync/internal/geom"
	"github.com/danmuck/peersync/internal/motion"
	"github.com/danmuck/peersync/internal/protocol"
	"github.com/danmuck/peersync/internal/replica"
)

var ErrInvalidConfig = errors.New("peer: invalid config")

// Config is everything a Peer needs besides its transport.
type Config struct {
	Name             string
	TickInterval     time.Duration
	NameBase         string
	SpawnOrigin      geom.Vec3
	SpawnStep        geom.Vec3
	AutoConnect      bool
	Seed             int64 // 0 seeds from the clock
	MaxEventsPerTick int   // 0 drains everything buffered
	Broadcast        broadcast.Config
	Replica          replica.Config
	Motion           motion.Config
}

// Peer defaults: 60Hz tick, objects spawned in
// a line receding from the camera.
func DefaultConfig() Config {
	return Config{
		Name:         "peer",
		TickInterval: time.Second / 60,
		NameBase:     "NetObj",
		SpawnOrigin:  geom.Vec3{X: 0, Y: -1, Z: -8},
		SpawnStep:    geom.Vec3{X: 0, Y: 0, Z: -8},
		AutoConnect:  true,
		Broadcast:    broadcast.DefaultConfig(),
		Replica:      replica.DefaultConfig(),
		Motion:       motion.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidConfig)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be > 0", ErrInvalidConfig)
	}
	if c.NameBase == "" {
		return fmt.Errorf("%w: name base required", ErrInvalidConfig)
	}
	// room for the longest sequence suffix
	if len(c.NameBase)+20 > protocol.MaxNameLen {
		return fmt.Errorf("%w: name base too long", ErrInvalidConfig)
	}
	if c.Replica.SmoothingWindow <= 0 {
		return fmt.Errorf("%w: smoothing window must be > 0", ErrInvalidConfig)
	}
	if c.Replica.BlendRestart < 0 || c.Replica.BlendRestart > 1 {
		return fmt.Errorf("%w: blend restart must be in [0,1]", ErrInvalidConfig)
	}
	if c.MaxEventsPerTick < 0 {
		return fmt.Errorf("%w: max events per tick must be >= 0", ErrInvalidConfig)
	}
	return c.Broadcast.Validate()
}
