// Package motion is the local simulation rule for objects this peer owns.
package motion

import (
	"math"
	"math/rand"
	"time"

	"github.com/danmuck/peersync/internal/geom"
)

type Config struct {
	Radius      float64 // orbit radius in world units
	OrbitSpeed  float64 // radians per second
	SwingLimit  float64 // degrees either side of zero
	SwingSpeed  float64 // degrees per second
	SwingJitter float64 // starting swing is uniform in [-SwingJitter, SwingJitter]
	PivotPitch  float64 // fixed X rotation of the pivot, degrees
}

func DefaultConfig() Config {
	return Config{
		Radius:      1,
		OrbitSpeed:  1,
		SwingLimit:  30,
		SwingSpeed:  10,
		SwingJitter: 10,
		PivotPitch:  90,
	}
}

// State is one authoritative object's simulation. Origin is the spawn
// position the orbit is centred on.
type State struct {
	Origin   geom.Vec3
	Orbit    float64
	Swing    float64
	SwingDir float64
}

func NewState(origin geom.Vec3, cfg Config, rng *rand.Rand) State {
	start := 0.0
	if cfg.SwingJitter > 0 && rng != nil {
		start = (rng.Float64()*2 - 1) * cfg.SwingJitter
	}
	return State{Origin: origin, Swing: start, SwingDir: 1}
}

// Step advances the simulation by dt and returns the resulting pose.
func (s *State) Step(cfg Config, dt time.Duration) (geom.Vec3, geom.Quat) {
	sec := dt.Seconds()
	s.Orbit += cfg.OrbitSpeed * sec
	pos := s.Origin.Add(geom.Vec3{
		X: float32(math.Cos(s.Orbit) * cfg.Radius),
		Y: float32(math.Sin(s.Orbit) * cfg.Radius),
	})

	if s.SwingDir == 0 {
		s.SwingDir = 1
	}
	s.Swing += cfg.SwingSpeed * s.SwingDir * sec
	if s.Swing > cfg.SwingLimit || s.Swing < -cfg.SwingLimit {
		s.Swing = cfg.SwingLimit * s.SwingDir
		s.SwingDir = -s.SwingDir
	}
	return pos, s.Pose(cfg)
}

// Pose is the current pivot rotation without advancing time.
func (s *State) Pose(cfg Config) geom.Quat {
	return geom.Euler(cfg.PivotPitch, 0, s.Swing)
}
