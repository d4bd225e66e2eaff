// Package replica eases non-authoritative objects toward the most recent
// transform received from the peer.
//
// Each tick blends from the current rendered pose, not from the pose at the
// time the update arrived, so a burst of updates compounds into an ease
// toward a moving target.
package replica

import (
	"time"

	"github.com/danmuck/peersync/internal/geom"
)

const (
	DefaultBlendRestart    float32 = 0.1
	DefaultSmoothingWindow         = 50 * time.Millisecond
)

type Config struct {
	BlendRestart    float32
	SmoothingWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		BlendRestart:    DefaultBlendRestart,
		SmoothingWindow: DefaultSmoothingWindow,
	}
}

// Target is the latest received transform and the blend progress toward it.
type Target struct {
	Position geom.Vec3
	Rotation geom.Quat
	Blend    float32
	Active   bool
}

type Interpolator struct {
	cfg Config
}

func New(cfg Config) *Interpolator {
	if cfg.SmoothingWindow <= 0 {
		cfg.SmoothingWindow = DefaultSmoothingWindow
	}
	cfg.BlendRestart = geom.Clamp01(cfg.BlendRestart)
	return &Interpolator{cfg: cfg}
}

// Apply stores a new target and restarts the blend.
func (in *Interpolator) Apply(t *Target, pos geom.Vec3, rot geom.Quat) {
	t.Position = pos
	t.Rotation = rot
	t.Blend = in.cfg.BlendRestart
	t.Active = true
}

// Advance moves the blend forward by dt and returns the new rendered pose.
// With no target yet the current pose is returned unchanged.
func (in *Interpolator) Advance(t *Target, dt time.Duration, pos geom.Vec3, rot geom.Quat) (geom.Vec3, geom.Quat) {
	if !t.Active {
		return pos, rot
	}
	step := float32(dt.Seconds() / in.cfg.SmoothingWindow.Seconds())
	t.Blend = geom.Clamp01(t.Blend + step)
	return geom.Lerp(pos, t.Position, t.Blend), geom.Slerp(rot, t.Rotation, t.Blend)
}
