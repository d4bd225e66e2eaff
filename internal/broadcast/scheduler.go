// Package broadcast drives the host's outbound traffic: a fixed-rate
// movement broadcast for every authoritative object and a randomized shared
// effect.
package broadcast

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/peersync/internal/protocol"
	"github.com/danmuck/peersync/internal/registry"
)

var ErrInvalidConfig = errors.New("broadcast: invalid config")

type Config struct {
	BroadcastInterval time.Duration
	EffectMin         time.Duration
	EffectMax         time.Duration
}

func DefaultConfig() Config {
	return Config{
		BroadcastInterval: 50 * time.Millisecond,
		EffectMin:         time.Second,
		EffectMax:         5 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.BroadcastInterval <= 0 {
		return fmt.Errorf("%w: broadcast interval must be > 0", ErrInvalidConfig)
	}
	if c.EffectMin <= 0 || c.EffectMax < c.EffectMin {
		return fmt.Errorf("%w: effect range [%s,%s]", ErrInvalidConfig, c.EffectMin, c.EffectMax)
	}
	return nil
}

// Sender hands one message to the transport. It must not block.
type Sender func(protocol.Message) error

// Report says what one Tick put on the wire.
type Report struct {
	Movements int
	Effect    bool
}

type Scheduler struct {
	cfg  Config
	rng  *rand.Rand
	send Sender

	sinceMove   time.Duration
	sinceEffect time.Duration
	nextEffect  time.Duration
}

func New(cfg Config, rng *rand.Rand, send Sender) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Scheduler{cfg: cfg, rng: rng, send: send}
	s.nextEffect = s.sampleEffect()
	return s, nil
}

// Tick advances both timers by dt. Nothing is sent unless active, which the
// caller sets when the session is established and this peer is host.
func (s *Scheduler) Tick(dt time.Duration, active bool, reg *registry.Registry) (Report, error) {
	var rep Report
	var errs []error

	s.sinceMove += dt
	if s.sinceMove >= s.cfg.BroadcastInterval {
		s.sinceMove = 0
		if active {
			reg.Each(func(obj *registry.Object) bool {
				if !obj.HasAuthority {
					return true
				}
				err := s.send(protocol.SendMovement{
					Name:     obj.Name,
					Position: obj.Position,
					Rotation: obj.Rotation,
				})
				if err != nil {
					errs = append(errs, fmt.Errorf("movement %q: %w", obj.Name, err))
					return true
				}
				rep.Movements++
				return true
			})
		}
	}

	s.sinceEffect += dt
	if s.sinceEffect >= s.nextEffect {
		s.sinceEffect = 0
		s.nextEffect = s.sampleEffect()
		if active {
			if err := s.send(protocol.ParticleTrigger{}); err != nil {
				errs = append(errs, fmt.Errorf("effect: %w", err))
			}
			reg.FireEffect()
			rep.Effect = true
		}
	}
	return rep, errors.Join(errs...)
}

func (s *Scheduler) sampleEffect() time.Duration {
	span := s.cfg.EffectMax - s.cfg.EffectMin
	if span <= 0 {
		return s.cfg.EffectMin
	}
	return s.cfg.EffectMin + time.Duration(s.rng.Int63n(int64(span)+1))
}
