package peer

import (
	"fmt"
	"strconv"

	"github.com/danmuck/peersync/internal/motion"
	"github.com/danmuck/peersync/internal/protocol"
	"github.com/danmuck/peersync/internal/registry"
	"github.com/danmuck/peersync/internal/session"
	"github.com/danmuck/peersync/internal/transport"
)

// The methods below mutate tick-owned state. Call them from inside Tick
// (hooks, Do) or from the goroutine that drives Tick.

// BecomeHost claims the host role and announces it with SetHost. It requires
// a live connection: without one it returns transport.ErrNotConnected and the
// session stays undecided. Once a role is settled it returns
// session.ErrAlreadyEstablished.
func (p *Peer) BecomeHost() error {
	if p.session.Established {
		return session.ErrAlreadyEstablished
	}
	if !p.connected {
		return transport.ErrNotConnected
	}
	if err := p.send(protocol.SetHost{}); err != nil {
		return fmt.Errorf("send set_host: %w", err)
	}
	if err := p.session.ClaimHost(); err != nil {
		return err
	}
	p.log.Info().Str("role", p.session.Role.String()).Msg("session established")
	p.assignAuthority(true)
	return nil
}

// SpawnLocal creates an object on the host, or asks the host to when this
// side is the client. It returns the new name on the host, "" otherwise.
func (p *Peer) SpawnLocal() (string, error) {
	if !p.session.Established {
		return "", ErrNotEstablished
	}
	if p.session.IsHost() {
		return p.spawnAuthoritative()
	}
	if err := p.send(protocol.SpawnObjectRequest{}); err != nil {
		return "", fmt.Errorf("send spawn request: %w", err)
	}
	p.log.Debug().Msg("spawn requested from host")
	return "", nil
}

// SendColor picks a palette color, applies it locally and sends it.
func (p *Peer) SendColor() (string, error) {
	name := protocol.Palette[p.rng.Intn(len(protocol.Palette))]
	p.lastColor = name
	p.hooks.OnSetColor(protocol.ParseColor(name), name)
	if err := p.send(protocol.SendColor{Color: name}); err != nil {
		return name, fmt.Errorf("send color: %w", err)
	}
	return name, nil
}

// Connect asks the transport to reach the discovered peer. The outcome
// arrives as a later event.
func (p *Peer) Connect() error {
	return p.tr.Connect(p.ctx)
}

// spawnAuthoritative registers a new owned object at the next spawn slot and
// announces it. The sequence number is consumed even on a name collision.
func (p *Peer) spawnAuthoritative() (string, error) {
	name := p.cfg.NameBase + strconv.Itoa(p.spawnSeq)
	p.spawnSeq++
	pos := p.nextSpawn

	obj := &registry.Object{
		Name:         name,
		Position:     pos,
		HasAuthority: true,
		Motion:       motion.NewState(pos, p.cfg.Motion, p.rng),
	}
	obj.Rotation = obj.Motion.Pose(p.cfg.Motion)
	if err := p.reg.Insert(obj); err != nil {
		return "", err
	}
	p.nextSpawn = p.nextSpawn.Add(p.cfg.SpawnStep)

	p.log.Info().Str("object", name).Msg("object spawned")
	p.hooks.OnObjectSpawned(name, pos)
	if err := p.send(protocol.SpawnObject{Name: name, Position: pos}); err != nil {
		p.log.Warn().Str("object", name).Err(err).Msg("spawn announce failed")
	}
	return name, nil
}

// assignAuthority re-derives authority for everything registered when the
// role settles. Newly owned objects start their motion from where they are.
func (p *Peer) assignAuthority(isHost bool) {
	p.reg.AssignAuthority(isHost)
	if isHost {
		p.reg.Each(func(obj *registry.Object) bool {
			if obj.Motion == (motion.State{}) {
				obj.Motion = motion.NewState(obj.Position, p.cfg.Motion, p.rng)
			}
			obj.Replica.Active = false
			return true
		})
	}
	p.hooks.OnAuthorityChanged(isHost)
}
