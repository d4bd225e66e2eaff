package peer

import (
	"fmt"

	"github.com/danmuck/peersync/internal/geom"
	"github.com/danmuck/peersync/internal/protocol"
	"github.com/danmuck/peersync/internal/registry"
)

// dispatch applies one decoded message. Every protocol message type has a
// case; reaching default means a type was added without a handler.
func (p *Peer) dispatch(msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.SendColor:
		p.lastColor = m.Color
		p.hooks.OnSetColor(protocol.ParseColor(m.Color), m.Color)
		return nil
	case protocol.SetHost:
		return p.acceptHost()
	case protocol.SendMovement:
		return p.applyMovement(m)
	case protocol.ParticleTrigger:
		p.reg.FireEffect()
		p.hooks.OnEffectTriggered()
		return nil
	case protocol.SpawnObject:
		return p.acceptSpawn(m)
	case protocol.SpawnObjectRequest:
		if !p.session.IsHost() {
			return fmt.Errorf("%w: spawn request as %s", ErrNotHost, p.session.Role)
		}
		_, err := p.spawnAuthoritative()
		return err
	default:
		return fmt.Errorf("%w: %T", ErrUnhandledMessage, msg)
	}
}

func (p *Peer) acceptHost() error {
	if err := p.session.AcceptHost(); err != nil {
		return err
	}
	p.log.Info().Str("role", p.session.Role.String()).Msg("session established")
	p.assignAuthority(false)
	return nil
}

func (p *Peer) applyMovement(m protocol.SendMovement) error {
	obj, err := p.reg.Lookup(m.Name)
	if err != nil {
		return err
	}
	if obj.HasAuthority {
		return fmt.Errorf("%w: %q", ErrAuthorityClash, m.Name)
	}
	p.interp.Apply(&obj.Replica, m.Position, m.Rotation)
	return nil
}

// acceptSpawn registers an object announced by the authoritative side.
func (p *Peer) acceptSpawn(m protocol.SpawnObject) error {
	obj := &registry.Object{
		Name:     m.Name,
		Position: m.Position,
		Rotation: geom.Identity(),
	}
	if err := p.reg.Insert(obj); err != nil {
		return err
	}
	p.log.Info().Str("object", m.Name).Msg("replica spawned")
	p.hooks.OnObjectSpawned(m.Name, m.Position)
	return nil
}
