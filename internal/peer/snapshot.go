package peer

import (
	"github.com/danmuck/peersync/internal/geom"
	"github.com/danmuck/peersync/internal/registry"
)

// ObjectView is a read-only copy of one registry entry.
type ObjectView struct {
	Name         string    `json:"name"`
	Position     geom.Vec3 `json:"position"`
	Rotation     geom.Quat `json:"rotation"`
	HasAuthority bool      `json:"has_authority"`
	Effects      uint64    `json:"effects"`
	Blend        float32   `json:"blend"`
}

// Snapshot is the state published at the end of every tick. It is never
// mutated after publication.
type Snapshot struct {
	Peer        string       `json:"peer"`
	Role        string       `json:"role"`
	Established bool         `json:"established"`
	Connected   bool         `json:"connected"`
	PeerAddr    string       `json:"peer_addr,omitempty"`
	Discovered  string       `json:"discovered,omitempty"`
	Color       string       `json:"color,omitempty"`
	Tick        uint64       `json:"tick"`
	Objects     []ObjectView `json:"objects"`
}

// Snapshot returns the most recently published state. Safe from any goroutine.
func (p *Peer) Snapshot() *Snapshot {
	return p.snap.Load()
}

// Object finds one object in the latest snapshot.
func (s *Snapshot) Object(name string) (ObjectView, bool) {
	for _, o := range s.Objects {
		if o.Name == name {
			return o, true
		}
	}
	return ObjectView{}, false
}

func (p *Peer) publish() {
	s := &Snapshot{
		Peer:        p.cfg.Name,
		Role:        p.session.Role.String(),
		Established: p.session.Established,
		Connected:   p.connected,
		PeerAddr:    p.peerAddr,
		Discovered:  p.discovered,
		Color:       p.lastColor,
		Tick:        p.ticks,
		Objects:     make([]ObjectView, 0, p.reg.Len()),
	}
	p.reg.Each(func(obj *registry.Object) bool {
		s.Objects = append(s.Objects, ObjectView{
			Name:         obj.Name,
			Position:     obj.Position,
			Rotation:     obj.Rotation,
			HasAuthority: obj.HasAuthority,
			Effects:      obj.Effects,
			Blend:        obj.Replica.Blend,
		})
		return true
	})
	p.snap.Store(s)
}
