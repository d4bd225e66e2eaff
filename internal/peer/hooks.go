package peer

import (
	"github.com/danmuck/peersync/internal/geom"
	"github.com/danmuck/peersync/internal/protocol"
)

// Hooks are the outward notifications a renderer or UI binds to. They run
// synchronously inside the tick and must not block or call back into the
// Peer other than through Do.
type Hooks interface {
	OnSetColor(color protocol.Color, name string)
	OnAuthorityChanged(isHost bool)
	OnObjectSpawned(name string, pos geom.Vec3)
	OnObjectMoved(name string, pos geom.Vec3, rot geom.Quat)
	OnEffectTriggered()
	OnPeerDiscovered(addr string)
	OnConnected()
	OnConnectionLost(err error)
}

// NopHooks ignores every notification. Embed it to override a few.
type NopHooks struct{}

func (NopHooks) OnSetColor(protocol.Color, string)          {}
func (NopHooks) OnAuthorityChanged(bool)                    {}
func (NopHooks) OnObjectSpawned(string, geom.Vec3)          {}
func (NopHooks) OnObjectMoved(string, geom.Vec3, geom.Quat) {}
func (NopHooks) OnEffectTriggered()                         {}
func (NopHooks) OnPeerDiscovered(string)                    {}
func (NopHooks) OnConnected()                               {}
func (NopHooks) OnConnectionLost(error)                     {}
