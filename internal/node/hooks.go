package node

import (
	"github.com/danmuck/peersync/internal/geom"
	"github.com/danmuck/peersync/internal/peer"
	"github.com/danmuck/peersync/internal/protocol"
	"github.com/rs/zerolog"
)

// LogHooks renders peer notifications as log lines for headless processes.
// Per-tick movement is logged at trace level only.
type LogHooks struct {
	log zerolog.Logger
}

var _ peer.Hooks = LogHooks{}

func NewLogHooks(logger zerolog.Logger) LogHooks {
	return LogHooks{log: logger}
}

func (h LogHooks) OnSetColor(c protocol.Color, name string) {
	h.log.Info().Str("color", c.String()).Str("name", name).Msg("color applied")
}

func (h LogHooks) OnAuthorityChanged(isHost bool) {
	h.log.Info().Bool("host", isHost).Msg("authority assigned")
}

func (h LogHooks) OnObjectSpawned(name string, pos geom.Vec3) {
	h.log.Info().Str("object", name).
		Float32("x", pos.X).Float32("y", pos.Y).Float32("z", pos.Z).
		Msg("object spawned")
}

func (h LogHooks) OnObjectMoved(name string, pos geom.Vec3, _ geom.Quat) {
	h.log.Trace().Str("object", name).
		Float32("x", pos.X).Float32("y", pos.Y).Float32("z", pos.Z).
		Msg("object moved")
}

func (h LogHooks) OnEffectTriggered() {
	h.log.Info().Msg("effect triggered")
}

func (h LogHooks) OnPeerDiscovered(addr string) {
	h.log.Info().Str("addr", addr).Msg("peer discovered")
}

func (h LogHooks) OnConnected() {
	h.log.Info().Msg("peer connected")
}

func (h LogHooks) OnConnectionLost(err error) {
	h.log.Warn().Err(err).Msg("peer connection lost")
}
