package protocol

import (
	"fmt"

	"github.com/danmuck/peersync/internal/geom"
)

// Kind is the leading byte of every wire message.
type Kind uint8

const (
	KindSendColor Kind = iota
	KindSetHost
	KindSendMovement
	KindParticleTrigger
	KindSpawnObject
	KindSpawnObjectRequest

	kindCount
)

// MaxNameLen is the longest object name that fits the single length byte.
const MaxNameLen = 255

const (
	floatSize = 4

	movementFixedLen = 1 + 1 + 7*floatSize
	spawnFixedLen    = 1 + 1 + 3*floatSize
)

var kindNames = [...]string{
	KindSendColor:          "send_color",
	KindSetHost:            "set_host",
	KindSendMovement:       "send_movement",
	KindParticleTrigger:    "particle_trigger",
	KindSpawnObject:        "spawn_object",
	KindSpawnObjectRequest: "spawn_object_request",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known message kind.
func (k Kind) Valid() bool {
	return k < kindCount
}

// Kinds lists every known message kind in wire order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Message is one decoded wire message. The set of implementations is closed
// to this package.
type Message interface {
	Kind() Kind
	sealed()
}

// SendColor carries a color name chosen by the sender.
type SendColor struct {
	Color string
}

// SetHost announces that the sender claimed the host role.
type SetHost struct{}

// SendMovement carries one authoritative transform for a named object.
type SendMovement struct {
	Name     string
	Position geom.Vec3
	Rotation geom.Quat
}

// ParticleTrigger fires the shared one-shot effect.
type ParticleTrigger struct{}

// SpawnObject announces a new shared object and its initial position.
type SpawnObject struct {
	Name     string
	Position geom.Vec3
}

// SpawnObjectRequest asks the host to spawn an object on the sender's behalf.
type SpawnObjectRequest struct{}

func (SendColor) Kind() Kind          { return KindSendColor }
func (SetHost) Kind() Kind            { return KindSetHost }
func (SendMovement) Kind() Kind       { return KindSendMovement }
func (ParticleTrigger) Kind() Kind    { return KindParticleTrigger }
func (SpawnObject) Kind() Kind        { return KindSpawnObject }
func (SpawnObjectRequest) Kind() Kind { return KindSpawnObjectRequest }

func (SendColor) sealed()          {}
func (SetHost) sealed()            {}
func (SendMovement) sealed()       {}
func (ParticleTrigger) sealed()    {}
func (SpawnObject) sealed()        {}
func (SpawnObjectRequest) sealed() {}
