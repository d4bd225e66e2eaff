// Package transport is the boundary between the sync core and whatever moves
// bytes between the two peers. The core only sees Transport and Event; each
// backend lives in its own subpackage.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrClosed       = errors.New("transport: closed")
	ErrNoPeer       = errors.New("transport: no peer address")
	ErrBackpressure = errors.New("transport: send buffer full")
)

type EventKind uint8

const (
	EventPeerDiscovered EventKind = iota
	EventConnected
	EventBytesReceived
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventPeerDiscovered:
		return "peer_discovered"
	case EventConnected:
		return "connected"
	case EventBytesReceived:
		return "bytes_received"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one inbound notification. Payload is set only for
// EventBytesReceived and is owned by the receiver.
type Event struct {
	Kind    EventKind
	Addr    string
	Payload []byte
	Err     error
}

// Transport carries whole protocol messages between exactly two peers.
//
// Connect and Send never block on the network: the outcome of Connect
// arrives later as EventConnected or EventDisconnected, and Send is
// fire-and-forget once connected.
type Transport interface {
	Start(ctx context.Context) error
	Connect(ctx context.Context) error
	Send(payload []byte) error
	Events() <-chan Event
	Close() error
}

// Config is shared by every backend.
type Config struct {
	EventBuffer  int
	SendBuffer   int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Backoff      BackoffConfig
	MaxAttempts  int
}

func DefaultConfig() Config {
	return Config{
		EventBuffer:  256,
		SendBuffer:   256,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		MaxAttempts: 5,
	}
}
