// Package loopback joins two in-process transports back to back. It backs
// tests and the single-process demo mode of peerctl.
package loopback

import (
	"context"
	"sync"

	"github.com/danmuck/peersync/internal/transport"
)

type Transport struct {
	addr   string
	queue  *transport.Queue
	remote *Transport

	mu        sync.Mutex
	started   bool
	connected bool
	closed    bool
}

// NewPair returns two connected-on-demand endpoints named addrA and addrB.
func NewPair(addrA, addrB string, cfg transport.Config) (*Transport, *Transport) {
	a := &Transport{addr: addrA, queue: transport.NewQueue(cfg.EventBuffer)}
	b := &Transport{addr: addrB, queue: transport.NewQueue(cfg.EventBuffer)}
	a.remote, b.remote = b, a
	return a, b
}

func (t *Transport) Addr() string { return t.addr }

// Start announces the other endpoint as discovered.
func (t *Transport) Start(context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.started = true
	t.mu.Unlock()
	t.queue.TryEmit(transport.Event{Kind: transport.EventPeerDiscovered, Addr: t.remote.addr})
	return nil
}

// Connect links both ends and reports EventConnected on each.
func (t *Transport) Connect(context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	already := t.connected
	t.connected = true
	t.mu.Unlock()
	if already {
		return nil
	}

	r := t.remote
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		t.queue.TryEmit(transport.Event{Kind: transport.EventDisconnected, Addr: r.addr, Err: transport.ErrClosed})
		return nil
	}
	r.connected = true
	r.mu.Unlock()

	t.queue.TryEmit(transport.Event{Kind: transport.EventConnected, Addr: r.addr})
	r.queue.TryEmit(transport.Event{Kind: transport.EventConnected, Addr: t.addr})
	return nil
}

func (t *Transport) Send(payload []byte) error {
	t.mu.Lock()
	ok := t.connected && !t.closed
	t.mu.Unlock()
	if !ok {
		return transport.ErrNotConnected
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	if !t.remote.queue.TryEmit(transport.Event{Kind: transport.EventBytesReceived, Addr: t.addr, Payload: buf}) {
		return transport.ErrBackpressure
	}
	return nil
}

func (t *Transport) Events() <-chan transport.Event {
	return t.queue.Events()
}

// Drop severs the link, reporting err to both ends.
func (t *Transport) Drop(err error) {
	t.mu.Lock()
	was := t.connected
	t.connected = false
	t.mu.Unlock()

	r := t.remote
	r.mu.Lock()
	rwas := r.connected
	r.connected = false
	r.mu.Unlock()

	if was {
		t.queue.TryEmit(transport.Event{Kind: transport.EventDisconnected, Addr: r.addr, Err: err})
	}
	if rwas {
		r.queue.TryEmit(transport.Event{Kind: transport.EventDisconnected, Addr: t.addr, Err: err})
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	t.Drop(transport.ErrClosed)
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.queue.Close()
	return nil
}

var _ transport.Transport = (*Transport)(nil)
