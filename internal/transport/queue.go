package transport

import "sync"

// Queue buffers inbound events until the tick drains them. Emit blocks the
// producing I/O goroutine when the buffer is full rather than dropping, so
// per-direction ordering survives a slow tick.
type Queue struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultConfig().EventBuffer
	}
	return &Queue{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
}

// Emit reports false once the queue is closed.
func (q *Queue) Emit(ev Event) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- ev:
		return true
	case <-q.done:
		return false
	}
}

// TryEmit is Emit without blocking; it reports false when the buffer is
// full or the queue is closed.
func (q *Queue) TryEmit(ev Event) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- ev:
		return true
	default:
		return false
	}
}

func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Close stops further emits. The channel itself stays open so a reader in a
// select never sees a spurious zero Event.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

// Drain returns every event buffered right now without blocking.
func Drain(events <-chan Event, limit int) []Event {
	var out []Event
	for limit <= 0 || len(out) < limit {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
	return out
}
