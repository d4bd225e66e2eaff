package transport

import (
	"sync"

	"github.com/rs/zerolog"
)

// Conn is one established message-oriented connection. Stream backends wrap
// their socket so ReadMessage returns exactly one protocol message.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
	RemoteAddr() string
	Close() error
}

// Link owns at most one Conn at a time and pumps it in both directions.
// Inbound messages and state changes land on the shared Queue.
type Link struct {
	queue      *Queue
	log        zerolog.Logger
	sendBuffer int

	mu   sync.Mutex
	conn Conn
	out  chan []byte
	wg   sync.WaitGroup
}

func NewLink(queue *Queue, sendBuffer int, logger zerolog.Logger) *Link {
	if sendBuffer <= 0 {
		sendBuffer = DefaultConfig().SendBuffer
	}
	return &Link{queue: queue, log: logger, sendBuffer: sendBuffer}
}

// Attach adopts c and reports EventConnected. A second connection while one
// is live is refused: a session only ever has one peer.
func (l *Link) Attach(c Conn) bool {
	l.mu.Lock()
	if l.conn != nil {
		l.mu.Unlock()
		l.log.Warn().Str("remote", c.RemoteAddr()).Msg("refusing second peer connection")
		_ = c.Close()
		return false
	}
	out := make(chan []byte, l.sendBuffer)
	l.conn = c
	l.out = out
	l.wg.Add(2)
	l.mu.Unlock()

	l.log.Info().Str("remote", c.RemoteAddr()).Msg("peer connected")
	l.queue.Emit(Event{Kind: EventConnected, Addr: c.RemoteAddr()})
	go l.writeLoop(c, out)
	go l.readLoop(c)
	return true
}

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Send queues payload for the write pump without blocking.
func (l *Link) Send(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return ErrNotConnected
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case l.out <- buf:
		return nil
	default:
		return ErrBackpressure
	}
}

// Detach drops the current connection, if any, and reports err upward.
func (l *Link) Detach(err error) {
	l.mu.Lock()
	c := l.conn
	l.mu.Unlock()
	if c != nil {
		l.detach(c, err)
	}
}

// Wait blocks until both pumps of the last connection have exited.
func (l *Link) Wait() {
	l.wg.Wait()
}

func (l *Link) detach(c Conn, err error) {
	l.mu.Lock()
	if l.conn != c {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	close(l.out)
	l.out = nil
	l.mu.Unlock()

	_ = c.Close()
	l.log.Info().Str("remote", c.RemoteAddr()).Err(err).Msg("peer disconnected")
	l.queue.Emit(Event{Kind: EventDisconnected, Addr: c.RemoteAddr(), Err: err})
}

func (l *Link) readLoop(c Conn) {
	defer l.wg.Done()
	for {
		payload, err := c.ReadMessage()
		if err != nil {
			l.detach(c, err)
			return
		}
		if !l.queue.Emit(Event{Kind: EventBytesReceived, Addr: c.RemoteAddr(), Payload: payload}) {
			l.detach(c, ErrClosed)
			return
		}
	}
}

func (l *Link) writeLoop(c Conn, out <-chan []byte) {
	defer l.wg.Done()
	for payload := range out {
		if err := c.WriteMessage(payload); err != nil {
			l.detach(c, err)
			// keep draining so detach's close(out) ends the loop
			for range out {
			}
			return
		}
	}
}
