package session

import (
	"io"
	"sync"
)

// Conn is one connected display client.
type Conn interface {
	// ID is assigned by the transport and carries no meaning beyond logs.
	ID() string

	// RemoteAddr is the peer address, for logs.
	RemoteAddr() string

	// Poll returns the next received chunk without blocking. It returns
	// (nil, nil) when nothing is pending and a non-nil error once the
	// connection has failed or reached end of stream.
	Poll() ([]byte, error)

	// Write sends one frame.
	Write(frame []byte) error

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Inbound is a chunk read from a client.
type Inbound struct {
	Conn Conn
	Data []byte
}

// inboxSize is the number of unread chunks buffered per connection.
const inboxSize = 32

// inbox carries chunks from a read pump to Poll. The pump records its
// terminal error before closing ch, so Poll sees it once ch is drained.
type inbox struct {
	ch      chan []byte
	done    chan struct{}
	once    sync.Once
	readErr error
}

func newInbox() *inbox {
	return &inbox{
		ch:   make(chan []byte, inboxSize),
		done: make(chan struct{}),
	}
}

// push hands a chunk to the poller. It returns false once the connection
// is closed so the pump can exit.
func (b *inbox) push(chunk []byte) bool {
	select {
	case b.ch <- chunk:
		return true
	case <-b.done:
		return false
	}
}

// fail is called by the pump, exactly once, when reading stops.
func (b *inbox) fail(err error) {
	if err == nil {
		err = io.EOF
	}
	b.readErr = err
	close(b.ch)
}

func (b *inbox) poll() ([]byte, error) {
	select {
	case <-b.done:
		return nil, ErrConnClosed
	default:
	}

	select {
	case chunk, ok := <-b.ch:
		if !ok {
			return nil, b.readErr
		}
		return chunk, nil
	default:
		return nil, nil
	}
}

// shut unblocks the pump. It reports whether this call did the shutting.
func (b *inbox) shut() bool {
	first := false
	b.once.Do(func() {
		close(b.done)
		first = true
	})
	return first
}
