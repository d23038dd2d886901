package session

import (
	"context"
	"errors"
	"net"
	"time"
)

// DefaultBacklogSize is the number of accepted connections that may wait
// for the dispatch loop.
const DefaultBacklogSize = 64

// acceptRetryDelay is the pause after a transient Accept error.
const acceptRetryDelay = 50 * time.Millisecond

// Backlog queues freshly accepted connections until the dispatch loop
// registers them.
type Backlog struct {
	pending chan Conn
	logger  Logger
}

// NewBacklog creates a backlog holding up to size connections.
// A non-positive size uses DefaultBacklogSize.
func NewBacklog(size int) *Backlog {
	if size <= 0 {
		size = DefaultBacklogSize
	}
	return &Backlog{
		pending: make(chan Conn, size),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the backlog.
func (b *Backlog) SetLogger(logger Logger) {
	b.logger = logger
}

// Offer queues a connection. When the backlog is full the connection is
// closed and ErrBacklogFull returned; Offer never blocks.
func (b *Backlog) Offer(c Conn) error {
	select {
	case b.pending <- c:
		return nil
	default:
		b.logger.Warn("backlog full, refusing client", "remote", c.RemoteAddr())
		//nolint:errcheck // Refused connection, nothing to report
		c.Close()
		return ErrBacklogFull
	}
}

// TryAccept returns a pending connection if one is waiting.
func (b *Backlog) TryAccept() (Conn, bool) {
	select {
	case c := <-b.pending:
		return c, true
	default:
		return nil, false
	}
}

// Pending returns the number of connections waiting.
func (b *Backlog) Pending() int {
	return len(b.pending)
}

// Drain closes every connection still waiting. Called during shutdown.
func (b *Backlog) Drain() {
	for {
		c, ok := b.TryAccept()
		if !ok {
			return
		}
		//nolint:errcheck // Shutdown, nothing to report
		c.Close()
	}
}

// Serve accepts stream connections from ln and offers them to the backlog
// until ctx is cancelled. The listener is closed when Serve returns.
func (b *Backlog) Serve(ctx context.Context, ln net.Listener, writeTimeout time.Duration) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		//nolint:errcheck // Unblocks Accept
		ln.Close()
	}()

	b.logger.Info("accepting clients", "address", ln.Addr().String())

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			b.logger.Warn("accept failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		c := NewStreamConn(nc, writeTimeout)
		b.logger.Debug("client accepted", "id", c.ID(), "remote", c.RemoteAddr())
		//nolint:errcheck // Offer logs and closes on overflow
		b.Offer(c)
	}
}
