package session

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// readChunkSize is the largest chunk a single read hands to the poller.
const readChunkSize = 512

// DefaultWriteTimeout bounds how long one slow client can hold a broadcast.
const DefaultWriteTimeout = 2 * time.Second

// StreamConn is a Conn over a byte stream such as a TCP socket.
type StreamConn struct {
	id           string
	conn         net.Conn
	writeTimeout time.Duration
	in           *inbox
}

var _ Conn = (*StreamConn)(nil)

// NewStreamConn wraps conn and starts its read pump.
// A zero writeTimeout uses DefaultWriteTimeout.
func NewStreamConn(conn net.Conn, writeTimeout time.Duration) *StreamConn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	c := &StreamConn{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
		in:           newInbox(),
	}
	go c.readPump()
	return c
}

// ID implements Conn.
func (c *StreamConn) ID() string { return c.id }

// RemoteAddr implements Conn.
func (c *StreamConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Poll implements Conn.
func (c *StreamConn) Poll() ([]byte, error) {
	return c.in.poll()
}

// Write implements Conn.
func (c *StreamConn) Write(frame []byte) error {
	//nolint:errcheck // Best-effort deadline; write error caught below
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	_, err := c.conn.Write(frame)
	return err
}

// Close implements Conn.
func (c *StreamConn) Close() error {
	if !c.in.shut() {
		return nil
	}
	return c.conn.Close()
}

func (c *StreamConn) readPump() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !c.in.push(chunk) {
				c.in.fail(ErrConnClosed)
				return
			}
		}
		if err != nil {
			c.in.fail(err)
			return
		}
	}
}
