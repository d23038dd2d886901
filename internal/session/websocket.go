package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketOptions tunes a browser connection.
type WebSocketOptions struct {
	MaxMessageSize int64
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

func (o WebSocketOptions) withDefaults() WebSocketOptions {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 8192
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 10 * time.Second
	}
	return o
}

// WebSocketConn is a Conn over an upgraded browser connection. Each text
// or binary message becomes one chunk; outgoing frames are text messages.
type WebSocketConn struct {
	id   string
	conn *websocket.Conn
	opts WebSocketOptions
	in   *inbox

	writeMu sync.Mutex
}

var _ Conn = (*WebSocketConn)(nil)

// NewWebSocketConn wraps an upgraded connection and starts its read and
// keepalive pumps.
func NewWebSocketConn(conn *websocket.Conn, opts WebSocketOptions) *WebSocketConn {
	c := &WebSocketConn{
		id:   uuid.NewString(),
		conn: conn,
		opts: opts.withDefaults(),
		in:   newInbox(),
	}
	go c.readPump()
	go c.pingPump()
	return c
}

// ID implements Conn.
func (c *WebSocketConn) ID() string { return c.id }

// RemoteAddr implements Conn.
func (c *WebSocketConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Poll implements Conn.
func (c *WebSocketConn) Poll() ([]byte, error) {
	return c.in.poll()
}

// Write implements Conn.
func (c *WebSocketConn) Write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	//nolint:errcheck // Best-effort deadline; write error caught below
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.PongTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close implements Conn.
func (c *WebSocketConn) Close() error {
	if !c.in.shut() {
		return nil
	}
	//nolint:errcheck // Best-effort close message
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *WebSocketConn) readPump() {
	deadline := c.opts.PingInterval + c.opts.PongTimeout

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.in.fail(err)
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		if len(message) == 0 {
			continue
		}
		if !c.in.push(message) {
			c.in.fail(ErrConnClosed)
			return
		}
	}
}

// pingPump uses WriteControl, which gorilla allows concurrently with Write.
func (c *WebSocketConn) pingPump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.in.done:
			return
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.PongTimeout))
			if err != nil {
				// The read pump will see the failure and report it.
				//nolint:errcheck // Unblocks the read pump
				c.conn.Close()
				return
			}
		}
	}
}
