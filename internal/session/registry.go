package session

import (
	"sync"
	"time"

	"github.com/nerrad567/propctl/internal/protocol"
)

// Logger defines the logging interface used by the session package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Acceptor yields pending connections without blocking.
type Acceptor interface {
	TryAccept() (Conn, bool)
}

// Registry is the set of live client connections.
//
// Thread Safety: all methods are safe for concurrent use. Broadcasts are
// serialised with each other but write outside the client-set lock, so a
// stalled peer delays the next broadcast and never PollReads or AcceptNew.
type Registry struct {
	// writeMu keeps concurrent broadcasts from interleaving frames.
	writeMu sync.Mutex

	mu            sync.Mutex
	clients       []Conn
	lastBroadcast time.Time
	now           func() time.Time
	logger        Logger
}

// NewRegistry creates an empty registry. The broadcast clock starts now,
// so the first heartbeat is due one interval after startup.
func NewRegistry() *Registry {
	return &Registry{
		clients:       make([]Conn, 0, 8),
		now:           time.Now,
		lastBroadcast: time.Now(),
		logger:        noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// SetClock replaces the time source and restarts the broadcast clock.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	r.lastBroadcast = now()
}

// Add registers a connection directly.
func (r *Registry) Add(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, c)
	r.logger.Info("client connected", "id", c.ID(), "remote", c.RemoteAddr(), "clients", len(r.clients))
}

// AcceptNew registers at most one pending connection from src.
// It reports whether a connection was added.
func (r *Registry) AcceptNew(src Acceptor) bool {
	c, ok := src.TryAccept()
	if !ok {
		return false
	}
	r.Add(c)
	return true
}

// Broadcast writes frame to every client. Clients whose write fails are
// closed and removed; the rest still receive the frame.
//
// Each write is bounded by the connection's write deadline, so a stalled
// peer holds a broadcast for at most that long before it is evicted.
//
// Parameters:
//   - frame: encoded frame, sent unchanged to every client
//
// Returns:
//   - int: number of clients the frame reached
func (r *Registry) Broadcast(frame []byte) int {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.broadcast(frame)
}

// BroadcastState encodes states as a state frame, broadcasts it and
// restarts the heartbeat clock.
func (r *Registry) BroadcastState(states []int) int {
	frame := protocol.EncodeStateFrame(states)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	n := r.broadcast(frame)

	r.mu.Lock()
	r.lastBroadcast = r.now()
	r.mu.Unlock()
	return n
}

// removal is a client that failed and why.
type removal struct {
	conn Conn
	op   string
	err  error
}

// broadcast writes to a snapshot of the client set taken under r.mu and
// evicts the failures afterwards. Callers hold writeMu.
func (r *Registry) broadcast(frame []byte) int {
	r.mu.Lock()
	targets := append([]Conn(nil), r.clients...)
	r.mu.Unlock()

	delivered := 0
	var failed []removal
	for _, c := range targets {
		if err := c.Write(frame); err != nil {
			failed = append(failed, removal{conn: c, op: "write", err: err})
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		r.evict(failed)
	}
	return delivered
}

// PollReads collects what each client has sent since the last call, at
// most one inbox worth per client. Clients that report a read failure or
// end of stream are removed.
func (r *Registry) PollReads() []Inbound {
	r.mu.Lock()
	var reads []Inbound
	var failed []removal
	for _, c := range r.clients {
		for n := 0; n < inboxSize; n++ {
			data, err := c.Poll()
			if err != nil {
				failed = append(failed, removal{conn: c, op: "read", err: err})
				break
			}
			if data == nil {
				break
			}
			if len(data) > 0 {
				reads = append(reads, Inbound{Conn: c, Data: data})
			}
		}
	}
	r.mu.Unlock()

	if len(failed) > 0 {
		r.evict(failed)
	}
	return reads
}

// evict removes each failed client that is still registered, then closes
// it outside the lock and logs the size the registry is left with. A
// client already removed by another caller is skipped.
func (r *Registry) evict(failed []removal) {
	r.mu.Lock()
	removed := failed[:0]
	for _, f := range failed {
		if r.removeLocked(f.conn) {
			removed = append(removed, f)
		}
	}
	remaining := len(r.clients)
	logger := r.logger
	r.mu.Unlock()

	for _, f := range removed {
		//nolint:errcheck // Connection already failed
		f.conn.Close()
		logger.Info("client removed",
			"id", f.conn.ID(),
			"remote", f.conn.RemoteAddr(),
			"op", f.op,
			"error", f.err,
			"clients", remaining,
		)
	}
}

func (r *Registry) removeLocked(c Conn) bool {
	for i, existing := range r.clients {
		if existing != c {
			continue
		}
		last := len(r.clients) - 1
		copy(r.clients[i:], r.clients[i+1:])
		r.clients[last] = nil
		r.clients = r.clients[:last]
		return true
	}
	return false
}

// Has reports whether a client with id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.ID() == id {
			return true
		}
	}
	return false
}

// LastBroadcast returns when a state frame was last broadcast.
func (r *Registry) LastBroadcast() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastBroadcast
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CloseAll closes and forgets every client.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		//nolint:errcheck // Shutdown, nothing to report
		c.Close()
	}
	clear(r.clients)
	r.clients = r.clients[:0]
	r.logger.Info("all clients closed")
}
