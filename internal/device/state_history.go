package device

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State history source values.
const (
	StateHistorySourceSerial   = "serial"
	StateHistorySourceClient   = "client"
	StateHistorySourceSnapshot = "snapshot"
	StateHistorySourceZone     = "zone"
)

// historyQueueSize bounds the number of unwritten entries.
const historyQueueSize = 256

// StateHistoryEntry records the full state array after a change.
type StateHistoryEntry struct {
	ID int64 `json:"id"`

	// Device is the 1-based device that changed, or 0 for a full snapshot.
	Device int `json:"device"`

	// States is the complete array after the change.
	States []int `json:"states"`

	// Source identifies how the change arrived.
	Source string `json:"source"`

	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository persists state history entries.
type StateHistoryRepository interface {
	// RecordStateChange stores one entry. ID and CreatedAt are assigned
	// by the repository.
	RecordStateChange(ctx context.Context, entry StateHistoryEntry) error

	// GetHistory returns the most recent entries, newest first.
	GetHistory(ctx context.Context, limit int) ([]StateHistoryEntry, error)
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// HistoryRecorder queues state changes and writes them from a single
// worker goroutine. Record never blocks; when the queue is full the entry
// is dropped and counted.
type HistoryRecorder struct {
	repo   StateHistoryRepository
	logger Logger

	mu     sync.RWMutex // guards closed and the send side of queue
	closed bool
	queue  chan StateHistoryEntry
	wg     sync.WaitGroup

	dropped atomic.Uint64
}

// NewHistoryRecorder creates a recorder and starts its worker.
func NewHistoryRecorder(repo StateHistoryRepository, logger Logger) *HistoryRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	r := &HistoryRecorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan StateHistoryEntry, historyQueueSize),
	}

	r.wg.Add(1)
	go r.worker()
	return r
}

// Record queues an entry. device is 1-based, 0 for a snapshot.
func (r *HistoryRecorder) Record(device int, states []int, source string) {
	entry := StateHistoryEntry{
		Device: device,
		States: append([]int(nil), states...),
		Source: source,
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- entry:
	default:
		r.dropped.Add(1)
	}
}

// StateChanged records a change observed by the controller.
func (r *HistoryRecorder) StateChanged(change StateChange) {
	r.Record(change.Device, change.States, change.Source)
}

// Dropped returns how many entries were discarded because the queue was full.
func (r *HistoryRecorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting entries, flushes the queue and waits for the worker.
func (r *HistoryRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *HistoryRecorder) worker() {
	defer r.wg.Done()

	for entry := range r.queue {
		if err := r.repo.RecordStateChange(context.Background(), entry); err != nil {
			r.logger.Warn("state history write failed", "source", entry.Source, "error", err)
		}
	}
}
