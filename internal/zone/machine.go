package zone

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// record is the lock and handler for one zone.
type record struct {
	id      int
	name    string
	seq     Sequence
	running atomic.Bool
	lastRun atomic.Pointer[Run]
}

// Machine owns the per-zone locks and launches sequences.
//
// Thread Safety: all methods are safe for concurrent use. Registration is
// expected before the first Trigger.
type Machine struct {
	mu    sync.RWMutex
	zones []*record // index is zone ID; slot 0 unused

	wg       sync.WaitGroup
	stopping bool // guarded by mu
	base     context.Context
	observer Observer
	logger   Logger
	now      func() time.Time
}

// NewMachine creates a machine with no zones.
func NewMachine() *Machine {
	return &Machine{
		zones:    make([]*record, 1),
		base:     context.Background(),
		observer: noopObserver{},
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the machine.
func (m *Machine) SetLogger(logger Logger) {
	m.logger = logger
}

// SetObserver sets the observer notified of run starts and finishes.
func (m *Machine) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	m.observer = o
}

// Register installs the sequence for zone id. IDs start at 1.
func (m *Machine) Register(id int, name string, seq Sequence) error {
	if id < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidZone, id)
	}
	if seq == nil {
		return fmt.Errorf("%w: zone %d has no sequence", ErrInvalidZone, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.zones) <= id {
		m.zones = append(m.zones, nil)
	}
	if m.zones[id] != nil {
		return fmt.Errorf("%w: %d", ErrZoneExists, id)
	}
	if name == "" {
		name = fmt.Sprintf("zone %d", id)
	}
	m.zones[id] = &record{id: id, name: name, seq: seq}
	return nil
}

func (m *Machine) lookup(id int) (*record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 1 || id >= len(m.zones) || m.zones[id] == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownZone, id)
	}
	return m.zones[id], nil
}

// Trigger starts zone id's sequence unless it is already running.
// Trigger never waits for the sequence.
//
// Parameters:
//   - id: Zone ID as carried by "@ZSA<id>?"
//   - source: Who asked (serial, client, api, mqtt), recorded on the run
//
// Returns:
//   - string: ID of the new run
//   - error: ErrZoneBusy if the request was dropped, ErrUnknownZone, or
//     ErrStopping once Drain has begun
func (m *Machine) Trigger(id int, source string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stopping {
		return "", ErrStopping
	}
	if id < 1 || id >= len(m.zones) || m.zones[id] == nil {
		return "", fmt.Errorf("%w: %d", ErrUnknownZone, id)
	}
	z := m.zones[id]

	if !z.running.CompareAndSwap(false, true) {
		m.logger.Debug("zone trigger dropped, already running", "zone", id, "source", source)
		return "", fmt.Errorf("%w: %d", ErrZoneBusy, id)
	}

	run := Run{
		ID:        uuid.NewString(),
		Zone:      id,
		ZoneName:  z.name,
		Source:    source,
		Status:    StatusRunning,
		StartedAt: m.now().UTC(),
	}

	m.wg.Add(1)
	go m.execute(z, run)

	return run.ID, nil
}

// execute runs one sequence. The deferred release runs last, after the
// run is recorded, so an observer never sees the zone idle mid-run.
func (m *Machine) execute(z *record, run Run) {
	defer m.wg.Done()
	defer z.running.Store(false)

	var seqErr error
	defer func() {
		if r := recover(); r != nil {
			seqErr = fmt.Errorf("panic: %v", r)
		}
		m.finish(z, run, seqErr)
	}()

	m.logger.Info("zone sequence started", "zone", z.id, "name", z.name, "run_id", run.ID, "source", run.Source)
	m.observe("started", run, m.observer.ZoneStarted)

	seqErr = z.seq(m.base)
}

// observe hands run to fn. An observer panic is logged and never reaches
// the sequence or the zone lock.
func (m *Machine) observe(event string, run Run, fn func(Run)) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("zone observer panicked",
				"event", event,
				"zone", run.Zone,
				"run_id", run.ID,
				"panic", r,
			)
		}
	}()
	fn(run)
}

func (m *Machine) finish(z *record, run Run, seqErr error) {
	finished := m.now().UTC()
	duration := finished.Sub(run.StartedAt).Milliseconds()
	run.FinishedAt = &finished
	run.DurationMS = &duration
	run.Status = StatusCompleted

	if seqErr != nil {
		run.Status = StatusFailed
		run.Error = seqErr.Error()
		m.logger.Error("zone sequence failed",
			"zone", z.id,
			"run_id", run.ID,
			"error", seqErr,
			"duration_ms", duration,
		)
	} else {
		m.logger.Info("zone sequence complete",
			"zone", z.id,
			"run_id", run.ID,
			"duration_ms", duration,
		)
	}

	z.lastRun.Store(&run)
	m.observe("finished", run, m.observer.ZoneFinished)
}

// IsRunning reports whether zone id's sequence is in progress.
func (m *Machine) IsRunning(id int) bool {
	z, err := m.lookup(id)
	if err != nil {
		return false
	}
	return z.running.Load()
}

// Status returns the current state of zone id.
func (m *Machine) Status(id int) (Status, error) {
	z, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	return z.status(), nil
}

// Statuses returns every registered zone in ID order.
func (m *Machine) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.zones))
	for _, z := range m.zones {
		if z != nil {
			out = append(out, z.status())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (z *record) status() Status {
	s := Status{ID: z.id, Name: z.name, Running: z.running.Load()}
	if last := z.lastRun.Load(); last != nil {
		r := *last
		s.LastRun = &r
	}
	return s
}

// Drain refuses further triggers and waits for every running sequence to
// finish or for ctx to end.
func (m *Machine) Drain(ctx context.Context) error {
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for zone sequences: %w", ctx.Err())
	}
}
