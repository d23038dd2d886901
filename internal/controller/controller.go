package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/propctl/internal/device"
	"github.com/nerrad567/propctl/internal/protocol"
	"github.com/nerrad567/propctl/internal/session"
	"github.com/nerrad567/propctl/internal/zone"
)

const (
	// DefaultHeartbeat is the longest clients go without a state frame.
	DefaultHeartbeat = 4 * time.Second

	// DefaultPollInterval is the pause between dispatch steps.
	DefaultPollInterval = 10 * time.Millisecond
)

// SerialLink is the duplex byte channel to the microcontroller.
type SerialLink interface {
	// ReadAvailable returns pending bytes without blocking, nil if none.
	ReadAvailable() ([]byte, error)
	Write(p []byte) error
}

// Zones accepts zone trigger requests.
type Zones interface {
	Trigger(id int, source string) (string, error)
}

// StateObserver is told about every store mutation after clients have
// been sent the new snapshot. Implementations must not block.
type StateObserver interface {
	StateChanged(change device.StateChange)
}

// Logger defines the logging interface used by the controller.
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

// Config tunes the dispatch loop.
type Config struct {
	Heartbeat    time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Controller owns the dispatch loop.
//
// Thread Safety: Step and Run must be called from one goroutine.
// TriggerDevice is safe for concurrent use.
type Controller struct {
	store    *device.Store
	registry *session.Registry
	backlog  session.Acceptor
	link     SerialLink
	zones    Zones
	cfg      Config

	observers []StateObserver
	logger    Logger
	now       func() time.Time

	// Frames may arrive split across reads. Only the dispatch goroutine
	// touches these.
	serialFrames protocol.Assembler
	clientFrames map[string]*protocol.Assembler

	// actuateMu keeps store update, broadcast and serial write together.
	actuateMu sync.Mutex

	fatal     chan error
	fatalOnce sync.Once
}

// New creates a controller. zones may be nil until SetZones is called,
// since zone sequences usually need the controller to exist first.
func New(cfg Config, store *device.Store, registry *session.Registry, backlog session.Acceptor, link SerialLink) *Controller {
	return &Controller{
		store:    store,
		registry: registry,
		backlog:  backlog,
		link:     link,
		cfg:      cfg.withDefaults(),
		logger:   noopLogger{},
		now:      time.Now,
		fatal:    make(chan error, 1),

		clientFrames: make(map[string]*protocol.Assembler),
	}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// SetZones sets the zone trigger target.
func (c *Controller) SetZones(z Zones) {
	c.zones = z
}

// AddObserver registers an observer of state changes.
func (c *Controller) AddObserver(o StateObserver) {
	c.observers = append(c.observers, o)
}

// SetClock replaces the time source for the controller and its registry.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
	c.registry.SetClock(now)
}

// Run repeats Step every poll interval until ctx is cancelled or the
// serial link fails, whether in the loop or in a zone sequence.
//
// Parameters:
//   - ctx: Cancelling it stops the loop after the current step
//
// Returns:
//   - error: nil on cancellation, otherwise the serial link error
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	c.logger.Info("dispatch loop started",
		"devices", c.store.Len(),
		"heartbeat", c.cfg.Heartbeat,
		"poll_interval", c.cfg.PollInterval,
	)

	for {
		if err := c.Step(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			c.logger.Info("dispatch loop stopped")
			return nil
		case err := <-c.fatal:
			return err
		case <-ticker.C:
		}
	}
}

// Step performs one dispatch cycle.
func (c *Controller) Step() error {
	c.registry.AcceptNew(c.backlog)
	c.heartbeat()

	if err := c.pollSerial(); err != nil {
		return err
	}
	return c.pollClients()
}

// heartbeat rebroadcasts the snapshot once the last broadcast is strictly
// older than the heartbeat interval.
func (c *Controller) heartbeat() {
	if c.now().Sub(c.registry.LastBroadcast()) > c.cfg.Heartbeat {
		c.registry.BroadcastState(c.store.Get())
	}
}

func (c *Controller) pollSerial() error {
	data, err := c.link.ReadAvailable()
	if err != nil {
		c.reportFatal(err)
		return fmt.Errorf("reading serial link: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	for _, cmd := range c.serialFrames.Feed(data) {
		if err := c.dispatch(cmd, sourceSerial); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) pollClients() error {
	for _, in := range c.registry.PollReads() {
		id := in.Conn.ID()
		frames, ok := c.clientFrames[id]
		if !ok {
			frames = &protocol.Assembler{}
			c.clientFrames[id] = frames
		}
		for _, cmd := range frames.Feed(in.Data) {
			if err := c.dispatch(cmd, sourceClient); err != nil {
				return err
			}
		}
	}

	// Keep partial frames only for clients that are still connected.
	for id, frames := range c.clientFrames {
		if frames.Pending() == 0 || !c.registry.Has(id) {
			delete(c.clientFrames, id)
		}
	}
	return nil
}

// origin is where a command came from.
type origin int

const (
	sourceSerial origin = iota
	sourceClient
)

func (o origin) historySource() string {
	if o == sourceSerial {
		return device.StateHistorySourceSerial
	}
	return device.StateHistorySourceClient
}

func (o origin) zoneSource() string {
	if o == sourceSerial {
		return zone.SourceSerial
	}
	return zone.SourceClient
}

// dispatch applies one command. Only a serial failure is returned.
func (c *Controller) dispatch(cmd protocol.Command, from origin) error {
	switch cmd := cmd.(type) {
	case protocol.ReportDeviceState:
		err := c.triggerDevice(cmd.Index, cmd.State, from.historySource())
		if err != nil && !isFatal(err) {
			c.logger.Warn("device report ignored",
				"device", cmd.Index+1,
				"state", cmd.State,
				"error", err,
			)
			return nil
		}
		return err

	case protocol.ReportHeartbeatSnapshot:
		c.replaceAll(cmd.States)

	case protocol.ZoneTriggerRequest:
		c.triggerZone(cmd.Zone, from.zoneSource())

	default:
		c.logger.Debug("command ignored", "tag", cmd.Tag())
	}
	return nil
}

// TriggerDevice sets device index to state on behalf of a zone sequence.
func (c *Controller) TriggerDevice(index, state int) error {
	return c.triggerDevice(index, state, device.StateHistorySourceZone)
}

func (c *Controller) triggerDevice(index, state int, source string) error {
	c.actuateMu.Lock()
	defer c.actuateMu.Unlock()

	if err := c.store.Set(index, state); err != nil {
		return err
	}

	states := c.store.Get()
	c.registry.BroadcastState(states)
	c.notify(device.StateChange{
		Device: index + 1,
		State:  state,
		States: states,
		Source: source,
		At:     c.now(),
	})

	if err := c.link.Write(protocol.EncodeTriggerFrame(index+1, state)); err != nil {
		c.reportFatal(err)
		return fmt.Errorf("writing serial link: %w", err)
	}
	return nil
}

func (c *Controller) replaceAll(states []int) {
	c.actuateMu.Lock()
	defer c.actuateMu.Unlock()

	if err := c.store.ReplaceAll(states); err != nil {
		c.logger.Warn("state snapshot ignored", "states", len(states), "error", err)
		return
	}

	snapshot := c.store.Get()
	c.registry.BroadcastState(snapshot)
	c.notify(device.StateChange{
		States: snapshot,
		Source: device.StateHistorySourceSnapshot,
		At:     c.now(),
	})
}

func (c *Controller) triggerZone(id int, source string) {
	if c.zones == nil {
		c.logger.Warn("zone trigger ignored, no zones configured", "zone", id)
		return
	}

	runID, err := c.zones.Trigger(id, source)
	switch {
	case err == nil:
		c.logger.Debug("zone triggered", "zone", id, "run_id", runID, "source", source)
	case errors.Is(err, zone.ErrZoneBusy):
		c.logger.Debug("zone trigger dropped", "zone", id, "source", source)
	default:
		c.logger.Warn("zone trigger rejected", "zone", id, "source", source, "error", err)
	}
}

func (c *Controller) notify(change device.StateChange) {
	for _, o := range c.observers {
		o.StateChanged(change)
	}
}

// reportFatal hands the first serial failure to Run.
func (c *Controller) reportFatal(err error) {
	c.fatalOnce.Do(func() {
		c.logger.Error("serial link failed", "error", err)
		c.fatal <- err
	})
}

// States returns a snapshot of the device array.
func (c *Controller) States() []int {
	return c.store.Get()
}

func isFatal(err error) bool {
	return !errors.Is(err, device.ErrDeviceOutOfRange) && !errors.Is(err, device.ErrStateOutOfRange)
}
