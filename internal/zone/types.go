package zone

import (
	"context"
	"time"
)

// Sequence is the body of a zone. It runs to completion in its own
// goroutine; a returned error is logged and the zone is released.
type Sequence func(ctx context.Context) error

// RunStatus is the lifecycle state of a Run.
type RunStatus string

// Run statuses.
const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Trigger sources recorded on runs.
const (
	SourceSerial = "serial"
	SourceClient = "client"
	SourceAPI    = "api"
	SourceMQTT   = "mqtt"
)

// Run records one execution of a zone sequence.
type Run struct {
	ID         string     `json:"id"`
	Zone       int        `json:"zone"`
	ZoneName   string     `json:"zone_name,omitempty"`
	Source     string     `json:"source"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Status is a point-in-time view of one zone.
type Status struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Running bool   `json:"running"`
	LastRun *Run   `json:"last_run,omitempty"`
}

// Observer is told when runs start and finish. Calls happen on the run's
// goroutine, so implementations may block briefly but must not call back
// into Trigger for the same zone expecting it to be idle.
type Observer interface {
	ZoneStarted(run Run)
	ZoneFinished(run Run)
}

// Logger defines the logging interface used by the zone package.
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

type noopObserver struct{}

func (noopObserver) ZoneStarted(Run)  {}
func (noopObserver) ZoneFinished(Run) {}
