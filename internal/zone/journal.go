package zone

import (
	"context"
	"time"
)

// journalWriteTimeout bounds one journal write.
const journalWriteTimeout = 5 * time.Second

// Journal is an Observer that records every run in a Repository. Write
// failures are logged and otherwise ignored; the sequence has already run.
type Journal struct {
	repo   Repository
	logger Logger
}

// NewJournal creates a journal writing to repo.
func NewJournal(repo Repository, logger Logger) *Journal {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Journal{repo: repo, logger: logger}
}

// ZoneStarted implements Observer.
func (j *Journal) ZoneStarted(run Run) { j.record(run) }

// ZoneFinished implements Observer.
func (j *Journal) ZoneFinished(run Run) { j.record(run) }

func (j *Journal) record(run Run) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	if err := j.repo.RecordRun(ctx, run); err != nil {
		j.logger.Error("failed to record zone run", "run_id", run.ID, "zone", run.Zone, "error", err)
	}
}

// Observers fans run events out to several observers in order.
type Observers []Observer

// ZoneStarted implements Observer.
func (o Observers) ZoneStarted(run Run) {
	for _, obs := range o {
		obs.ZoneStarted(run)
	}
}

// ZoneFinished implements Observer.
func (o Observers) ZoneFinished(run Run) {
	for _, obs := range o {
		obs.ZoneFinished(run)
	}
}
