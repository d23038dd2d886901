package effect

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout bounds one effect when its definition sets none.
const DefaultTimeout = 30 * time.Second

// Effect is one configured effect. Exactly one of Command or URL is set.
type Effect struct {
	Name string

	// Command is the binary and its arguments.
	Command []string

	// URL is fetched with GET to start playback on a remote display.
	URL string

	// Timeout bounds the run. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// Validate checks the definition.
func (e Effect) Validate() error {
	switch {
	case e.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidEffect)
	case len(e.Command) > 0 && e.URL != "":
		return fmt.Errorf("%w: %s: both command and url set", ErrInvalidEffect, e.Name)
	case len(e.Command) == 0 && e.URL == "":
		return fmt.Errorf("%w: %s: neither command nor url set", ErrInvalidEffect, e.Name)
	case len(e.Command) > 0 && e.Command[0] == "":
		return fmt.Errorf("%w: %s: empty command", ErrInvalidEffect, e.Name)
	case e.Timeout < 0:
		return fmt.Errorf("%w: %s: negative timeout", ErrInvalidEffect, e.Name)
	}
	return nil
}

func (e Effect) timeout() time.Duration {
	if e.Timeout <= 0 {
		return DefaultTimeout
	}
	return e.Timeout
}

// Logger defines the logging interface used by the effect package.
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

// Runner plays effects by name.
//
// Thread Safety: PlayEffect is safe for concurrent use.
type Runner struct {
	effects map[string]Effect
	client  *http.Client
	logger  Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner validates effects and returns a runner for them.
func NewRunner(effects []Effect) (*Runner, error) {
	byName := make(map[string]Effect, len(effects))
	for _, e := range effects {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidEffect, e.Name)
		}
		e.Command = append([]string(nil), e.Command...)
		byName[e.Name] = e
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		effects: byName,
		client:  &http.Client{},
		logger:  noopLogger{},
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Has reports whether name is configured.
func (r *Runner) Has(name string) bool {
	_, ok := r.effects[name]
	return ok
}

// PlayEffect starts the named effect and returns immediately.
func (r *Runner) PlayEffect(name string) {
	e, ok := r.effects[name]
	if !ok {
		r.logger.Warn("effect not played", "effect", name, "error", ErrUnknownEffect)
		return
	}
	if r.ctx.Err() != nil {
		r.logger.Warn("effect not played, runner closed", "effect", name)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.play(e)
	}()
}

func (r *Runner) play(e Effect) {
	ctx, cancel := context.WithTimeout(r.ctx, e.timeout())
	defer cancel()

	start := time.Now()
	r.logger.Info("effect started", "effect", e.Name)

	var err error
	if e.URL != "" {
		err = r.fetch(ctx, e)
	} else {
		err = r.runCommand(ctx, e)
	}

	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		r.logger.Error("effect failed", "effect", e.Name, "error", err, "duration_ms", elapsed)
		return
	}
	r.logger.Info("effect finished", "effect", e.Name, "duration_ms", elapsed)
}

// Close stops running effects and waits for them up to ctx's deadline.
func (r *Runner) Close(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for effects: %w", ctx.Err())
	}
}
