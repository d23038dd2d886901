package effect

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// gracefulTimeout is how long a cancelled effect gets after SIGTERM.
const gracefulTimeout = 2 * time.Second

// runCommand runs the effect's command in its own process group. When ctx
// ends the whole group gets SIGTERM, then SIGKILL after gracefulTimeout.
func (r *Runner) runCommand(ctx context.Context, e Effect) error {
	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...) //nolint:gosec // Command comes from operator config

	// Create a new process group so players that fork are stopped with us
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = gracefulTimeout

	cmd.Stdout = &outputLogger{logger: r.logger, effect: e.Name, stream: "stdout"}
	cmd.Stderr = &outputLogger{logger: r.logger, effect: e.Name, stream: "stderr"}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", e.Command[0], err)
	}
	r.logger.Debug("effect process started", "effect", e.Name, "pid", cmd.Process.Pid)

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		// Children that ignored SIGTERM or outlived the leader.
		if err := signalGroup(cmd, syscall.SIGKILL); err != nil {
			r.logger.Debug("failed to kill process group", "effect", e.Name, "error", err)
		}
		return fmt.Errorf("%s: %w", e.Command[0], ctx.Err())
	}
	if waitErr != nil {
		return fmt.Errorf("%s: %w", e.Command[0], waitErr)
	}
	return nil
}

// signalGroup signals the process group created via Setpgid.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// outputLogger logs each write from an effect process.
type outputLogger struct {
	logger Logger
	effect string
	stream string
}

func (w *outputLogger) Write(p []byte) (int, error) {
	w.logger.Debug("effect output",
		"effect", w.effect,
		"stream", w.stream,
		"output", string(p),
	)
	return len(p), nil
}
