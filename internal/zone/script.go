package zone

import (
	"context"
	"fmt"
	"time"
)

// Step is one action in a scripted sequence. Exactly one of Device,
// Delay or Effect is set.
type Step struct {
	// Device is the 1-based device number to drive to State.
	Device int
	State  int

	// Delay pauses the sequence.
	Delay time.Duration

	// Effect names an effect for the effect runner.
	Effect string
}

// Actuator drives a device. Index is 0-based.
type Actuator interface {
	TriggerDevice(index, state int) error
}

// EffectPlayer starts a named effect without waiting for it.
type EffectPlayer interface {
	PlayEffect(name string)
}

// maxState matches the single-digit wire encoding.
const maxState = 9

// Validate checks that the step names exactly one action.
func (s Step) Validate() error {
	set := 0
	if s.Device != 0 {
		set++
	}
	if s.Delay != 0 {
		set++
	}
	if s.Effect != "" {
		set++
	}

	switch {
	case set != 1:
		return fmt.Errorf("%w: exactly one of device, delay or effect must be set", ErrInvalidStep)
	case s.Device < 0:
		return fmt.Errorf("%w: device %d", ErrInvalidStep, s.Device)
	case s.Device > 0 && (s.State < 0 || s.State > maxState):
		return fmt.Errorf("%w: state %d out of range 0-%d", ErrInvalidStep, s.State, maxState)
	case s.Delay < 0:
		return fmt.Errorf("%w: negative delay %s", ErrInvalidStep, s.Delay)
	}
	return nil
}

// Script builds a Sequence that performs steps in order. A device step
// that fails aborts the sequence. fx may be nil if no step plays an effect.
func Script(steps []Step, act Actuator, fx EffectPlayer) (Sequence, error) {
	for i, s := range steps {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if s.Effect != "" && fx == nil {
			return nil, fmt.Errorf("step %d: %w: no effect runner for %q", i+1, ErrInvalidStep, s.Effect)
		}
	}
	if act == nil {
		return nil, fmt.Errorf("%w: no actuator", ErrInvalidStep)
	}

	script := make([]Step, len(steps))
	copy(script, steps)

	return func(ctx context.Context) error {
		for i, s := range script {
			switch {
			case s.Delay > 0:
				select {
				case <-time.After(s.Delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			case s.Effect != "":
				fx.PlayEffect(s.Effect)
			default:
				if err := act.TriggerDevice(s.Device-1, s.State); err != nil {
					return fmt.Errorf("step %d: device %d: %w", i+1, s.Device, err)
				}
			}
		}
		return nil
	}, nil
}
