package device

import (
	"fmt"
	"sync"
)

const (
	// DefaultCount is the number of devices on the standard controller board.
	DefaultCount = 10

	// MinState and MaxState bound a device state to one digit.
	MinState = 0
	MaxState = 9
)

// Store is the canonical device state array.
//
// The length is fixed at construction. Get returns copies, so callers can
// never mutate the store behind its lock.
type Store struct {
	mu     sync.RWMutex
	states []int
}

// NewStore creates a store of n devices, all in state 0.
// A non-positive n falls back to DefaultCount.
func NewStore(n int) *Store {
	if n <= 0 {
		n = DefaultCount
	}
	return &Store{states: make([]int, n)}
}

// Len returns the number of devices.
func (s *Store) Len() int {
	// states is never resized, no lock needed
	return len(s.states)
}

// Get returns a snapshot of all device states.
func (s *Store) Get() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]int, len(s.states))
	copy(snapshot, s.states)
	return snapshot
}

// State returns the state of a single device.
func (s *Store) State(index int) (int, error) {
	if index < 0 || index >= len(s.states) {
		return 0, fmt.Errorf("%w: index %d, have %d devices", ErrDeviceOutOfRange, index, len(s.states))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[index], nil
}

// Set updates one device.
//
// Returns:
//   - ErrDeviceOutOfRange if index is not in [0, Len())
//   - ErrStateOutOfRange if state is not a single digit
func (s *Store) Set(index, state int) error {
	if index < 0 || index >= len(s.states) {
		return fmt.Errorf("%w: index %d, have %d devices", ErrDeviceOutOfRange, index, len(s.states))
	}
	if err := validateState(state); err != nil {
		return err
	}

	s.mu.Lock()
	s.states[index] = state
	s.mu.Unlock()
	return nil
}

// ReplaceAll swaps in a complete snapshot. Either every value is applied
// or none is.
func (s *Store) ReplaceAll(states []int) error {
	if len(states) != len(s.states) {
		return fmt.Errorf("%w: got %d states, have %d devices", ErrSnapshotLength, len(states), len(s.states))
	}
	for _, state := range states {
		if err := validateState(state); err != nil {
			return err
		}
	}

	s.mu.Lock()
	copy(s.states, states)
	s.mu.Unlock()
	return nil
}

func validateState(state int) error {
	if state < MinState || state > MaxState {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrStateOutOfRange, state, MinState, MaxState)
	}
	return nil
}
