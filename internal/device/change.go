package device

import "time"

// StateChange describes one mutation of the store, as seen by observers.
type StateChange struct {
	// Device is the 1-based device that changed, or 0 when the whole
	// array was replaced by a snapshot.
	Device int

	// State is the new value of Device. Unused for snapshots.
	State int

	// States is the complete array after the change. Observers must not
	// modify it.
	States []int

	Source string
	At     time.Time
}
