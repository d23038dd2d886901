// Package device holds the canonical device state array for the controller.
//
// The Store is a fixed-size array of small integer states, one per
// actuator on the microcontroller. Index i corresponds to wire device ID
// i+1. States are single digits (0-9) because the broadcast frame encodes
// one digit per device.
//
// The Store performs no I/O. Callers broadcast after every successful
// mutation, which keeps the store trivially testable and lets the
// controller decide ordering (state, then broadcast, then serial write).
//
// # State history
//
// HistoryRecorder writes an audit trail of state changes to SQLite from a
// background worker so the dispatch loop never waits on disk. History is
// never read back into the Store: device state always starts at zero.
//
// # Thread Safety
//
// Store and HistoryRecorder are safe for concurrent use.
package device
