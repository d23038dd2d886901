// Package zone runs the timed effect sequences attached to each zone.
//
// A zone is either idle or running. Trigger flips it to running with a
// compare-and-swap and launches the zone's sequence in its own goroutine;
// a trigger that finds the zone already running is dropped. The zone
// returns to idle only when its sequence returns, errors or panics, so a
// zone can never fire twice at once and can never stay stuck.
//
// Sequences are usually built from configuration with Script: an ordered
// list of device actuations, delays and named effects.
//
// Running sequences are never cancelled. On shutdown the caller waits
// for them with Drain, bounded by its own deadline.
package zone
