// Package serial is the link to the actuator microcontroller.
//
// The port is opened in raw mode with VMIN and VTIME both zero, so a read
// returns at once with whatever bytes the driver holds, possibly none.
// That lets the dispatch loop poll the link between client reads without
// a reader goroutine.
//
// The link has no recovery. Any read or write error is wrapped in
// ErrLinkFailed and the caller is expected to stop the process.
package serial
