package serial

import "errors"

// Domain errors for the serial package.
var (
	// ErrLinkFailed wraps any I/O error on an open port.
	ErrLinkFailed = errors.New("serial: link failed")

	// ErrUnsupportedBaud is returned by Open for rates the driver has no constant for.
	ErrUnsupportedBaud = errors.New("serial: unsupported baud rate")

	// ErrUnsupported is returned by Open on platforms without termios support.
	ErrUnsupported = errors.New("serial: not supported on this platform")

	// ErrClosed is returned by I/O on a closed port.
	ErrClosed = errors.New("serial: port closed")
)
