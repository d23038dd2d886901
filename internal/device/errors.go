package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceOutOfRange) {
//	    // log and ignore
//	}
var (
	// ErrDeviceOutOfRange is returned when an index falls outside the
	// store. It is a protocol-level error: callers log and carry on.
	ErrDeviceOutOfRange = errors.New("device: index out of range")

	// ErrStateOutOfRange is returned for states that cannot be encoded as
	// a single digit.
	ErrStateOutOfRange = errors.New("device: state out of range")

	// ErrSnapshotLength is returned when a full snapshot does not match
	// the store size.
	ErrSnapshotLength = errors.New("device: snapshot length mismatch")
)
