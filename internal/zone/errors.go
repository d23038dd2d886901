package zone

import "errors"

// Domain errors for the zone package.
var (
	// ErrZoneBusy is returned when a trigger arrives while the zone's sequence is running.
	ErrZoneBusy = errors.New("zone: busy")

	// ErrUnknownZone is returned for zone IDs with no registered sequence.
	ErrUnknownZone = errors.New("zone: unknown zone")

	// ErrZoneExists is returned when registering a zone ID twice.
	ErrZoneExists = errors.New("zone: already registered")

	// ErrInvalidZone is returned for zone IDs below 1.
	ErrInvalidZone = errors.New("zone: invalid zone id")

	// ErrInvalidStep is returned by Script for malformed steps.
	ErrInvalidStep = errors.New("zone: invalid step")

	// ErrStopping is returned by Trigger once Drain has begun.
	ErrStopping = errors.New("zone: machine stopping")

	// ErrRunNotFound is returned when a journal lookup finds nothing.
	ErrRunNotFound = errors.New("zone: run not found")
)
