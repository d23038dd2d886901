package effect

import "errors"

// Domain errors for the effect package.
var (
	// ErrUnknownEffect is logged when PlayEffect names an unconfigured effect.
	ErrUnknownEffect = errors.New("effect: unknown effect")

	// ErrInvalidEffect is returned by NewRunner for malformed definitions.
	ErrInvalidEffect = errors.New("effect: invalid definition")

	// ErrRemoteStatus is logged when a display URL answers with a non-2xx status.
	ErrRemoteStatus = errors.New("effect: remote display returned error status")
)
