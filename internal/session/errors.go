package session

import "errors"

// Domain errors for the session package.
var (
	// ErrConnClosed is returned by Poll and Write after Close.
	ErrConnClosed = errors.New("session: connection closed")

	// ErrBacklogFull is returned by Offer when no slot is free.
	ErrBacklogFull = errors.New("session: backlog full")
)
