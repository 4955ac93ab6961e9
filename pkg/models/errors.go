package models

import "errors"

// Shared error taxonomy surfaced by the session and schedule operations.
var (
	// ErrInvalidArgument marks missing or empty required input; rejected
	// before any side effect occurs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyActive marks a session-slot conflict: exactly one stream
	// and one recording may be active process-wide.
	ErrAlreadyActive = errors.New("session already active")

	// ErrNotFound marks a referenced id or filename that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPathTraversal marks an attempted escape from the recordings
	// directory. Always rejected, never fixed up.
	ErrPathTraversal = errors.New("path escapes recordings directory")
)
