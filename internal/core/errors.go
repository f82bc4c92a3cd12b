package core

import "errors"

// Sentinel errors shared across the engine. Stores map their native constraint
// and not-found conditions onto these so callers can branch with errors.Is.
var (
	// ErrNotFound indicates a required user, topic, or source does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a uniqueness constraint was hit. Callers treat
	// this as "already tracked", not as a failure.
	ErrAlreadyExists = errors.New("already exists")
)
