package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a key has no live document.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned by Create when the key already holds a document.
	ErrConflict = errors.New("document already exists")

	// ErrRevisionMismatch is returned by Update when the stored revision moved on.
	ErrRevisionMismatch = errors.New("revision mismatch")

	// ErrCorrupt is returned when a stored document cannot be decoded or is
	// stored under a key that does not match its own.
	ErrCorrupt = errors.New("corrupt document")
)
