package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a usage record does not exist or belongs
	// to another tenant.
	ErrNotFound = errors.New("usage record not found")

	// ErrConflict is returned when a record with the given completion ID already exists.
	ErrConflict = errors.New("usage record already exists")
)
