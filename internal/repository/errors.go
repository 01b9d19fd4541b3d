package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned when an update was based on a stale version.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicate is returned when a unique key (id, reference number,
	// idempotency key) is already taken.
	ErrDuplicate = errors.New("duplicate entity")
)
