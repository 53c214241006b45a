package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStatusConflict is returned by conditional updates when the row's
	// current status no longer matches the expected value. The caller lost
	// the race for a contested transition.
	ErrStatusConflict = errors.New("status precondition failed")
)
