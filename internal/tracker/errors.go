package tracker

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks input that failed validation.
	ErrInvalid = errors.New("invalid input")
)
