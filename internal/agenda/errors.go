package agenda

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("agenda: not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	// by the appointment lifecycle.
	ErrInvalidTransition = errors.New("agenda: invalid status transition")

	// ErrStatusConflict is returned when a conditional status update loses
	// to a concurrent transition.
	ErrStatusConflict = errors.New("agenda: status changed concurrently")
)
