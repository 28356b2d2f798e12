package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when an entity or request fails validation.
	// Validation errors are rejected at submission and never persisted.
	ErrValidation = errors.New("validation failed")

	// ErrIllegalTransition is returned when a status change is not permitted
	// by the job state machine.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrNotResumable is returned when resume is requested for a job that is
	// not failed, has no checkpoint, or whose failure is not recoverable.
	ErrNotResumable = errors.New("job cannot be resumed")

	// ErrNotCancellable is returned when cancel is requested for a job that
	// has already reached a terminal status.
	ErrNotCancellable = errors.New("job cannot be cancelled")
)
