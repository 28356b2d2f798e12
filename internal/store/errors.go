package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateID is returned when inserting a job whose id already
	// exists.
	ErrDuplicateID = errors.New("duplicate job id")

	// ErrNoJobAvailable is returned by ClaimNext when no queued job and no
	// orphaned claim is eligible. Not a failure; the worker keeps polling.
	ErrNoJobAvailable = errors.New("no claimable job available")

	// ErrClaimMismatch is returned by terminal transitions when the caller
	// no longer holds the job's claim. Progress updates treat the same
	// condition as a silent no-op instead.
	ErrClaimMismatch = errors.New("claim not held by caller")

	// ErrIllegalTransition is returned when a status change is rejected by
	// the job state machine.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrBusy marks a transient conflict (locked database, busy writer).
	// Operations failing with ErrBusy are retried locally with backoff and
	// never fail the job.
	ErrBusy = errors.New("store busy")

	// ErrJobNotFound indicates that the requested job does not exist.
	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)
)

// IsTransient reports whether the error is worth retrying locally.
func IsTransient(err error) bool {
	return errors.Is(err, ErrBusy)
}

// StoreError carries entity and operation context for a failed store call.
type StoreError struct {
	Entity    string // entity type, e.g. "job", "job_log"
	Operation string // operation that failed, e.g. "insert", "claim_next"
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError with the given context.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
