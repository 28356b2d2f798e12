package api

import (
	"errors"
	"net/http"

	"github.com/konsultti/kokoro-tts/internal/domain"
	"github.com/konsultti/kokoro-tts/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrNotCancellable),
		errors.Is(err, domain.ErrNotResumable),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, store.ErrIllegalTransition),
		errors.Is(err, store.ErrDuplicateID):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, domain.ErrValidation):
		// Validation messages are produced by our own code from request
		// fields and are safe to show.
		return err.Error()

	case errors.Is(err, store.ErrNotFound):
		return "Job not found"

	case errors.Is(err, domain.ErrNotCancellable):
		return "Job cannot be cancelled in its current state"

	case errors.Is(err, domain.ErrNotResumable):
		return "Job cannot be resumed in its current state"

	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, store.ErrIllegalTransition):
		return "Operation not allowed in the job's current state"

	default:
		return "An unexpected error occurred"
	}
}
