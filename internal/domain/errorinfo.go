package domain

import "time"

// ErrorKind classifies a job failure. Validation errors are rejected at
// submission and never reach this record; store errors are retried by the
// worker and never fail a job on their own.
type ErrorKind string

const (
	// ErrorKindUnit means a single unit of work failed after the executor
	// exhausted its in-unit retries (including subdivision).
	ErrorKindUnit ErrorKind = "unit"

	// ErrorKindFatal means the executor hit an unrecoverable condition
	// (unreadable input, no chapters, encoder failure).
	ErrorKindFatal ErrorKind = "fatal"

	// ErrorKindStore means a persistence operation kept failing past the
	// local retry budget. Rare; recorded so operators can see it.
	ErrorKindStore ErrorKind = "store"
)

// ErrorInfo describes why a job failed. Populated only on failed jobs and
// serialized as JSON at the store boundary.
// Version: 1
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`

	FailedChapterIndex *int   `json:"failed_chapter_index,omitempty"`
	FailedOperation    string `json:"failed_operation,omitempty"`

	Recoverable        bool   `json:"recoverable"`
	RecoverySuggestion string `json:"recovery_suggestion,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
