package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogLevel is the severity of a job log entry.
type LogLevel string

// Job log levels, ordered by severity.
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARNING"
	LogLevelError LogLevel = "ERROR"
)

// JobLog is one append-only log entry belonging to a job. Entries are never
// updated or deleted individually; they go away only when the job is
// cleaned up.
type JobLog struct {
	ID        int64           `json:"id"`
	JobID     uuid.UUID       `json:"job_id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     LogLevel        `json:"level"`
	Message   string          `json:"message"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}
