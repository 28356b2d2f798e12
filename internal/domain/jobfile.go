package domain

import (
	"time"

	"github.com/google/uuid"
)

// FileKind tags a tracked file's role in a job.
type FileKind string

// Tracked file kinds.
const (
	FileKindInput  FileKind = "input"
	FileKindOutput FileKind = "output"
	FileKindTemp   FileKind = "temp"
)

// JobFile is a path associated with a job, used for cleanup and disk
// accounting. Its lifecycle is tied to the job's: cascade-deleted with it.
type JobFile struct {
	ID        int64     `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Path      string    `json:"path"`
	Kind      FileKind  `json:"kind"`
	Size      int64     `json:"size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
