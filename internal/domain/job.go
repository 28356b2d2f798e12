package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InputType identifies the kind of source document.
type InputType string

// Supported input document types.
const (
	InputTypeTXT  InputType = "txt"
	InputTypeEPUB InputType = "epub"
	InputTypePDF  InputType = "pdf"
)

// OutputFormat identifies the audio container of the destination artifact.
type OutputFormat string

// Supported output audio formats.
const (
	OutputFormatWAV OutputFormat = "wav"
	OutputFormatMP3 OutputFormat = "mp3"
	OutputFormatM4A OutputFormat = "m4a"
)

// Validation errors for Job.
var (
	ErrEmptyJobID        = errors.New("job ID cannot be empty")
	ErrEmptyInputPath    = errors.New("input path cannot be empty")
	ErrEmptyOutputPath   = errors.New("output path cannot be empty")
	ErrInvalidInputType  = errors.New("unsupported input type")
	ErrInvalidOutput     = errors.New("unsupported output format")
	ErrInvalidJobStatus  = errors.New("invalid job status")
	ErrClaimWithoutOwner = errors.New("running job must have a claim owner")
)

// InputDescriptor locates the source artifact. Immutable after creation.
type InputDescriptor struct {
	Path string    `json:"path"`
	Type InputType `json:"type"`
	Size int64     `json:"size,omitempty"`
}

// OutputDescriptor locates the destination artifact. Immutable after creation.
type OutputDescriptor struct {
	Path   string       `json:"path"`
	Format OutputFormat `json:"format"`
	Size   int64        `json:"size,omitempty"`
}

// Job is the central entity of the queue: one audiobook conversion, from
// submission through execution to a terminal state.
//
// The store exclusively owns persisted jobs. A worker holds a transient,
// renewable claim (ClaimOwner + ClaimHeartbeat) over at most one running
// job; the manager never touches progress or claim fields directly.
type Job struct {
	ID     uuid.UUID `json:"id"`
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Input  InputDescriptor  `json:"input"`
	Output OutputDescriptor `json:"output"`

	// Options is an opaque configuration blob passed unmodified to the
	// executor (voice, speed, language, intro handling, ...).
	Options json.RawMessage `json:"options,omitempty"`

	Metadata *BookMetadata `json:"metadata,omitempty"`

	Progress   Progress    `json:"progress"`
	Error      *ErrorInfo  `json:"error,omitempty"`
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`

	// CancelRequested is the cooperative cancellation flag. The manager
	// sets it; the worker observes it at unit boundaries.
	CancelRequested bool `json:"cancel_requested"`

	ClaimOwner     string     `json:"claim_owner,omitempty"`
	ClaimHeartbeat *time.Time `json:"claim_heartbeat,omitempty"`

	ProcessingSeconds *float64 `json:"processing_seconds,omitempty"`
}

// NewJob creates a queued Job for the given descriptors and options.
// Returns an error if validation fails.
func NewJob(input InputDescriptor, output OutputDescriptor, options json.RawMessage, metadata *BookMetadata) (*Job, error) {
	job := &Job{
		ID:        uuid.New(),
		Status:    JobStatusQueued,
		CreatedAt: time.Now().UTC(),
		Input:     input,
		Output:    output,
		Options:   options,
		Metadata:  metadata,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks invariants that must hold for any persisted job.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}
	if !j.Status.IsValid() {
		return ErrInvalidJobStatus
	}
	if j.Input.Path == "" {
		return ErrEmptyInputPath
	}
	switch j.Input.Type {
	case InputTypeTXT, InputTypeEPUB, InputTypePDF:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidInputType, j.Input.Type)
	}
	if j.Output.Path == "" {
		return ErrEmptyOutputPath
	}
	switch j.Output.Format {
	case OutputFormatWAV, OutputFormatMP3, OutputFormatM4A:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOutput, j.Output.Format)
	}
	if j.Status == JobStatusRunning && j.ClaimOwner == "" {
		return ErrClaimWithoutOwner
	}
	return nil
}

// CanBeCancelled reports whether a cancel request makes sense for the
// job's current status.
func (j *Job) CanBeCancelled() bool {
	return j.Status.IsActive()
}

// CanBeResumed reports whether the job is failed with a usable checkpoint
// and a recoverable error.
func (j *Job) CanBeResumed() bool {
	return j.Status == JobStatusFailed &&
		j.Checkpoint != nil &&
		j.Error != nil &&
		j.Error.Recoverable
}

// Elapsed returns how long the job has been (or was) processing, or zero
// when it never started.
func (j *Job) Elapsed() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(*j.StartedAt)
	}
	return time.Since(*j.StartedAt)
}

// StatusMessage formats a user-facing one-line summary of the job.
func (j *Job) StatusMessage() string {
	switch j.Status {
	case JobStatusQueued:
		return "Waiting in queue"
	case JobStatusRunning:
		if j.Progress.CurrentOperation != "" {
			return fmt.Sprintf("%s (%.1f%%)", j.Progress.CurrentOperation, j.Progress.Percentage)
		}
		return fmt.Sprintf("Processing (%.1f%%)", j.Progress.Percentage)
	case JobStatusCompleted:
		return "Completed successfully"
	case JobStatusFailed:
		if j.Error != nil {
			return "Failed: " + j.Error.Message
		}
		return "Failed"
	case JobStatusCancelled:
		return "Cancelled by user"
	case JobStatusPaused:
		return "Paused"
	default:
		return string(j.Status)
	}
}
