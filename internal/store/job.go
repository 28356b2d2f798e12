package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/konsultti/kokoro-tts/internal/domain"
)

// JobFilter narrows List results. Zero value lists everything, newest
// first.
type JobFilter struct {
	// Status restricts results to a single status when non-nil.
	Status *domain.JobStatus

	// Active restricts results to queued/running/paused jobs, oldest first
	// (queue order).
	Active bool

	// Limit caps the number of results; zero means no cap.
	Limit int
}

// JobStore is the transactional repository over the durable store. All
// guarantees assume single-writer-serialized transactions with concurrent
// readers, which is how the SQLite implementation opens the database.
//
// Version: 1
type JobStore interface {
	// Insert persists a new job. Fails with ErrDuplicateID if the id
	// already exists.
	Insert(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by id, or ErrJobNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// List returns jobs matching the filter.
	List(ctx context.Context, filter JobFilter) ([]*domain.Job, error)

	// ClaimNext atomically selects the oldest eligible job — queued, or
	// running with a heartbeat older than staleAfter (an orphaned claim) —
	// marks it running with the caller as claim owner, and returns it.
	// Eligibility read and claim write happen in one transaction, so at
	// most one worker wins even when many poll concurrently. Returns
	// ErrNoJobAvailable when the queue is empty.
	ClaimNext(ctx context.Context, workerID string, now time.Time, staleAfter time.Duration) (*domain.Job, error)

	// UpdateProgress writes progress, checkpoint and heartbeat for a job
	// the caller claims to own. Returns false without error when the claim
	// no longer matches: a zombie worker must not corrupt a job reclaimed
	// by someone else.
	UpdateProgress(ctx context.Context, id uuid.UUID, workerID string, progress domain.Progress, checkpoint *domain.Checkpoint, heartbeat time.Time) (bool, error)

	// Heartbeat refreshes the claim timestamp between unit boundaries so
	// long units don't look orphaned. Same claim-mismatch semantics as
	// UpdateProgress.
	Heartbeat(ctx context.Context, id uuid.UUID, workerID string, now time.Time) (bool, error)

	// MarkCompleted finishes a job the caller owns. Fails with
	// ErrClaimMismatch when the claim is gone.
	MarkCompleted(ctx context.Context, id uuid.UUID, workerID string, outputSize int64, now time.Time) error

	// MarkFailed fails a job the caller owns, recording the classified
	// error and the resume checkpoint when one exists.
	MarkFailed(ctx context.Context, id uuid.UUID, workerID string, errInfo domain.ErrorInfo, checkpoint *domain.Checkpoint, now time.Time) error

	// MarkCancelled moves a job to cancelled. workerID may be empty: the
	// manager may force cancellation of a queued job without holding a
	// claim. For running jobs a non-empty workerID must match the claim.
	MarkCancelled(ctx context.Context, id uuid.UUID, workerID string, now time.Time) error

	// RequestCancel sets the cooperative cancellation flag on a running
	// job. The worker observes it at the next unit boundary.
	RequestCancel(ctx context.Context, id uuid.UUID) error

	// Requeue re-arms a failed job back to queued for resume, clearing
	// error and timestamps while keeping the checkpoint.
	Requeue(ctx context.Context, id uuid.UUID) error

	// AppendLog adds an append-only log entry for a job.
	AppendLog(ctx context.Context, id uuid.UUID, level domain.LogLevel, message string, metadata map[string]any) error

	// Logs returns log entries for a job, newest first. level filters to a
	// single severity when non-nil; limit caps results when positive.
	Logs(ctx context.Context, id uuid.UUID, level *domain.LogLevel, limit int) ([]domain.JobLog, error)

	// AddFile tracks a file belonging to a job.
	AddFile(ctx context.Context, id uuid.UUID, path string, kind domain.FileKind, size int64) error

	// Files returns tracked files for a job, optionally filtered by kind.
	Files(ctx context.Context, id uuid.UUID, kind *domain.FileKind) ([]domain.JobFile, error)

	// Delete removes a job and cascades to its logs and tracked files.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteCompletedBefore removes completed jobs older than cutoff and
	// returns how many were deleted.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// CountByStatus returns job counts grouped by status.
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)

	// WithTx returns a JobStore bound to the given transaction so multiple
	// operations can commit atomically. The caller manages the transaction.
	WithTx(tx *sql.Tx) JobStore
}
