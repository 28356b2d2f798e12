package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/konsultti/kokoro-tts/internal/domain"
	"github.com/konsultti/kokoro-tts/internal/store"
)

// SubmitRequest describes a new audiobook job. Paths are validated against
// the filesystem at submission; everything else the executor needs rides
// in the opaque Options blob.
type SubmitRequest struct {
	InputPath    string               `json:"input_path" validate:"required"`
	InputType    domain.InputType     `json:"input_type" validate:"required,oneof=txt epub pdf"`
	OutputPath   string               `json:"output_path" validate:"required"`
	OutputFormat domain.OutputFormat  `json:"output_format" validate:"required,oneof=wav mp3 m4a"`
	Options      json.RawMessage      `json:"options,omitempty"`
	Metadata     *domain.BookMetadata `json:"metadata,omitempty"`
}

// Manager implements the producer operations over the job store.
type Manager struct {
	store    store.JobStore
	validate *validator.Validate
	logger   *slog.Logger

	// statFn is swapped in tests that do not want real files on disk.
	statFn func(string) (os.FileInfo, error)
}

// New creates a Manager backed by the given store.
func New(jobStore store.JobStore, log *slog.Logger) *Manager {
	return &Manager{
		store:    jobStore,
		validate: validator.New(),
		logger:   log,
		statFn:   os.Stat,
	}
}

// Submit validates the request and enqueues a new job. It performs exactly
// one insert and returns without waiting for any processing.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if err := m.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, fmt.Errorf("%w: field %s failed on %s", domain.ErrValidation, fe.Field(), fe.Tag())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	info, err := m.statFn(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: input file %s: %v", domain.ErrValidation, req.InputPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: input path %s is a directory", domain.ErrValidation, req.InputPath)
	}

	job, err := domain.NewJob(
		domain.InputDescriptor{Path: req.InputPath, Type: req.InputType, Size: info.Size()},
		domain.OutputDescriptor{Path: req.OutputPath, Format: req.OutputFormat},
		req.Options,
		req.Metadata,
	)
	if err != nil {
		return nil, err
	}

	err = store.WithRetry(ctx, func() error {
		return m.store.Insert(ctx, job)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	_ = m.store.AppendLog(ctx, job.ID, domain.LogLevelInfo, "job submitted",
		map[string]any{"input": req.InputPath, "output": req.OutputPath})
	_ = m.store.AddFile(ctx, job.ID, req.InputPath, domain.FileKindInput, info.Size())

	m.logger.Info("job submitted",
		"job_id", job.ID,
		"input", req.InputPath,
		"output_format", req.OutputFormat)
	return job, nil
}

// Get returns the job with the given id.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return m.store.Get(ctx, id)
}

// List returns jobs matching the filter.
func (m *Manager) List(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	return m.store.List(ctx, filter)
}

// Logs returns a job's log entries, newest first.
func (m *Manager) Logs(ctx context.Context, id uuid.UUID, level *domain.LogLevel, limit int) ([]domain.JobLog, error) {
	if _, err := m.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.store.Logs(ctx, id, level, limit)
}

// Files returns a job's tracked files.
func (m *Manager) Files(ctx context.Context, id uuid.UUID, kind *domain.FileKind) ([]domain.JobFile, error) {
	if _, err := m.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.store.Files(ctx, id, kind)
}

// Cancel stops a job. A queued job is cancelled outright; a running job
// gets the cooperative flag and reaches cancelled at its worker's next
// unit boundary, so callers must expect up to one unit of delay.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}

	switch job.Status {
	case domain.JobStatusQueued:
		err := m.store.MarkCancelled(ctx, id, "", time.Now().UTC())
		if errors.Is(err, store.ErrIllegalTransition) {
			// Lost the race with a claim; fall through to the cooperative
			// path.
			return m.requestCancel(ctx, id)
		}
		if err != nil {
			return err
		}
		_ = m.store.AppendLog(ctx, id, domain.LogLevelInfo, "job cancelled before processing", nil)
		m.logger.Info("job cancelled", "job_id", id, "was_running", false)
		return nil

	case domain.JobStatusRunning:
		return m.requestCancel(ctx, id)

	default:
		return fmt.Errorf("%w: job is %s", domain.ErrNotCancellable, job.Status)
	}
}

func (m *Manager) requestCancel(ctx context.Context, id uuid.UUID) error {
	if err := m.store.RequestCancel(ctx, id); err != nil {
		if errors.Is(err, store.ErrIllegalTransition) {
			return fmt.Errorf("%w: job finished before the request landed", domain.ErrNotCancellable)
		}
		return err
	}
	_ = m.store.AppendLog(ctx, id, domain.LogLevelInfo, "cancellation requested", nil)
	m.logger.Info("job cancellation requested", "job_id", id, "was_running", true)
	return nil
}

// Resume re-arms a failed, recoverable job back to queued under the same
// id. The checkpoint stays, so the next run skips completed chapters.
func (m *Manager) Resume(ctx context.Context, id uuid.UUID) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !job.CanBeResumed() {
		return fmt.Errorf("%w: status=%s recoverable=%t", domain.ErrNotResumable,
			job.Status, job.Error != nil && job.Error.Recoverable)
	}

	if err := m.store.Requeue(ctx, id); err != nil {
		return err
	}

	_ = m.store.AppendLog(ctx, id, domain.LogLevelInfo, "job resumed",
		map[string]any{"completed_chapters": len(job.Checkpoint.CompletedChapters)})
	m.logger.Info("job resumed", "job_id", id, "last_unit", job.Checkpoint.LastUnit())
	return nil
}

// Delete removes a finished job with its logs and tracked files. Active
// jobs must be cancelled first.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsActive() {
		return fmt.Errorf("%w: cannot delete a %s job, cancel it first", domain.ErrIllegalTransition, job.Status)
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("job deleted", "job_id", id)
	return nil
}

// CleanupOldJobs removes completed jobs older than the retention window
// and returns how many were removed.
func (m *Manager) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	deleted, err := m.store.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		m.logger.Info("cleaned up old jobs", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Statistics returns job counts per status.
func (m *Manager) Statistics(ctx context.Context) (map[domain.JobStatus]int, error) {
	return m.store.CountByStatus(ctx)
}
