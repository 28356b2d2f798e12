package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/konsultti/kokoro-tts/internal/domain"
	"github.com/konsultti/kokoro-tts/internal/executor"
	"github.com/konsultti/kokoro-tts/internal/platform/logger"
	"github.com/konsultti/kokoro-tts/internal/store"
)

// Sentinels used to stop an executor run at a unit boundary. Neither one
// escapes the worker.
var (
	errCancelRequested = errors.New("cancellation requested")
	errClaimLost       = errors.New("claim no longer held")
)

// Config holds the worker's timing knobs.
type Config struct {
	// PollInterval is how long to wait between claim attempts when the
	// queue is empty.
	PollInterval time.Duration

	// HeartbeatInterval is how often the claim is refreshed while a job is
	// being processed. Must be well under StaleAfter.
	HeartbeatInterval time.Duration

	// StaleAfter is the age at which another worker's unrefreshed claim is
	// treated as orphaned and reclaimed.
	StaleAfter time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:      2 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		StaleAfter:        60 * time.Second,
	}
}

// Worker polls the store, claims jobs and processes them one at a time.
type Worker struct {
	id      string
	store   store.JobStore
	exec    executor.Executor
	encoder executor.Encoder
	config  Config
	logger  *slog.Logger
}

// New creates a worker. An empty id gets a generated one unique to this
// process.
func New(id string, jobStore store.JobStore, exec executor.Executor, encoder executor.Encoder, config Config, log *slog.Logger) *Worker {
	if id == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "worker"
		}
		id = fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
	}

	defaults := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}

	return &Worker{
		id:      id,
		store:   jobStore,
		exec:    exec,
		encoder: encoder,
		config:  config,
		logger:  log,
	}
}

// ID returns the worker's claim owner identifier.
func (w *Worker) ID() string {
	return w.id
}

// Run polls for work until ctx is cancelled. When shutdown interrupts a
// job mid-run, the in-flight unit finishes and the job is left claimed;
// its heartbeat goes stale and another worker resumes it from the
// persisted checkpoint.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"worker_id", w.id,
		"poll_interval", w.config.PollInterval,
		"stale_after", w.config.StaleAfter)

	for {
		job, err := w.store.ClaimNext(ctx, w.id, time.Now().UTC(), w.config.StaleAfter)
		switch {
		case err == nil:
			w.process(ctx, job)
			// Check for more work immediately; an empty queue is the only
			// reason to sleep.
			continue
		case errors.Is(err, store.ErrNoJobAvailable):
			// Queue is empty.
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Shutdown mid-claim.
		default:
			w.logger.Error("failed to claim next job", "worker_id", w.id, "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", "worker_id", w.id)
			return ctx.Err()
		case <-time.After(w.config.PollInterval):
		}
	}
}

// runState accumulates the mutable bookkeeping of one job run.
type runState struct {
	checkpoint *domain.Checkpoint
	artifacts  []string
	startedAt  time.Time
}

// process drives one claimed job to a terminal state (or deliberately
// leaves it claimed on shutdown / lost claim).
func (w *Worker) process(ctx context.Context, job *domain.Job) {
	log := w.logger.With("job_id", job.ID, "worker_id", w.id)
	ctx = logger.WithLogger(ctx, log)

	resumed := job.Checkpoint.LastUnit() >= 0
	log.Info("job claimed", "input", job.Input.Path, "resumed", resumed)
	_ = w.store.AppendLog(ctx, job.ID, domain.LogLevelInfo, "processing started",
		map[string]any{"worker": w.id, "resumed": resumed})

	state := &runState{
		checkpoint: job.Checkpoint,
		startedAt:  time.Now(),
	}
	if state.checkpoint == nil {
		state.checkpoint = domain.NewCheckpoint()
	}

	// The run context is cancelled either by shutdown (parent) or by the
	// heartbeat loop discovering the claim is gone.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var claimLost atomic.Bool
	hbDone := make(chan struct{})
	go w.heartbeatLoop(runCtx, job.ID, &claimLost, cancelRun, hbDone)

	runErr := w.exec.Run(runCtx, job, w.emitFunc(runCtx, job, state, &claimLost))
	if runErr == nil {
		runErr = w.finish(runCtx, job, state)
	}

	cancelRun()
	<-hbDone

	w.conclude(ctx, job, state, runErr, claimLost.Load())
}

// emitFunc builds the unit-boundary callback: persist progress and
// checkpoint under the claim, then observe the cooperative cancel flag.
func (w *Worker) emitFunc(ctx context.Context, job *domain.Job, state *runState, claimLost *atomic.Bool) func(executor.Unit) error {
	return func(u executor.Unit) error {
		now := time.Now().UTC()
		state.checkpoint.MarkChapterCompleted(u.Index)
		state.artifacts = append(state.artifacts, u.ArtifactPaths...)

		progress := domain.Progress{
			TotalChapters:      u.Total,
			CompletedChapters:  len(state.checkpoint.CompletedChapters),
			CurrentChapterName: u.ChapterName,
			CurrentOperation:   fmt.Sprintf("Synthesized chapter %d/%d", u.Index+1, u.Total),
			LastUpdate:         now,
		}
		progress.UpdatePercentage()
		progress.UpdateETA(time.Since(state.startedAt))

		var held bool
		err := store.WithRetry(ctx, func() error {
			var uerr error
			held, uerr = w.store.UpdateProgress(ctx, job.ID, w.id, progress, state.checkpoint, now)
			return uerr
		})
		if err != nil {
			return fmt.Errorf("failed to persist progress for unit %d: %w", u.Index, err)
		}
		if !held {
			claimLost.Store(true)
			return errClaimLost
		}

		fresh, err := w.store.Get(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("failed to check cancellation flag: %w", err)
		}
		if fresh.CancelRequested {
			return errCancelRequested
		}
		return nil
	}
}

// finish encodes the collected artifacts into the final output and marks
// the job completed.
func (w *Worker) finish(ctx context.Context, job *domain.Job, state *runState) error {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()

	progress := domain.Progress{
		TotalChapters:     len(state.checkpoint.CompletedChapters),
		CompletedChapters: len(state.checkpoint.CompletedChapters),
		CurrentOperation:  fmt.Sprintf("Encoding %s output", job.Output.Format),
		Percentage:        100,
		LastUpdate:        now,
	}
	if _, err := w.store.UpdateProgress(ctx, job.ID, w.id, progress, state.checkpoint, now); err != nil {
		log.Warn("failed to record encoding progress", "error", err)
	}

	size, err := w.encoder.Encode(ctx, state.artifacts, job.Output, job.Options)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	err = store.WithRetry(ctx, func() error {
		return w.store.MarkCompleted(ctx, job.ID, w.id, size, time.Now().UTC())
	})
	if err != nil {
		return err
	}

	_ = w.store.AddFile(ctx, job.ID, job.Output.Path, domain.FileKindOutput, size)
	_ = w.store.AppendLog(ctx, job.ID, domain.LogLevelInfo, "processing completed",
		map[string]any{"output": job.Output.Path, "size": size})
	log.Info("job completed", "output", job.Output.Path, "size", size)
	return nil
}

// conclude routes the run's outcome to the matching terminal transition.
func (w *Worker) conclude(ctx context.Context, job *domain.Job, state *runState, runErr error, claimLost bool) {
	log := logger.FromContext(ctx)

	switch {
	case runErr == nil:
		// Completed inside finish.

	case errors.Is(runErr, errCancelRequested):
		err := store.WithRetry(ctx, func() error {
			return w.store.MarkCancelled(ctx, job.ID, w.id, time.Now().UTC())
		})
		if err != nil {
			log.Error("failed to mark job cancelled", "error", err)
			return
		}
		_ = w.store.AppendLog(ctx, job.ID, domain.LogLevelInfo, "processing cancelled", nil)
		log.Info("job cancelled at unit boundary")

	case claimLost || errors.Is(runErr, errClaimLost) || errors.Is(runErr, store.ErrClaimMismatch):
		// The job belongs to someone else now. Touch nothing.
		log.Warn("claim lost during processing, abandoning job")

	case ctx.Err() != nil:
		// Shutdown. The last completed unit's checkpoint is persisted; the
		// claim will go stale and the job resumes elsewhere.
		log.Info("shutdown during processing, leaving job for reclamation")

	default:
		w.fail(ctx, job, state, runErr)
	}
}

// fail classifies the error and records it on the job.
func (w *Worker) fail(ctx context.Context, job *domain.Job, state *runState, runErr error) {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()

	errInfo := domain.ErrorInfo{
		Message:   runErr.Error(),
		Timestamp: now,
	}

	var unitErr *executor.UnitError
	switch {
	case errors.As(runErr, &unitErr):
		idx := unitErr.Index
		errInfo.Kind = domain.ErrorKindUnit
		errInfo.FailedChapterIndex = &idx
		errInfo.FailedOperation = fmt.Sprintf("synthesize chapter %q", unitErr.Name)
		errInfo.Recoverable = true
		errInfo.RecoverySuggestion = "resume the job to retry from the last completed chapter"
	case store.IsTransient(runErr):
		errInfo.Kind = domain.ErrorKindStore
		errInfo.Recoverable = true
		errInfo.RecoverySuggestion = "resume the job once the store is healthy"
	default:
		errInfo.Kind = domain.ErrorKindFatal
		// Encoder failures happen after every chapter succeeded; the
		// checkpoint makes a resume skip straight to re-encoding.
		errInfo.Recoverable = len(state.checkpoint.CompletedChapters) > 0
		if errInfo.Recoverable {
			errInfo.RecoverySuggestion = "resume the job to retry from the last completed chapter"
		}
	}

	err := store.WithRetry(ctx, func() error {
		return w.store.MarkFailed(ctx, job.ID, w.id, errInfo, state.checkpoint, now)
	})
	if err != nil {
		log.Error("failed to mark job failed", "error", err)
		return
	}

	_ = w.store.AppendLog(ctx, job.ID, domain.LogLevelError, "processing failed",
		map[string]any{"kind": string(errInfo.Kind), "error": runErr.Error()})
	log.Error("job failed", "kind", errInfo.Kind, "error", runErr)
}

// heartbeatLoop refreshes the claim while a job runs. Discovering that the
// claim is gone cancels the run.
func (w *Worker) heartbeatLoop(ctx context.Context, jobID uuid.UUID, claimLost *atomic.Bool, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := w.store.Heartbeat(ctx, jobID, w.id, time.Now().UTC())
			if err != nil {
				logger.FromContext(ctx).Warn("heartbeat failed", "job_id", jobID, "error", err)
				continue
			}
			if !held {
				claimLost.Store(true)
				cancel()
				return
			}
		}
	}
}
