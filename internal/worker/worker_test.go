package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konsultti/kokoro-tts/internal/domain"
	"github.com/konsultti/kokoro-tts/internal/executor"
	"github.com/konsultti/kokoro-tts/internal/store"
)

// fakeExecutor emits a fixed set of units per run and then returns err.
// A nil blockUntil runs straight through; otherwise Run parks until the
// context is cancelled, simulating a long unit.
type fakeExecutor struct {
	mu      sync.Mutex
	units   []executor.Unit
	err     error
	block   bool
	jobsRun []uuid.UUID
	emitted int
}

func (f *fakeExecutor) Run(ctx context.Context, job *domain.Job, emit func(executor.Unit) error) error {
	f.mu.Lock()
	f.jobsRun = append(f.jobsRun, job.ID)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}

	for _, u := range f.units {
		if job.Checkpoint.IsChapterCompleted(u.Index) {
			u.Skipped = true
		}
		f.mu.Lock()
		f.emitted++
		f.mu.Unlock()
		if err := emit(u); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeExecutor) emittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emitted
}

type fakeEncoder struct {
	size      int64
	err       error
	artifacts []string
}

func (f *fakeEncoder) Encode(_ context.Context, artifacts []string, _ domain.OutputDescriptor, _ json.RawMessage) (int64, error) {
	f.artifacts = artifacts
	return f.size, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func queuedJob(t *testing.T) *domain.Job {
	t.Helper()

	job, err := domain.NewJob(
		domain.InputDescriptor{Path: "/books/test.epub", Type: domain.InputTypeEPUB, Size: 4096},
		domain.OutputDescriptor{Path: "/audio/test.m4a", Format: domain.OutputFormatM4A},
		[]byte(`{"voice":"af_sarah"}`),
		nil,
	)
	require.NoError(t, err)
	return job
}

// claim inserts the job and claims it for the worker, the way Run would.
func claim(t *testing.T, s store.JobStore, w *Worker, job *domain.Job) *domain.Job {
	t.Helper()

	require.NoError(t, s.Insert(context.Background(), job))
	claimed, err := s.ClaimNext(context.Background(), w.ID(), time.Now().UTC(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)
	return claimed
}

func twoUnits() []executor.Unit {
	return []executor.Unit{
		{Index: 0, ChapterName: "Prologue", ArtifactPaths: []string{"/tmp/ch0.wav"}, Total: 2},
		{Index: 1, ChapterName: "Chapter One", ArtifactPaths: []string{"/tmp/ch1.wav"}, Total: 2},
	}
}

func TestWorker_ProcessCompletesJob(t *testing.T) {
	t.Parallel()

	s := store.NewMockJobStore()
	exec := &fakeExecutor{units: twoUnits()}
	enc := &fakeEncoder{size: 123456}
	w := New("w1", s, exec, enc, DefaultConfig(), testLogger())

	job := claim(t, s, w, queuedJob(t))
	w.process(context.Background(), job)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, int64(123456), got.Output.Size)
	require.NotNil(t, got.Progress)
	assert.InDelta(t, 100.0, got.Progress.Percentage, 0.001)
	require.NotNil(t, got.Checkpoint)
	assert.Equal(t, []int{0, 1}, got.Checkpoint.CompletedChapters)

	// The encoder received every unit artifact in order.
	assert.Equal(t, []string{"/tmp/ch0.wav", "/tmp/ch1.wav"}, enc.artifacts)

	files, err := s.Files(context.Background(), job.ID, nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, domain.FileKindOutput, files[0].Kind)

	logs, err := s.Logs(context.Background(), job.ID, nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "processing completed", logs[0].Message)
}

func TestWorker_ProcessMarksUnitFailure(t *testing.T) {
	t.Parallel()

	s := store.NewMockJobStore()
	exec := &fakeExecutor{
		units: twoUnits()[:1],
		err:   &executor.UnitError{Index: 1, Name: "Chapter One", Err: errors.New("synthesis blew up")},
	}
	w := New("w1", s, exec, &fakeEncoder{}, DefaultConfig(), testLogger())

	job := claim(t, s, w, queuedJob(t))
	w.process(context.Background(), job)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, domain.ErrorKindUnit, got.Error.Kind)
	require.NotNil(t, got.Error.FailedChapterIndex)
	assert.Equal(t, 1, *got.Error.FailedChapterIndex)
	assert.True(t, got.Error.Recoverable)

	// The completed unit survives in the checkpoint for resume.
	require.NotNil(t, got.Checkpoint)
	assert.Equal(t, []int{0}, got.Checkpoint.CompletedChapters)
	assert.True(t, got.CanBeResumed())
}

func TestWorker_ProcessMarksFatalFailure(t *testing.T) {
	t.Parallel()

	s := store.NewMockJobStore()
	exec := &fakeExecutor{err: errors.New("no chapters found in /books/test.epub")}
	w := New("w1", s, exec, &fakeEncoder{}, DefaultConfig(), testLogger())

	job := claim(t, s, w, queuedJob(t))
	w.process(context.Background(), job)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, domain.ErrorKindFatal, got.Error.Kind)
	assert.False(t, got.Error.Recoverable, "nothing completed, nothing to resume from")
	assert.False(t, got.CanBeResumed())
}

func TestWorker_EncoderFailureIsRecoverable(t *testing.T) {
	t.Parallel()

	s := store.NewMockJobStore()
	exec := &fakeExecutor{units: twoUnits()}
	enc := &fakeEncoder{err: errors.New("ffmpeg exited 1")}
	w := New("w1", s, exec, enc, DefaultConfig(), testLogger())

	job := claim(t, s, w, queuedJob(t))
	w.process(context.Background(), job)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, domain.ErrorKindFatal, got.Error.Kind)
	assert.True(t, got.Error.Recoverable, "all chapters are checkpointed, resume only re-encodes")
	assert.True(t, got.CanBeResumed())
}

func TestWorker_CancelObservedAtUnitBoundary(t *testing.T) {
	t.Parallel()

	s := store.NewMockJobStore()
	exec := &fakeExecutor{units: []executor.Unit{
		{Index: 0, ChapterName: "One", Total: 3},
		{Index: 1, ChapterName: "Two", Total: 3},
		{Index: 2, ChapterName: "Three", Total: 3},
	}}
	w := New("w1", s, exec, &fakeEncoder{}, DefaultConfig(), testLogger())

	job := claim(t, s, w, queuedJob(t))
	require.NoError(t, s.RequestCancel(context.Background(), job.ID))

	w.process(context.Background(), job)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
	assert.False(t, got.CancelRequested)

	// The flag was seen after the first unit, not before and not at the
	// end.
	assert.Equal(t, 1, exec.emittedCount())
}

func TestWorker_AbandonsJobWhenClaimLost(t *testing.T) {
	t.Parallel()

	s := store.NewMockJobStore()
	exec := &fakeExecutor{units: twoUnits()}
	w := New("w1", s, exec, &fakeEncoder{}, DefaultConfig(), testLogger())

	job := claim(t, s, w, queuedJob(t))

	// Another worker took the job over; every claim-checked write misses.
	s.UpdateProgressFn = func(context.Context, uuid.UUID, string, domain.Progress, *domain.Checkpoint, time.Time) (bool, error) {
		return false, nil
	}
	s.MarkCompletedFn = func(context.Context, uuid.UUID, string, int64, time.Time) error {
		t.Error("must not write a terminal state after losing the claim")
		return nil
	}
	s.MarkFailedFn = func(context.Context, uuid.UUID, string, domain.ErrorInfo, *domain.Checkpoint, time.Time) error {
		t.Error("must not write a terminal state after losing the claim")
		return nil
	}

	w.process(context.Background(), job)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status, "abandoned job is left to its new owner")
}

func TestWorker_HeartbeatLossCancelsRun(t *testing.T) {
	t.Parallel()

	s := store.NewMockJobStore()
	exec := &fakeExecutor{block: true}
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 5 * time.Millisecond
	w := New("w1", s, exec, &fakeEncoder{}, cfg, testLogger())

	job := claim(t, s, w, queuedJob(t))

	s.HeartbeatFn = func(context.Context, uuid.UUID, string, time.Time) (bool, error) {
		return false, nil
	}

	done := make(chan struct{})
	go func() {
		w.process(context.Background(), job)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after losing its claim")
	}

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
}

func TestWorker_ShutdownLeavesJobForReclamation(t *testing.T) {
	t.Parallel()

	s := store.NewMockJobStore()
	exec := &fakeExecutor{block: true}
	w := New("w1", s, exec, &fakeEncoder{}, DefaultConfig(), testLogger())

	job := claim(t, s, w, queuedJob(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.process(ctx, job)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on shutdown")
	}

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
	assert.Equal(t, "w1", got.ClaimOwner, "claim stays put until it goes stale")
}

func TestWorker_RunProcessesQueueInOrder(t *testing.T) {
	t.Parallel()

	s := store.NewMockJobStore()
	exec := &fakeExecutor{units: []executor.Unit{{Index: 0, ChapterName: "Only", Total: 1}}}
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	w := New("w1", s, exec, &fakeEncoder{size: 1}, cfg, testLogger())

	now := time.Now().UTC()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		job := queuedJob(t)
		job.CreatedAt = now.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Insert(context.Background(), job))
		ids = append(ids, job.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		counts, err := s.CountByStatus(context.Background())
		return err == nil && counts[domain.JobStatusCompleted] == 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.Equal(t, ids, exec.jobsRun, "jobs must be processed in submission order")
}

func TestWorker_GeneratedID(t *testing.T) {
	t.Parallel()

	w := New("", store.NewMockJobStore(), &fakeExecutor{}, &fakeEncoder{}, Config{}, testLogger())
	assert.NotEmpty(t, w.ID())
	assert.Equal(t, DefaultConfig().PollInterval, w.config.PollInterval)
}
