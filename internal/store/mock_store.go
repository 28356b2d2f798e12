package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/konsultti/kokoro-tts/internal/domain"
)

// MockJobStore implements JobStore in memory for testing. Default behavior
// follows the real store's semantics, including claim checks and state
// machine enforcement; individual methods can be overridden through the Fn
// fields to inject failures.
type MockJobStore struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]*domain.Job
	logs  map[uuid.UUID][]domain.JobLog
	files map[uuid.UUID][]domain.JobFile
	logID int64

	InsertFn         func(ctx context.Context, job *domain.Job) error
	GetFn            func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ClaimNextFn      func(ctx context.Context, workerID string, now time.Time, staleAfter time.Duration) (*domain.Job, error)
	UpdateProgressFn func(ctx context.Context, id uuid.UUID, workerID string, progress domain.Progress, checkpoint *domain.Checkpoint, heartbeat time.Time) (bool, error)
	HeartbeatFn      func(ctx context.Context, id uuid.UUID, workerID string, now time.Time) (bool, error)
	MarkCompletedFn  func(ctx context.Context, id uuid.UUID, workerID string, outputSize int64, now time.Time) error
	MarkFailedFn     func(ctx context.Context, id uuid.UUID, workerID string, errInfo domain.ErrorInfo, checkpoint *domain.Checkpoint, now time.Time) error
	MarkCancelledFn  func(ctx context.Context, id uuid.UUID, workerID string, now time.Time) error
	RequestCancelFn  func(ctx context.Context, id uuid.UUID) error
	RequeueFn        func(ctx context.Context, id uuid.UUID) error
}

// NewMockJobStore creates an empty in-memory store.
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{
		jobs:  make(map[uuid.UUID]*domain.Job),
		logs:  make(map[uuid.UUID][]domain.JobLog),
		files: make(map[uuid.UUID][]domain.JobFile),
	}
}

func (m *MockJobStore) Insert(ctx context.Context, job *domain.Job) error {
	if m.InsertFn != nil {
		return m.InsertFn(ctx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return NewStoreError("job", "insert", "duplicate id", ErrDuplicateID)
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MockJobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MockJobStore) List(_ context.Context, filter JobFilter) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Job
	for _, job := range m.jobs {
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		if filter.Active && !job.Status.IsActive() {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}

	// Queue order for active listings, newest first otherwise.
	if filter.Active {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MockJobStore) ClaimNext(ctx context.Context, workerID string, now time.Time, staleAfter time.Duration) (*domain.Job, error) {
	if m.ClaimNextFn != nil {
		return m.ClaimNextFn(ctx, workerID, now, staleAfter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	staleBefore := now.Add(-staleAfter)
	var candidate *domain.Job
	for _, job := range m.jobs {
		eligible := job.Status == domain.JobStatusQueued ||
			(job.Status == domain.JobStatusRunning && job.ClaimHeartbeat != nil && job.ClaimHeartbeat.Before(staleBefore))
		if !eligible {
			continue
		}
		if candidate == nil || job.CreatedAt.Before(candidate.CreatedAt) {
			candidate = job
		}
	}
	if candidate == nil {
		return nil, ErrNoJobAvailable
	}

	candidate.Status = domain.JobStatusRunning
	candidate.ClaimOwner = workerID
	hb := now
	candidate.ClaimHeartbeat = &hb
	if candidate.StartedAt == nil {
		started := now
		candidate.StartedAt = &started
	}

	cp := *candidate
	return &cp, nil
}

func (m *MockJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, workerID string, progress domain.Progress, checkpoint *domain.Checkpoint, heartbeat time.Time) (bool, error) {
	if m.UpdateProgressFn != nil {
		return m.UpdateProgressFn(ctx, id, workerID, progress, checkpoint, heartbeat)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status != domain.JobStatusRunning || job.ClaimOwner != workerID {
		return false, nil
	}
	job.Progress = progress
	job.Checkpoint = checkpoint
	hb := heartbeat
	job.ClaimHeartbeat = &hb
	return true, nil
}

func (m *MockJobStore) Heartbeat(ctx context.Context, id uuid.UUID, workerID string, now time.Time) (bool, error) {
	if m.HeartbeatFn != nil {
		return m.HeartbeatFn(ctx, id, workerID, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status != domain.JobStatusRunning || job.ClaimOwner != workerID {
		return false, nil
	}
	hb := now
	job.ClaimHeartbeat = &hb
	return true, nil
}

func (m *MockJobStore) MarkCompleted(ctx context.Context, id uuid.UUID, workerID string, outputSize int64, now time.Time) error {
	if m.MarkCompletedFn != nil {
		return m.MarkCompletedFn(ctx, id, workerID, outputSize, now)
	}
	return m.terminal(id, workerID, domain.JobStatusCompleted, func(job *domain.Job) {
		job.Output.Size = outputSize
		done := now
		job.CompletedAt = &done
		if job.StartedAt != nil {
			secs := now.Sub(*job.StartedAt).Seconds()
			job.ProcessingSeconds = &secs
		}
	})
}

func (m *MockJobStore) MarkFailed(ctx context.Context, id uuid.UUID, workerID string, errInfo domain.ErrorInfo, checkpoint *domain.Checkpoint, now time.Time) error {
	if m.MarkFailedFn != nil {
		return m.MarkFailedFn(ctx, id, workerID, errInfo, checkpoint, now)
	}
	return m.terminal(id, workerID, domain.JobStatusFailed, func(job *domain.Job) {
		job.Error = &errInfo
		job.Checkpoint = checkpoint
		done := now
		job.CompletedAt = &done
	})
}

func (m *MockJobStore) MarkCancelled(ctx context.Context, id uuid.UUID, workerID string, now time.Time) error {
	if m.MarkCancelledFn != nil {
		return m.MarkCancelledFn(ctx, id, workerID, now)
	}
	return m.terminal(id, workerID, domain.JobStatusCancelled, func(job *domain.Job) {
		job.CancelRequested = false
		done := now
		job.CompletedAt = &done
	})
}

// terminal applies the shared transition rules for the Mark* operations.
func (m *MockJobStore) terminal(id uuid.UUID, workerID string, to domain.JobStatus, apply func(*domain.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !domain.CanTransition(job.Status, to) {
		return NewStoreError("job", "transition", "illegal transition", ErrIllegalTransition)
	}
	if job.Status == domain.JobStatusRunning && workerID != "" && job.ClaimOwner != workerID {
		return NewStoreError("job", "transition", "claim mismatch", ErrClaimMismatch)
	}

	job.Status = to
	job.ClaimOwner = ""
	job.ClaimHeartbeat = nil
	apply(job)
	return nil
}

func (m *MockJobStore) RequestCancel(ctx context.Context, id uuid.UUID) error {
	if m.RequestCancelFn != nil {
		return m.RequestCancelFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != domain.JobStatusRunning {
		return NewStoreError("job", "request_cancel", "job is not running", ErrIllegalTransition)
	}
	job.CancelRequested = true
	return nil
}

func (m *MockJobStore) Requeue(ctx context.Context, id uuid.UUID) error {
	if m.RequeueFn != nil {
		return m.RequeueFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !domain.CanTransition(job.Status, domain.JobStatusQueued) {
		return NewStoreError("job", "requeue", "illegal transition", ErrIllegalTransition)
	}

	job.Status = domain.JobStatusQueued
	job.Error = nil
	job.StartedAt = nil
	job.CompletedAt = nil
	job.ClaimOwner = ""
	job.ClaimHeartbeat = nil
	job.CancelRequested = false
	job.ProcessingSeconds = nil
	return nil
}

func (m *MockJobStore) AppendLog(_ context.Context, id uuid.UUID, level domain.LogLevel, message string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logID++
	m.logs[id] = append(m.logs[id], domain.JobLog{
		ID:        m.logID,
		JobID:     id,
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Metadata:  metadata,
	})
	return nil
}

func (m *MockJobStore) Logs(_ context.Context, id uuid.UUID, level *domain.LogLevel, limit int) ([]domain.JobLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.logs[id]
	var out []domain.JobLog
	for i := len(entries) - 1; i >= 0; i-- {
		if level != nil && entries[i].Level != *level {
			continue
		}
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockJobStore) AddFile(_ context.Context, id uuid.UUID, path string, kind domain.FileKind, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[id] = append(m.files[id], domain.JobFile{
		ID:        int64(len(m.files[id]) + 1),
		JobID:     id,
		Path:      path,
		Kind:      kind,
		Size:      size,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *MockJobStore) Files(_ context.Context, id uuid.UUID, kind *domain.FileKind) ([]domain.JobFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.JobFile
	for _, f := range m.files[id] {
		if kind != nil && f.Kind != *kind {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (m *MockJobStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(m.jobs, id)
	delete(m.logs, id)
	delete(m.files, id)
	return nil
}

func (m *MockJobStore) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, job := range m.jobs {
		if job.Status == domain.JobStatusCompleted && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			delete(m.logs, id)
			delete(m.files, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MockJobStore) CountByStatus(_ context.Context) (map[domain.JobStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[domain.JobStatus]int)
	for _, job := range m.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

// WithTx returns the mock itself; the in-memory store has no transactions.
func (m *MockJobStore) WithTx(*sql.Tx) JobStore {
	return m
}
