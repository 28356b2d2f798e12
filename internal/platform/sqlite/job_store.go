package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/konsultti/kokoro-tts/internal/domain"
	"github.com/konsultti/kokoro-tts/internal/platform/logger"
	"github.com/konsultti/kokoro-tts/internal/store"
)

// jobColumns is the canonical column list scanned by scanJob.
const jobColumns = `id, status, created_at, started_at, completed_at,
	input_path, input_type, input_size,
	output_path, output_format, output_size,
	options, metadata, progress, error_info, checkpoint,
	cancel_requested, claim_owner, claim_heartbeat, processing_seconds`

// SQLiteJobStore implements the store.JobStore interface on SQLite.
type SQLiteJobStore struct {
	db store.DBTX

	// sqlDB is the underlying connection, used to open transactions for
	// multi-statement operations. Nil when the store is bound to a
	// caller-managed transaction via WithTx.
	sqlDB *sql.DB
}

// NewJobStore creates a SQLiteJobStore over the given database.
func NewJobStore(db *sql.DB) *SQLiteJobStore {
	return &SQLiteJobStore{db: db, sqlDB: db}
}

// WithTx returns a JobStore bound to the provided transaction.
func (s *SQLiteJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &SQLiteJobStore{db: tx}
}

// inTx runs fn inside a transaction, or directly when the store is already
// bound to one.
func (s *SQLiteJobStore) inTx(ctx context.Context, fn func(q store.DBTX) error) error {
	if s.sqlDB == nil {
		return fn(s.db)
	}
	return store.RunInTransaction(ctx, s.sqlDB, func(ctx context.Context, tx *sql.Tx) error {
		return fn(tx)
	})
}

// Insert persists a new queued job.
func (s *SQLiteJobStore) Insert(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	progressJSON, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	query := `
		INSERT INTO jobs (
			id, status, created_at, started_at, completed_at,
			input_path, input_type, input_size,
			output_path, output_format, output_size,
			options, metadata, progress, error_info, checkpoint,
			cancel_requested, claim_owner, claim_heartbeat, processing_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		job.ID.String(),
		string(job.Status),
		job.CreatedAt,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.Input.Path,
		string(job.Input.Type),
		nullInt(job.Input.Size),
		job.Output.Path,
		string(job.Output.Format),
		nullInt(job.Output.Size),
		nullJSON(job.Options),
		marshalNullable(job.Metadata),
		string(progressJSON),
		marshalNullable(job.Error),
		marshalNullable(job.Checkpoint),
		job.CancelRequested,
		nullString(job.ClaimOwner),
		nullTime(job.ClaimHeartbeat),
		nullFloat(job.ProcessingSeconds),
	)
	if err != nil {
		return store.NewStoreError("job", "insert", "failed to insert job", MapError(err))
	}

	return nil
}

// Get retrieves a job by id.
func (s *SQLiteJobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id.String())

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(MapError(err), store.ErrNotFound) {
			return nil, store.ErrJobNotFound
		}
		return nil, store.NewStoreError("job", "get", "failed to scan job", err)
	}

	return job, nil
}

// List returns jobs matching the filter.
func (s *SQLiteJobStore) List(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any

	switch {
	case filter.Active:
		query += ` WHERE status IN ('queued', 'running', 'paused') ORDER BY created_at ASC`
	case filter.Status != nil:
		query += ` WHERE status = ? ORDER BY created_at DESC`
		args = append(args, string(*filter.Status))
	default:
		query += ` ORDER BY created_at DESC`
	}

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("job", "list", "failed to query jobs", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, store.NewStoreError("job", "list", "failed to scan job row", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("job", "list", "error iterating job rows", MapError(err))
	}

	return jobs, nil
}

// ClaimNext atomically claims the oldest eligible job for workerID.
// Eligible means queued, or running with a heartbeat staler than
// staleAfter — an orphaned claim left by a crashed worker. The selection
// and the claim write share one transaction, so concurrent workers cannot
// claim the same job twice.
func (s *SQLiteJobStore) ClaimNext(ctx context.Context, workerID string, now time.Time, staleAfter time.Duration) (*domain.Job, error) {
	log := logger.FromContext(ctx)
	staleBefore := now.Add(-staleAfter)

	var claimed *domain.Job
	err := s.inTx(ctx, func(q store.DBTX) error {
		row := q.QueryRowContext(ctx, `
			SELECT id, status, claim_owner FROM jobs
			WHERE status = 'queued'
			   OR (status = 'running' AND claim_heartbeat IS NOT NULL AND claim_heartbeat < ?)
			ORDER BY created_at ASC
			LIMIT 1
		`, staleBefore)

		var id, status string
		var prevOwner sql.NullString
		if err := row.Scan(&id, &status, &prevOwner); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNoJobAvailable
			}
			return MapError(err)
		}

		if domain.JobStatus(status) == domain.JobStatusRunning {
			log.Warn("reclaiming orphaned job claim",
				"job_id", id,
				"previous_owner", prevOwner.String,
				"new_owner", workerID)
		}

		// started_at is preserved on reclaim so elapsed time spans the
		// whole attempt, matching set-exactly-once semantics.
		_, err := q.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'running',
			    claim_owner = ?,
			    claim_heartbeat = ?,
			    started_at = COALESCE(started_at, ?)
			WHERE id = ?
		`, workerID, now, now, id)
		if err != nil {
			return MapError(err)
		}

		job, err := scanJob(q.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
		if err != nil {
			return MapError(err)
		}
		claimed = job
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNoJobAvailable) {
			return nil, store.ErrNoJobAvailable
		}
		return nil, store.NewStoreError("job", "claim_next", "failed to claim job", err)
	}

	return claimed, nil
}

// UpdateProgress writes progress, checkpoint and heartbeat in one minimal
// statement. Returns false when the claim no longer matches the caller;
// a zombie worker's late writes land here and are discarded.
func (s *SQLiteJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, workerID string, progress domain.Progress, checkpoint *domain.Checkpoint, heartbeat time.Time) (bool, error) {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return false, fmt.Errorf("failed to marshal progress: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET progress = ?, checkpoint = ?, claim_heartbeat = ?
		WHERE id = ? AND status = 'running' AND claim_owner = ?
	`, string(progressJSON), marshalNullable(checkpoint), heartbeat, id.String(), workerID)
	if err != nil {
		return false, store.NewStoreError("job", "update_progress", "failed to update progress", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, store.NewStoreError("job", "update_progress", "failed to get rows affected", err)
	}

	return affected > 0, nil
}

// Heartbeat refreshes the claim timestamp for a job the caller owns.
func (s *SQLiteJobStore) Heartbeat(ctx context.Context, id uuid.UUID, workerID string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET claim_heartbeat = ?
		WHERE id = ? AND status = 'running' AND claim_owner = ?
	`, now, id.String(), workerID)
	if err != nil {
		return false, store.NewStoreError("job", "heartbeat", "failed to refresh heartbeat", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, store.NewStoreError("job", "heartbeat", "failed to get rows affected", err)
	}

	return affected > 0, nil
}

// MarkCompleted transitions a claimed running job to completed.
func (s *SQLiteJobStore) MarkCompleted(ctx context.Context, id uuid.UUID, workerID string, outputSize int64, now time.Time) error {
	return s.terminalTransition(ctx, id, workerID, domain.JobStatusCompleted, "mark_completed", func(q store.DBTX, job *domain.Job) error {
		var processing sql.NullFloat64
		if job.StartedAt != nil {
			processing = sql.NullFloat64{Float64: now.Sub(*job.StartedAt).Seconds(), Valid: true}
		}

		_, err := q.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'completed',
			    completed_at = ?,
			    output_size = ?,
			    processing_seconds = ?,
			    claim_owner = NULL,
			    claim_heartbeat = NULL
			WHERE id = ?
		`, now, outputSize, processing, id.String())
		return MapError(err)
	})
}

// MarkFailed transitions a claimed running job to failed, recording the
// classified error and resume checkpoint.
func (s *SQLiteJobStore) MarkFailed(ctx context.Context, id uuid.UUID, workerID string, errInfo domain.ErrorInfo, checkpoint *domain.Checkpoint, now time.Time) error {
	return s.terminalTransition(ctx, id, workerID, domain.JobStatusFailed, "mark_failed", func(q store.DBTX, job *domain.Job) error {
		_, err := q.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'failed',
			    completed_at = ?,
			    error_info = ?,
			    checkpoint = ?,
			    claim_owner = NULL,
			    claim_heartbeat = NULL
			WHERE id = ?
		`, now, marshalNullable(&errInfo), marshalNullable(checkpoint), id.String())
		return MapError(err)
	})
}

// MarkCancelled transitions a job to cancelled. An empty workerID is a
// manager-forced cancellation and skips the claim check; the state machine
// still applies.
func (s *SQLiteJobStore) MarkCancelled(ctx context.Context, id uuid.UUID, workerID string, now time.Time) error {
	return s.terminalTransition(ctx, id, workerID, domain.JobStatusCancelled, "mark_cancelled", func(q store.DBTX, job *domain.Job) error {
		_, err := q.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'cancelled',
			    completed_at = ?,
			    claim_owner = NULL,
			    claim_heartbeat = NULL,
			    cancel_requested = 0
			WHERE id = ?
		`, now, id.String())
		return MapError(err)
	})
}

// terminalTransition loads the job, checks the state machine and the claim,
// then applies the update, all in one transaction.
func (s *SQLiteJobStore) terminalTransition(ctx context.Context, id uuid.UUID, workerID string, to domain.JobStatus, op string, apply func(q store.DBTX, job *domain.Job) error) error {
	err := s.inTx(ctx, func(q store.DBTX) error {
		job, err := scanJob(q.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id.String()))
		if err != nil {
			if errors.Is(MapError(err), store.ErrNotFound) {
				return store.ErrJobNotFound
			}
			return MapError(err)
		}

		if !domain.CanTransition(job.Status, to) {
			return fmt.Errorf("%w: %s -> %s", store.ErrIllegalTransition, job.Status, to)
		}

		// Terminal transitions from running require the caller to hold the
		// claim, except a manager-forced cancellation (empty workerID).
		if job.Status == domain.JobStatusRunning && workerID != "" && job.ClaimOwner != workerID {
			return store.ErrClaimMismatch
		}

		return apply(q, job)
	})
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) ||
			errors.Is(err, store.ErrIllegalTransition) ||
			errors.Is(err, store.ErrClaimMismatch) {
			return err
		}
		return store.NewStoreError("job", op, "transition failed", err)
	}

	return nil
}

// RequestCancel sets the cooperative cancellation flag on a running job.
func (s *SQLiteJobStore) RequestCancel(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET cancel_requested = 1
		WHERE id = ? AND status = 'running'
	`, id.String())
	if err != nil {
		return store.NewStoreError("job", "request_cancel", "failed to set cancel flag", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("job", "request_cancel", "failed to get rows affected", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: job is not running", store.ErrIllegalTransition)
	}

	return nil
}

// Requeue re-arms a failed job back to queued for resume. The checkpoint
// and progress survive so the next run can skip completed units.
func (s *SQLiteJobStore) Requeue(ctx context.Context, id uuid.UUID) error {
	err := s.inTx(ctx, func(q store.DBTX) error {
		job, err := scanJob(q.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id.String()))
		if err != nil {
			if errors.Is(MapError(err), store.ErrNotFound) {
				return store.ErrJobNotFound
			}
			return MapError(err)
		}

		if !domain.CanTransition(job.Status, domain.JobStatusQueued) {
			return fmt.Errorf("%w: %s -> %s", store.ErrIllegalTransition, job.Status, domain.JobStatusQueued)
		}

		_, err = q.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'queued',
			    started_at = NULL,
			    completed_at = NULL,
			    error_info = NULL,
			    claim_owner = NULL,
			    claim_heartbeat = NULL,
			    cancel_requested = 0,
			    processing_seconds = NULL
			WHERE id = ?
		`, id.String())
		return MapError(err)
	})
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) || errors.Is(err, store.ErrIllegalTransition) {
			return err
		}
		return store.NewStoreError("job", "requeue", "failed to requeue job", err)
	}

	return nil
}

// AppendLog adds an append-only log entry for a job.
func (s *SQLiteJobStore) AppendLog(ctx context.Context, id uuid.UUID, level domain.LogLevel, message string, metadata map[string]any) error {
	var metadataJSON sql.NullString
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal log metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_logs (job_id, timestamp, level, message, metadata)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), time.Now().UTC(), string(level), message, metadataJSON)
	if err != nil {
		return store.NewStoreError("job_log", "append", "failed to append log entry", MapError(err))
	}

	return nil
}

// Logs returns log entries for a job, newest first.
func (s *SQLiteJobStore) Logs(ctx context.Context, id uuid.UUID, level *domain.LogLevel, limit int) ([]domain.JobLog, error) {
	query := `SELECT id, job_id, timestamp, level, message, metadata FROM job_logs WHERE job_id = ?`
	args := []any{id.String()}

	if level != nil {
		query += ` AND level = ?`
		args = append(args, string(*level))
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("job_log", "list", "failed to query log entries", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var logs []domain.JobLog
	for rows.Next() {
		var entry domain.JobLog
		var jobID string
		var logLevel string
		var metadataJSON sql.NullString

		if err := rows.Scan(&entry.ID, &jobID, &entry.Timestamp, &logLevel, &entry.Message, &metadataJSON); err != nil {
			return nil, store.NewStoreError("job_log", "list", "failed to scan log row", err)
		}

		parsed, err := uuid.Parse(jobID)
		if err != nil {
			return nil, store.NewStoreError("job_log", "list", "invalid job id in log row", err)
		}
		entry.JobID = parsed
		entry.Level = domain.LogLevel(logLevel)

		if metadataJSON.Valid {
			if err := json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata); err != nil {
				return nil, store.NewStoreError("job_log", "list", "invalid log metadata", err)
			}
		}

		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("job_log", "list", "error iterating log rows", MapError(err))
	}

	return logs, nil
}

// AddFile tracks a file belonging to a job.
func (s *SQLiteJobStore) AddFile(ctx context.Context, id uuid.UUID, path string, kind domain.FileKind, size int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_files (job_id, path, kind, size, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), path, string(kind), size, time.Now().UTC())
	if err != nil {
		return store.NewStoreError("job_file", "add", "failed to track file", MapError(err))
	}

	return nil
}

// Files returns tracked files for a job.
func (s *SQLiteJobStore) Files(ctx context.Context, id uuid.UUID, kind *domain.FileKind) ([]domain.JobFile, error) {
	query := `SELECT id, job_id, path, kind, size, created_at FROM job_files WHERE job_id = ?`
	args := []any{id.String()}

	if kind != nil {
		query += ` AND kind = ?`
		args = append(args, string(*kind))
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("job_file", "list", "failed to query tracked files", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var files []domain.JobFile
	for rows.Next() {
		var file domain.JobFile
		var jobID, fileKind string
		var size sql.NullInt64

		if err := rows.Scan(&file.ID, &jobID, &file.Path, &fileKind, &size, &file.CreatedAt); err != nil {
			return nil, store.NewStoreError("job_file", "list", "failed to scan file row", err)
		}

		parsed, err := uuid.Parse(jobID)
		if err != nil {
			return nil, store.NewStoreError("job_file", "list", "invalid job id in file row", err)
		}
		file.JobID = parsed
		file.Kind = domain.FileKind(fileKind)
		file.Size = size.Int64

		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("job_file", "list", "error iterating file rows", MapError(err))
	}

	return files, nil
}

// Delete removes a job; logs and tracked files cascade with it.
func (s *SQLiteJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id.String())
	if err != nil {
		return store.NewStoreError("job", "delete", "failed to delete job", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("job", "delete", "failed to get rows affected", err)
	}
	if affected == 0 {
		return store.ErrJobNotFound
	}

	return nil
}

// DeleteCompletedBefore removes completed jobs whose completion is older
// than cutoff.
func (s *SQLiteJobStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status = 'completed' AND completed_at < ?
	`, cutoff)
	if err != nil {
		return 0, store.NewStoreError("job", "cleanup", "failed to delete old jobs", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError("job", "cleanup", "failed to get rows affected", err)
	}

	return affected, nil
}

// CountByStatus returns job counts grouped by status.
func (s *SQLiteJobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, store.NewStoreError("job", "count", "failed to count jobs", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, store.NewStoreError("job", "count", "failed to scan count row", err)
		}
		counts[domain.JobStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("job", "count", "error iterating count rows", MapError(err))
	}

	return counts, nil
}
