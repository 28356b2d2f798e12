package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/konsultti/kokoro-tts/internal/domain"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one jobs row into a domain.Job, deserializing the JSON
// blobs at this boundary only.
func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		id, status, inputPath, inputType, outputPath, outputFormat string
		createdAt                                                  time.Time
		startedAt, completedAt, claimHeartbeat                     sql.NullTime
		inputSize, outputSize                                      sql.NullInt64
		options, metadata, errorInfo, checkpoint                   sql.NullString
		progressJSON                                               string
		cancelRequested                                            bool
		claimOwner                                                 sql.NullString
		processingSeconds                                          sql.NullFloat64
	)

	err := row.Scan(
		&id, &status, &createdAt, &startedAt, &completedAt,
		&inputPath, &inputType, &inputSize,
		&outputPath, &outputFormat, &outputSize,
		&options, &metadata, &progressJSON, &errorInfo, &checkpoint,
		&cancelRequested, &claimOwner, &claimHeartbeat, &processingSeconds,
	)
	if err != nil {
		return nil, err
	}

	jobID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", id, err)
	}

	job := &domain.Job{
		ID:        jobID,
		Status:    domain.JobStatus(status),
		CreatedAt: createdAt,
		Input: domain.InputDescriptor{
			Path: inputPath,
			Type: domain.InputType(inputType),
			Size: inputSize.Int64,
		},
		Output: domain.OutputDescriptor{
			Path:   outputPath,
			Format: domain.OutputFormat(outputFormat),
			Size:   outputSize.Int64,
		},
		CancelRequested: cancelRequested,
		ClaimOwner:      claimOwner.String,
	}

	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if claimHeartbeat.Valid {
		t := claimHeartbeat.Time
		job.ClaimHeartbeat = &t
	}
	if processingSeconds.Valid {
		v := processingSeconds.Float64
		job.ProcessingSeconds = &v
	}
	if options.Valid {
		job.Options = json.RawMessage(options.String)
	}

	if err := json.Unmarshal([]byte(progressJSON), &job.Progress); err != nil {
		return nil, fmt.Errorf("invalid progress blob for job %s: %w", id, err)
	}
	if err := unmarshalNullable(metadata, &job.Metadata); err != nil {
		return nil, fmt.Errorf("invalid metadata blob for job %s: %w", id, err)
	}
	if err := unmarshalNullable(errorInfo, &job.Error); err != nil {
		return nil, fmt.Errorf("invalid error blob for job %s: %w", id, err)
	}
	if err := unmarshalNullable(checkpoint, &job.Checkpoint); err != nil {
		return nil, fmt.Errorf("invalid checkpoint blob for job %s: %w", id, err)
	}

	return job, nil
}

// unmarshalNullable decodes a nullable JSON column into out, leaving out
// nil for NULL columns.
func unmarshalNullable[T any](col sql.NullString, out **T) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	value := new(T)
	if err := json.Unmarshal([]byte(col.String), value); err != nil {
		return err
	}
	*out = value
	return nil
}

// marshalNullable encodes a pointer as a nullable JSON column.
func marshalNullable[T any](v *T) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		// Domain blobs are plain structs; marshal cannot fail for them.
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
