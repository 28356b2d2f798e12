package api

import (
	"encoding/json"
	"time"

	"github.com/konsultti/kokoro-tts/internal/domain"
	"github.com/konsultti/kokoro-tts/internal/manager"
)

// Common request/response structures

// SubmitJobRequest defines the payload for the job submission endpoint.
// It mirrors the manager's SubmitRequest; validation happens there.
type SubmitJobRequest struct {
	InputPath    string               `json:"input_path"`
	InputType    string               `json:"input_type"`
	OutputPath   string               `json:"output_path"`
	OutputFormat string               `json:"output_format"`
	Options      json.RawMessage      `json:"options,omitempty"`
	Metadata     *domain.BookMetadata `json:"metadata,omitempty"`
}

func (r SubmitJobRequest) toSubmitRequest() manager.SubmitRequest {
	return manager.SubmitRequest{
		InputPath:    r.InputPath,
		InputType:    domain.InputType(r.InputType),
		OutputPath:   r.OutputPath,
		OutputFormat: domain.OutputFormat(r.OutputFormat),
		Options:      r.Options,
		Metadata:     r.Metadata,
	}
}

// JobResponse is the wire representation of a job.
type JobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Input  InputResponse  `json:"input"`
	Output OutputResponse `json:"output"`

	Metadata *domain.BookMetadata `json:"metadata,omitempty"`
	Progress *domain.Progress     `json:"progress,omitempty"`
	Error    *domain.ErrorInfo    `json:"error,omitempty"`

	CancelRequested   bool     `json:"cancel_requested"`
	ProcessingSeconds *float64 `json:"processing_seconds,omitempty"`
	StatusMessage     string   `json:"status_message"`
	Resumable         bool     `json:"resumable"`
}

// InputResponse describes the job's source document.
type InputResponse struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// OutputResponse describes the job's target artifact.
type OutputResponse struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Size   int64  `json:"size,omitempty"`
}

// LogResponse is the wire representation of one job log entry.
type LogResponse struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StatsResponse reports job counts per status.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

func jobToResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:          job.ID.String(),
		Status:      string(job.Status),
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Input: InputResponse{
			Path: job.Input.Path,
			Type: string(job.Input.Type),
			Size: job.Input.Size,
		},
		Output: OutputResponse{
			Path:   job.Output.Path,
			Format: string(job.Output.Format),
			Size:   job.Output.Size,
		},
		Metadata:          job.Metadata,
		Progress:          &job.Progress,
		Error:             job.Error,
		CancelRequested:   job.CancelRequested,
		ProcessingSeconds: job.ProcessingSeconds,
		StatusMessage:     job.StatusMessage(),
		Resumable:         job.CanBeResumed(),
	}
}

func jobsToResponse(jobs []*domain.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobToResponse(job))
	}
	return out
}

func logsToResponse(logs []domain.JobLog) []LogResponse {
	out := make([]LogResponse, 0, len(logs))
	for _, entry := range logs {
		out = append(out, LogResponse{
			Timestamp: entry.Timestamp,
			Level:     string(entry.Level),
			Message:   entry.Message,
			Metadata:  entry.Metadata,
		})
	}
	return out
}
