package domain

import (
	"fmt"
	"time"
)

// Progress tracks how far a running job has advanced. It is mutated only by
// the worker holding the job's claim and serialized as JSON at the store
// boundary.
// Version: 1
type Progress struct {
	TotalChapters     int `json:"total_chapters"`
	CompletedChapters int `json:"completed_chapters"`
	TotalChunks       int `json:"total_chunks"`
	CompletedChunks   int `json:"completed_chunks"`

	CurrentChapterName string `json:"current_chapter_name,omitempty"`
	CurrentOperation   string `json:"current_operation,omitempty"`

	Percentage      float64  `json:"percentage"`
	ETASeconds      *float64 `json:"eta_seconds,omitempty"`
	ChunksPerSecond float64  `json:"chunks_per_second"`

	LastUpdate time.Time `json:"last_update"`
}

// UpdatePercentage recomputes the percentage from completed versus total
// chunks. Falls back to chapter counts when chunk totals are unknown.
func (p *Progress) UpdatePercentage() {
	switch {
	case p.TotalChunks > 0:
		p.Percentage = float64(p.CompletedChunks) / float64(p.TotalChunks) * 100
	case p.TotalChapters > 0:
		p.Percentage = float64(p.CompletedChapters) / float64(p.TotalChapters) * 100
	default:
		p.Percentage = 0
	}
}

// UpdateETA recomputes the estimated time to completion from the work done
// during elapsed. The estimate is cleared when no rate can be derived yet.
func (p *Progress) UpdateETA(elapsed time.Duration) {
	done, total := p.CompletedChunks, p.TotalChunks
	if total == 0 {
		done, total = p.CompletedChapters, p.TotalChapters
	}

	if done <= 0 || total <= 0 || elapsed <= 0 {
		p.ETASeconds = nil
		return
	}

	p.ChunksPerSecond = float64(done) / elapsed.Seconds()
	if p.ChunksPerSecond <= 0 {
		p.ETASeconds = nil
		return
	}

	eta := float64(total-done) / p.ChunksPerSecond
	p.ETASeconds = &eta
}

// FormatETA renders the estimate as a short human-readable string.
func (p *Progress) FormatETA() string {
	if p.ETASeconds == nil {
		return "calculating"
	}

	seconds := int(*p.ETASeconds)
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}
