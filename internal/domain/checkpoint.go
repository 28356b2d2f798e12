package domain

import "time"

// Checkpoint records the units of work known to be durably completed,
// enabling a failed job to resume without redoing them. Present only when
// recovery is possible. Serialized as JSON at the store boundary.
type Checkpoint struct {
	// Version guards the serialized schema; bump when fields change shape.
	Version int `json:"version"`

	// CompletedChapters lists chapter indexes whose audio has been fully
	// synthesized and persisted.
	CompletedChapters []int `json:"completed_chapters"`

	Timestamp time.Time `json:"timestamp"`
}

// CheckpointVersion is the current serialized schema version.
const CheckpointVersion = 1

// NewCheckpoint returns an empty checkpoint at the current schema version.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		Version:   CheckpointVersion,
		Timestamp: time.Now().UTC(),
	}
}

// IsChapterCompleted reports whether the chapter at index has already been
// fully processed in a previous run.
func (c *Checkpoint) IsChapterCompleted(index int) bool {
	if c == nil {
		return false
	}
	for _, done := range c.CompletedChapters {
		if done == index {
			return true
		}
	}
	return false
}

// MarkChapterCompleted records the chapter at index as done. Idempotent.
func (c *Checkpoint) MarkChapterCompleted(index int) {
	if c.IsChapterCompleted(index) {
		return
	}
	c.CompletedChapters = append(c.CompletedChapters, index)
	c.Timestamp = time.Now().UTC()
}

// LastUnit returns the highest completed chapter index, or -1 when nothing
// has completed yet.
func (c *Checkpoint) LastUnit() int {
	last := -1
	if c == nil {
		return last
	}
	for _, done := range c.CompletedChapters {
		if done > last {
			last = done
		}
	}
	return last
}
