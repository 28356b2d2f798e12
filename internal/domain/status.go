package domain

// JobStatus represents the execution state of a job.
type JobStatus string

// Possible job status values. The set is closed: the store rejects any
// value outside it.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused" // reserved; no pause API exists yet
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// legalTransitions is the closed transition table of the job state machine.
// queued→running is the worker claim, failed→queued is resume (same job id
// re-armed), running→cancelled is cooperative and takes effect at the next
// unit boundary. paused has no inbound transition today.
var legalTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:  {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusFailed:  {JobStatusQueued},
}

// CanTransition reports whether moving a job from one status to another is
// legal. All transitions not present in the table are rejected, never
// silently coerced.
func CanTransition(from, to JobStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a member of the closed status set.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusPaused,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s is a final state. A failed job with a
// checkpoint can still be re-armed via resume, but that creates a fresh
// queued run rather than continuing this one.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the job still occupies the queue.
func (s JobStatus) IsActive() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusPaused:
		return true
	}
	return false
}
