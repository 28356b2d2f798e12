package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() InputDescriptor {
	return InputDescriptor{Path: "/books/moby-dick.epub", Type: InputTypeEPUB, Size: 1 << 20}
}

func validOutput() OutputDescriptor {
	return OutputDescriptor{Path: "/audio/moby-dick.m4a", Format: OutputFormatM4A}
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	t.Run("valid job", func(t *testing.T) {
		t.Parallel()

		job, err := NewJob(validInput(), validOutput(), []byte(`{"voice":"af_sarah"}`), nil)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, JobStatusQueued, job.Status)
		assert.False(t, job.CreatedAt.IsZero())
		assert.Nil(t, job.StartedAt)
		assert.Nil(t, job.CompletedAt)
		assert.Empty(t, job.ClaimOwner)
	})

	t.Run("missing input path", func(t *testing.T) {
		t.Parallel()

		input := validInput()
		input.Path = ""
		_, err := NewJob(input, validOutput(), nil, nil)
		assert.ErrorIs(t, err, ErrEmptyInputPath)
	})

	t.Run("unsupported input type", func(t *testing.T) {
		t.Parallel()

		input := validInput()
		input.Type = "docx"
		_, err := NewJob(input, validOutput(), nil, nil)
		assert.ErrorIs(t, err, ErrInvalidInputType)
	})

	t.Run("unsupported output format", func(t *testing.T) {
		t.Parallel()

		output := validOutput()
		output.Format = "ogg"
		_, err := NewJob(validInput(), output, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidOutput)
	})
}

func TestJob_Validate_RunningNeedsClaim(t *testing.T) {
	t.Parallel()

	job, err := NewJob(validInput(), validOutput(), nil, nil)
	require.NoError(t, err)

	job.Status = JobStatusRunning
	assert.ErrorIs(t, job.Validate(), ErrClaimWithoutOwner)

	job.ClaimOwner = "worker-1"
	assert.NoError(t, job.Validate())
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		from  JobStatus
		to    JobStatus
		legal bool
	}{
		{"claim", JobStatusQueued, JobStatusRunning, true},
		{"cancel before claim", JobStatusQueued, JobStatusCancelled, true},
		{"complete", JobStatusRunning, JobStatusCompleted, true},
		{"fail", JobStatusRunning, JobStatusFailed, true},
		{"cooperative cancel", JobStatusRunning, JobStatusCancelled, true},
		{"resume", JobStatusFailed, JobStatusQueued, true},

		{"running back to queued", JobStatusRunning, JobStatusQueued, false},
		{"completed to running", JobStatusCompleted, JobStatusRunning, false},
		{"completed to queued", JobStatusCompleted, JobStatusQueued, false},
		{"cancelled to queued", JobStatusCancelled, JobStatusQueued, false},
		{"queued to completed", JobStatusQueued, JobStatusCompleted, false},
		{"queued to failed", JobStatusQueued, JobStatusFailed, false},
		{"failed to running", JobStatusFailed, JobStatusRunning, false},
		{"pause is unreachable", JobStatusRunning, JobStatusPaused, false},
		{"self transition", JobStatusQueued, JobStatusQueued, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.legal, CanTransition(tc.from, tc.to))
		})
	}
}

func TestJob_CanBeResumed(t *testing.T) {
	t.Parallel()

	job, err := NewJob(validInput(), validOutput(), nil, nil)
	require.NoError(t, err)

	// Queued jobs are not resumable.
	assert.False(t, job.CanBeResumed())

	job.Status = JobStatusFailed
	assert.False(t, job.CanBeResumed(), "failed without checkpoint")

	cp := NewCheckpoint()
	cp.MarkChapterCompleted(0)
	job.Checkpoint = cp
	assert.False(t, job.CanBeResumed(), "failed without error info")

	job.Error = &ErrorInfo{Kind: ErrorKindUnit, Message: "synthesis failed", Recoverable: false}
	assert.False(t, job.CanBeResumed(), "unrecoverable error")

	job.Error.Recoverable = true
	assert.True(t, job.CanBeResumed())
}

func TestJob_Elapsed(t *testing.T) {
	t.Parallel()

	job, err := NewJob(validInput(), validOutput(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, job.Elapsed())

	started := time.Now().UTC().Add(-90 * time.Second)
	finished := started.Add(time.Minute)
	job.StartedAt = &started
	job.CompletedAt = &finished
	assert.Equal(t, time.Minute, job.Elapsed())
}

func TestJob_StatusMessage(t *testing.T) {
	t.Parallel()

	job, err := NewJob(validInput(), validOutput(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "Waiting in queue", job.StatusMessage())

	job.Status = JobStatusRunning
	job.ClaimOwner = "worker-1"
	job.Progress.CurrentOperation = "Processing chapter 3/12"
	job.Progress.Percentage = 25.0
	assert.Equal(t, "Processing chapter 3/12 (25.0%)", job.StatusMessage())

	job.Status = JobStatusFailed
	job.Error = &ErrorInfo{Kind: ErrorKindFatal, Message: "no chapters extracted"}
	assert.Equal(t, "Failed: no chapters extracted", job.StatusMessage())
}
