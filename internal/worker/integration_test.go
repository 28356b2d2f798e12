package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konsultti/kokoro-tts/internal/domain"
	"github.com/konsultti/kokoro-tts/internal/executor"
	"github.com/konsultti/kokoro-tts/internal/manager"
	"github.com/konsultti/kokoro-tts/internal/platform/sqlite"
)

// gatedExecutor runs two units per job. For holdJob it pauses between
// the units: it signals held and waits for release, giving the test a
// window to act while the job is mid-run.
type gatedExecutor struct {
	mu      sync.Mutex
	holdJob uuid.UUID
	held    chan struct{}
	release chan struct{}
	jobsRun []uuid.UUID
}

func (g *gatedExecutor) Run(ctx context.Context, job *domain.Job, emit func(executor.Unit) error) error {
	g.mu.Lock()
	g.jobsRun = append(g.jobsRun, job.ID)
	g.mu.Unlock()

	units := []executor.Unit{
		{Index: 0, ChapterName: "Chapter 1", ArtifactPaths: []string{"/tmp/ch0.wav"}, Total: 2},
		{Index: 1, ChapterName: "Chapter 2", ArtifactPaths: []string{"/tmp/ch1.wav"}, Total: 2},
	}
	for _, u := range units {
		if u.Index == 1 && job.ID == g.holdJob {
			g.held <- struct{}{}
			<-g.release
		}
		if err := emit(u); err != nil {
			return err
		}
	}
	return nil
}

func (g *gatedExecutor) order() []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uuid.UUID(nil), g.jobsRun...)
}

// TestWorker_QueueLifecycle drives the whole pipeline against a real
// database: three submitted jobs are processed oldest first by a single
// worker, and a cancellation requested while the second job is mid-run
// takes effect at the next unit boundary.
func TestWorker_QueueLifecycle(t *testing.T) {
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := sqlite.NewJobStore(db)
	mgr := manager.New(s, testLogger())

	input := filepath.Join(t.TempDir(), "book.txt")
	require.NoError(t, os.WriteFile(input, []byte("Chapter 1\n\nhello world"), 0o644))

	submit := func(name string) *domain.Job {
		job, err := mgr.Submit(ctx, manager.SubmitRequest{
			InputPath:    input,
			InputType:    "txt",
			OutputPath:   filepath.Join(t.TempDir(), name+".wav"),
			OutputFormat: "wav",
		})
		require.NoError(t, err)
		// Keep created_at strictly increasing so queue order is
		// deterministic.
		time.Sleep(5 * time.Millisecond)
		return job
	}

	jobA := submit("a")
	jobB := submit("b")
	jobC := submit("c")

	exec := &gatedExecutor{
		holdJob: jobB.ID,
		held:    make(chan struct{}),
		release: make(chan struct{}),
	}
	cfg := Config{
		PollInterval:      10 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
		StaleAfter:        time.Minute,
	}
	w := New("w-e2e", s, exec, &fakeEncoder{size: 2048}, cfg, testLogger())

	runCtx, stopWorker := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	// Job B is mid-run with its first chapter persisted. Cancel it now.
	select {
	case <-exec.held:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never reached the held job")
	}
	require.NoError(t, mgr.Cancel(ctx, jobB.ID))
	close(exec.release)

	require.Eventually(t, func() bool {
		got, err := s.Get(ctx, jobC.ID)
		return err == nil && got.Status == domain.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	stopWorker()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	gotA, err := s.Get(ctx, jobA.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, gotA.Status)
	assert.Equal(t, int64(2048), gotA.Output.Size)

	gotB, err := s.Get(ctx, jobB.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, gotB.Status)
	assert.False(t, gotB.CancelRequested)
	require.NotNil(t, gotB.Checkpoint)
	assert.Contains(t, gotB.Checkpoint.CompletedChapters, 0)

	gotC, err := s.Get(ctx, jobC.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, gotC.Status)

	assert.Equal(t, []uuid.UUID{jobA.ID, jobB.ID, jobC.ID}, exec.order())
}
