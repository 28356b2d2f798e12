package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konsultti/kokoro-tts/internal/domain"
	"github.com/konsultti/kokoro-tts/internal/manager"
	"github.com/konsultti/kokoro-tts/internal/store"
)

// mockJobService implements JobService with injectable functions.
type mockJobService struct {
	SubmitFn     func(ctx context.Context, req manager.SubmitRequest) (*domain.Job, error)
	GetFn        func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ListFn       func(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error)
	LogsFn       func(ctx context.Context, id uuid.UUID, level *domain.LogLevel, limit int) ([]domain.JobLog, error)
	CancelFn     func(ctx context.Context, id uuid.UUID) error
	ResumeFn     func(ctx context.Context, id uuid.UUID) error
	DeleteFn     func(ctx context.Context, id uuid.UUID) error
	StatisticsFn func(ctx context.Context) (map[domain.JobStatus]int, error)
}

func (m *mockJobService) Submit(ctx context.Context, req manager.SubmitRequest) (*domain.Job, error) {
	return m.SubmitFn(ctx, req)
}

func (m *mockJobService) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return m.GetFn(ctx, id)
}

func (m *mockJobService) List(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	return m.ListFn(ctx, filter)
}

func (m *mockJobService) Logs(ctx context.Context, id uuid.UUID, level *domain.LogLevel, limit int) ([]domain.JobLog, error) {
	return m.LogsFn(ctx, id, level, limit)
}

func (m *mockJobService) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.CancelFn(ctx, id)
}

func (m *mockJobService) Resume(ctx context.Context, id uuid.UUID) error {
	return m.ResumeFn(ctx, id)
}

func (m *mockJobService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.DeleteFn(ctx, id)
}

func (m *mockJobService) Statistics(ctx context.Context) (map[domain.JobStatus]int, error) {
	return m.StatisticsFn(ctx)
}

func newTestServer(t *testing.T, svc *mockJobService) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(NewRouter(NewJobHandler(svc)))
	t.Cleanup(srv.Close)
	return srv
}

func sampleJob(t *testing.T) *domain.Job {
	t.Helper()

	job, err := domain.NewJob(
		domain.InputDescriptor{Path: "/books/test.epub", Type: domain.InputTypeEPUB, Size: 4096},
		domain.OutputDescriptor{Path: "/audio/test.m4a", Format: domain.OutputFormatM4A},
		[]byte(`{"voice":"af_sarah"}`),
		&domain.BookMetadata{Title: "A Book"},
	)
	require.NoError(t, err)
	return job
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestJobHandler_SubmitJob(t *testing.T) {
	t.Parallel()

	t.Run("valid submission returns 202", func(t *testing.T) {
		t.Parallel()

		job := sampleJob(t)
		svc := &mockJobService{
			SubmitFn: func(_ context.Context, req manager.SubmitRequest) (*domain.Job, error) {
				assert.Equal(t, "/books/test.epub", req.InputPath)
				assert.Equal(t, domain.InputTypeEPUB, req.InputType)
				return job, nil
			},
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodPost, srv.URL+"/api/jobs", SubmitJobRequest{
			InputPath:    "/books/test.epub",
			InputType:    "epub",
			OutputPath:   "/audio/test.m4a",
			OutputFormat: "m4a",
		})

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		body := decodeBody[JobResponse](t, resp)
		assert.Equal(t, job.ID.String(), body.ID)
		assert.Equal(t, "queued", body.Status)
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, &mockJobService{})

		resp, err := http.Post(srv.URL+"/api/jobs", "application/json", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("validation failure returns 400 with message", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			SubmitFn: func(context.Context, manager.SubmitRequest) (*domain.Job, error) {
				return nil, fmt.Errorf("%w: field InputType failed on oneof", domain.ErrValidation)
			},
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodPost, srv.URL+"/api/jobs", SubmitJobRequest{InputType: "docx"})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody[map[string]any](t, resp)
		assert.Contains(t, body["error"], "InputType")
	})
}

func TestJobHandler_GetJob(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		job := sampleJob(t)
		svc := &mockJobService{
			GetFn: func(_ context.Context, id uuid.UUID) (*domain.Job, error) {
				assert.Equal(t, job.ID, id)
				return job, nil
			},
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodGet, srv.URL+"/api/jobs/"+job.ID.String(), nil)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[JobResponse](t, resp)
		assert.Equal(t, "queued", body.Status)
		assert.Equal(t, "/books/test.epub", body.Input.Path)
		require.NotNil(t, body.Metadata)
		assert.Equal(t, "A Book", body.Metadata.Title)
	})

	t.Run("unknown id returns 404", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			GetFn: func(context.Context, uuid.UUID) (*domain.Job, error) {
				return nil, store.ErrJobNotFound
			},
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodGet, srv.URL+"/api/jobs/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("malformed id returns 400", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, &mockJobService{})

		resp := doJSON(t, http.MethodGet, srv.URL+"/api/jobs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestJobHandler_ListJobs(t *testing.T) {
	t.Parallel()

	t.Run("filters forwarded", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			ListFn: func(_ context.Context, filter store.JobFilter) ([]*domain.Job, error) {
				require.NotNil(t, filter.Status)
				assert.Equal(t, domain.JobStatusFailed, *filter.Status)
				assert.Equal(t, 5, filter.Limit)
				return []*domain.Job{sampleJob(t)}, nil
			},
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodGet, srv.URL+"/api/jobs?status=failed&limit=5", nil)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[[]JobResponse](t, resp)
		assert.Len(t, body, 1)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, &mockJobService{})

		resp := doJSON(t, http.MethodGet, srv.URL+"/api/jobs?status=sleeping", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty result is an empty array", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			ListFn: func(context.Context, store.JobFilter) ([]*domain.Job, error) {
				return nil, nil
			},
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodGet, srv.URL+"/api/jobs", nil)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[[]JobResponse](t, resp)
		assert.NotNil(t, body)
		assert.Empty(t, body)
	})
}

func TestJobHandler_CancelJob(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		svc := &mockJobService{
			CancelFn: func(_ context.Context, got uuid.UUID) error {
				assert.Equal(t, id, got)
				return nil
			},
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodPost, srv.URL+"/api/jobs/"+id.String()+"/cancel", nil)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("terminal job returns 409", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			CancelFn: func(context.Context, uuid.UUID) error {
				return fmt.Errorf("%w: job is completed", domain.ErrNotCancellable)
			},
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodPost, srv.URL+"/api/jobs/"+uuid.NewString()+"/cancel", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestJobHandler_ResumeJob(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			ResumeFn: func(context.Context, uuid.UUID) error { return nil },
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodPost, srv.URL+"/api/jobs/"+uuid.NewString()+"/resume", nil)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("not resumable returns 409", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			ResumeFn: func(context.Context, uuid.UUID) error {
				return fmt.Errorf("%w: status=completed", domain.ErrNotResumable)
			},
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodPost, srv.URL+"/api/jobs/"+uuid.NewString()+"/resume", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestJobHandler_DeleteJob(t *testing.T) {
	t.Parallel()

	t.Run("deleted", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			DeleteFn: func(context.Context, uuid.UUID) error { return nil },
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodDelete, srv.URL+"/api/jobs/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("active job returns 409", func(t *testing.T) {
		t.Parallel()

		svc := &mockJobService{
			DeleteFn: func(context.Context, uuid.UUID) error {
				return fmt.Errorf("%w: cannot delete a running job", domain.ErrIllegalTransition)
			},
		}
		srv := newTestServer(t, svc)

		resp := doJSON(t, http.MethodDelete, srv.URL+"/api/jobs/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestJobHandler_GetJobLogs(t *testing.T) {
	t.Parallel()

	svc := &mockJobService{
		LogsFn: func(_ context.Context, _ uuid.UUID, level *domain.LogLevel, limit int) ([]domain.JobLog, error) {
			require.NotNil(t, level)
			assert.Equal(t, domain.LogLevelError, *level)
			assert.Equal(t, 10, limit)
			return []domain.JobLog{{
				Timestamp: time.Now().UTC(),
				Level:     domain.LogLevelError,
				Message:   "synthesis failed",
			}}, nil
		},
	}
	srv := newTestServer(t, svc)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/jobs/"+uuid.NewString()+"/logs?level=ERROR&limit=10", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[[]LogResponse](t, resp)
	require.Len(t, body, 1)
	assert.Equal(t, "synthesis failed", body[0].Message)
}

func TestJobHandler_GetStats(t *testing.T) {
	t.Parallel()

	svc := &mockJobService{
		StatisticsFn: func(context.Context) (map[domain.JobStatus]int, error) {
			return map[domain.JobStatus]int{
				domain.JobStatusQueued:    2,
				domain.JobStatusCompleted: 5,
			}, nil
		},
	}
	srv := newTestServer(t, svc)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/stats", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[StatsResponse](t, resp)
	assert.Equal(t, 7, body.Total)
	assert.Equal(t, 2, body.Counts["queued"])
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &mockJobService{})

	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
