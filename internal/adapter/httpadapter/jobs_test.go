package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-import-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/rainfall-import-service/internal/domain"
	"github.com/couchcryptid/rainfall-import-service/internal/queue"
)

func newJobServer(t *testing.T) (*httpadapter.Server, *queue.Memory) {
	t.Helper()
	q := queue.NewMemory(clockwork.NewFakeClockAt(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)), queue.DefaultBackoff)
	for _, station := range []string{"1000", "1100", "1200"} {
		_, err := q.Enqueue(context.Background(), queue.EnqueueParams{StationID: station, Priority: 10, Source: domain.SourceManual})
		require.NoError(t, err)
	}
	return httpadapter.NewServer(":0", &mockReadiness{}, q, slog.Default()), q
}

func get(srv http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListJobs(t *testing.T) {
	srv, q := newJobServer(t)
	_, ok, err := q.ClaimNext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	rec := get(srv, "/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var all []domain.ImportJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	rec = get(srv, "/jobs?status=pending&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []domain.ImportJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, domain.JobPending, pending[0].Status)

	rec = get(srv, "/jobs?station=1100")
	var one []domain.ImportJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	require.Len(t, one, 1)
	assert.Equal(t, "1100", one[0].StationID)
}

func TestListJobs_BadQuery(t *testing.T) {
	srv, _ := newJobServer(t)
	for _, target := range []string{"/jobs?status=done", "/jobs?limit=0", "/jobs?limit=abc", "/jobs?limit=100000"} {
		rec := get(srv, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestGetJob(t *testing.T) {
	srv, q := newJobServer(t)
	jobs, err := q.List(context.Background(), queue.ListFilter{StationID: "1200"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	rec := get(srv, "/jobs/"+jobs[0].ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var job domain.ImportJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, jobs[0].ID, job.ID)

	assert.Equal(t, http.StatusNotFound, get(srv, "/jobs/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, get(srv, "/jobs/not-a-uuid").Code)
}

type failingJobs struct{}

func (failingJobs) Get(context.Context, uuid.UUID) (domain.ImportJob, error) {
	return domain.ImportJob{}, errors.New("connection reset")
}

func (failingJobs) List(context.Context, queue.ListFilter) ([]domain.ImportJob, error) {
	return nil, errors.New("connection reset")
}

func TestJobs_QueueErrors(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, failingJobs{}, slog.Default())
	assert.Equal(t, http.StatusInternalServerError, get(srv, "/jobs").Code)
	assert.Equal(t, http.StatusInternalServerError, get(srv, "/jobs/"+uuid.NewString()).Code)
}

func TestJobsRoutesDisabledWithoutQueue(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, nil, slog.Default())
	assert.Equal(t, http.StatusNotFound, get(srv, "/jobs").Code)
}
