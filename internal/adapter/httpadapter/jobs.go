package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
	"github.com/couchcryptid/rainfall-import-service/internal/queue"
)

const maxListLimit = 500

// JobReader is the read side of the job queue.
type JobReader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.ImportJob, error)
	List(ctx context.Context, f queue.ListFilter) ([]domain.ImportJob, error)
}

type errorBody struct {
	Error string `json:"error"`
}

// listJobs serves GET /jobs?status=&station=&limit=, newest first.
func listJobs(jobs JobReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		f := queue.ListFilter{
			Status:    domain.JobStatus(query.Get("status")),
			StationID: query.Get("station"),
		}
		if f.Status != "" && !f.Status.Active() && !f.Status.Terminal() {
			writeJSON(w, http.StatusBadRequest, errorBody{"unknown status " + strconv.Quote(string(f.Status))}, logger)
			return
		}
		if raw := query.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxListLimit {
				writeJSON(w, http.StatusBadRequest, errorBody{"limit must be between 1 and " + strconv.Itoa(maxListLimit)}, logger)
				return
			}
			f.Limit = n
		}

		list, err := jobs.List(r.Context(), f)
		if err != nil {
			logger.Error("list jobs failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{"list jobs failed"}, logger)
			return
		}
		writeJSON(w, http.StatusOK, list, logger)
	}
}

// getJob serves GET /jobs/{id}.
func getJob(jobs JobReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{"invalid job id"}, logger)
			return
		}
		job, err := jobs.Get(r.Context(), id)
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			writeJSON(w, http.StatusNotFound, errorBody{"job not found"}, logger)
		case err != nil:
			logger.Error("get job failed", "job_id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{"get job failed"}, logger)
		default:
			writeJSON(w, http.StatusOK, job, logger)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("write response failed", "error", err)
	}
}
