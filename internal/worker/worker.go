// Package worker claims import jobs from the queue and runs them.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
	"github.com/couchcryptid/rainfall-import-service/internal/observability"
	"github.com/couchcryptid/rainfall-import-service/internal/queue"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second

	// finishTimeout bounds the Complete/Fail call made after an import,
	// which must outlive a cancelled run context.
	finishTimeout = 10 * time.Second
)

// JobImporter runs one import attempt.
type JobImporter interface {
	Import(ctx context.Context, job domain.ImportJob) (domain.ImportStats, error)
}

// Publisher announces import outcomes.
type Publisher interface {
	Publish(ctx context.Context, event domain.ImportOutcome) error
}

// Worker repeatedly claims one job and processes it fully before claiming
// the next.
type Worker struct {
	id           int
	queue        queue.Queue
	importer     JobImporter
	publisher    Publisher
	clock        clockwork.Clock
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics
	ready        atomic.Bool
}

// New creates a Worker. publisher may be nil.
func New(id int, q queue.Queue, imp JobImporter, publisher Publisher, clock clockwork.Clock, pollInterval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Worker {
	return &Worker{
		id:           id,
		queue:        q,
		importer:     imp,
		publisher:    publisher,
		clock:        clock,
		pollInterval: pollInterval,
		logger:       logger.With("worker", id),
		metrics:      metrics,
	}
}

// CheckReadiness returns nil once the worker has reached the queue.
func (w *Worker) CheckReadiness(_ context.Context) error {
	if !w.ready.Load() {
		return errors.New("worker has not reached the job queue yet")
	}
	return nil
}

// Run claims and processes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "poll_interval", w.pollInterval)
	w.metrics.WorkersRunning.Inc()
	defer w.metrics.WorkersRunning.Dec()

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !w.step(ctx, &backoff) {
			w.logger.Info("worker stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// step claims at most one job. Returns false if the worker should stop.
func (w *Worker) step(ctx context.Context, backoff *time.Duration) bool {
	job, ok, err := w.queue.ClaimNext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		w.logger.Error("claim next job failed", "error", err, "backoff", *backoff)
		if !sleepWithContext(ctx, w.clock, *backoff) {
			return false
		}
		*backoff = retry.NextBackoff(*backoff, maxBackoff)
		return true
	}
	*backoff = initialBackoff
	w.ready.Store(true)

	if !ok {
		return sleepWithContext(ctx, w.clock, w.pollInterval)
	}
	w.process(ctx, job)
	return true
}

// process runs one claimed job and records the outcome in the queue.
func (w *Worker) process(ctx context.Context, job domain.ImportJob) {
	w.metrics.JobsClaimed.Inc()
	logger := w.logger.With("job_id", job.ID, "station_id", job.StationID, "attempt", job.RetryCount+1)
	logger.Info("import started", "source", job.Source, "priority", job.Priority)

	stats, err := w.importer.Import(ctx, job)

	// The outcome is recorded even when shutdown cancelled the import.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	lease := queue.LeaseOf(job)
	if err == nil {
		if cerr := w.queue.Complete(finishCtx, lease, stats); cerr != nil {
			w.finishFailed(logger, "complete job failed", cerr, "")
			return
		}
		w.metrics.JobsCompleted.Inc()
		logger.Info("import completed", "rows_imported", stats.RowsImported, "duration", stats.Duration)
		w.publish(finishCtx, domain.CompletedOutcome(job, stats, w.clock.Now()))
		return
	}

	msg := err.Error()
	if ctx.Err() != nil {
		msg = "import interrupted by shutdown: " + msg
	}
	updated, ferr := w.queue.Fail(finishCtx, lease, msg)
	if ferr != nil {
		w.finishFailed(logger, "fail job failed", ferr, msg)
		return
	}

	outcome := "retry"
	if updated.Status.Terminal() {
		outcome = "terminal"
		logger.Error("import failed permanently", "error", msg, "retries", updated.RetryCount)
	} else {
		logger.Warn("import failed, retry scheduled", "error", msg, "next_retry_at", updated.NextRetryAt)
	}
	w.metrics.JobsFailed.WithLabelValues(outcome).Inc()
	w.publish(finishCtx, domain.FailedOutcome(updated, msg, w.clock.Now()))
}

// finishFailed logs a Complete or Fail that the queue refused. A lost lease
// means the job was reclaimed and may already belong to another worker.
func (w *Worker) finishFailed(logger *slog.Logger, msg string, err error, importErr string) {
	if errors.Is(err, domain.ErrLeaseLost) {
		w.metrics.LeasesLost.Inc()
		logger.Warn("import outcome discarded, job was reclaimed", "error", err, "import_error", importErr)
		return
	}
	logger.Error(msg, "error", err, "import_error", importErr)
}

func (w *Worker) publish(ctx context.Context, ev domain.ImportOutcome) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.Publish(ctx, ev); err != nil {
		w.logger.Warn("publish import outcome failed", "type", ev.Type, "job_id", ev.JobID, "error", err)
	}
}

// sleepWithContext is retry.SleepWithContext on the injected clock.
func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
