package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rainfall-import-service/internal/observability"
	"github.com/couchcryptid/rainfall-import-service/internal/queue"
)

// Reaper fails in-progress jobs whose worker stopped reporting, so a crashed
// worker does not strand its station.
type Reaper struct {
	queue      queue.Queue
	staleAfter time.Duration
	interval   time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewReaper creates a Reaper that checks every interval for jobs in progress
// longer than staleAfter.
func NewReaper(q queue.Queue, staleAfter, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Reaper {
	return &Reaper{
		queue:      q,
		staleAfter: staleAfter,
		interval:   interval,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run reclaims stale jobs until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("reaper started", "stale_after", r.staleAfter, "interval", r.interval)
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.reclaim(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

func (r *Reaper) reclaim(ctx context.Context) {
	jobs, err := r.queue.ReclaimStale(ctx, r.staleAfter)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("reclaim stale jobs failed", "error", err)
		}
		return
	}
	r.metrics.JobsReclaimed.Add(float64(len(jobs)))
	for _, j := range jobs {
		r.logger.Warn("reclaimed stale job",
			"job_id", j.ID,
			"station_id", j.StationID,
			"status", j.Status,
			"retry_count", j.RetryCount,
		)
	}
}
