// Package trigger turns gauge discovery events into import jobs.
package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
	"github.com/couchcryptid/rainfall-import-service/internal/observability"
	"github.com/couchcryptid/rainfall-import-service/internal/queue"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// EventSource yields discovery messages one at a time.
type EventSource interface {
	Fetch(ctx context.Context) (domain.RawEvent, error)
}

// Enqueuer is the part of the queue the trigger needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, p queue.EnqueueParams) (domain.ImportJob, error)
}

// Discovery consumes GaugeDiscovered events and enqueues a discovery job
// for each. An event for a station that already has an active job is an
// expected outcome and only counted.
type Discovery struct {
	source  EventSource
	queue   Enqueuer
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// NewDiscovery creates a discovery consumer.
func NewDiscovery(source EventSource, q Enqueuer, logger *slog.Logger, metrics *observability.Metrics) *Discovery {
	return &Discovery{source: source, queue: q, logger: logger, metrics: metrics}
}

// CheckReadiness returns nil once a message has been handled.
func (d *Discovery) CheckReadiness(_ context.Context) error {
	if !d.ready.Load() {
		return errors.New("discovery consumer has not handled any events yet")
	}
	return nil
}

// Run consumes events until the context is cancelled. A message's offset is
// committed only after it has been handled, so a queue outage redelivers it.
func (d *Discovery) Run(ctx context.Context) error {
	d.logger.Info("discovery consumer started")
	backoff := initialBackoff

	for {
		raw, err := d.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("discovery consumer stopping", "reason", ctx.Err())
				return nil
			}
			d.logger.Error("fetch discovery event failed", "error", err)
			if !retry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		if !d.handleWithRetry(ctx, raw) {
			d.logger.Info("discovery consumer stopping", "reason", ctx.Err())
			return nil
		}
		d.commit(ctx, raw)
		d.ready.Store(true)
	}
}

// handleWithRetry retries Handle until it succeeds. Returns false if the
// context was cancelled first.
func (d *Discovery) handleWithRetry(ctx context.Context, raw domain.RawEvent) bool {
	backoff := initialBackoff
	for {
		err := d.Handle(ctx, raw)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		d.logger.Error("enqueue discovery job failed, retrying",
			"error", err, "partition", raw.Partition, "offset", raw.Offset, "backoff", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			return false
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// Handle enqueues a job for one event. Malformed events and duplicates are
// not errors; only a queue failure is returned.
func (d *Discovery) Handle(ctx context.Context, raw domain.RawEvent) error {
	ev, err := domain.ParseGaugeDiscovered(raw)
	if err != nil {
		d.logger.Warn("discarding malformed discovery event",
			"error", err, "topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
		d.metrics.DiscoveryEvents.WithLabelValues("invalid").Inc()
		return nil
	}

	priority := domain.DefaultPriority
	if ev.Priority != nil {
		priority = *ev.Priority
	}
	job, err := d.queue.Enqueue(ctx, queue.EnqueueParams{
		StationID: ev.StationID,
		Priority:  priority,
		Source:    domain.SourceDiscovery,
		Snapshot:  ev.Summary(),
	})
	switch {
	case errors.Is(err, domain.ErrDuplicateActiveJob):
		d.logger.Debug("station already has an active import job", "station_id", ev.StationID)
		d.metrics.DuplicateJobs.Inc()
		d.metrics.DiscoveryEvents.WithLabelValues("duplicate").Inc()
		return nil
	case errors.Is(err, queue.ErrInvalidParams):
		d.logger.Warn("discarding discovery event with invalid job parameters", "station_id", ev.StationID, "error", err)
		d.metrics.DiscoveryEvents.WithLabelValues("invalid").Inc()
		return nil
	case err != nil:
		d.metrics.DiscoveryEvents.WithLabelValues("error").Inc()
		return err
	}

	d.metrics.JobsEnqueued.WithLabelValues(string(domain.SourceDiscovery)).Inc()
	d.metrics.DiscoveryEvents.WithLabelValues("enqueued").Inc()
	d.logger.Info("import job enqueued", "job_id", job.ID, "station_id", job.StationID, "priority", job.Priority)
	return nil
}

func (d *Discovery) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		d.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
