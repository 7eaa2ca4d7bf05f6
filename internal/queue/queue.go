// Package queue is the durable import job queue. A job moves
//
//	pending -> in_progress -> completed
//	                       -> pending (retry after backoff)
//	                       -> failed (retries exhausted)
//
// and a station has at most one pending or in-progress job at a time. The
// Postgres and in-memory implementations share the transition functions in
// this file.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

// LeaseExpired is the error recorded when a stale in-progress job is reclaimed.
const LeaseExpired = "worker lease expired"

// ErrInvalidParams is returned by Enqueue for malformed parameters.
var ErrInvalidParams = errors.New("invalid enqueue parameters")

// Queue stores import jobs and serializes their claims.
type Queue interface {
	// Enqueue inserts a pending job. It fails with domain.ErrDuplicateActiveJob
	// when the station already has a pending or in-progress job.
	Enqueue(ctx context.Context, p EnqueueParams) (domain.ImportJob, error)
	// ClaimNext moves the most urgent eligible job to in_progress. ok is false
	// when nothing is eligible.
	ClaimNext(ctx context.Context) (job domain.ImportJob, ok bool, err error)
	// Complete finishes the leased attempt. Completing an attempt that already
	// completed is a no-op. It fails with domain.ErrLeaseLost when the attempt
	// was reclaimed.
	Complete(ctx context.Context, lease Lease, stats domain.ImportStats) error
	// Fail records the leased attempt's failure and either schedules a retry
	// or marks the job failed. It returns the updated job, or
	// domain.ErrLeaseLost when the attempt was reclaimed.
	Fail(ctx context.Context, lease Lease, errMsg string) (domain.ImportJob, error)
	Get(ctx context.Context, id uuid.UUID) (domain.ImportJob, error)
	List(ctx context.Context, f ListFilter) ([]domain.ImportJob, error)
	// ReclaimStale fails every in-progress job started more than olderThan ago
	// and returns the reclaimed jobs.
	ReclaimStale(ctx context.Context, olderThan time.Duration) ([]domain.ImportJob, error)
}

// Lease identifies one claimed attempt of a job. Every claim of a job sees a
// different retry count, so the count doubles as the attempt's fencing token.
type Lease struct {
	JobID   uuid.UUID
	Attempt int
}

// LeaseOf returns the lease for a job as returned by ClaimNext.
func LeaseOf(job domain.ImportJob) Lease {
	return Lease{JobID: job.ID, Attempt: job.RetryCount}
}

func (l Lease) check(j domain.ImportJob) error {
	if j.RetryCount != l.Attempt {
		return fmt.Errorf("job %s attempt %d: %w", j.ID, l.Attempt+1, domain.ErrLeaseLost)
	}
	return nil
}

// EnqueueParams describes a new job. Priority must be within
// [domain.MinPriority, domain.MaxPriority]; callers without an opinion pass
// domain.DefaultPriority. A zero MaxRetries means domain.DefaultMaxRetries.
type EnqueueParams struct {
	StationID  string
	Priority   int
	Source     domain.JobSource
	MaxRetries int
	Snapshot   *domain.GaugeSummary
}

// ListFilter narrows List. Zero fields match everything; a zero Limit means 100.
type ListFilter struct {
	Status    domain.JobStatus
	StationID string
	Limit     int
}

const defaultListLimit = 100

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func (f ListFilter) matches(j domain.ImportJob) bool {
	return (f.Status == "" || j.Status == f.Status) && (f.StationID == "" || j.StationID == f.StationID)
}

// BackoffPolicy computes retry delays: Base * 2^retryCount, capped at Max.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff is one minute doubling up to an hour.
var DefaultBackoff = BackoffPolicy{Base: time.Minute, Max: time.Hour}

// Delay returns the wait before the next attempt for a job that has already
// failed retryCount times before this failure.
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	d := p.Base
	for range retryCount {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

func newJob(p EnqueueParams, now time.Time) (domain.ImportJob, error) {
	if p.StationID == "" {
		return domain.ImportJob{}, fmt.Errorf("%w: station id is required", ErrInvalidParams)
	}
	if p.Priority < domain.MinPriority || p.Priority > domain.MaxPriority {
		return domain.ImportJob{}, fmt.Errorf("%w: priority %d outside [%d, %d]",
			ErrInvalidParams, p.Priority, domain.MinPriority, domain.MaxPriority)
	}
	if !p.Source.Valid() {
		return domain.ImportJob{}, fmt.Errorf("%w: unknown source %q", ErrInvalidParams, p.Source)
	}
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}
	return domain.ImportJob{
		ID:           uuid.New(),
		StationID:    p.StationID,
		Status:       domain.JobPending,
		Priority:     p.Priority,
		CreatedAt:    now,
		ErrorHistory: []domain.JobError{},
		MaxRetries:   maxRetries,
		Source:       p.Source,
		Snapshot:     p.Snapshot,
	}, nil
}

func claim(j *domain.ImportJob, now time.Time) {
	j.Status = domain.JobInProgress
	j.StartedAt = &now
}

// complete reports whether the job changed.
func complete(j *domain.ImportJob, lease Lease, stats domain.ImportStats, now time.Time) (bool, error) {
	if err := lease.check(*j); err != nil {
		return false, fmt.Errorf("complete %w", err)
	}
	switch {
	case j.Status.Terminal():
		return false, nil
	case j.Status != domain.JobInProgress:
		return false, fmt.Errorf("complete job %s: %w", j.ID, domain.ErrJobNotInProgress)
	}
	j.Status = domain.JobCompleted
	j.CompletedAt = &now
	j.NextRetryAt = nil
	j.Stats = &stats
	return true, nil
}

func fail(j *domain.ImportJob, lease Lease, errMsg string, now time.Time, backoff BackoffPolicy) error {
	if err := lease.check(*j); err != nil {
		return fmt.Errorf("fail %w", err)
	}
	switch {
	case j.Status.Terminal():
		return fmt.Errorf("fail job %s: %w", j.ID, domain.ErrJobAlreadyTerminal)
	case j.Status != domain.JobInProgress:
		return fmt.Errorf("fail job %s: %w", j.ID, domain.ErrJobNotInProgress)
	}
	j.ErrorHistory = append(j.ErrorHistory, domain.JobError{At: now, Error: errMsg, Attempt: j.RetryCount})
	j.LastError = errMsg
	delay := backoff.Delay(j.RetryCount)
	j.RetryCount++

	if j.RetryCount < j.MaxRetries {
		next := now.Add(delay)
		j.Status = domain.JobPending
		j.NextRetryAt = &next
		return nil
	}
	j.Status = domain.JobFailed
	j.CompletedAt = &now
	j.NextRetryAt = nil
	return nil
}

// stale reports whether an in-progress job was started before cutoff.
func stale(j domain.ImportJob, cutoff time.Time) bool {
	return j.Status == domain.JobInProgress && j.StartedAt != nil && j.StartedAt.Before(cutoff)
}
