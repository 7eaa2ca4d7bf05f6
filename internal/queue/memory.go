package queue

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

// Memory is an in-process Queue for tests and local runs. One mutex guards
// every operation, so claims are trivially exclusive.
type Memory struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*memJob
	seq     int64
	clock   clockwork.Clock
	backoff BackoffPolicy
}

type memJob struct {
	job domain.ImportJob
	seq int64
}

// NewMemory creates an empty in-memory queue.
func NewMemory(clock clockwork.Clock, backoff BackoffPolicy) *Memory {
	return &Memory{
		jobs:    make(map[uuid.UUID]*memJob),
		clock:   clock,
		backoff: backoff,
	}
}

func (m *Memory) Enqueue(_ context.Context, p EnqueueParams) (domain.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := newJob(p, m.clock.Now())
	if err != nil {
		return domain.ImportJob{}, err
	}
	for _, mj := range m.jobs {
		if mj.job.StationID == job.StationID && mj.job.Status.Active() {
			return domain.ImportJob{}, fmt.Errorf("enqueue %s: %w", job.StationID, domain.ErrDuplicateActiveJob)
		}
	}
	m.seq++
	m.jobs[job.ID] = &memJob{job: job, seq: m.seq}
	return clone(job), nil
}

func (m *Memory) ClaimNext(_ context.Context) (domain.ImportJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var next *memJob
	for _, mj := range m.jobs {
		if !mj.job.Eligible(now) {
			continue
		}
		if next == nil || claimOrder(mj, next) < 0 {
			next = mj
		}
	}
	if next == nil {
		return domain.ImportJob{}, false, nil
	}
	claim(&next.job, now)
	return clone(next.job), true, nil
}

// claimOrder sorts by priority descending, then creation time, then
// insertion order.
func claimOrder(a, b *memJob) int {
	if c := cmp.Compare(b.job.Priority, a.job.Priority); c != 0 {
		return c
	}
	if c := a.job.CreatedAt.Compare(b.job.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

func (m *Memory) Complete(_ context.Context, lease Lease, stats domain.ImportStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mj, ok := m.jobs[lease.JobID]
	if !ok {
		return fmt.Errorf("complete job %s: %w", lease.JobID, domain.ErrJobNotFound)
	}
	_, err := complete(&mj.job, lease, stats, m.clock.Now())
	return err
}

func (m *Memory) Fail(_ context.Context, lease Lease, errMsg string) (domain.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mj, ok := m.jobs[lease.JobID]
	if !ok {
		return domain.ImportJob{}, fmt.Errorf("fail job %s: %w", lease.JobID, domain.ErrJobNotFound)
	}
	if err := fail(&mj.job, lease, errMsg, m.clock.Now(), m.backoff); err != nil {
		return domain.ImportJob{}, err
	}
	return clone(mj.job), nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (domain.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mj, ok := m.jobs[id]
	if !ok {
		return domain.ImportJob{}, fmt.Errorf("get job %s: %w", id, domain.ErrJobNotFound)
	}
	return clone(mj.job), nil
}

// List returns matching jobs, newest first.
func (m *Memory) List(_ context.Context, f ListFilter) ([]domain.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*memJob
	for _, mj := range m.jobs {
		if f.matches(mj.job) {
			matched = append(matched, mj)
		}
	}
	slices.SortFunc(matched, func(a, b *memJob) int {
		if c := b.job.CreatedAt.Compare(a.job.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})
	if len(matched) > f.limit() {
		matched = matched[:f.limit()]
	}
	out := make([]domain.ImportJob, 0, len(matched))
	for _, mj := range matched {
		out = append(out, clone(mj.job))
	}
	return out, nil
}

func (m *Memory) ReclaimStale(_ context.Context, olderThan time.Duration) ([]domain.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	cutoff := now.Add(-olderThan)
	var reclaimed []domain.ImportJob
	for _, mj := range m.jobs {
		if !stale(mj.job, cutoff) {
			continue
		}
		if err := fail(&mj.job, LeaseOf(mj.job), LeaseExpired, now, m.backoff); err != nil {
			return reclaimed, err
		}
		reclaimed = append(reclaimed, clone(mj.job))
	}
	return reclaimed, nil
}

// clone copies a job so callers never share its slices or pointers.
func clone(j domain.ImportJob) domain.ImportJob {
	j.ErrorHistory = slices.Clone(j.ErrorHistory)
	if j.ErrorHistory == nil {
		j.ErrorHistory = []domain.JobError{}
	}
	j.StartedAt = clonePtr(j.StartedAt)
	j.CompletedAt = clonePtr(j.CompletedAt)
	j.NextRetryAt = clonePtr(j.NextRetryAt)
	j.Snapshot = clonePtr(j.Snapshot)
	j.Stats = clonePtr(j.Stats)
	return j
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ Queue = (*Memory)(nil)
