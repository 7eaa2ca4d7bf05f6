package queue

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

//go:embed schema.sql
var schema string

const (
	uniqueViolation   = "23505"
	activeJobIndex    = "import_jobs_one_active_per_station"
	jobColumns        = `id, station_id, status, priority, created_at, started_at, completed_at, last_error, error_history, retry_count, max_retries, next_retry_at, source, snapshot, stats`
	selectJobs        = `SELECT ` + jobColumns + ` FROM import_jobs`
	eligibleCondition = `status = 'pending' AND retry_count < max_retries AND (next_retry_at IS NULL OR next_retry_at <= $1)`
)

// Postgres is a Queue backed by the import_jobs table. ClaimNext relies on
// FOR UPDATE SKIP LOCKED, so any number of processes may claim concurrently.
type Postgres struct {
	pool    *pgxpool.Pool
	clock   clockwork.Clock
	backoff BackoffPolicy
}

// NewPostgres wraps a connection pool. Call Migrate before first use.
func NewPostgres(pool *pgxpool.Pool, clock clockwork.Clock, backoff BackoffPolicy) *Postgres {
	return &Postgres{pool: pool, clock: clock, backoff: backoff}
}

// Migrate creates the jobs table and its indexes if missing.
func (q *Postgres) Migrate(ctx context.Context) error {
	if _, err := q.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate import_jobs: %w", err)
	}
	return nil
}

func (q *Postgres) Enqueue(ctx context.Context, p EnqueueParams) (domain.ImportJob, error) {
	job, err := newJob(p, q.clock.Now())
	if err != nil {
		return domain.ImportJob{}, err
	}
	snapshot, err := jsonOrNull(job.Snapshot)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("enqueue %s: %w", job.StationID, err)
	}

	row := q.pool.QueryRow(ctx, `
INSERT INTO import_jobs (id, station_id, status, priority, created_at, max_retries, source, snapshot)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+jobColumns,
		job.ID, job.StationID, job.Status, job.Priority, job.CreatedAt, job.MaxRetries, job.Source, snapshot)

	inserted, err := scanJob(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeJobIndex {
			return domain.ImportJob{}, fmt.Errorf("enqueue %s: %w", job.StationID, domain.ErrDuplicateActiveJob)
		}
		return domain.ImportJob{}, fmt.Errorf("enqueue %s: %w", job.StationID, err)
	}
	return inserted, nil
}

func (q *Postgres) ClaimNext(ctx context.Context) (domain.ImportJob, bool, error) {
	row := q.pool.QueryRow(ctx, `
UPDATE import_jobs SET status = 'in_progress', started_at = $1
WHERE id = (
    SELECT id FROM import_jobs
    WHERE `+eligibleCondition+`
    ORDER BY priority DESC, created_at ASC, seq ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING `+jobColumns, q.clock.Now())

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ImportJob{}, false, nil
	}
	if err != nil {
		return domain.ImportJob{}, false, fmt.Errorf("claim next job: %w", err)
	}
	return job, true, nil
}

func (q *Postgres) Complete(ctx context.Context, lease Lease, stats domain.ImportStats) error {
	return q.transition(ctx, lease.JobID, func(job *domain.ImportJob) (bool, error) {
		return complete(job, lease, stats, q.clock.Now())
	})
}

func (q *Postgres) Fail(ctx context.Context, lease Lease, errMsg string) (domain.ImportJob, error) {
	var updated domain.ImportJob
	err := q.transition(ctx, lease.JobID, func(job *domain.ImportJob) (bool, error) {
		if err := fail(job, lease, errMsg, q.clock.Now(), q.backoff); err != nil {
			return false, err
		}
		updated = *job
		return true, nil
	})
	if err != nil {
		return domain.ImportJob{}, err
	}
	return updated, nil
}

// transition locks one job row, applies apply and writes the result back in
// a single short transaction. The row lock makes the lease check in apply
// atomic with the update.
func (q *Postgres) transition(ctx context.Context, id uuid.UUID, apply func(*domain.ImportJob) (bool, error)) error {
	return pgx.BeginTxFunc(ctx, q.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		job, err := scanJob(tx.QueryRow(ctx, selectJobs+` WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("job %s: %w", id, domain.ErrJobNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock job %s: %w", id, err)
		}
		changed, err := apply(&job)
		if err != nil || !changed {
			return err
		}
		return updateJob(ctx, tx, job)
	})
}

func updateJob(ctx context.Context, tx pgx.Tx, job domain.ImportJob) error {
	history, err := json.Marshal(job.ErrorHistory)
	if err != nil {
		return fmt.Errorf("encode error history: %w", err)
	}
	stats, err := jsonOrNull(job.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	_, err = tx.Exec(ctx, `
UPDATE import_jobs
SET status = $2, started_at = $3, completed_at = $4, last_error = $5, error_history = $6,
    retry_count = $7, next_retry_at = $8, stats = $9
WHERE id = $1`,
		job.ID, job.Status, job.StartedAt, job.CompletedAt, job.LastError, history,
		job.RetryCount, job.NextRetryAt, stats)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return nil
}

func (q *Postgres) Get(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	job, err := scanJob(q.pool.QueryRow(ctx, selectJobs+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ImportJob{}, fmt.Errorf("get job %s: %w", id, domain.ErrJobNotFound)
	}
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// List returns matching jobs, newest first.
func (q *Postgres) List(ctx context.Context, f ListFilter) ([]domain.ImportJob, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.StationID != "" {
		args = append(args, f.StationID)
		where = append(where, fmt.Sprintf("station_id = $%d", len(args)))
	}
	query := selectJobs
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.limit())
	query += fmt.Sprintf(" ORDER BY created_at DESC, seq DESC LIMIT $%d", len(args))

	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.ImportJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (q *Postgres) ReclaimStale(ctx context.Context, olderThan time.Duration) ([]domain.ImportJob, error) {
	cutoff := q.clock.Now().Add(-olderThan)
	rows, err := q.pool.Query(ctx,
		`SELECT id, retry_count FROM import_jobs WHERE status = 'in_progress' AND started_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find stale jobs: %w", err)
	}
	leases, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Lease])
	if err != nil {
		return nil, fmt.Errorf("find stale jobs: %w", err)
	}

	var reclaimed []domain.ImportJob
	for _, lease := range leases {
		job, err := q.Fail(ctx, lease, LeaseExpired)
		// Finished by its worker between the scan and the lock.
		if errors.Is(err, domain.ErrLeaseLost) || errors.Is(err, domain.ErrJobNotInProgress) ||
			errors.Is(err, domain.ErrJobAlreadyTerminal) {
			continue
		}
		if err != nil {
			return reclaimed, err
		}
		reclaimed = append(reclaimed, job)
	}
	return reclaimed, nil
}

// CheckReadiness pings the database.
func (q *Postgres) CheckReadiness(ctx context.Context) error {
	return q.pool.Ping(ctx)
}

func scanJob(row pgx.Row) (domain.ImportJob, error) {
	var (
		job                    domain.ImportJob
		history, snap, statsJS []byte
	)
	err := row.Scan(
		&job.ID, &job.StationID, &job.Status, &job.Priority, &job.CreatedAt,
		&job.StartedAt, &job.CompletedAt, &job.LastError, &history, &job.RetryCount,
		&job.MaxRetries, &job.NextRetryAt, &job.Source, &snap, &statsJS,
	)
	if err != nil {
		return domain.ImportJob{}, err
	}
	job.ErrorHistory = []domain.JobError{}
	if err := json.Unmarshal(history, &job.ErrorHistory); err != nil {
		return domain.ImportJob{}, fmt.Errorf("decode error history: %w", err)
	}
	if len(snap) > 0 {
		if err := json.Unmarshal(snap, &job.Snapshot); err != nil {
			return domain.ImportJob{}, fmt.Errorf("decode snapshot: %w", err)
		}
	}
	if len(statsJS) > 0 {
		if err := json.Unmarshal(statsJS, &job.Stats); err != nil {
			return domain.ImportJob{}, fmt.Errorf("decode stats: %w", err)
		}
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.StartedAt = utc(job.StartedAt)
	job.CompletedAt = utc(job.CompletedAt)
	job.NextRetryAt = utc(job.NextRetryAt)
	for i := range job.ErrorHistory {
		job.ErrorHistory[i].At = job.ErrorHistory[i].At.UTC()
	}
	return job, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func jsonOrNull[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

var _ Queue = (*Postgres)(nil)
