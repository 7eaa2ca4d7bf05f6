package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the state of an import job.
type JobStatus string

// Job states. Completed and Failed are terminal.
const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Active reports whether the status counts toward the one-active-job-per-station rule.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobInProgress
}

// JobSource records what created a job.
type JobSource string

// Job sources.
const (
	SourceDiscovery JobSource = "discovery"
	SourceManual    JobSource = "manual"
	SourceBackfill  JobSource = "backfill"
)

// Valid reports whether s is a known job source.
func (s JobSource) Valid() bool {
	switch s {
	case SourceDiscovery, SourceManual, SourceBackfill:
		return true
	default:
		return false
	}
}

// Job defaults.
const (
	DefaultPriority   = 10
	MinPriority       = 0
	MaxPriority       = 100
	DefaultMaxRetries = 3
)

// JobError is one entry in a job's error history.
type JobError struct {
	At      time.Time `json:"at"`
	Error   string    `json:"error"`
	Attempt int       `json:"attempt"`
}

// ImportStats summarizes a completed import.
type ImportStats struct {
	RowsImported int           `json:"rows_imported"`
	FirstDate    time.Time     `json:"first_date,omitzero"`
	LastDate     time.Time     `json:"last_date,omitzero"`
	Duration     time.Duration `json:"duration"`
	Documents    int           `json:"documents"`
	RowErrors    int           `json:"row_errors"`
	Warnings     int           `json:"warnings"`
}

// ImportJob is one unit of asynchronous import work for a station.
type ImportJob struct {
	ID           uuid.UUID     `json:"id"`
	StationID    string        `json:"station_id"`
	Status       JobStatus     `json:"status"`
	Priority     int           `json:"priority"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	ErrorHistory []JobError    `json:"error_history"`
	RetryCount   int           `json:"retry_count"`
	MaxRetries   int           `json:"max_retries"`
	NextRetryAt  *time.Time    `json:"next_retry_at,omitempty"`
	Source       JobSource     `json:"source"`
	Snapshot     *GaugeSummary `json:"snapshot,omitempty"`
	Stats        *ImportStats  `json:"stats,omitempty"`
}

// Eligible reports whether the job may be claimed at now.
func (j ImportJob) Eligible(now time.Time) bool {
	if j.Status != JobPending || j.RetryCount >= j.MaxRetries {
		return false
	}
	return j.NextRetryAt == nil || !j.NextRetryAt.After(now)
}
