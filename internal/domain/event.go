package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawEvent is an unprocessed message from a source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// GaugeDiscovered announces a station found by the upstream gauge index.
type GaugeDiscovered struct {
	StationID   string    `json:"station_id"`
	Name        string    `json:"name"`
	PreviousIDs []string  `json:"previous_ids"`
	DataStart   time.Time `json:"data_start,omitzero"`
	Priority    *int      `json:"priority,omitempty"`
}

// ParseGaugeDiscovered decodes and checks a discovery event payload.
func ParseGaugeDiscovered(raw RawEvent) (GaugeDiscovered, error) {
	var ev GaugeDiscovered
	if err := json.Unmarshal(raw.Value, &ev); err != nil {
		return GaugeDiscovered{}, fmt.Errorf("unmarshal gauge discovered: %w", err)
	}
	ev.StationID = strings.TrimSpace(ev.StationID)
	if ev.StationID == "" {
		return GaugeDiscovered{}, errors.New("gauge discovered event has no station_id")
	}
	return ev, nil
}

// Summary converts the event into the snapshot stored on the import job.
func (e GaugeDiscovered) Summary() *GaugeSummary {
	s := &GaugeSummary{
		StationID:   e.StationID,
		Name:        e.Name,
		PreviousIDs: e.PreviousIDs,
		DataStart:   e.DataStart,
	}
	if !e.DataStart.IsZero() {
		s.FromWaterYear = WaterYear(e.DataStart)
	}
	return s
}

// Outcome event types.
const (
	EventImportCompleted = "import.completed"
	EventImportFailed    = "import.failed"
)

// ImportOutcome is published after a worker finishes an attempt.
type ImportOutcome struct {
	Type       string       `json:"type"`
	JobID      uuid.UUID    `json:"job_id"`
	StationID  string       `json:"station_id"`
	Status     JobStatus    `json:"status"`
	RetryCount int          `json:"retry_count"`
	Stats      *ImportStats `json:"stats,omitempty"`
	Error      string       `json:"error,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// CompletedOutcome builds the event for a successful import.
func CompletedOutcome(job ImportJob, stats ImportStats, at time.Time) ImportOutcome {
	return ImportOutcome{
		Type:       EventImportCompleted,
		JobID:      job.ID,
		StationID:  job.StationID,
		Status:     JobCompleted,
		RetryCount: job.RetryCount,
		Stats:      &stats,
		OccurredAt: at,
	}
}

// FailedOutcome builds the event for a failed attempt. job is the state
// returned by the queue after the failure was recorded.
func FailedOutcome(job ImportJob, errMsg string, at time.Time) ImportOutcome {
	return ImportOutcome{
		Type:       EventImportFailed,
		JobID:      job.ID,
		StationID:  job.StationID,
		Status:     job.Status,
		RetryCount: job.RetryCount,
		Error:      errMsg,
		OccurredAt: at,
	}
}
