package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

type readingKey struct {
	station string
	date    time.Time
}

type monthKey struct {
	station string
	year    int
	month   time.Month
}

// Memory is an in-process repository for tests and local runs.
type Memory struct {
	mu       sync.RWMutex
	gauges   map[string]domain.GaugeMetadata
	readings map[readingKey]domain.Reading
	monthly  map[monthKey]domain.MonthlyAggregate
}

// NewMemory creates an empty repository.
func NewMemory() *Memory {
	return &Memory{
		gauges:   make(map[string]domain.GaugeMetadata),
		readings: make(map[readingKey]domain.Reading),
		monthly:  make(map[monthKey]domain.MonthlyAggregate),
	}
}

func (s *Memory) InsertReadings(_ context.Context, readings []domain.Reading) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(readings), nil
}

func (s *Memory) insertLocked(readings []domain.Reading) int {
	written := 0
	for _, r := range readings {
		r.Date = domain.Truncate(r.Date)
		key := readingKey{r.StationID, r.Date}
		if stored, ok := s.readings[key]; ok && !replaces(r, stored) {
			continue
		}
		s.readings[key] = r
		written++
	}
	return written
}

func (s *Memory) UpsertMonthlyAggregate(_ context.Context, m domain.MonthlyAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monthly[monthKey{m.StationID, m.Year, m.Month}] = m
	return nil
}

func (s *Memory) UpsertGaugeMetadata(_ context.Context, g domain.GaugeMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[g.StationID] = g
	return nil
}

// SaveImport applies the whole batch under one lock. Readings for a station
// with no stored or accompanying metadata are rejected, matching the foreign
// keys of the Postgres schema.
func (s *Memory) SaveImport(_ context.Context, b ImportBatch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := func(station string) bool {
		if b.Metadata != nil && b.Metadata.StationID == station {
			return true
		}
		_, ok := s.gauges[station]
		return ok
	}
	for _, r := range b.Readings {
		if !known(r.StationID) {
			return 0, fmt.Errorf("save import: reading for %s: %w", r.StationID, ErrGaugeNotFound)
		}
	}
	for _, m := range b.Monthly {
		if !known(m.StationID) {
			return 0, fmt.Errorf("save import: aggregate for %s: %w", m.StationID, ErrGaugeNotFound)
		}
	}

	if b.Metadata != nil {
		s.gauges[b.Metadata.StationID] = *b.Metadata
	}
	n := s.insertLocked(b.Readings)
	for _, m := range b.Monthly {
		s.monthly[monthKey{m.StationID, m.Year, m.Month}] = m
	}
	return n, nil
}

func (s *Memory) ReadingsBetween(_ context.Context, stationID string, from, to time.Time) ([]domain.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Reading
	for k, r := range s.readings {
		if k.station == stationID && !k.date.Before(from) && !k.date.After(to) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b domain.Reading) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (s *Memory) MonthlyAggregates(_ context.Context, stationID string) ([]domain.MonthlyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MonthlyAggregate
	for _, m := range s.monthly {
		if m.StationID == stationID {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b domain.MonthlyAggregate) int {
		if c := cmp.Compare(a.Year, b.Year); c != 0 {
			return c
		}
		return cmp.Compare(a.Month, b.Month)
	})
	return out, nil
}

func (s *Memory) Gauge(_ context.Context, stationID string) (domain.GaugeMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.gauges[stationID]
	if !ok {
		return domain.GaugeMetadata{}, fmt.Errorf("gauge %s: %w", stationID, ErrGaugeNotFound)
	}
	g.PreviousIDs = slices.Clone(g.PreviousIDs)
	g.Stats = maps.Clone(g.Stats)
	return g, nil
}

// ReadingCount returns the number of stored readings across all stations.
func (s *Memory) ReadingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

// CheckReadiness always succeeds.
func (s *Memory) CheckReadiness(context.Context) error { return nil }
