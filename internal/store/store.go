// Package store persists canonical readings, monthly aggregates and gauge
// metadata.
package store

import (
	"errors"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

// ErrGaugeNotFound is returned when no metadata is stored for a station.
var ErrGaugeNotFound = errors.New("gauge not found")

// ImportBatch is everything one station import writes. SaveImport applies it
// all or not at all.
type ImportBatch struct {
	Metadata *domain.GaugeMetadata
	Readings []domain.Reading
	Monthly  []domain.MonthlyAggregate
}

// replaces reports whether incoming should overwrite stored for the same
// station-day. A lower-ranked source never replaces a higher one and an
// identical reading is a no-op.
func replaces(incoming, stored domain.Reading) bool {
	in, st := domain.SourceRank(incoming.Source), domain.SourceRank(stored.Source)
	if in != st {
		return in > st
	}
	return incoming.Cumulative != stored.Cumulative ||
		incoming.Incremental != stored.Incremental ||
		incoming.Source != stored.Source ||
		incoming.Quality != stored.Quality
}
