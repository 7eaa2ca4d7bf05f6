package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceTag identifies the document a reading came from,
// e.g. "spreadsheet:2021" or "pdf:jan2021".
type SourceTag string

// Source tag prefixes.
const (
	SourceSpreadsheet = "spreadsheet"
	SourcePDF         = "pdf"
)

// SpreadsheetSource returns the tag for a water-year workbook.
func SpreadsheetSource(waterYear int) SourceTag {
	return SourceTag(fmt.Sprintf("%s:%d", SourceSpreadsheet, waterYear))
}

// PDFSource returns the tag for a monthly report.
func PDFSource(year int, month time.Month) SourceTag {
	return SourceTag(fmt.Sprintf("%s:%s%d", SourcePDF, strings.ToLower(month.String()[:3]), year))
}

// Kind returns the tag prefix before the colon.
func (s SourceTag) Kind() string {
	kind, _, _ := strings.Cut(string(s), ":")
	return kind
}

// SourceRank orders source kinds by fidelity. Higher wins when two documents
// report the same gauge-day.
func SourceRank(s SourceTag) int {
	switch s.Kind() {
	case SourceSpreadsheet:
		return 2
	case SourcePDF:
		return 1
	default:
		return 0
	}
}

// Quality carries footnote annotations attached to a published value.
type Quality struct {
	Footnote  string `json:"footnote,omitempty"`
	Estimated bool   `json:"estimated,omitempty"`
}

// IsZero reports whether no annotation is present.
func (q Quality) IsZero() bool {
	return q.Footnote == "" && !q.Estimated
}

// RawReading is one gauge-day observation as extracted from a document.
// At least one of Cumulative and Incremental is set.
type RawReading struct {
	StationID   string
	Date        time.Time
	Cumulative  *float64
	Incremental *float64
	Source      SourceTag
	Quality     Quality
}

// Reading is the canonical, deduplicated reading for one station-day.
type Reading struct {
	StationID   string    `json:"station_id"`
	Date        time.Time `json:"date"`
	Cumulative  float64   `json:"cumulative"`
	Incremental float64   `json:"incremental"`
	Source      SourceTag `json:"source"`
	Quality     Quality   `json:"quality,omitempty"`
}

// Raw converts a stored reading back into aggregator input so stored and
// freshly parsed readings can be merged.
func (r Reading) Raw() RawReading {
	cum, inc := r.Cumulative, r.Incremental
	return RawReading{
		StationID:   r.StationID,
		Date:        r.Date,
		Cumulative:  &cum,
		Incremental: &inc,
		Source:      r.Source,
		Quality:     r.Quality,
	}
}

// MonthlyAggregate is a station-month rollup. It is always recomputed from
// the full set of canonical readings for the month.
type MonthlyAggregate struct {
	StationID     string     `json:"station_id"`
	Year          int        `json:"year"`
	Month         time.Month `json:"month"`
	TotalRainfall float64    `json:"total_rainfall"`
	ReadingCount  int        `json:"reading_count"`
	FirstReading  time.Time  `json:"first_reading"`
	LastReading   time.Time  `json:"last_reading"`
	MinCumulative float64    `json:"min_cumulative"`
	MaxCumulative float64    `json:"max_cumulative"`
}
