// Package aggregate merges raw readings from any mix of documents into one
// canonical daily series per station and rolls it up by month.
package aggregate

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

// Result is the canonical series for one station.
type Result struct {
	Readings []domain.Reading
	Monthly  []domain.MonthlyAggregate
	// Conflicts counts days reported by more than one source.
	Conflicts int
	// Corrections counts cumulative values raised to keep the water-year
	// series non-decreasing.
	Corrections int
}

// WaterYears returns the distinct water years touched by the result.
func (r Result) WaterYears() []int {
	var years []int
	for _, rd := range r.Readings {
		wy := domain.WaterYear(rd.Date)
		if len(years) == 0 || years[len(years)-1] != wy {
			years = append(years, wy)
		}
	}
	return years
}

// Aggregate builds the canonical series for station from raws. Readings for
// other stations are ignored. The output does not depend on input order.
func Aggregate(station string, raws []domain.RawReading) Result {
	var res Result

	best := make(map[time.Time]domain.RawReading)
	sources := make(map[time.Time]domain.SourceTag)
	conflicted := make(map[time.Time]bool)
	for _, r := range raws {
		if r.StationID != station || (r.Cumulative == nil && r.Incremental == nil) {
			continue
		}
		day := domain.Truncate(r.Date)
		r.Date = day
		cur, ok := best[day]
		if !ok {
			best[day] = r
			sources[day] = r.Source
			continue
		}
		if r.Source != sources[day] {
			conflicted[day] = true
		}
		if preferred(r, cur) {
			best[day] = r
		}
	}
	res.Conflicts = len(conflicted)

	days := make([]time.Time, 0, len(best))
	for d := range best {
		days = append(days, d)
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })

	var (
		waterYear int
		prevCum   float64
		hasPrev   bool
	)
	res.Readings = make([]domain.Reading, 0, len(days))
	for _, d := range days {
		r := best[d]
		if wy := domain.WaterYear(d); wy != waterYear {
			waterYear, prevCum, hasPrev = wy, 0, false
		}

		var inc, cum float64
		switch {
		case r.Incremental != nil:
			inc = *r.Incremental
		case hasPrev:
			inc = *r.Cumulative - prevCum
		default:
			inc = *r.Cumulative
		}
		if r.Cumulative != nil {
			cum = *r.Cumulative
		} else {
			cum = prevCum + inc
		}

		if hasPrev && cum < prevCum {
			cum = prevCum
			res.Corrections++
			if r.Incremental == nil {
				inc = 0
			}
		}
		if inc < 0 {
			inc = 0
		}

		cum, inc = round(cum), round(inc)
		res.Readings = append(res.Readings, domain.Reading{
			StationID:   station,
			Date:        d,
			Cumulative:  cum,
			Incremental: inc,
			Source:      r.Source,
			Quality:     r.Quality,
		})
		prevCum, hasPrev = cum, true
	}

	res.Monthly = Monthly(res.Readings)
	return res
}

// Monthly rolls canonical readings up into station-months. Readings must be
// sorted by date.
func Monthly(readings []domain.Reading) []domain.MonthlyAggregate {
	var out []domain.MonthlyAggregate
	for _, r := range readings {
		n := len(out)
		if n == 0 || out[n-1].StationID != r.StationID || out[n-1].Year != r.Date.Year() || out[n-1].Month != r.Date.Month() {
			out = append(out, domain.MonthlyAggregate{
				StationID:     r.StationID,
				Year:          r.Date.Year(),
				Month:         r.Date.Month(),
				FirstReading:  r.Date,
				MinCumulative: r.Cumulative,
				MaxCumulative: r.Cumulative,
			})
			n++
		}
		m := &out[n-1]
		m.TotalRainfall = round(m.TotalRainfall + r.Incremental)
		m.ReadingCount++
		m.LastReading = r.Date
		m.MinCumulative = min(m.MinCumulative, r.Cumulative)
		m.MaxCumulative = max(m.MaxCumulative, r.Cumulative)
	}
	return out
}

// preferred reports whether a should replace b for the same day: higher
// source rank first, then more published fields, then the greater source tag,
// then the larger values.
func preferred(a, b domain.RawReading) bool {
	if c := cmp.Compare(domain.SourceRank(a.Source), domain.SourceRank(b.Source)); c != 0 {
		return c > 0
	}
	if c := cmp.Compare(published(a), published(b)); c != 0 {
		return c > 0
	}
	if c := cmp.Compare(a.Source, b.Source); c != 0 {
		return c > 0
	}
	if c := cmp.Compare(value(a.Cumulative), value(b.Cumulative)); c != 0 {
		return c > 0
	}
	return value(a.Incremental) > value(b.Incremental)
}

func published(r domain.RawReading) int {
	n := 0
	if r.Cumulative != nil {
		n++
	}
	if r.Incremental != nil {
		n++
	}
	return n
}

func value(p *float64) float64 {
	if p == nil {
		return math.Inf(-1)
	}
	return *p
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}
