package parser

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

const (
	firstDataRow = 2
	lastDataRow  = 32
)

// ParseWorkbook lazily yields readings from a water-year workbook. Row-scoped
// problems are yielded as errors and parsing continues; an unreadable workbook
// yields one InvalidFormat error and stops.
func ParseWorkbook(r io.Reader, waterYear int) iter.Seq2[domain.RawReading, error] {
	source := domain.SpreadsheetSource(waterYear)
	doc := string(source)

	return func(yield func(domain.RawReading, error) bool) {
		f, err := excelize.OpenReader(r)
		if err != nil {
			yield(domain.RawReading{}, &domain.ParseError{Kind: domain.InvalidFormat, Document: doc, Err: err})
			return
		}
		defer f.Close() //nolint:errcheck // read-only

		sheets := monthSheets(f.GetSheetList())
		cumulative := make(map[string]float64)

		for _, month := range domain.WaterYearMonths() {
			sheet, ok := sheets[month]
			if !ok {
				if !yield(domain.RawReading{}, &domain.ParseError{
					Kind:     domain.RowScoped,
					Document: doc,
					Sheet:    month.String()[:3],
					Err:      errors.New("month sheet missing"),
				}) {
					return
				}
				continue
			}

			rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
			if err != nil {
				if !yield(domain.RawReading{}, &domain.ParseError{Kind: domain.RowScoped, Document: doc, Sheet: sheet, Err: err}) {
					return
				}
				continue
			}
			if len(rows) == 0 {
				continue
			}
			gauges := rows[0]
			year := waterYear
			if month >= time.October {
				year--
			}

			for i := firstDataRow - 1; i < len(rows) && i < lastDataRow; i++ {
				row := rows[i]
				rowErr := func(err error) *domain.ParseError {
					return &domain.ParseError{Kind: domain.RowScoped, Document: doc, Sheet: sheet, Row: i + 1, Err: err}
				}
				if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
					continue
				}
				date, err := parseSheetDate(row[0])
				if err != nil {
					if !yield(domain.RawReading{}, rowErr(err)) {
						return
					}
					continue
				}
				if date.Year() != year || date.Month() != month {
					if !yield(domain.RawReading{}, rowErr(fmt.Errorf("date %s outside %s %d", date.Format(time.DateOnly), month, year))) {
						return
					}
					continue
				}

				for col := 1; col < len(row) && col < len(gauges); col++ {
					station := strings.TrimSpace(gauges[col])
					if station == "" {
						continue
					}
					v, err := parseDepth(row[col])
					if errors.Is(err, errBlank) {
						continue
					}
					if err != nil {
						pe := rowErr(err)
						pe.Field = station
						if !yield(domain.RawReading{}, pe) {
							return
						}
						continue
					}
					if v == 0 {
						continue
					}
					cum := roundDepth(cumulative[station] + v)
					cumulative[station] = cum
					inc := v
					if !yield(domain.RawReading{
						StationID:   station,
						Date:        date,
						Cumulative:  &cum,
						Incremental: &inc,
						Source:      source,
					}, nil) {
						return
					}
				}
			}
		}
	}
}

// monthSheets maps each month to the sheet whose name starts with its
// three-letter abbreviation.
func monthSheets(names []string) map[time.Month]string {
	sheets := make(map[time.Month]string, 12)
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if len(trimmed) < 3 {
			continue
		}
		prefix := strings.ToLower(trimmed[:3])
		for m := time.January; m <= time.December; m++ {
			if strings.ToLower(m.String()[:3]) == prefix {
				if _, dup := sheets[m]; !dup {
					sheets[m] = name
				}
				break
			}
		}
	}
	return sheets
}

// parseSheetDate accepts ISO text or an Excel date number.
func parseSheetDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: not ISO or serial", s)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}
	return domain.Truncate(t), nil
}
