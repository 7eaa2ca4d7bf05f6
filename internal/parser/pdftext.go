package parser

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

var (
	monthHeaderRe = regexp.MustCompile(`MONTH\s+OF\s+([A-Z]+)\s+(\d{4})`)
	groupRe       = regexp.MustCompile(`^\s*GROUP\b\s*(\S*)`)
	groupIDRe     = regexp.MustCompile(`^[A-Z]\d{2}$`)
	tableHeaderRe = regexp.MustCompile(`^\s*GAGE\b(.*)$`)
	gaugeRowRe    = regexp.MustCompile(`^\s*(\d{3,6})\s+(.*)$`)
	noteRe        = regexp.MustCompile(`^\s*NOTE\s+([*A-Z]{1,2})\s*:\s*(.*?)\s*$`)
	tokenRe       = regexp.MustCompile(`^(\d+(?:\.\d+)?)([*A-Za-z]{0,2})$`)
)

// missingToken marks a day with no published value.
const missingToken = "_"

// pdfState tracks the current block while scanning report text.
type pdfState struct {
	group   string
	inTable bool
	days    int
}

// ParsePDFText lazily yields cumulative readings from the text of a monthly
// report. Pages whose header names another month, malformed group blocks and
// bad rows are yielded as row-scoped errors; the parser moves on to the next
// page, block or row.
func ParsePDFText(text string, year int, month time.Month) iter.Seq2[domain.RawReading, error] {
	source := domain.PDFSource(year, month)
	doc := string(source)
	daysInMonth := domain.DaysIn(year, month)

	return func(yield func(domain.RawReading, error) bool) {
		text := strings.ReplaceAll(text, "\r", "")
		notes := legend(text)
		line := 0

		for pageNum, page := range strings.Split(text, "\f") {
			sheet := fmt.Sprintf("page %d", pageNum+1)
			blockErr := func(row int, err error) *domain.ParseError {
				return &domain.ParseError{Kind: domain.RowScoped, Document: doc, Sheet: sheet, Row: row, Err: err}
			}
			var st pdfState
			lines := strings.Split(page, "\n")
			skipPage := false

			for _, l := range lines {
				line++
				if skipPage || strings.TrimSpace(l) == "" || noteRe.MatchString(l) {
					continue
				}

				if m := monthHeaderRe.FindStringSubmatch(l); m != nil {
					y, _ := strconv.Atoi(m[2])
					if y != year || !strings.EqualFold(m[1], month.String()) {
						skipPage = true
						if !yield(domain.RawReading{}, blockErr(line, fmt.Errorf("page header %s %s does not match %s %d", m[1], m[2], month, year))) {
							return
						}
					}
					continue
				}

				if m := groupRe.FindStringSubmatch(l); m != nil {
					st = pdfState{}
					if !groupIDRe.MatchString(m[1]) {
						if !yield(domain.RawReading{}, blockErr(line, fmt.Errorf("malformed group id %q", m[1]))) {
							return
						}
						continue
					}
					st.group = m[1]
					continue
				}

				if m := tableHeaderRe.FindStringSubmatch(l); m != nil {
					if st.group == "" {
						continue
					}
					days, err := dayColumns(m[1], daysInMonth)
					if err != nil {
						st = pdfState{}
						if !yield(domain.RawReading{}, blockErr(line, err)) {
							return
						}
						continue
					}
					st.inTable = true
					st.days = days
					continue
				}

				m := gaugeRowRe.FindStringSubmatch(l)
				if m == nil {
					continue
				}
				if !st.inTable {
					if !yield(domain.RawReading{}, blockErr(line, errors.New("gauge row outside a group table"))) {
						return
					}
					continue
				}
				readings, err := parseGaugeRow(m[1], m[2], st.days, year, month, source, notes)
				if err != nil {
					pe := blockErr(line, err)
					pe.Field = m[1]
					if !yield(domain.RawReading{}, pe) {
						return
					}
					continue
				}
				for _, r := range readings {
					if !yield(r, nil) {
						return
					}
				}
			}
		}
	}
}

// legend collects footnote markers from NOTE lines anywhere in the text.
func legend(text string) map[string]string {
	notes := make(map[string]string)
	for l := range strings.SplitSeq(text, "\n") {
		if m := noteRe.FindStringSubmatch(l); m != nil {
			notes[m[1]] = m[2]
		}
	}
	return notes
}

// dayColumns validates a table header's day numbers and returns how many
// day columns the table has. A header without day numbers spans the month.
func dayColumns(header string, daysInMonth int) (int, error) {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return daysInMonth, nil
	}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n != i+1 {
			return 0, fmt.Errorf("table header column %d is %q", i+1, f)
		}
	}
	if len(fields) > daysInMonth {
		return 0, fmt.Errorf("table header has %d day columns, month has %d", len(fields), daysInMonth)
	}
	return len(fields), nil
}

// parseGaugeRow parses every token of one gauge row. Any bad token rejects
// the whole row since later columns can no longer be trusted to line up.
func parseGaugeRow(
	station, rest string,
	days, year int,
	month time.Month,
	source domain.SourceTag,
	notes map[string]string,
) ([]domain.RawReading, error) {
	tokens := strings.Fields(rest)
	if len(tokens) > days {
		return nil, fmt.Errorf("%d values for %d days", len(tokens), days)
	}

	readings := make([]domain.RawReading, 0, len(tokens))
	for i, tok := range tokens {
		if tok == missingToken {
			continue
		}
		m := tokenRe.FindStringSubmatch(tok)
		if m == nil {
			return nil, fmt.Errorf("day %d: bad value %q", i+1, tok)
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("day %d: %w", i+1, err)
		}
		readings = append(readings, domain.RawReading{
			StationID:  station,
			Date:       domain.Day(year, month, i+1),
			Cumulative: &v,
			Source:     source,
			Quality:    quality(m[2], notes),
		})
	}
	return readings, nil
}

func quality(marker string, notes map[string]string) domain.Quality {
	if marker == "" {
		return domain.Quality{}
	}
	upper := strings.ToUpper(marker)
	note, ok := notes[upper]
	if !ok {
		note = marker
	}
	return domain.Quality{
		Footnote:  note,
		Estimated: strings.Contains(upper, "E"),
	}
}
