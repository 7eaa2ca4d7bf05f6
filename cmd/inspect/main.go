// Command inspect parses a local rainfall document and prints what an import
// would extract from it, without touching the database.
//
// Usage:
//
//	go run ./cmd/inspect -kind workbook -water-year 2021 WY2021.xlsx
//	go run ./cmd/inspect -kind pdf -month 2024-01 jan2024.pdf
//	go run ./cmd/inspect -kind metadata -json 59700.xlsx
//	go run ./cmd/inspect -kind workbook -water-year 2021 -station 1000 -aggregate WY2021.xlsx
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/rainfall-import-service/internal/aggregate"
	"github.com/couchcryptid/rainfall-import-service/internal/domain"
	"github.com/couchcryptid/rainfall-import-service/internal/download"
	"github.com/couchcryptid/rainfall-import-service/internal/parser"
)

// options are the parsed command-line flags.
type options struct {
	kind      string
	waterYear int
	month     string
	station   string
	aggregate bool
	asJSON    bool
	path      string
}

func main() {
	var opts options
	flag.StringVar(&opts.kind, "kind", "", "document kind: workbook, pdf, text or metadata")
	flag.IntVar(&opts.waterYear, "water-year", 0, "water year of a workbook")
	flag.StringVar(&opts.month, "month", "", "report month of a pdf or text document (YYYY-MM)")
	flag.StringVar(&opts.station, "station", "", "only readings for this station id")
	flag.BoolVar(&opts.aggregate, "aggregate", false, "print the canonical series and monthly totals for -station")
	flag.BoolVar(&opts.asJSON, "json", false, "print JSON")
	flag.Parse()

	if flag.NArg() != 1 || opts.kind == "" {
		flag.Usage()
		os.Exit(2)
	}
	opts.path = flag.Arg(0)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if code := run(opts, os.Stdout, logger); code != 0 {
		os.Exit(code)
	}
}

func run(opts options, out io.Writer, logger *slog.Logger) int {
	body, err := os.ReadFile(opts.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", opts.path, err)
		return 1
	}
	if err := inspect(opts, body, out, logger); err != nil {
		fmt.Fprintf(os.Stderr, "inspect %s: %v\n", opts.path, err)
		var pe *domain.ParseError
		if errors.As(err, &pe) {
			return 3
		}
		return 1
	}
	return 0
}

// report is the JSON form of a parsed reading document.
type report struct {
	Document  string            `json:"document"`
	Readings  []reading         `json:"readings"`
	RowErrors []string          `json:"row_errors"`
	Canonical *aggregate.Result `json:"canonical,omitempty"`
	Stations  map[string]int    `json:"stations"`
}

type reading struct {
	StationID   string         `json:"station_id"`
	Date        string         `json:"date"`
	Cumulative  *float64       `json:"cumulative,omitempty"`
	Incremental *float64       `json:"incremental,omitempty"`
	Source      string         `json:"source"`
	Quality     domain.Quality `json:"quality,omitzero"`
}

func inspect(opts options, body []byte, out io.Writer, logger *slog.Logger) error {
	if opts.kind == "metadata" {
		meta, err := parser.ParseMetadata(bytes.NewReader(body), logger)
		if err != nil {
			return err
		}
		return printMetadata(out, meta, opts.asJSON)
	}

	doc, err := document(opts, body)
	if err != nil {
		return err
	}
	raws, rowErrs, err := parser.Collect(parser.ParseReadings(doc))
	if err != nil {
		return err
	}

	rep := report{Document: opts.path, RowErrors: make([]string, 0, len(rowErrs)), Stations: map[string]int{}}
	for _, e := range rowErrs {
		rep.RowErrors = append(rep.RowErrors, e.Error())
	}
	var kept []domain.RawReading
	for _, r := range raws {
		rep.Stations[r.StationID]++
		if opts.station != "" && r.StationID != opts.station {
			continue
		}
		kept = append(kept, r)
		rep.Readings = append(rep.Readings, reading{
			StationID:   r.StationID,
			Date:        r.Date.Format(time.DateOnly),
			Cumulative:  r.Cumulative,
			Incremental: r.Incremental,
			Source:      string(r.Source),
			Quality:     r.Quality,
		})
	}
	if opts.aggregate {
		if opts.station == "" {
			return errors.New("-aggregate needs -station")
		}
		res := aggregate.Aggregate(opts.station, kept)
		rep.Canonical = &res
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return printReport(out, rep)
}

func document(opts options, body []byte) (parser.Document, error) {
	switch opts.kind {
	case "workbook":
		if opts.waterYear == 0 {
			return parser.Document{}, errors.New("-water-year is required for workbooks")
		}
		return parser.WorkbookDocument(opts.waterYear, body), nil
	case "pdf", "text":
		month, err := time.Parse("2006-01", opts.month)
		if err != nil {
			return parser.Document{}, fmt.Errorf("-month must be YYYY-MM: %w", err)
		}
		text := string(body)
		if opts.kind == "pdf" {
			if text, err = (download.PDFTextExtractor{}).Extract(body); err != nil {
				return parser.Document{}, &domain.ParseError{Kind: domain.InvalidFormat, Document: opts.path, Err: err}
			}
		}
		return parser.PDFTextDocument(month.Year(), month.Month(), text), nil
	default:
		return parser.Document{}, fmt.Errorf("unknown kind %q", opts.kind)
	}
}

func printReport(out io.Writer, rep report) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATION\tDATE\tCUMULATIVE\tINCREMENTAL\tSOURCE\tNOTE")
	for _, r := range rep.Readings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StationID, r.Date, number(r.Cumulative), number(r.Incremental), r.Source, note(r.Quality))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d readings across %d stations, %d row errors\n", len(rep.Readings), len(rep.Stations), len(rep.RowErrors))
	for _, e := range rep.RowErrors {
		fmt.Fprintf(out, "  %s\n", e)
	}

	if rep.Canonical != nil {
		fmt.Fprintln(out)
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MONTH\tTOTAL\tREADINGS\tMAX CUMULATIVE")
		for _, m := range rep.Canonical.Monthly {
			fmt.Fprintf(tw, "%d-%02d\t%.2f\t%d\t%.2f\n", m.Year, m.Month, m.TotalRainfall, m.ReadingCount, m.MaxCumulative)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d source conflicts, %d cumulative corrections\n", rep.Canonical.Conflicts, rep.Canonical.Corrections)
	}
	return nil
}

func printMetadata(out io.Writer, meta domain.GaugeMetadata, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(tw, "%s\t%s\n", k, v) }
	row("station", meta.StationID)
	row("previous ids", fmt.Sprint(meta.PreviousIDs))
	row("name", meta.Name)
	row("type / county / status", meta.Type+" / "+meta.County+" / "+meta.Status)
	row("location", fmt.Sprintf("%.5f, %.5f", meta.Latitude, meta.Longitude))
	row("elevation", fmt.Sprintf("%.0f ft", meta.ElevationFt))
	row("data start", date(meta.DataStart))
	row("complete years", strconv.Itoa(meta.CompleteYears))
	for k, v := range meta.Stats {
		row(k, strconv.FormatFloat(v, 'f', -1, 64))
	}
	for _, w := range meta.Warnings {
		row("warning", w.String())
	}
	return tw.Flush()
}

func number(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

func note(q domain.Quality) string {
	switch {
	case q.Footnote != "" && q.Estimated:
		return q.Footnote + " (estimated)"
	case q.Estimated:
		return "estimated"
	default:
		return q.Footnote
	}
}

func date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}
