package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

const (
	metadataDocument = "metadata"
	statsFirstRow    = 15
	statsLastRow     = 40
)

// ParseMetadata reads a station metadata workbook. Missing required fields
// fail with MissingRequiredField; out-of-range values are attached as
// warnings on the returned record.
func ParseMetadata(r io.Reader, logger *slog.Logger) (domain.GaugeMetadata, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return domain.GaugeMetadata{}, &domain.ParseError{Kind: domain.InvalidFormat, Document: metadataDocument, Err: err}
	}
	defer f.Close() //nolint:errcheck // read-only

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return domain.GaugeMetadata{}, &domain.ParseError{Kind: domain.InvalidFormat, Document: metadataDocument, Err: errors.New("no sheets")}
	}
	sheet := sheets[0]
	cell := func(ref string) string {
		v, err := f.GetCellValue(sheet, ref, excelize.Options{RawCellValue: true})
		if err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	}
	missing := func(field, ref string) error {
		return &domain.ParseError{
			Kind:     domain.MissingRequiredField,
			Document: metadataDocument,
			Sheet:    sheet,
			Field:    field,
			Err:      fmt.Errorf("cell %s is blank", ref),
		}
	}
	invalid := func(field, ref string, err error) error {
		return &domain.ParseError{
			Kind:     domain.InvalidFormat,
			Document: metadataDocument,
			Sheet:    sheet,
			Field:    field,
			Err:      fmt.Errorf("cell %s: %w", ref, err),
		}
	}

	meta := domain.GaugeMetadata{
		Type:   orDefault(cell("B4"), domain.DefaultGaugeType),
		County: orDefault(cell("B5"), domain.DefaultGaugeCounty),
		Status: orDefault(cell("B6"), domain.DefaultGaugeStatus),
		Stats:  make(map[string]float64),
	}

	meta.StationID, meta.PreviousIDs = ParseGaugeIDHistory(cell("B2"))
	if meta.StationID == "" {
		return domain.GaugeMetadata{}, missing("station_id", "B2")
	}
	if meta.Name = cell("B3"); meta.Name == "" {
		return domain.GaugeMetadata{}, missing("name", "B3")
	}

	coords := []struct {
		field, ref string
		dst        *float64
	}{
		{"latitude", "B7", &meta.Latitude},
		{"longitude", "B8", &meta.Longitude},
	}
	for _, c := range coords {
		s := cell(c.ref)
		if s == "" {
			return domain.GaugeMetadata{}, missing(c.field, c.ref)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.GaugeMetadata{}, invalid(c.field, c.ref, err)
		}
		*c.dst = v
	}

	if s := cell("B9"); s != "" {
		elev, err := ParseElevation(s)
		if err != nil {
			logger.Warn("unparseable elevation", "station_id", meta.StationID, "value", s, "error", err)
		}
		meta.ElevationFt = elev
	}

	reference, hasReference := serialCell(cell("B10"))
	if hasReference {
		meta.ReferenceDate = domain.SerialDate(reference)
	}
	if s := cell("B11"); s != "" && hasReference {
		years, err := strconv.ParseFloat(s, 64)
		if err != nil {
			logger.Warn("unparseable years since installation", "station_id", meta.StationID, "value", s)
		} else {
			meta.InstalledOn = domain.InstallationDate(meta.ReferenceDate, years)
		}
	}
	if start, ok := serialCell(cell("B12")); ok {
		meta.DataStart = domain.SerialDate(start)
	}

	for row := statsFirstRow; row <= statsLastRow; row++ {
		label := cell(fmt.Sprintf("A%d", row))
		if label == "" {
			continue
		}
		if n, ok := CompleteYears(label); ok {
			meta.CompleteYears = n
		}
		raw := cell(fmt.Sprintf("B%d", row))
		meta.Stats[statKey(label)] = statValue(raw, func() {
			logger.Warn("non-numeric statistic treated as zero",
				"station_id", meta.StationID, "label", label, "value", raw)
		})
	}

	meta.Warnings = meta.Validate()
	return meta, nil
}

// statValue parses a statistic: counts, "None" and decimal depths are
// accepted; anything else is zero and reported through warn.
func statValue(s string, warn func()) float64 {
	if s == "" {
		return 0
	}
	if n, ok := ParseCount(s); ok {
		return float64(n)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	warn()
	return 0
}

// serialCell parses a date serial, tolerating a fractional day.
func serialCell(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(math.Round(v)), true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
