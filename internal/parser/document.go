package parser

import (
	"bytes"
	"fmt"
	"iter"
	"time"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

// Kind identifies one of the fixed document layouts.
type Kind int

// Document kinds.
const (
	KindWorkbook Kind = iota + 1
	KindPDFText
	KindMetadata
)

func (k Kind) String() string {
	switch k {
	case KindWorkbook:
		return "workbook"
	case KindPDFText:
		return "pdf"
	case KindMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Period is the time span a document covers. Workbooks use WaterYear; monthly
// reports use Year and Month; metadata uses neither.
type Period struct {
	WaterYear int
	Year      int
	Month     time.Month
}

// Document is a downloaded document ready to be parsed.
type Document struct {
	Kind   Kind
	Period Period
	Body   []byte
}

// WorkbookDocument wraps a water-year workbook.
func WorkbookDocument(waterYear int, body []byte) Document {
	return Document{Kind: KindWorkbook, Period: Period{WaterYear: waterYear}, Body: body}
}

// PDFTextDocument wraps the extracted text of a monthly report.
func PDFTextDocument(year int, month time.Month, text string) Document {
	return Document{Kind: KindPDFText, Period: Period{Year: year, Month: month}, Body: []byte(text)}
}

// MetadataDocument wraps a station metadata workbook.
func MetadataDocument(body []byte) Document {
	return Document{Kind: KindMetadata, Body: body}
}

// Source returns the tag stamped on readings parsed from d.
func (d Document) Source() domain.SourceTag {
	switch d.Kind {
	case KindWorkbook:
		return domain.SpreadsheetSource(d.Period.WaterYear)
	case KindPDFText:
		return domain.PDFSource(d.Period.Year, d.Period.Month)
	default:
		return domain.SourceTag(d.Kind.String())
	}
}

// ParseReadings parses a reading document. Metadata documents carry no
// readings and yield a single InvalidFormat error.
func ParseReadings(d Document) iter.Seq2[domain.RawReading, error] {
	switch d.Kind {
	case KindWorkbook:
		return ParseWorkbook(bytes.NewReader(d.Body), d.Period.WaterYear)
	case KindPDFText:
		return ParsePDFText(string(d.Body), d.Period.Year, d.Period.Month)
	default:
		return func(yield func(domain.RawReading, error) bool) {
			yield(domain.RawReading{}, &domain.ParseError{
				Kind:     domain.InvalidFormat,
				Document: d.Kind.String(),
				Err:      fmt.Errorf("%s documents carry no readings", d.Kind),
			})
		}
	}
}

// Collect drains a reading sequence into readings and row-scoped errors. The
// first error that is not row-scoped stops collection and is returned.
func Collect(seq iter.Seq2[domain.RawReading, error]) ([]domain.RawReading, []error, error) {
	var (
		readings  []domain.RawReading
		rowErrors []error
	)
	for r, err := range seq {
		if err != nil {
			if domain.IsRowScoped(err) {
				rowErrors = append(rowErrors, err)
				continue
			}
			return readings, rowErrors, err
		}
		readings = append(readings, r)
	}
	return readings, rowErrors, nil
}
