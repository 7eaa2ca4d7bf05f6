package download

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Default document path templates, relative to the base URL.
const (
	DefaultWorkbookPath = "rainfall/water-year/WY{water_year}.xlsx"
	DefaultPDFPath      = "rainfall/monthly/{year}/{mon}{year}.pdf"
	DefaultMetadataPath = "rainfall/gauges/{station}.xlsx"
)

var placeholderRe = regexp.MustCompile(`\{(station|water_year|year|month|mon)\}`)

// URLs expands document locations from templates. Placeholders are
// {station}, {water_year}, {year}, {month} (zero padded) and {mon}
// (lowercase month abbreviation).
type URLs struct {
	BaseURL  string
	Workbook string
	PDF      string
	Metadata string
}

// NewURLs builds URLs with default templates for any that are empty.
func NewURLs(baseURL, workbook, pdf, metadata string) URLs {
	return URLs{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Workbook: cmp.Or(workbook, DefaultWorkbookPath),
		PDF:      cmp.Or(pdf, DefaultPDFPath),
		Metadata: cmp.Or(metadata, DefaultMetadataPath),
	}
}

// WorkbookURL locates the daily workbook for a water year.
func (u URLs) WorkbookURL(station string, waterYear int) string {
	return u.expand(u.Workbook, map[string]string{
		"station":    station,
		"water_year": strconv.Itoa(waterYear),
	})
}

// PDFURL locates the monthly report for year and month.
func (u URLs) PDFURL(station string, year int, month time.Month) string {
	return u.expand(u.PDF, map[string]string{
		"station": station,
		"year":    strconv.Itoa(year),
		"month":   fmt.Sprintf("%02d", int(month)),
		"mon":     strings.ToLower(month.String()[:3]),
	})
}

// MetadataURL locates the station's metadata workbook.
func (u URLs) MetadataURL(station string) string {
	return u.expand(u.Metadata, map[string]string{"station": station})
}

// Shared reports whether url was produced by a template that does not name a
// station, meaning every station's import fetches the same document.
func (u URLs) Shared(url string) bool {
	for _, tmpl := range []string{u.Workbook, u.PDF, u.Metadata} {
		if strings.Contains(tmpl, "{station}") {
			continue
		}
		if u.pattern(tmpl).MatchString(url) {
			return true
		}
	}
	return false
}

func (u URLs) expand(tmpl string, values map[string]string) string {
	path := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		return values[m[1:len(m)-1]]
	})
	if strings.Contains(path, "://") {
		return path
	}
	return u.BaseURL + "/" + strings.TrimLeft(path, "/")
}

func (u URLs) pattern(tmpl string) *regexp.Regexp {
	full := tmpl
	if !strings.Contains(tmpl, "://") {
		full = u.BaseURL + "/" + strings.TrimLeft(tmpl, "/")
	}
	var b strings.Builder
	b.WriteString("^")
	last := 0
	for _, loc := range placeholderRe.FindAllStringIndex(full, -1) {
		b.WriteString(regexp.QuoteMeta(full[last:loc[0]]))
		b.WriteString(`[^/]+`)
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(full[last:]))
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
