package download

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFTextExtractor turns a monthly report PDF into the plain text layout the
// report parser reads: one line per text row, pages separated by form feeds.
type PDFTextExtractor struct{}

// Extract returns the text of every page in body.
func (PDFTextExtractor) Extract(body []byte) (text string, err error) {
	// The PDF reader panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract pdf text: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		pages = append(pages, pageText(rows))
	}
	if len(pages) == 0 {
		return "", errors.New("pdf has no readable pages")
	}
	return strings.Join(pages, "\f"), nil
}

// pageText renders rows top to bottom. Text runs separated by a visible gap
// get a space between them.
func pageText(rows pdf.Rows) string {
	slices.SortStableFunc(rows, func(a, b *pdf.Row) int {
		return cmp.Compare(b.Position, a.Position)
	})

	var b strings.Builder
	for _, row := range rows {
		runs := slices.Clone(row.Content)
		slices.SortStableFunc(runs, func(a, b pdf.Text) int {
			return cmp.Compare(a.X, b.X)
		})
		var line strings.Builder
		end := 0.0
		for i, t := range runs {
			if i > 0 && t.X-end > 0.25*t.FontSize {
				line.WriteByte(' ')
			}
			line.WriteString(t.S)
			end = t.X + t.W
		}
		b.WriteString(strings.TrimRight(line.String(), " "))
		b.WriteByte('\n')
	}
	return b.String()
}
