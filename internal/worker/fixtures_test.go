package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

// fakeFetcher serves documents from a map; unknown URLs are not found.
type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string][]byte
	fails map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.fails[url]; ok {
		return nil, err
	}
	body, ok := f.docs[url]
	if !ok {
		return nil, &domain.DownloadError{Kind: domain.DownloadNotFound, URL: url}
	}
	return body, nil
}

// plainText treats the PDF body as already-extracted text.
type plainText struct{}

func (plainText) Extract(body []byte) (string, error) { return string(body), nil }

type recordingArchive struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (a *recordingArchive) Put(_ context.Context, key string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return a.err
}

// metadataWorkbook builds a single-sheet gauge metadata workbook.
func metadataWorkbook(t *testing.T, idHistory string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // test fixture

	cells := map[string]any{
		"B2": idHistory,
		"B3": "Indian Bend Wash",
		"B7": 33.5,
		"B8": -111.9,
		"B9": "1,250 ft.",
	}
	for ref, v := range cells {
		require.NoError(t, f.SetCellValue("Sheet1", ref, v))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// waterYearWorkbook builds twelve month sheets; rows maps a month to its data
// rows below the gauge header.
func waterYearWorkbook(t *testing.T, gauges []string, rows map[time.Month][][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // test fixture

	header := []any{"Date"}
	for _, g := range gauges {
		header = append(header, g)
	}
	for i, month := range domain.WaterYearMonths() {
		name := month.String()[:3]
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		require.NoError(t, f.SetSheetRow(name, "A1", &header))
		for r, row := range rows[month] {
			require.NoError(t, f.SetSheetRow(name, fmt.Sprintf("A%d", r+2), &row))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}
