package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

const january2021Text = `PRECIPITATION REPORT   MONTH OF JANUARY 2021          PAGE 1
GROUP A01  SALT RIVER VALLEY
GAGE      1     2     3
59700  0.10  0.30  0.30
4695   0.80  0.80  0.95
888    0.05  abc
`

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func textOptions() options {
	return options{kind: "text", month: "2021-01", path: "jan2021.txt"}
}

func TestInspect_TextTable(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, inspect(textOptions(), []byte(january2021Text), &out, discard))

	assert.Contains(t, out.String(), "59700")
	assert.Contains(t, out.String(), "2021-01-03")
	assert.Contains(t, out.String(), "6 readings across 2 stations, 1 row errors")
}

func TestInspect_JSONWithAggregate(t *testing.T) {
	opts := textOptions()
	opts.station = "59700"
	opts.aggregate = true
	opts.asJSON = true

	var out bytes.Buffer
	require.NoError(t, inspect(opts, []byte(january2021Text), &out, discard))

	var got struct {
		Readings  []reading `json:"readings"`
		RowErrors []string  `json:"row_errors"`
		Stations  map[string]int
		Canonical struct {
			Monthly []domain.MonthlyAggregate
		} `json:"canonical"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Len(t, got.Readings, 3)
	assert.Len(t, got.RowErrors, 1)
	assert.Equal(t, map[string]int{"59700": 3, "4695": 3}, got.Stations)
	require.Len(t, got.Canonical.Monthly, 1)
	assert.InDelta(t, 0.30, got.Canonical.Monthly[0].TotalRainfall, 1e-9)
	assert.Equal(t, 3, got.Canonical.Monthly[0].ReadingCount)
}

func TestInspect_Metadata(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // test fixture
	for ref, v := range map[string]any{"B2": "59700; 4695 prior to 3/1/2005", "B3": "Cave Creek Dam", "B7": 33.7, "B8": -112.0, "B9": "1,600 ft."} {
		require.NoError(t, f.SetCellValue("Sheet1", ref, v))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, inspect(options{kind: "metadata", asJSON: true}, buf.Bytes(), &out, discard))

	var meta domain.GaugeMetadata
	require.NoError(t, json.Unmarshal(out.Bytes(), &meta))
	assert.Equal(t, "59700", meta.StationID)
	assert.Equal(t, []string{"4695"}, meta.PreviousIDs)
	assert.Equal(t, "Cave Creek Dam", meta.Name)

	out.Reset()
	require.NoError(t, inspect(options{kind: "metadata"}, buf.Bytes(), &out, discard))
	assert.Contains(t, out.String(), "Cave Creek Dam")
}

func TestInspect_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts options
		body []byte
	}{
		{"unknown kind", options{kind: "csv"}, nil},
		{"workbook without water year", options{kind: "workbook"}, nil},
		{"bad month", options{kind: "text", month: "January"}, []byte(january2021Text)},
		{"aggregate without station", options{kind: "text", month: "2021-01", aggregate: true}, []byte(january2021Text)},
		{"unreadable pdf", options{kind: "pdf", month: "2021-01"}, []byte("not a pdf")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, inspect(tt.opts, tt.body, &bytes.Buffer{}, discard))
		})
	}
}

func TestRun_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "jan2021.txt")
	require.NoError(t, os.WriteFile(good, []byte(january2021Text), 0o600))
	bad := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("%PDF-1.4 truncated"), 0o600))

	assert.Equal(t, 0, run(options{kind: "text", month: "2021-01", path: good}, io.Discard, discard))
	assert.Equal(t, 1, run(options{kind: "text", month: "2021-01", path: filepath.Join(dir, "missing.txt")}, io.Discard, discard))
	assert.Equal(t, 3, run(options{kind: "pdf", month: "2021-01", path: bad}, io.Discard, discard))
}
