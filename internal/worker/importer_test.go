package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
	"github.com/couchcryptid/rainfall-import-service/internal/download"
	"github.com/couchcryptid/rainfall-import-service/internal/observability"
	"github.com/couchcryptid/rainfall-import-service/internal/parser"
	"github.com/couchcryptid/rainfall-import-service/internal/store"
)

const october2021Report = `PRECIPITATION REPORT   MONTH OF OCTOBER 2021          PAGE 1
GROUP A01  INDIAN BEND
GAGE      1     2     3
1000   0.10  0.10  0.30
2000   1.00  1.00  1.00
`

const november2021Report = `PRECIPITATION REPORT   MONTH OF NOVEMBER 2021         PAGE 1
GROUP A01  INDIAN BEND
GAGE      1     2
1000   0.50  0.50*
NOTE *: GAGE SERVICED
`

type importFixture struct {
	urls    download.URLs
	fetcher *fakeFetcher
	repo    *store.Memory
	archive *recordingArchive
	metrics *observability.Metrics
	clock   *clockwork.FakeClock
}

func newImportFixture(t *testing.T) *importFixture {
	t.Helper()
	urls := download.NewURLs("https://rain.test", "", "", "")
	wy2021 := waterYearWorkbook(t, []string{"1000", "900", "2000"}, map[time.Month][][]any{
		time.October: {
			{"2020-10-01", 0, 0.5, 1.0},
			{"2020-10-02", 0.25, "", 0},
		},
		time.March: {
			{"2021-03-15", "bad", 0, 0},
		},
	})
	docs := map[string][]byte{
		urls.MetadataURL("1000"):       metadataWorkbook(t, "1000; 900 prior to 1/1/2021"),
		urls.WorkbookURL("1000", 2021): wy2021,
	}
	docs[urls.PDFURL("1000", 2021, time.October)] = []byte(october2021Report)
	docs[urls.PDFURL("1000", 2021, time.November)] = []byte(november2021Report)

	return &importFixture{
		urls:    urls,
		fetcher: &fakeFetcher{docs: docs},
		repo:    store.NewMemory(),
		archive: &recordingArchive{},
		metrics: observability.NewMetricsForTesting(),
		clock:   clockwork.NewFakeClockAt(time.Date(2021, time.December, 15, 8, 0, 0, 0, time.UTC)),
	}
}

func (f *importFixture) importer(plan PlanConfig) *Importer {
	return NewImporter(f.urls, plan, f.fetcher, plainText{}, f.repo, f.archive, f.clock, f.metrics, discardLogger())
}

func defaultPlan() PlanConfig {
	return PlanConfig{
		FirstWaterYear:           2021,
		SpreadsheetLastWaterYear: 2021,
		PDFFirstMonth:            domain.Day(2021, time.October, 1),
	}
}

func testJob(station string) domain.ImportJob {
	return domain.ImportJob{ID: uuid.New(), StationID: station, Status: domain.JobInProgress, MaxRetries: 3}
}

func TestImporter_Import(t *testing.T) {
	f := newImportFixture(t)
	im := f.importer(defaultPlan())

	stats, err := im.Import(context.Background(), testJob("1000"))
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 1, stats.RowErrors)
	assert.Equal(t, 7, stats.RowsImported)
	assert.Equal(t, domain.Day(2020, time.October, 1), stats.FirstDate)
	assert.Equal(t, domain.Day(2021, time.November, 2), stats.LastDate)

	wy2021, err := f.repo.ReadingsBetween(context.Background(), "1000", domain.WaterYearStart(2021), domain.WaterYearEnd(2021))
	require.NoError(t, err)
	require.Len(t, wy2021, 2)
	// The first day came from the previous gauge id.
	assert.InDelta(t, 0.5, wy2021[0].Incremental, 1e-9)
	assert.InDelta(t, 0.75, wy2021[1].Cumulative, 1e-9)
	assert.Equal(t, domain.SpreadsheetSource(2021), wy2021[1].Source)

	wy2022, err := f.repo.ReadingsBetween(context.Background(), "1000", domain.WaterYearStart(2022), domain.WaterYearEnd(2022))
	require.NoError(t, err)
	require.Len(t, wy2022, 5)
	incs := make([]float64, len(wy2022))
	for i, r := range wy2022 {
		incs[i] = r.Incremental
	}
	assert.InDeltaSlice(t, []float64{0.1, 0, 0.2, 0.2, 0}, incs, 1e-9)
	assert.Equal(t, "GAGE SERVICED", wy2022[4].Quality.Footnote)

	monthly, err := f.repo.MonthlyAggregates(context.Background(), "1000")
	require.NoError(t, err)
	assert.Len(t, monthly, 3)

	gauge, err := f.repo.Gauge(context.Background(), "1000")
	require.NoError(t, err)
	assert.Equal(t, []string{"900"}, gauge.PreviousIDs)

	_, err = f.repo.Gauge(context.Background(), "2000")
	require.ErrorIs(t, err, store.ErrGaugeNotFound, "other gauges in shared documents are not imported")

	assert.Equal(t, []string{
		"metadata/1000/1000.xlsx",
		"workbook/WY2021/WY2021.xlsx",
		"pdf/2021-10/oct2021.pdf",
		"pdf/2021-11/nov2021.pdf",
	}, f.archive.keys)
	assert.InDelta(t, 1, counterValue(t, f.metrics.RowErrors.WithLabelValues("workbook")), 0)
	assert.InDelta(t, 7, counterValue(t, f.metrics.ReadingsImported), 0)
}

func TestImporter_ReimportIsIdempotent(t *testing.T) {
	f := newImportFixture(t)
	im := f.importer(defaultPlan())

	_, err := im.Import(context.Background(), testJob("1000"))
	require.NoError(t, err)
	before := f.repo.ReadingCount()

	stats, err := im.Import(context.Background(), testJob("1000"))
	require.NoError(t, err)
	assert.Zero(t, stats.RowsImported)
	assert.Equal(t, before, f.repo.ReadingCount())
}

func TestImporter_DownloadFailureLeavesRepositoryUntouched(t *testing.T) {
	f := newImportFixture(t)
	delete(f.fetcher.docs, f.urls.PDFURL("1000", 2021, time.November))

	_, err := f.importer(defaultPlan()).Import(context.Background(), testJob("1000"))
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
	assert.Contains(t, err.Error(), "nov2021.pdf")

	assert.Zero(t, f.repo.ReadingCount())
	_, err = f.repo.Gauge(context.Background(), "1000")
	require.ErrorIs(t, err, store.ErrGaugeNotFound)
}

func TestImporter_NetworkFailure(t *testing.T) {
	f := newImportFixture(t)
	url := f.urls.WorkbookURL("1000", 2021)
	f.fetcher.fails = map[string]error{url: &domain.DownloadError{Kind: domain.DownloadTimeout, URL: url}}

	_, err := f.importer(defaultPlan()).Import(context.Background(), testJob("1000"))

	var de *domain.DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.DownloadTimeout, de.Kind)
	assert.Zero(t, f.repo.ReadingCount())
}

func TestImporter_UnreadableWorkbookAborts(t *testing.T) {
	f := newImportFixture(t)
	f.fetcher.docs[f.urls.WorkbookURL("1000", 2021)] = []byte("not a workbook")

	_, err := f.importer(defaultPlan()).Import(context.Background(), testJob("1000"))

	var pe *domain.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.InvalidFormat, pe.Kind)
	assert.Zero(t, f.repo.ReadingCount())
}

func TestImporter_MetadataMissingRequiredField(t *testing.T) {
	f := newImportFixture(t)
	f.fetcher.docs[f.urls.MetadataURL("1000")] = metadataWorkbook(t, "")

	_, err := f.importer(defaultPlan()).Import(context.Background(), testJob("1000"))

	var pe *domain.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.MissingRequiredField, pe.Kind)
	assert.Len(t, f.fetcher.calls, 1, "nothing else is downloaded")
}

func TestImporter_MetadataForOtherStation(t *testing.T) {
	f := newImportFixture(t)
	f.fetcher.docs[f.urls.MetadataURL("1000")] = metadataWorkbook(t, "3000")

	_, err := f.importer(defaultPlan()).Import(context.Background(), testJob("1000"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "describes station 3000")
}

func TestImporter_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newImportFixture(t)
	f.archive.err = errors.New("bucket unavailable")

	_, err := f.importer(defaultPlan()).Import(context.Background(), testJob("1000"))
	require.NoError(t, err)
	assert.InDelta(t, 4, counterValue(t, f.metrics.ArchiveErrors), 0)
}

func TestImporter_SnapshotNarrowsRange(t *testing.T) {
	f := newImportFixture(t)
	job := testJob("1000")
	job.Snapshot = &domain.GaugeSummary{StationID: "1000", ToWaterYear: 2021}

	stats, err := f.importer(defaultPlan()).Import(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents, "metadata and the WY2021 workbook only")
}

func TestImporter_PlanDocuments(t *testing.T) {
	f := newImportFixture(t)
	meta := domain.GaugeMetadata{StationID: "1000"}

	tests := []struct {
		name string
		plan PlanConfig
		job  domain.ImportJob
		want []string
	}{
		{
			name: "workbooks then reports",
			plan: PlanConfig{FirstWaterYear: 2020, SpreadsheetLastWaterYear: 2021, PDFFirstMonth: domain.Day(2021, time.October, 1)},
			want: []string{"workbook WY2020", "workbook WY2021", "pdf 2021-10", "pdf 2021-11"},
		},
		{
			name: "reports start after the last workbook",
			plan: PlanConfig{FirstWaterYear: 2021, SpreadsheetLastWaterYear: 2021, PDFFirstMonth: domain.Day(2020, time.January, 1)},
			want: []string{"workbook WY2021", "pdf 2021-10", "pdf 2021-11"},
		},
		{
			name: "snapshot start wins when later",
			plan: PlanConfig{FirstWaterYear: 2019, SpreadsheetLastWaterYear: 2021},
			job:  domain.ImportJob{Snapshot: &domain.GaugeSummary{FromWaterYear: 2022}},
			want: []string{"pdf 2021-10", "pdf 2021-11"},
		},
		{
			name: "nothing configured",
			plan: PlanConfig{},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := f.importer(tt.plan)
			var got []string
			for _, d := range im.planDocuments(tt.job, meta) {
				got = append(got, d.kind.String()+" "+d.scope)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImporter_PlanDocuments_DataStartBoundsRange(t *testing.T) {
	f := newImportFixture(t)
	im := f.importer(PlanConfig{FirstWaterYear: 2019, SpreadsheetLastWaterYear: 2021})
	meta := domain.GaugeMetadata{StationID: "1000", DataStart: domain.Day(2020, time.November, 3)}

	docs := im.planDocuments(domain.ImportJob{}, meta)
	require.NotEmpty(t, docs)
	assert.Equal(t, parser.KindWorkbook, docs[0].kind)
	assert.Equal(t, "WY2021", docs[0].scope)
}

func TestImporter_MergeStored(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	meta := domain.GaugeMetadata{StationID: "1000"}
	stored := []domain.Reading{
		{StationID: "1000", Date: domain.Day(2021, time.January, 1), Cumulative: 1, Incremental: 1, Source: domain.SpreadsheetSource(2021)},
		{StationID: "1000", Date: domain.Day(2021, time.January, 2), Cumulative: 1.5, Incremental: 0.5, Source: domain.PDFSource(2021, time.January)},
		{StationID: "1000", Date: domain.Day(2021, time.January, 3), Cumulative: 2, Incremental: 0.5, Source: domain.PDFSource(2021, time.January)},
	}
	_, err := repo.SaveImport(ctx, store.ImportBatch{Metadata: &meta, Readings: stored})
	require.NoError(t, err)

	cum := func(v float64) *float64 { return &v }
	fresh := []domain.RawReading{
		{StationID: "1000", Date: domain.Day(2021, time.January, 1), Cumulative: cum(0.9), Source: domain.PDFSource(2021, time.January)},
		{StationID: "1000", Date: domain.Day(2021, time.January, 2), Cumulative: cum(1.6), Source: domain.PDFSource(2021, time.January)},
	}

	im := &Importer{repo: repo}
	merged, err := im.mergeStored(ctx, "1000", fresh)
	require.NoError(t, err)

	bySource := map[time.Time][]domain.SourceTag{}
	for _, r := range merged {
		bySource[r.Date] = append(bySource[r.Date], r.Source)
	}
	assert.Len(t, bySource[domain.Day(2021, time.January, 1)], 2, "higher-ranked stored reading survives")
	assert.Equal(t, []domain.SourceTag{domain.PDFSource(2021, time.January)}, bySource[domain.Day(2021, time.January, 2)])
	assert.Len(t, bySource[domain.Day(2021, time.January, 3)], 1, "uncovered stored reading survives")
	assert.Len(t, merged, 4)
}

func TestStationIDs(t *testing.T) {
	meta := domain.GaugeMetadata{StationID: "1000", PreviousIDs: []string{"900"}}
	snap := &domain.GaugeSummary{PreviousIDs: []string{"900", "800", ""}}

	assert.Equal(t, []string{"1000", "900", "800"}, stationIDs(meta, snap))
	assert.Equal(t, []string{"1000", "900"}, stationIDs(meta, nil))
}
