package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rainfall-import-service/internal/aggregate"
	"github.com/couchcryptid/rainfall-import-service/internal/domain"
	"github.com/couchcryptid/rainfall-import-service/internal/download"
	"github.com/couchcryptid/rainfall-import-service/internal/observability"
	"github.com/couchcryptid/rainfall-import-service/internal/parser"
	"github.com/couchcryptid/rainfall-import-service/internal/store"
)

// Downloader fetches a document. Errors are *domain.DownloadError.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// TextExtractor turns a monthly report PDF into text.
type TextExtractor interface {
	Extract(body []byte) (string, error)
}

// Repository persists canonical readings.
type Repository interface {
	ReadingsBetween(ctx context.Context, stationID string, from, to time.Time) ([]domain.Reading, error)
	SaveImport(ctx context.Context, b store.ImportBatch) (int, error)
}

// Archive keeps a copy of every downloaded document.
type Archive interface {
	Put(ctx context.Context, key string, body []byte) error
}

// PlanConfig bounds which documents an import downloads.
type PlanConfig struct {
	// FirstWaterYear is the earliest water year imported. Zero means the
	// gauge's data-coverage start.
	FirstWaterYear int
	// SpreadsheetLastWaterYear is the last water year published as a
	// workbook; later months come from monthly reports.
	SpreadsheetLastWaterYear int
	// PDFFirstMonth is the first month published as a monthly report.
	PDFFirstMonth time.Time
}

// Importer runs one station import: metadata, workbooks, then monthly
// reports, merged with what is already stored and saved in one transaction.
type Importer struct {
	urls      download.URLs
	plan      PlanConfig
	fetcher   Downloader
	extractor TextExtractor
	repo      Repository
	archive   Archive
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewImporter creates an Importer. archive may be nil.
func NewImporter(
	urls download.URLs,
	plan PlanConfig,
	fetcher Downloader,
	extractor TextExtractor,
	repo Repository,
	archive Archive,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Importer {
	return &Importer{
		urls:      urls,
		plan:      plan,
		fetcher:   fetcher,
		extractor: extractor,
		repo:      repo,
		archive:   archive,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// document is one planned download.
type document struct {
	kind   parser.Kind
	url    string
	scope  string
	period parser.Period
}

// Import downloads, parses and persists everything for job's station. Any
// download or whole-document parse failure aborts before the repository is
// touched.
func (im *Importer) Import(ctx context.Context, job domain.ImportJob) (domain.ImportStats, error) {
	start := im.clock.Now()
	logger := im.logger.With("job_id", job.ID, "station_id", job.StationID)

	meta, err := im.fetchMetadata(ctx, job.StationID)
	if err != nil {
		return domain.ImportStats{}, err
	}
	stats := domain.ImportStats{Documents: 1, Warnings: len(meta.Warnings)}
	for _, w := range meta.Warnings {
		logger.Warn("gauge metadata out of range", "field", w.Field, "value", w.Value, "message", w.Message)
	}
	im.metrics.ValidationWarnings.Add(float64(len(meta.Warnings)))

	ids := stationIDs(meta, job.Snapshot)
	var fresh []domain.RawReading
	for _, doc := range im.planDocuments(job, meta) {
		readings, rowErrs, err := im.readDocument(ctx, doc)
		if err != nil {
			return domain.ImportStats{}, err
		}
		stats.Documents++
		stats.RowErrors += len(rowErrs)
		im.metrics.RowErrors.WithLabelValues(doc.kind.String()).Add(float64(len(rowErrs)))
		for _, re := range rowErrs {
			logger.Warn("skipped row", "document", doc.url, "error", re)
		}
		for _, r := range readings {
			if !slices.Contains(ids, r.StationID) {
				continue
			}
			r.StationID = meta.StationID
			// Workbook running totals restart for every gauge id; the
			// aggregator re-derives them across the merged series.
			if r.Incremental != nil {
				r.Cumulative = nil
			}
			fresh = append(fresh, r)
		}
	}

	merged, err := im.mergeStored(ctx, meta.StationID, fresh)
	if err != nil {
		return domain.ImportStats{}, err
	}
	res := aggregate.Aggregate(meta.StationID, merged)
	im.metrics.SourceConflicts.Add(float64(res.Conflicts))
	if res.Corrections > 0 {
		logger.Info("cumulative series corrected", "corrections", res.Corrections)
	}

	written, err := im.repo.SaveImport(ctx, store.ImportBatch{
		Metadata: &meta,
		Readings: res.Readings,
		Monthly:  res.Monthly,
	})
	if err != nil {
		return domain.ImportStats{}, fmt.Errorf("save import: %w", err)
	}
	im.metrics.ReadingsImported.Add(float64(written))

	stats.RowsImported = written
	if n := len(res.Readings); n > 0 {
		stats.FirstDate = res.Readings[0].Date
		stats.LastDate = res.Readings[n-1].Date
	}
	stats.Duration = im.clock.Since(start)
	im.metrics.ImportDuration.Observe(stats.Duration.Seconds())

	logger.Info("station imported",
		"documents", stats.Documents,
		"readings", len(res.Readings),
		"rows_written", written,
		"row_errors", stats.RowErrors,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (im *Importer) fetchMetadata(ctx context.Context, stationID string) (domain.GaugeMetadata, error) {
	url := im.urls.MetadataURL(stationID)
	body, err := im.fetch(ctx, url, "metadata", stationID)
	if err != nil {
		return domain.GaugeMetadata{}, err
	}
	meta, err := parser.ParseMetadata(bytes.NewReader(body), im.logger)
	if err != nil {
		return domain.GaugeMetadata{}, fmt.Errorf("parse metadata %s: %w", url, err)
	}
	if meta.StationID != stationID && !slices.Contains(meta.PreviousIDs, stationID) {
		return domain.GaugeMetadata{}, fmt.Errorf("metadata %s describes station %s, not %s", url, meta.StationID, stationID)
	}
	return meta, nil
}

// planDocuments lists workbooks then monthly reports for the job.
func (im *Importer) planDocuments(job domain.ImportJob, meta domain.GaugeMetadata) []document {
	first, last := im.waterYearRange(job, meta)
	if first == 0 || first > last {
		return nil
	}

	var docs []document
	for wy := first; wy <= min(last, im.plan.SpreadsheetLastWaterYear); wy++ {
		docs = append(docs, document{
			kind:   parser.KindWorkbook,
			url:    im.urls.WorkbookURL(meta.StationID, wy),
			scope:  fmt.Sprintf("WY%d", wy),
			period: parser.Period{WaterYear: wy},
		})
	}

	from := domain.WaterYearStart(first)
	if pdfFirst := monthStart(im.plan.PDFFirstMonth); pdfFirst.After(from) {
		from = pdfFirst
	}
	if sheetsEnd := domain.WaterYearStart(im.plan.SpreadsheetLastWaterYear + 1); sheetsEnd.After(from) {
		from = sheetsEnd
	}
	// Only months that have fully elapsed are published.
	through := monthStart(im.clock.Now()).AddDate(0, -1, 0)
	if end := monthStart(domain.WaterYearEnd(last)); end.Before(through) {
		through = end
	}
	for m := from; !m.After(through); m = m.AddDate(0, 1, 0) {
		docs = append(docs, document{
			kind:   parser.KindPDFText,
			url:    im.urls.PDFURL(meta.StationID, m.Year(), m.Month()),
			scope:  m.Format("2006-01"),
			period: parser.Period{Year: m.Year(), Month: m.Month()},
		})
	}
	return docs
}

// waterYearRange picks the water years to import. The job snapshot narrows
// the range; configuration and the gauge's coverage start bound it.
func (im *Importer) waterYearRange(job domain.ImportJob, meta domain.GaugeMetadata) (int, int) {
	first := im.plan.FirstWaterYear
	if !meta.DataStart.IsZero() {
		first = max(first, domain.WaterYear(meta.DataStart))
	}
	last := domain.WaterYear(im.clock.Now())
	if s := job.Snapshot; s != nil {
		if s.FromWaterYear > 0 {
			first = max(first, s.FromWaterYear)
		}
		if s.ToWaterYear > 0 {
			last = min(last, s.ToWaterYear)
		}
	}
	return first, last
}

func (im *Importer) readDocument(ctx context.Context, doc document) ([]domain.RawReading, []error, error) {
	body, err := im.fetch(ctx, doc.url, doc.kind.String(), doc.scope)
	if err != nil {
		return nil, nil, err
	}

	var d parser.Document
	switch doc.kind {
	case parser.KindWorkbook:
		d = parser.WorkbookDocument(doc.period.WaterYear, body)
	case parser.KindPDFText:
		text, err := im.extractor.Extract(body)
		if err != nil {
			return nil, nil, &domain.ParseError{Kind: domain.InvalidFormat, Document: doc.url, Err: err}
		}
		d = parser.PDFTextDocument(doc.period.Year, doc.period.Month, text)
	default:
		return nil, nil, fmt.Errorf("no reading parser for %s documents", doc.kind)
	}

	readings, rowErrs, err := parser.Collect(parser.ParseReadings(d))
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", doc.url, err)
	}
	return readings, rowErrs, nil
}

func (im *Importer) fetch(ctx context.Context, url, kind, scope string) ([]byte, error) {
	body, err := im.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", kind, err)
	}
	if im.archive != nil {
		key := download.ArchiveKey(kind, scope, url)
		if err := im.archive.Put(ctx, key, body); err != nil {
			im.metrics.ArchiveErrors.Inc()
			im.logger.Warn("archive document failed", "key", key, "error", err)
		}
	}
	return body, nil
}

// mergeStored adds the stored readings of every water year fresh touches.
// A stored reading survives only where no fresh reading covers its day or
// where it came from a higher-ranked source.
func (im *Importer) mergeStored(ctx context.Context, stationID string, fresh []domain.RawReading) ([]domain.RawReading, error) {
	freshRank := make(map[time.Time]int, len(fresh))
	var years []int
	for _, r := range fresh {
		day := domain.Truncate(r.Date)
		freshRank[day] = max(freshRank[day], domain.SourceRank(r.Source))
		if wy := domain.WaterYear(day); !slices.Contains(years, wy) {
			years = append(years, wy)
		}
	}
	slices.Sort(years)

	merged := slices.Clone(fresh)
	for _, wy := range years {
		stored, err := im.repo.ReadingsBetween(ctx, stationID, domain.WaterYearStart(wy), domain.WaterYearEnd(wy))
		if err != nil {
			return nil, fmt.Errorf("load stored readings for water year %d: %w", wy, err)
		}
		for _, s := range stored {
			rank, covered := freshRank[domain.Truncate(s.Date)]
			if covered && domain.SourceRank(s.Source) <= rank {
				continue
			}
			merged = append(merged, s.Raw())
		}
	}
	return merged, nil
}

// stationIDs lists the current id first, then every previous id known from
// the metadata or the job snapshot.
func stationIDs(meta domain.GaugeMetadata, snap *domain.GaugeSummary) []string {
	ids := meta.StationIDs()
	if snap != nil {
		for _, id := range snap.PreviousIDs {
			if id != "" && !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func monthStart(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
