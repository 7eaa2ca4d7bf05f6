package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

//go:embed schema.sql
var schema string

const upsertReading = `
INSERT INTO readings (station_id, reading_date, cumulative_in, incremental_in, source, source_rank, footnote, estimated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (station_id, reading_date) DO UPDATE
SET cumulative_in = EXCLUDED.cumulative_in,
    incremental_in = EXCLUDED.incremental_in,
    source = EXCLUDED.source,
    source_rank = EXCLUDED.source_rank,
    footnote = EXCLUDED.footnote,
    estimated = EXCLUDED.estimated,
    updated_at = now()
WHERE EXCLUDED.source_rank > readings.source_rank
   OR (EXCLUDED.source_rank = readings.source_rank
       AND (EXCLUDED.cumulative_in, EXCLUDED.incremental_in, EXCLUDED.source, EXCLUDED.footnote, EXCLUDED.estimated)
           IS DISTINCT FROM (readings.cumulative_in, readings.incremental_in, readings.source, readings.footnote, readings.estimated))`

const upsertMonthly = `
INSERT INTO monthly_aggregates (station_id, year, month, total_rainfall_in, reading_count, first_reading, last_reading, min_cumulative_in, max_cumulative_in)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (station_id, year, month) DO UPDATE
SET total_rainfall_in = EXCLUDED.total_rainfall_in,
    reading_count = EXCLUDED.reading_count,
    first_reading = EXCLUDED.first_reading,
    last_reading = EXCLUDED.last_reading,
    min_cumulative_in = EXCLUDED.min_cumulative_in,
    max_cumulative_in = EXCLUDED.max_cumulative_in,
    updated_at = now()`

const upsertGauge = `
INSERT INTO gauges (station_id, previous_ids, name, gauge_type, county, status, latitude, longitude, elevation_ft,
                    installed_on, data_start, reference_date, complete_years, stats, warnings)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (station_id) DO UPDATE
SET previous_ids = EXCLUDED.previous_ids,
    name = EXCLUDED.name,
    gauge_type = EXCLUDED.gauge_type,
    county = EXCLUDED.county,
    status = EXCLUDED.status,
    latitude = EXCLUDED.latitude,
    longitude = EXCLUDED.longitude,
    elevation_ft = EXCLUDED.elevation_ft,
    installed_on = EXCLUDED.installed_on,
    data_start = EXCLUDED.data_start,
    reference_date = EXCLUDED.reference_date,
    complete_years = EXCLUDED.complete_years,
    stats = EXCLUDED.stats,
    warnings = EXCLUDED.warnings,
    updated_at = now()`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Postgres is the repository backed by the readings, monthly_aggregates and
// gauges tables.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a connection pool. Call Migrate before first use.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the tables if missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate repository: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Postgres) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertReadings upserts canonical readings and returns how many rows were
// written. Re-inserting identical readings writes nothing.
func (s *Postgres) InsertReadings(ctx context.Context, readings []domain.Reading) (int, error) {
	return insertReadings(ctx, s.pool, readings)
}

// UpsertMonthlyAggregate replaces one station-month rollup.
func (s *Postgres) UpsertMonthlyAggregate(ctx context.Context, m domain.MonthlyAggregate) error {
	return upsertMonthlies(ctx, s.pool, []domain.MonthlyAggregate{m})
}

// UpsertGaugeMetadata creates or refreshes a station's metadata.
func (s *Postgres) UpsertGaugeMetadata(ctx context.Context, g domain.GaugeMetadata) error {
	return upsertGaugeMetadata(ctx, s.pool, g)
}

// SaveImport writes metadata, readings and monthly aggregates in one
// transaction.
func (s *Postgres) SaveImport(ctx context.Context, b ImportBatch) (int, error) {
	var written int
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if b.Metadata != nil {
			if err := upsertGaugeMetadata(ctx, tx, *b.Metadata); err != nil {
				return err
			}
		}
		n, err := insertReadings(ctx, tx, b.Readings)
		if err != nil {
			return err
		}
		written = n
		return upsertMonthlies(ctx, tx, b.Monthly)
	})
	if err != nil {
		return 0, fmt.Errorf("save import: %w", err)
	}
	return written, nil
}

// ReadingsBetween returns a station's canonical readings in [from, to], in
// date order.
func (s *Postgres) ReadingsBetween(ctx context.Context, stationID string, from, to time.Time) ([]domain.Reading, error) {
	rows, err := s.pool.Query(ctx, `
SELECT station_id, reading_date, cumulative_in, incremental_in, source, footnote, estimated
FROM readings
WHERE station_id = $1 AND reading_date BETWEEN $2 AND $3
ORDER BY reading_date`, stationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query readings %s: %w", stationID, err)
	}
	defer rows.Close()

	var readings []domain.Reading
	for rows.Next() {
		var r domain.Reading
		if err := rows.Scan(&r.StationID, &r.Date, &r.Cumulative, &r.Incremental, &r.Source, &r.Quality.Footnote, &r.Quality.Estimated); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.Date = domain.Truncate(r.Date)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// MonthlyAggregates returns a station's rollups in calendar order.
func (s *Postgres) MonthlyAggregates(ctx context.Context, stationID string) ([]domain.MonthlyAggregate, error) {
	rows, err := s.pool.Query(ctx, `
SELECT station_id, year, month, total_rainfall_in, reading_count, first_reading, last_reading, min_cumulative_in, max_cumulative_in
FROM monthly_aggregates
WHERE station_id = $1
ORDER BY year, month`, stationID)
	if err != nil {
		return nil, fmt.Errorf("query monthly aggregates %s: %w", stationID, err)
	}
	defer rows.Close()

	var out []domain.MonthlyAggregate
	for rows.Next() {
		var (
			m     domain.MonthlyAggregate
			month int16
		)
		if err := rows.Scan(&m.StationID, &m.Year, &month, &m.TotalRainfall, &m.ReadingCount,
			&m.FirstReading, &m.LastReading, &m.MinCumulative, &m.MaxCumulative); err != nil {
			return nil, fmt.Errorf("scan monthly aggregate: %w", err)
		}
		m.Month = time.Month(month)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Gauge returns stored metadata for a station.
func (s *Postgres) Gauge(ctx context.Context, stationID string) (domain.GaugeMetadata, error) {
	var (
		g                               domain.GaugeMetadata
		installed, dataStart, reference *time.Time
		statsJSON, warningsJSON         []byte
	)
	err := s.pool.QueryRow(ctx, `
SELECT station_id, previous_ids, name, gauge_type, county, status, latitude, longitude, elevation_ft,
       installed_on, data_start, reference_date, complete_years, stats, warnings
FROM gauges WHERE station_id = $1`, stationID).Scan(
		&g.StationID, &g.PreviousIDs, &g.Name, &g.Type, &g.County, &g.Status, &g.Latitude, &g.Longitude,
		&g.ElevationFt, &installed, &dataStart, &reference, &g.CompleteYears, &statsJSON, &warningsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GaugeMetadata{}, fmt.Errorf("gauge %s: %w", stationID, ErrGaugeNotFound)
	}
	if err != nil {
		return domain.GaugeMetadata{}, fmt.Errorf("query gauge %s: %w", stationID, err)
	}
	g.InstalledOn = deref(installed)
	g.DataStart = deref(dataStart)
	g.ReferenceDate = deref(reference)
	if err := json.Unmarshal(statsJSON, &g.Stats); err != nil {
		return domain.GaugeMetadata{}, fmt.Errorf("decode gauge stats: %w", err)
	}
	if err := json.Unmarshal(warningsJSON, &g.Warnings); err != nil {
		return domain.GaugeMetadata{}, fmt.Errorf("decode gauge warnings: %w", err)
	}
	return g, nil
}

func insertReadings(ctx context.Context, q querier, readings []domain.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, r := range readings {
		batch.Queue(upsertReading, r.StationID, r.Date, r.Cumulative, r.Incremental,
			r.Source, domain.SourceRank(r.Source), r.Quality.Footnote, r.Quality.Estimated)
	}

	res := q.SendBatch(ctx, batch)
	defer res.Close()

	written := 0
	for range readings {
		tag, err := res.Exec()
		if err != nil {
			return written, fmt.Errorf("insert readings: %w", err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

func upsertMonthlies(ctx context.Context, q querier, aggregates []domain.MonthlyAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range aggregates {
		batch.Queue(upsertMonthly, m.StationID, m.Year, int16(m.Month), m.TotalRainfall, m.ReadingCount,
			m.FirstReading, m.LastReading, m.MinCumulative, m.MaxCumulative)
	}

	res := q.SendBatch(ctx, batch)
	defer res.Close()

	for range aggregates {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upsert monthly aggregates: %w", err)
		}
	}
	return nil
}

func upsertGaugeMetadata(ctx context.Context, q querier, g domain.GaugeMetadata) error {
	stats, err := json.Marshal(orEmpty(g.Stats))
	if err != nil {
		return fmt.Errorf("encode gauge stats: %w", err)
	}
	warnings, err := json.Marshal(orEmptySlice(g.Warnings))
	if err != nil {
		return fmt.Errorf("encode gauge warnings: %w", err)
	}
	_, err = q.Exec(ctx, upsertGauge,
		g.StationID, orEmptySlice(g.PreviousIDs), g.Name, g.Type, g.County, g.Status,
		g.Latitude, g.Longitude, g.ElevationFt,
		dateOrNil(g.InstalledOn), dateOrNil(g.DataStart), dateOrNil(g.ReferenceDate),
		g.CompleteYears, stats, warnings)
	if err != nil {
		return fmt.Errorf("upsert gauge %s: %w", g.StationID, err)
	}
	return nil
}

func dateOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return domain.Truncate(*t)
}

func orEmpty(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}

func orEmptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
