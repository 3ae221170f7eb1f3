// Package db implements the trend-store access layer on PostgreSQL.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zerotwo/weather-backfill/internal/models"
	"github.com/zerotwo/weather-backfill/internal/writer"
)

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const enabledStationsSQL = `
SELECT id, latitude, longitude, link, enabled, last_run
FROM trend.stations
WHERE enabled
ORDER BY id`

// EnabledStations returns the stations to process, in a stable order.
func (s *Store) EnabledStations(ctx context.Context) ([]models.Station, error) {
	rows, err := s.pool.Query(ctx, enabledStationsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stations := make([]models.Station, 0)
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.ID, &st.Latitude, &st.Longitude, &st.Link, &st.Enabled, &st.LastRun); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// SeriesIDByName looks up a series by its composite name.
func (s *Store) SeriesIDByName(ctx context.Context, siteID int64, name string) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM trend.series WHERE site_id = $1 AND name = $2`,
		siteID, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// InsertSeries creates a new raw series row.
func (s *Store) InsertSeries(ctx context.Context, siteID int64, name string, classID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trend.series (site_id, name, class_id) VALUES ($1, $2, $3)`,
		siteID, name, classID)
	return err
}

// InsertAliasSeries creates a building-scoped alias series row.
func (s *Store) InsertAliasSeries(ctx context.Context, siteID int64, name string, classID, buildingID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trend.series (site_id, name, class_id, building_id) VALUES ($1, $2, $3, $4)`,
		siteID, name, classID, buildingID)
	return err
}

// likePattern turns a literal prefix into a LIKE pattern, escaping any
// wildcard characters the prefix itself contains.
func likePattern(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// SeriesByPrefix returns every series whose name starts with the prefix,
// used to enumerate a station's raw series for aliasing.
func (s *Store) SeriesByPrefix(ctx context.Context, siteID int64, prefix string) ([]models.Series, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, site_id, name, class_id
FROM trend.series
WHERE site_id = $1 AND building_id IS NULL AND name LIKE $2 ESCAPE '\'
ORDER BY name`, siteID, likePattern(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := make([]models.Series, 0)
	for rows.Next() {
		var sr models.Series
		if err := rows.Scan(&sr.ID, &sr.SiteID, &sr.Name, &sr.ClassID); err != nil {
			return nil, err
		}
		series = append(series, sr)
	}
	return series, rows.Err()
}

// ObservationDates returns the distinct days with stored observations for a
// series within [from, to), ascending.
func (s *Store) ObservationDates(ctx context.Context, siteID, seriesID int64, from, to time.Time) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT obs_date
FROM trend.observations
WHERE site_id = $1 AND series_id = $2 AND obs_date >= $3 AND obs_date < $4
ORDER BY obs_date`, siteID, seriesID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates := make([]time.Time, 0)
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

const upsertObservationSQL = `
INSERT INTO trend.observations (site_id, series_id, obs_date, obs_time, raw_value, numeric_value)
VALUES ($1, $2, $3, $4::time, $5, $6)
ON CONFLICT (site_id, series_id, obs_date, obs_time) DO UPDATE
SET raw_value = EXCLUDED.raw_value,
    numeric_value = EXCLUDED.numeric_value`

const bumpDailyCounterSQL = `
INSERT INTO trend.series_daily (series_id, obs_date, new_records)
VALUES ($1, $2, $3)
ON CONFLICT (series_id, obs_date) DO UPDATE
SET new_records = trend.series_daily.new_records + EXCLUDED.new_records`

// CommitLocation writes a station's accumulated batches in one transaction:
// per-series observation upserts, per-date change counter bumps, and, when
// advanceMarker is set, the station's last_run marker. A crash mid-batch
// leaves the station entirely unwritten.
func (s *Store) CommitLocation(ctx context.Context, siteID int64, station models.Station, batches []models.SeriesBatch, advanceMarker bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, b := range batches {
		if len(b.Rows) == 0 {
			continue
		}

		batch := &pgx.Batch{}
		for _, row := range b.Rows {
			batch.Queue(upsertObservationSQL,
				siteID, b.SeriesID, row.Date, row.Time, row.Raw, row.Numeric)
		}
		for day, count := range writer.DayCounts(b) {
			batch.Queue(bumpDailyCounterSQL, b.SeriesID, day, count)
		}

		res := tx.SendBatch(ctx, batch)
		if err := flushBatch(res, batch.Len()); err != nil {
			return fmt.Errorf("upsert series %d: %w", b.SeriesID, err)
		}
	}

	if advanceMarker {
		if _, err := tx.Exec(ctx,
			`UPDATE trend.stations SET last_run = NOW() WHERE id = $1`, station.ID); err != nil {
			return fmt.Errorf("update last_run for station %d: %w", station.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func flushBatch(res pgx.BatchResults, n int) error {
	defer res.Close()
	for i := 0; i < n; i++ {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}
