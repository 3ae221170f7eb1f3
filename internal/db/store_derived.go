package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zerotwo/weather-backfill/internal/models"
)

const degreeDayConfigsSQL = `
SELECT d.series_id, p.site_id, d.station_id, s.link, d.transform, d.base_value
FROM trend.degree_day_points d
JOIN trend.series p ON p.id = d.series_id
JOIN trend.stations s ON s.id = d.station_id
WHERE s.enabled
ORDER BY d.series_id`

// DegreeDayConfigs returns the declarative degree-day dependency table.
func (s *Store) DegreeDayConfigs(ctx context.Context) ([]models.DegreeDayConfig, error) {
	rows, err := s.pool.Query(ctx, degreeDayConfigsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]models.DegreeDayConfig, 0)
	for rows.Next() {
		var c models.DegreeDayConfig
		if err := rows.Scan(&c.SeriesID, &c.SiteID, &c.StationID, &c.StationLink, &c.Transform, &c.BaseValue); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

const aliasConfigsSQL = `
SELECT a.building_id, b.name, b.site_id, a.station_id, s.link
FROM trend.station_aliases a
JOIN trend.buildings b ON b.id = a.building_id
JOIN trend.stations s ON s.id = a.station_id
WHERE s.enabled
ORDER BY a.building_id, a.station_id`

// AliasConfigs returns the building-to-station alias configuration.
func (s *Store) AliasConfigs(ctx context.Context) ([]models.AliasConfig, error) {
	rows, err := s.pool.Query(ctx, aliasConfigsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]models.AliasConfig, 0)
	for rows.Next() {
		var c models.AliasConfig
		if err := rows.Scan(&c.BuildingID, &c.BuildingName, &c.SiteID, &c.StationID, &c.StationLink); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// staleDegreeDaysSQL finds the dates of a source series whose change counter
// exceeds the derived series' recorded counter, together with the source's
// daily average for that date. Counter comparison, not timestamp comparison:
// re-ingested history bumps the counter even when no new date appears.
const staleDegreeDaysSQL = `
SELECT sd.obs_date, sd.new_records, AVG(o.numeric_value)
FROM trend.series_daily sd
JOIN trend.observations o
  ON o.site_id = $1 AND o.series_id = sd.series_id AND o.obs_date = sd.obs_date
LEFT JOIN trend.series_daily dd
  ON dd.series_id = $3 AND dd.obs_date = sd.obs_date
WHERE sd.series_id = $2
  AND (dd.new_records IS NULL OR dd.new_records < sd.new_records)
GROUP BY sd.obs_date, sd.new_records
ORDER BY sd.obs_date`

// StaleDegreeDays returns the stale dates of a derived series relative to
// its dependency, with the dependency's daily averages.
func (s *Store) StaleDegreeDays(ctx context.Context, siteID, sourceSeriesID, derivedSeriesID int64) ([]models.StaleDay, error) {
	rows, err := s.pool.Query(ctx, staleDegreeDaysSQL, siteID, sourceSeriesID, derivedSeriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make([]models.StaleDay, 0)
	for rows.Next() {
		var d models.StaleDay
		if err := rows.Scan(&d.Date, &d.NewRecords, &d.Average); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

const upsertDerivedSQL = `
INSERT INTO trend.observations (site_id, series_id, obs_date, obs_time, raw_value, numeric_value)
VALUES ($1, $2, $3, '00:00:00', $4, $5)
ON CONFLICT (site_id, series_id, obs_date, obs_time) DO UPDATE
SET raw_value = EXCLUDED.raw_value,
    numeric_value = EXCLUDED.numeric_value`

const recordDerivedCounterSQL = `
INSERT INTO trend.series_daily (series_id, obs_date, new_records)
VALUES ($1, $2, $3)
ON CONFLICT (series_id, obs_date) DO UPDATE
SET new_records = EXCLUDED.new_records`

// UpsertDerived writes computed derived values at midnight and records the
// source counter each was computed from, in one transaction per point.
func (s *Store) UpsertDerived(ctx context.Context, siteID, seriesID int64, rows []models.DerivedRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, row := range rows {
		raw := fmt.Sprintf("%g", row.Value)
		batch.Queue(upsertDerivedSQL, siteID, seriesID, row.Date, raw, row.Value)
		batch.Queue(recordDerivedCounterSQL, seriesID, row.Date, row.NewRecords)
	}

	res := tx.SendBatch(ctx, batch)
	if err := flushBatch(res, batch.Len()); err != nil {
		return fmt.Errorf("upsert derived series %d: %w", seriesID, err)
	}
	return tx.Commit(ctx)
}

const staleAliasDatesSQL = `
SELECT sd.obs_date
FROM trend.series_daily sd
LEFT JOIN trend.series_daily ad
  ON ad.series_id = $2 AND ad.obs_date = sd.obs_date
WHERE sd.series_id = $1
  AND (ad.new_records IS NULL OR ad.new_records < sd.new_records)
ORDER BY sd.obs_date`

// StaleAliasDates returns the dates where an alias series is missing or its
// counter lags the source series.
func (s *Store) StaleAliasDates(ctx context.Context, sourceSeriesID, aliasSeriesID int64) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, staleAliasDatesSQL, sourceSeriesID, aliasSeriesID)
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

const copyObservationsSQL = `
INSERT INTO trend.observations (site_id, series_id, obs_date, obs_time, raw_value, numeric_value)
SELECT $3, $4, obs_date, obs_time, raw_value, numeric_value
FROM trend.observations
WHERE site_id = $1 AND series_id = $2 AND obs_date = ANY($5)
ON CONFLICT (site_id, series_id, obs_date, obs_time) DO UPDATE
SET raw_value = EXCLUDED.raw_value,
    numeric_value = EXCLUDED.numeric_value`

const copyCountersSQL = `
INSERT INTO trend.series_daily (series_id, obs_date, new_records)
SELECT $2, obs_date, new_records
FROM trend.series_daily
WHERE series_id = $1 AND obs_date = ANY($3)
ON CONFLICT (series_id, obs_date) DO UPDATE
SET new_records = EXCLUDED.new_records`

// CopyObservations mirrors a source series' rows onto an alias series for
// the given dates and records the source counters on the alias, atomically.
// The alias rows are written under the building's own site.
func (s *Store) CopyObservations(ctx context.Context, sourceSiteID, sourceSeriesID, aliasSiteID, aliasSeriesID int64, dates []time.Time) error {
	if len(dates) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, copyObservationsSQL, sourceSiteID, sourceSeriesID, aliasSiteID, aliasSeriesID, dates); err != nil {
		return fmt.Errorf("copy observations to alias %d: %w", aliasSeriesID, err)
	}
	if _, err := tx.Exec(ctx, copyCountersSQL, sourceSeriesID, aliasSeriesID, dates); err != nil {
		return fmt.Errorf("copy counters to alias %d: %w", aliasSeriesID, err)
	}
	return tx.Commit(ctx)
}
