// Package runner drives one backfill run: gap detection, fetching,
// normalization and per-location commits, followed by a single
// derived-metric recompute pass.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zerotwo/weather-backfill/internal/config"
	"github.com/zerotwo/weather-backfill/internal/gaps"
	"github.com/zerotwo/weather-backfill/internal/models"
	"github.com/zerotwo/weather-backfill/internal/normalize"
	"github.com/zerotwo/weather-backfill/internal/registry"
	"github.com/zerotwo/weather-backfill/internal/writer"
)

// ErrRunHadErrors signals that at least one location was not fully
// collected. Committed data stays committed; gap detection makes the retry
// re-attempt only what is still actually missing.
var ErrRunHadErrors = errors.New("at least one error may have resulted in missed or missing data")

// Store is the subset of trend-store operations the coordinator needs.
type Store interface {
	registry.Store
	EnabledStations(ctx context.Context) ([]models.Station, error)
	ObservationDates(ctx context.Context, siteID, seriesID int64, from, to time.Time) ([]time.Time, error)
	CommitLocation(ctx context.Context, siteID int64, station models.Station, batches []models.SeriesBatch, advanceMarker bool) error
}

// Fetcher retrieves one day of hourly observations for a location.
type Fetcher interface {
	FetchDay(ctx context.Context, lat, lon float64, day time.Time, fields []string) (models.DayData, error)
}

// Recomputer runs the derived-metric pass after all locations.
type Recomputer interface {
	Run(ctx context.Context) error
}

// Runner coordinates a single sequential backfill run.
type Runner struct {
	store     Store
	fetcher   Fetcher
	recompute Recomputer
	registry  *registry.Registry
	siteID    int64
	lookback  time.Duration
	maxCalls  int
}

// New creates a Runner from the given collaborators and configuration.
func New(store Store, fetcher Fetcher, recompute Recomputer, cfg config.Config) *Runner {
	return &Runner{
		store:     store,
		fetcher:   fetcher,
		recompute: recompute,
		registry:  registry.New(store),
		siteID:    cfg.SiteID,
		lookback:  cfg.Lookback,
		maxCalls:  cfg.MaxCallsPerRun,
	}
}

// Run processes every enabled station in order, then recomputes derived
// series exactly once. A location-level failure does not stop the run; the
// returned error is advisory and the summary always reflects what was
// committed. Invoking Run again is idempotent: subsequent runs simply find
// fewer or no gaps.
func (r *Runner) Run(ctx context.Context) (models.RunSummary, error) {
	summary := models.RunSummary{ID: uuid.New(), StartedAt: time.Now().UTC()}

	stations, err := r.store.EnabledStations(ctx)
	if err != nil {
		return summary, fmt.Errorf("load stations: %w", err)
	}
	log.Printf("run %s: %d enabled stations", summary.ID, len(stations))

	for _, st := range stations {
		res := r.processStation(ctx, st, &summary.Calls)
		summary.Locations = append(summary.Locations, res)
		if res.Err != nil {
			log.Printf("station %s: not all missing days were collected: %v", st.Link, res.Err)
		}
	}

	if err := r.recompute.Run(ctx); err != nil {
		summary.DerivedErr = err
		summary.FinishedAt = time.Now().UTC()
		return summary, err
	}

	summary.FinishedAt = time.Now().UTC()
	if summary.HadErrors() {
		return summary, ErrRunHadErrors
	}
	return summary, nil
}

// processStation runs the per-location pipeline. Days already fetched
// before a failure are still written and committed; only the last_run
// marker is withheld on failure.
func (r *Runner) processStation(ctx context.Context, st models.Station, calls *int) models.LocationResult {
	res := models.LocationResult{StationID: st.ID, Link: st.Link}
	log.Printf("processing station %s", st.Link)

	seriesIDs := make(map[string]int64, len(models.Characteristics))
	for _, key := range models.CharacteristicKeys() {
		id, err := r.registry.Resolve(ctx, r.siteID, st.Link, key)
		if err != nil {
			res.Err = err
			return res
		}
		seriesIDs[key] = id
	}

	now := time.Now().UTC()
	from := normalize.Day(now.Add(-r.lookback))
	to := normalize.Day(now)

	// A day missing for any of the station's series is fetched once for
	// all of them; the idempotent merge makes refetching the rest safe.
	sets := make([][]time.Time, 0, len(seriesIDs))
	for _, key := range models.CharacteristicKeys() {
		stored, err := r.store.ObservationDates(ctx, r.siteID, seriesIDs[key], from, to)
		if err != nil {
			res.Err = fmt.Errorf("load stored dates for %s-%s: %w", st.Link, key, err)
			return res
		}
		sets = append(sets, gaps.MissingDays(stored, now, r.lookback))
	}
	missing := gaps.Union(sets...)

	if len(missing) == 0 {
		log.Printf("no new data needed for %s", st.Link)
		return res
	}

	var rows []normalize.Row
	for _, day := range missing {
		if *calls >= r.maxCalls {
			log.Printf("call budget (%d) exhausted; leaving remaining days for the next run", r.maxCalls)
			break
		}

		data, err := r.fetcher.FetchDay(ctx, st.Latitude, st.Longitude, day, models.APIFields())
		*calls++
		if err != nil {
			res.Err = fmt.Errorf("fetch %s for %s: %w", day.Format("2006-01-02"), st.Link, err)
			break
		}
		res.DaysFetched++

		normalized, err := normalize.Records(data.Hours, data.Timezone)
		if err != nil {
			res.Err = fmt.Errorf("normalize %s for %s: %w", day.Format("2006-01-02"), st.Link, err)
			break
		}
		rows = append(rows, normalized...)
	}

	batches := writer.Build(seriesIDs, rows)
	res.RowsWritten = writer.RowCount(batches)

	if err := r.store.CommitLocation(ctx, r.siteID, st, batches, res.Err == nil); err != nil {
		if res.Err == nil {
			res.Err = fmt.Errorf("commit station %s: %w", st.Link, err)
		}
		return res
	}

	log.Printf("station %s: %d days fetched, %d rows written", st.Link, res.DaysFetched, res.RowsWritten)
	return res
}
