// Package derived recomputes degree-day and alias series after a backfill
// run, using change-counter staleness rather than timestamps: only a larger
// counter proves new information arrived for a date.
package derived

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zerotwo/weather-backfill/internal/models"
)

// tempCharacteristic names the raw series every degree-day point depends on.
const tempCharacteristic = "temp"

// Store is the subset of trend-store operations the recompute pass needs.
type Store interface {
	DegreeDayConfigs(ctx context.Context) ([]models.DegreeDayConfig, error)
	AliasConfigs(ctx context.Context) ([]models.AliasConfig, error)
	SeriesIDByName(ctx context.Context, siteID int64, name string) (int64, bool, error)
	InsertAliasSeries(ctx context.Context, siteID int64, name string, classID, buildingID int64) error
	SeriesByPrefix(ctx context.Context, siteID int64, prefix string) ([]models.Series, error)
	StaleDegreeDays(ctx context.Context, siteID, sourceSeriesID, derivedSeriesID int64) ([]models.StaleDay, error)
	UpsertDerived(ctx context.Context, siteID, seriesID int64, rows []models.DerivedRow) error
	StaleAliasDates(ctx context.Context, sourceSeriesID, aliasSeriesID int64) ([]time.Time, error)
	CopyObservations(ctx context.Context, sourceSiteID, sourceSeriesID, aliasSiteID, aliasSeriesID int64, dates []time.Time) error
}

// Engine drives the derived-metric recompute pass. siteID is the location
// group holding the raw weather series.
type Engine struct {
	store  Store
	siteID int64
}

// New creates an Engine over the given store.
func New(store Store, siteID int64) *Engine {
	return &Engine{store: store, siteID: siteID}
}

// Run recomputes both derived families. It operates on whatever the run
// committed; any failure here is fatal to the run since there is no partial
// progress worth preserving.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.recomputeDegreeDays(ctx); err != nil {
		return fmt.Errorf("degree-day recompute: %w", err)
	}
	if err := e.recomputeAliases(ctx); err != nil {
		return fmt.Errorf("alias recompute: %w", err)
	}
	return nil
}

func (e *Engine) recomputeDegreeDays(ctx context.Context) error {
	configs, err := e.store.DegreeDayConfigs(ctx)
	if err != nil {
		return err
	}

	for _, cfg := range configs {
		depName := cfg.StationLink + "-" + tempCharacteristic
		depID, found, err := e.store.SeriesIDByName(ctx, e.siteID, depName)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("derived point %d depends on missing series %s", cfg.SeriesID, depName)
		}

		stale, err := e.store.StaleDegreeDays(ctx, e.siteID, depID, cfg.SeriesID)
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			continue
		}

		rows := make([]models.DerivedRow, 0, len(stale))
		for _, day := range stale {
			value, err := DegreeDays(cfg.Transform, cfg.BaseValue, day.Average)
			if err != nil {
				return fmt.Errorf("derived point %d: %w", cfg.SeriesID, err)
			}
			rows = append(rows, models.DerivedRow{
				Date:       day.Date,
				Value:      value,
				NewRecords: day.NewRecords,
			})
		}

		if err := e.store.UpsertDerived(ctx, cfg.SiteID, cfg.SeriesID, rows); err != nil {
			return err
		}
		log.Printf("recomputed %d degree-day values for series %d", len(rows), cfg.SeriesID)
	}
	return nil
}

// DegreeDays computes one degree-day value: the deviation of the observed
// daily average from the configured base, floored at zero. Heating measures
// how far the average fell below the base, cooling how far it rose above.
func DegreeDays(transform string, base, observed float64) (float64, error) {
	var v float64
	switch transform {
	case models.TransformHeating:
		v = base - observed
	case models.TransformCooling:
		v = observed - base
	default:
		return 0, fmt.Errorf("unknown degree-day transform %q", transform)
	}
	if v < 0 {
		v = 0
	}
	return v, nil
}

func (e *Engine) recomputeAliases(ctx context.Context) error {
	configs, err := e.store.AliasConfigs(ctx)
	if err != nil {
		return err
	}

	for _, cfg := range configs {
		sources, err := e.store.SeriesByPrefix(ctx, e.siteID, cfg.StationLink+"-")
		if err != nil {
			return err
		}

		for _, src := range sources {
			characteristic := strings.TrimPrefix(src.Name, cfg.StationLink+"-")
			aliasName := cfg.BuildingName + " " + characteristic

			aliasID, err := e.resolveAlias(ctx, cfg, aliasName, src.ClassID)
			if err != nil {
				return err
			}

			dates, err := e.store.StaleAliasDates(ctx, src.ID, aliasID)
			if err != nil {
				return err
			}
			if len(dates) == 0 {
				continue
			}

			if err := e.store.CopyObservations(ctx, e.siteID, src.ID, cfg.SiteID, aliasID, dates); err != nil {
				return err
			}
			log.Printf("aliased %d days of %s onto series %d", len(dates), src.Name, aliasID)
		}
	}
	return nil
}

// resolveAlias finds or lazily creates the building-side alias point, with
// the same lookup-before-insert discipline as the stream registry.
func (e *Engine) resolveAlias(ctx context.Context, cfg models.AliasConfig, name string, classID int64) (int64, error) {
	id, found, err := e.store.SeriesIDByName(ctx, cfg.SiteID, name)
	if err != nil {
		return 0, fmt.Errorf("look up alias %s: %w", name, err)
	}
	if found {
		return id, nil
	}

	if err := e.store.InsertAliasSeries(ctx, cfg.SiteID, name, classID, cfg.BuildingID); err != nil {
		return 0, fmt.Errorf("create alias %s: %w", name, err)
	}

	id, found, err = e.store.SeriesIDByName(ctx, cfg.SiteID, name)
	if err != nil {
		return 0, fmt.Errorf("re-read alias %s: %w", name, err)
	}
	if !found {
		return 0, fmt.Errorf("alias %s missing after insert", name)
	}

	log.Printf("created alias series %d for %s", id, name)
	return id, nil
}
