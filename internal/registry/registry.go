// Package registry resolves (location, characteristic) pairs to stable
// series identifiers, creating series lazily on first sight.
package registry

import (
	"context"
	"fmt"
	"log"

	"github.com/zerotwo/weather-backfill/internal/models"
)

// Store is the subset of trend-store operations the registry needs.
type Store interface {
	SeriesIDByName(ctx context.Context, siteID int64, name string) (int64, bool, error)
	InsertSeries(ctx context.Context, siteID int64, name string, classID int64) error
}

// Registry maps a station link + characteristic to a series id.
type Registry struct {
	store Store
}

// New creates a Registry over the given store.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// Resolve looks up the series named <link>-<characteristic>, creating it
// with the characteristic's fixed class when absent. Lookup-before-insert:
// the store does not enforce a free uniqueness guarantee for us, so an
// existing row must never trigger a second insert.
func (r *Registry) Resolve(ctx context.Context, siteID int64, link, characteristic string) (int64, error) {
	classID, ok := models.Characteristics[characteristic]
	if !ok {
		return 0, fmt.Errorf("unknown characteristic %q", characteristic)
	}

	name := link + "-" + characteristic
	id, found, err := r.store.SeriesIDByName(ctx, siteID, name)
	if err != nil {
		return 0, fmt.Errorf("look up series %s: %w", name, err)
	}
	if found {
		return id, nil
	}

	if err := r.store.InsertSeries(ctx, siteID, name, classID); err != nil {
		return 0, fmt.Errorf("create series %s: %w", name, err)
	}

	id, found, err = r.store.SeriesIDByName(ctx, siteID, name)
	if err != nil {
		return 0, fmt.Errorf("re-read series %s: %w", name, err)
	}
	if !found {
		return 0, fmt.Errorf("series %s missing after insert", name)
	}

	log.Printf("created series %d for %s", id, name)
	return id, nil
}
