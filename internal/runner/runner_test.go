package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zerotwo/weather-backfill/internal/config"
	"github.com/zerotwo/weather-backfill/internal/models"
)

type commit struct {
	link          string
	advanceMarker bool
	rows          int
}

type fakeStore struct {
	stations []models.Station
	series   map[string]int64
	nextID   int64
	commits  []commit
}

func newFakeStore(stations ...models.Station) *fakeStore {
	return &fakeStore{stations: stations, series: make(map[string]int64), nextID: 1}
}

func (f *fakeStore) EnabledStations(context.Context) ([]models.Station, error) {
	return f.stations, nil
}

func (f *fakeStore) SeriesIDByName(_ context.Context, _ int64, name string) (int64, bool, error) {
	id, ok := f.series[name]
	return id, ok, nil
}

func (f *fakeStore) InsertSeries(_ context.Context, _ int64, name string, _ int64) error {
	f.series[name] = f.nextID
	f.nextID++
	return nil
}

func (f *fakeStore) ObservationDates(context.Context, int64, int64, time.Time, time.Time) ([]time.Time, error) {
	return nil, nil // everything is missing
}

func (f *fakeStore) CommitLocation(_ context.Context, _ int64, station models.Station, batches []models.SeriesBatch, advanceMarker bool) error {
	total := 0
	for _, b := range batches {
		total += len(b.Rows)
	}
	f.commits = append(f.commits, commit{link: station.Link, advanceMarker: advanceMarker, rows: total})
	return nil
}

type fakeFetcher struct {
	calls int
}

func (f *fakeFetcher) FetchDay(_ context.Context, lat, _ float64, day time.Time, _ []string) (models.DayData, error) {
	f.calls++
	if lat == failLat {
		return models.DayData{}, errors.New("api returned 500")
	}
	return models.DayData{
		Timezone: "UTC",
		Hours: []models.HourlyRecord{{
			Epoch:  day.Unix(),
			Fields: map[string]models.Value{"temp": {Raw: "50", Numeric: 50}},
		}},
	}, nil
}

const failLat = 99.0

type fakeRecomputer struct {
	runs int
	err  error
}

func (f *fakeRecomputer) Run(context.Context) error {
	f.runs++
	return f.err
}

func station(id int64, link string, lat float64) models.Station {
	return models.Station{ID: id, Link: link, Latitude: lat, Longitude: -70, Enabled: true}
}

func testConfig() config.Config {
	return config.Config{
		SiteID:         140,
		Lookback:       2 * 24 * time.Hour,
		MaxCallsPerRun: 1000,
	}
}

func TestRunIsolatesLocationFailures(t *testing.T) {
	store := newFakeStore(
		station(1, "KAAA", 1),
		station(2, "KBBB", failLat),
		station(3, "KCCC", 3),
	)
	fetcher := &fakeFetcher{}
	recompute := &fakeRecomputer{}

	summary, err := New(store, fetcher, recompute, testConfig()).Run(context.Background())
	if !errors.Is(err, ErrRunHadErrors) {
		t.Fatalf("expected ErrRunHadErrors, got %v", err)
	}

	if len(summary.Locations) != 3 {
		t.Fatalf("expected 3 location results, got %d", len(summary.Locations))
	}
	if summary.Locations[0].Err != nil || summary.Locations[2].Err != nil {
		t.Error("healthy locations must not report errors")
	}
	if summary.Locations[1].Err == nil {
		t.Error("failing location must report its error")
	}

	if len(store.commits) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(store.commits))
	}
	for _, c := range store.commits {
		switch c.link {
		case "KAAA", "KCCC":
			if !c.advanceMarker {
				t.Errorf("%s: marker must advance on success", c.link)
			}
			if c.rows == 0 {
				t.Errorf("%s: expected committed rows", c.link)
			}
		case "KBBB":
			if c.advanceMarker {
				t.Error("KBBB: marker must not advance on failure")
			}
		}
	}

	if recompute.runs != 1 {
		t.Errorf("derived pass must run exactly once, ran %d times", recompute.runs)
	}
}

func TestRunStopsFetchingWhenBudgetExhausted(t *testing.T) {
	store := newFakeStore(
		station(1, "KAAA", 1),
		station(2, "KBBB", 2),
	)
	fetcher := &fakeFetcher{}
	recompute := &fakeRecomputer{}

	cfg := testConfig()
	cfg.MaxCallsPerRun = 3 // two missing days per station

	summary, err := New(store, fetcher, recompute, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("budget exhaustion is not an error, got %v", err)
	}
	if summary.Calls != 3 {
		t.Errorf("expected exactly 3 calls, got %d", summary.Calls)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetcher saw %d calls", fetcher.calls)
	}
}

func TestRunSkipsFetchWhenNoGaps(t *testing.T) {
	store := &fullyStoredStore{fakeStore: newFakeStore(station(1, "KAAA", 1))}
	fetcher := &fakeFetcher{}
	recompute := &fakeRecomputer{}

	if _, err := New(store, fetcher, recompute, testConfig()).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("expected no fetches for a fully stored series, got %d", fetcher.calls)
	}
	if len(store.commits) != 0 {
		t.Errorf("expected no commit when there is nothing to write")
	}
}

// fullyStoredStore reports every day of the window as already present.
type fullyStoredStore struct {
	*fakeStore
}

func (f *fullyStoredStore) ObservationDates(_ context.Context, _, _ int64, from, to time.Time) ([]time.Time, error) {
	var dates []time.Time
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}

func TestRunFailsWhenDerivedPassFails(t *testing.T) {
	store := newFakeStore(station(1, "KAAA", 1))
	fetcher := &fakeFetcher{}
	recompute := &fakeRecomputer{err: fmt.Errorf("malformed dependency")}

	summary, err := New(store, fetcher, recompute, testConfig()).Run(context.Background())
	if err == nil {
		t.Fatal("expected error when the derived pass fails")
	}
	if summary.DerivedErr == nil {
		t.Error("summary must carry the derived pass error")
	}
	if !summary.HadErrors() {
		t.Error("summary must report errors")
	}
}
