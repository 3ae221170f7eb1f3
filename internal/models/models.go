package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Characteristics maps provider field keys to trend-store class ids.
// The set is static; downstream consumers key off the class id.
var Characteristics = map[string]int64{
	"precip":     10143,
	"precipprob": 10144,
	"temp":       13,
	"feelslike":  10145,
	"dew":        182,
	"humidity":   97,
	"pressure":   692,
	"windspeed":  694,
	"winddir":    695,
	"cloudcover": 696,
	"uvindex":    10146,
	"visibility": 10147,
}

// EpochField is the provider's timestamp key, requested alongside the
// characteristics on every fetch.
const EpochField = "datetimeEpoch"

// CharacteristicKeys returns the characteristic field keys in a stable order.
func CharacteristicKeys() []string {
	keys := make([]string, 0, len(Characteristics))
	for k := range Characteristics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// APIFields returns every field to request from the provider, including the
// epoch timestamp key.
func APIFields() []string {
	return append(CharacteristicKeys(), EpochField)
}

// Degree-day transform kinds as stored in trend.degree_day_points.
const (
	TransformHeating = "heating"
	TransformCooling = "cooling"
)

// Station is a monitored location row from trend.stations.
type Station struct {
	ID        int64
	Latitude  float64
	Longitude float64
	Link      string
	Enabled   bool
	LastRun   *time.Time
}

// Series identifies one measurement stream.
type Series struct {
	ID      int64
	SiteID  int64
	Name    string
	ClassID int64
}

// Value keeps both representations of a measurement.
type Value struct {
	Raw     string
	Numeric float64
}

// HourlyRecord is one hour entry from the provider: the source epoch
// timestamp plus field values keyed by characteristic.
type HourlyRecord struct {
	Epoch  int64
	Fields map[string]Value
}

// DayData is the provider response for one (location, day) request.
type DayData struct {
	Timezone string
	Hours    []HourlyRecord
}

// ObservationRow is one normalized data point ready for upsert. Date and
// Time are the store's naive local calendar representation.
type ObservationRow struct {
	Date    time.Time
	Time    string
	Raw     string
	Numeric float64
}

// SeriesBatch groups upsert rows for a single series.
type SeriesBatch struct {
	SeriesID int64
	Rows     []ObservationRow
}

// DegreeDayConfig is one row of the declarative dependency table: a derived
// point, the station whose raw temperature it depends on, the transform
// direction and the configured reference base.
type DegreeDayConfig struct {
	SeriesID    int64
	SiteID      int64
	StationID   int64
	StationLink string
	Transform   string
	BaseValue   float64
}

// AliasConfig links a building to the station whose series it mirrors.
type AliasConfig struct {
	BuildingID   int64
	BuildingName string
	SiteID       int64
	StationID    int64
	StationLink  string
}

// StaleDay is a date whose derived row lags its source: the source counter
// proves new information arrived, and Average carries the daily mean of the
// dependency's readings for degree-day computation.
type StaleDay struct {
	Date       time.Time
	NewRecords int64
	Average    float64
}

// DerivedRow is a computed derived value for one date, written at midnight
// with the source counter it was computed from.
type DerivedRow struct {
	Date       time.Time
	Value      float64
	NewRecords int64
}

// LocationResult reports the outcome of processing one station within a run.
type LocationResult struct {
	StationID   int64
	Link        string
	DaysFetched int
	RowsWritten int
	Err         error
}

// RunSummary aggregates per-location results for one backfill run.
type RunSummary struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Calls      int
	Locations  []LocationResult
	DerivedErr error
}

// HadErrors reports whether any location or the derived pass failed.
func (s RunSummary) HadErrors() bool {
	if s.DerivedErr != nil {
		return true
	}
	for _, loc := range s.Locations {
		if loc.Err != nil {
			return true
		}
	}
	return false
}
