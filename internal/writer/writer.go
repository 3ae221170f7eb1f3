// Package writer turns normalized hourly rows into per-series upsert
// batches for the trend store.
package writer

import (
	"log"
	"time"

	"github.com/zerotwo/weather-backfill/internal/models"
	"github.com/zerotwo/weather-backfill/internal/normalize"
)

// timeLayout is the store's naive time-of-day representation.
const timeLayout = "15:04:05"

// Build groups normalized rows into one batch per series, in the stable
// characteristic order. Hours missing a field simply contribute no row for
// that series. A series that ends up with zero rows still gets an (empty)
// batch so the write path can log the no-op.
func Build(seriesIDs map[string]int64, rows []normalize.Row) []models.SeriesBatch {
	batches := make([]models.SeriesBatch, 0, len(seriesIDs))
	for _, key := range models.CharacteristicKeys() {
		seriesID, ok := seriesIDs[key]
		if !ok {
			continue
		}

		batch := models.SeriesBatch{SeriesID: seriesID}
		for _, row := range rows {
			val, ok := row.Fields[key]
			if !ok {
				continue
			}
			batch.Rows = append(batch.Rows, models.ObservationRow{
				Date:    normalize.Day(row.TS),
				Time:    row.TS.Format(timeLayout),
				Raw:     val.Raw,
				Numeric: val.Numeric,
			})
		}

		if len(batch.Rows) == 0 {
			log.Printf("no data to insert for series %d", seriesID)
		}
		batches = append(batches, batch)
	}
	return batches
}

// RowCount sums the rows across batches.
func RowCount(batches []models.SeriesBatch) int {
	total := 0
	for _, b := range batches {
		total += len(b.Rows)
	}
	return total
}

// DayCounts tallies rows per calendar day for one batch; the store bumps
// the series' per-date change counters by these amounts.
func DayCounts(batch models.SeriesBatch) map[time.Time]int64 {
	counts := make(map[time.Time]int64)
	for _, row := range batch.Rows {
		counts[row.Date]++
	}
	return counts
}
