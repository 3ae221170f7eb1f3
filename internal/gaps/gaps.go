// Package gaps computes which calendar days are missing data for a series.
// Detection is purely data-driven: only stored observation dates count, a
// last-run marker never does.
package gaps

import (
	"sort"
	"time"

	"github.com/zerotwo/weather-backfill/internal/normalize"
)

// MissingDays returns the days in [now-lookback, today) that have no stored
// observation, in ascending order. The current partial day is excluded
// because its data is never expected to be complete yet.
func MissingDays(stored []time.Time, now time.Time, lookback time.Duration) []time.Time {
	have := make(map[time.Time]struct{}, len(stored))
	for _, d := range stored {
		have[normalize.Day(d)] = struct{}{}
	}

	start := normalize.Day(now.Add(-lookback))
	end := normalize.Day(now) // exclusive

	var missing []time.Time
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		if _, ok := have[day]; !ok {
			missing = append(missing, day)
		}
	}
	return missing
}

// Union merges several missing-day sequences into one ascending sequence
// without duplicates.
func Union(sets ...[]time.Time) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, set := range sets {
		for _, d := range set {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
