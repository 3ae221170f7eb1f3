// Package normalize converts provider epoch timestamps into the trend
// store's naive local time base.
package normalize

import (
	"fmt"
	"time"

	"github.com/zerotwo/weather-backfill/internal/models"
)

// Row is one hourly record on the store's time base: a naive local wall
// clock reading (carried in UTC with no offset semantics) plus the field
// values of that hour.
type Row struct {
	TS     time.Time
	Fields map[string]models.Value
}

// Records converts epoch-stamped hourly records into naive local rows.
//
// Each epoch is interpreted as an absolute UTC instant, converted to the
// location's civil time, and stripped of its offset. During a daylight
// saving fall-back two instants map to the same wall clock reading; the
// first-encountered record wins and the rest are dropped, so output
// timestamps are strictly increasing and unique.
func Records(records []models.HourlyRecord, timezone string) ([]Row, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	seen := make(map[time.Time]struct{}, len(records))
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		local := time.Unix(rec.Epoch, 0).In(loc)
		naive := time.Date(local.Year(), local.Month(), local.Day(),
			local.Hour(), local.Minute(), local.Second(), 0, time.UTC)
		if _, dup := seen[naive]; dup {
			continue
		}
		seen[naive] = struct{}{}
		rows = append(rows, Row{TS: naive, Fields: rec.Fields})
	}
	return rows, nil
}

// Day truncates a naive timestamp to its calendar day.
func Day(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
