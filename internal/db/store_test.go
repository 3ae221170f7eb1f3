package db

import (
	"strings"
	"testing"
)

// setClause returns the DO UPDATE SET body of an upsert statement.
func setClause(t *testing.T, sql string) string {
	t.Helper()
	const marker = "DO UPDATE"
	i := strings.Index(sql, marker)
	if i < 0 {
		t.Fatalf("statement has no DO UPDATE clause:\n%s", sql)
	}
	return sql[i+len(marker):]
}

func TestObservationUpsertMergesOnUniqueKey(t *testing.T) {
	for name, sql := range map[string]string{
		"raw":     upsertObservationSQL,
		"derived": upsertDerivedSQL,
		"alias":   copyObservationsSQL,
	} {
		t.Run(name, func(t *testing.T) {
			// Rewriting an already-stored day must hit the existing rows,
			// so the conflict target is the full observation key.
			if !strings.Contains(sql, "ON CONFLICT (site_id, series_id, obs_date, obs_time)") {
				t.Errorf("conflict target must be the observation unique key:\n%s", sql)
			}

			set := setClause(t, sql)
			if !strings.Contains(set, "raw_value = EXCLUDED.raw_value") {
				t.Errorf("conflict must overwrite raw_value:\n%s", set)
			}
			if !strings.Contains(set, "numeric_value = EXCLUDED.numeric_value") {
				t.Errorf("conflict must overwrite numeric_value:\n%s", set)
			}
			for _, key := range []string{"site_id", "series_id", "obs_date", "obs_time"} {
				if strings.Contains(set, key+" =") {
					t.Errorf("conflict must not touch key column %s:\n%s", key, set)
				}
			}
		})
	}
}

func TestDailyCounterAccumulatesForRawSeries(t *testing.T) {
	// A refetched day adds to the counter so dependents see new information.
	set := setClause(t, bumpDailyCounterSQL)
	if !strings.Contains(set, "trend.series_daily.new_records + EXCLUDED.new_records") {
		t.Errorf("raw counter must accumulate, not overwrite:\n%s", set)
	}
}

func TestDerivedCounterRecordsSourceValue(t *testing.T) {
	// Derived and alias series record the counter they were computed from,
	// so a second pass over unchanged sources finds nothing stale.
	for name, sql := range map[string]string{
		"derived": recordDerivedCounterSQL,
		"alias":   copyCountersSQL,
	} {
		t.Run(name, func(t *testing.T) {
			set := setClause(t, sql)
			if !strings.Contains(set, "new_records = EXCLUDED.new_records") {
				t.Errorf("counter must be set to the source value:\n%s", set)
			}
			if strings.Contains(set, "+") {
				t.Errorf("counter must not accumulate:\n%s", set)
			}
		})
	}
}

func TestStalenessComparesCountersNotTimestamps(t *testing.T) {
	cases := map[string]struct {
		sql       string
		predicate string
	}{
		"degree days": {staleDegreeDaysSQL, "dd.new_records IS NULL OR dd.new_records < sd.new_records"},
		"aliases":     {staleAliasDatesSQL, "ad.new_records IS NULL OR ad.new_records < sd.new_records"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if !strings.Contains(tc.sql, tc.predicate) {
				t.Errorf("stale dates must be those with a missing or lagging counter:\n%s", tc.sql)
			}
			// Re-ingested history bumps the counter without adding dates, so
			// timestamps must play no part in the comparison.
			for _, col := range []string{"last_run", "updated_at", "NOW()"} {
				if strings.Contains(tc.sql, col) {
					t.Errorf("staleness must not consult %s:\n%s", col, tc.sql)
				}
			}
		})
	}
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	cases := map[string]string{
		"KSFO-":    `KSFO-%`,
		"K%S-":     `K\%S-%`,
		"K_S-":     `K\_S-%`,
		`K\S-`:     `K\\S-%`,
		"90%_wx\\": `90\%\_wx\\%`,
	}
	for prefix, want := range cases {
		if got := likePattern(prefix); got != want {
			t.Errorf("likePattern(%q) = %q, want %q", prefix, got, want)
		}
	}
}
