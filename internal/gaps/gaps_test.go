package gaps

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMissingDaysReturnsOnlyUnstoredDays(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	stored := []time.Time{day(2024, 3, 6), day(2024, 3, 8)}

	missing := MissingDays(stored, now, 5*24*time.Hour)

	want := []time.Time{day(2024, 3, 5), day(2024, 3, 7), day(2024, 3, 9)}
	if len(missing) != len(want) {
		t.Fatalf("expected %d missing days, got %d: %v", len(want), len(missing), missing)
	}
	for i := range want {
		if !missing[i].Equal(want[i]) {
			t.Errorf("missing[%d]: expected %v, got %v", i, want[i], missing[i])
		}
	}
}

func TestMissingDaysExcludesToday(t *testing.T) {
	now := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)

	missing := MissingDays(nil, now, 3*24*time.Hour)

	for _, d := range missing {
		if d.Equal(day(2024, 3, 10)) {
			t.Fatal("the current partial day must never be reported missing")
		}
	}
	if len(missing) != 3 {
		t.Fatalf("expected 3 missing days, got %d", len(missing))
	}
}

func TestMissingDaysEmptyWhenFullyStored(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	stored := []time.Time{day(2024, 3, 8), day(2024, 3, 9)}

	if missing := MissingDays(stored, now, 2*24*time.Hour); len(missing) != 0 {
		t.Fatalf("expected no missing days, got %v", missing)
	}
}

func TestMissingDaysNormalizesStoredTimestamps(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	// Stored dates may carry a time-of-day component from the driver.
	stored := []time.Time{time.Date(2024, 3, 9, 13, 0, 0, 0, time.UTC)}

	if missing := MissingDays(stored, now, 24*time.Hour); len(missing) != 0 {
		t.Fatalf("expected no missing days, got %v", missing)
	}
}

func TestUnionMergesAscendingWithoutDuplicates(t *testing.T) {
	a := []time.Time{day(2024, 3, 5), day(2024, 3, 7)}
	b := []time.Time{day(2024, 3, 6), day(2024, 3, 7)}

	got := Union(a, b)

	want := []time.Time{day(2024, 3, 5), day(2024, 3, 6), day(2024, 3, 7)}
	if len(got) != len(want) {
		t.Fatalf("expected %d days, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("union[%d]: expected %v, got %v", i, want[i], got[i])
		}
	}
}
