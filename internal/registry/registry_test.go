package registry

import (
	"context"
	"testing"
)

type fakeStore struct {
	series  map[string]int64
	nextID  int64
	inserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{series: make(map[string]int64), nextID: 1}
}

func (f *fakeStore) SeriesIDByName(_ context.Context, _ int64, name string) (int64, bool, error) {
	id, ok := f.series[name]
	return id, ok, nil
}

func (f *fakeStore) InsertSeries(_ context.Context, _ int64, name string, _ int64) error {
	f.inserts++
	f.series[name] = f.nextID
	f.nextID++
	return nil
}

func TestResolveCreatesSeriesOnce(t *testing.T) {
	store := newFakeStore()
	reg := New(store)

	first, err := reg.Resolve(context.Background(), 140, "KSFO", "temp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.inserts != 1 {
		t.Fatalf("expected exactly one insert, got %d", store.inserts)
	}

	second, err := reg.Resolve(context.Background(), 140, "KSFO", "temp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Errorf("expected same series id, got %d then %d", first, second)
	}
	if store.inserts != 1 {
		t.Errorf("second resolve must not insert again, got %d inserts", store.inserts)
	}
}

func TestResolveRejectsUnknownCharacteristic(t *testing.T) {
	reg := New(newFakeStore())

	if _, err := reg.Resolve(context.Background(), 140, "KSFO", "moonphase"); err == nil {
		t.Fatal("expected error for unknown characteristic")
	}
}
