package spcline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/spcline/spcline/internal/testutil"
)

func newTestSQLiteStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	_, path := testutil.TempDBPath(t)
	store, err := NewSQLiteStore(SQLiteStoreConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store, path
}

func TestSQLiteStore_SaveAndReload(t *testing.T) {
	store, path := newTestSQLiteStore(t)
	ctx := context.Background()

	ds, err := NewDividerSet(testSeries(1, 2, 3))
	if err != nil {
		t.Fatalf("NewDividerSet failed: %v", err)
	}
	saved := &Metric{
		Name:     "latency",
		Series:   testSeries(1, 2, 3),
		Mode:     ModeMedian,
		Overlay:  OverlayState{Active: OverlayTrend},
		Dividers: ds,
		Meta:     &MetricMeta{DisplayName: "Request latency", Unit: "ms"},
	}
	if err := store.SaveMetric(ctx, saved); err != nil {
		t.Fatalf("SaveMetric failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A fresh handle must see everything, including the session state.
	reopened, err := NewSQLiteStore(SQLiteStoreConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Metric(ctx, "latency")
	if err != nil {
		t.Fatalf("Metric failed: %v", err)
	}
	if got.Mode != ModeMedian {
		t.Errorf("Mode = %v, want ModeMedian", got.Mode)
	}
	if got.Overlay.Active != OverlayTrend {
		t.Errorf("Overlay.Active = %v, want OverlayTrend", got.Overlay.Active)
	}
	if got.Dividers == nil || !got.Dividers.Start.Equal(ds.Start) || !got.Dividers.End.Equal(ds.End) {
		t.Errorf("dividers lost: %+v", got.Dividers)
	}
	if got.Meta == nil || got.Meta.DisplayName != "Request latency" || got.Meta.Unit != "ms" {
		t.Errorf("metadata lost: %+v", got.Meta)
	}
	if !reflect.DeepEqual(got.Series, saved.Series) {
		t.Errorf("series mismatch:\n got  %+v\n want %+v", got.Series, saved.Series)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should survive the reload")
	}
}

func TestSQLiteStore_TimestampStringsPreserved(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	defer store.Close()
	ctx := context.Background()

	obs := Observation{Timestamp: "2024-03-01T06:30:00Z", Value: 7}
	if err := store.AppendObservations(ctx, "m", obs); err != nil {
		t.Fatalf("AppendObservations failed: %v", err)
	}
	got, err := store.Metric(ctx, "m")
	if err != nil {
		t.Fatalf("Metric failed: %v", err)
	}
	if got.Series[0].Timestamp != obs.Timestamp {
		t.Errorf("Timestamp = %q, want the original string %q", got.Series[0].Timestamp, obs.Timestamp)
	}
}

func TestSQLiteStore_AppendUpsert(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.AppendObservations(ctx, "m", Observation{Timestamp: "2024-03-01", Value: 1, Confidence: 0.8}); err != nil {
		t.Fatalf("AppendObservations failed: %v", err)
	}

	// A lower-confidence duplicate must not replace the stored value.
	if err := store.AppendObservations(ctx, "m", Observation{Timestamp: "2024-03-01", Value: 2, Confidence: 0.3}); err != nil {
		t.Fatalf("AppendObservations failed: %v", err)
	}
	got, err := store.Metric(ctx, "m")
	if err != nil {
		t.Fatalf("Metric failed: %v", err)
	}
	if got.Series[0].Value != 1 {
		t.Errorf("low-confidence duplicate replaced the value: %v", got.Series[0].Value)
	}

	// A higher-confidence duplicate replaces it.
	if err := store.AppendObservations(ctx, "m", Observation{Timestamp: "2024-03-01", Value: 3, Confidence: 0.9}); err != nil {
		t.Fatalf("AppendObservations failed: %v", err)
	}
	got, err = store.Metric(ctx, "m")
	if err != nil {
		t.Fatalf("Metric failed: %v", err)
	}
	if got.Series[0].Value != 3 || len(got.Series) != 1 {
		t.Errorf("expected the high-confidence value 3, got %+v", got.Series)
	}
}

func TestSQLiteStore_AppendDoesNotClobberState(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	defer store.Close()
	ctx := context.Background()

	saved := &Metric{Name: "m", Series: testSeries(1), Mode: ModeMedian, Overlay: OverlayState{Active: OverlayTrend}}
	if err := store.SaveMetric(ctx, saved); err != nil {
		t.Fatalf("SaveMetric failed: %v", err)
	}
	if err := store.AppendObservations(ctx, "m", Observation{Timestamp: "2024-03-09", Value: 9}); err != nil {
		t.Fatalf("AppendObservations failed: %v", err)
	}

	got, err := store.Metric(ctx, "m")
	if err != nil {
		t.Fatalf("Metric failed: %v", err)
	}
	if got.Mode != ModeMedian || got.Overlay.Active != OverlayTrend {
		t.Errorf("append clobbered the metric state: %+v", got)
	}
	if len(got.Series) != 2 {
		t.Errorf("expected 2 observations, got %d", len(got.Series))
	}
}

func TestSQLiteStore_SeriesSortedByInstant(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	defer store.Close()
	ctx := context.Background()

	err := store.AppendObservations(ctx, "m",
		Observation{Timestamp: "2024-03-03", Value: 3},
		Observation{Timestamp: "2024-03-01", Value: 1},
		Observation{Timestamp: "2024-03-02", Value: 2},
	)
	if err != nil {
		t.Fatalf("AppendObservations failed: %v", err)
	}
	got, err := store.Metric(ctx, "m")
	if err != nil {
		t.Fatalf("Metric failed: %v", err)
	}
	for i, want := range []float64{1, 2, 3} {
		if got.Series[i].Value != want {
			t.Errorf("Series[%d].Value = %v, want %v", i, got.Series[i].Value, want)
		}
	}
}

func TestSQLiteStore_MetricsSorted(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	defer store.Close()
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		if err := store.SaveMetric(ctx, &Metric{Name: name}); err != nil {
			t.Fatalf("SaveMetric(%s) failed: %v", name, err)
		}
	}
	names, err := store.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"alpha", "zeta"}) {
		t.Errorf("names = %v, want sorted ascending", names)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.SaveMetric(ctx, &Metric{Name: "gone", Series: testSeries(1, 2)}); err != nil {
		t.Fatalf("SaveMetric failed: %v", err)
	}
	if err := store.DeleteMetric(ctx, "gone"); err != nil {
		t.Fatalf("DeleteMetric failed: %v", err)
	}
	if _, err := store.Metric(ctx, "gone"); !errors.Is(err, ErrMetricNotFound) {
		t.Errorf("expected ErrMetricNotFound, got %v", err)
	}
	if err := store.DeleteMetric(ctx, "gone"); !errors.Is(err, ErrMetricNotFound) {
		t.Errorf("double delete: expected ErrMetricNotFound, got %v", err)
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	defer store.Close()

	if _, err := store.Metric(context.Background(), "missing"); !errors.Is(err, ErrMetricNotFound) {
		t.Errorf("expected ErrMetricNotFound, got %v", err)
	}
}

func TestSQLiteStore_Closed(t *testing.T) {
	store, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	if err := store.SaveMetric(ctx, &Metric{Name: "m"}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("SaveMetric after close: expected ErrStoreClosed, got %v", err)
	}
	if _, err := store.Metric(ctx, "m"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Metric after close: expected ErrStoreClosed, got %v", err)
	}
}
