package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteRecordTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "out", DefaultSQLiteFile))
	if err != nil {
		t.Fatalf("NewSQLiteCatalog: %v", err)
	}
	defer c.Close()

	trip := TripRecord{
		Path:        "e631/walking_1000_accelerometer_9000.csv",
		RunID:       "run-1",
		UID:         "e631",
		Mode:        "walking",
		StartMs:     1000,
		EndMs:       9000,
		DistanceM:   412.5,
		ProcessedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	segments := []SegmentRecord{
		{Seq: 0, Label: "endpoints", Rows: 60, FirstMs: 1000, LastMs: 60000, Path: "endpoints/a-000.zip", MeanNorm: 9.8},
		{Seq: 1, Label: "walking", Rows: 120, FirstMs: 61000, LastMs: 180000, Path: "walking/a-001.zip", MeanNorm: 10.1, StdNorm: 0.4},
	}
	if err := c.RecordTrip(ctx, trip, segments); err != nil {
		t.Fatalf("RecordTrip: %v", err)
	}

	trips, err := c.Trips(ctx)
	if err != nil {
		t.Fatalf("Trips: %v", err)
	}
	if len(trips) != 1 {
		t.Fatalf("got %d trips, want 1", len(trips))
	}
	got := trips[0]
	if got.Path != trip.Path || got.Segments != 2 || got.Mode != "walking" || got.RunID != "run-1" || got.DistanceM != 412.5 {
		t.Errorf("trip = %+v", got)
	}
	if !got.ProcessedAt.Equal(trip.ProcessedAt) {
		t.Errorf("ProcessedAt = %v, want %v", got.ProcessedAt, trip.ProcessedAt)
	}

	segs, err := c.Segments(ctx, trip.Path)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segs) != 2 || segs[1].Label != "walking" || segs[1].StdNorm != 0.4 || segs[1].TripPath != trip.Path {
		t.Errorf("segments = %+v", segs)
	}
}

func TestSQLiteRecordTripReplaces(t *testing.T) {
	ctx := context.Background()
	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), DefaultSQLiteFile))
	if err != nil {
		t.Fatalf("NewSQLiteCatalog: %v", err)
	}
	defer c.Close()

	trip := TripRecord{Path: "u/car_1_accelerometer_2.csv", RunID: "first", UID: "u", Mode: "car"}
	first := []SegmentRecord{{Seq: 0, Label: "car"}, {Seq: 1, Label: "still"}, {Seq: 2, Label: "car"}}
	if err := c.RecordTrip(ctx, trip, first); err != nil {
		t.Fatalf("RecordTrip: %v", err)
	}

	trip.RunID = "second"
	if err := c.RecordTrip(ctx, trip, first[:1]); err != nil {
		t.Fatalf("RecordTrip again: %v", err)
	}

	trips, _ := c.Trips(ctx)
	if len(trips) != 1 || trips[0].RunID != "second" || trips[0].Segments != 1 {
		t.Errorf("trips = %+v", trips)
	}
	segs, _ := c.Segments(ctx, trip.Path)
	if len(segs) != 1 {
		t.Errorf("got %d segments after replace, want 1", len(segs))
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(BackendSQLite, "", dir)
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	sc, ok := c.(*SQLiteCatalog)
	if !ok {
		t.Fatalf("Open(sqlite) returned %T", c)
	}
	if want := filepath.Join(dir, DefaultSQLiteFile); sc.dbPath != want {
		t.Errorf("dbPath = %s, want %s", sc.dbPath, want)
	}
	c.Close()

	c, err = Open(BackendNone, "", dir)
	if err != nil {
		t.Fatalf("Open(none): %v", err)
	}
	if _, ok := c.(Nop); !ok {
		t.Errorf("Open(none) returned %T", c)
	}

	if _, err := Open("mysql", "", dir); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := Open(BackendPostgres, "", dir); err == nil {
		t.Error("expected error for postgres without DSN")
	}
}
