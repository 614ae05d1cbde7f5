// Package catalog records the trips processed by a batch run and the
// segments written for each of them.
package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// TripRecord describes one processed trip.
type TripRecord struct {
	Path        string    `gorm:"primaryKey;column:path"` // <uid>/<file>, relative to the data directory
	RunID       string    `gorm:"column:run_id;index"`
	UID         string    `gorm:"column:uid;index"`
	Mode        string    `gorm:"column:mode;index"`
	StartMs     int64     `gorm:"column:start_ms"`
	EndMs       int64     `gorm:"column:end_ms"`
	Segments    int       `gorm:"column:segments"`
	DistanceM   float64   `gorm:"column:distance_m"` // GPS path length
	Plot        string    `gorm:"column:plot"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

// TableName specifies the table name for TripRecord
func (TripRecord) TableName() string {
	return "trips"
}

// SegmentRecord describes one segment archive.
type SegmentRecord struct {
	TripPath string  `gorm:"primaryKey;column:trip_path"`
	Seq      int     `gorm:"primaryKey;column:seq"`
	Label    string  `gorm:"column:label;index"`
	Rows     int     `gorm:"column:row_count"`
	FirstMs  int64   `gorm:"column:first_ms"`
	LastMs   int64   `gorm:"column:last_ms"`
	Path     string  `gorm:"column:path"`
	MeanNorm float64 `gorm:"column:mean_norm"`
	StdNorm  float64 `gorm:"column:std_norm"`
}

// TableName specifies the table name for SegmentRecord
func (SegmentRecord) TableName() string {
	return "segments"
}

// Catalog stores trip and segment records. Recording a trip again replaces
// its previous records.
type Catalog interface {
	RecordTrip(ctx context.Context, trip TripRecord, segments []SegmentRecord) error
	Trips(ctx context.Context) ([]TripRecord, error)
	Segments(ctx context.Context, tripPath string) ([]SegmentRecord, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// DefaultSQLiteFile is the catalog file created in the output directory
// when no DSN is configured.
const DefaultSQLiteFile = "catalog.db"

// Open returns the catalog for backend. For SQLite an empty dsn selects
// DefaultSQLiteFile inside outputDir.
func Open(backend, dsn, outputDir string) (Catalog, error) {
	switch backend {
	case BackendSQLite:
		if dsn == "" {
			dsn = filepath.Join(outputDir, DefaultSQLiteFile)
		}
		return NewSQLiteCatalog(dsn)
	case BackendPostgres:
		return NewPostgresCatalog(dsn)
	case BackendNone, "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unsupported catalog backend %q", backend)
	}
}

// Nop discards every record.
type Nop struct{}

func (Nop) RecordTrip(context.Context, TripRecord, []SegmentRecord) error { return nil }

func (Nop) Trips(context.Context) ([]TripRecord, error) { return nil, nil }

func (Nop) Segments(context.Context, string) ([]SegmentRecord, error) { return nil, nil }

func (Nop) Close() error { return nil }
