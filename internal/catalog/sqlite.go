package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trips (
	path         TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	uid          TEXT NOT NULL,
	mode         TEXT NOT NULL,
	start_ms     INTEGER NOT NULL,
	end_ms       INTEGER NOT NULL,
	segments     INTEGER NOT NULL,
	distance_m   REAL,
	plot         TEXT,
	processed_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
	trip_path TEXT NOT NULL REFERENCES trips(path),
	seq       INTEGER NOT NULL,
	label     TEXT NOT NULL,
	row_count INTEGER NOT NULL,
	first_ms  INTEGER NOT NULL,
	last_ms   INTEGER NOT NULL,
	path      TEXT NOT NULL,
	mean_norm REAL,
	std_norm  REAL,
	PRIMARY KEY (trip_path, seq)
);
CREATE INDEX IF NOT EXISTS idx_segments_label ON segments(label);
`

// SQLiteCatalog implements Catalog on a SQLite file
type SQLiteCatalog struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteCatalog opens (and creates if needed) the catalog at dbPath
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// workers share one connection so writes never race for the file lock
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}

	return &SQLiteCatalog{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// RecordTrip replaces the records of a trip in one transaction
func (s *SQLiteCatalog) RecordTrip(ctx context.Context, trip TripRecord, segments []SegmentRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM segments WHERE trip_path = ?", trip.Path); err != nil {
		return fmt.Errorf("failed to clear segments of %s: %w", trip.Path, err)
	}

	processedAt := trip.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO trips (path, run_id, uid, mode, start_ms, end_ms, segments, distance_m, plot, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trip.Path, trip.RunID, trip.UID, trip.Mode, trip.StartMs, trip.EndMs,
		len(segments), trip.DistanceM, trip.Plot, processedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip %s: %w", trip.Path, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (trip_path, seq, label, row_count, first_ms, last_ms, path, mean_norm, std_norm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for _, seg := range segments {
		_, err := stmt.ExecContext(ctx, trip.Path, seg.Seq, seg.Label, seg.Rows,
			seg.FirstMs, seg.LastMs, seg.Path, seg.MeanNorm, seg.StdNorm)
		if err != nil {
			return fmt.Errorf("failed to insert segment %d of %s: %w", seg.Seq, trip.Path, err)
		}
	}

	return tx.Commit()
}

// Trips returns every trip record ordered by path
func (s *SQLiteCatalog) Trips(ctx context.Context) ([]TripRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, run_id, uid, mode, start_ms, end_ms, segments, distance_m, plot, processed_at
		FROM trips
		ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	var trips []TripRecord
	for rows.Next() {
		var t TripRecord
		var plot sql.NullString
		var distance sql.NullFloat64
		if err := rows.Scan(&t.Path, &t.RunID, &t.UID, &t.Mode, &t.StartMs, &t.EndMs,
			&t.Segments, &distance, &plot, &t.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trip row: %w", err)
		}
		if plot.Valid {
			t.Plot = plot.String
		}
		t.DistanceM = distance.Float64
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// Segments returns the segments of a trip in sequence order
func (s *SQLiteCatalog) Segments(ctx context.Context, tripPath string) ([]SegmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trip_path, seq, label, row_count, first_ms, last_ms, path, mean_norm, std_norm
		FROM segments
		WHERE trip_path = ?
		ORDER BY seq`, tripPath)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var segments []SegmentRecord
	for rows.Next() {
		var seg SegmentRecord
		var mean, std sql.NullFloat64
		if err := rows.Scan(&seg.TripPath, &seg.Seq, &seg.Label, &seg.Rows, &seg.FirstMs,
			&seg.LastMs, &seg.Path, &mean, &std); err != nil {
			return nil, fmt.Errorf("failed to scan segment row: %w", err)
		}
		seg.MeanNorm, seg.StdNorm = mean.Float64, std.Float64
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// Close closes the database connection
func (s *SQLiteCatalog) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
