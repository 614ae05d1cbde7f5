package catalog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/tmdtools/internal/log"
)

// PostgresCatalog implements Catalog on a PostgreSQL database through gorm
type PostgresCatalog struct {
	DB *gorm.DB
}

// NewPostgresCatalog connects to dsn and migrates the catalog tables
func NewPostgresCatalog(dsn string) (*PostgresCatalog, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres catalog requires a connection string")
	}

	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Info("connecting to catalog database...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warn("warning: unable to create a catalog database connection:", err)
		return nil, err
	}

	if err := db.AutoMigrate(&TripRecord{}, &SegmentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog tables: %w", err)
	}
	log.Info("catalog database connection successful")

	return &PostgresCatalog{DB: db}, nil
}

// RecordTrip replaces the records of a trip in one transaction
func (p *PostgresCatalog) RecordTrip(ctx context.Context, trip TripRecord, segments []SegmentRecord) error {
	if trip.ProcessedAt.IsZero() {
		trip.ProcessedAt = time.Now().UTC()
	}
	trip.Segments = len(segments)

	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trip_path = ?", trip.Path).Delete(&SegmentRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear segments of %s: %w", trip.Path, err)
		}
		if err := tx.Save(&trip).Error; err != nil {
			return fmt.Errorf("failed to save trip %s: %w", trip.Path, err)
		}
		if len(segments) == 0 {
			return nil
		}
		rows := make([]SegmentRecord, len(segments))
		for i, seg := range segments {
			seg.TripPath = trip.Path
			rows[i] = seg
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert segments of %s: %w", trip.Path, err)
		}
		return nil
	})
}

// Trips returns every trip record ordered by path
func (p *PostgresCatalog) Trips(ctx context.Context) ([]TripRecord, error) {
	var trips []TripRecord
	if err := p.DB.WithContext(ctx).Order("path").Find(&trips).Error; err != nil {
		return nil, fmt.Errorf("error querying trips: %w", err)
	}
	return trips, nil
}

// Segments returns the segments of a trip in sequence order
func (p *PostgresCatalog) Segments(ctx context.Context, tripPath string) ([]SegmentRecord, error) {
	var segments []SegmentRecord
	if err := p.DB.WithContext(ctx).Where("trip_path = ?", tripPath).Order("seq").Find(&segments).Error; err != nil {
		return nil, fmt.Errorf("error querying segments: %w", err)
	}
	return segments, nil
}

// Close closes the underlying connection pool
func (p *PostgresCatalog) Close() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
