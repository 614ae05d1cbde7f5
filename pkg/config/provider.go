package config

import (
	"fmt"
	"time"

	"github.com/chrissnell/tmdtools/internal/errkind"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	DataDir             string           `json:"data_dir"`
	OutputDir           string           `json:"output_dir"`
	MinTripDuration     time.Duration    `json:"min_trip_duration"`
	Workers             int              `json:"workers"`
	AbortOnUnclassified bool             `json:"abort_on_unclassified"`
	ContinueOn          []errkind.Kind   `json:"continue_on"`
	Segmentation        SegmentationData `json:"segmentation"`
	Plots               PlotData         `json:"plots"`
	Catalog             CatalogData      `json:"catalog"`
	Server              ServerData       `json:"server"`
	Log                 LogData          `json:"log"`
}

// SegmentationData holds the thresholds of the mask builder
type SegmentationData struct {
	EndpointWindow time.Duration `json:"endpoint_window"`
	StillEpsilon   float64       `json:"still_epsilon"`
	StillMinRun    int           `json:"still_min_run"`
	InvalidMinRun  int           `json:"invalid_min_run"`
	ResampleBucket time.Duration `json:"resample_bucket"`
	Sentinel       float64       `json:"sentinel"`
}

// PlotData holds configuration of the diagnostic figures
type PlotData struct {
	Enabled  bool `json:"enabled"`
	WidthPx  int  `json:"width_px"`
	HeightPx int  `json:"height_px"`
}

// CatalogData selects where segment metadata is recorded
type CatalogData struct {
	Backend string `json:"backend" yaml:"backend"` // sqlite, postgres or none
	DSN     string `json:"dsn,omitempty" yaml:"dsn"`
}

// ServerData holds configuration of the upload service
type ServerData struct {
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr"`
	Port       int    `json:"port,omitempty" yaml:"port"`
}

// LogData configures the optional rotating log file
type LogData struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// Default continue-able failure classes. Anything else aborts the batch
// unless AbortOnUnclassified is turned off.
var defaultContinueOn = []errkind.Kind{
	errkind.NoGPSData,
	errkind.NoSpeedData,
	errkind.MalformedInput,
	errkind.PlottingFailure,
	errkind.DecodeFailure,
}

// Default returns a configuration with every field set to its default value.
func Default() *ConfigData {
	return &ConfigData{
		OutputDir:           "./output",
		MinTripDuration:     5 * time.Minute,
		Workers:             1,
		AbortOnUnclassified: true,
		ContinueOn:          append([]errkind.Kind(nil), defaultContinueOn...),
		Segmentation: SegmentationData{
			EndpointWindow: time.Minute,
			StillEpsilon:   0.02,
			StillMinRun:    30,
			InvalidMinRun:  2,
			ResampleBucket: time.Second,
			Sentinel:       -1,
		},
		Plots: PlotData{
			Enabled:  true,
			WidthPx:  2000,
			HeightPx: 500,
		},
		Catalog: CatalogData{
			Backend: "sqlite",
		},
		Server: ServerData{
			ListenAddr: "0.0.0.0",
			Port:       8000,
		},
	}
}

// Validate checks the configuration for values the batch driver cannot use.
func (c *ConfigData) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Segmentation.ResampleBucket <= 0 {
		return fmt.Errorf("segmentation.resample_bucket must be positive")
	}
	if c.Segmentation.StillMinRun < 0 || c.Segmentation.InvalidMinRun < 0 {
		return fmt.Errorf("segmentation run lengths must not be negative")
	}
	switch c.Catalog.Backend {
	case "sqlite", "none":
	case "postgres":
		if c.Catalog.DSN == "" {
			return fmt.Errorf("catalog.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported catalog backend %q. Use 'sqlite', 'postgres' or 'none'", c.Catalog.Backend)
	}
	return nil
}
