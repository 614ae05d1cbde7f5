package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/chrissnell/tmdtools/internal/errkind"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// YAML mirror of ConfigData. Pointer fields distinguish "unset" from zero so
// that defaults survive partial files.
type configYAML struct {
	DataDir             string           `yaml:"data_dir"`
	OutputDir           string           `yaml:"output_dir"`
	MinTripDuration     string           `yaml:"min_trip_duration"`
	Workers             *int             `yaml:"workers"`
	AbortOnUnclassified *bool            `yaml:"abort_on_unclassified"`
	ContinueOn          []string         `yaml:"continue_on"`
	Segmentation        segmentationYAML `yaml:"segmentation"`
	Plots               plotYAML         `yaml:"plots"`
	Catalog             CatalogData      `yaml:"catalog"`
	Server              ServerData       `yaml:"server"`
	Log                 logYAML          `yaml:"log"`
}

type segmentationYAML struct {
	EndpointWindow string   `yaml:"endpoint_window"`
	StillEpsilon   *float64 `yaml:"still_epsilon"`
	StillMinRun    *int     `yaml:"still_min_run"`
	InvalidMinRun  *int     `yaml:"invalid_min_run"`
	ResampleBucket string   `yaml:"resample_bucket"`
	Sentinel       *float64 `yaml:"sentinel"`
}

type plotYAML struct {
	Enabled  *bool `yaml:"enabled"`
	WidthPx  int   `yaml:"width_px"`
	HeightPx int   `yaml:"height_px"`
}

type logYAML struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := Parse(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}
	y.config = config
	return config, nil
}

// Parse decodes a YAML document on top of the defaults and validates it.
func Parse(data []byte) (*ConfigData, error) {
	var yc configYAML
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, err
	}

	config := Default()
	config.DataDir = yc.DataDir
	if yc.OutputDir != "" {
		config.OutputDir = yc.OutputDir
	}
	if err := setDuration(&config.MinTripDuration, "min_trip_duration", yc.MinTripDuration); err != nil {
		return nil, err
	}
	if yc.Workers != nil {
		config.Workers = *yc.Workers
	}
	if yc.AbortOnUnclassified != nil {
		config.AbortOnUnclassified = *yc.AbortOnUnclassified
	}
	if yc.ContinueOn != nil {
		config.ContinueOn = config.ContinueOn[:0]
		for _, s := range yc.ContinueOn {
			kind, ok := errkind.ParseKind(s)
			if !ok {
				return nil, fmt.Errorf("continue_on: unknown failure class %q", s)
			}
			config.ContinueOn = append(config.ContinueOn, kind)
		}
	}

	seg := &config.Segmentation
	if err := setDuration(&seg.EndpointWindow, "segmentation.endpoint_window", yc.Segmentation.EndpointWindow); err != nil {
		return nil, err
	}
	if err := setDuration(&seg.ResampleBucket, "segmentation.resample_bucket", yc.Segmentation.ResampleBucket); err != nil {
		return nil, err
	}
	if yc.Segmentation.StillEpsilon != nil {
		seg.StillEpsilon = *yc.Segmentation.StillEpsilon
	}
	if yc.Segmentation.StillMinRun != nil {
		seg.StillMinRun = *yc.Segmentation.StillMinRun
	}
	if yc.Segmentation.InvalidMinRun != nil {
		seg.InvalidMinRun = *yc.Segmentation.InvalidMinRun
	}
	if yc.Segmentation.Sentinel != nil {
		seg.Sentinel = *yc.Segmentation.Sentinel
	}

	if yc.Plots.Enabled != nil {
		config.Plots.Enabled = *yc.Plots.Enabled
	}
	if yc.Plots.WidthPx != 0 {
		config.Plots.WidthPx = yc.Plots.WidthPx
	}
	if yc.Plots.HeightPx != 0 {
		config.Plots.HeightPx = yc.Plots.HeightPx
	}

	if yc.Catalog.Backend != "" {
		config.Catalog.Backend = yc.Catalog.Backend
	}
	config.Catalog.DSN = yc.Catalog.DSN

	if yc.Server.ListenAddr != "" {
		config.Server.ListenAddr = yc.Server.ListenAddr
	}
	if yc.Server.Port != 0 {
		config.Server.Port = yc.Server.Port
	}

	config.Log = LogData{
		File:       yc.Log.File,
		MaxSizeMB:  yc.Log.MaxSizeMB,
		MaxBackups: yc.Log.MaxBackups,
		MaxAgeDays: yc.Log.MaxAgeDays,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDuration(dst *time.Duration, key, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// IsReadOnly returns true for YAML provider (no write operations supported)
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// Load reads the YAML configuration at filename. An empty filename yields the
// defaults.
func Load(filename string) (*ConfigData, error) {
	if filename == "" {
		return Default(), nil
	}
	return NewYAMLProvider(filename).LoadConfig()
}
