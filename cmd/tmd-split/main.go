// tmd-split cuts every trip of a data directory into labelled segments.
//
// Usage: tmd-split [flags] <input_dir> <output_dir>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/chrissnell/tmdtools/internal/catalog"
	"github.com/chrissnell/tmdtools/internal/datadir"
	"github.com/chrissnell/tmdtools/internal/log"
	"github.com/chrissnell/tmdtools/internal/pipeline"
	"github.com/chrissnell/tmdtools/internal/segment"
	"github.com/chrissnell/tmdtools/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "", "Path to a YAML configuration file (defaults are used when omitted)")
	workers := flag.Int("workers", 0, "Number of trips processed concurrently (overrides the config file)")
	noPlots := flag.Bool("no-plots", false, "Do not render diagnostic figures")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <input_dir> <output_dir>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("tmd-split %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	switch flag.NArg() {
	case 2:
		cfg.DataDir, cfg.OutputDir = flag.Arg(0), flag.Arg(1)
	case 0:
		if cfg.DataDir == "" {
			flag.Usage()
			os.Exit(2)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *noPlots {
		cfg.Plots.Enabled = false
	}

	if err := log.InitWithFile(*debug, log.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg); err != nil {
		log.Errorf("Segmentation failed: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.ConfigData) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := datadir.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening data directory %s: %w", cfg.DataDir, err)
	}

	cat, err := catalog.Open(cfg.Catalog.Backend, cfg.Catalog.DSN, cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer cat.Close()

	runner, err := pipeline.NewRunner(dir, cat, pipeline.Options{
		OutputDir:       cfg.OutputDir,
		MinTripDuration: cfg.MinTripDuration,
		Workers:         cfg.Workers,
		Params:          segmentParams(cfg.Segmentation),
		Plots:           cfg.Plots.Enabled,
		PlotWidth:       cfg.Plots.WidthPx,
		PlotHeight:      cfg.Plots.HeightPx,
		Policy:          pipeline.NewPolicy(cfg.ContinueOn, cfg.AbortOnUnclassified),
	}, log.GetSugaredLogger())
	if err != nil {
		return err
	}

	_, err = runner.Run(ctx)
	return err
}

func segmentParams(s config.SegmentationData) segment.Params {
	return segment.Params{
		EndpointWindow: s.EndpointWindow,
		StillEpsilon:   s.StillEpsilon,
		StillMinRun:    s.StillMinRun,
		InvalidMinRun:  s.InvalidMinRun,
		Bucket:         s.ResampleBucket,
		Sentinel:       s.Sentinel,
	}
}
