// tmd-server receives registrations and sensor uploads from the collection
// app and stores them in a data directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/chrissnell/tmdtools/internal/ingest"
	"github.com/chrissnell/tmdtools/internal/log"
	"github.com/chrissnell/tmdtools/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "", "Path to a YAML configuration file (defaults are used when omitted)")
	dataDir := flag.String("data", "", "Data directory (overrides data_dir from the config file)")
	port := flag.Int("port", 0, "Listen port (overrides server.port)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tmd-server %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if *port != 0 {
		cfg.Server.Port = *port
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	ctrl, err := ingest.NewController(ctx, &wg, cfg.DataDir, cfg.Server.ListenAddr, cfg.Server.Port, log.GetSugaredLogger())
	if err != nil {
		log.Errorf("Failed to create upload server: %v", err)
		log.Sync()
		os.Exit(1)
	}
	if err := ctrl.StartController(); err != nil {
		log.Errorf("Failed to start upload server: %v", err)
		log.Sync()
		os.Exit(1)
	}

	wg.Wait()
}
