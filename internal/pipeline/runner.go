// Package pipeline drives the segmentation of every trip of a data directory:
// it writes segment archives and diagnostic figures, records what was done in
// the catalog and keeps track of the trips it could not handle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/tmdtools/internal/catalog"
	"github.com/chrissnell/tmdtools/internal/datadir"
	"github.com/chrissnell/tmdtools/internal/errkind"
	"github.com/chrissnell/tmdtools/internal/plot"
	"github.com/chrissnell/tmdtools/internal/segment"
	"github.com/chrissnell/tmdtools/internal/trip"
)

// Sub-directories of the output directory.
const (
	SegmentsDir = "data"
	PlotsDir    = "plots"
)

// Options configures a Runner.
type Options struct {
	OutputDir       string
	MinTripDuration time.Duration
	Workers         int
	Params          segment.Params
	Plots           bool
	PlotWidth       int
	PlotHeight      int
	Policy          Policy
}

// Summary counts what a run did.
type Summary struct {
	RunID        string
	Trips        int // candidate trips
	Processed    int // segmented
	AlreadyDone  int // figure present from an earlier run
	Skipped      int // no GPS or no speed, listed for manual handling
	Failed       int // recorded in the error log
	Segments     int
	PlotFailures int
	Elapsed      time.Duration
}

// Outcome of a single trip.
type Outcome int

const (
	Processed Outcome = iota
	AlreadyDone
	Skipped
)

type counters struct {
	processed, alreadyDone, skipped, failed, segments, plotFailures atomic.Int64
}

// Runner segments the data trips of a directory.
type Runner struct {
	dir      *datadir.Directory
	catalog  catalog.Catalog
	opts     Options
	writer   *segment.Writer
	renderer *plot.Renderer
	errors   *ErrorLog
	skipped  *SkipList
	logger   *zap.SugaredLogger
	runID    string

	stats counters
}

// NewRunner prepares a run over dir. The error log of earlier runs is loaded
// from the output directory.
func NewRunner(dir *datadir.Directory, cat catalog.Catalog, opts Options, logger *zap.SugaredLogger) (*Runner, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if cat == nil {
		cat = catalog.Nop{}
	}
	errLog, err := LoadErrorLog(filepath.Join(opts.OutputDir, ErrorLogFilename))
	if err != nil {
		return nil, fmt.Errorf("loading error log: %w", err)
	}

	return &Runner{
		dir:      dir,
		catalog:  cat,
		opts:     opts,
		writer:   segment.NewWriter(filepath.Join(opts.OutputDir, SegmentsDir)),
		renderer: plot.NewRenderer(filepath.Join(opts.OutputDir, PlotsDir), opts.PlotWidth, opts.PlotHeight),
		errors:   errLog,
		skipped:  NewSkipList(filepath.Join(opts.OutputDir, SkipListFilename)),
		logger:   logger,
		runID:    uuid.New().String(),
	}, nil
}

// RunID identifies this run in the catalog and the error log.
func (r *Runner) RunID() string {
	return r.runID
}

// ErrorLog exposes the error records of this and earlier runs.
func (r *Runner) ErrorLog() *ErrorLog {
	return r.errors
}

// Run processes every data trip longer than the minimum duration. Trip
// failures allowed by the policy are recorded and skipped; any other failure
// cancels the remaining trips and is returned. The error log is flushed in
// both cases.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	started := time.Now()

	trips, err := r.dir.DataTrips(r.opts.MinTripDuration)
	if err != nil {
		return Summary{RunID: r.runID}, fmt.Errorf("listing trips: %w", err)
	}
	r.logger.Infow("starting segmentation run",
		"run_id", r.runID, "trips", len(trips), "workers", r.opts.Workers, "output", r.opts.OutputDir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, t := range trips {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r.logger.Debugf("[%d/%d] %s", i+1, len(trips), t.Title())
			_, err := r.ProcessTrip(gctx, t)
			if err == nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			r.recordFailure(t, err)
			if r.opts.Policy.Continue(err) {
				r.logger.Warnw("trip failed, continuing", "trip", t.RelPath(), "kind", errkind.Classify(err), "error", err)
				return nil
			}
			return fmt.Errorf("%s: %w", t.RelPath(), err)
		})
	}
	runErr := g.Wait()

	summary := r.summary(len(trips), time.Since(started))
	if err := r.errors.Flush(); err != nil {
		r.logger.Errorf("unable to write error log: %v", err)
		runErr = errors.Join(runErr, fmt.Errorf("writing error log: %w", err))
	}

	r.logger.Infow("segmentation run finished",
		"run_id", summary.RunID,
		"trips", summary.Trips,
		"processed", summary.Processed,
		"already_done", summary.AlreadyDone,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"segments", summary.Segments,
		"plot_failures", summary.PlotFailures,
		"elapsed", summary.Elapsed)
	if runErr != nil {
		r.logger.Errorf("run aborted: %v", runErr)
	}
	return summary, runErr
}

// ProcessTrip segments a single trip.
func (r *Runner) ProcessTrip(ctx context.Context, t *trip.Trip) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Processed, err
	}
	if r.opts.Plots && r.renderer.Exists(t) {
		r.stats.alreadyDone.Add(1)
		return AlreadyDone, nil
	}

	accel, gps, err := trip.LoadSensorTables(t)
	if errors.Is(err, errkind.ErrNoGPSData) {
		return r.skip(t, err)
	}
	if err != nil {
		return Processed, err
	}
	speed, err := segment.PrepareSpeed(gps, r.opts.Params)
	if errors.Is(err, errkind.ErrNoSpeedData) {
		return r.skip(t, err)
	}
	if err != nil {
		return Processed, err
	}

	masks, err := segment.BuildMasks(accel, speed, t.Mode, r.opts.Params)
	if err != nil {
		return Processed, err
	}
	seq, err := segment.IterParts(accel, masks)
	if err != nil {
		return Processed, err
	}
	written, err := r.writer.Write(seq, t.Stem(), t.Mode)
	if err != nil {
		return Processed, fmt.Errorf("writing segments: %w", err)
	}

	var figure string
	if r.opts.Plots {
		figure, err = r.renderer.RenderTrip(t, accel, speed.Table(plot.SpeedColumn, gps.Unit()), masks)
		if err != nil {
			// figures are diagnostics only
			r.stats.plotFailures.Add(1)
			r.recordFailure(t, err)
			r.logger.Warnw("unable to render figure", "trip", t.RelPath(), "error", err)
			figure = ""
		}
	}

	if err := r.catalog.RecordTrip(ctx, r.tripRecord(t, trip.PathLength(gps), figure), segmentRecords(t, written)); err != nil {
		return Processed, fmt.Errorf("recording trip in catalog: %w", err)
	}

	r.stats.processed.Add(1)
	r.stats.segments.Add(int64(len(written)))
	r.logger.Infow("trip segmented", "trip", t.Title(), "mode", t.Mode, "segments", len(written))
	return Processed, nil
}

func (r *Runner) skip(t *trip.Trip, cause error) (Outcome, error) {
	if err := r.skipped.Add(t.RelPath()); err != nil {
		return Skipped, fmt.Errorf("updating %s: %w", SkipListFilename, err)
	}
	r.stats.skipped.Add(1)
	r.logger.Infow("trip needs manual handling", "trip", t.RelPath(), "reason", errkind.Classify(cause))
	return Skipped, nil
}

func (r *Runner) recordFailure(t *trip.Trip, err error) {
	if errkind.Classify(err) != errkind.PlottingFailure {
		r.stats.failed.Add(1)
	}
	r.errors.Add(ErrorRecord{
		Kind:    errkind.Classify(err),
		Message: err.Error(),
		Path:    t.RelPath(),
		Time:    time.Now().UTC(),
		RunID:   r.runID,
	})
}

func (r *Runner) tripRecord(t *trip.Trip, distance float64, figure string) catalog.TripRecord {
	return catalog.TripRecord{
		Path:        t.RelPath(),
		RunID:       r.runID,
		UID:         t.UID(),
		Mode:        t.Mode,
		StartMs:     t.Start.UnixMilli(),
		EndMs:       t.End.UnixMilli(),
		DistanceM:   distance,
		Plot:        figure,
		ProcessedAt: time.Now().UTC(),
	}
}

func segmentRecords(t *trip.Trip, written []segment.WrittenSegment) []catalog.SegmentRecord {
	records := make([]catalog.SegmentRecord, len(written))
	for i, ws := range written {
		records[i] = catalog.SegmentRecord{
			TripPath: t.RelPath(),
			Seq:      ws.Seq,
			Label:    ws.Label,
			Rows:     ws.Rows,
			FirstMs:  ws.FirstMs,
			LastMs:   ws.LastMs,
			Path:     ws.Path,
			MeanNorm: ws.MeanNorm,
			StdNorm:  ws.StdNorm,
		}
	}
	return records
}

func (r *Runner) summary(trips int, elapsed time.Duration) Summary {
	return Summary{
		RunID:        r.runID,
		Trips:        trips,
		Processed:    int(r.stats.processed.Load()),
		AlreadyDone:  int(r.stats.alreadyDone.Load()),
		Skipped:      int(r.stats.skipped.Load()),
		Failed:       int(r.stats.failed.Load()),
		Segments:     int(r.stats.segments.Load()),
		PlotFailures: int(r.stats.plotFailures.Load()),
		Elapsed:      elapsed,
	}
}
