package segment

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/tmdtools/internal/timeseries"
)

// WrittenSegment describes one segment file produced by a Writer.
type WrittenSegment struct {
	Seq      int
	Label    string
	Rows     int
	FirstMs  int64
	LastMs   int64
	Path     string
	MeanNorm float64
	StdNorm  float64
}

// Writer persists segmented parts as zipped CSV files laid out as
// <Dir>/<label>/<stem>-<seq>.zip.
type Writer struct {
	Dir       string
	Columns   []string // raw sensor columns to keep, in output order
	IndexName string   // header of the millisecond timestamp column
	NormName  string   // optional derived column summarized per segment
}

// NewWriter returns a writer for accelerometer segments.
func NewWriter(dir string) *Writer {
	return &Writer{
		Dir:       dir,
		Columns:   []string{"x", "y", "z"},
		IndexName: "ms",
		NormName:  "norm",
	}
}

// Write stores every part of seq. Parts without a label are filed under the
// trip's travel mode. The sequence number of a file is its position in seq.
func (w *Writer) Write(seq iter.Seq2[string, *timeseries.Table], stem, mode string) ([]WrittenSegment, error) {
	var written []WrittenSegment
	i := 0
	for label, part := range seq {
		if label == NoLabel {
			label = mode
		}
		ws, err := w.writePart(part, stem, label, i)
		if err != nil {
			return written, err
		}
		written = append(written, ws)
		i++
	}
	return written, nil
}

func (w *Writer) writePart(part *timeseries.Table, stem, label string, seq int) (WrittenSegment, error) {
	name := fmt.Sprintf("%s-%03d", stem, seq)
	path := filepath.Join(w.Dir, label, name+".zip")

	ws := WrittenSegment{
		Seq:   seq,
		Label: label,
		Rows:  part.Len(),
		Path:  path,
	}
	if first, ok := part.FirstValid(); ok {
		ws.FirstMs = toMillis(first, part.Unit())
	}
	if last, ok := part.LastValid(); ok {
		ws.LastMs = toMillis(last, part.Unit())
	}
	if norm, ok := part.Column(w.NormName); ok && len(norm) > 0 {
		ws.MeanNorm, ws.StdNorm = stat.MeanStdDev(norm, nil)
		if len(norm) < 2 {
			ws.StdNorm = 0
		}
	}

	raw, err := part.Select(w.Columns...)
	if err != nil {
		return ws, fmt.Errorf("selecting raw columns of %s: %w", name, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ws, fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return ws, fmt.Errorf("creating segment file: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	entry, err := zw.Create(name + ".csv")
	if err != nil {
		return ws, fmt.Errorf("creating zip entry: %w", err)
	}
	if err := w.writeCSV(entry, raw); err != nil {
		return ws, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return ws, fmt.Errorf("closing zip %s: %w", path, err)
	}
	return ws, f.Close()
}

func (w *Writer) writeCSV(out io.Writer, t *timeseries.Table) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(append([]string{w.IndexName}, t.Columns()...)); err != nil {
		return err
	}

	ncols := len(t.Columns())
	record := make([]string, ncols+1)
	for row, ts := range t.Index() {
		record[0] = strconv.FormatInt(toMillis(ts, t.Unit()), 10)
		for c := 0; c < ncols; c++ {
			record[c+1] = strconv.FormatFloat(t.At(row, c), 'f', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// toMillis converts a tick count of the given unit to integer milliseconds.
func toMillis(ts int64, unit time.Duration) int64 {
	if unit >= time.Millisecond {
		return ts * int64(unit/time.Millisecond)
	}
	return ts / int64(time.Millisecond/unit)
}
