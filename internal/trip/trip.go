package trip

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Trip gathers the sensor files recorded together: same mode, same start
// and same end.
type Trip struct {
	Start time.Time
	End   time.Time
	Mode  string
	Data  map[string]*SensorFile
}

// New returns an empty trip.
func New(start, end time.Time, mode string) *Trip {
	return &Trip{Start: start, End: end, Mode: mode, Data: make(map[string]*SensorFile)}
}

// Duration is the span between the trip's start and end.
func (t *Trip) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// Has reports whether the trip holds a file for sensor.
func (t *Trip) Has(sensor string) bool {
	_, ok := t.Data[sensor]
	return ok
}

// Less orders trips by start, then mode, then end.
func (t *Trip) Less(o *Trip) bool {
	if !t.Start.Equal(o.Start) {
		return t.Start.Before(o.Start)
	}
	if t.Mode != o.Mode {
		return t.Mode < o.Mode
	}
	return t.End.Before(o.End)
}

func (t *Trip) String() string {
	return fmt.Sprintf("Trip(%s, %s, %s, %d files)",
		t.Start.Format("01/02/06 at 15:04:05"), t.Mode, formatDuration(t.Duration()), len(t.Data))
}

// reference returns the file naming the trip's outputs: the accelerometer
// recording when present, any other file otherwise.
func (t *Trip) reference() *SensorFile {
	if f, ok := t.Data[SensorAccelerometer]; ok {
		return f
	}
	var ref *SensorFile
	for _, f := range t.Data {
		if ref == nil || f.Sensor < ref.Sensor {
			ref = f
		}
	}
	return ref
}

// Stem is the stem of the accelerometer file, used to name segment archives.
func (t *Trip) Stem() string {
	if ref := t.reference(); ref != nil {
		return ref.Stem()
	}
	return ""
}

// RelPath is the reference file path relative to the data directory.
func (t *Trip) RelPath() string {
	if ref := t.reference(); ref != nil {
		return ref.RelPath()
	}
	return ""
}

// UID is the name of the user directory holding the trip's files.
func (t *Trip) UID() string {
	rel := t.RelPath()
	if rel == "" {
		return ""
	}
	return filepath.Base(filepath.Dir(rel))
}

// Title is <uid>/<mode>_<startMs>, the short name used in plot titles and
// progress logs.
func (t *Trip) Title() string {
	rel := t.RelPath()
	if rel == "" {
		return fmt.Sprintf("%s_%d", t.Mode, t.Start.UnixMilli())
	}
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	// drop _<sensor>_<end>
	for range 2 {
		if i := strings.LastIndexByte(stem, '_'); i >= 0 {
			stem = stem[:i]
		}
	}
	return filepath.ToSlash(stem)
}

// formatDuration renders d as 12mn3s, or 1h2mn3s above one hour.
func formatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	neg := secs < 0
	if neg {
		secs = -secs
	}
	h, rem := secs/3600, secs%3600
	m, s := rem/60, rem%60
	var out string
	if secs > 3600 {
		out = fmt.Sprintf("%dh%dmn%ds", h, m, s)
	} else {
		out = fmt.Sprintf("%dmn%ds", h*60+m, s)
	}
	if neg {
		out = "-" + out
	}
	return out
}
