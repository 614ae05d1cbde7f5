// Package trip reads the raw sensor recordings uploaded by the collection app
// and groups them into trips.
package trip

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chrissnell/tmdtools/internal/errkind"
	"github.com/chrissnell/tmdtools/internal/timeseries"
)

// Sensor names as they appear in raw file names.
const (
	SensorGPS           = "gps"
	SensorAccelerometer = "accelerometer"
	SensorGyroscope     = "gyroscope"
)

// IndexColumn is the name of the leading timestamp column of every sensor file.
const IndexColumn = "ms"

// SensorColumns lists the value columns (after IndexColumn) of each known
// sensor. Extra trailing fields in a file are ignored.
var SensorColumns = map[string][]string{
	SensorGPS: {
		"latitude",      // degrees
		"longitude",     // degrees
		"altitude",      // meters above the WGS 84 ellipsoid
		"accuracy",      // horizontal, meters
		"speed",         // m/s
		"speedAccuracy", // m/s, always 0 on iOS
		"heading",
	},
	SensorAccelerometer: {"x", "y", "z"},
	SensorGyroscope:     {"x", "y", "z"},
}

// SensorFile is one raw recording named <mode>_<startMs>_<sensor>_<endMs>.csv.
type SensorFile struct {
	Mode   string
	Sensor string
	Start  time.Time
	End    time.Time
	Path   string
}

// ParseFilename decodes the trip metadata carried by a raw file name. The
// directory part and the extension are ignored. ok is false when the name
// does not follow the contract.
func ParseFilename(path string) (SensorFile, bool) {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	parts := strings.Split(name, "_")
	if len(parts) != 4 {
		return SensorFile{}, false
	}
	start, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return SensorFile{}, false
	}
	end, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return SensorFile{}, false
	}
	return SensorFile{
		Mode:   parts[0],
		Sensor: parts[2],
		Start:  time.UnixMilli(start).UTC(),
		End:    time.UnixMilli(end).UTC(),
		Path:   path,
	}, true
}

// Duration is the recording span announced by the file name.
func (f SensorFile) Duration() time.Duration {
	return f.End.Sub(f.Start)
}

// Stem is the file name without directory and extension.
func (f SensorFile) Stem() string {
	name := filepath.Base(f.Path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// RelPath returns the path relative to the data directory, i.e. <uid>/<file>.
func (f SensorFile) RelPath() string {
	return filepath.Join(filepath.Base(filepath.Dir(f.Path)), filepath.Base(f.Path))
}

func (f SensorFile) String() string {
	return fmt.Sprintf("SensorFile(%s %s %s %s)", f.Mode, f.Sensor,
		f.Start.Format("01/02/06 at 15:04:05"), formatDuration(f.Duration()))
}

// Read loads the file into a table indexed by milliseconds since epoch.
func (f SensorFile) Read() (*timeseries.Table, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Path, err)
	}
	tbl, err := ReadCSV(bytes.NewReader(raw), f.Sensor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return tbl, nil
}

// ReadCSV parses a headerless sensor CSV. Known sensors use the columns of
// SensorColumns; other sensors keep every field under generated names.
// Fields that do not parse as numbers become NaN and rows whose timestamp
// does not parse are skipped.
func ReadCSV(r io.Reader, sensor string) (*timeseries.Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid UTF-8", errkind.ErrDecode)
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	columns, known := SensorColumns[sensor]
	var (
		index []int64
		data  [][]float64
	)
	if known {
		data = make([][]float64, len(columns))
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errkind.ErrDecode, err)
		}
		ts, ok := parseTimestamp(record[0])
		if !ok {
			continue
		}
		if !known && len(record)-1 > len(data) {
			// widen, padding earlier rows with NaN
			for len(data) < len(record)-1 {
				data = append(data, nanColumn(len(index)))
			}
		}
		index = append(index, ts)
		for i := range data {
			v := math.NaN()
			if i+1 < len(record) {
				v = parseValue(record[i+1])
			}
			data[i] = append(data[i], v)
		}
	}

	if !known {
		columns = make([]string, len(data))
		for i := range columns {
			columns[i] = "c" + strconv.Itoa(i+1)
		}
	} else {
		columns = append([]string(nil), columns...)
	}
	for i := range data {
		if data[i] == nil {
			data[i] = []float64{}
		}
	}
	return timeseries.NewTable(index, columns, data)
}

func parseTimestamp(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return int64(v), true
}

func parseValue(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func nanColumn(n int) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = math.NaN()
	}
	return c
}
