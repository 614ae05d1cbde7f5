package trip

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chrissnell/tmdtools/internal/errkind"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		ok     bool
		mode   string
		sensor string
		start  int64
		end    int64
	}{
		{"plain", "walking_1600000000000_gps_1600000600000.csv", true, "walking", "gps", 1600000000000, 1600000600000},
		{"with directory", "/data/abcd/car_10_accelerometer_20.csv", true, "car", "accelerometer", 10, 20},
		{"no extension", "bus_1_gyroscope_2", true, "bus", "gyroscope", 1, 2},
		{"too few parts", "walking_1600000000000_gps.csv", false, "", "", 0, 0},
		{"too many parts", "e_scooter_1_gps_2.csv", false, "", "", 0, 0},
		{"non numeric start", "walking_start_gps_2.csv", false, "", "", 0, 0},
		{"uids registry", "uids.json", false, "", "", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := ParseFilename(tt.path)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if f.Mode != tt.mode || f.Sensor != tt.sensor {
				t.Errorf("mode/sensor = %s/%s, want %s/%s", f.Mode, f.Sensor, tt.mode, tt.sensor)
			}
			if f.Start.UnixMilli() != tt.start || f.End.UnixMilli() != tt.end {
				t.Errorf("start/end = %d/%d, want %d/%d", f.Start.UnixMilli(), f.End.UnixMilli(), tt.start, tt.end)
			}
			if f.Path != tt.path {
				t.Errorf("Path = %s", f.Path)
			}
		})
	}
}

func TestReadCSVKnownSensor(t *testing.T) {
	doc := "1000,0.1,0.2,9.8\n2000,0.3,oops,9.7\n3000,0.5,0.6\nbad,1,2,3\n4000,1,2,3,extra\n"
	tbl, err := ReadCSV(strings.NewReader(doc), SensorAccelerometer)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}

	if got := tbl.Columns(); strings.Join(got, ",") != "x,y,z" {
		t.Errorf("columns = %v", got)
	}
	wantIndex := []int64{1000, 2000, 3000, 4000}
	if got := tbl.Index(); len(got) != len(wantIndex) {
		t.Fatalf("index = %v, want %v", got, wantIndex)
	}
	y, _ := tbl.Column("y")
	if !math.IsNaN(y[1]) {
		t.Errorf("unparsable field = %v, want NaN", y[1])
	}
	z, _ := tbl.Column("z")
	if !math.IsNaN(z[2]) {
		t.Errorf("missing field = %v, want NaN", z[2])
	}
	if z[3] != 3 {
		t.Errorf("z[3] = %v, want 3", z[3])
	}
}

func TestReadCSVGPSIgnoresTrailingField(t *testing.T) {
	doc := "1000,48.85,2.35,35,5,1.5,0,90,\n"
	tbl, err := ReadCSV(strings.NewReader(doc), SensorGPS)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(tbl.Columns()) != 7 {
		t.Fatalf("columns = %v", tbl.Columns())
	}
	speed, ok := tbl.Column("speed")
	if !ok || speed[0] != 1.5 {
		t.Errorf("speed = %v", speed)
	}
}

func TestReadCSVUnknownSensor(t *testing.T) {
	doc := "1,10\n2,20,30\n"
	tbl, err := ReadCSV(strings.NewReader(doc), "magnetometer")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if got := strings.Join(tbl.Columns(), ","); got != "c1,c2" {
		t.Fatalf("columns = %s", got)
	}
	c2, _ := tbl.Column("c2")
	if !math.IsNaN(c2[0]) || c2[1] != 30 {
		t.Errorf("c2 = %v", c2)
	}
}

func TestReadCSVInvalidUTF8(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("1000,\xff\xfe,1,2\n"), SensorAccelerometer)
	if !errors.Is(err, errkind.ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

func TestTripString(t *testing.T) {
	start := time.Date(2021, 3, 4, 15, 4, 5, 0, time.UTC)
	tr := New(start, start.Add(12*time.Minute+3*time.Second), "walking")
	tr.Data[SensorGPS] = &SensorFile{}
	tr.Data[SensorAccelerometer] = &SensorFile{}
	tr.Data[SensorGyroscope] = &SensorFile{}

	want := "Trip(03/04/21 at 15:04:05, walking, 12mn3s, 3 files)"
	if got := tr.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	long := New(start, start.Add(time.Hour+2*time.Minute+3*time.Second), "car")
	if got := formatDuration(long.Duration()); got != "1h2mn3s" {
		t.Errorf("formatDuration = %q, want 1h2mn3s", got)
	}
}

func TestTripLess(t *testing.T) {
	base := time.UnixMilli(1000)
	a := New(base, base.Add(time.Minute), "bus")
	b := New(base, base.Add(time.Minute), "car")
	c := New(base, base.Add(2*time.Minute), "car")
	d := New(base.Add(time.Second), base.Add(time.Minute), "bus")

	ordered := []*Trip{a, b, c, d}
	for i := 0; i < len(ordered)-1; i++ {
		if !ordered[i].Less(ordered[i+1]) {
			t.Errorf("%v should sort before %v", ordered[i], ordered[i+1])
		}
		if ordered[i+1].Less(ordered[i]) {
			t.Errorf("%v should not sort before %v", ordered[i+1], ordered[i])
		}
	}
}

func TestTripNames(t *testing.T) {
	f, _ := ParseFilename("/data/e631f0/cycling_1000_accelerometer_9000.csv")
	tr := New(f.Start, f.End, f.Mode)
	tr.Data[f.Sensor] = &f

	if got := tr.Stem(); got != "cycling_1000_accelerometer_9000" {
		t.Errorf("Stem() = %q", got)
	}
	if got := tr.RelPath(); got != filepath.Join("e631f0", "cycling_1000_accelerometer_9000.csv") {
		t.Errorf("RelPath() = %q", got)
	}
	if got := tr.UID(); got != "e631f0" {
		t.Errorf("UID() = %q", got)
	}
	if got := tr.Title(); got != "e631f0/cycling_1000" {
		t.Errorf("Title() = %q", got)
	}
}

func writeFile(t *testing.T, dir, name, content string) *SensorFile {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	f, ok := ParseFilename(path)
	if !ok {
		t.Fatalf("cannot parse %s", name)
	}
	return &f
}

func TestLoadSensorTables(t *testing.T) {
	dir := t.TempDir()
	accel := writeFile(t, dir, "car_1000_accelerometer_5000.csv",
		"3000,3,4,0\n1000,0,0,1\n2000,NaN,0,0\n1000,9,9,9\n4000,0,3,4\n")
	gps := writeFile(t, dir, "car_1000_gps_5000.csv",
		"500,1,1,1,1,2,0,0\n1000,1,1,1,1,3,0,0\n3000,1,1,1,1,4,0,0\n4500,1,1,1,1,5,0,0\n")

	tr := New(accel.Start, accel.End, "car")
	tr.Data[SensorAccelerometer] = accel
	tr.Data[SensorGPS] = gps

	at, gt, err := LoadSensorTables(tr)
	if err != nil {
		t.Fatalf("LoadSensorTables: %v", err)
	}

	wantIndex := []int64{1000, 3000, 4000}
	if got := at.Index(); len(got) != 3 || got[0] != wantIndex[0] || got[1] != wantIndex[1] || got[2] != wantIndex[2] {
		t.Errorf("accelerometer index = %v, want %v", got, wantIndex)
	}
	norm, ok := at.Column(NormColumn)
	if !ok || norm[0] != 1 || norm[1] != 5 || norm[2] != 5 {
		t.Errorf("norm = %v, want [1 5 5]", norm)
	}
	if got := gt.Index(); len(got) != 2 || got[0] != 1000 || got[1] != 3000 {
		t.Errorf("gps index = %v, want [1000 3000]", got)
	}
}

func TestLoadSensorTablesMissingSensors(t *testing.T) {
	dir := t.TempDir()
	accel := writeFile(t, dir, "walk_1_accelerometer_2.csv", "1,0,0,1\n")

	noGPS := New(accel.Start, accel.End, "walk")
	noGPS.Data[SensorAccelerometer] = accel
	at, _, err := LoadSensorTables(noGPS)
	if !errors.Is(err, errkind.ErrNoGPSData) {
		t.Errorf("error = %v, want ErrNoGPSData", err)
	}
	if at == nil || at.Len() != 1 {
		t.Error("accelerometer table should still be returned")
	}

	noAccel := New(accel.Start, accel.End, "walk")
	if _, _, err := LoadSensorTables(noAccel); !errors.Is(err, errkind.ErrMalformedInput) {
		t.Errorf("error = %v, want ErrMalformedInput", err)
	}
}
