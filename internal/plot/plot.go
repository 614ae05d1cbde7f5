// Package plot renders the diagnostic figure of a segmented trip: the three
// accelerometer axes, their norm and the GPS speed, coloured by segment label.
package plot

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/chrissnell/tmdtools/internal/errkind"
	"github.com/chrissnell/tmdtools/internal/segment"
	"github.com/chrissnell/tmdtools/internal/timeseries"
	"github.com/chrissnell/tmdtools/internal/trip"
)

// SpeedColumn is the column plotted in the bottom panel.
const SpeedColumn = "speed"

var accelColumns = []string{"x", "y", "z", trip.NormColumn}

var (
	colorUnlabelled = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	colorOther      = color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff}
)

var labelColors = map[string]color.Color{
	segment.NoLabel:           colorUnlabelled,
	segment.MaskEndpoints:     color.RGBA{R: 0xff, A: 0xff},
	segment.MaskStill:         color.RGBA{R: 0xff, G: 0xa5, A: 0xff},
	segment.MaskInvalidMotion: color.Black,
}

// ColorFor returns the line colour of a segment label.
func ColorFor(label string) color.Color {
	if c, ok := labelColors[label]; ok {
		return c
	}
	return colorOther
}

// Renderer writes PNG figures under Dir.
type Renderer struct {
	Dir    string
	Width  int // pixels
	Height int // pixels
}

// NewRenderer returns a renderer producing width x height pixel figures.
func NewRenderer(dir string, width, height int) *Renderer {
	return &Renderer{Dir: dir, Width: width, Height: height}
}

// Path returns <Dir>/<mode>/<uid>_<file>.png for a trip.
func (r *Renderer) Path(t *trip.Trip) string {
	name := strings.ReplaceAll(filepath.ToSlash(t.RelPath()), "/", "_")
	name = strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
	return filepath.Join(r.Dir, t.Mode, name)
}

// Exists reports whether the figure of t was already rendered.
func (r *Renderer) Exists(t *trip.Trip) bool {
	_, err := os.Stat(r.Path(t))
	return err == nil
}

// RenderTrip renders the figure of t to Path(t).
func (r *Renderer) RenderTrip(t *trip.Trip, accel, speed *timeseries.Table, masks []segment.NamedMask) (string, error) {
	path := r.Path(t)
	return path, r.Render(path, t.Title(), accel, speed, masks)
}

// Render draws accel and speed, split by masks, into a PNG at path. speed
// may be nil. Every failure wraps errkind.ErrPlotting.
func (r *Renderer) Render(path, title string, accel, speed *timeseries.Table, masks []segment.NamedMask) (err error) {
	// gonum/plot panics on some degenerate inputs
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: %v", errkind.ErrPlotting, path, rec)
		}
	}()

	panels, err := r.panels(title, accel, speed, masks)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errkind.ErrPlotting, path, err)
	}
	if err := r.save(path, panels); err != nil {
		return fmt.Errorf("%w: %s: %v", errkind.ErrPlotting, path, err)
	}
	return nil
}

func (r *Renderer) panels(title string, accel, speed *timeseries.Table, masks []segment.NamedMask) ([]*gplot.Plot, error) {
	names := append(append([]string(nil), accelColumns...), SpeedColumn)
	panels := make([]*gplot.Plot, len(names))
	for i, name := range names {
		p := gplot.New()
		p.Y.Label.Text = name
		panels[i] = p
	}
	panels[0].Title.Text = title

	t0, ok := accel.FirstValid()
	if !ok {
		return nil, fmt.Errorf("empty accelerometer table")
	}

	seq, err := segment.IterParts(accel, masks)
	if err != nil {
		return nil, err
	}
	for label, part := range seq {
		for i, col := range accelColumns {
			if err := addLine(panels[i], part, col, t0, label); err != nil {
				return nil, err
			}
		}
	}

	if speed != nil && speed.Len() > 0 {
		seq, err := segment.IterParts(speed, masks)
		if err != nil {
			return nil, err
		}
		for label, part := range seq {
			if err := addLine(panels[len(panels)-1], part, SpeedColumn, t0, label); err != nil {
				return nil, err
			}
		}
	}

	// shared x axis
	xmin, xmax := panels[0].X.Min, panels[0].X.Max
	for _, p := range panels[1:] {
		xmin = min(xmin, p.X.Min)
		xmax = max(xmax, p.X.Max)
	}
	for _, p := range panels {
		p.X.Min, p.X.Max = xmin, xmax
	}
	panels[len(panels)-1].X.Label.Text = "seconds"
	return panels, nil
}

func addLine(p *gplot.Plot, part *timeseries.Table, col string, t0 int64, label string) error {
	values, ok := part.Column(col)
	if !ok {
		return fmt.Errorf("missing column %q", col)
	}
	seconds := part.Unit().Seconds()
	xys := make(plotter.XYs, part.Len())
	for i, ts := range part.Index() {
		xys[i].X = float64(ts-t0) * seconds
		xys[i].Y = values[i]
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("column %q: %w", col, err)
	}
	line.LineStyle.Color = ColorFor(label)
	line.LineStyle.Width = vg.Points(0.8)
	p.Add(line)
	return nil
}

// save lays the panels out vertically and writes the PNG through a
// temporary file, so that Exists never sees a partial figure.
func (r *Renderer) save(path string, panels []*gplot.Plot) error {
	img := vgimg.NewWith(
		vgimg.UseWH(pixels(r.Width), pixels(r.Height)),
		vgimg.UseDPI(vgimg.DefaultDPI),
	)
	dc := draw.New(img)

	grid := make([][]*gplot.Plot, len(panels))
	for i, p := range panels {
		grid[i] = []*gplot.Plot{p}
	}
	tiles := draw.Tiles{
		Rows:      len(panels),
		Cols:      1,
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}
	canvases := gplot.Align(grid, tiles, dc)
	for i, p := range panels {
		p.Draw(canvases[i][0])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// pixels converts an image size in pixels to a canvas length at the default
// resolution.
func pixels(n int) vg.Length {
	return vg.Length(n) * vg.Inch / vgimg.DefaultDPI
}
