package segment

import (
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/tmdtools/internal/errkind"
	"github.com/chrissnell/tmdtools/internal/timeseries"
)

// Names of the masks produced by BuildMasks, in priority order.
const (
	MaskEndpoints     = "endpoints"
	MaskStill         = "still"
	MaskInvalidMotion = "invalid_motion"
)

// Params holds the thresholds of the mask builder.
type Params struct {
	EndpointWindow time.Duration // trimmed at both ends of a trip
	StillEpsilon   float64       // |speed| below this is still
	StillMinRun    int           // still runs this long or shorter are dropped
	InvalidMinRun  int           // below-threshold runs this long or shorter are dropped
	Bucket         time.Duration // speed resampling bucket
	Sentinel       float64       // value of empty speed buckets
}

// DefaultParams returns the thresholds used for TMD dataset preparation.
func DefaultParams() Params {
	return Params{
		EndpointWindow: time.Minute,
		StillEpsilon:   0.02,
		StillMinRun:    30,
		InvalidMinRun:  2,
		Bucket:         time.Second,
		Sentinel:       -1,
	}
}

// ModeThreshold returns the minimum speed (m/s) considered valid motion for
// a travel mode.
func ModeThreshold(mode string) float64 {
	switch mode {
	case "walk", "walking":
		return 0.5
	case "bike", "biking", "cycling":
		return 1.0
	default:
		return 2.0
	}
}

// PrepareSpeed extracts the speed column of a GPS table and resamples it into
// fixed buckets, filling empty buckets with the sentinel. It returns
// errkind.ErrNoSpeedData when no usable speed reading exists.
func PrepareSpeed(gps *timeseries.Table, p Params) (timeseries.Series, error) {
	speed, err := gps.Series("speed")
	if err != nil {
		return timeseries.Series{}, fmt.Errorf("%w: %v", errkind.ErrNoSpeedData, err)
	}
	if !speed.Trim().HasValid() {
		return timeseries.Series{}, errkind.ErrNoSpeedData
	}

	width := int64(p.Bucket / gps.Unit())
	resampled, err := speed.Resample(width, p.Sentinel)
	if err != nil {
		return timeseries.Series{}, fmt.Errorf("%w: %v", errkind.ErrMalformedInput, err)
	}
	return resampled, nil
}

// EndpointsMask is true for every timestamp within window of the first or
// last timestamp of index.
func EndpointsMask(index []int64, unit, window time.Duration) timeseries.Mask {
	m := timeseries.Mask{Index: append([]int64(nil), index...), Values: make([]bool, len(index))}
	if len(index) == 0 {
		return m
	}
	w := int64(window / unit)
	first, last := index[0], index[len(index)-1]
	for i, ts := range index {
		m.Values[i] = ts < first+w || last-w < ts
	}
	return m
}

// BuildMasks derives the endpoints, still and invalid-motion masks of a trip
// from its sensor table and resampled speed series.
func BuildMasks(table *timeseries.Table, speed timeseries.Series, mode string, p Params) ([]NamedMask, error) {
	if table.Len() == 0 {
		return nil, fmt.Errorf("%w: empty sensor table", errkind.ErrMalformedInput)
	}
	if speed.Len() == 0 || !speed.HasValid() {
		return nil, errkind.ErrNoSpeedData
	}
	for _, v := range speed.Values {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: speed series holds NaN, resample it first", errkind.ErrMalformedInput)
		}
	}

	endpoints := EndpointsMask(table.Index(), table.Unit(), p.EndpointWindow)
	still := FilterGroups(speed.AbsLessThan(p.StillEpsilon), p.StillMinRun)
	invalid := FilterGroups(speed.LessThan(ModeThreshold(mode)), p.InvalidMinRun)

	return []NamedMask{
		{Name: MaskEndpoints, Mask: endpoints},
		{Name: MaskStill, Mask: still},
		{Name: MaskInvalidMotion, Mask: invalid},
	}, nil
}
