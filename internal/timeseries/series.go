package timeseries

import (
	"fmt"
	"math"
	"time"
)

// Series is a single numeric signal over a sorted timestamp index.
type Series struct {
	Index  []int64
	Values []float64
}

// Len returns the number of samples.
func (s Series) Len() int {
	return len(s.Index)
}

// Trim restricts the series to the range between its first and last
// non-NaN values.
func (s Series) Trim() Series {
	lo, hi := 0, len(s.Values)
	for lo < hi && math.IsNaN(s.Values[lo]) {
		lo++
	}
	for hi > lo && math.IsNaN(s.Values[hi-1]) {
		hi--
	}
	return Series{
		Index:  append([]int64(nil), s.Index[lo:hi]...),
		Values: append([]float64(nil), s.Values[lo:hi]...),
	}
}

// HasValid reports whether at least one value is a real, non-negative reading.
// Negative values are the "no reading" sentinel of mobile GPS providers.
func (s Series) HasValid() bool {
	for _, v := range s.Values {
		if !math.IsNaN(v) && v >= 0 {
			return true
		}
	}
	return false
}

// Resample groups samples into fixed buckets of the given width (in ticks)
// and keeps the first non-NaN value of each bucket. Buckets are aligned on
// multiples of width; empty buckets get fill. The index must be sorted.
func (s Series) Resample(width int64, fill float64) (Series, error) {
	if width <= 0 {
		return Series{}, fmt.Errorf("invalid bucket width %d", width)
	}
	if len(s.Index) == 0 {
		return Series{}, nil
	}

	start := floorDiv(s.Index[0], width) * width
	end := floorDiv(s.Index[len(s.Index)-1], width) * width
	n := int((end-start)/width) + 1

	out := Series{
		Index:  make([]int64, n),
		Values: make([]float64, n),
	}
	filled := make([]bool, n)
	for i := range out.Index {
		out.Index[i] = start + int64(i)*width
		out.Values[i] = fill
	}
	for i, ts := range s.Index {
		v := s.Values[i]
		if math.IsNaN(v) {
			continue
		}
		b := int((floorDiv(ts, width)*width - start) / width)
		if !filled[b] {
			out.Values[b] = v
			filled[b] = true
		}
	}
	return out, nil
}

// LessThan returns a mask that is true where value < threshold.
// NaN values yield false.
func (s Series) LessThan(threshold float64) Mask {
	m := Mask{Index: append([]int64(nil), s.Index...), Values: make([]bool, len(s.Values))}
	for i, v := range s.Values {
		m.Values[i] = v < threshold
	}
	return m
}

// AbsLessThan returns a mask that is true where |value| < epsilon.
func (s Series) AbsLessThan(epsilon float64) Mask {
	m := Mask{Index: append([]int64(nil), s.Index...), Values: make([]bool, len(s.Values))}
	for i, v := range s.Values {
		m.Values[i] = math.Abs(v) < epsilon
	}
	return m
}

// Table wraps the series into a one-column table.
func (s Series) Table(name string, unit time.Duration) *Table {
	return &Table{
		unit:    unit,
		index:   append([]int64(nil), s.Index...),
		columns: []string{name},
		data:    [][]float64{append([]float64(nil), s.Values...)},
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
