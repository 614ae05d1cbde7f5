package timeseries

// Mask is a boolean signal over a timestamp index.
type Mask struct {
	Index  []int64
	Values []bool
}

// Len returns the number of samples.
func (m Mask) Len() int {
	return len(m.Index)
}

// Equal reports whether two masks have identical indexes and values.
func (m Mask) Equal(o Mask) bool {
	if len(m.Index) != len(o.Index) || len(m.Values) != len(o.Values) {
		return false
	}
	for i := range m.Index {
		if m.Index[i] != o.Index[i] {
			return false
		}
	}
	for i := range m.Values {
		if m.Values[i] != o.Values[i] {
			return false
		}
	}
	return true
}

// HasIndex reports whether the mask is defined on exactly the given index.
func (m Mask) HasIndex(index []int64) bool {
	if len(m.Index) != len(index) {
		return false
	}
	for i := range index {
		if m.Index[i] != index[i] {
			return false
		}
	}
	return true
}

// StrictlyIncreasing reports whether the mask index is sorted without
// duplicates.
func (m Mask) StrictlyIncreasing() bool {
	for i := 1; i < len(m.Index); i++ {
		if m.Index[i] <= m.Index[i-1] {
			return false
		}
	}
	return true
}

// Overlaps reports whether the mask's time range intersects [from, to].
func (m Mask) Overlaps(from, to int64) bool {
	if len(m.Index) == 0 {
		return false
	}
	return m.Index[0] <= to && from <= m.Index[len(m.Index)-1]
}

// Reindex projects the mask onto another sorted index: every target
// timestamp takes the value of the latest mask sample at or before it.
// Targets preceding the first mask sample resolve to false. The mask index
// must be sorted.
func (m Mask) Reindex(target []int64) Mask {
	out := Mask{Index: append([]int64(nil), target...), Values: make([]bool, len(target))}
	j := -1
	for i, ts := range target {
		for j+1 < len(m.Index) && m.Index[j+1] <= ts {
			j++
		}
		if j >= 0 {
			out.Values[i] = m.Values[j]
		}
	}
	return out
}

// Count returns the number of true values.
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Values {
		if v {
			n++
		}
	}
	return n
}
