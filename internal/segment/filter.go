package segment

import "github.com/chrissnell/tmdtools/internal/timeseries"

// FilterGroups clears every run of consecutive true values whose length is
// at most minLength. A run of exactly minLength samples is cleared; runs of
// false values and longer true runs are left alone. The result has the same
// index as mask.
func FilterGroups(mask timeseries.Mask, minLength int) timeseries.Mask {
	out := timeseries.Mask{
		Index:  append([]int64(nil), mask.Index...),
		Values: append([]bool(nil), mask.Values...),
	}

	start := 0
	for i := 1; i <= len(out.Values); i++ {
		if i < len(out.Values) && out.Values[i] == out.Values[start] {
			continue
		}
		if out.Values[start] && i-start <= minLength {
			for j := start; j < i; j++ {
				out.Values[j] = false
			}
		}
		start = i
	}
	return out
}
