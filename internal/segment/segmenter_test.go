package segment

import (
	"errors"
	"testing"

	"github.com/chrissnell/tmdtools/internal/errkind"
	"github.com/chrissnell/tmdtools/internal/timeseries"
)

func seconds(n int) []int64 {
	idx := make([]int64, n)
	for i := range idx {
		idx[i] = int64(i)
	}
	return idx
}

func rampTable(t *testing.T, index []int64) *timeseries.Table {
	t.Helper()
	x := make([]float64, len(index))
	y := make([]float64, len(index))
	for i := range index {
		x[i] = float64(i)
		y[i] = float64(i * i)
	}
	tbl, err := timeseries.NewTable(index, []string{"x", "y"}, [][]float64{x, y})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func partSizes(parts []Part) []int {
	sizes := make([]int, len(parts))
	for i, p := range parts {
		sizes[i] = p.Table.Len()
	}
	return sizes
}

func partLabels(parts []Part) []string {
	labels := make([]string, len(parts))
	for i, p := range parts {
		labels[i] = p.Label
	}
	return labels
}

func assertPartition(t *testing.T, tbl *timeseries.Table, parts []Part) {
	t.Helper()
	tables := make([]*timeseries.Table, len(parts))
	for i, p := range parts {
		if p.Table.Len() == 0 {
			t.Errorf("part %d is empty", i)
		}
		tables[i] = p.Table
	}
	joined, err := timeseries.Concat(tables...)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if !joined.Equal(tbl) {
		t.Error("concatenated parts do not reproduce the table")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestIterPartsEmptyMaskSet(t *testing.T) {
	tbl := rampTable(t, seconds(5))

	parts, err := Split(tbl, nil)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("got %d parts, want 1", len(parts))
	}
	if parts[0].Label != NoLabel || !parts[0].Table.Equal(tbl) {
		t.Errorf("got (%q, %d rows), want (NoLabel, whole table)", parts[0].Label, parts[0].Table.Len())
	}
}

func TestIterPartsSingleMask(t *testing.T) {
	tbl := rampTable(t, seconds(8))
	masks := []NamedMask{{Name: "slow", Mask: maskOf(F, F, T, T, T, F, T, T)}}

	parts, err := Split(tbl, masks)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	if got, want := partSizes(parts), []int{2, 3, 1, 2}; !equalInts(got, want) {
		t.Errorf("part sizes = %v, want %v", got, want)
	}
	if got, want := partLabels(parts), []string{NoLabel, "slow", NoLabel, "slow"}; !equalStrings(got, want) {
		t.Errorf("labels = %q, want %q", got, want)
	}
	if first := parts[1].Table.Index()[0]; first != 2 {
		t.Errorf("second part starts at %d, want 2", first)
	}
	assertPartition(t, tbl, parts)
}

func TestIterPartsLabelPriority(t *testing.T) {
	tbl := rampTable(t, seconds(6))
	a := maskOf(T, T, T, F, F, F)
	b := maskOf(F, T, T, T, T, F)

	tests := []struct {
		name   string
		masks  []NamedMask
		labels []string
		sizes  []int
	}{
		{
			name:   "a before b",
			masks:  []NamedMask{{"a", a}, {"b", b}},
			labels: []string{"a", "a", "b", NoLabel},
			sizes:  []int{1, 2, 2, 1},
		},
		{
			name:   "b before a",
			masks:  []NamedMask{{"b", b}, {"a", a}},
			labels: []string{"a", "b", "b", NoLabel},
			sizes:  []int{1, 2, 2, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for run := 0; run < 3; run++ {
				parts, err := Split(tbl, tt.masks)
				if err != nil {
					t.Fatalf("Split: %v", err)
				}
				if got := partLabels(parts); !equalStrings(got, tt.labels) {
					t.Errorf("run %d: labels = %q, want %q", run, got, tt.labels)
				}
				if got := partSizes(parts); !equalInts(got, tt.sizes) {
					t.Errorf("run %d: sizes = %v, want %v", run, got, tt.sizes)
				}
				assertPartition(t, tbl, parts)
			}
		})
	}
}

func TestIterPartsReindexesMismatchedMask(t *testing.T) {
	tbl := rampTable(t, seconds(10))
	sparse := timeseries.Mask{Index: []int64{0, 5, 9}, Values: []bool{T, F, T}}

	parts, err := Split(tbl, []NamedMask{{Name: "m", Mask: sparse}})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	if got, want := partSizes(parts), []int{5, 4, 1}; !equalInts(got, want) {
		t.Errorf("part sizes = %v, want %v", got, want)
	}
	if got, want := partLabels(parts), []string{"m", NoLabel, "m"}; !equalStrings(got, want) {
		t.Errorf("labels = %q, want %q", got, want)
	}
	assertPartition(t, tbl, parts)
}

func TestIterPartsMaskStartingLate(t *testing.T) {
	tbl := rampTable(t, seconds(6))
	late := timeseries.Mask{Index: []int64{3, 4}, Values: []bool{T, F}}

	parts, err := Split(tbl, []NamedMask{{Name: "late", Mask: late}})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if got, want := partLabels(parts), []string{NoLabel, "late", NoLabel}; !equalStrings(got, want) {
		t.Errorf("labels = %q, want %q", got, want)
	}
	if got, want := partSizes(parts), []int{3, 1, 2}; !equalInts(got, want) {
		t.Errorf("part sizes = %v, want %v", got, want)
	}
}

func TestIterPartsMalformedMasks(t *testing.T) {
	tbl := rampTable(t, seconds(5))

	tests := []struct {
		name  string
		masks []NamedMask
	}{
		{"no overlap", []NamedMask{{"m", timeseries.Mask{Index: []int64{100, 101}, Values: []bool{T, F}}}}},
		{"empty mask", []NamedMask{{"m", timeseries.Mask{}}}},
		{"unsorted index", []NamedMask{{"m", timeseries.Mask{Index: []int64{3, 1}, Values: []bool{T, F}}}}},
		{"length mismatch", []NamedMask{{"m", timeseries.Mask{Index: []int64{0, 1}, Values: []bool{T}}}}},
		{"duplicate name", []NamedMask{{"m", maskOf(T, T, T, T, T)}, {"m", maskOf(F, F, F, F, F)}}},
		{"empty name", []NamedMask{{"", maskOf(T, T, T, T, T)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := IterParts(tbl, tt.masks)
			if !errors.Is(err, errkind.ErrMalformedInput) {
				t.Errorf("IterParts() error = %v, want ErrMalformedInput", err)
			}
		})
	}
}

func TestIterPartsStopsEarly(t *testing.T) {
	tbl := rampTable(t, seconds(6))
	seq, err := IterParts(tbl, []NamedMask{{"m", maskOf(T, F, T, F, T, F)}})
	if err != nil {
		t.Fatalf("IterParts: %v", err)
	}

	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("consumed %d parts, want 2", n)
	}
}

func TestIterPartsPartitionLaw(t *testing.T) {
	tbl := rampTable(t, seconds(40))
	masks := []NamedMask{
		{"every3", periodicMask(40, 3)},
		{"every7", periodicMask(40, 7)},
		{"sparse", timeseries.Mask{Index: []int64{-5, 11, 12, 30}, Values: []bool{T, F, T, F}}},
	}

	for n := 0; n <= len(masks); n++ {
		parts, err := Split(tbl, masks[:n])
		if err != nil {
			t.Fatalf("Split with %d masks: %v", n, err)
		}
		assertPartition(t, tbl, parts)
		for i := 1; i < len(parts); i++ {
			prev := parts[i-1].Table.Index()
			if parts[i].Table.Index()[0] <= prev[len(prev)-1] {
				t.Errorf("with %d masks, part %d overlaps part %d", n, i, i-1)
			}
		}
	}
}

func periodicMask(n, period int) timeseries.Mask {
	values := make([]bool, n)
	for i := range values {
		values[i] = (i/period)%2 == 0
	}
	return maskOf(values...)
}
