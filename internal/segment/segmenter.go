// Package segment splits trip recordings into labelled, contiguous parts
// using boolean state masks derived from the trip's speed signal.
package segment

import (
	"fmt"
	"iter"

	"github.com/chrissnell/tmdtools/internal/errkind"
	"github.com/chrissnell/tmdtools/internal/timeseries"
)

// NoLabel marks a part for which no mask was true.
const NoLabel = ""

// NamedMask is one entry of an ordered mask set. The position of a mask in
// the set is its priority when several masks are true for the same part.
type NamedMask struct {
	Name string
	Mask timeseries.Mask
}

// Part is one labelled run of a segmented table.
type Part struct {
	Label string
	Table *timeseries.Table
}

// IterParts splits table into maximal runs over which the state of every
// mask is constant, and yields each run with its label: the name of the
// first mask (in slice order) that is true over the run, or NoLabel.
//
// Masks defined on a different index than the table are projected onto the
// table's index by forward filling; positions before a mask's first sample
// are false. Masks that cannot be projected (unsorted index, no overlap with
// the table's time range) fail with errkind.ErrMalformedInput before any
// part is produced.
//
// The yielded tables, concatenated in order, reproduce table exactly.
func IterParts(table *timeseries.Table, masks []NamedMask) (iter.Seq2[string, *timeseries.Table], error) {
	if table.Len() == 0 || len(masks) == 0 {
		return func(yield func(string, *timeseries.Table) bool) {
			yield(NoLabel, table)
		}, nil
	}

	aligned, err := alignMasks(table, masks)
	if err != nil {
		return nil, err
	}

	cuts := runStarts(aligned, table.Len())
	labels := make([]string, len(cuts))
	for i, c := range cuts {
		labels[i] = labelAt(masks, aligned, c)
	}

	return func(yield func(string, *timeseries.Table) bool) {
		for i, lo := range cuts {
			hi := table.Len()
			if i+1 < len(cuts) {
				hi = cuts[i+1]
			}
			if !yield(labels[i], table.SliceRows(lo, hi)) {
				return
			}
		}
	}, nil
}

// Collect materializes a part sequence.
func Collect(seq iter.Seq2[string, *timeseries.Table]) []Part {
	var parts []Part
	for label, t := range seq {
		parts = append(parts, Part{Label: label, Table: t})
	}
	return parts
}

// Split is IterParts followed by Collect.
func Split(table *timeseries.Table, masks []NamedMask) ([]Part, error) {
	seq, err := IterParts(table, masks)
	if err != nil {
		return nil, err
	}
	return Collect(seq), nil
}

func alignMasks(table *timeseries.Table, masks []NamedMask) ([][]bool, error) {
	index := table.Index()
	first, _ := table.FirstValid()
	last, _ := table.LastValid()

	names := make(map[string]bool, len(masks))
	aligned := make([][]bool, len(masks))
	for i, nm := range masks {
		if nm.Name == NoLabel {
			return nil, fmt.Errorf("%w: mask %d has an empty name", errkind.ErrMalformedInput, i)
		}
		if names[nm.Name] {
			return nil, fmt.Errorf("%w: duplicate mask %q", errkind.ErrMalformedInput, nm.Name)
		}
		names[nm.Name] = true

		m := nm.Mask
		if len(m.Index) != len(m.Values) {
			return nil, fmt.Errorf("%w: mask %q has %d timestamps for %d values",
				errkind.ErrMalformedInput, nm.Name, len(m.Index), len(m.Values))
		}
		if m.HasIndex(index) {
			aligned[i] = m.Values
			continue
		}
		if !m.StrictlyIncreasing() {
			return nil, fmt.Errorf("%w: mask %q index is not strictly increasing", errkind.ErrMalformedInput, nm.Name)
		}
		if !m.Overlaps(first, last) {
			return nil, fmt.Errorf("%w: mask %q does not overlap the table range [%d, %d]",
				errkind.ErrMalformedInput, nm.Name, first, last)
		}
		aligned[i] = m.Reindex(index).Values
	}
	return aligned, nil
}

// runStarts returns, in ascending order, every row at which at least one
// mask changes value. Row 0 always starts a run.
func runStarts(aligned [][]bool, n int) []int {
	cuts := []int{0}
	for row := 1; row < n; row++ {
		for _, values := range aligned {
			if values[row] != values[row-1] {
				cuts = append(cuts, row)
				break
			}
		}
	}
	return cuts
}

func labelAt(masks []NamedMask, aligned [][]bool, row int) string {
	for i, values := range aligned {
		if values[row] {
			return masks[i].Name
		}
	}
	return NoLabel
}
