// Package timeseries holds the time-indexed tables, numeric series and boolean
// masks that trip segmentation operates on. Timestamps are int64 ticks whose
// duration is given by the table's Unit (milliseconds unless stated otherwise).
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// DefaultUnit is the tick size of raw sensor timestamps (milliseconds since epoch).
const DefaultUnit = time.Millisecond

// Table is a set of named float64 columns sharing one timestamp index.
// Data is stored column-major. Tables are never mutated after construction;
// every operation returns a new Table.
type Table struct {
	unit    time.Duration
	index   []int64
	columns []string
	data    [][]float64
}

// NewTable builds a table from an index, column names and column-major data.
// The table takes ownership of the passed slices.
func NewTable(index []int64, columns []string, data [][]float64) (*Table, error) {
	if len(columns) != len(data) {
		return nil, fmt.Errorf("got %d column names for %d columns", len(columns), len(data))
	}
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if seen[c] {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		seen[c] = true
		if len(data[i]) != len(index) {
			return nil, fmt.Errorf("column %q has %d values, index has %d", c, len(data[i]), len(index))
		}
	}
	return &Table{unit: DefaultUnit, index: index, columns: columns, data: data}, nil
}

// WithUnit returns a copy of the table whose ticks are interpreted as unit.
func (t *Table) WithUnit(unit time.Duration) *Table {
	c := t.clone()
	c.unit = unit
	return c
}

// Unit is the duration of one index tick.
func (t *Table) Unit() time.Duration {
	return t.unit
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.index)
}

// Index returns the timestamp index. Callers must not modify it.
func (t *Table) Index() []int64 {
	return t.index
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column. Callers must not modify them.
func (t *Table) Column(name string) ([]float64, bool) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil, false
	}
	return t.data[i], true
}

// At returns the value at row, col.
func (t *Table) At(row, col int) float64 {
	return t.data[col][row]
}

// FirstValid returns the first timestamp of the table.
func (t *Table) FirstValid() (int64, bool) {
	if len(t.index) == 0 {
		return 0, false
	}
	return t.index[0], true
}

// LastValid returns the last timestamp of the table.
func (t *Table) LastValid() (int64, bool) {
	if len(t.index) == 0 {
		return 0, false
	}
	return t.index[len(t.index)-1], true
}

// Series extracts a column as a Series sharing the table's index.
func (t *Table) Series(col string) (Series, error) {
	values, ok := t.Column(col)
	if !ok {
		return Series{}, fmt.Errorf("unknown column %q", col)
	}
	return Series{
		Index:  append([]int64(nil), t.index...),
		Values: append([]float64(nil), values...),
	}, nil
}

// Dedup sorts rows by timestamp and keeps the first occurrence of every
// duplicated timestamp.
func (t *Table) Dedup() *Table {
	order := make([]int, len(t.index))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.index[order[a]] < t.index[order[b]]
	})

	keep := make([]int, 0, len(order))
	for i, row := range order {
		if i > 0 && t.index[row] == t.index[order[i-1]] {
			continue
		}
		keep = append(keep, row)
	}
	return t.takeRows(keep)
}

// DropNaN removes every row holding at least one NaN value.
func (t *Table) DropNaN() *Table {
	keep := make([]int, 0, len(t.index))
	for row := range t.index {
		ok := true
		for _, col := range t.data {
			if math.IsNaN(col[row]) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, row)
		}
	}
	return t.takeRows(keep)
}

// Select returns a table holding only the named columns, in the given order.
func (t *Table) Select(cols ...string) (*Table, error) {
	data := make([][]float64, len(cols))
	for i, c := range cols {
		values, ok := t.Column(c)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", c)
		}
		data[i] = append([]float64(nil), values...)
	}
	out, err := NewTable(append([]int64(nil), t.index...), append([]string(nil), cols...), data)
	if err != nil {
		return nil, err
	}
	out.unit = t.unit
	return out, nil
}

// WithNorm appends a column holding the per-row Euclidean norm of cols.
func (t *Table) WithNorm(name string, cols ...string) (*Table, error) {
	if t.ColumnIndex(name) >= 0 {
		return nil, fmt.Errorf("column %q already exists", name)
	}
	src := make([][]float64, len(cols))
	for i, c := range cols {
		values, ok := t.Column(c)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", c)
		}
		src[i] = values
	}

	norm := make([]float64, len(t.index))
	row := make([]float64, len(cols))
	for r := range t.index {
		for i := range src {
			row[i] = src[i][r]
		}
		norm[r] = floats.Norm(row, 2)
	}

	out := t.clone()
	out.columns = append(out.columns, name)
	out.data = append(out.data, norm)
	return out, nil
}

// Between returns the rows whose timestamp lies in [from, to]. The index
// must be sorted.
func (t *Table) Between(from, to int64) *Table {
	lo := sort.Search(len(t.index), func(i int) bool { return t.index[i] >= from })
	hi := sort.Search(len(t.index), func(i int) bool { return t.index[i] > to })
	if hi < lo {
		hi = lo
	}
	return t.SliceRows(lo, hi)
}

// SliceRows returns rows [lo, hi) as an independent table.
func (t *Table) SliceRows(lo, hi int) *Table {
	out := &Table{
		unit:    t.unit,
		index:   append([]int64(nil), t.index[lo:hi]...),
		columns: append([]string(nil), t.columns...),
		data:    make([][]float64, len(t.data)),
	}
	for i, col := range t.data {
		out.data[i] = append([]float64(nil), col[lo:hi]...)
	}
	return out
}

// Concat appends tables row-wise. All tables must share the same columns.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}
	first := tables[0]
	out := &Table{
		unit:    first.unit,
		columns: append([]string(nil), first.columns...),
		data:    make([][]float64, len(first.columns)),
	}
	for _, t := range tables {
		if !sameColumns(first.columns, t.columns) {
			return nil, fmt.Errorf("column mismatch: %v vs %v", first.columns, t.columns)
		}
		out.index = append(out.index, t.index...)
		for i := range t.data {
			out.data[i] = append(out.data[i], t.data[i]...)
		}
	}
	return out, nil
}

// Equal reports whether both tables have the same index, columns and values.
// NaN values compare equal to each other.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() || !sameColumns(t.columns, o.columns) {
		return false
	}
	for i := range t.index {
		if t.index[i] != o.index[i] {
			return false
		}
	}
	for c := range t.data {
		for r := range t.data[c] {
			a, b := t.data[c][r], o.data[c][r]
			if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
				return false
			}
		}
	}
	return true
}

func (t *Table) takeRows(rows []int) *Table {
	out := &Table{
		unit:    t.unit,
		index:   make([]int64, len(rows)),
		columns: append([]string(nil), t.columns...),
		data:    make([][]float64, len(t.data)),
	}
	for i := range out.data {
		out.data[i] = make([]float64, len(rows))
	}
	for i, row := range rows {
		out.index[i] = t.index[row]
		for c := range t.data {
			out.data[c][i] = t.data[c][row]
		}
	}
	return out
}

func (t *Table) clone() *Table {
	return t.SliceRows(0, len(t.index))
}

func sameColumns(a, b []string) bool {
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
