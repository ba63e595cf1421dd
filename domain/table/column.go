package table

import (
	"math"
	"sort"
	"strconv"
	"time"

	"sentinel/domain/core"
)

// ColumnType defines how a column was typed at load time
type ColumnType string

const (
	TypeNumeric     ColumnType = "numeric"
	TypeCategorical ColumnType = "categorical"
	TypeTemporal    ColumnType = "temporal"
)

// Column is a typed, immutable vector of cells. Missing numeric cells are NaN,
// missing temporal cells are the zero time, missing categorical cells carry
// valid=false.
type Column struct {
	name  string
	kind  ColumnType
	nums  []float64
	strs  []string
	times []time.Time
	valid []bool
}

// NewNumericColumn copies values; NaN marks a missing cell.
func NewNumericColumn(name string, values []float64) *Column {
	c := &Column{name: name, kind: TypeNumeric, nums: make([]float64, len(values)), valid: make([]bool, len(values))}
	for i, v := range values {
		c.nums[i] = v
		c.valid[i] = !math.IsNaN(v)
	}
	return c
}

// NewCategoricalColumn copies values. When valid is nil, empty strings are missing.
func NewCategoricalColumn(name string, values []string, valid []bool) *Column {
	c := &Column{name: name, kind: TypeCategorical, strs: make([]string, len(values)), valid: make([]bool, len(values))}
	for i, v := range values {
		c.strs[i] = v
		if valid != nil && i < len(valid) {
			c.valid[i] = valid[i]
		} else {
			c.valid[i] = v != ""
		}
	}
	return c
}

// NewTemporalColumn copies values; the zero time marks a missing cell.
func NewTemporalColumn(name string, values []time.Time) *Column {
	c := &Column{name: name, kind: TypeTemporal, times: make([]time.Time, len(values)), valid: make([]bool, len(values))}
	for i, v := range values {
		c.times[i] = v
		c.valid[i] = !v.IsZero()
	}
	return c
}

func (c *Column) Name() string     { return c.name }
func (c *Column) Type() ColumnType { return c.kind }
func (c *Column) Len() int         { return len(c.valid) }

// IsNull reports whether cell i is missing
func (c *Column) IsNull(i int) bool { return !c.valid[i] }

// NullCount returns the number of missing cells
func (c *Column) NullCount() int {
	n := 0
	for _, ok := range c.valid {
		if !ok {
			n++
		}
	}
	return n
}

// Float returns the numeric value of cell i
func (c *Column) Float(i int) (float64, bool) {
	if c.kind != TypeNumeric || !c.valid[i] {
		return math.NaN(), false
	}
	return c.nums[i], true
}

// Text returns the categorical value of cell i
func (c *Column) Text(i int) (string, bool) {
	if c.kind != TypeCategorical || !c.valid[i] {
		return "", false
	}
	return c.strs[i], true
}

// Time returns the temporal value of cell i
func (c *Column) Time(i int) (time.Time, bool) {
	if c.kind != TypeTemporal || !c.valid[i] {
		return time.Time{}, false
	}
	return c.times[i], true
}

// Floats returns a copy of the numeric cells with NaN for missing values.
// Non-numeric columns yield all-NaN.
func (c *Column) Floats() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i], _ = c.Float(i)
	}
	return out
}

// NonNullFloats returns the numeric cells that are present, in row order.
func (c *Column) NonNullFloats() []float64 {
	out := make([]float64, 0, c.Len())
	for i := range c.valid {
		if v, ok := c.Float(i); ok {
			out = append(out, v)
		}
	}
	return out
}

// Key returns a text key for grouping cell i regardless of column type.
func (c *Column) Key(i int) (string, bool) {
	if !c.valid[i] {
		return "", false
	}
	switch c.kind {
	case TypeNumeric:
		return strconv.FormatFloat(c.nums[i], 'f', -1, 64), true
	case TypeTemporal:
		return c.times[i].Format(core.SampleLayout), true
	default:
		return c.strs[i], true
	}
}

// Value returns the raw cell: float64, string, time.Time or nil.
func (c *Column) Value(i int) any {
	if !c.valid[i] {
		return nil
	}
	switch c.kind {
	case TypeNumeric:
		return c.nums[i]
	case TypeTemporal:
		return c.times[i]
	default:
		return c.strs[i]
	}
}

// Render returns the cell for serialization, with temporal values formatted by layout.
func (c *Column) Render(i int, layout string) any {
	v := c.Value(i)
	if t, ok := v.(time.Time); ok {
		return t.Format(layout)
	}
	return v
}

// ValueCount is a distinct cell value and its frequency
type ValueCount struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// ValueCounts counts non-null cells by Key, most frequent first. Ties keep
// first-appearance order.
func (c *Column) ValueCounts() []ValueCount {
	counts := make(map[string]int)
	var order []string
	for i := range c.valid {
		key, ok := c.Key(i)
		if !ok {
			continue
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	out := make([]ValueCount, len(order))
	for i, key := range order {
		out[i] = ValueCount{Value: key, Count: counts[key]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// take builds a new column holding the given rows in order
func (c *Column) take(rows []int) *Column {
	out := &Column{name: c.name, kind: c.kind, valid: make([]bool, len(rows))}
	switch c.kind {
	case TypeNumeric:
		out.nums = make([]float64, len(rows))
	case TypeTemporal:
		out.times = make([]time.Time, len(rows))
	default:
		out.strs = make([]string, len(rows))
	}
	for k, r := range rows {
		out.valid[k] = c.valid[r]
		switch c.kind {
		case TypeNumeric:
			out.nums[k] = c.nums[r]
		case TypeTemporal:
			out.times[k] = c.times[r]
		default:
			out.strs[k] = c.strs[r]
		}
	}
	return out
}
