package profile

import (
	"math"

	"github.com/montanaflynn/stats"

	"sentinel/domain/core"
	"sentinel/domain/table"
)

const (
	topValuesLimit       = 10
	dashboardNumericCols = 10
	defaultSampleLimit   = 100
)

// DateRange spans the earliest and latest non-missing timestamps
type DateRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Overview summarizes the table shape
type Overview struct {
	RowCount           int            `json:"row_count" yaml:"row_count"`
	ColumnCount        int            `json:"column_count" yaml:"column_count"`
	DateRange          *DateRange     `json:"date_range" yaml:"date_range"`
	ColumnNames        []string       `json:"column_names" yaml:"column_names"`
	NumericColumns     []string       `json:"numeric_columns" yaml:"numeric_columns"`
	CategoricalColumns []string       `json:"categorical_columns" yaml:"categorical_columns"`
	NullCounts         map[string]int `json:"null_counts" yaml:"null_counts"`
}

// NumericStats is the numeric summary of a column. A field is nil when the
// column has no value to compute it from.
type NumericStats struct {
	Min    *float64 `json:"min" yaml:"min"`
	Max    *float64 `json:"max" yaml:"max"`
	Mean   *float64 `json:"mean" yaml:"mean"`
	Std    *float64 `json:"std" yaml:"std"`
	Median *float64 `json:"median" yaml:"median"`
}

// CategoryStats is the categorical summary of a column
type CategoryStats struct {
	UniqueCount int                `json:"unique_count" yaml:"unique_count"`
	TopValues   []table.ValueCount `json:"top_values" yaml:"top_values"`
}

// ColumnProfile describes one column
type ColumnProfile struct {
	Name           string           `json:"name" yaml:"name"`
	Type           table.ColumnType `json:"type" yaml:"type"`
	NullCount      int              `json:"null_count" yaml:"null_count"`
	NullPercentage float64          `json:"null_percentage" yaml:"null_percentage"`
	Stats          *NumericStats    `json:"stats,omitempty" yaml:"stats,omitempty"`
	Categories     *CategoryStats   `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// SampleResult holds the leading rows of a table
type SampleResult struct {
	Data  []map[string]any `json:"data" yaml:"data"`
	Count int              `json:"count" yaml:"count"`
}

// Profiler summarizes tables
type Profiler struct{}

// NewProfiler creates a new profiler
func NewProfiler() *Profiler {
	return &Profiler{}
}

// Overview returns row/column counts, the date range and per-column null counts
func (p *Profiler) Overview(t *table.Table) Overview {
	nulls := make(map[string]int, t.Width())
	for _, col := range t.Columns() {
		nulls[col.Name()] = col.NullCount()
	}
	return Overview{
		RowCount:           t.Len(),
		ColumnCount:        t.Width(),
		DateRange:          dateRange(t),
		ColumnNames:        t.Names(),
		NumericColumns:     t.NamesOf(table.TypeNumeric),
		CategoricalColumns: t.NamesOf(table.TypeCategorical),
		NullCounts:         nulls,
	}
}

// ColumnsInfo profiles every column in table order. Temporal columns get a
// categorical-style summary of their rendered values.
func (p *Profiler) ColumnsInfo(t *table.Table) []ColumnProfile {
	profiles := make([]ColumnProfile, 0, t.Width())
	for _, col := range t.Columns() {
		profiles = append(profiles, p.profileColumn(col))
	}
	return profiles
}

func (p *Profiler) profileColumn(col *table.Column) ColumnProfile {
	nulls := col.NullCount()
	prof := ColumnProfile{
		Name:      col.Name(),
		Type:      col.Type(),
		NullCount: nulls,
	}
	if col.Len() > 0 {
		prof.NullPercentage = float64(nulls) / float64(col.Len()) * 100
	}

	if col.Type() == table.TypeNumeric {
		prof.Stats = Summarize(col.NonNullFloats())
		return prof
	}

	counts := col.ValueCounts()
	top := counts
	if len(top) > topValuesLimit {
		top = top[:topValuesLimit]
	}
	prof.Categories = &CategoryStats{UniqueCount: len(counts), TopValues: top}
	return prof
}

// Summarize computes min/max/mean/sample std/median over values
func Summarize(values []float64) *NumericStats {
	data := stats.Float64Data(values)
	return &NumericStats{
		Min:    finite(data.Min()),
		Max:    finite(data.Max()),
		Mean:   finite(data.Mean()),
		Std:    finite(stats.StandardDeviationSample(data)),
		Median: finite(data.Median()),
	}
}

// Sample returns the first limit rows with temporal values rendered as text.
// A non-positive limit uses the default of 100.
func (p *Profiler) Sample(t *table.Table, limit int) SampleResult {
	if limit <= 0 {
		limit = defaultSampleLimit
	}
	head := t.Head(limit)
	rows := make([]map[string]any, head.Len())
	for i := range rows {
		rows[i] = head.Row(i, core.SampleLayout)
	}
	return SampleResult{Data: rows, Count: len(rows)}
}

func dateRange(t *table.Table) *DateRange {
	col, ok := t.TimeColumn()
	if !ok {
		return nil
	}
	var lo, hi *int
	for i := 0; i < col.Len(); i++ {
		ts, ok := col.Time(i)
		if !ok {
			continue
		}
		if lo == nil {
			lo, hi = new(int), new(int)
			*lo, *hi = i, i
			continue
		}
		if lt, _ := col.Time(*lo); ts.Before(lt) {
			*lo = i
		}
		if ht, _ := col.Time(*hi); ts.After(ht) {
			*hi = i
		}
	}
	if lo == nil {
		return nil
	}
	start, _ := col.Time(*lo)
	end, _ := col.Time(*hi)
	return &DateRange{Start: start.Format(core.ISOLayout), End: end.Format(core.ISOLayout)}
}

// finite drops library errors (empty input) and non-finite results
func finite(v float64, err error) *float64 {
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
