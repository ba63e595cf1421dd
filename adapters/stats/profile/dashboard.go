package profile

import (
	"github.com/montanaflynn/stats"

	"sentinel/domain/table"
)

// DefectSummary totals the defect_count column
type DefectSummary struct {
	Total float64  `json:"total_defects" yaml:"total_defects"`
	Mean  *float64 `json:"avg_defects" yaml:"avg_defects"`
	Max   *float64 `json:"max_defects" yaml:"max_defects"`
}

// SummaryStats is the compact per-column block shown on the dashboard
type SummaryStats struct {
	Mean *float64 `json:"mean" yaml:"mean"`
	Std  *float64 `json:"std" yaml:"std"`
	Min  *float64 `json:"min" yaml:"min"`
	Max  *float64 `json:"max" yaml:"max"`
}

// DashboardStats aggregates the headline numbers of a table
type DashboardStats struct {
	TotalRecords         int                     `json:"total_records" yaml:"total_records"`
	DateRange            *DateRange              `json:"date_range" yaml:"date_range"`
	Defects              *DefectSummary          `json:"defects,omitempty" yaml:"defects,omitempty"`
	NCRDistribution      []table.ValueCount      `json:"ncr_distribution,omitempty" yaml:"ncr_distribution,omitempty"`
	SeverityDistribution []table.ValueCount      `json:"severity_distribution,omitempty" yaml:"severity_distribution,omitempty"`
	LineDistribution     []table.ValueCount      `json:"line_distribution,omitempty" yaml:"line_distribution,omitempty"`
	NumericStats         map[string]SummaryStats `json:"numeric_stats" yaml:"numeric_stats"`
}

// Dashboard computes totals, distributions of the recognised categorical
// columns and summaries of the first ten numeric columns
func (p *Profiler) Dashboard(t *table.Table) DashboardStats {
	out := DashboardStats{
		TotalRecords: t.Len(),
		DateRange:    dateRange(t),
		NumericStats: make(map[string]SummaryStats),
	}

	if col, ok := t.Column(table.ColDefectCount); ok && col.Type() == table.TypeNumeric {
		values := stats.Float64Data(col.NonNullFloats())
		total, err := values.Sum()
		if err != nil {
			total = 0
		}
		out.Defects = &DefectSummary{
			Total: total,
			Mean:  finite(values.Mean()),
			Max:   finite(values.Max()),
		}
	}

	out.NCRDistribution = distribution(t, table.ColNCRType)
	out.SeverityDistribution = distribution(t, table.ColSeverity)
	out.LineDistribution = distribution(t, table.ColProductionLine)

	numeric := t.NamesOf(table.TypeNumeric)
	if len(numeric) > dashboardNumericCols {
		numeric = numeric[:dashboardNumericCols]
	}
	for _, name := range numeric {
		col, _ := t.Column(name)
		s := Summarize(col.NonNullFloats())
		out.NumericStats[name] = SummaryStats{Mean: s.Mean, Std: s.Std, Min: s.Min, Max: s.Max}
	}
	return out
}

func distribution(t *table.Table, name string) []table.ValueCount {
	col, ok := t.Column(name)
	if !ok {
		return nil
	}
	return col.ValueCounts()
}
