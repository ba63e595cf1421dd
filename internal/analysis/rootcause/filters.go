package rootcause

import (
	"time"

	"sentinel/domain/core"
	"sentinel/domain/table"
)

// Filters narrows the rows an analysis looks at. Empty fields are ignored;
// set fields are AND-combined and the date bounds are inclusive.
type Filters struct {
	StartDate      string `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate        string `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	ProductionLine string `json:"production_line,omitempty" yaml:"production_line,omitempty"`
	Severity       string `json:"severity,omitempty" yaml:"severity,omitempty"`
	IssueType      string `json:"issue_type,omitempty" yaml:"issue_type,omitempty"` // matches ncr_type
}

// IsZero reports whether no filter is set
func (f Filters) IsZero() bool {
	return f == Filters{}
}

// WithIssueType narrows f to issue when t records ncr_type. Unlike the
// IssueType filter it is silently dropped for tables without that column, and
// it never overrides an IssueType already set.
func (f Filters) WithIssueType(t *table.Table, issue string) Filters {
	if issue == "" || f.IssueType != "" || !t.Has(table.ColNCRType) {
		return f
	}
	f.IssueType = issue
	return f
}

// ApplyFilters returns the subset of t matching f. Date bounds need a temporal
// column; equality filters need their column to exist.
func ApplyFilters(t *table.Table, f Filters) (*table.Table, error) {
	if f.IsZero() {
		return t, nil
	}

	var keep []func(row int) bool

	if f.StartDate != "" || f.EndDate != "" {
		clock, ok := t.TimeColumn()
		if !ok {
			return nil, core.NewMissingTemporalError()
		}
		start, err := parseBound("start_date", f.StartDate)
		if err != nil {
			return nil, err
		}
		end, err := parseBound("end_date", f.EndDate)
		if err != nil {
			return nil, err
		}
		keep = append(keep, func(row int) bool {
			ts, ok := clock.Time(row)
			if !ok {
				return false
			}
			return (start == nil || !ts.Before(*start)) && (end == nil || !ts.After(*end))
		})
	}

	for _, eq := range []struct{ column, value string }{
		{table.ColProductionLine, f.ProductionLine},
		{table.ColSeverity, f.Severity},
		{table.ColNCRType, f.IssueType},
	} {
		if eq.value == "" {
			continue
		}
		col, ok := t.Column(eq.column)
		if !ok {
			return nil, core.NewColumnNotFoundError(eq.column)
		}
		want := eq.value
		keep = append(keep, func(row int) bool {
			key, ok := col.Key(row)
			return ok && key == want
		})
	}

	return t.Where(func(row int) bool {
		for _, k := range keep {
			if !k(row) {
				return false
			}
		}
		return true
	}), nil
}

func parseBound(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	ts, ok := core.ParseTime(value)
	if !ok {
		return nil, core.NewInvalidArgumentError("%s %q is not a recognised date", name, value)
	}
	return &ts, nil
}
