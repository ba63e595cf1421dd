package rootcause

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"sentinel/domain/table"
)

// FactorType classifies a root-cause finding
type FactorType string

const (
	FactorTimePattern   FactorType = "time_pattern"
	FactorEquipment     FactorType = "equipment"
	FactorOperator      FactorType = "operator"
	FactorEnvironmental FactorType = "environmental"
)

// Fixed confidences per factor
const (
	ConfidenceTimePattern   = 0.70
	ConfidenceEquipment     = 0.80
	ConfidenceOperator      = 0.60
	ConfidenceEnvironmental = 0.75
)

// Thresholds the probes flag against
const (
	peakHourRatio      = 1.5
	dominantShiftRatio = 1.3
	overloadRatio      = 1.5
	environmentalLift  = 1.2
	highQuantile       = 0.75
)

// Environmental factor labels, also used to pick corrective actions
const (
	FactorTemperature = "Temperature"
	FactorVibration   = "Vibration"
)

// Evidence is one observation backing a finding. Only the fields relevant
// to the probe that produced it are set.
type Evidence struct {
	Pattern       string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Evidence      string   `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Equipment     string   `json:"equipment,omitempty" yaml:"equipment,omitempty"`
	Operator      string   `json:"operator,omitempty" yaml:"operator,omitempty"`
	Factor        string   `json:"factor,omitempty" yaml:"factor,omitempty"`
	IssueCount    *int     `json:"issue_count,omitempty" yaml:"issue_count,omitempty"`
	AvgIssueCount *float64 `json:"avg_issue_count,omitempty" yaml:"avg_issue_count,omitempty"`
	Ratio         *float64 `json:"ratio,omitempty" yaml:"ratio,omitempty"`
	AvgDefects    *float64 `json:"avg_defects,omitempty" yaml:"avg_defects,omitempty"`
}

// Probe inspects a filtered table for one kind of root cause. The analyzer
// skips a probe whose requirements the table does not meet.
type Probe interface {
	Factor() FactorType
	Description() string
	Confidence() float64
	Requires() table.Requirements
	Examine(ctx context.Context, t *table.Table) ([]Evidence, error)
}

// DefaultProbes returns the temporal, equipment, operator and environmental probes
func DefaultProbes() []Probe {
	return []Probe{
		&TemporalProbe{},
		&EquipmentProbe{},
		&OperatorProbe{},
		&EnvironmentalProbe{},
	}
}

// TemporalProbe looks for peak hours and a dominant shift
type TemporalProbe struct{}

func (p *TemporalProbe) Factor() FactorType  { return FactorTimePattern }
func (p *TemporalProbe) Description() string { return "Time Pattern Analysis" }
func (p *TemporalProbe) Confidence() float64 { return ConfidenceTimePattern }
func (p *TemporalProbe) Requires() table.Requirements {
	return table.Requirements{Temporal: true}
}

func (p *TemporalProbe) Examine(ctx context.Context, t *table.Table) ([]Evidence, error) {
	clock, _ := t.TimeColumn()
	var byHour [24]int
	for i := 0; i < t.Len(); i++ {
		if ts, ok := clock.Time(i); ok {
			byHour[ts.Hour()]++
		}
	}

	var out []Evidence
	var present []float64
	peak, peakCount := -1, 0
	for hour, n := range byHour {
		if n == 0 {
			continue
		}
		present = append(present, float64(n))
		if n > peakCount {
			peak, peakCount = hour, n
		}
	}
	if len(present) > 0 {
		mean, _ := stats.Mean(present)
		if ratio := float64(peakCount) / mean; ratio > peakHourRatio {
			out = append(out, Evidence{
				Pattern:  fmt.Sprintf("Issues are more frequent during %d:00", peak),
				Evidence: fmt.Sprintf("Issue count in this period is %.2fx the average", ratio),
			})
		}
	}

	if shift, ok := t.Column(table.ColShift); ok {
		counts := shift.ValueCounts()
		if len(counts) > 1 {
			ratio := float64(counts[0].Count) / float64(counts[1].Count)
			if ratio > dominantShiftRatio {
				out = append(out, Evidence{
					Pattern:  fmt.Sprintf("%s shift has more issues", counts[0].Value),
					Evidence: fmt.Sprintf("Issue count in this shift is %.2fx other shifts", ratio),
				})
			}
		}
	}
	return out, nil
}

// EquipmentProbe looks for machines that are over-represented or carry the
// highest mean defect count
type EquipmentProbe struct{}

func (p *EquipmentProbe) Factor() FactorType  { return FactorEquipment }
func (p *EquipmentProbe) Description() string { return "Equipment Correlation Analysis" }
func (p *EquipmentProbe) Confidence() float64 { return ConfidenceEquipment }
func (p *EquipmentProbe) Requires() table.Requirements {
	return table.Requirements{Columns: []string{table.ColMachineID}}
}

func (p *EquipmentProbe) Examine(ctx context.Context, t *table.Table) ([]Evidence, error) {
	machines, _ := t.Column(table.ColMachineID)

	var out []Evidence
	if top, ok := overRepresented(machines); ok {
		ev := top.evidence()
		ev.Equipment = top.value
		out = append(out, ev)
	}

	defects, ok := t.Column(table.ColDefectCount)
	if !ok || defects.Type() != table.TypeNumeric {
		return out, nil
	}
	groups := make(map[string][]float64)
	for i := 0; i < t.Len(); i++ {
		key, ok := machines.Key(i)
		if !ok {
			continue
		}
		if v, ok := defects.Float(i); ok {
			groups[key] = append(groups[key], v)
		}
	}
	if len(groups) < 2 {
		return out, nil
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	worst, worstMean := "", math.Inf(-1)
	for _, k := range keys {
		mean, _ := stats.Mean(groups[k])
		if mean > worstMean {
			worst, worstMean = k, mean
		}
	}
	out = append(out, Evidence{
		Equipment:  worst,
		AvgDefects: &worstMean,
		Pattern:    "This equipment has the highest average defect count",
	})
	return out, nil
}

// OperatorProbe looks for over-represented operators
type OperatorProbe struct{}

func (p *OperatorProbe) Factor() FactorType  { return FactorOperator }
func (p *OperatorProbe) Description() string { return "Operator Correlation Analysis" }
func (p *OperatorProbe) Confidence() float64 { return ConfidenceOperator }
func (p *OperatorProbe) Requires() table.Requirements {
	return table.Requirements{Columns: []string{table.ColOperatorID}}
}

func (p *OperatorProbe) Examine(ctx context.Context, t *table.Table) ([]Evidence, error) {
	operators, _ := t.Column(table.ColOperatorID)
	top, ok := overRepresented(operators)
	if !ok {
		return nil, nil
	}
	ev := top.evidence()
	ev.Operator = top.value
	return []Evidence{ev}, nil
}

type frequent struct {
	value string
	count int
	mean  float64
}

func (f frequent) evidence() Evidence {
	count, mean := f.count, f.mean
	ratio := float64(count) / mean
	return Evidence{IssueCount: &count, AvgIssueCount: &mean, Ratio: &ratio}
}

// overRepresented returns the most frequent value of col when it occurs more
// than 1.5x the mean frequency across at least two distinct values
func overRepresented(col *table.Column) (frequent, bool) {
	counts := col.ValueCounts()
	if len(counts) < 2 {
		return frequent{}, false
	}
	freq := make([]float64, len(counts))
	for i, c := range counts {
		freq[i] = float64(c.Count)
	}
	mean, _ := stats.Mean(freq)
	top := counts[0]
	if float64(top.Count) <= mean*overloadRatio {
		return frequent{}, false
	}
	return frequent{value: top.Value, count: top.Count, mean: mean}, true
}

// EnvironmentalProbe compares mean defects in the top quartile of
// temperature and vibration against the remaining rows
type EnvironmentalProbe struct{}

func (p *EnvironmentalProbe) Factor() FactorType  { return FactorEnvironmental }
func (p *EnvironmentalProbe) Description() string { return "Environmental Factors Analysis" }
func (p *EnvironmentalProbe) Confidence() float64 { return ConfidenceEnvironmental }
func (p *EnvironmentalProbe) Requires() table.Requirements {
	return table.Requirements{
		Numeric:    []string{table.ColDefectCount},
		AnyNumeric: []string{table.ColTemperature, table.ColVibration},
	}
}

func (p *EnvironmentalProbe) Examine(ctx context.Context, t *table.Table) ([]Evidence, error) {
	defects, _ := t.Column(table.ColDefectCount)

	var out []Evidence
	for _, factor := range []struct{ column, label, noun string }{
		{table.ColTemperature, FactorTemperature, "temp"},
		{table.ColVibration, FactorVibration, "vibration"},
	} {
		col, ok := t.Column(factor.column)
		if !ok || col.Type() != table.TypeNumeric {
			continue
		}
		high, normal, ok := splitByQuantile(col, defects, highQuantile)
		if !ok || !(high > normal*environmentalLift) {
			continue
		}
		out = append(out, Evidence{
			Factor:  factor.label,
			Pattern: fmt.Sprintf("Higher defect rate under high %s conditions", factor.column),
			Evidence: fmt.Sprintf("Average defects at high %s: %.2f, normal %s: %.2f",
				factor.noun, high, factor.noun, normal),
		})
	}
	return out, nil
}

// splitByQuantile returns the mean of target where by is above its q
// quantile and where it is at or below. ok is false when either side has no
// target values.
func splitByQuantile(by, target *table.Column, q float64) (high, normal float64, ok bool) {
	sorted := by.NonNullFloats()
	if len(sorted) == 0 {
		return 0, 0, false
	}
	sort.Float64s(sorted)
	cut := stat.Quantile(q, stat.LinInterp, sorted, nil)

	var above, below []float64
	for i := 0; i < by.Len(); i++ {
		x, okX := by.Float(i)
		y, okY := target.Float(i)
		if !okX || !okY {
			continue
		}
		if x > cut {
			above = append(above, y)
		} else {
			below = append(below, y)
		}
	}
	if len(above) == 0 || len(below) == 0 {
		return 0, 0, false
	}
	high, _ = stats.Mean(above)
	normal, _ = stats.Mean(below)
	return high, normal, true
}
