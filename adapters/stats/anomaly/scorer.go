package anomaly

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"sentinel/domain/core"
	"sentinel/domain/table"
	"sentinel/ports"
)

const (
	defaultLimit      = 50
	outlierZ          = 2.0
	minFeatureColumns = 2
)

// MessageNotTrained is reported when the table has too few numeric columns to fit
const MessageNotTrained = "Model not trained"

// Record is one flagged row
type Record struct {
	Index        int            `json:"index" yaml:"index"`
	AnomalyScore float64        `json:"anomaly_score" yaml:"anomaly_score"`
	Data         map[string]any `json:"data" yaml:"data"`
}

// Report lists flagged rows, most anomalous first
type Report struct {
	Anomalies      []Record `json:"anomalies" yaml:"anomalies"`
	TotalAnomalies int      `json:"total_anomalies" yaml:"total_anomalies"`
	AnomalyRate    float64  `json:"anomaly_rate" yaml:"anomaly_rate"`
	Trained        bool     `json:"trained" yaml:"trained"`
	Message        string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// Scaler holds the per-column mean and population std used to standardize rows
type Scaler struct {
	Columns []string
	Means   []float64
	Stds    []float64
}

// FitScaler learns means and population standard deviations over non-missing
// cells. All-missing columns get mean 0; zero-variance columns scale by 1.
func FitScaler(t *table.Table, columns []string) *Scaler {
	s := &Scaler{
		Columns: columns,
		Means:   make([]float64, len(columns)),
		Stds:    make([]float64, len(columns)),
	}
	for j, name := range columns {
		col, _ := t.Column(name)
		values := col.NonNullFloats()
		if len(values) == 0 {
			s.Stds[j] = 1
			continue
		}
		mean, std := stat.PopMeanStdDev(values, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Means[j], s.Stds[j] = mean, std
	}
	return s
}

// Transform imputes missing cells with the column mean and standardizes
func (s *Scaler) Transform(t *table.Table) [][]float64 {
	cols := make([]*table.Column, len(s.Columns))
	for j, name := range s.Columns {
		cols[j], _ = t.Column(name)
	}
	rows := make([][]float64, t.Len())
	for i := range rows {
		row := make([]float64, len(cols))
		for j, col := range cols {
			v, ok := col.Float(i)
			if !ok {
				v = s.Means[j]
			}
			row[j] = (v - s.Means[j]) / s.Stds[j]
		}
		rows[i] = row
	}
	return rows
}

// Model is a detector trained on one table. It is immutable once built.
type Model struct {
	table   *table.Table
	columns []string
	scores  []float64
	flagged []int // row indices, ascending by score then index
	trained bool
}

// Fit trains detector on the numeric columns of t and scores every row.
// Fewer than two numeric columns or an empty table yields an untrained model,
// not an error.
func Fit(ctx context.Context, t *table.Table, detector ports.OutlierDetector) (*Model, error) {
	columns := t.NamesOf(table.TypeNumeric)
	m := &Model{table: t, columns: columns}
	if len(columns) < minFeatureColumns || t.Len() == 0 {
		return m, nil
	}

	rows := FitScaler(t, columns).Transform(t)
	if err := detector.Fit(ctx, rows); err != nil {
		return nil, fmt.Errorf("fitting outlier detector: %w", err)
	}
	scores, err := detector.ScoreSamples(rows)
	if err != nil {
		return nil, fmt.Errorf("scoring rows: %w", err)
	}

	threshold := detector.Threshold()
	for i, s := range scores {
		if s < threshold {
			m.flagged = append(m.flagged, i)
		}
	}
	sort.SliceStable(m.flagged, func(a, b int) bool {
		return scores[m.flagged[a]] < scores[m.flagged[b]]
	})
	m.scores = scores
	m.trained = true
	return m, nil
}

// Trained reports whether the model could be fitted
func (m *Model) Trained() bool { return m.trained }

// Columns returns the feature columns in table order
func (m *Model) Columns() []string { return m.columns }

// Score returns up to limit flagged rows, most anomalous first. The totals
// always describe every flagged row. A non-positive limit means 50.
func (m *Model) Score(limit int) Report {
	if !m.trained {
		return Report{Anomalies: []Record{}, Message: MessageNotTrained}
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	shown := m.flagged
	if len(shown) > limit {
		shown = shown[:limit]
	}
	records := make([]Record, len(shown))
	for k, i := range shown {
		records[k] = Record{
			Index:        i,
			AnomalyScore: m.scores[i],
			Data:         m.table.Row(i, core.ISOLayout),
		}
	}

	return Report{
		Anomalies:      records,
		TotalAnomalies: len(m.flagged),
		AnomalyRate:    float64(len(m.flagged)) / float64(m.table.Len()) * 100,
		Trained:        true,
	}
}

// Feature is one numeric column's contribution to a row
type Feature struct {
	Column    string  `json:"column" yaml:"column"`
	Value     float64 `json:"value" yaml:"value"`
	Mean      float64 `json:"mean" yaml:"mean"`
	Std       float64 `json:"std" yaml:"std"`
	ZScore    float64 `json:"z_score" yaml:"z_score"`
	IsOutlier bool    `json:"is_outlier" yaml:"is_outlier"`
}

// Breakdown explains a single row
type Breakdown struct {
	Index    int       `json:"index" yaml:"index"`
	Features []Feature `json:"features" yaml:"features"`
}

// FeatureBreakdown computes the z-score of row against each numeric column's
// mean and sample std. Missing cells and zero-variance columns are skipped.
func FeatureBreakdown(t *table.Table, row int) (*Breakdown, error) {
	if row < 0 || row >= t.Len() {
		return nil, core.NewRowNotFoundError(row, t.Len())
	}

	out := &Breakdown{Index: row, Features: []Feature{}}
	for _, name := range t.NamesOf(table.TypeNumeric) {
		col, _ := t.Column(name)
		v, ok := col.Float(row)
		if !ok {
			continue
		}
		values := col.NonNullFloats()
		if len(values) < 2 {
			continue
		}
		mean, std := stat.MeanStdDev(values, nil)
		if !(std > 0) {
			continue
		}
		z := (v - mean) / std
		out.Features = append(out.Features, Feature{
			Column:    name,
			Value:     v,
			Mean:      mean,
			Std:       std,
			ZScore:    z,
			IsOutlier: math.Abs(z) > outlierZ,
		})
	}
	return out, nil
}
