package insight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/domain/core"
	"sentinel/domain/table"
	"sentinel/internal/analysis/rootcause"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	e := NewEngine(nil)
	e.now = func() time.Time { return epoch }
	return e
}

// 300 rows in reverse chronological order. Defects climb from 1 to 3 over
// time and track temperature exactly; row 150 spikes to 40.
func risingTable(t *testing.T) *table.Table {
	t.Helper()
	n := 300
	times := make([]time.Time, n)
	defects := make([]float64, n)
	temps := make([]float64, n)
	for i := 0; i < n; i++ {
		step := n - 1 - i
		times[i] = epoch.Add(time.Duration(step) * time.Hour)
		defects[i] = 1 + 2*float64(step)/float64(n)
		temps[i] = 60 + 10*defects[i]
	}
	defects[150] = 40
	temps[150] = 60 + 10*defects[150]

	tbl, err := table.New(
		table.NewTemporalColumn("timestamp", times),
		table.NewNumericColumn("defect_count", defects),
		table.NewNumericColumn("temperature", temps),
		table.NewCategoricalColumn("production_line", make([]string, n), nil),
	)
	require.NoError(t, err)
	return tbl
}

func TestGenerate_AllChecksFire(t *testing.T) {
	res, err := newTestEngine().Generate(context.Background(), risingTable(t), Options{})
	require.NoError(t, err)

	require.Equal(t, 3, res.TotalInsights)
	assert.Equal(t, epoch, res.GeneratedAt)

	assert.Equal(t, TypeAnomaly, res.Insights[0].Type)
	assert.Equal(t, SeverityCritical, res.Insights[0].Severity)
	assert.Equal(t, "Found 1 records with abnormally high defect count", res.Insights[0].Title)

	assert.Equal(t, TypeTrend, res.Insights[1].Type)
	assert.Equal(t, "Rising Defect Count Trend", res.Insights[1].Title)
	assert.Equal(t, ScoreTrend, res.Insights[1].Score)

	assert.Equal(t, TypeCorrelation, res.Insights[2].Type)
	assert.Equal(t, "Strong Correlation Between Temperature and Defect Count", res.Insights[2].Title)

	for i := 1; i < len(res.Insights); i++ {
		assert.GreaterOrEqual(t, res.Insights[i-1].Score, res.Insights[i].Score)
	}
}

func TestGenerate_ShortTableHasNoTrend(t *testing.T) {
	tbl := risingTable(t).Head(80)
	res, err := newTestEngine().Generate(context.Background(), tbl, Options{})
	require.NoError(t, err)
	for _, in := range res.Insights {
		assert.NotEqual(t, TypeTrend, in.Type)
	}
}

func TestGenerate_MissingColumnsSkipChecks(t *testing.T) {
	tbl := table.MustNew(table.NewCategoricalColumn("shift", []string{"Day", "Night"}, nil))
	res, err := newTestEngine().Generate(context.Background(), tbl, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Insights)
	assert.NotNil(t, res.Insights)
}

func TestGenerate_FilterErrorsPropagate(t *testing.T) {
	_, err := newTestEngine().Generate(context.Background(), risingTable(t), Options{
		Filters: rootcause.Filters{Severity: "High"},
	})
	assert.ErrorIs(t, err, core.ErrColumnNotFound)
}

func TestSuggestActions_Equipment(t *testing.T) {
	plan := newTestEngine().SuggestActions(rootcause.Finding{Type: rootcause.FactorEquipment})
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, "Equipment Maintenance", plan.Actions[0].Action)
	assert.Equal(t, PriorityHigh, plan.Actions[0].Priority)
	assert.Len(t, plan.Actions[0].Steps, 4)
}

func TestSuggestActions_EnvironmentalPerFactor(t *testing.T) {
	finding := rootcause.Finding{
		Type: rootcause.FactorEnvironmental,
		Findings: []rootcause.Evidence{
			{Factor: rootcause.FactorVibration},
			{Factor: rootcause.FactorTemperature},
		},
	}
	plan := newTestEngine().SuggestActions(finding)
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, "Vibration Control", plan.Actions[0].Action)
	assert.Equal(t, "Temperature Control", plan.Actions[1].Action)
	assert.Equal(t, finding, plan.RootCause)
}

func TestSuggestActions_Fallback(t *testing.T) {
	e := newTestEngine()
	for _, finding := range []rootcause.Finding{
		{Type: rootcause.FactorOperator},
		{Type: "unknown"},
		{Type: rootcause.FactorEnvironmental, Findings: []rootcause.Evidence{{Factor: "Humidity"}}},
	} {
		plan := e.SuggestActions(finding)
		require.Len(t, plan.Actions, 1)
		assert.Equal(t, "Data Collection and Analysis", plan.Actions[0].Action)
	}
}

func TestSuggestActions_PlaybookIsNotShared(t *testing.T) {
	e := newTestEngine()
	first := e.SuggestActions(rootcause.Finding{Type: rootcause.FactorEquipment})
	first.Actions[0].Steps[0] = "changed"

	second := e.SuggestActions(rootcause.Finding{Type: rootcause.FactorEquipment})
	assert.Equal(t, "Check equipment operating parameters", second.Actions[0].Steps[0])
}
