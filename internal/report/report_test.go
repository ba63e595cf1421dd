package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/adapters/stats/anomaly"
	"sentinel/adapters/stats/correlation"
	"sentinel/domain/core"
	"sentinel/domain/table"
	"sentinel/internal/analysis/insight"
	"sentinel/internal/analysis/rootcause"
	"sentinel/internal/testkit"
)

type fitOnDemand struct{ calls int }

func (f *fitOnDemand) ModelFor(ctx context.Context, snap *table.Snapshot) (*anomaly.Model, error) {
	f.calls++
	cfg := anomaly.DefaultForestConfig()
	cfg.Trees = 25
	return anomaly.Fit(ctx, snap.Table(), anomaly.NewIsolationForest(cfg))
}

var generatedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestBuilder(models ModelSource) *Builder {
	b := NewBuilder(models, rootcause.NewAnalyzer(nil), insight.NewEngine(nil), nil)
	b.now = func() time.Time { return generatedAt }
	return b
}

func plantSnapshot(t *testing.T) *table.Snapshot {
	t.Helper()
	cfg := testkit.DefaultManufacturingConfig()
	cfg.Rows = 400
	tbl, err := testkit.GenerateManufacturing(cfg)
	require.NoError(t, err)
	return table.NewSnapshot(tbl, "sample")
}

func TestBuild_CollectsEveryAnalysis(t *testing.T) {
	models := &fitOnDemand{}
	snap := plantSnapshot(t)

	rep, err := newTestBuilder(models).Build(context.Background(), snap, Options{
		CorrelationThreshold: 0.1,
		AnomalyLimit:         5,
	})
	require.NoError(t, err)

	_, err = uuid.Parse(rep.ID)
	assert.NoError(t, err)
	assert.Equal(t, snap.ID, rep.SnapshotID)
	assert.Equal(t, "sample", rep.Source)
	assert.Equal(t, generatedAt, rep.GeneratedAt)
	assert.Equal(t, 1, models.calls)

	assert.Equal(t, 400, rep.Overview.RowCount)
	assert.True(t, rep.Anomalies.Trained)
	assert.LessOrEqual(t, len(rep.Anomalies.Anomalies), 5)
	require.NotNil(t, rep.RootCause)
	assert.Equal(t, 400, rep.RootCause.TotalIssues)
	require.NotNil(t, rep.Insights)

	require.Len(t, rep.Actions, len(rep.RootCause.RootCauses))
	for i, plan := range rep.Actions {
		assert.Equal(t, rep.RootCause.RootCauses[i], plan.RootCause)
		assert.NotEmpty(t, plan.Actions)
	}
}

func TestBuild_FilterErrorFailsReport(t *testing.T) {
	tbl := table.MustNew(
		table.NewNumericColumn("defect_count", []float64{1, 2, 3}),
		table.NewNumericColumn("temperature", []float64{70, 75, 80}),
	)
	_, err := newTestBuilder(&fitOnDemand{}).Build(context.Background(), table.NewSnapshot(tbl, "t"), Options{
		Filters: rootcause.Filters{ProductionLine: "Line A"},
	})
	assert.ErrorIs(t, err, core.ErrColumnNotFound)
}

func TestMarkdown_Sections(t *testing.T) {
	rep, err := newTestBuilder(&fitOnDemand{}).Build(context.Background(), plantSnapshot(t), Options{CorrelationThreshold: 0.1})
	require.NoError(t, err)

	md := Markdown(rep)
	assert.True(t, strings.HasPrefix(md, "# Manufacturing Quality Report\n"))
	for _, heading := range []string{"## Overview", "## Root Causes", "## Insights", "## Correlations", "## Anomalies", "## Recommended Actions"} {
		assert.Contains(t, md, heading)
	}
	assert.Contains(t, md, "- Records: 400")
	assert.Contains(t, md, "- Period: 2024-01-01T00:00:00 to 2024-01-17T15:00:00")
}

func TestMarkdown_EmptyReport(t *testing.T) {
	md := Markdown(&Report{
		Anomalies:    anomaly.Report{Message: anomaly.MessageNotTrained},
		Correlations: correlation.Result{Message: correlation.MessageInsufficientColumns},
	})
	assert.Contains(t, md, "No root cause stood out")
	assert.Contains(t, md, "No insights.")
	assert.Contains(t, md, correlation.MessageInsufficientColumns)
	assert.Contains(t, md, anomaly.MessageNotTrained)
	assert.Contains(t, md, "No actions suggested.")
}

func TestMarkdown_NamesFlaggedMachinesAndOperators(t *testing.T) {
	count, mean, ratio := 80, 40.0, 2.0
	worst := 4.25
	md := Markdown(&Report{
		RootCause: &rootcause.Result{RootCauses: []rootcause.Finding{
			{
				Type:        rootcause.FactorOperator,
				Description: "Operator Correlation Analysis",
				Confidence:  rootcause.ConfidenceOperator,
				Findings:    []rootcause.Evidence{{Operator: "OP01", IssueCount: &count, AvgIssueCount: &mean, Ratio: &ratio}},
			},
			{
				Type:        rootcause.FactorEquipment,
				Description: "Equipment Correlation Analysis",
				Confidence:  rootcause.ConfidenceEquipment,
				Findings: []rootcause.Evidence{{
					Equipment:  "M-03",
					AvgDefects: &worst,
					Pattern:    "This equipment has the highest average defect count",
				}},
			},
		}},
		Anomalies: anomaly.Report{Message: anomaly.MessageNotTrained},
	})

	assert.Contains(t, md, "- OP01: 80 issues, 2.00x the average of 40.00\n")
	assert.Contains(t, md, "- M-03: This equipment has the highest average defect count (average defects 4.25)\n")
	assert.NotContains(t, md, "- \n")
}

func TestHTML_CompletePage(t *testing.T) {
	rep, err := newTestBuilder(&fitOnDemand{}).Build(context.Background(), plantSnapshot(t), Options{CorrelationThreshold: 0})
	require.NoError(t, err)

	page := string(HTML(rep))
	assert.Contains(t, page, "<title>Manufacturing Quality Report</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "Overview</h2>")
}
