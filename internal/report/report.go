package report

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sentinel/adapters/stats/anomaly"
	"sentinel/adapters/stats/correlation"
	"sentinel/adapters/stats/profile"
	"sentinel/domain/core"
	"sentinel/domain/table"
	"sentinel/internal"
	"sentinel/internal/analysis/insight"
	"sentinel/internal/analysis/rootcause"
)

// ModelSource hands out the anomaly model fitted to a snapshot
type ModelSource interface {
	ModelFor(ctx context.Context, snap *table.Snapshot) (*anomaly.Model, error)
}

// Options tunes the analyses a report runs
type Options struct {
	Filters              rootcause.Filters `json:"filters" yaml:"filters"`
	CorrelationThreshold float64           `json:"correlation_threshold" yaml:"correlation_threshold"`
	AnomalyLimit         int               `json:"anomaly_limit" yaml:"anomaly_limit"`
	Target               string            `json:"target,omitempty" yaml:"target,omitempty"`
	Factor               string            `json:"factor,omitempty" yaml:"factor,omitempty"`
}

// Report bundles every analysis of one snapshot
type Report struct {
	ID           string               `json:"id" yaml:"id"`
	SnapshotID   core.SnapshotID      `json:"snapshot_id" yaml:"snapshot_id"`
	Source       string               `json:"source" yaml:"source"`
	GeneratedAt  time.Time            `json:"generated_at" yaml:"generated_at"`
	Overview     profile.Overview     `json:"overview" yaml:"overview"`
	Correlations correlation.Result   `json:"correlations" yaml:"correlations"`
	Anomalies    anomaly.Report       `json:"anomalies" yaml:"anomalies"`
	RootCause    *rootcause.Result    `json:"root_cause" yaml:"root_cause"`
	Insights     *insight.Result      `json:"insights" yaml:"insights"`
	Actions      []insight.ActionPlan `json:"actions" yaml:"actions"`
}

// Builder runs the analyses behind a report
type Builder struct {
	profiler     *profile.Profiler
	correlations *correlation.Engine
	analyzer     *rootcause.Analyzer
	insights     *insight.Engine
	models       ModelSource
	logger       *zap.Logger
	now          func() time.Time
}

// NewBuilder creates a report builder
func NewBuilder(models ModelSource, analyzer *rootcause.Analyzer, insights *insight.Engine, logger *zap.Logger) *Builder {
	return &Builder{
		profiler:     profile.NewProfiler(),
		correlations: correlation.NewEngine(),
		analyzer:     analyzer,
		insights:     insights,
		models:       models,
		logger:       internal.OrNop(logger).Named("report"),
		now:          time.Now,
	}
}

// Build analyzes snap concurrently; snapshots are immutable so the analyses
// share the table without copying. The first failing analysis cancels the rest.
func (b *Builder) Build(ctx context.Context, snap *table.Snapshot, opts Options) (*Report, error) {
	t := snap.Table()
	rep := &Report{
		ID:          core.NewReportID().String(),
		SnapshotID:  snap.ID,
		Source:      snap.Source,
		GeneratedAt: b.now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rep.Overview = b.profiler.Overview(t)
		return nil
	})
	g.Go(func() error {
		rep.Correlations = b.correlations.Correlations(t, opts.CorrelationThreshold)
		return nil
	})
	g.Go(func() error {
		model, err := b.models.ModelFor(gctx, snap)
		if err != nil {
			return fmt.Errorf("anomalies: %w", err)
		}
		rep.Anomalies = model.Score(opts.AnomalyLimit)
		return nil
	})
	g.Go(func() error {
		res, err := b.analyzer.Analyze(gctx, t, opts.Filters)
		if err != nil {
			return fmt.Errorf("root cause: %w", err)
		}
		rep.RootCause = res
		return nil
	})
	g.Go(func() error {
		res, err := b.insights.Generate(gctx, t, insight.Options{
			Filters: opts.Filters,
			Target:  opts.Target,
			Factor:  opts.Factor,
		})
		if err != nil {
			return fmt.Errorf("insights: %w", err)
		}
		rep.Insights = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep.Actions = make([]insight.ActionPlan, 0, len(rep.RootCause.RootCauses))
	for _, finding := range rep.RootCause.RootCauses {
		rep.Actions = append(rep.Actions, b.insights.SuggestActions(finding))
	}

	b.logger.Info("report built",
		zap.String("report", rep.ID),
		zap.String("snapshot", snap.ID.String()),
		zap.Int("root_causes", len(rep.RootCause.RootCauses)),
		zap.Int("insights", rep.Insights.TotalInsights))
	return rep, nil
}
