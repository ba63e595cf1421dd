package rootcause

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"sentinel/domain/table"
	"sentinel/internal"
)

// Finding is one probe's result
type Finding struct {
	Type        FactorType `json:"type" yaml:"type"`
	Description string     `json:"description" yaml:"description"`
	Findings    []Evidence `json:"findings" yaml:"findings"`
	Confidence  float64    `json:"confidence" yaml:"confidence"`
}

// Result is the outcome of a root-cause analysis
type Result struct {
	RootCauses   []Finding `json:"root_causes" yaml:"root_causes"`
	TotalIssues  int       `json:"total_issues" yaml:"total_issues"`
	AnalysisDate time.Time `json:"analysis_date" yaml:"analysis_date"`
}

// Analyzer runs probes over a filtered table
type Analyzer struct {
	probes []Probe
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithProbes replaces the default probe set
func WithProbes(probes ...Probe) Option {
	return func(a *Analyzer) { a.probes = probes }
}

// WithClock overrides the analysis timestamp source
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an analyzer with the default probes
func NewAnalyzer(logger *zap.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		probes: DefaultProbes(),
		logger: internal.OrNop(logger).Named("rootcause"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze filters t and runs every probe whose requirements the subset meets.
// Probes that fail or panic are logged and contribute nothing. Findings are
// ordered by confidence, ties in probe order.
func (a *Analyzer) Analyze(ctx context.Context, t *table.Table, filters Filters) (*Result, error) {
	subset, err := ApplyFilters(t, filters)
	if err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(a.probes))
	for _, probe := range a.probes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !subset.Satisfies(probe.Requires()) {
			a.logger.Debug("probe skipped, requirements not met", zap.String("factor", string(probe.Factor())))
			continue
		}
		evidence, err := a.run(ctx, probe, subset)
		if err != nil {
			a.logger.Warn("probe failed", zap.String("factor", string(probe.Factor())), zap.Error(err))
			continue
		}
		if len(evidence) == 0 {
			continue
		}
		findings = append(findings, Finding{
			Type:        probe.Factor(),
			Description: probe.Description(),
			Findings:    evidence,
			Confidence:  probe.Confidence(),
		})
	}
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Confidence > findings[j].Confidence })

	a.logger.Info("root cause analysis complete",
		zap.Int("rows", subset.Len()),
		zap.Int("findings", len(findings)))

	return &Result{
		RootCauses:   findings,
		TotalIssues:  subset.Len(),
		AnalysisDate: a.now(),
	}, nil
}

// run isolates a probe so that a panic becomes an error
func (a *Analyzer) run(ctx context.Context, probe Probe, t *table.Table) (evidence []Evidence, err error) {
	defer func() {
		if r := recover(); r != nil {
			evidence, err = nil, fmt.Errorf("probe %s panicked: %v", probe.Factor(), r)
		}
	}()
	return probe.Examine(ctx, t)
}
