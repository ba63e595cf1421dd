package insight

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sentinel/adapters/stats/correlation"
	"sentinel/domain/table"
	"sentinel/internal"
	"sentinel/internal/analysis/rootcause"
)

// Type classifies an insight
type Type string

const (
	TypeTrend       Type = "trend"
	TypeAnomaly     Type = "anomaly"
	TypeCorrelation Type = "correlation"
)

// Severity ranks an insight
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Fixed scores per insight type
const (
	ScoreTrend       = 8.5
	ScoreAnomaly     = 9.0
	ScoreCorrelation = 7.5
)

const (
	defaultWindow        = 100
	trendLift            = 1.1
	outlierSigmas        = 2.0
	correlationThreshold = 0.5
)

// Insight is one headline observation
type Insight struct {
	Type        Type     `json:"type" yaml:"type"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Score       float64  `json:"score" yaml:"score"`
}

// Result lists insights by descending score
type Result struct {
	Insights      []Insight `json:"insights" yaml:"insights"`
	TotalInsights int       `json:"total_insights" yaml:"total_insights"`
	GeneratedAt   time.Time `json:"generated_at" yaml:"generated_at"`
}

// Options selects the rows and columns insights are drawn from
type Options struct {
	Filters rootcause.Filters
	Target  string // default defect_count
	Factor  string // default temperature
	Window  int    // rows compared by the trend check, default 100
}

func (o Options) withDefaults() Options {
	if o.Target == "" {
		o.Target = table.ColDefectCount
	}
	if o.Factor == "" {
		o.Factor = table.ColTemperature
	}
	if o.Window <= 0 {
		o.Window = defaultWindow
	}
	return o
}

// Engine derives insights and corrective actions
type Engine struct {
	correlations *correlation.Engine
	logger       *zap.Logger
	now          func() time.Time
}

// NewEngine creates an insight engine
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		correlations: correlation.NewEngine(),
		logger:       internal.OrNop(logger).Named("insight"),
		now:          time.Now,
	}
}

// Generate filters t and runs the trend, anomaly and correlation checks.
// A check whose columns are absent is skipped.
func (e *Engine) Generate(ctx context.Context, t *table.Table, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	subset, err := rootcause.ApplyFilters(t, opts.Filters)
	if err != nil {
		return nil, err
	}

	var insights []Insight
	for _, check := range []func(*table.Table, Options) (Insight, bool){
		e.trend,
		e.anomaly,
		e.correlation,
	} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if in, ok := check(subset, opts); ok {
			insights = append(insights, in)
		}
	}
	if insights == nil {
		insights = []Insight{}
	}
	sort.SliceStable(insights, func(i, j int) bool { return insights[i].Score > insights[j].Score })

	e.logger.Debug("insights generated", zap.Int("rows", subset.Len()), zap.Int("insights", len(insights)))
	return &Result{Insights: insights, TotalInsights: len(insights), GeneratedAt: e.now()}, nil
}

// trend compares the mean target over the latest window rows with the
// earliest window rows, in timestamp order
func (e *Engine) trend(t *table.Table, opts Options) (Insight, bool) {
	target, ok := numeric(t, opts.Target)
	if !ok {
		return Insight{}, false
	}
	order, ok := t.ChronologicalOrder()
	if !ok || len(order) == 0 {
		return Insight{}, false
	}

	w := min(opts.Window, len(order))
	recent, okR := meanOf(target, order[len(order)-w:])
	if !okR {
		return Insight{}, false
	}
	previous := recent
	if len(order) > opts.Window {
		if p, okP := meanOf(target, order[:w]); okP {
			previous = p
		}
	}
	if !(recent > previous*trendLift) {
		return Insight{}, false
	}

	desc := fmt.Sprintf("Recent %s is %.1f%% higher than before", e.noun(opts.Target), (recent/previous-1)*100)
	if previous <= 0 {
		desc = fmt.Sprintf("Recent %s rose from %.2f to %.2f", e.noun(opts.Target), previous, recent)
	}
	return Insight{
		Type:        TypeTrend,
		Severity:    SeverityHigh,
		Title:       fmt.Sprintf("Rising %s Trend", e.label(opts.Target)),
		Description: desc,
		Score:       ScoreTrend,
	}, true
}

// anomaly counts rows above mean + 2 sample standard deviations
func (e *Engine) anomaly(t *table.Table, opts Options) (Insight, bool) {
	target, ok := numeric(t, opts.Target)
	if !ok {
		return Insight{}, false
	}
	values := target.NonNullFloats()
	if len(values) < 2 {
		return Insight{}, false
	}
	mean, _ := stats.Mean(values)
	std, _ := stats.StandardDeviationSample(values)
	limit := mean + outlierSigmas*std

	outliers := 0
	for _, v := range values {
		if v > limit {
			outliers++
		}
	}
	if outliers == 0 {
		return Insight{}, false
	}
	return Insight{
		Type:        TypeAnomaly,
		Severity:    SeverityCritical,
		Title:       fmt.Sprintf("Found %d records with abnormally high %s", outliers, e.noun(opts.Target)),
		Description: fmt.Sprintf("These records exceed mean %.1f + 2σ", mean),
		Score:       ScoreAnomaly,
	}, true
}

// correlation reports a strong Pearson coefficient between factor and target
func (e *Engine) correlation(t *table.Table, opts Options) (Insight, bool) {
	r, _, ok := e.correlations.Between(t, opts.Factor, opts.Target)
	if !ok || !(r > correlationThreshold || r < -correlationThreshold) {
		return Insight{}, false
	}
	return Insight{
		Type:        TypeCorrelation,
		Severity:    SeverityMedium,
		Title:       fmt.Sprintf("Strong Correlation Between %s and %s", e.label(opts.Factor), e.label(opts.Target)),
		Description: fmt.Sprintf("Correlation coefficient: %.2f", r),
		Score:       ScoreCorrelation,
	}, true
}

// label turns a column name like defect_count into "Defect Count". Casers
// keep state, so each call gets its own.
func (e *Engine) label(column string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(column, "_", " "))
}

func (e *Engine) noun(column string) string {
	return strings.ReplaceAll(column, "_", " ")
}

func numeric(t *table.Table, name string) (*table.Column, bool) {
	col, ok := t.Column(name)
	if !ok || col.Type() != table.TypeNumeric {
		return nil, false
	}
	return col, true
}

func meanOf(col *table.Column, rows []int) (float64, bool) {
	values := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := col.Float(r); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	mean, _ := stats.Mean(values)
	return mean, true
}
