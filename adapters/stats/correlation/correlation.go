package correlation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"sentinel/domain/table"
)

// Strength labels for |r|
const (
	StrengthVeryStrong = "very_strong"
	StrengthStrong     = "strong"
	StrengthModerate   = "moderate"
	StrengthWeak       = "weak"
)

// MessageInsufficientColumns is reported when fewer than two numeric columns exist
const MessageInsufficientColumns = "Insufficient numeric columns to calculate correlations"

// Pair is one unordered column pair whose |r| met the threshold
type Pair struct {
	Variable1      string   `json:"variable1" yaml:"variable1"`
	Variable2      string   `json:"variable2" yaml:"variable2"`
	Correlation    float64  `json:"correlation" yaml:"correlation"`
	AbsCorrelation float64  `json:"abs_correlation" yaml:"abs_correlation"`
	PValue         *float64 `json:"p_value" yaml:"p_value"`
	Strength       string   `json:"strength" yaml:"strength"`
}

// Result lists qualifying pairs by descending |r|
type Result struct {
	Correlations []Pair  `json:"correlations" yaml:"correlations"`
	Threshold    float64 `json:"threshold" yaml:"threshold"`
	TotalPairs   int     `json:"total_pairs" yaml:"total_pairs"`
	Message      string  `json:"message,omitempty" yaml:"message,omitempty"`
}

// Matrix is the pairwise Pearson matrix over a table's numeric columns.
// Cells are NaN where a pair has fewer than two complete rows or no variance.
type Matrix struct {
	Columns []string
	R       *mat.SymDense
	N       [][]int // pairwise-complete row counts
}

// Engine computes Pearson correlations between numeric columns
type Engine struct{}

// NewEngine creates a new correlation engine
func NewEngine() *Engine {
	return &Engine{}
}

// Matrix builds the full pairwise matrix using pairwise-complete rows
func (e *Engine) Matrix(t *table.Table) *Matrix {
	names := t.NamesOf(table.TypeNumeric)
	k := len(names)
	cols := make([][]float64, k)
	for i, name := range names {
		col, _ := t.Column(name)
		cols[i] = col.Floats()
	}

	m := &Matrix{Columns: names, N: make([][]int, k)}
	if k == 0 {
		return m
	}
	m.R = mat.NewSymDense(k, nil)
	for i := range m.N {
		m.N[i] = make([]int, k)
	}

	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			x, y := complete(cols[i], cols[j])
			m.N[i][j], m.N[j][i] = len(x), len(x)
			r := math.NaN()
			if len(x) >= 2 {
				r = stat.Correlation(x, y, nil)
			}
			if i == j && !math.IsNaN(r) {
				r = 1
			}
			m.R.SetSym(i, j, clamp(r))
		}
	}
	return m
}

// Correlations returns every upper-triangle pair with |r| >= threshold
func (e *Engine) Correlations(t *table.Table, threshold float64) Result {
	m := e.Matrix(t)
	if len(m.Columns) < 2 {
		return Result{Correlations: []Pair{}, Threshold: threshold, Message: MessageInsufficientColumns}
	}

	pairs := make([]Pair, 0)
	for i := 0; i < len(m.Columns); i++ {
		for j := i + 1; j < len(m.Columns); j++ {
			r := m.R.At(i, j)
			if math.IsNaN(r) || math.Abs(r) < threshold {
				continue
			}
			pairs = append(pairs, Pair{
				Variable1:      m.Columns[i],
				Variable2:      m.Columns[j],
				Correlation:    r,
				AbsCorrelation: math.Abs(r),
				PValue:         PValue(r, m.N[i][j]),
				Strength:       Strength(math.Abs(r)),
			})
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].AbsCorrelation > pairs[b].AbsCorrelation })

	return Result{Correlations: pairs, Threshold: threshold, TotalPairs: len(pairs)}
}

// Between returns r for two named numeric columns over their complete rows.
// ok is false when either column is missing or non-numeric, or r is undefined.
func (e *Engine) Between(t *table.Table, a, b string) (r float64, n int, ok bool) {
	ca, okA := t.Column(a)
	cb, okB := t.Column(b)
	if !okA || !okB || ca.Type() != table.TypeNumeric || cb.Type() != table.TypeNumeric {
		return 0, 0, false
	}
	x, y := complete(ca.Floats(), cb.Floats())
	if len(x) < 2 {
		return 0, len(x), false
	}
	r = stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0, len(x), false
	}
	return clamp(r), len(x), true
}

// PValue is the two-sided Student-t p-value for r over n rows, or nil when
// the test is undefined (n < 3).
func PValue(r float64, n int) *float64 {
	if n < 3 || math.IsNaN(r) {
		return nil
	}
	if math.Abs(r) >= 1 {
		p := 0.0
		return &p
	}
	df := float64(n - 2)
	tStat := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(tStat))
	return &p
}

// Strength labels an absolute coefficient
func Strength(abs float64) string {
	switch {
	case abs >= 0.8:
		return StrengthVeryStrong
	case abs >= 0.6:
		return StrengthStrong
	case abs >= 0.4:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// complete keeps rows where both x and y are present
func complete(x, y []float64) ([]float64, []float64) {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}

func clamp(r float64) float64 {
	if math.IsNaN(r) {
		return r
	}
	return math.Max(-1, math.Min(1, r))
}
