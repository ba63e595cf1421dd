package anomaly

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// eulerGamma approximates the harmonic number tail in c(n)
const eulerGamma = 0.5772156649

// ForestConfig tunes the isolation forest
type ForestConfig struct {
	Trees         int
	SubsampleSize int
	Contamination float64 // expected outlier fraction, sets the threshold
	Seed          uint64
}

// DefaultForestConfig returns 100 trees, 256-row sub-samples, 10% contamination, seed 42
func DefaultForestConfig() ForestConfig {
	return ForestConfig{Trees: 100, SubsampleSize: 256, Contamination: 0.1, Seed: 42}
}

var (
	errNotFitted     = errors.New("isolation forest not fitted")
	errNoTrainingRow = errors.New("isolation forest needs at least one row")
)

// IsolationForest scores rows by how quickly random axis-aligned splits
// isolate them. Scores are the negated anomaly measure 2^(-E[h]/c(ψ)), so
// lower is more anomalous.
type IsolationForest struct {
	cfg       ForestConfig
	trees     []*isolationNode
	psi       int
	threshold float64
	fitted    bool
}

type isolationNode struct {
	feature int
	split   float64
	left    *isolationNode
	right   *isolationNode
	size    int
}

func (n *isolationNode) leaf() bool { return n.left == nil }

// NewIsolationForest creates an untrained forest
func NewIsolationForest(cfg ForestConfig) *IsolationForest {
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.SubsampleSize < 2 {
		cfg.SubsampleSize = 256
	}
	if cfg.Contamination <= 0 || cfg.Contamination >= 0.5 {
		cfg.Contamination = 0.1
	}
	return &IsolationForest{cfg: cfg}
}

// Fit grows the trees from a seeded stream, so identical rows always yield
// an identical forest
func (f *IsolationForest) Fit(ctx context.Context, rows [][]float64) error {
	if len(rows) == 0 {
		return errNoTrainingRow
	}
	rng := rand.New(rand.NewPCG(f.cfg.Seed, f.cfg.Seed))

	f.psi = min(f.cfg.SubsampleSize, len(rows))
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(f.psi), 2))))
	f.trees = make([]*isolationNode, f.cfg.Trees)

	for i := range f.trees {
		if err := ctx.Err(); err != nil {
			return err
		}
		perm := rng.Perm(len(rows))[:f.psi]
		sample := make([][]float64, f.psi)
		for k, r := range perm {
			sample[k] = rows[r]
		}
		f.trees[i] = buildNode(rng, sample, 0, maxDepth)
	}
	f.fitted = true

	scores, err := f.ScoreSamples(rows)
	if err != nil {
		return err
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	f.threshold = stat.Quantile(f.cfg.Contamination, stat.LinInterp, sorted, nil)
	return nil
}

// ScoreSamples returns -2^(-E[h(x)]/c(ψ)) for every row
func (f *IsolationForest) ScoreSamples(rows [][]float64) ([]float64, error) {
	if !f.fitted {
		return nil, errNotFitted
	}
	norm := averagePathLength(f.psi)
	scores := make([]float64, len(rows))
	for i, row := range rows {
		depth := 0.0
		for _, tree := range f.trees {
			depth += pathLength(tree, row, 0)
		}
		depth /= float64(len(f.trees))
		if norm == 0 {
			scores[i] = -0.5
			continue
		}
		scores[i] = -math.Pow(2, -depth/norm)
	}
	return scores, nil
}

// Threshold is the contamination quantile of the training scores
func (f *IsolationForest) Threshold() float64 {
	return f.threshold
}

func buildNode(rng *rand.Rand, data [][]float64, depth, maxDepth int) *isolationNode {
	if len(data) <= 1 || depth >= maxDepth {
		return &isolationNode{size: len(data)}
	}

	// only features that still vary can split
	width := len(data[0])
	lows := make([]float64, width)
	highs := make([]float64, width)
	copy(lows, data[0])
	copy(highs, data[0])
	for _, row := range data[1:] {
		for j, v := range row {
			lows[j] = math.Min(lows[j], v)
			highs[j] = math.Max(highs[j], v)
		}
	}
	candidates := make([]int, 0, width)
	for j := range lows {
		if highs[j] > lows[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &isolationNode{size: len(data)}
	}

	feature := candidates[rng.IntN(len(candidates))]
	split := lows[feature] + rng.Float64()*(highs[feature]-lows[feature])

	var left, right [][]float64
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isolationNode{size: len(data)}
	}

	return &isolationNode{
		feature: feature,
		split:   split,
		left:    buildNode(rng, left, depth+1, maxDepth),
		right:   buildNode(rng, right, depth+1, maxDepth),
		size:    len(data),
	}
}

func pathLength(node *isolationNode, row []float64, depth int) float64 {
	for !node.leaf() {
		if row[node.feature] < node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(node.size)
}

// averagePathLength is c(n), the mean unsuccessful-search depth of a BST on n keys
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}
