package anomaly

import (
	"errors"
	"math"
	"math/rand"

	"github.com/openaudit/kestrel/internal/stats"
)

// ErrNotFitted is returned when a model is used before training.
var ErrNotFitted = errors.New("model not fitted")

// ForestConfig controls isolation forest training.
type ForestConfig struct {
	// Trees is the ensemble size.
	Trees int

	// SampleSize is the per-tree subsample size.
	SampleSize int

	// Contamination is the expected outlier fraction; it sets the
	// binary-flag threshold at the matching quantile of the training
	// score distribution.
	Contamination float64

	// Seed drives subsampling and split choices.
	Seed int64
}

// DefaultForestConfig mirrors the production fit parameters.
func DefaultForestConfig(seed int64) ForestConfig {
	return ForestConfig{
		Trees:         300,
		SampleSize:    256,
		Contamination: 0.03,
		Seed:          seed,
	}
}

// IsolationForest isolates observations by random axis-parallel
// splits; anomalies isolate in fewer splits. Scores are in (0, 1],
// higher = more anomalous. Immutable once fitted.
type IsolationForest struct {
	trees      []*itreeNode
	sampleSize int
	threshold  float64
	fitted     bool
}

type itreeNode struct {
	// Internal node
	feature int
	split   float64
	left    *itreeNode
	right   *itreeNode

	// External node
	size     int
	external bool
}

// FitForest trains an isolation forest and returns it together with
// the anomaly scores of the training matrix (the normalizer needs that
// distribution).
func FitForest(cfg ForestConfig, X [][]float64) (*IsolationForest, []float64, error) {
	if len(X) == 0 {
		return nil, nil, errors.New("empty training matrix")
	}
	if cfg.Trees <= 0 {
		cfg.Trees = 300
	}
	if cfg.SampleSize <= 0 || cfg.SampleSize > len(X) {
		cfg.SampleSize = len(X)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	maxDepth := int(math.Ceil(math.Log2(float64(cfg.SampleSize))))

	f := &IsolationForest{
		trees:      make([]*itreeNode, 0, cfg.Trees),
		sampleSize: cfg.SampleSize,
	}

	for i := 0; i < cfg.Trees; i++ {
		sample := make([][]float64, 0, cfg.SampleSize)
		for _, idx := range rng.Perm(len(X))[:cfg.SampleSize] {
			sample = append(sample, X[idx])
		}
		f.trees = append(f.trees, buildITree(sample, 0, maxDepth, rng))
	}
	f.fitted = true

	trainScores := make([]float64, len(X))
	for i, row := range X {
		trainScores[i] = f.Score(row)
	}

	if cfg.Contamination > 0 && cfg.Contamination < 1 {
		f.threshold = stats.Percentile(trainScores, 1-cfg.Contamination)
	} else {
		f.threshold = stats.Percentile(trainScores, 0.97)
	}

	return f, trainScores, nil
}

func buildITree(sample [][]float64, depth, maxDepth int, rng *rand.Rand) *itreeNode {
	if len(sample) <= 1 || depth >= maxDepth {
		return &itreeNode{size: len(sample), external: true}
	}

	dim := len(sample[0])
	feature := rng.Intn(dim)

	lo, hi := sample[0][feature], sample[0][feature]
	for _, row := range sample {
		if row[feature] < lo {
			lo = row[feature]
		}
		if row[feature] > hi {
			hi = row[feature]
		}
	}
	if lo == hi {
		// Constant along this axis, cannot split further.
		return &itreeNode{size: len(sample), external: true}
	}

	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range sample {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &itreeNode{
		feature: feature,
		split:   split,
		left:    buildITree(left, depth+1, maxDepth, rng),
		right:   buildITree(right, depth+1, maxDepth, rng),
	}
}

// Score returns the anomaly score for one standardized row.
func (f *IsolationForest) Score(x []float64) float64 {
	if !f.fitted {
		return 0
	}

	var total float64
	for _, tree := range f.trees {
		total += pathLength(tree, x, 0)
	}
	avg := total / float64(len(f.trees))

	return math.Pow(2, -avg/avgPathLength(f.sampleSize))
}

// IsOutlier is the binary anomaly flag at the fitted contamination
// threshold.
func (f *IsolationForest) IsOutlier(x []float64) bool {
	return f.fitted && f.Score(x) >= f.threshold
}

// Threshold exposes the fitted decision threshold.
func (f *IsolationForest) Threshold() float64 {
	return f.threshold
}

func pathLength(node *itreeNode, x []float64, depth int) float64 {
	if node.external {
		return float64(depth) + avgPathLength(node.size)
	}
	if x[node.feature] < node.split {
		return pathLength(node.left, x, depth+1)
	}
	return pathLength(node.right, x, depth+1)
}

const eulerGamma = 0.5772156649015329

// avgPathLength is c(n), the expected path length of an unsuccessful
// BST search over n points.
func avgPathLength(n int) float64 {
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
