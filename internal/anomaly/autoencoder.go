package anomaly

import (
	"errors"
	"math"
	"math/rand"
)

// AutoencoderConfig controls the secondary detector's training run.
type AutoencoderConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
}

// DefaultAutoencoderConfig mirrors the production fit parameters.
func DefaultAutoencoderConfig(seed int64) AutoencoderConfig {
	return AutoencoderConfig{
		Epochs:       30,
		BatchSize:    64,
		LearningRate: 0.001,
		Seed:         seed,
	}
}

// Autoencoder is a small dense reconstruction network
// (8 -> 32 -> 16 -> 32 -> 8). The anomaly score of a row is its mean
// squared reconstruction error: patterns the network never saw during
// training reconstruct poorly. Immutable once fitted.
type Autoencoder struct {
	layers []*denseLayer
	fitted bool
}

type denseLayer struct {
	in, out int
	w       [][]float64 // [out][in]
	b       []float64
	relu    bool
}

func newDenseLayer(in, out int, relu bool, rng *rand.Rand) *denseLayer {
	l := &denseLayer{in: in, out: out, relu: relu}
	// Glorot uniform init.
	limit := math.Sqrt(6.0 / float64(in+out))
	l.w = make([][]float64, out)
	for o := range l.w {
		l.w[o] = make([]float64, in)
		for i := range l.w[o] {
			l.w[o][i] = (rng.Float64()*2 - 1) * limit
		}
	}
	l.b = make([]float64, out)
	return l
}

func (l *denseLayer) forward(x []float64) (pre, act []float64) {
	pre = make([]float64, l.out)
	act = make([]float64, l.out)
	for o := 0; o < l.out; o++ {
		sum := l.b[o]
		for i := 0; i < l.in; i++ {
			sum += l.w[o][i] * x[i]
		}
		pre[o] = sum
		if l.relu && sum < 0 {
			act[o] = 0
		} else {
			act[o] = sum
		}
	}
	return pre, act
}

// FitAutoencoder trains the network on the standardized matrix with
// mini-batch gradient descent and returns the fitted model plus the
// per-row training reconstruction errors.
func FitAutoencoder(cfg AutoencoderConfig, X [][]float64) (*Autoencoder, []float64, error) {
	if len(X) == 0 {
		return nil, nil, errors.New("empty training matrix")
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 30
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}

	dim := len(X[0])
	rng := rand.New(rand.NewSource(cfg.Seed))

	ae := &Autoencoder{
		layers: []*denseLayer{
			newDenseLayer(dim, 32, true, rng),
			newDenseLayer(32, 16, true, rng),
			newDenseLayer(16, 32, true, rng),
			newDenseLayer(32, dim, false, rng),
		},
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		order := rng.Perm(len(X))
		for start := 0; start < len(order); start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			ae.trainBatch(X, order[start:end], cfg.LearningRate)
		}
	}
	ae.fitted = true

	trainErrs := make([]float64, len(X))
	for i, row := range X {
		trainErrs[i] = ae.Score(row)
	}
	return ae, trainErrs, nil
}

func (ae *Autoencoder) trainBatch(X [][]float64, idx []int, lr float64) {
	n := float64(len(idx))

	// Accumulated gradients per layer.
	gw := make([][][]float64, len(ae.layers))
	gb := make([][]float64, len(ae.layers))
	for li, l := range ae.layers {
		gw[li] = make([][]float64, l.out)
		for o := range gw[li] {
			gw[li][o] = make([]float64, l.in)
		}
		gb[li] = make([]float64, l.out)
	}

	for _, i := range idx {
		x := X[i]

		// Forward pass, keeping pre-activations and activations.
		acts := make([][]float64, len(ae.layers)+1)
		pres := make([][]float64, len(ae.layers))
		acts[0] = x
		for li, l := range ae.layers {
			pres[li], acts[li+1] = l.forward(acts[li])
		}

		// Backward pass: MSE loss against the input.
		out := acts[len(acts)-1]
		delta := make([]float64, len(out))
		for j := range out {
			delta[j] = 2 * (out[j] - x[j]) / float64(len(out))
		}

		for li := len(ae.layers) - 1; li >= 0; li-- {
			l := ae.layers[li]
			if l.relu {
				for o := range delta {
					if pres[li][o] <= 0 {
						delta[o] = 0
					}
				}
			}
			prev := acts[li]
			for o := 0; o < l.out; o++ {
				gb[li][o] += delta[o]
				for in := 0; in < l.in; in++ {
					gw[li][o][in] += delta[o] * prev[in]
				}
			}
			if li > 0 {
				next := make([]float64, l.in)
				for in := 0; in < l.in; in++ {
					var sum float64
					for o := 0; o < l.out; o++ {
						sum += l.w[o][in] * delta[o]
					}
					next[in] = sum
				}
				delta = next
			}
		}
	}

	for li, l := range ae.layers {
		for o := 0; o < l.out; o++ {
			l.b[o] -= lr * gb[li][o] / n
			for in := 0; in < l.in; in++ {
				l.w[o][in] -= lr * gw[li][o][in] / n
			}
		}
	}
}

// Score returns the mean squared reconstruction error of one
// standardized row.
func (ae *Autoencoder) Score(x []float64) float64 {
	if !ae.fitted {
		return 0
	}
	out := x
	for _, l := range ae.layers {
		_, out = l.forward(out)
	}
	var mse float64
	for i := range out {
		d := out[i] - x[i]
		mse += d * d
	}
	return mse / float64(len(out))
}
