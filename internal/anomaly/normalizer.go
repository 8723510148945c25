package anomaly

import "errors"

// Ensemble weights for the combined fraud score.
const (
	primaryWeight   = 0.6
	secondaryWeight = 0.4
)

// minMax rescales a raw score into [0, 1] against the range observed
// on the training set. Out-of-range inference scores clamp to the
// bounds so the combined score stays inside [0, 1].
type minMax struct {
	lo, hi float64
}

func fitMinMax(scores []float64) (minMax, error) {
	if len(scores) == 0 {
		return minMax{}, errors.New("empty score distribution")
	}
	m := minMax{lo: scores[0], hi: scores[0]}
	for _, s := range scores {
		if s < m.lo {
			m.lo = s
		}
		if s > m.hi {
			m.hi = s
		}
	}
	return m, nil
}

func (m minMax) normalize(s float64) float64 {
	if m.hi == m.lo {
		return 0
	}
	v := (s - m.lo) / (m.hi - m.lo)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Normalizer maps raw detector scores onto the unit interval and
// blends them into the final fraud score. It is fitted once on the
// training score distributions and immutable afterwards.
type Normalizer struct {
	primary   minMax
	secondary minMax
	dual      bool
}

// FitNormalizer fits the score ranges. secondaryScores may be nil when
// the secondary detector is disabled; the normalizer then runs in
// primary-only mode.
func FitNormalizer(primaryScores, secondaryScores []float64) (*Normalizer, error) {
	p, err := fitMinMax(primaryScores)
	if err != nil {
		return nil, err
	}
	n := &Normalizer{primary: p}
	if len(secondaryScores) > 0 {
		s, err := fitMinMax(secondaryScores)
		if err != nil {
			return nil, err
		}
		n.secondary = s
		n.dual = true
	}
	return n, nil
}

// Dual reports whether the secondary detector participates in the
// blend.
func (n *Normalizer) Dual() bool {
	return n.dual
}

// Combine blends the raw detector scores into the final fraud score
// in [0, 1]. In primary-only mode secondaryRaw is ignored and the
// primary normalized score is returned unweighted.
func (n *Normalizer) Combine(primaryRaw float64, secondaryRaw *float64) (fraud, primaryNorm float64, secondaryNorm *float64) {
	primaryNorm = n.primary.normalize(primaryRaw)
	if !n.dual || secondaryRaw == nil {
		return primaryNorm, primaryNorm, nil
	}
	sn := n.secondary.normalize(*secondaryRaw)
	fraud = primaryWeight*primaryNorm + secondaryWeight*sn
	return fraud, primaryNorm, &sn
}
