package anomaly

import (
	"math"
	"math/rand"
	"testing"

	"github.com/openaudit/kestrel/internal/domain"
)

func clusteredMatrix(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	for i := range X {
		row := make([]float64, FeatureDim)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		X[i] = row
	}
	return X
}

func TestFeatureVectorOrder(t *testing.T) {
	vendor := domain.VendorStats{AverageAmount: 4000, ContractCount: 7}
	agency := domain.AgencyStats{AverageAmount: 5000, StdDeviation: 1000, ContractCount: 12}

	v := InferenceVector(10000, vendor, agency)
	if len(v) != FeatureDim {
		t.Fatalf("dim = %d, want %d", len(v), FeatureDim)
	}
	if v[0] != 10000 {
		t.Errorf("amount = %v", v[0])
	}
	if math.Abs(v[1]-math.Log1p(10000)) > 1e-9 {
		t.Errorf("log amount = %v", v[1])
	}
	if v[2] != 4000 || v[3] != 7 {
		t.Errorf("vendor features = %v, %v", v[2], v[3])
	}
	if v[4] != 5000 {
		t.Errorf("agency average = %v", v[4])
	}
	if v[5] != 0 {
		t.Errorf("agency count must be pinned to 0 at inference, got %v", v[5])
	}
	if v[6] != 2024 || v[7] != 1 {
		t.Errorf("calendar features = %v, %v", v[6], v[7])
	}
}

func TestScaler(t *testing.T) {
	X := [][]float64{{1, 10}, {2, 10}, {3, 10}}
	s := FitScaler(X)

	got := s.Transform([]float64{2, 10})
	if math.Abs(got[0]) > 1e-9 {
		t.Errorf("mean row should standardize to 0, got %v", got[0])
	}
	// Constant feature: scale falls back to 1, output 0.
	if got[1] != 0 {
		t.Errorf("constant feature standardized to %v, want 0", got[1])
	}
}

func TestForestDeterminism(t *testing.T) {
	X := clusteredMatrix(400, 7)
	cfg := ForestConfig{Trees: 50, SampleSize: 64, Contamination: 0.03, Seed: domain.DefaultSeed}

	f1, s1, err := FitForest(cfg, X)
	if err != nil {
		t.Fatal(err)
	}
	f2, s2, err := FitForest(cfg, X)
	if err != nil {
		t.Fatal(err)
	}

	for i := range s1 {
		if s1[i] != s2[i] {
			t.Fatalf("training scores diverge at %d: %v != %v", i, s1[i], s2[i])
		}
	}

	probe := X[0]
	if f1.Score(probe) != f2.Score(probe) {
		t.Error("same seed must produce identical forests")
	}
	if f1.Threshold() != f2.Threshold() {
		t.Error("thresholds diverge")
	}
}

func TestForestFlagsOutlier(t *testing.T) {
	X := clusteredMatrix(400, 11)
	cfg := ForestConfig{Trees: 100, SampleSize: 128, Contamination: 0.03, Seed: 1}

	f, _, err := FitForest(cfg, X)
	if err != nil {
		t.Fatal(err)
	}

	inlier := make([]float64, FeatureDim)
	outlier := make([]float64, FeatureDim)
	for i := range outlier {
		outlier[i] = 50
	}

	if f.Score(outlier) <= f.Score(inlier) {
		t.Errorf("outlier score %v should exceed inlier score %v", f.Score(outlier), f.Score(inlier))
	}
	if !f.IsOutlier(outlier) {
		t.Error("far outlier should be flagged")
	}
}

func TestAutoencoderDeterminism(t *testing.T) {
	X := clusteredMatrix(200, 3)
	cfg := AutoencoderConfig{Epochs: 3, BatchSize: 32, LearningRate: 0.001, Seed: domain.DefaultSeed}

	_, e1, err := FitAutoencoder(cfg, X)
	if err != nil {
		t.Fatal(err)
	}
	_, e2, err := FitAutoencoder(cfg, X)
	if err != nil {
		t.Fatal(err)
	}
	for i := range e1 {
		if e1[i] != e2[i] {
			t.Fatalf("reconstruction errors diverge at %d", i)
		}
	}
}

func TestAutoencoderOutlierReconstructsWorse(t *testing.T) {
	X := clusteredMatrix(300, 5)
	ae, _, err := FitAutoencoder(AutoencoderConfig{Epochs: 20, BatchSize: 32, LearningRate: 0.01, Seed: 1}, X)
	if err != nil {
		t.Fatal(err)
	}

	inlier := X[0]
	outlier := make([]float64, FeatureDim)
	for i := range outlier {
		outlier[i] = 40
	}
	if ae.Score(outlier) <= ae.Score(inlier) {
		t.Errorf("outlier error %v should exceed inlier error %v", ae.Score(outlier), ae.Score(inlier))
	}
}

func TestNormalizerBounds(t *testing.T) {
	n, err := FitNormalizer([]float64{0.2, 0.4, 0.8}, []float64{0.01, 0.05})
	if err != nil {
		t.Fatal(err)
	}
	if !n.Dual() {
		t.Fatal("expected dual mode")
	}

	sec := 0.03
	fraud, p, s := n.Combine(0.5, &sec)
	if fraud < 0 || fraud > 1 {
		t.Errorf("fraud score %v out of [0,1]", fraud)
	}
	if p != 0.5 {
		t.Errorf("primary norm = %v, want 0.5", p)
	}
	if s == nil {
		t.Fatal("secondary norm missing in dual mode")
	}
	want := primaryWeight*p + secondaryWeight**s
	if math.Abs(fraud-want) > 1e-12 {
		t.Errorf("blend = %v, want %v", fraud, want)
	}

	// Scores beyond the training range clamp.
	fraud, _, _ = n.Combine(99, &sec)
	if fraud > 1 {
		t.Errorf("clamped fraud score %v exceeds 1", fraud)
	}
}

func TestNormalizerPrimaryOnly(t *testing.T) {
	n, err := FitNormalizer([]float64{0.1, 0.9}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n.Dual() {
		t.Fatal("expected primary-only mode")
	}

	sec := 0.5
	fraud, p, s := n.Combine(0.5, &sec)
	if s != nil {
		t.Error("secondary norm present without a fitted secondary range")
	}
	if fraud != p {
		t.Errorf("primary-only fraud = %v, want %v", fraud, p)
	}
}

func TestNormalizerDegenerateRange(t *testing.T) {
	n, err := FitNormalizer([]float64{0.5, 0.5, 0.5}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if fraud, _, _ := n.Combine(0.5, nil); fraud != 0 {
		t.Errorf("degenerate range should normalize to 0, got %v", fraud)
	}
}
