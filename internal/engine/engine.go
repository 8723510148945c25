// Package engine is the decision authority: the only place fraud
// scores, risk scores, anomaly flags and reasons are computed.
package engine

import (
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/openaudit/kestrel/internal/anomaly"
	"github.com/openaudit/kestrel/internal/domain"
	"github.com/openaudit/kestrel/internal/ingest"
	"github.com/openaudit/kestrel/internal/stats"
)

// ModelVersion stamps every prediction with the scoring pipeline
// revision that produced it.
const ModelVersion = "Kestrel-v2.5"

// ErrNotTrained is returned when training has not completed.
var ErrNotTrained = errors.New("engine not trained")

// model is one complete, immutable training result. A model is built
// in full before it becomes visible; inference never observes a
// partial fit.
type model struct {
	stats      *domain.StatisticsSet
	scaler     *anomaly.StandardScaler
	forest     *anomaly.IsolationForest
	ae         *anomaly.Autoencoder
	normalizer *anomaly.Normalizer
	trainedAt  string
	degraded   bool
}

// Engine scores procurement transactions against the live model.
// Train swaps the model atomically; Predict is lock-free and safe for
// concurrent callers.
type Engine struct {
	cfg    domain.TrainingConfig
	logger *slog.Logger
	live   atomic.Pointer[model]
}

// New creates an untrained engine.
func New(cfg domain.TrainingConfig, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger.With("component", "engine"),
	}
}

// Train fits statistics, the scaler, the anomaly models and the score
// normalizer on the snapshot, then swaps the result in atomically.
// It either installs a complete model or leaves the previous one
// untouched.
func (e *Engine) Train(snap *ingest.Snapshot) error {
	if snap == nil || len(snap.Rows) == 0 {
		return errors.New("empty training snapshot")
	}

	start := time.Now()
	total := len(snap.Rows)
	snap.Sample(e.cfg.SampleLimit, e.cfg.Seed)
	rows := snap.Rows
	e.logger.Info("training started",
		"rows", len(rows),
		"snapshot_rows", total,
		"source", snap.Source,
		"degraded_snapshot", snap.Degraded)

	m := &model{
		stats:    stats.Build(rows),
		degraded: snap.Degraded,
	}

	X := make([][]float64, len(rows))
	for i, row := range rows {
		X[i] = anomaly.TrainingVector(row, m.stats)
	}

	m.scaler = anomaly.FitScaler(X)
	scaled := m.scaler.TransformAll(X)

	forest, primaryScores, err := anomaly.FitForest(anomaly.DefaultForestConfig(e.cfg.Seed), scaled)
	if err != nil {
		return err
	}
	m.forest = forest

	var secondaryScores []float64
	if e.cfg.EnableAutoencoder {
		ae, errsAE, err := anomaly.FitAutoencoder(anomaly.DefaultAutoencoderConfig(e.cfg.Seed), scaled)
		if err != nil {
			// The secondary model is optional; fit failure degrades the
			// ensemble to primary-only instead of failing training.
			e.logger.Warn("autoencoder fit failed, continuing primary-only", "error", err)
		} else {
			m.ae = ae
			secondaryScores = errsAE
		}
	}

	m.normalizer, err = anomaly.FitNormalizer(primaryScores, secondaryScores)
	if err != nil {
		return err
	}

	m.trainedAt = time.Now().UTC().Format(time.RFC3339)
	e.live.Store(m)

	e.logger.Info("training complete",
		"duration", time.Since(start).String(),
		"dual_mode", m.normalizer.Dual(),
		"agencies", len(m.stats.Agencies),
		"vendors", len(m.stats.Vendors))
	return nil
}

// Trained reports whether a model is live.
func (e *Engine) Trained() bool {
	return e.live.Load() != nil
}

// Degraded reports whether the live model was fit on the fallback
// snapshot.
func (e *Engine) Degraded() bool {
	m := e.live.Load()
	return m != nil && m.degraded
}

// TrainedAt returns the fit timestamp of the live model, empty when
// untrained.
func (e *Engine) TrainedAt() string {
	if m := e.live.Load(); m != nil {
		return m.trainedAt
	}
	return ""
}

// Statistics exposes the live training aggregates, nil when untrained.
func (e *Engine) Statistics() *domain.StatisticsSet {
	if m := e.live.Load(); m != nil {
		return m.stats
	}
	return nil
}

// Predict scores one transaction. It never fails: any panic inside the
// scoring path degrades to an explicitly labeled sentinel prediction
// so a downstream decision is never silently missing.
func (e *Engine) Predict(tx domain.Transaction) (p domain.Prediction) {
	m := e.live.Load()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scoring failed, returning sentinel", "panic", r)
			p = e.sentinel(m)
		}
	}()

	if m == nil {
		return e.sentinel(nil)
	}

	tx = tx.Normalized()

	vendor := m.stats.Vendor(tx.Vendor)
	agency := m.stats.Agency(tx.Agency)
	scaled := m.scaler.Transform(anomaly.InferenceVector(tx.Amount, vendor, agency))

	primaryRaw := m.forest.Score(scaled)

	var secondaryRaw *float64
	if m.ae != nil {
		v := m.ae.Score(scaled)
		secondaryRaw = &v
	}

	fraud, _, secondaryNorm := m.normalizer.Combine(primaryRaw, secondaryRaw)

	sig := modelSignals{
		primaryOutlier: m.forest.IsOutlier(scaled),
		secondaryErr:   secondaryRaw,
	}
	risk, reasons := applyRules(tx, m.stats, sig)

	mode := domain.ModeNormal
	if secondaryNorm == nil {
		mode = domain.ModeDegraded
	}

	return domain.Prediction{
		FraudScore:   round3(clamp01(fraud)),
		RiskScore:    risk,
		IsAnomaly:    risk > domain.HighRiskThreshold,
		Reasons:      reasons,
		ModelVersion: ModelVersion,
		TrainedAt:    m.trainedAt,
		Mode:         mode,
	}
}

// sentinel is the fail-safe prediction for a broken scoring path.
func (e *Engine) sentinel(m *model) domain.Prediction {
	trainedAt := ""
	if m != nil {
		trainedAt = m.trainedAt
	}
	return domain.Prediction{
		FraudScore:   0.5,
		RiskScore:    50,
		IsAnomaly:    false,
		Reasons:      []string{"Error - manual review required"},
		ModelVersion: ModelVersion,
		TrainedAt:    trainedAt,
		Mode:         domain.ModeSentinel,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
