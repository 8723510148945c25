package domain

import "time"

// ScoringMode reports how a prediction was produced.
type ScoringMode string

const (
	// ModeNormal means both anomaly models contributed to the score.
	ModeNormal ScoringMode = "normal"

	// ModeDegraded means the secondary model was not exercised for this
	// request (disabled at training time or failed at inference).
	ModeDegraded ScoringMode = "degraded"

	// ModeSentinel means scoring failed and a safe placeholder was
	// returned for manual review.
	ModeSentinel ScoringMode = "sentinel"
)

// Prediction is the complete fraud assessment for one transaction.
// Only the decision engine produces these four core fields; every
// component downstream treats them as read-only.
type Prediction struct {
	// Machine-derived anomaly signal, [0.0, 1.0], 3-decimal rounding.
	FraudScore float64 `json:"fraud_score"`

	// Rule-based risk assessment, integer [0, 99].
	RiskScore int `json:"risk_score"`

	// Always risk_score > 70.
	IsAnomaly bool `json:"is_anomaly"`

	// Human-readable explanations in rule evaluation order.
	Reasons []string `json:"reasons"`

	ModelVersion string      `json:"model_version"`
	TrainedAt    string      `json:"trained_at"`
	Mode         ScoringMode `json:"scoring_mode"`
}

// PredictionRecord is the persisted form of a decision.
// Records are created once and never updated or deleted.
type PredictionRecord struct {
	PredictionID string      `json:"prediction_id"`
	Timestamp    time.Time   `json:"timestamp"`
	Input        Transaction `json:"input"`
	Output       Prediction  `json:"output"`
}

// AuditEntry is one tamper-evident record in the compliance ledger.
// It echoes model provenance explicitly and chains each entry to its
// predecessor by hash so edits are detectable offline.
type AuditEntry struct {
	Timestamp    time.Time   `json:"timestamp"`
	PredictionID string      `json:"prediction_id"`
	Input        Transaction `json:"input"`
	Output       Prediction  `json:"output"`
	ModelVersion string      `json:"model_version"`
	TrainedAt    string      `json:"trained_at"`

	// Hash chain: sha256 over the previous entry hash and this
	// entry's canonical JSON (with EntryHash blank).
	PrevHash  string `json:"prev_hash"`
	EntryHash string `json:"entry_hash"`
}

// VendorHistory is the aggregate view of a vendor's stored predictions.
type VendorHistory struct {
	Vendor           string             `json:"vendor"`
	Count            int                `json:"count"`
	AverageAmount    float64            `json:"average_amount"`
	TotalVolume      float64            `json:"total_volume"`
	HighRiskCount    int                `json:"high_risk_count"`
	AverageRiskScore float64            `json:"average_risk_score"`
	Recent           []PredictionRecord `json:"recent"`
}

// HighRiskThreshold marks a stored prediction as high risk in vendor
// aggregates (risk_score >= threshold).
const HighRiskThreshold = 70

// SentinelPredictionID is returned when persistence fails; the caller
// still receives its prediction.
const SentinelPredictionID = "PRED-UNKNOWN"
