package domain

// AlertPolicy routes finished predictions to the alert topic. The
// expression is CEL over read-only prediction fields; policies cannot
// modify a prediction, only decide whether it is worth waking someone
// up for.
type AlertPolicy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// CEL expression returning bool. Available variables:
	// risk_score, fraud_score, is_anomaly, amount, agency, vendor,
	// reason_count, scoring_mode.
	Expression string `json:"expression"`

	// Severity tag carried on the emitted alert.
	Severity string `json:"severity"`

	Enabled bool `json:"enabled"`
}

// Alert is emitted on the alert topic when a policy matches.
type Alert struct {
	PolicyID     string `json:"policy_id"`
	PolicyName   string `json:"policy_name"`
	Severity     string `json:"severity"`
	PredictionID string `json:"prediction_id"`
	Vendor       string `json:"vendor"`
	Agency       string `json:"agency"`
	RiskScore    int    `json:"risk_score"`
}
