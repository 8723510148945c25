package alert

import "github.com/openaudit/kestrel/internal/domain"

// DefaultPolicies are seeded on first start so a fresh deployment
// alerts on the obvious cases without any configuration.
func DefaultPolicies() []*domain.AlertPolicy {
	return []*domain.AlertPolicy{
		{
			ID:          "builtin-high-risk",
			Name:        "High risk score",
			Description: "Rule ladder crossed the anomaly threshold",
			Expression:  "risk_score > 70",
			Severity:    "high",
			Enabled:     true,
		},
		{
			ID:          "builtin-model-consensus",
			Name:        "Model consensus",
			Description: "Strong machine signal with multiple corroborating reasons",
			Expression:  "fraud_score > 0.8 && reason_count >= 2",
			Severity:    "high",
			Enabled:     true,
		},
		{
			ID:          "builtin-sentinel",
			Name:        "Sentinel prediction",
			Description: "Scoring failed and returned the manual-review placeholder",
			Expression:  `scoring_mode == "sentinel"`,
			Severity:    "critical",
			Enabled:     true,
		},
		{
			ID:          "builtin-large-award",
			Name:        "Large award",
			Description: "Any contract above fifty million",
			Expression:  "amount > 50000000.0",
			Severity:    "medium",
			Enabled:     true,
		},
	}
}
