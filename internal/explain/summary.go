// Package explain produces free-text narratives for completed
// predictions. Everything here is downstream of the decision engine
// and treats predictions as read-only input.
package explain

import (
	"fmt"
	"strings"

	"github.com/openaudit/kestrel/internal/domain"
)

// Severity buckets for summary text.
const (
	severityHigh     = "HIGH RISK"
	severityModerate = "MODERATE RISK"
	severityLow      = "LOW RISK"
)

// BasicSummary is the deterministic fallback narrative, derived purely
// from the prediction's own fields.
func BasicSummary(p domain.Prediction) string {
	var severity string
	switch {
	case p.RiskScore >= 70:
		severity = severityHigh
	case p.RiskScore >= 40:
		severity = severityModerate
	default:
		severity = severityLow
	}

	if len(p.Reasons) == 0 {
		return fmt.Sprintf("%s (ML Score: %g): Transaction appears normal.", severity, p.FraudScore)
	}

	reasons := p.Reasons
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	return fmt.Sprintf("%s (ML Score: %g): %s. Recommend human review.", severity, p.FraudScore, strings.Join(reasons, "; "))
}
