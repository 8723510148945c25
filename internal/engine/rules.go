package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/openaudit/kestrel/internal/domain"
)

// Rule layer deltas. Evaluation order is fixed; reasons are appended
// in the same order the layers run.
const (
	baseRiskScore = 10

	deltaAgencyOutlier    = 40
	deltaVendorDeviation  = 25
	deltaGlobalExtreme    = 30
	deltaPrimaryAnomaly   = 25
	deltaSecondaryAnomaly = 20
	deltaRoundAmount      = 15
	deltaHighValue        = 10
	deltaBenford          = 15
	deltaUnusualHours     = 20
	deltaLateEvening      = 10
)

const (
	agencyZScoreThreshold  = 3.0
	vendorDeviationFactor  = 3.0
	secondaryErrThreshold  = 0.5
	roundAmountFloor       = 10000.0
	highValueFloor         = 5000000.0
	benfordMinAmount       = 10.0
	benfordSuspiciousDigit = 8
)

// modelSignals carries the anomaly ensemble outputs into the rule
// layers that depend on them.
type modelSignals struct {
	primaryOutlier bool

	// secondaryErr is nil when the secondary model was not exercised
	// for this request.
	secondaryErr *float64
}

// applyRules runs the fixed additive rule ladder over a normalized
// transaction and returns the clamped risk score with its reasons.
func applyRules(tx domain.Transaction, set *domain.StatisticsSet, sig modelSignals) (int, []string) {
	score := baseRiskScore
	reasons := make([]string, 0, 4)

	agency := set.Agency(tx.Agency)
	vendor := set.Vendor(tx.Vendor)

	// Agency z-score. Singleton and unknown agencies have zero
	// deviation, so this layer stays quiet for them.
	if agency.StdDeviation > 0 {
		z := (tx.Amount - agency.AverageAmount) / agency.StdDeviation
		if z > agencyZScoreThreshold {
			score += deltaAgencyOutlier
			reasons = append(reasons, fmt.Sprintf("Amount is %.1f std devs above %s average", z, tx.Agency))
		}
	}

	if vendor.AverageAmount > 0 && tx.Amount > vendorDeviationFactor*vendor.AverageAmount {
		score += deltaVendorDeviation
		reasons = append(reasons, fmt.Sprintf("Amount 3x higher than %s typical contracts", tx.Vendor))
	}

	if tx.Amount > set.Global.P99Amount {
		score += deltaGlobalExtreme
		reasons = append(reasons, "Amount in global top 1%")
	}

	if sig.primaryOutlier {
		score += deltaPrimaryAnomaly
		reasons = append(reasons, "AI detected unusual pattern (Isolation Forest)")
	}

	if sig.secondaryErr != nil && *sig.secondaryErr > secondaryErrThreshold {
		score += deltaSecondaryAnomaly
		reasons = append(reasons, "Deep learning detected subtle anomaly (Autoencoder)")
	}

	if tx.Amount > roundAmountFloor && math.Mod(tx.Amount, 1000) == 0 {
		score += deltaRoundAmount
		reasons = append(reasons, "Suspiciously round amount")
	}

	if tx.Amount > highValueFloor {
		score += deltaHighValue
		reasons = append(reasons, "High value contract")
	}

	if d := leadingDigit(tx.Amount); tx.Amount >= benfordMinAmount && d >= benfordSuspiciousDigit {
		score += deltaBenford
		reasons = append(reasons, fmt.Sprintf("First digit %d violates Benford's Law", d))
	}

	if hour, ok := parseHour(tx.TransactionTime); ok {
		switch {
		case hour < 6 || hour >= 22:
			score += deltaUnusualHours
			reasons = append(reasons, "Transaction at unusual hours (10 PM - 6 AM)")
		case hour >= 18:
			score += deltaLateEvening
			reasons = append(reasons, "Transaction during late evening")
		}
	}

	if score > 99 {
		score = 99
	}
	if score < 0 {
		score = 0
	}
	return score, reasons
}

// leadingDigit returns the first decimal digit of the amount, or 0 for
// non-positive amounts.
func leadingDigit(amount float64) int {
	if amount <= 0 {
		return 0
	}
	for amount >= 10 {
		amount /= 10
	}
	return int(amount)
}

// parseHour extracts the hour from a "HH:MM"-style time string.
// Anything unparseable means no time signal, not an error.
func parseHour(t string) (int, bool) {
	t = strings.TrimSpace(t)
	if t == "" {
		return 0, false
	}
	head, _, found := strings.Cut(t, ":")
	if !found {
		return 0, false
	}
	hour, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	return hour, true
}
