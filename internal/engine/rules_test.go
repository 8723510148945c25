package engine

import (
	"strings"
	"testing"

	"github.com/openaudit/kestrel/internal/domain"
)

func testStats() *domain.StatisticsSet {
	return &domain.StatisticsSet{
		Agencies: map[string]domain.AgencyStats{
			"Agency 1": {AverageAmount: 10000, StdDeviation: 2000, ContractCount: 50},
		},
		Vendors: map[string]domain.VendorStats{
			"Vendor A": {AverageAmount: 8000, ContractCount: 20},
		},
		Global: domain.GlobalStats{MeanAmount: 12000, P99Amount: 1000000},
	}
}

func hasReason(reasons []string, substr string) bool {
	for _, r := range reasons {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func TestAgencyZScoreLayer(t *testing.T) {
	set := testStats()

	// z = (26001 - 10000) / 2000 = 8.0
	tx := domain.Transaction{Amount: 26001, Agency: "Agency 1"}
	score, reasons := applyRules(tx, set, modelSignals{})
	if !hasReason(reasons, "std devs above Agency 1 average") {
		t.Fatalf("z-score layer did not fire: %v", reasons)
	}
	if !hasReason(reasons, "8.0 std devs") {
		t.Errorf("z value missing from reason: %v", reasons)
	}
	// Base 10 + agency 40 + vendor layer does not apply (no vendor stats).
	if score != 50 {
		t.Errorf("score = %d, want 50", score)
	}

	// z exactly 3 does not fire.
	tx.Amount = 16000
	_, reasons = applyRules(tx, set, modelSignals{})
	if hasReason(reasons, "std devs") {
		t.Errorf("z = 3 must not fire: %v", reasons)
	}
}

func TestVendorDeviationLayer(t *testing.T) {
	set := testStats()
	tx := domain.Transaction{Amount: 25000, Agency: "Other", Vendor: "Vendor A"}

	score, reasons := applyRules(tx, set, modelSignals{})
	if !hasReason(reasons, "3x higher than Vendor A typical contracts") {
		t.Fatalf("vendor layer did not fire: %v", reasons)
	}
	// Base 10 + vendor 25 + round-number 15.
	if score != 50 {
		t.Errorf("score = %d, want 50", score)
	}
}

func TestRoundAmountLayer(t *testing.T) {
	set := testStats()

	_, reasons := applyRules(domain.Transaction{Amount: 15000, Agency: "X"}, set, modelSignals{})
	if !hasReason(reasons, "Suspiciously round amount") {
		t.Errorf("15000 should trigger round-number layer: %v", reasons)
	}

	_, reasons = applyRules(domain.Transaction{Amount: 15500, Agency: "X"}, set, modelSignals{})
	if hasReason(reasons, "round amount") {
		t.Errorf("15500 must not trigger round-number layer: %v", reasons)
	}

	// At or below the floor the layer stays quiet even for multiples.
	_, reasons = applyRules(domain.Transaction{Amount: 10000, Agency: "X"}, set, modelSignals{})
	if hasReason(reasons, "round amount") {
		t.Errorf("10000 must not trigger round-number layer: %v", reasons)
	}
}

func TestHighValueLayer(t *testing.T) {
	set := testStats()
	_, reasons := applyRules(domain.Transaction{Amount: 8000000, Agency: "X"}, set, modelSignals{})
	if !hasReason(reasons, "High value contract") {
		t.Errorf("8M should trigger high-value layer: %v", reasons)
	}
	if !hasReason(reasons, "global top 1%") {
		t.Errorf("8M exceeds p99, global layer should fire: %v", reasons)
	}
}

func TestBenfordLayer(t *testing.T) {
	set := testStats()

	_, reasons := applyRules(domain.Transaction{Amount: 89, Agency: "X"}, set, modelSignals{})
	if !hasReason(reasons, "First digit 8 violates Benford's Law") {
		t.Errorf("leading digit 8 should fire: %v", reasons)
	}

	_, reasons = applyRules(domain.Transaction{Amount: 79, Agency: "X"}, set, modelSignals{})
	if hasReason(reasons, "Benford") {
		t.Errorf("leading digit 7 must not fire: %v", reasons)
	}

	// Below the floor the digit is ignored.
	_, reasons = applyRules(domain.Transaction{Amount: 9, Agency: "X"}, set, modelSignals{})
	if hasReason(reasons, "Benford") {
		t.Errorf("amount under 10 must not fire: %v", reasons)
	}
}

func TestTimeOfDayLayer(t *testing.T) {
	set := testStats()

	cases := []struct {
		time   string
		reason string
	}{
		{"23:15", "Transaction at unusual hours (10 PM - 6 AM)"},
		{"03:00", "Transaction at unusual hours (10 PM - 6 AM)"},
		{"19:00", "Transaction during late evening"},
		{"10:00", ""},
		{"not-a-time", ""},
		{"", ""},
	}
	for _, tc := range cases {
		t.Run(tc.time, func(t *testing.T) {
			tx := domain.Transaction{Amount: 500, Agency: "X", TransactionTime: tc.time}
			_, reasons := applyRules(tx, set, modelSignals{})
			if tc.reason == "" {
				if hasReason(reasons, "Transaction") {
					t.Errorf("no time layer should fire for %q: %v", tc.time, reasons)
				}
				return
			}
			if !hasReason(reasons, tc.reason) {
				t.Errorf("want reason %q for %q, got %v", tc.reason, tc.time, reasons)
			}
		})
	}
}

func TestModelSignalLayers(t *testing.T) {
	set := testStats()
	tx := domain.Transaction{Amount: 500, Agency: "X"}

	high := 0.9
	score, reasons := applyRules(tx, set, modelSignals{primaryOutlier: true, secondaryErr: &high})
	if !hasReason(reasons, "AI detected unusual pattern (Isolation Forest)") {
		t.Errorf("primary anomaly layer missing: %v", reasons)
	}
	if !hasReason(reasons, "Deep learning detected subtle anomaly (Autoencoder)") {
		t.Errorf("secondary anomaly layer missing: %v", reasons)
	}
	if score != 10+25+20 {
		t.Errorf("score = %d, want 55", score)
	}

	// Low reconstruction error stays quiet; absent secondary too.
	low := 0.1
	_, reasons = applyRules(tx, set, modelSignals{secondaryErr: &low})
	if hasReason(reasons, "Autoencoder") {
		t.Errorf("low reconstruction error must not fire: %v", reasons)
	}
	_, reasons = applyRules(tx, set, modelSignals{})
	if hasReason(reasons, "Autoencoder") || hasReason(reasons, "Isolation Forest") {
		t.Errorf("no model signals must mean no model layers: %v", reasons)
	}
}

func TestUnknownEntitiesSuppressStatLayers(t *testing.T) {
	set := testStats()
	tx := domain.Transaction{Amount: 900000, Agency: "Nowhere Agency", Vendor: "Nowhere Vendor"}

	score, reasons := applyRules(tx, set, modelSignals{})
	if hasReason(reasons, "std devs") || hasReason(reasons, "typical contracts") {
		t.Fatalf("unknown entities must suppress statistical layers: %v", reasons)
	}
	// Base 10 + round-number 15 only.
	if score != 25 {
		t.Errorf("score = %d, want 25", score)
	}
}

func TestScoreClampAt99(t *testing.T) {
	set := testStats()
	high := 0.9
	// Everything fires: agency z, vendor 3x, global p99, both models,
	// round amount, high value, Benford, unusual hours.
	tx := domain.Transaction{
		Amount:          9000000,
		Agency:          "Agency 1",
		Vendor:          "Vendor A",
		TransactionTime: "23:00",
	}
	score, _ := applyRules(tx, set, modelSignals{primaryOutlier: true, secondaryErr: &high})
	if score != 99 {
		t.Errorf("score = %d, want clamp at 99", score)
	}
}

func TestReasonOrderIsEvaluationOrder(t *testing.T) {
	set := testStats()
	high := 0.9
	tx := domain.Transaction{
		Amount:          9000000,
		Agency:          "Agency 1",
		Vendor:          "Vendor A",
		TransactionTime: "23:00",
	}
	_, reasons := applyRules(tx, set, modelSignals{primaryOutlier: true, secondaryErr: &high})

	want := []string{
		"std devs above",
		"3x higher",
		"global top 1%",
		"Isolation Forest",
		"Autoencoder",
		"round amount",
		"High value",
		"Benford",
		"unusual hours",
	}
	if len(reasons) != len(want) {
		t.Fatalf("got %d reasons, want %d: %v", len(reasons), len(want), reasons)
	}
	for i, sub := range want {
		if !strings.Contains(reasons[i], sub) {
			t.Errorf("reason[%d] = %q, want it to contain %q", i, reasons[i], sub)
		}
	}
}

func TestLeadingDigit(t *testing.T) {
	cases := map[float64]int{
		89:      8,
		79:      7,
		912345:  9,
		1:       1,
		0:       0,
		-5:      0,
		8000000: 8,
	}
	for amount, want := range cases {
		if got := leadingDigit(amount); got != want {
			t.Errorf("leadingDigit(%v) = %d, want %d", amount, got, want)
		}
	}
}

func TestParseHour(t *testing.T) {
	if h, ok := parseHour("23:15"); !ok || h != 23 {
		t.Errorf("parseHour(23:15) = %d, %v", h, ok)
	}
	if _, ok := parseHour("25:00"); ok {
		t.Error("hour 25 should be rejected")
	}
	if _, ok := parseHour("noon"); ok {
		t.Error("words should be rejected")
	}
	if _, ok := parseHour(""); ok {
		t.Error("empty should be rejected")
	}
}
