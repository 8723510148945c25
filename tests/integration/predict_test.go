//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel fraud
// scoring engine.
//
// These tests verify the COMPLETE scoring pipeline:
//
//	Transaction → Ensemble Models → Rule Layers → Decision → Store → Audit
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. TRANSACTION: A procurement award (amount, agency, vendor, time)
//
// 2. PREDICTION: Kestrel's verdict for one transaction:
//   - fraud_score: machine anomaly signal, 0.0 to 1.0
//   - risk_score: additive rule assessment, 0 to 99
//   - is_anomaly: true when risk_score > 70
//   - reasons: human-readable explanations in evaluation order
//
// 3. SCORING MODES:
//   - normal: both anomaly models contributed
//   - degraded: secondary model missing, primary-only
//   - sentinel: scoring failed, safe placeholder for manual review
//
// The server must be running before these tests:
//
//	go run cmd/kestrel/main.go
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// PredictRequest is the transaction sent to POST /predict
type PredictRequest struct {
	Amount          float64 `json:"amount"`
	Agency          string  `json:"agency"`
	Vendor          string  `json:"vendor,omitempty"`
	TransactionTime string  `json:"transaction_time,omitempty"`
}

// PredictResponse is the scored decision returned by POST /predict
type PredictResponse struct {
	PredictionID string   `json:"prediction_id"`
	FraudScore   float64  `json:"fraud_score"`
	RiskScore    int      `json:"risk_score"`
	IsAnomaly    bool     `json:"is_anomaly"`
	Reasons      []string `json:"reasons"`
	ModelVersion string   `json:"model_version"`
	TrainedAt    string   `json:"trained_at"`
	Mode         string   `json:"scoring_mode"`
}

// PredictionRecord mirrors the stored form returned by GET /predictions/{id}
type PredictionRecord struct {
	PredictionID string          `json:"prediction_id"`
	Input        PredictRequest  `json:"input"`
	Output       PredictResponse `json:"output"`
}

// VendorHistory mirrors the aggregate returned by the history endpoint
type VendorHistory struct {
	Vendor           string             `json:"vendor"`
	Count            int                `json:"count"`
	AverageAmount    float64            `json:"average_amount"`
	TotalVolume      float64            `json:"total_volume"`
	HighRiskCount    int                `json:"high_risk_count"`
	AverageRiskScore float64            `json:"average_risk_score"`
	Recent           []PredictionRecord `json:"recent"`
}

func requireServer(t *testing.T, cfg TestConfig) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(cfg.BaseURL + "/health")
	if err != nil {
		t.Skipf("kestrel not reachable at %s: %v", cfg.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skipf("kestrel unhealthy: status %d", resp.StatusCode)
	}
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestPredictPipeline(t *testing.T) {
	cfg := getTestConfig()
	requireServer(t, cfg)

	vendor := fmt.Sprintf("IT-VENDOR-%d", time.Now().UnixNano())

	var resp PredictResponse
	status := postJSON(t, cfg.BaseURL+"/predict", PredictRequest{
		Amount: 250000,
		Agency: "Agency 1",
		Vendor: vendor,
	}, &resp)
	if status != http.StatusOK {
		t.Fatalf("predict status = %d", status)
	}

	if !strings.HasPrefix(resp.PredictionID, "PRED-") {
		t.Errorf("prediction id %q has no PRED- prefix", resp.PredictionID)
	}
	if resp.FraudScore < 0 || resp.FraudScore > 1 {
		t.Errorf("fraud score %v out of [0,1]", resp.FraudScore)
	}
	if resp.RiskScore < 0 || resp.RiskScore > 99 {
		t.Errorf("risk score %d out of [0,99]", resp.RiskScore)
	}
	if resp.IsAnomaly != (resp.RiskScore > 70) {
		t.Errorf("is_anomaly %v disagrees with risk %d", resp.IsAnomaly, resp.RiskScore)
	}
	if resp.ModelVersion == "" || resp.TrainedAt == "" {
		t.Error("missing model provenance")
	}

	// The stored record must match what the caller saw.
	var rec PredictionRecord
	status = getJSON(t, cfg.BaseURL+"/predictions/"+resp.PredictionID, &rec)
	if status != http.StatusOK {
		t.Fatalf("get prediction status = %d", status)
	}
	if rec.PredictionID != resp.PredictionID {
		t.Errorf("stored id %q != %q", rec.PredictionID, resp.PredictionID)
	}
	if rec.Output.RiskScore != resp.RiskScore {
		t.Errorf("stored risk %d != %d", rec.Output.RiskScore, resp.RiskScore)
	}
	if rec.Input.Vendor != vendor {
		t.Errorf("stored vendor %q != %q", rec.Input.Vendor, vendor)
	}
}

func TestPredictDeterminism(t *testing.T) {
	cfg := getTestConfig()
	requireServer(t, cfg)

	req := PredictRequest{Amount: 975000, Agency: "Agency 2", Vendor: "REPEAT-VENDOR"}

	var first, second PredictResponse
	if status := postJSON(t, cfg.BaseURL+"/predict", req, &first); status != http.StatusOK {
		t.Fatalf("predict status = %d", status)
	}
	if status := postJSON(t, cfg.BaseURL+"/predict", req, &second); status != http.StatusOK {
		t.Fatalf("predict status = %d", status)
	}

	if first.FraudScore != second.FraudScore || first.RiskScore != second.RiskScore {
		t.Errorf("same input scored differently: %+v vs %+v", first, second)
	}
}

func TestPredictValidation(t *testing.T) {
	cfg := getTestConfig()
	requireServer(t, cfg)

	cases := []struct {
		name string
		body PredictRequest
	}{
		{"negative amount", PredictRequest{Amount: -100, Agency: "Agency 1"}},
		{"missing agency", PredictRequest{Amount: 1000}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if status := postJSON(t, cfg.BaseURL+"/predict", tc.body, nil); status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", status)
			}
		})
	}
}

func TestVendorHistoryAggregation(t *testing.T) {
	cfg := getTestConfig()
	requireServer(t, cfg)

	vendor := fmt.Sprintf("HIST-VENDOR-%d", time.Now().UnixNano())
	amounts := []float64{10000, 20000, 30000}
	for _, amount := range amounts {
		status := postJSON(t, cfg.BaseURL+"/predict", PredictRequest{
			Amount: amount,
			Agency: "Agency 1",
			Vendor: vendor,
		}, nil)
		if status != http.StatusOK {
			t.Fatalf("predict status = %d", status)
		}
	}

	var hist VendorHistory
	status := getJSON(t, cfg.BaseURL+"/vendors/"+url.PathEscape(vendor)+"/history", &hist)
	if status != http.StatusOK {
		t.Fatalf("history status = %d", status)
	}

	if hist.Count != len(amounts) {
		t.Errorf("count = %d, want %d", hist.Count, len(amounts))
	}
	if hist.TotalVolume != 60000 {
		t.Errorf("volume = %v, want 60000", hist.TotalVolume)
	}
	if len(hist.Recent) == 0 {
		t.Error("no recent records")
	}
}

func TestProfileGeneration(t *testing.T) {
	cfg := getTestConfig()
	requireServer(t, cfg)

	var resp PredictResponse
	status := postJSON(t, cfg.BaseURL+"/predict", PredictRequest{
		Amount: 5500000,
		Agency: "Agency 3",
		Vendor: "PROFILE-VENDOR",
	}, &resp)
	if status != http.StatusOK {
		t.Fatalf("predict status = %d", status)
	}

	var prof struct {
		PredictionID string `json:"prediction_id"`
		Profile      string `json:"profile"`
	}
	status = postJSON(t, cfg.BaseURL+"/profile/"+resp.PredictionID, nil, &prof)
	if status != http.StatusOK {
		t.Fatalf("profile status = %d", status)
	}
	if prof.Profile == "" {
		t.Error("empty profile")
	}
}
