package index

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/openaudit/kestrel/internal/domain"
)

func TestSQLiteIndex(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.IndexConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	idx, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := idx.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("PutAndGet", func(t *testing.T) {
		rec := &domain.PredictionRecord{
			PredictionID: "PRED-1700000000000000000-abcd1234",
			Timestamp:    time.Now().UTC().Truncate(time.Second),
			Input: domain.Transaction{
				Amount: 15000,
				Agency: "Treasury",
				Vendor: "Acme Corp",
			},
			Output: domain.Prediction{
				FraudScore:   0.812,
				RiskScore:    75,
				IsAnomaly:    true,
				Reasons:      []string{"Suspiciously round amount"},
				ModelVersion: "Kestrel-v2.5",
				TrainedAt:    "2026-01-01T00:00:00Z",
				Mode:         domain.ModeNormal,
			},
		}

		if err := idx.Put(ctx, rec); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := idx.Get(ctx, rec.PredictionID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Input != rec.Input {
			t.Errorf("input mismatch: %+v", got.Input)
		}
		if got.Output.RiskScore != 75 || !got.Output.IsAnomaly {
			t.Errorf("output mismatch: %+v", got.Output)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		if _, err := idx.Get(ctx, "PRED-nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("PutInvalid", func(t *testing.T) {
		if err := idx.Put(ctx, &domain.PredictionRecord{}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})

	t.Run("SaveAndListPolicies", func(t *testing.T) {
		policies := []*domain.AlertPolicy{
			{
				ID:         "policy-high-risk",
				Name:       "High risk",
				Expression: "risk_score > 70",
				Severity:   "high",
				Enabled:    true,
			},
			{
				ID:         "policy-anomaly",
				Name:       "Model anomaly",
				Expression: "is_anomaly && fraud_score > 0.8",
				Severity:   "critical",
				Enabled:    false,
			},
		}
		for _, p := range policies {
			if err := idx.SavePolicy(ctx, p); err != nil {
				t.Fatalf("SavePolicy(%s) failed: %v", p.ID, err)
			}
		}

		got, err := idx.ListPolicies(ctx)
		if err != nil {
			t.Fatalf("ListPolicies failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d policies, want 2", len(got))
		}
		if got[0].ID != "policy-anomaly" || got[1].ID != "policy-high-risk" {
			t.Errorf("policy order wrong: %s, %s", got[0].ID, got[1].ID)
		}
		if got[0].Enabled || !got[1].Enabled {
			t.Error("enabled flags did not round trip")
		}
	})

	t.Run("SavePolicyUpsert", func(t *testing.T) {
		p := &domain.AlertPolicy{
			ID:         "policy-high-risk",
			Name:       "High risk v2",
			Expression: "risk_score > 80",
			Severity:   "critical",
			Enabled:    true,
		}
		if err := idx.SavePolicy(ctx, p); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		got, err := idx.ListPolicies(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for _, gp := range got {
			if gp.ID == "policy-high-risk" && gp.Name != "High risk v2" {
				t.Errorf("upsert did not replace: %+v", gp)
			}
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.IndexConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
