// Package store persists predictions as an append-only JSONL file.
// The file is the source of truth; each line is one self-contained
// record and lines are never rewritten in place.
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openaudit/kestrel/internal/domain"
)

// Record scan buffer cap. One prediction line is well under this.
const maxLineBytes = 1 << 20

// JSONLStore implements domain.PredictionStore over a single
// append-only file. Appends are serialized so each record lands as
// one whole line.
type JSONLStore struct {
	path        string
	recentLimit int
	logger      *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New opens (or creates) the store file for appending.
func New(cfg domain.StoreConfig, logger *slog.Logger) (*JSONLStore, error) {
	f, err := os.OpenFile(cfg.PredictionsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open prediction store: %w", err)
	}

	recent := cfg.RecentLimit
	if recent <= 0 {
		recent = 5
	}

	return &JSONLStore{
		path:        cfg.PredictionsPath,
		recentLimit: recent,
		logger:      logger.With("component", "store"),
		file:        f,
	}, nil
}

// NewPredictionID builds a time-ordered, collision-resistant id.
// The nanosecond prefix keeps ids sortable; the random suffix keeps
// same-instant concurrent writers apart.
func NewPredictionID() string {
	return fmt.Sprintf("PRED-%d-%s", time.Now().UTC().UnixNano(), uuid.NewString()[:8])
}

// Save appends one record and returns its id. On failure the sentinel
// id comes back with the error; scoring output is never lost to a
// storage problem.
func (s *JSONLStore) Save(ctx context.Context, tx domain.Transaction, p domain.Prediction) (string, error) {
	rec := domain.PredictionRecord{
		PredictionID: NewPredictionID(),
		Timestamp:    time.Now().UTC(),
		Input:        tx,
		Output:       p,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return domain.SentinelPredictionID, fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	if err := ctx.Err(); err != nil {
		return domain.SentinelPredictionID, err
	}

	s.mu.Lock()
	_, err = s.file.Write(line)
	s.mu.Unlock()
	if err != nil {
		return domain.SentinelPredictionID, fmt.Errorf("append record: %w", err)
	}

	return rec.PredictionID, nil
}

// Load scans the store for a prediction id. Corrupt lines are skipped,
// not fatal.
func (s *JSONLStore) Load(ctx context.Context, predictionID string) (*domain.PredictionRecord, error) {
	var found *domain.PredictionRecord
	err := s.scan(ctx, func(rec *domain.PredictionRecord) bool {
		if rec.PredictionID == predictionID {
			found = rec
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return found, nil
}

// VendorHistory aggregates all stored records for a vendor.
func (s *JSONLStore) VendorHistory(ctx context.Context, vendor string) (*domain.VendorHistory, error) {
	h := &domain.VendorHistory{Vendor: vendor}
	var riskTotal int
	var matched []domain.PredictionRecord

	err := s.scan(ctx, func(rec *domain.PredictionRecord) bool {
		if rec.Input.Vendor != vendor {
			return true
		}
		h.Count++
		h.TotalVolume += rec.Input.Amount
		riskTotal += rec.Output.RiskScore
		if rec.Output.RiskScore >= domain.HighRiskThreshold {
			h.HighRiskCount++
		}
		matched = append(matched, *rec)
		return true
	})
	if err != nil {
		return nil, err
	}

	if h.Count > 0 {
		h.AverageAmount = h.TotalVolume / float64(h.Count)
		h.AverageRiskScore = float64(riskTotal) / float64(h.Count)
	}

	// Newest first.
	start := len(matched) - s.recentLimit
	if start < 0 {
		start = 0
	}
	for i := len(matched) - 1; i >= start; i-- {
		h.Recent = append(h.Recent, matched[i])
	}
	return h, nil
}

// scan streams every parseable record to visit until it returns false
// or the file ends. A missing file reads as an empty store.
func (s *JSONLStore) scan(ctx context.Context, visit func(*domain.PredictionRecord) bool) error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open prediction store: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec domain.PredictionRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			s.logger.Warn("skipping corrupt store line", "error", err)
			continue
		}
		if !visit(&rec) {
			return nil
		}
	}
	return scanner.Err()
}

// Ping verifies the store file is still reachable.
func (s *JSONLStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.path)
	return err
}

// Close releases the append handle.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
