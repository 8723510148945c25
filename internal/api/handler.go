package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openaudit/kestrel/internal/alert"
	"github.com/openaudit/kestrel/internal/anomaly"
	"github.com/openaudit/kestrel/internal/domain"
	"github.com/openaudit/kestrel/internal/engine"
	"github.com/openaudit/kestrel/internal/explain"
	"github.com/openaudit/kestrel/internal/metrics"
)

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	engine  *engine.Engine
	store   domain.PredictionStore
	index   domain.PredictionIndex
	audit   domain.AuditLogger
	cache   domain.Cache
	bus     domain.EventBus
	alerts  *alert.Engine
	router  *alert.Router
	explain *explain.Generator

	storeCfg domain.StoreConfig
	cacheTTL time.Duration
	version  string
	logger   *slog.Logger
}

// NewHandler creates a handler with all dependencies.
func NewHandler(
	eng *engine.Engine,
	store domain.PredictionStore,
	index domain.PredictionIndex,
	audit domain.AuditLogger,
	cache domain.Cache,
	bus domain.EventBus,
	alerts *alert.Engine,
	alertRouter *alert.Router,
	gen *explain.Generator,
	cfg *domain.Config,
	logger *slog.Logger,
) *Handler {
	ttl := cfg.Cache.LocalTTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Handler{
		engine:   eng,
		store:    store,
		index:    index,
		audit:    audit,
		cache:    cache,
		bus:      bus,
		alerts:   alerts,
		router:   alertRouter,
		explain:  gen,
		storeCfg: cfg.Store,
		cacheTTL: ttl,
		version:  engine.ModelVersion,
		logger:   logger.With("component", "api"),
	}
}

// Health reports component health. The process stays up through
// backend failures; health flips to degraded instead.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.index != nil {
		if err := h.index.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"model_version":  h.version,
		"model_trained":  h.engine.Trained(),
		"model_degraded": h.engine.Degraded(),
		"trained_at":     h.engine.TrainedAt(),
		"features":       anomaly.FeatureNames,
	})
}

// Ready returns whether the server is ready to score traffic. The
// engine trains once at startup, so readiness is just "is a model
// loaded".
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Trained() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// PredictRequest is the request body for scoring a transaction.
type PredictRequest struct {
	Amount          float64 `json:"amount"`
	Agency          string  `json:"agency"`
	Vendor          string  `json:"vendor,omitempty"`
	TransactionTime string  `json:"transaction_time,omitempty"`
}

// PredictResponse is the scored transaction with its stored id and a
// templated one-line summary.
type PredictResponse struct {
	PredictionID string    `json:"prediction_id"`
	Timestamp    time.Time `json:"timestamp"`
	domain.Prediction
	Summary string `json:"summary"`
}

// Predict scores one transaction and persists the decision. Scoring
// always answers; persistence, indexing, audit, and alerting are
// best-effort and never fail the request.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
		return
	}
	if req.Amount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be non-negative",
		})
		return
	}
	if req.Agency == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "agency is required",
		})
		return
	}

	tx := domain.Transaction{
		Amount:          req.Amount,
		Agency:          req.Agency,
		Vendor:          req.Vendor,
		TransactionTime: req.TransactionTime,
	}.Normalized()

	start := time.Now()
	p := h.engine.Predict(tx)
	metrics.ObservePrediction(string(p.Mode), p.IsAnomaly, time.Since(start))

	sctx, cancel := context.WithTimeout(ctx, h.storeCfg.WriteTimeout)
	defer cancel()

	id, err := h.store.Save(sctx, tx, p)
	if err != nil {
		h.logger.Warn("prediction store save failed", "error", err)
		metrics.PersistFailuresTotal.WithLabelValues("store").Inc()
	}

	rec := &domain.PredictionRecord{
		PredictionID: id,
		Timestamp:    time.Now().UTC(),
		Input:        tx,
		Output:       p,
	}

	if h.index != nil && id != domain.SentinelPredictionID {
		if err := h.index.Put(sctx, rec); err != nil {
			h.logger.Warn("prediction index put failed", "prediction_id", id, "error", err)
			metrics.PersistFailuresTotal.WithLabelValues("index").Inc()
		}
	}

	if h.audit != nil {
		h.audit.Append(tx, p, id)
	}

	if h.bus != nil {
		if payload, merr := json.Marshal(rec); merr == nil {
			if err := h.bus.Publish(ctx, domain.TopicPredictions, payload); err != nil {
				h.logger.Warn("publish prediction failed", "prediction_id", id, "error", err)
			}
		}
	}

	if h.router != nil {
		h.router.Dispatch(ctx, rec)
	}

	writeJSON(w, http.StatusOK, PredictResponse{
		PredictionID: id,
		Timestamp:    rec.Timestamp,
		Prediction:   p,
		Summary:      explain.BasicSummary(p),
	})
}

// GetPrediction retrieves a stored prediction by id. The SQL index is
// consulted first; the append log remains the source of truth.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "prediction id is required",
		})
		return
	}

	rec, err := h.loadRecord(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "prediction not found",
			})
			return
		}
		h.logger.Error("load prediction failed", "prediction_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load prediction",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) loadRecord(ctx context.Context, id string) (*domain.PredictionRecord, error) {
	if h.index != nil {
		rec, err := h.index.Get(ctx, id)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.Warn("index lookup failed, falling back to store", "prediction_id", id, "error", err)
		}
	}
	return h.store.Load(ctx, id)
}

// VendorHistory returns the aggregate decision history for a vendor.
func (h *Handler) VendorHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vendor := chi.URLParam(r, "vendor")

	if vendor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "vendor is required",
		})
		return
	}

	if h.cache != nil {
		if hist, err := h.cache.GetVendorHistory(ctx, vendor); err == nil && hist != nil {
			metrics.VendorHistoryCacheHits.WithLabelValues("hit").Inc()
			writeJSON(w, http.StatusOK, hist)
			return
		}
		metrics.VendorHistoryCacheHits.WithLabelValues("miss").Inc()
	}

	hist, err := h.store.VendorHistory(ctx, vendor)
	if err != nil {
		h.logger.Error("vendor history scan failed", "vendor", vendor, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load vendor history",
		})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetVendorHistory(ctx, vendor, hist, h.cacheTTL); err != nil {
			h.logger.Warn("vendor history cache set failed", "vendor", vendor, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, hist)
}

// ProfileResponse carries the generated narrative for one prediction.
type ProfileResponse struct {
	PredictionID string `json:"prediction_id"`
	Vendor       string `json:"vendor"`
	Profile      string `json:"profile"`
}

// Profile generates a vendor risk narrative for a stored prediction.
// When the language model is disabled or unreachable the templated
// summary is returned instead; the endpoint never fails on LLM errors.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	rec, err := h.loadRecord(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "prediction not found",
			})
			return
		}
		h.logger.Error("load prediction failed", "prediction_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load prediction",
		})
		return
	}

	hist, err := h.store.VendorHistory(ctx, rec.Input.Vendor)
	if err != nil {
		h.logger.Warn("vendor history unavailable for profile", "vendor", rec.Input.Vendor, "error", err)
		hist = nil
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		PredictionID: rec.PredictionID,
		Vendor:       rec.Input.Vendor,
		Profile:      h.explain.VendorProfile(ctx, rec, hist),
	})
}

// ListPolicies returns all stored alert policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy storage not available",
		})
		return
	}

	policies, err := h.index.ListPolicies(r.Context())
	if err != nil {
		h.logger.Error("list policies failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list policies",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"policies": policies,
		"loaded":   h.alerts.Loaded(),
	})
}

// CreatePolicy validates, stores, and loads a new alert policy.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.index == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy storage not available",
		})
		return
	}

	var p domain.AlertPolicy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
		return
	}
	if p.ID == "" || p.Name == "" || p.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if p.Severity == "" {
		p.Severity = "medium"
	}

	if err := h.alerts.ValidatePolicy(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid expression: " + err.Error(),
		})
		return
	}

	if err := h.index.SavePolicy(ctx, &p); err != nil {
		h.logger.Error("save policy failed", "policy_id", p.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save policy",
		})
		return
	}

	if p.Enabled {
		if err := h.alerts.LoadPolicy(&p); err != nil {
			h.logger.Error("load policy failed", "policy_id", p.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, &p)
}

// ReloadPolicies replaces the loaded policy set from storage.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy storage not available",
		})
		return
	}

	policies, err := h.index.ListPolicies(r.Context())
	if err != nil {
		h.logger.Error("list policies failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list policies",
		})
		return
	}

	if err := h.alerts.ReloadPolicies(policies); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "reload failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": h.alerts.Loaded(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
