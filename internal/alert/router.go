package alert

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/openaudit/kestrel/internal/domain"
	"github.com/openaudit/kestrel/internal/metrics"
)

// Router evaluates policies against stored predictions and publishes
// matches on the alert topic. Dispatch is fire-and-forget from the
// request path.
type Router struct {
	engine *Engine
	bus    domain.EventBus
	logger *slog.Logger
}

// NewRouter wires the policy engine to the event bus.
func NewRouter(engine *Engine, bus domain.EventBus, logger *slog.Logger) *Router {
	return &Router{
		engine: engine,
		bus:    bus,
		logger: logger.With("component", "alert"),
	}
}

// Dispatch runs the loaded policies over one stored prediction and
// publishes the resulting alerts. Failures are logged, never returned.
func (r *Router) Dispatch(ctx context.Context, rec *domain.PredictionRecord) {
	alerts := r.engine.Evaluate(ctx, rec)
	for _, a := range alerts {
		payload, err := json.Marshal(a)
		if err != nil {
			r.logger.Warn("marshal alert failed", "policy_id", a.PolicyID, "error", err)
			continue
		}
		if err := r.bus.Publish(ctx, domain.TopicAlerts, payload); err != nil {
			r.logger.Warn("publish alert failed", "policy_id", a.PolicyID, "error", err)
			continue
		}
		metrics.AlertsTotal.WithLabelValues(a.Severity).Inc()
		r.logger.Info("alert raised",
			"policy_id", a.PolicyID,
			"severity", a.Severity,
			"prediction_id", a.PredictionID,
			"risk_score", a.RiskScore)
	}
}
