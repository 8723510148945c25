// Package alert provides the CEL-Go based alert policy engine.
// Policies run over finished predictions and decide routing only;
// they can never change a score.
package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/openaudit/kestrel/internal/domain"
)

// Engine compiles and evaluates alert policies.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledPolicy
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Policy  *domain.AlertPolicy
	Program cel.Program
}

// NewEngine creates an alert policy engine.
func NewEngine() (*Engine, error) {
	// CEL environment with read-only prediction variables
	env, err := cel.NewEnv(
		cel.Variable("risk_score", cel.IntType),
		cel.Variable("fraud_score", cel.DoubleType),
		cel.Variable("is_anomaly", cel.BoolType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("agency", cel.StringType),
		cel.Variable("vendor", cel.StringType),
		cel.Variable("reason_count", cel.IntType),
		cel.Variable("scoring_mode", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*CompiledPolicy),
	}, nil
}

// ValidatePolicy compiles a policy without loading it.
func (e *Engine) ValidatePolicy(p *domain.AlertPolicy) error {
	if p == nil {
		return fmt.Errorf("policy is required")
	}
	_, err := e.compile(p)
	return err
}

// LoadPolicy compiles and loads one policy into the engine.
func (e *Engine) LoadPolicy(p *domain.AlertPolicy) error {
	compiled, err := e.compile(p)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.compiled[p.ID] = compiled
	e.mu.Unlock()

	return nil
}

// LoadPolicies compiles and loads all enabled policies.
func (e *Engine) LoadPolicies(policies []*domain.AlertPolicy) error {
	for _, p := range policies {
		if p.Enabled {
			if err := e.LoadPolicy(p); err != nil {
				return fmt.Errorf("policy %s: %w", p.ID, err)
			}
		}
	}
	return nil
}

// ReloadPolicies atomically replaces the loaded set with the enabled
// policies from the given list. A compile error leaves the previous
// set intact.
func (e *Engine) ReloadPolicies(policies []*domain.AlertPolicy) error {
	next := make(map[string]*CompiledPolicy, len(policies))
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		compiled, err := e.compile(p)
		if err != nil {
			return fmt.Errorf("policy %s: %w", p.ID, err)
		}
		next[p.ID] = compiled
	}

	e.mu.Lock()
	e.compiled = next
	e.mu.Unlock()

	return nil
}

// Loaded returns the number of active policies.
func (e *Engine) Loaded() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Evaluate runs every loaded policy against a stored prediction and
// returns the alerts for the matching ones, ordered by policy id.
// A policy evaluation error disables that policy for the request only.
func (e *Engine) Evaluate(ctx context.Context, rec *domain.PredictionRecord) []domain.Alert {
	e.mu.RLock()
	policies := make([]*CompiledPolicy, 0, len(e.compiled))
	for _, p := range e.compiled {
		policies = append(policies, p)
	}
	e.mu.RUnlock()

	if len(policies) == 0 {
		return nil
	}
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].Policy.ID < policies[j].Policy.ID
	})

	activation := map[string]any{
		"risk_score":   int64(rec.Output.RiskScore),
		"fraud_score":  rec.Output.FraudScore,
		"is_anomaly":   rec.Output.IsAnomaly,
		"amount":       rec.Input.Amount,
		"agency":       rec.Input.Agency,
		"vendor":       rec.Input.Vendor,
		"reason_count": int64(len(rec.Output.Reasons)),
		"scoring_mode": string(rec.Output.Mode),
	}

	var alerts []domain.Alert
	for _, p := range policies {
		out, _, err := p.Program.ContextEval(ctx, activation)
		if err != nil {
			continue
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			alerts = append(alerts, domain.Alert{
				PolicyID:     p.Policy.ID,
				PolicyName:   p.Policy.Name,
				Severity:     p.Policy.Severity,
				PredictionID: rec.PredictionID,
				Vendor:       rec.Input.Vendor,
				Agency:       rec.Input.Agency,
				RiskScore:    rec.Output.RiskScore,
			})
		}
	}
	return alerts
}

// compile checks the expression produces a bool and builds a program.
func (e *Engine) compile(p *domain.AlertPolicy) (*CompiledPolicy, error) {
	if p.Expression == "" {
		return nil, fmt.Errorf("expression is required")
	}

	ast, issues := e.env.Compile(p.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build program: %w", err)
	}

	return &CompiledPolicy{Policy: p, Program: program}, nil
}
