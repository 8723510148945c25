package explain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/openaudit/kestrel/internal/domain"
)

const profileFooter = "[Note: AI-generated profile from automated fraud detection. " +
	"ML score represents subtle pattern detection (Isolation Forest + Autoencoder), " +
	"while risk score represents explicit rule violations.]"

// Generator builds investigator-facing vendor profiles through an
// OpenAI-compatible endpoint (Ollama serves one locally). When the
// endpoint is disabled or unreachable it degrades to the deterministic
// summary; it can never alter score fields.
type Generator struct {
	client  *openai.Client
	model   string
	enabled bool
	logger  *slog.Logger
}

// NewGenerator creates a profile generator from configuration.
func NewGenerator(cfg domain.ExplainConfig, logger *slog.Logger) *Generator {
	g := &Generator{
		model:   cfg.Model,
		enabled: cfg.Enabled,
		logger:  logger.With("component", "explain"),
	}
	if !cfg.Enabled {
		return g
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	g.client = openai.NewClientWithConfig(clientCfg)
	return g
}

// Enabled reports whether the LLM path is configured.
func (g *Generator) Enabled() bool {
	return g.enabled
}

// VendorProfile generates a narrative for a stored prediction,
// optionally enriched with the vendor's history aggregate. Always
// returns usable text: any LLM failure falls back to BasicSummary.
func (g *Generator) VendorProfile(ctx context.Context, rec *domain.PredictionRecord, history *domain.VendorHistory) string {
	if !g.enabled || g.client == nil {
		return BasicSummary(rec.Output) + " [LLM disabled]"
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: profilePrompt(rec, history)},
		},
		Temperature: 0.3,
		TopP:        0.9,
		MaxTokens:   250,
	})
	if err != nil {
		g.logger.Warn("profile generation failed, using basic summary", "error", err)
		return BasicSummary(rec.Output) + " [LLM failed]"
	}
	if len(resp.Choices) == 0 {
		g.logger.Warn("profile generation returned no choices")
		return BasicSummary(rec.Output) + " [LLM failed]"
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content) + "\n\n" + profileFooter
}

func profilePrompt(rec *domain.PredictionRecord, history *domain.VendorHistory) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a government fraud investigation assistant analyzing procurement transactions.\n\n")
	fmt.Fprintf(&b, "Transaction Details:\n")
	fmt.Fprintf(&b, "- Vendor: %s\n", rec.Input.Vendor)
	fmt.Fprintf(&b, "- Agency: %s\n", rec.Input.Agency)
	fmt.Fprintf(&b, "- Amount: $%.2f\n", rec.Input.Amount)
	fmt.Fprintf(&b, "- ML Fraud Score: %g (0.0-1.0 scale, higher = more anomalous)\n", rec.Output.FraudScore)
	fmt.Fprintf(&b, "- Risk Score: %d/99 (rule-based assessment)\n", rec.Output.RiskScore)
	fmt.Fprintf(&b, "- Flagged as Anomaly: %t\n\n", rec.Output.IsAnomaly)

	b.WriteString("Risk Indicators Detected:\n")
	if len(rec.Output.Reasons) == 0 {
		b.WriteString("- No specific risk indicators\n")
	}
	for _, r := range rec.Output.Reasons {
		fmt.Fprintf(&b, "- %s\n", r)
	}

	if history != nil && history.Count > 0 {
		fmt.Fprintf(&b, "\nVendor History (from stored predictions):\n")
		fmt.Fprintf(&b, "- Prior transactions: %d\n", history.Count)
		fmt.Fprintf(&b, "- Average amount: $%.2f\n", history.AverageAmount)
		fmt.Fprintf(&b, "- High-risk transactions: %d\n", history.HighRiskCount)
		fmt.Fprintf(&b, "- Average risk score: %.1f\n", history.AverageRiskScore)
	}

	b.WriteString("\nGenerate a professional 3-4 sentence profile explaining:\n")
	b.WriteString("1. Why this vendor/agency combination was flagged (reference both ML and rule-based scores)\n")
	b.WriteString("2. The key risk factors identified\n")
	b.WriteString("3. Recommended next steps for investigators\n\n")
	b.WriteString("Be concise, factual, and focus only on the provided risk indicators. Do not speculate beyond the given data.")

	return b.String()
}
