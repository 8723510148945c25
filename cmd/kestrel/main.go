// Kestrel - Fraud scoring for government procurement.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/openaudit/kestrel/internal/alert"
	"github.com/openaudit/kestrel/internal/api"
	"github.com/openaudit/kestrel/internal/audit"
	"github.com/openaudit/kestrel/internal/bus"
	"github.com/openaudit/kestrel/internal/cache"
	"github.com/openaudit/kestrel/internal/domain"
	"github.com/openaudit/kestrel/internal/engine"
	"github.com/openaudit/kestrel/internal/explain"
	"github.com/openaudit/kestrel/internal/index"
	"github.com/openaudit/kestrel/internal/ingest"
	"github.com/openaudit/kestrel/internal/store"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"model_version", engine.ModelVersion,
	)

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	cfg.ApplyEnv()

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"index", cfg.Index.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"autoencoder", cfg.Training.EnableAutoencoder,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load the training snapshot. A missing file falls back to the
	// small built-in snapshot and marks the engine degraded; the
	// service still answers.
	snap, err := ingest.LoadCSV(cfg.Training.SnapshotPath)
	if err != nil {
		slog.Warn("snapshot unavailable, using fallback",
			"path", cfg.Training.SnapshotPath,
			"error", err,
		)
		snap = ingest.Fallback()
	}
	slog.Info("snapshot loaded", "source", snap.Source, "rows", len(snap.Rows), "degraded", snap.Degraded)

	// Train the scoring engine. Training is blocking: the server does
	// not accept traffic until a model is live.
	eng := engine.New(cfg.Training, logger)
	trainStart := time.Now()
	if err := eng.Train(snap); err != nil {
		slog.Error("training failed", "error", err)
		os.Exit(1)
	}
	slog.Info("model trained",
		"duration_ms", time.Since(trainStart).Milliseconds(),
		"trained_at", eng.TrainedAt(),
		"degraded", eng.Degraded(),
	)

	// Initialize prediction store
	st, err := store.New(cfg.Store, logger)
	if err != nil {
		slog.Error("failed to initialize prediction store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("prediction store initialized", "path", cfg.Store.PredictionsPath)

	// Initialize SQL index
	var idx domain.PredictionIndex
	if cfg.Index.Enabled {
		idx, err = index.New(cfg.Index)
		if err != nil {
			slog.Error("failed to initialize index", "error", err)
			os.Exit(1)
		}
		defer idx.Close()
		slog.Info("index initialized", "driver", cfg.Index.Driver)
	}

	// Initialize audit ledger
	aud, err := audit.New(cfg.Store.AuditPath, logger)
	if err != nil {
		slog.Error("failed to initialize audit log", "error", err)
		os.Exit(1)
	}
	defer aud.Close()
	slog.Info("audit log initialized", "path", cfg.Store.AuditPath)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize alert policy engine
	alerts, err := alert.NewEngine()
	if err != nil {
		slog.Error("failed to initialize alert engine", "error", err)
		os.Exit(1)
	}
	if err := loadPolicies(ctx, idx, alerts); err != nil {
		slog.Error("failed to load alert policies", "error", err)
		os.Exit(1)
	}
	slog.Info("alert engine initialized", "policies", alerts.Loaded())
	alertRouter := alert.NewRouter(alerts, busImpl, logger)

	// Initialize the vendor profile generator
	gen := explain.NewGenerator(cfg.Explain, logger)
	slog.Info("profile generator initialized", "llm_enabled", gen.Enabled())

	// Initialize Server
	srv := api.NewServer(cfg, eng, st, idx, aud, cacheImpl, busImpl, alerts, alertRouter, gen, logger)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if dropped := aud.Dropped(); dropped > 0 {
		slog.Warn("audit entries dropped during run", "count", dropped)
	}

	slog.Info("kestrel shutdown complete")
}

// loadPolicies seeds the built-in policies and layers any stored
// policies on top. Stored policies with the same id win.
func loadPolicies(ctx context.Context, idx domain.PredictionIndex, alerts *alert.Engine) error {
	if err := alerts.LoadPolicies(alert.DefaultPolicies()); err != nil {
		return err
	}

	if idx == nil {
		return nil
	}

	stored, err := idx.ListPolicies(ctx)
	if err != nil {
		slog.Warn("failed to list stored policies", "error", err)
		return nil // Built-ins still apply - add more via POST /policies
	}

	if len(stored) > 0 {
		slog.Info("loading stored policies", "count", len(stored))
		return alerts.LoadPolicies(stored)
	}

	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                  KESTREL")
	fmt.Println("       Procurement Fraud Scoring Engine")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Model:    %s\n", engine.ModelVersion)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict                  - Score a transaction")
	fmt.Println("    GET  /predictions/{id}         - Get prediction by ID")
	fmt.Println("    GET  /vendors/{vendor}/history - Vendor decision history")
	fmt.Println("    POST /profile/{id}             - Generate vendor risk profile")
	fmt.Println("    GET  /policies                 - List alert policies")
	fmt.Println("    POST /policies                 - Create an alert policy")
	fmt.Println("    POST /policies/reload          - Hot-reload policies")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println("    GET  /metrics                  - Prometheus metrics")
	fmt.Println()
}
