// Sentinel - Fraud pattern detection over the transaction graph.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

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

	"github.com/opensource-finance/sentinel/internal/api"
	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/cache"
	"github.com/opensource-finance/sentinel/internal/detect"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/graphstore"
	"github.com/opensource-finance/sentinel/internal/score"
	"github.com/opensource-finance/sentinel/internal/stats"
	"github.com/opensource-finance/sentinel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("SENTINEL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting sentinel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("SENTINEL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"graphstore", cfg.GraphStore.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model_url", cfg.Model.URL,
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

	// Initialize GraphStore
	store, err := graphstore.New(cfg.GraphStore)
	if err != nil {
		slog.Error("failed to initialize graph store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("graph store initialized", "driver", cfg.GraphStore.Driver)

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

	// Initialize the model scorer (live path) and rule scorer (rescore path)
	modelScorer := score.NewModelScorer(cfg.Model)
	ruleScorer, err := score.NewRuleScorer(score.DefaultFeatureRules())
	if err != nil {
		slog.Error("failed to initialize rule scorer", "error", err)
		os.Exit(1)
	}
	slog.Info("scorers initialized", "features", len(score.DefaultFeatureRules()))

	// Initialize Pattern Detector
	detector := detect.NewDetector(store, cfg.Scan)
	slog.Info("pattern detector initialized",
		"cycle_floor", cfg.Scan.CycleFloor,
		"decay_high_floor", cfg.Scan.DecayHighFloor,
	)

	// Initialize Stats Aggregator
	aggregator := stats.NewAggregator(store, cacheImpl, time.Duration(cfg.Scan.CacheTTLSecs)*time.Second)

	// Initialize background scan worker (Pro tier)
	var scanWorker *worker.ScanWorker
	if cfg.Tier == domain.TierPro || os.Getenv("SENTINEL_SCAN_WORKER") == "true" {
		scanWorker = worker.NewScanWorker(detector, cacheImpl, busImpl, cfg.Scan)
		scanWorker.Start()
		slog.Info("scan worker started", "interval_secs", cfg.Scan.IntervalSecs)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Deps{
		Store:      store,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Model:      modelScorer,
		Rules:      ruleScorer,
		Detector:   detector,
		Aggregator: aggregator,
		Scan:       cfg.Scan,
		Version:    Version,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("sentinel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop scan worker first
	if scanWorker != nil {
		if err := scanWorker.Stop(); err != nil {
			slog.Error("failed to stop scan worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("sentinel shutdown complete")
}

// applyEnvOverrides lets deploys point at their own model service and
// database without a config file.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("SENTINEL_MODEL_URL"); v != "" {
		cfg.Model.URL = v
	}
	if v := os.Getenv("SENTINEL_SQLITE_PATH"); v != "" {
		cfg.GraphStore.SQLitePath = v
	}
	if v := os.Getenv("SENTINEL_POSTGRES_HOST"); v != "" {
		cfg.GraphStore.PostgresHost = v
	}
	if v := os.Getenv("SENTINEL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("SENTINEL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║              🛰  SENTINEL                  ║")
	fmt.Println("  ║     Fraud Pattern Detection Engine        ║")
	fmt.Println("  ║      Every naira accounted for.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Model:    %s\n", cfg.Model.URL)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /transactions/analyze        - Score and classify a transaction")
	fmt.Println("    POST /transactions/{id}/rescore   - Re-score through the rule path")
	fmt.Println("    GET  /transactions/{id}           - Get transaction by ID")
	fmt.Println("    GET  /graph/accounts              - List account nodes")
	fmt.Println("    GET  /graph/devices               - List device nodes")
	fmt.Println("    GET  /graph/transactions          - List recent transactions")
	fmt.Println("    GET  /graph/transactions/high-risk - List high risk transactions")
	fmt.Println("    GET  /graph/stats                 - Dashboard aggregates")
	fmt.Println("    GET  /graph/patterns              - Detected fraud patterns")
	fmt.Println("    GET  /health                      - Health check")
	fmt.Println()
}
