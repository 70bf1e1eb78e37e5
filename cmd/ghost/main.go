// GHOST - Communication forensics for the golden hour.
// Copyright (c) 2025 ghost-forensics
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ghost-forensics/ghost/internal/api"
	"github.com/ghost-forensics/ghost/internal/bus"
	"github.com/ghost-forensics/ghost/internal/cache"
	"github.com/ghost-forensics/ghost/internal/domain"
	"github.com/ghost-forensics/ghost/internal/pipeline"
	"github.com/ghost-forensics/ghost/internal/repository"
	"github.com/ghost-forensics/ghost/internal/rules"
	"github.com/ghost-forensics/ghost/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	setupLogger()
	slog.Info("starting ghost",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	if err := run(); err != nil {
		slog.Error("ghost exited", "error", err)
		os.Exit(1)
	}
	slog.Info("ghost shutdown complete")
}

func setupLogger() {
	level := slog.LevelInfo
	if os.Getenv("GHOST_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
}

// loadConfig picks the tier from the environment. Standalone is the
// default; GHOST_TIER=lab switches to the shared-server stack.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("GHOST_TIER") == "lab" {
		cfg = domain.LabConfig()
	}
	if os.Getenv("GHOST_MODE") == "triage" {
		cfg.Mode = domain.ModeTriage
	}
	return cfg
}

func run() error {
	cfg := loadConfig()
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"mode", cfg.Mode,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	defer repo.Close()

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cacheImpl.Close()

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer busImpl.Close()

	// The catalog starts from the built-in rule books. Case-specific
	// overrides load later via POST /v1/modules/reload.
	catalog, err := rules.NewCatalog(rules.DefaultModuleConfigs(), cfg.Analysis.Thresholds, cfg.Analysis.MinTextLength)
	if err != nil {
		return fmt.Errorf("module catalog: %w", err)
	}
	pipe := pipeline.New(catalog, cfg.Analysis, cfg.Mode)
	slog.Info("analysis engine initialized",
		"modules", catalog.ModuleCount(),
		"mode", cfg.Mode,
	)

	asyncWorker := maybeStartWorker(cfg, busImpl, repo, pipe)

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, catalog, pipe, Version)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("ghost is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	// The worker drains before the server so queued submissions finish
	// against a live repository.
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// maybeStartWorker brings up the async submission worker. The lab tier
// always runs one; standalone can opt in with GHOST_ASYNC_WORKER=true.
func maybeStartWorker(cfg *domain.Config, busImpl domain.EventBus, repo domain.Repository, pipe *pipeline.Pipeline) *worker.Worker {
	if cfg.Tier != domain.TierLab && os.Getenv("GHOST_ASYNC_WORKER") != "true" {
		return nil
	}

	w := worker.NewWorker(busImpl, repo, pipe)
	caseIDs := splitCases(os.Getenv("GHOST_CASES"))
	if err := w.Start(worker.Config{CaseIDs: caseIDs, WorkerCount: 5}); err != nil {
		slog.Error("failed to start async worker", "error", err)
		return nil
	}
	slog.Info("async worker started", "case_count", len(caseIDs))
	return w
}

// splitCases parses the comma-separated GHOST_CASES list. Empty means a
// global subscription across all cases.
func splitCases(env string) []string {
	var ids []string
	for _, id := range strings.Split(env, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               👻 GHOST                    ║")
	fmt.Println("  ║   Communication Forensics Engine          ║")
	fmt.Println("  ║     Every message tells a story.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Mode:     %s\n", cfg.Mode)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /v1/analyze             - Analyze communication records")
	fmt.Println("    GET    /v1/runs                - List runs for a case")
	fmt.Println("    GET    /v1/runs/{id}           - Get a stored run")
	fmt.Println("    GET    /v1/runs/{id}/summary   - Get a run's case summary")
	fmt.Println("    GET    /v1/runs/{id}/alerts    - List a run's alerts")
	fmt.Println("    GET    /v1/runs/{id}/links     - List a run's correlation links")
	fmt.Println("    GET    /v1/modules             - List module rule books")
	fmt.Println("    PUT    /v1/modules/{name}      - Save a module rule book")
	fmt.Println("    DELETE /v1/modules/{name}      - Restore a module's defaults")
	fmt.Println("    POST   /v1/modules/reload      - Hot-reload the catalog")
	fmt.Println("    GET    /health                 - Health check")
	fmt.Println()
}
