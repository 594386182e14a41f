// Churnistic - Credit card and bank bonus churning tracker.

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

	"github.com/churnistic/churnistic/internal/api"
	"github.com/churnistic/churnistic/internal/banks"
	"github.com/churnistic/churnistic/internal/bus"
	"github.com/churnistic/churnistic/internal/cache"
	"github.com/churnistic/churnistic/internal/cards"
	"github.com/churnistic/churnistic/internal/domain"
	"github.com/churnistic/churnistic/internal/repository"
	"github.com/churnistic/churnistic/internal/rules"
	"github.com/churnistic/churnistic/internal/worker"
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
	if os.Getenv("CHURNISTIC_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting churnistic",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("CHURNISTIC_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

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

	// Initialize CEL Rule Engine
	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Load custom rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Services
	cardSvc := cards.NewService(repo, cacheImpl, busImpl, engine, cfg.Eligibility)
	bankSvc := banks.NewService(repo, busImpl)
	slog.Info("services initialized")

	// Start the eligibility cache invalidator
	invalidator := worker.NewInvalidator(busImpl, cacheImpl)
	if err := invalidator.Start(); err != nil {
		slog.Error("failed to start cache invalidator", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, cardSvc, bankSvc, repo, cacheImpl, busImpl, cfg.Eligibility.RateLimit, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("churnistic is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the invalidator first
	invalidator.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("churnistic shutdown complete")
}

// loadRulesFromDatabase loads custom rules from the database into the engine.
// All custom rules are configured via POST /rules - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no custom rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║              💳 CHURNISTIC                ║")
	fmt.Println("  ║      Signup Bonus Churning Tracker        ║")
	fmt.Println("  ║       Every bonus, on schedule.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /eligibility/check              - Check card eligibility")
	fmt.Println("    POST /applications                   - Apply for a card")
	fmt.Println("    GET  /applications                   - List applications")
	fmt.Println("    PATCH /applications/{id}/status      - Update application status")
	fmt.Println("    POST /applications/{id}/spend        - Record spend")
	fmt.Println("    POST /applications/{id}/retention-offers - Record retention offer")
	fmt.Println("    POST /accounts                       - Open a bank account")
	fmt.Println("    POST /accounts/{id}/deposits         - Record direct deposit")
	fmt.Println("    GET  /accounts/{id}/bonus-progress   - Bonus requirement progress")
	fmt.Println("    GET  /rules                          - List custom rules")
	fmt.Println("    POST /rules                          - Create a custom rule")
	fmt.Println("    POST /rules/reload                   - Hot-reload custom rules")
	fmt.Println("    GET  /health                         - Health check")
	fmt.Println()
}
