// Command server runs the portfolio risk-analytics service.
//
// Startup order:
//  1. Load configuration from environment
//  2. Initialize logging
//  3. Open databases (durable data + failure/analysis cache)
//  4. Create repositories and initialize schemas
//  5. Wire the market-data provider chain and services
//  6. Register background jobs
//  7. Start the HTTP server
//  8. Wait for shutdown signal and drain gracefully
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jeremycod/rustfolio-sub000/internal/clients/alphavantage"
	"github.com/jeremycod/rustfolio-sub000/internal/clients/stooq"
	"github.com/jeremycod/rustfolio-sub000/internal/config"
	"github.com/jeremycod/rustfolio-sub000/internal/database"
	"github.com/jeremycod/rustfolio-sub000/internal/marketdata"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/optimization"
	optimizationhandlers "github.com/jeremycod/rustfolio-sub000/internal/modules/optimization/handlers"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/portfolio"
	portfoliohandlers "github.com/jeremycod/rustfolio-sub000/internal/modules/portfolio/handlers"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/prices"
	priceshandlers "github.com/jeremycod/rustfolio-sub000/internal/modules/prices/handlers"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/risk"
	riskhandlers "github.com/jeremycod/rustfolio-sub000/internal/modules/risk/handlers"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/settings"
	settingshandlers "github.com/jeremycod/rustfolio-sub000/internal/modules/settings/handlers"
	"github.com/jeremycod/rustfolio-sub000/internal/scheduler"
	"github.com/jeremycod/rustfolio-sub000/internal/server"
	"github.com/jeremycod/rustfolio-sub000/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Msg("Starting rustfolio")

	// Durable data (prices, portfolios, settings, snapshots) and the
	// ephemeral failure cache live in separate databases with different
	// durability profiles.
	dataDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "data.db"),
		Profile: database.ProfileStandard,
		Name:    "data",
	})
	if err != nil {
		return err
	}
	defer dataDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return err
	}
	defer cacheDB.Close()

	ctx := context.Background()

	priceRepo := prices.NewRepository(dataDB)
	failureRepo := prices.NewFailureRepository(cacheDB)
	portfolioRepo := portfolio.NewRepository(dataDB)
	settingsRepo := settings.NewRepository(dataDB, log)
	snapshotRepo := risk.NewSnapshotRepository(dataDB)

	for name, init := range map[string]func(context.Context) error{
		"prices":    priceRepo.InitSchema,
		"failures":  failureRepo.InitSchema,
		"portfolio": portfolioRepo.InitSchema,
		"settings":  settingsRepo.InitSchema,
		"snapshots": snapshotRepo.InitSchema,
	} {
		if err := init(ctx); err != nil {
			return fmt.Errorf("failed to init %s schema: %w", name, err)
		}
	}

	// Provider chain: Alpha Vantage first, Stooq as keyless fallback.
	providers := []marketdata.Provider{}
	if cfg.AlphaVantageAPIKey != "" {
		av := alphavantage.NewClient(cfg.AlphaVantageAPIKey, log)
		av.SetTimeout(cfg.ProviderTimeout)
		providers = append(providers, av)
	} else {
		log.Warn().Msg("No Alpha Vantage API key configured, using Stooq only")
	}
	sq := stooq.NewClient(log)
	sq.SetTimeout(cfg.ProviderTimeout)
	providers = append(providers, sq)
	fetcher := marketdata.NewChainFetcher(log, providers...)

	priceService := prices.NewService(priceRepo, failureRepo, fetcher, portfolioRepo, cfg.FreshnessThreshold, log)
	riskEngine := risk.NewEngine(risk.EngineConfig{
		MinPoints:    risk.DefaultMinPoints,
		RiskFreeRate: cfg.RiskFreeRate,
	})
	riskService := risk.NewService(priceService, portfolioRepo, settingsRepo, snapshotRepo, riskEngine, log)
	optimizationService := optimization.NewService(riskService, optimization.NewEngine(optimization.DefaultEngineConfig()), log)

	sched := scheduler.New(log)
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"@every 6h", scheduler.NewRiskRefreshJob(portfolioRepo, riskService, optimizationService, log)},
		{"@daily", scheduler.NewFailureCleanupJob(failureRepo, log)},
		{"0 3 * * SUN", scheduler.NewPriceCleanupJob(priceRepo, cfg.PriceRetentionDays, log)},
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.job.Name(), err)
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:                 log,
		Port:                cfg.Port,
		DevMode:             cfg.DevMode,
		DataDB:              dataDB,
		CacheDB:             cacheDB,
		PricesHandler:       priceshandlers.NewHandler(priceService, log),
		PortfolioHandler:    portfoliohandlers.NewHandler(portfolioRepo, log),
		RiskHandler:         riskhandlers.NewHandler(riskService, log),
		OptimizationHandler: optimizationhandlers.NewHandler(optimizationService, log),
		SettingsHandler:     settingshandlers.NewHandler(settingsRepo, log),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
