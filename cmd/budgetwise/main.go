package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetwise/internal/amqp"
	"budgetwise/internal/cache"
	"budgetwise/internal/cli"
	apphttp "budgetwise/internal/http"
	"budgetwise/internal/log"
	"budgetwise/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	result := cli.OpenBackend(context.Background(), logger, cfg)
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()
	store := result.Store

	locker := cli.NewLocker(logger, cfg)
	defer locker.Close()

	checks := map[string]apphttp.ReadinessCheck{"store": store.Ping}
	if locker.Ping != nil {
		checks["redis"] = locker.Ping
	}

	// Applied runs are announced to the export worker when AMQP is configured.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, runs will be exported by polling only", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			checks["amqp"] = amqpClient.Ping
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - applied runs will not be announced")
	}

	allocations := cli.NewAllocationService(cfg, store, locker, publisher, logger)
	ledger := services.NewLedgerService(store, allocations, logger)
	onboarding := services.NewOnboardingService(store, allocations, cfg.DefaultLongTermPct, cfg.DefaultShortTermPct, logger)

	cacheManager := cache.NewManager(logger)
	if pc := allocations.PreviewCache(); pc != nil {
		cacheManager.Register(pc)
	}
	cacheManager.StartCleanup(time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Services{
		Allocations: allocations,
		Ledger:      ledger,
		Onboarding:  onboarding,
	}, apphttp.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ReadinessChecks:    checks,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
	})

	logger.Info("Starting budgetwise server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
