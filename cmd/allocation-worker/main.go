package main

import (
	"context"
	"errors"
	"os"
	"time"

	"budgetwise/internal/amqp"
	"budgetwise/internal/cli"
	"budgetwise/internal/log"
	"budgetwise/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting allocation-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend == "memory" {
		logger.Warn("Memory backend selected - the worker will not see data written by the server")
	}

	result := cli.OpenBackend(context.Background(), logger, cfg)
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()

	locker := cli.NewLocker(logger, cfg)
	defer locker.Close()

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without announcements", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized - applied runs will be exported by export-worker")
		}
	} else {
		logger.Info("AMQP disabled - applied runs will not be announced")
	}

	allocations := cli.NewAllocationService(cfg, result.Store, locker, publisher, logger)

	schedCfg := services.DefaultSchedulerConfig()
	schedCfg.RefreshAfter = cfg.AllocationRefreshAfter
	scheduler := services.NewScheduler(result.Store, result.Store, allocations, schedCfg, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Allocation scheduler configured",
		"interval", cfg.AllocationInterval,
		"refresh_after", cfg.AllocationRefreshAfter,
		"backend", cfg.DataBackend)

	if err := scheduler.Run(ctx, cfg.AllocationInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Allocation scheduler stopped", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Allocation-worker shutdown complete")
}
