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
	"budgetwise/internal/sheets"
	gsheet "budgetwise/internal/sheets/google"
	memsheet "budgetwise/internal/sheets/memory"
	"budgetwise/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting export-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	result := cli.OpenBackend(context.Background(), logger, cfg)
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()
	runs := result.Store

	var exporter sheets.RunExporter
	if cfg.SheetsEnabled() {
		gs, err := gsheet.New(context.Background(), gsheet.Options{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
			OAuthClientFile:    cfg.GoogleOAuthClientFile,
			OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
			OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", log.FieldError, err)
			os.Exit(1)
		}
		exporter = gs
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		exporter = memsheet.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting in memory")
	}

	processor := services.NewExportProcessor(runs, exporter, services.ExportProcessorConfig{
		PollInterval: cfg.ExportInterval,
		BatchSize:    cfg.ExportBatchSize,
		MaxRetries:   cfg.ExportMaxRetries,
	}, logger)
	exportWorker := worker.NewExportWorker(runs, processor, cfg.ExportBatchSize, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Export processor did not stop cleanly", log.FieldError, err)
		}
	})

	// Export any runs that were recorded while the worker was down.
	logger.Info("Performing startup export check...")
	if err := exportWorker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup export check", log.FieldError, err)
	}

	// Polling covers runs whose message never arrived.
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start export processor", log.FieldError, err)
		os.Exit(1)
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, relying on polling", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			go func() {
				err := amqpClient.ConsumeAllocationApplied(ctx, exportWorker.HandleAllocationApplied)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed, relying on polling", log.FieldError, err)
				}
			}()
			logger.Info("Consuming allocation messages", "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - relying on polling for pending runs")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Export-worker shutdown complete")
}
