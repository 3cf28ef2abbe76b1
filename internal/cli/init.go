// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/budgetwise, cmd/allocation-worker and cmd/export-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budgetwise/internal/allocation"
	"budgetwise/internal/backend"
	"budgetwise/internal/config"
	"budgetwise/internal/lock"
	"budgetwise/internal/log"
	"budgetwise/internal/ports"
	"budgetwise/internal/services"

	"github.com/joho/godotenv"
)

// SetupLogger initializes structured logging at the LOG_LEVEL level
// (default info; LOG_FORMAT=json switches to JSON output).
// Returns the configured logger and sets it as the default logger.
func SetupLogger() *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if os.Getenv("LOG_FORMAT") == "json" {
		cfg.Format = "json"
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend creates the configured store.
// Returns the backend or exits the process on failure.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err,
			"valid", backend.GetBackendTypeStrings())
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", bcfg.Type.String())
		os.Exit(1)
	}
	return result
}

// Locker is a lock.Locker the process owns and must close.
type Locker struct {
	lock.Locker
	// Ping is nil for the in-process locker.
	Ping  func(ctx context.Context) error
	Close func() error
}

// NewLocker returns a Redis locker when REDIS_ADDRESS is set and an
// in-process locker otherwise.
func NewLocker(logger *log.Logger, cfg *config.Config) Locker {
	if cfg.RedisAddress == "" {
		logger.Info("Redis disabled - allocation runs are serialized in-process only")
		return Locker{Locker: lock.NewLocalLocker(), Close: func() error { return nil }}
	}
	rl := lock.NewRedisLocker(lock.RedisOptions{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.LockTTL,
	}, logger)
	logger.Info("Redis locker initialized", "address", cfg.RedisAddress, "ttl", cfg.LockTTL)
	return Locker{Locker: rl, Ping: rl.Ping, Close: rl.Close}
}

// NewAllocationService wires calculator, distributor and run recording
// over store. publisher may be nil. With REDIS_ADDRESS set other processes
// write the same ledger, so the in-process preview cache is disabled.
func NewAllocationService(cfg *config.Config, store ports.Store, locker lock.Locker, publisher services.Publisher, logger *log.Logger) *services.AllocationService {
	calc := allocation.NewCalculator(store, store, logger)

	opts := allocation.DefaultOptions()
	opts.DefaultLongTermPct = cfg.DefaultLongTermPct
	opts.DefaultShortTermPct = cfg.DefaultShortTermPct
	opts.RequirePolicy = cfg.RequirePolicy
	opts.Logger = logger
	dist := allocation.NewDistributor(calc, store, store, store, opts)

	svcCfg := services.DefaultAllocationServiceConfig()
	svcCfg.WriteTimeout = cfg.AllocationWriteTimeout
	if cfg.RedisAddress != "" {
		svcCfg.PreviewCacheSize = 0
	}
	return services.NewAllocationService(calc, dist, store, locker, publisher, svcCfg, logger)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
