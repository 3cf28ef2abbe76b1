package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"budgetwise/internal/core"
	"budgetwise/internal/log"
	"budgetwise/internal/ports"
	"budgetwise/internal/sheets"
)

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often to check for pending runs (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of runs exported per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the number of attempts before a run is marked failed (default: 5)
	MaxRetries int
}

func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
		MaxRetries:   5,
	}
}

// ExportProcessor exports recorded allocation runs to a sheet, retrying
// failed exports on later passes.
type ExportProcessor struct {
	runs     ports.RunStore
	exporter sheets.RunExporter
	config   ExportProcessorConfig
	logger   *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportProcessor(runs ports.RunStore, exporter sheets.RunExporter, config ExportProcessorConfig, logger *log.Logger) *ExportProcessor {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportProcessor{
		runs:     runs,
		exporter: exporter,
		config:   config,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current batch to finish.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch exports up to BatchSize pending runs and returns how many
// succeeded.
func (p *ExportProcessor) ProcessBatch(ctx context.Context) int {
	runs, err := p.runs.ListPendingExports(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list pending exports", log.FieldError, err)
		return 0
	}
	if len(runs) == 0 {
		return 0
	}

	p.logger.DebugContext(ctx, "Processing export batch", "count", len(runs))

	exported := 0
	for _, run := range runs {
		select {
		case <-p.stopChan():
			return exported
		case <-ctx.Done():
			return exported
		default:
		}
		if err := p.Export(ctx, run); err == nil {
			exported++
		}
	}
	return exported
}

func (p *ExportProcessor) stopChan() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCh
}

// Export writes one run and records the outcome. The run is claimed in
// the store first; runs that are no longer pending, or that another
// exporter claimed, are skipped.
func (p *ExportProcessor) Export(ctx context.Context, run core.AllocationRun) error {
	if run.ExportStatus != core.ExportPending {
		p.logger.DebugContext(ctx, "Run not pending export, skipping",
			log.FieldRunID, run.ID, "export_status", string(run.ExportStatus))
		return nil
	}

	claimed, err := p.runs.ClaimExport(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("claim run %s: %w", run.ID, err)
	}
	if !claimed {
		p.logger.DebugContext(ctx, "Run claimed by another exporter, skipping", log.FieldRunID, run.ID)
		return nil
	}

	ref, err := p.exporter.ExportRun(ctx, run)
	if err != nil {
		p.handleFailure(ctx, run, err)
		return err
	}

	if err := p.runs.MarkExported(ctx, run.ID); err != nil {
		p.logger.WarnContext(ctx, "Failed to mark run as exported",
			log.FieldRunID, run.ID, log.FieldError, err)
	}
	p.logger.InfoContext(ctx, "Exported allocation run",
		log.FieldRunID, run.ID,
		log.FieldUserID, run.UserID,
		log.FieldWindow, run.Window.Key(),
		log.FieldSheetsRef, ref)
	return nil
}

func (p *ExportProcessor) handleFailure(ctx context.Context, run core.AllocationRun, exportErr error) {
	attempt := run.Attempts + 1
	giveUp := attempt >= p.config.MaxRetries

	p.logger.WarnContext(ctx, "Export failed",
		log.FieldRunID, run.ID,
		"attempt", attempt,
		log.FieldError, exportErr)

	if err := p.runs.MarkExportAttempt(ctx, run.ID, giveUp, exportErr.Error()); err != nil {
		p.logger.ErrorContext(ctx, "Failed to record export attempt",
			log.FieldRunID, run.ID, log.FieldError, err)
		return
	}
	if giveUp {
		p.logger.ErrorContext(ctx, "Export failed permanently after max retries",
			log.FieldRunID, run.ID,
			"attempts", attempt)
	}
}
