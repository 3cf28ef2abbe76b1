package worker

import (
	"context"
	"errors"
	"fmt"

	"budgetwise/internal/amqp"
	"budgetwise/internal/core"
	"budgetwise/internal/log"
	"budgetwise/internal/ports"
	"budgetwise/internal/services"
)

// ExportWorker exports allocation runs announced over AMQP and sweeps up
// runs whose messages were lost.
type ExportWorker struct {
	runs      ports.RunStore
	processor *services.ExportProcessor
	batchSize int
	logger    *log.Logger
}

func NewExportWorker(runs ports.RunStore, processor *services.ExportProcessor, batchSize int, logger *log.Logger) *ExportWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		runs:      runs,
		processor: processor,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleAllocationApplied exports the announced run. A returned error makes
// the consumer requeue the message; runs that are unknown or no longer
// pending are acknowledged without work.
func (w *ExportWorker) HandleAllocationApplied(ctx context.Context, msg *amqp.AllocationAppliedMessage) error {
	w.logger.InfoContext(ctx, "Processing allocation message",
		log.FieldRunID, msg.RunID,
		log.FieldUserID, msg.UserID,
		log.FieldWindow, msg.Window().Key())

	run, err := w.runs.GetRun(ctx, msg.RunID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Allocation run not found, dropping message", log.FieldRunID, msg.RunID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get run %s: %w", msg.RunID, err)
	}

	if err := w.processor.Export(ctx, run); err != nil {
		return fmt.Errorf("export run %s: %w", run.ID, err)
	}
	return nil
}

// ProcessPendingRuns exports one batch of pending runs. It is the fallback
// for messages that never arrived.
func (w *ExportWorker) ProcessPendingRuns(ctx context.Context) int {
	return w.processor.ProcessBatch(ctx)
}

// StartupCheck exports a larger backlog of pending runs left over from
// worker downtime.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.runs.ListPendingExports(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending runs for startup check: %w", err)
	}
	if len(pending) == 0 {
		w.logger.InfoContext(ctx, "No pending runs found on startup")
		return nil
	}

	w.logger.InfoContext(ctx, "Found pending runs on startup, exporting", "count", len(pending))

	exported, failed := 0, 0
	for _, run := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.processor.Export(ctx, run); err != nil {
			failed++
			continue
		}
		exported++
	}

	w.logger.InfoContext(ctx, "Startup export completed",
		"total", len(pending),
		"exported", exported,
		"errors", failed)
	return nil
}
