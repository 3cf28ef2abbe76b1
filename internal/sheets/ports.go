package sheets

import (
	"context"

	"budgetwise/internal/core"
)

// RunExporter writes an applied allocation run to an external sheet.
type RunExporter interface {
	// ExportRun appends the run and returns a reference to the written rows.
	ExportRun(ctx context.Context, run core.AllocationRun) (rowRef string, err error)
}
