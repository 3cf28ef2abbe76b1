// Package memory is an in-process RunExporter used with the memory
// backend and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"budgetwise/internal/core"
	"budgetwise/internal/sheets"
)

type Exporter struct {
	mu       sync.Mutex
	rows     [][]string
	exported []string
	err      error
}

var _ sheets.RunExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

// ExportRun appends the run's rows and returns a synthetic range reference.
func (e *Exporter) ExportRun(ctx context.Context, run core.AllocationRun) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	rows := sheets.RunRows(run)
	first := len(e.rows) + 1
	e.rows = append(e.rows, rows...)
	e.exported = append(e.exported, run.ID)
	return fmt.Sprintf("mem:%d-%d", first, len(e.rows)), nil
}

// FailWith makes every following export return err; nil clears it.
func (e *Exporter) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Rows returns a copy of everything written so far.
func (e *Exporter) Rows() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.rows))
	for i, r := range e.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Exported returns the ids of exported runs in export order.
func (e *Exporter) Exported() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.exported...)
}
