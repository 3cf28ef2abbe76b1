package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"budgetwise/internal/core"
)

const runColumns = "id, user_id, year, month, status, result_json, failed_goals, export_status, attempts, last_error, created_at, exported_at"

func scanRun(s rowScanner) (core.AllocationRun, error) {
	var (
		run        core.AllocationRun
		status     string
		result     string
		failed     string
		exportStat string
		created    string
		exported   sql.NullString
	)
	err := s.Scan(&run.ID, &run.UserID, &run.Window.Year, &run.Window.Month, &status, &result, &failed,
		&exportStat, &run.Attempts, &run.LastError, &created, &exported)
	if err != nil {
		return core.AllocationRun{}, err
	}
	run.Status = core.RunStatus(status)
	run.ExportStatus = core.ExportStatus(exportStat)

	if err := json.Unmarshal([]byte(result), &run.Result); err != nil {
		return core.AllocationRun{}, fmt.Errorf("decode run result: %w", err)
	}
	if err := json.Unmarshal([]byte(failed), &run.FailedGoals); err != nil {
		return core.AllocationRun{}, fmt.Errorf("decode failed goals: %w", err)
	}
	if run.CreatedAt, err = parseTime(created); err != nil {
		return core.AllocationRun{}, err
	}
	if exported.Valid {
		t, err := parseTime(exported.String)
		if err != nil {
			return core.AllocationRun{}, err
		}
		run.ExportedAt = &t
	}
	return run, nil
}

func (r *SQLiteRepository) queryRuns(ctx context.Context, query string, args ...any) ([]core.AllocationRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list allocation runs: %w", err)
	}
	defer rows.Close()

	var out []core.AllocationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan allocation run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveRun(ctx context.Context, run core.AllocationRun) error {
	run.ID = newID(run.ID)
	run.CreatedAt = r.stamp(run.CreatedAt)
	if run.ExportStatus == "" {
		run.ExportStatus = core.ExportPending
	}
	if run.FailedGoals == nil {
		run.FailedGoals = []string{}
	}

	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}
	failed, err := json.Marshal(run.FailedGoals)
	if err != nil {
		return fmt.Errorf("encode failed goals: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO allocation_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		run.ID, run.UserID, run.Window.Year, run.Window.Month, string(run.Status), string(result), string(failed),
		string(run.ExportStatus), run.Attempts, run.LastError, formatTime(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert allocation run: %w", err)
	}

	slog.InfoContext(ctx, "Allocation run saved",
		"run_id", run.ID,
		"user_id", run.UserID,
		"window", run.Window.Key(),
		"status", run.Status)
	return nil
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (core.AllocationRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM allocation_runs WHERE id = ?`, id))
	if err != nil {
		return core.AllocationRun{}, notFound(err)
	}
	return run, nil
}

// ListRuns returns the user's runs, newest first. A non-positive limit
// returns all of them.
func (r *SQLiteRepository) ListRuns(ctx context.Context, userID string, limit int) ([]core.AllocationRun, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.queryRuns(ctx,
		`SELECT `+runColumns+` FROM allocation_runs WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit)
}

func (r *SQLiteRepository) LatestRun(ctx context.Context, userID string, w core.MonthWindow) (core.AllocationRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM allocation_runs
		 WHERE user_id = ? AND year = ? AND month = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		userID, w.Year, w.Month))
	if err != nil {
		return core.AllocationRun{}, notFound(err)
	}
	return run, nil
}

// ListPendingExports returns runs awaiting export, oldest first.
func (r *SQLiteRepository) ListPendingExports(ctx context.Context, limit int) ([]core.AllocationRun, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.queryRuns(ctx,
		`SELECT `+runColumns+` FROM allocation_runs WHERE export_status = ? ORDER BY created_at, rowid LIMIT ?`,
		string(core.ExportPending), limit)
}

func (r *SQLiteRepository) ClaimExport(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE allocation_runs SET export_status = ? WHERE id = ? AND export_status = ?`,
		string(core.ExportClaimed), id, string(core.ExportPending))
	if err != nil {
		return false, fmt.Errorf("claim run export: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim run export: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE allocation_runs SET export_status = ?, exported_at = ?, last_error = '' WHERE id = ?`,
		string(core.ExportDone), formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("mark run exported: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Allocation run marked as exported", "run_id", id)
	return nil
}

// MarkExportAttempt records a failed export. With failed set the run is
// given up on; otherwise it stays pending for the next pass.
func (r *SQLiteRepository) MarkExportAttempt(ctx context.Context, id string, failed bool, errMsg string) error {
	status := core.ExportPending
	if failed {
		status = core.ExportFailed
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE allocation_runs SET attempts = attempts + 1, last_error = ?, export_status = ? WHERE id = ?`,
		errMsg, string(status), id)
	if err != nil {
		return fmt.Errorf("mark run export attempt: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	slog.WarnContext(ctx, "Allocation run export attempt failed", "run_id", id, "given_up", failed, "error", errMsg)
	return nil
}
