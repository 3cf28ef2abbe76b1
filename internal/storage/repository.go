package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budgetwise/internal/core"
	"budgetwise/internal/ports"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var _ ports.Store = (*SQLiteRepository)(nil)

// Timestamps are stored as fixed-width UTC text so that string comparison
// orders them chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return r.now()
	}
	return t.UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// notFound maps an empty result to core.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Onboard stores the policy, income sources and goals in one transaction.
func (r *SQLiteRepository) Onboard(ctx context.Context, p core.AllocationPolicy, incomes []core.IncomeEntry, goals []core.SavingsGoal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for _, e := range incomes {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, g := range goals {
		if err := g.Validate(); err != nil {
			return err
		}
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.savePolicy(ctx, tx, p); err != nil {
			return err
		}
		for _, e := range incomes {
			if _, err := r.insertIncome(ctx, tx, e); err != nil {
				return err
			}
		}
		for _, g := range goals {
			if _, err := r.insertGoal(ctx, tx, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("onboard user: %w", err)
	}

	slog.InfoContext(ctx, "User onboarded",
		"user_id", p.UserID,
		"income_sources", len(incomes),
		"goals", len(goals))
	return nil
}
