package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"budgetwise/internal/core"

	"github.com/shopspring/decimal"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// rangeClause restricts created_at to r, or matches everything for a zero range.
func rangeClause(r core.DateRange) (string, []any) {
	if r.IsZero() {
		return "", nil
	}
	from := r.From.UTC().Truncate(24 * time.Hour)
	return " AND created_at >= ? AND created_at < ?", []any{formatTime(from), formatTime(r.EndExclusive())}
}

// Income

const incomeColumns = "id, user_id, amount, source, created_at"

func scanIncome(s rowScanner) (core.IncomeEntry, error) {
	var (
		e       core.IncomeEntry
		created string
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.Amount, &e.Source, &created); err != nil {
		return core.IncomeEntry{}, err
	}
	t, err := parseTime(created)
	if err != nil {
		return core.IncomeEntry{}, err
	}
	e.CreatedAt = t
	return e, nil
}

func (r *SQLiteRepository) insertIncome(ctx context.Context, q querier, e core.IncomeEntry) (core.IncomeEntry, error) {
	e.ID = newID(e.ID)
	e.CreatedAt = r.stamp(e.CreatedAt)
	_, err := q.ExecContext(ctx,
		`INSERT INTO income_entries (`+incomeColumns+`) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Amount.String(), e.Source, formatTime(e.CreatedAt))
	if err != nil {
		return core.IncomeEntry{}, fmt.Errorf("insert income: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) CreateIncome(ctx context.Context, e core.IncomeEntry) (core.IncomeEntry, error) {
	if err := e.Validate(); err != nil {
		return core.IncomeEntry{}, err
	}
	return r.insertIncome(ctx, r.db, e)
}

func (r *SQLiteRepository) ListIncome(ctx context.Context, userID string, dr core.DateRange) ([]core.IncomeEntry, error) {
	clause, args := rangeClause(dr)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+incomeColumns+` FROM income_entries WHERE user_id = ?`+clause+` ORDER BY created_at, id`,
		append([]any{userID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("list income: %w", err)
	}
	defer rows.Close()

	var out []core.IncomeEntry
	for rows.Next() {
		e, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListAllIncome(ctx context.Context, userID string) ([]core.IncomeEntry, error) {
	return r.ListIncome(ctx, userID, core.DateRange{})
}

func (r *SQLiteRepository) getIncome(ctx context.Context, id string) (core.IncomeEntry, error) {
	e, err := scanIncome(r.db.QueryRowContext(ctx, `SELECT `+incomeColumns+` FROM income_entries WHERE id = ?`, id))
	if err != nil {
		return core.IncomeEntry{}, notFound(err)
	}
	return e, nil
}

func (r *SQLiteRepository) UpdateIncome(ctx context.Context, id string, amount decimal.Decimal, source string) (core.IncomeEntry, error) {
	e, err := r.getIncome(ctx, id)
	if err != nil {
		return core.IncomeEntry{}, err
	}
	e.Amount = amount
	e.Source = source
	if err := e.Validate(); err != nil {
		return core.IncomeEntry{}, err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE income_entries SET amount = ?, source = ? WHERE id = ?`, amount.String(), source, id)
	if err != nil {
		return core.IncomeEntry{}, fmt.Errorf("update income: %w", err)
	}
	return e, requireAffected(res)
}

func (r *SQLiteRepository) DeleteIncome(ctx context.Context, id string) (core.IncomeEntry, error) {
	e, err := r.getIncome(ctx, id)
	if err != nil {
		return core.IncomeEntry{}, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM income_entries WHERE id = ?`, id); err != nil {
		return core.IncomeEntry{}, fmt.Errorf("delete income: %w", err)
	}
	return e, nil
}

// Expenses

const expenseColumns = "id, user_id, category, amount, created_at"

func scanExpense(s rowScanner) (core.ExpenseEntry, error) {
	var (
		e       core.ExpenseEntry
		created string
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.Category, &e.Amount, &created); err != nil {
		return core.ExpenseEntry{}, err
	}
	t, err := parseTime(created)
	if err != nil {
		return core.ExpenseEntry{}, err
	}
	e.CreatedAt = t
	return e, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error) {
	if err := e.Validate(); err != nil {
		return core.ExpenseEntry{}, err
	}
	e.ID = newID(e.ID)
	e.CreatedAt = r.stamp(e.CreatedAt)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expense_entries (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Category, e.Amount.String(), formatTime(e.CreatedAt))
	if err != nil {
		return core.ExpenseEntry{}, fmt.Errorf("insert expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string, dr core.DateRange) ([]core.ExpenseEntry, error) {
	clause, args := rangeClause(dr)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expense_entries WHERE user_id = ?`+clause+` ORDER BY created_at, id`,
		append([]any{userID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.ExpenseEntry
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) getExpense(ctx context.Context, id string) (core.ExpenseEntry, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expense_entries WHERE id = ?`, id))
	if err != nil {
		return core.ExpenseEntry{}, notFound(err)
	}
	return e, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, id string, amount decimal.Decimal, category string) (core.ExpenseEntry, error) {
	e, err := r.getExpense(ctx, id)
	if err != nil {
		return core.ExpenseEntry{}, err
	}
	e.Amount = amount
	e.Category = category
	if err := e.Validate(); err != nil {
		return core.ExpenseEntry{}, err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE expense_entries SET amount = ?, category = ? WHERE id = ?`, amount.String(), category, id)
	if err != nil {
		return core.ExpenseEntry{}, fmt.Errorf("update expense: %w", err)
	}
	return e, requireAffected(res)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) (core.ExpenseEntry, error) {
	e, err := r.getExpense(ctx, id)
	if err != nil {
		return core.ExpenseEntry{}, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM expense_entries WHERE id = ?`, id); err != nil {
		return core.ExpenseEntry{}, fmt.Errorf("delete expense: %w", err)
	}
	return e, nil
}

// Subscriptions

const subscriptionColumns = "id, user_id, name, price, is_paid, due_day, created_at"

func scanSubscription(s rowScanner) (core.SubscriptionObligation, error) {
	var (
		sub     core.SubscriptionObligation
		created string
	)
	if err := s.Scan(&sub.ID, &sub.UserID, &sub.Name, &sub.Price, &sub.IsPaid, &sub.DueDay, &created); err != nil {
		return core.SubscriptionObligation{}, err
	}
	t, err := parseTime(created)
	if err != nil {
		return core.SubscriptionObligation{}, err
	}
	sub.CreatedAt = t
	return sub, nil
}

func (r *SQLiteRepository) querySubscriptions(ctx context.Context, where string, args ...any) ([]core.SubscriptionObligation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscription_entries WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []core.SubscriptionObligation
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateSubscription(ctx context.Context, sub core.SubscriptionObligation) (core.SubscriptionObligation, error) {
	if err := sub.Validate(); err != nil {
		return core.SubscriptionObligation{}, err
	}
	sub.ID = newID(sub.ID)
	sub.CreatedAt = r.stamp(sub.CreatedAt)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscription_entries (`+subscriptionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.Name, sub.Price.String(), sub.IsPaid, sub.DueDay, formatTime(sub.CreatedAt))
	if err != nil {
		return core.SubscriptionObligation{}, fmt.Errorf("insert subscription: %w", err)
	}
	return sub, nil
}

func (r *SQLiteRepository) ListSubscriptions(ctx context.Context, userID string) ([]core.SubscriptionObligation, error) {
	return r.querySubscriptions(ctx, "user_id = ?", userID)
}

func (r *SQLiteRepository) ListUnpaidObligations(ctx context.Context, userID string) ([]core.SubscriptionObligation, error) {
	return r.querySubscriptions(ctx, "user_id = ? AND is_paid = 0", userID)
}

func (r *SQLiteRepository) getSubscription(ctx context.Context, id string) (core.SubscriptionObligation, error) {
	sub, err := scanSubscription(r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscription_entries WHERE id = ?`, id))
	if err != nil {
		return core.SubscriptionObligation{}, notFound(err)
	}
	return sub, nil
}

func (r *SQLiteRepository) UpdateSubscription(ctx context.Context, id string, name string, price decimal.Decimal, dueDay int) (core.SubscriptionObligation, error) {
	sub, err := r.getSubscription(ctx, id)
	if err != nil {
		return core.SubscriptionObligation{}, err
	}
	sub.Name = strings.TrimSpace(name)
	sub.Price = price
	sub.DueDay = dueDay
	if err := sub.Validate(); err != nil {
		return core.SubscriptionObligation{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE subscription_entries SET name = ?, price = ?, due_day = ? WHERE id = ?`,
		sub.Name, price.String(), dueDay, id)
	if err != nil {
		return core.SubscriptionObligation{}, fmt.Errorf("update subscription: %w", err)
	}
	return sub, requireAffected(res)
}

func (r *SQLiteRepository) SetSubscriptionPaid(ctx context.Context, id string, paid bool) (core.SubscriptionObligation, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE subscription_entries SET is_paid = ? WHERE id = ?`, paid, id)
	if err != nil {
		return core.SubscriptionObligation{}, fmt.Errorf("set subscription paid: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return core.SubscriptionObligation{}, err
	}
	return r.getSubscription(ctx, id)
}

func (r *SQLiteRepository) DeleteSubscription(ctx context.Context, id string) (core.SubscriptionObligation, error) {
	sub, err := r.getSubscription(ctx, id)
	if err != nil {
		return core.SubscriptionObligation{}, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subscription_entries WHERE id = ?`, id); err != nil {
		return core.SubscriptionObligation{}, fmt.Errorf("delete subscription: %w", err)
	}
	return sub, nil
}
