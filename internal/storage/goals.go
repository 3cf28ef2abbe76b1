package storage

import (
	"context"
	"fmt"
	"log/slog"

	"budgetwise/internal/core"

	"github.com/shopspring/decimal"
)

// Policies

func (r *SQLiteRepository) GetAllocationPolicy(ctx context.Context, userID string) (core.AllocationPolicy, error) {
	var (
		p       core.AllocationPolicy
		updated string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, savings_pct, needs_pct, wants_pct, long_term_pct, short_term_pct, updated_at
		 FROM allocation_policies WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.SavingsPct, &p.NeedsPct, &p.WantsPct, &p.LongTermPct, &p.ShortTermPct, &updated)
	if err != nil {
		return core.AllocationPolicy{}, notFound(err)
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return core.AllocationPolicy{}, err
	}
	return p, nil
}

func (r *SQLiteRepository) savePolicy(ctx context.Context, q querier, p core.AllocationPolicy) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO allocation_policies (user_id, savings_pct, needs_pct, wants_pct, long_term_pct, short_term_pct, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   savings_pct = excluded.savings_pct,
		   needs_pct = excluded.needs_pct,
		   wants_pct = excluded.wants_pct,
		   long_term_pct = excluded.long_term_pct,
		   short_term_pct = excluded.short_term_pct,
		   updated_at = excluded.updated_at`,
		p.UserID, p.SavingsPct.String(), p.NeedsPct.String(), p.WantsPct.String(),
		p.LongTermPct.String(), p.ShortTermPct.String(), formatTime(r.now()))
	if err != nil {
		return fmt.Errorf("save allocation policy: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SaveAllocationPolicy(ctx context.Context, p core.AllocationPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return r.savePolicy(ctx, r.db, p)
}

func (r *SQLiteRepository) ListPolicyUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM allocation_policies ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list policy users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan policy user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Goals

const goalColumns = "id, user_id, name, category, target_amount, allocated_amount, created_at"

func scanGoal(s rowScanner) (core.SavingsGoal, error) {
	var (
		g        core.SavingsGoal
		category string
		created  string
	)
	if err := s.Scan(&g.ID, &g.UserID, &g.Name, &category, &g.TargetAmount, &g.AllocatedAmount, &created); err != nil {
		return core.SavingsGoal{}, err
	}
	g.Category = core.GoalCategory(category)
	t, err := parseTime(created)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	g.CreatedAt = t
	return g, nil
}

func (r *SQLiteRepository) insertGoal(ctx context.Context, q querier, g core.SavingsGoal) (core.SavingsGoal, error) {
	g.ID = newID(g.ID)
	g.CreatedAt = r.stamp(g.CreatedAt)
	_, err := q.ExecContext(ctx,
		`INSERT INTO savings_goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, string(g.Category), g.TargetAmount.String(), g.AllocatedAmount.String(), formatTime(g.CreatedAt))
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("insert savings goal: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	return r.insertGoal(ctx, r.db, g)
}

// ListGoals returns the user's goals in creation order.
func (r *SQLiteRepository) ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list savings goals: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan savings goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) getGoal(ctx context.Context, id string) (core.SavingsGoal, error) {
	g, err := scanGoal(r.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE id = ?`, id))
	if err != nil {
		return core.SavingsGoal{}, notFound(err)
	}
	return g, nil
}

// UpdateGoalAllocation sets allocated_amount and nothing else.
func (r *SQLiteRepository) UpdateGoalAllocation(ctx context.Context, goalID string, allocated decimal.Decimal) error {
	if allocated.IsNegative() {
		return core.ErrInvalidAmount
	}
	res, err := r.db.ExecContext(ctx, `UPDATE savings_goals SET allocated_amount = ? WHERE id = ?`, allocated.String(), goalID)
	if err != nil {
		return fmt.Errorf("update goal allocation: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	slog.DebugContext(ctx, "Goal allocation updated", "goal_id", goalID, "allocated", allocated.String())
	return nil
}

func (r *SQLiteRepository) UpdateGoalDetails(ctx context.Context, id string, name string, category core.GoalCategory, target decimal.Decimal) (core.SavingsGoal, error) {
	g, err := r.getGoal(ctx, id)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	g.Name = name
	g.Category = category
	g.TargetAmount = target
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE savings_goals SET name = ?, category = ?, target_amount = ? WHERE id = ?`,
		name, string(category), target.String(), id)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update savings goal: %w", err)
	}
	return g, requireAffected(res)
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, id string) (core.SavingsGoal, error) {
	g, err := r.getGoal(ctx, id)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM savings_goals WHERE id = ?`, id); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("delete savings goal: %w", err)
	}
	return g, nil
}
