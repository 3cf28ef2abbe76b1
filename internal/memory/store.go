// Package memory provides a mutex-guarded, process-local implementation of
// every persistence port. It backs the memory data backend and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"budgetwise/internal/core"
	"budgetwise/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var _ ports.Store = (*Store)(nil)

type Store struct {
	mu sync.Mutex

	incomes  []core.IncomeEntry
	expenses []core.ExpenseEntry
	subs     []core.SubscriptionObligation
	goals    []core.SavingsGoal
	policies map[string]core.AllocationPolicy
	runs     []core.AllocationRun

	now func() time.Time
}

func New() *Store {
	return &Store{
		policies: map[string]core.AllocationPolicy{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for generated timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// Income

func (s *Store) CreateIncome(_ context.Context, e core.IncomeEntry) (core.IncomeEntry, error) {
	if err := e.Validate(); err != nil {
		return core.IncomeEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = newID(e.ID)
	e.CreatedAt = s.stamp(e.CreatedAt)
	s.incomes = append(s.incomes, e)
	return e, nil
}

func (s *Store) ListIncome(_ context.Context, userID string, r core.DateRange) ([]core.IncomeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.IncomeEntry
	for _, e := range s.incomes {
		if e.UserID == userID && (r.IsZero() || r.Contains(e.CreatedAt)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListAllIncome(ctx context.Context, userID string) ([]core.IncomeEntry, error) {
	return s.ListIncome(ctx, userID, core.DateRange{})
}

func (s *Store) UpdateIncome(_ context.Context, id string, amount decimal.Decimal, source string) (core.IncomeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.incomes {
		if s.incomes[i].ID != id {
			continue
		}
		updated := s.incomes[i]
		updated.Amount = amount
		updated.Source = source
		if err := updated.Validate(); err != nil {
			return core.IncomeEntry{}, err
		}
		s.incomes[i] = updated
		return updated, nil
	}
	return core.IncomeEntry{}, core.ErrNotFound
}

func (s *Store) DeleteIncome(_ context.Context, id string) (core.IncomeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.incomes {
		if e.ID == id {
			s.incomes = append(s.incomes[:i], s.incomes[i+1:]...)
			return e, nil
		}
	}
	return core.IncomeEntry{}, core.ErrNotFound
}

// Expenses

func (s *Store) CreateExpense(_ context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error) {
	if err := e.Validate(); err != nil {
		return core.ExpenseEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = newID(e.ID)
	e.CreatedAt = s.stamp(e.CreatedAt)
	s.expenses = append(s.expenses, e)
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, userID string, r core.DateRange) ([]core.ExpenseEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ExpenseEntry
	for _, e := range s.expenses {
		if e.UserID == userID && (r.IsZero() || r.Contains(e.CreatedAt)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) UpdateExpense(_ context.Context, id string, amount decimal.Decimal, category string) (core.ExpenseEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.expenses {
		if s.expenses[i].ID != id {
			continue
		}
		updated := s.expenses[i]
		updated.Amount = amount
		updated.Category = category
		if err := updated.Validate(); err != nil {
			return core.ExpenseEntry{}, err
		}
		s.expenses[i] = updated
		return updated, nil
	}
	return core.ExpenseEntry{}, core.ErrNotFound
}

func (s *Store) DeleteExpense(_ context.Context, id string) (core.ExpenseEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.expenses {
		if e.ID == id {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return e, nil
		}
	}
	return core.ExpenseEntry{}, core.ErrNotFound
}

// Subscriptions

func (s *Store) CreateSubscription(_ context.Context, sub core.SubscriptionObligation) (core.SubscriptionObligation, error) {
	if err := sub.Validate(); err != nil {
		return core.SubscriptionObligation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = newID(sub.ID)
	sub.CreatedAt = s.stamp(sub.CreatedAt)
	s.subs = append(s.subs, sub)
	return sub, nil
}

func (s *Store) ListSubscriptions(_ context.Context, userID string) ([]core.SubscriptionObligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.SubscriptionObligation
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) ListUnpaidObligations(_ context.Context, userID string) ([]core.SubscriptionObligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.SubscriptionObligation
	for _, sub := range s.subs {
		if sub.UserID == userID && !sub.IsPaid {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) updateSubscription(id string, fn func(*core.SubscriptionObligation)) (core.SubscriptionObligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].ID != id {
			continue
		}
		updated := s.subs[i]
		fn(&updated)
		if err := updated.Validate(); err != nil {
			return core.SubscriptionObligation{}, err
		}
		s.subs[i] = updated
		return updated, nil
	}
	return core.SubscriptionObligation{}, core.ErrNotFound
}

func (s *Store) UpdateSubscription(_ context.Context, id string, name string, price decimal.Decimal, dueDay int) (core.SubscriptionObligation, error) {
	return s.updateSubscription(id, func(sub *core.SubscriptionObligation) {
		sub.Name = name
		sub.Price = price
		sub.DueDay = dueDay
	})
}

func (s *Store) SetSubscriptionPaid(_ context.Context, id string, paid bool) (core.SubscriptionObligation, error) {
	return s.updateSubscription(id, func(sub *core.SubscriptionObligation) {
		sub.IsPaid = paid
	})
}

func (s *Store) DeleteSubscription(_ context.Context, id string) (core.SubscriptionObligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.ID == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return sub, nil
		}
	}
	return core.SubscriptionObligation{}, core.ErrNotFound
}

// Policies

func (s *Store) GetAllocationPolicy(_ context.Context, userID string) (core.AllocationPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[userID]
	if !ok {
		return core.AllocationPolicy{}, core.ErrNotFound
	}
	return p, nil
}

func (s *Store) SaveAllocationPolicy(_ context.Context, p core.AllocationPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = s.now()
	s.policies[p.UserID] = p
	return nil
}

func (s *Store) ListPolicyUsers(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.policies))
	for id := range s.policies {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

// Goals

func (s *Store) CreateGoal(_ context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = newID(g.ID)
	g.CreatedAt = s.stamp(g.CreatedAt)
	s.goals = append(s.goals, g)
	return g, nil
}

func (s *Store) ListGoals(_ context.Context, userID string) ([]core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.SavingsGoal
	for _, g := range s.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) UpdateGoalAllocation(_ context.Context, goalID string, allocated decimal.Decimal) error {
	if allocated.IsNegative() {
		return core.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.goals {
		if s.goals[i].ID == goalID {
			s.goals[i].AllocatedAmount = allocated
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) UpdateGoalDetails(_ context.Context, id string, name string, category core.GoalCategory, target decimal.Decimal) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.goals {
		if s.goals[i].ID != id {
			continue
		}
		updated := s.goals[i]
		updated.Name = name
		updated.Category = category
		updated.TargetAmount = target
		if err := updated.Validate(); err != nil {
			return core.SavingsGoal{}, err
		}
		s.goals[i] = updated
		return updated, nil
	}
	return core.SavingsGoal{}, core.ErrNotFound
}

func (s *Store) DeleteGoal(_ context.Context, id string) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, g := range s.goals {
		if g.ID == id {
			s.goals = append(s.goals[:i], s.goals[i+1:]...)
			return g, nil
		}
	}
	return core.SavingsGoal{}, core.ErrNotFound
}

// Onboard validates everything before storing anything, so a bad entry
// leaves the store untouched.
func (s *Store) Onboard(_ context.Context, p core.AllocationPolicy, incomes []core.IncomeEntry, goals []core.SavingsGoal) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = s.now()
	s.policies[p.UserID] = p
	for _, e := range incomes {
		e.ID = newID(e.ID)
		e.CreatedAt = s.stamp(e.CreatedAt)
		s.incomes = append(s.incomes, e)
	}
	for _, g := range goals {
		g.ID = newID(g.ID)
		g.CreatedAt = s.stamp(g.CreatedAt)
		s.goals = append(s.goals, g)
	}
	return nil
}

// Runs

func cloneRun(r core.AllocationRun) core.AllocationRun {
	r.FailedGoals = append([]string(nil), r.FailedGoals...)
	r.Result.UpdatedGoals = append([]core.SavingsGoal(nil), r.Result.UpdatedGoals...)
	return r
}

func (s *Store) SaveRun(_ context.Context, run core.AllocationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.ID = newID(run.ID)
	run.CreatedAt = s.stamp(run.CreatedAt)
	if run.ExportStatus == "" {
		run.ExportStatus = core.ExportPending
	}
	s.runs = append(s.runs, cloneRun(run))
	return nil
}

func (s *Store) GetRun(_ context.Context, id string) (core.AllocationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ID == id {
			return cloneRun(r), nil
		}
	}
	return core.AllocationRun{}, core.ErrNotFound
}

// ListRuns returns the user's runs, newest first.
func (s *Store) ListRuns(_ context.Context, userID string, limit int) ([]core.AllocationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AllocationRun
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].UserID != userID {
			continue
		}
		out = append(out, cloneRun(s.runs[i]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) LatestRun(_ context.Context, userID string, w core.MonthWindow) (core.AllocationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].UserID == userID && s.runs[i].Window == w {
			return cloneRun(s.runs[i]), nil
		}
	}
	return core.AllocationRun{}, core.ErrNotFound
}

// ListPendingExports returns runs not yet exported, oldest first.
func (s *Store) ListPendingExports(_ context.Context, limit int) ([]core.AllocationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AllocationRun
	for _, r := range s.runs {
		if r.ExportStatus != core.ExportPending {
			continue
		}
		out = append(out, cloneRun(r))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) updateRun(id string, fn func(*core.AllocationRun)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == id {
			fn(&s.runs[i])
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) ClaimExport(_ context.Context, id string) (bool, error) {
	claimed := false
	err := s.updateRun(id, func(r *core.AllocationRun) {
		if r.ExportStatus == core.ExportPending {
			r.ExportStatus = core.ExportClaimed
			claimed = true
		}
	})
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return claimed, err
}

func (s *Store) MarkExported(_ context.Context, id string) error {
	return s.updateRun(id, func(r *core.AllocationRun) {
		now := s.now()
		r.ExportStatus = core.ExportDone
		r.ExportedAt = &now
		r.LastError = ""
	})
}

// MarkExportAttempt records a failed export. With failed set the run is
// given up on; otherwise it stays pending for the next pass.
func (s *Store) MarkExportAttempt(_ context.Context, id string, failed bool, errMsg string) error {
	return s.updateRun(id, func(r *core.AllocationRun) {
		r.Attempts++
		r.LastError = errMsg
		r.ExportStatus = core.ExportPending
		if failed {
			r.ExportStatus = core.ExportFailed
		}
	})
}
