package allocation

import (
	"context"
	"errors"
	"sync"
	"time"

	"budgetwise/internal/core"

	"github.com/shopspring/decimal"
)

var errBoom = errors.New("boom")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// fakeStore implements every engine port with per-call failure injection.
type fakeStore struct {
	mu sync.Mutex

	incomes     []core.IncomeEntry
	expenses    []core.ExpenseEntry
	obligations []core.SubscriptionObligation
	policies    map[string]core.AllocationPolicy
	goals       []core.SavingsGoal

	incomeErr     error
	expenseErr    error
	policyErr     error
	obligationErr error
	goalsErr      error
	writeErr      map[string]error
	// onWrite runs before each goal write.
	onWrite func(goalID string)

	reads  int
	writes []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		policies: map[string]core.AllocationPolicy{},
		writeErr: map[string]error{},
	}
}

func (f *fakeStore) ListIncome(_ context.Context, userID string, r core.DateRange) ([]core.IncomeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.incomeErr != nil {
		return nil, f.incomeErr
	}
	var out []core.IncomeEntry
	for _, e := range f.incomes {
		if e.UserID == userID && r.Contains(e.CreatedAt) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListExpenses(_ context.Context, userID string, r core.DateRange) ([]core.ExpenseEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.expenseErr != nil {
		return nil, f.expenseErr
	}
	var out []core.ExpenseEntry
	for _, e := range f.expenses {
		if e.UserID == userID && r.Contains(e.CreatedAt) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUnpaidObligations(_ context.Context, userID string) ([]core.SubscriptionObligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.obligationErr != nil {
		return nil, f.obligationErr
	}
	var out []core.SubscriptionObligation
	for _, o := range f.obligations {
		if o.UserID == userID && !o.IsPaid {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAllocationPolicy(_ context.Context, userID string) (core.AllocationPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.policyErr != nil {
		return core.AllocationPolicy{}, f.policyErr
	}
	p, ok := f.policies[userID]
	if !ok {
		return core.AllocationPolicy{}, core.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListGoals(_ context.Context, userID string) ([]core.SavingsGoal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.goalsErr != nil {
		return nil, f.goalsErr
	}
	var out []core.SavingsGoal
	for _, g := range f.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateGoalAllocation(_ context.Context, goalID string, allocated decimal.Decimal) error {
	if f.onWrite != nil {
		f.onWrite(goalID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[goalID]; err != nil {
		return err
	}
	for i := range f.goals {
		if f.goals[i].ID == goalID {
			f.goals[i].AllocatedAmount = allocated
			f.writes = append(f.writes, goalID)
			return nil
		}
	}
	return core.ErrNotFound
}

func (f *fakeStore) goal(id string) core.SavingsGoal {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.goals {
		if g.ID == id {
			return g
		}
	}
	return core.SavingsGoal{}
}

func (f *fakeStore) addIncome(userID, amount string, at time.Time) {
	f.incomes = append(f.incomes, core.IncomeEntry{ID: "i" + amount, UserID: userID, Amount: dec(amount), CreatedAt: at})
}

func (f *fakeStore) addExpense(userID, amount string, at time.Time) {
	f.expenses = append(f.expenses, core.ExpenseEntry{ID: "e" + amount, UserID: userID, Category: "food", Amount: dec(amount), CreatedAt: at})
}

func (f *fakeStore) addObligation(userID, price string, paid bool) {
	f.obligations = append(f.obligations, core.SubscriptionObligation{ID: "s" + price, UserID: userID, Name: "sub", Price: dec(price), IsPaid: paid, DueDay: 1})
}

func (f *fakeStore) addGoal(id, userID string, category core.GoalCategory, target string) {
	f.goals = append(f.goals, core.SavingsGoal{ID: id, UserID: userID, Name: id, Category: category, TargetAmount: dec(target), AllocatedAmount: decimal.Zero})
}

func (f *fakeStore) setPolicy(userID, savings, long, short string) {
	s := dec(savings)
	needs := core.Hundred.Sub(s).Div(decimal.NewFromInt(2))
	f.policies[userID] = core.AllocationPolicy{
		UserID:       userID,
		SavingsPct:   s,
		NeedsPct:     needs,
		WantsPct:     core.Hundred.Sub(s).Sub(needs),
		LongTermPct:  dec(long),
		ShortTermPct: dec(short),
	}
}
