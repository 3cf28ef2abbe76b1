package ports

import (
	"context"

	"budgetwise/internal/core"

	"github.com/shopspring/decimal"
)

// Ports consumed by the allocation engine. Every call is a blocking I/O
// boundary and may fail independently.
type (
	LedgerReader interface {
		// ListIncome returns the user's income entries whose creation date
		// falls inside the inclusive range.
		ListIncome(ctx context.Context, userID string, r core.DateRange) ([]core.IncomeEntry, error)
		ListExpenses(ctx context.Context, userID string, r core.DateRange) ([]core.ExpenseEntry, error)
	}

	ObligationReader interface {
		// ListUnpaidObligations returns every unpaid subscription of the user,
		// regardless of month.
		ListUnpaidObligations(ctx context.Context, userID string) ([]core.SubscriptionObligation, error)
	}

	PolicyReader interface {
		// GetAllocationPolicy returns core.ErrNotFound when the user has none.
		GetAllocationPolicy(ctx context.Context, userID string) (core.AllocationPolicy, error)
	}

	GoalRepository interface {
		ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error)
		UpdateGoalAllocation(ctx context.Context, goalID string, allocated decimal.Decimal) error
	}
)

// Ports used by the services and the HTTP layer.
type (
	PolicyStore interface {
		PolicyReader
		SaveAllocationPolicy(ctx context.Context, p core.AllocationPolicy) error
		// ListPolicyUsers returns the ids of every user with a stored policy.
		ListPolicyUsers(ctx context.Context) ([]string, error)
	}

	IncomeStore interface {
		CreateIncome(ctx context.Context, e core.IncomeEntry) (core.IncomeEntry, error)
		ListAllIncome(ctx context.Context, userID string) ([]core.IncomeEntry, error)
		UpdateIncome(ctx context.Context, id string, amount decimal.Decimal, source string) (core.IncomeEntry, error)
		DeleteIncome(ctx context.Context, id string) (core.IncomeEntry, error)
	}

	ExpenseStore interface {
		CreateExpense(ctx context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error)
		// ListExpenses with a zero range returns every expense of the user.
		ListExpenses(ctx context.Context, userID string, r core.DateRange) ([]core.ExpenseEntry, error)
		UpdateExpense(ctx context.Context, id string, amount decimal.Decimal, category string) (core.ExpenseEntry, error)
		DeleteExpense(ctx context.Context, id string) (core.ExpenseEntry, error)
	}

	SubscriptionStore interface {
		CreateSubscription(ctx context.Context, s core.SubscriptionObligation) (core.SubscriptionObligation, error)
		ListSubscriptions(ctx context.Context, userID string) ([]core.SubscriptionObligation, error)
		UpdateSubscription(ctx context.Context, id string, name string, price decimal.Decimal, dueDay int) (core.SubscriptionObligation, error)
		SetSubscriptionPaid(ctx context.Context, id string, paid bool) (core.SubscriptionObligation, error)
		DeleteSubscription(ctx context.Context, id string) (core.SubscriptionObligation, error)
	}

	GoalStore interface {
		GoalRepository
		CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error)
		UpdateGoalDetails(ctx context.Context, id string, name string, category core.GoalCategory, target decimal.Decimal) (core.SavingsGoal, error)
		DeleteGoal(ctx context.Context, id string) (core.SavingsGoal, error)
	}

	RunStore interface {
		SaveRun(ctx context.Context, run core.AllocationRun) error
		GetRun(ctx context.Context, id string) (core.AllocationRun, error)
		ListRuns(ctx context.Context, userID string, limit int) ([]core.AllocationRun, error)
		// LatestRun returns core.ErrNotFound when the user has no run for the window.
		LatestRun(ctx context.Context, userID string, w core.MonthWindow) (core.AllocationRun, error)
		ListPendingExports(ctx context.Context, limit int) ([]core.AllocationRun, error)
		// ClaimExport moves a pending run to exporting. It reports false when
		// the run is no longer pending.
		ClaimExport(ctx context.Context, id string) (bool, error)
		MarkExported(ctx context.Context, id string) error
		MarkExportAttempt(ctx context.Context, id string, failed bool, errMsg string) error
	}

	// Onboarder persists a first-time setup in one unit.
	Onboarder interface {
		Onboard(ctx context.Context, p core.AllocationPolicy, incomes []core.IncomeEntry, goals []core.SavingsGoal) error
	}

	// Store is the full persistence surface provided by a backend.
	Store interface {
		LedgerReader
		ObligationReader
		PolicyStore
		IncomeStore
		ExpenseStore
		SubscriptionStore
		GoalStore
		RunStore
		Onboarder
		Ping(ctx context.Context) error
		Close() error
	}
)
