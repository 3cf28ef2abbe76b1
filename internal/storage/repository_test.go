package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"budgetwise/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "budget.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	require.NoError(t, RunMigrations(path))
	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestIncomeRangeAndDecimalPrecision(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	entries := []struct {
		amount string
		at     time.Time
	}{
		{"0.10", time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)},
		{"0.20", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"1999.99", time.Date(2024, 2, 29, 23, 59, 59, 999, time.UTC)},
		{"5", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, e := range entries {
		_, err := repo.CreateIncome(ctx, core.IncomeEntry{UserID: "u1", Amount: d(e.amount), Source: "Salary", CreatedAt: e.at})
		require.NoError(t, err)
	}

	feb, err := repo.ListIncome(ctx, "u1", core.MonthWindow{Year: 2024, Month: 2}.Range())
	require.NoError(t, err)
	require.Len(t, feb, 2)
	total := feb[0].Amount.Add(feb[1].Amount)
	assert.True(t, total.Equal(d("2000.19")), "total %s", total)

	all, err := repo.ListAllIncome(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestLedgerCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	exp, err := repo.CreateExpense(ctx, core.ExpenseEntry{UserID: "u1", Category: "groceries", Amount: d("42.50")})
	require.NoError(t, err)

	updated, err := repo.UpdateExpense(ctx, exp.ID, d("40"), "food")
	require.NoError(t, err)
	assert.Equal(t, "food", updated.Category)

	_, err = repo.UpdateExpense(ctx, "missing", d("1"), "food")
	assert.ErrorIs(t, err, core.ErrNotFound)

	deleted, err := repo.DeleteExpense(ctx, exp.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Amount.Equal(d("40")))

	sub, err := repo.CreateSubscription(ctx, core.SubscriptionObligation{UserID: "u1", Name: "Gym", Price: d("30"), DueDay: 10})
	require.NoError(t, err)
	unpaid, err := repo.ListUnpaidObligations(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, unpaid, 1)

	paid, err := repo.SetSubscriptionPaid(ctx, sub.ID, true)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	unpaid, err = repo.ListUnpaidObligations(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, unpaid)

	_, err = repo.SetSubscriptionPaid(ctx, "missing", true)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestGoalAllocationUpdatesOnlyThatField(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	g, err := repo.CreateGoal(ctx, core.SavingsGoal{UserID: "u1", Name: "House", Category: core.LongTerm, TargetAmount: d("10000")})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateGoalAllocation(ctx, g.ID, d("25.20")))

	goals, err := repo.ListGoals(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.True(t, goals[0].AllocatedAmount.Equal(d("25.2")))
	assert.Equal(t, "House", goals[0].Name)
	assert.True(t, goals[0].TargetAmount.Equal(d("10000")))

	assert.ErrorIs(t, repo.UpdateGoalAllocation(ctx, "missing", d("1")), core.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateGoalAllocation(ctx, g.ID, d("-1")), core.ErrInvalidAmount)
}

func TestPolicyUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.GetAllocationPolicy(ctx, "u1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	p := core.AllocationPolicy{UserID: "u1", SavingsPct: d("20"), NeedsPct: d("50"), WantsPct: d("30"), LongTermPct: d("70"), ShortTermPct: d("30")}
	require.NoError(t, repo.SaveAllocationPolicy(ctx, p))
	p.SavingsPct, p.WantsPct = d("25"), d("25")
	require.NoError(t, repo.SaveAllocationPolicy(ctx, p))

	got, err := repo.GetAllocationPolicy(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.SavingsPct.Equal(d("25")))
	assert.False(t, got.UpdatedAt.IsZero())

	users, err := repo.ListPolicyUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)
}

func TestOnboardRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	p := core.AllocationPolicy{UserID: "u1", SavingsPct: d("20"), NeedsPct: d("50"), WantsPct: d("30"), LongTermPct: d("70"), ShortTermPct: d("30")}

	// Duplicate ids fail on the second insert, after the policy was written.
	goals := []core.SavingsGoal{
		{ID: "dup", UserID: "u1", Name: "House", Category: core.LongTerm, TargetAmount: d("100")},
		{ID: "dup", UserID: "u1", Name: "Car", Category: core.ShortTerm, TargetAmount: d("100")},
	}
	require.Error(t, repo.Onboard(ctx, p, nil, goals))

	_, err := repo.GetAllocationPolicy(ctx, "u1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	stored, err := repo.ListGoals(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, stored)

	goals[1].ID = ""
	incomes := []core.IncomeEntry{{UserID: "u1", Amount: d("3000"), Source: "Salary"}}
	require.NoError(t, repo.Onboard(ctx, p, incomes, goals))
	stored, err = repo.ListGoals(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRunsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	w := core.MonthWindow{Year: 2025, Month: 1}
	base := time.Date(2025, 1, 31, 20, 0, 0, 0, time.UTC)

	result := core.AllocationResult{
		TotalIncome:     d("1000"),
		SavingsFund:     d("120"),
		LongTermAmount:  d("84"),
		ShortTermAmount: d("36"),
		UpdatedGoals: []core.SavingsGoal{
			{ID: "g1", UserID: "u1", Name: "House", Category: core.LongTerm, TargetAmount: d("300"), AllocatedAmount: d("84")},
		},
	}
	require.NoError(t, repo.SaveRun(ctx, core.AllocationRun{ID: "r1", UserID: "u1", Window: w, Status: core.RunApplied, Result: result, CreatedAt: base}))
	require.NoError(t, repo.SaveRun(ctx, core.AllocationRun{ID: "r2", UserID: "u1", Window: w, Status: core.RunPartial, FailedGoals: []string{"g2"}, Result: result, CreatedAt: base.Add(time.Hour)}))

	latest, err := repo.LatestRun(ctx, "u1", w)
	require.NoError(t, err)
	assert.Equal(t, "r2", latest.ID)
	assert.Equal(t, []string{"g2"}, latest.FailedGoals)
	assert.Equal(t, core.ExportPending, latest.ExportStatus)
	assert.True(t, latest.Result.SavingsFund.Equal(d("120")))
	require.Len(t, latest.Result.UpdatedGoals, 1)
	assert.True(t, latest.Result.UpdatedGoals[0].AllocatedAmount.Equal(d("84")))

	_, err = repo.LatestRun(ctx, "u1", core.MonthWindow{Year: 2025, Month: 2})
	assert.ErrorIs(t, err, core.ErrNotFound)

	history, err := repo.ListRuns(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "r2", history[0].ID)

	require.NoError(t, repo.MarkExported(ctx, "r1"))
	require.NoError(t, repo.MarkExportAttempt(ctx, "r2", false, "sheets unavailable"))

	pending, err := repo.ListPendingExports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "r2", pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "sheets unavailable", pending[0].LastError)

	claimed, err := repo.ClaimExport(ctx, "r2")
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = repo.ClaimExport(ctx, "r2")
	require.NoError(t, err)
	assert.False(t, claimed, "a claimed run cannot be claimed twice")
	claimed, err = repo.ClaimExport(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, claimed, "exported runs are not claimable")
	pending, err = repo.ListPendingExports(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, repo.MarkExportAttempt(ctx, "r2", false, "sheets unavailable"))
	pending, err = repo.ListPendingExports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "a failed attempt releases the claim")

	r1, err := repo.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, core.ExportDone, r1.ExportStatus)
	assert.NotNil(t, r1.ExportedAt)

	require.NoError(t, repo.MarkExportAttempt(ctx, "r2", true, "gave up"))
	pending, err = repo.ListPendingExports(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
