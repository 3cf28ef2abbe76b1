package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budgetwise/internal/allocation"
	"budgetwise/internal/amqp"
	"budgetwise/internal/core"
	"budgetwise/internal/log"
	"budgetwise/internal/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var march2025 = core.MonthWindow{Year: 2025, Month: 3}

func at(day int) time.Time {
	return time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC)
}

// failingGoals fails the allocation write of the listed goals.
type failingGoals struct {
	*memory.Store
	fail map[string]bool
	// gate, when set, runs before every write.
	gate func(ctx context.Context) error
}

func (f *failingGoals) UpdateGoalAllocation(ctx context.Context, goalID string, allocated decimal.Decimal) error {
	if f.gate != nil {
		if err := f.gate(ctx); err != nil {
			return err
		}
	}
	if f.fail[goalID] {
		return errBoom
	}
	return f.Store.UpdateGoalAllocation(ctx, goalID, allocated)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.AllocationAppliedMessage
	err  error
}

func (p *recordingPublisher) PublishAllocationApplied(_ context.Context, msg *amqp.AllocationAppliedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) published() []*amqp.AllocationAppliedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*amqp.AllocationAppliedMessage(nil), p.msgs...)
}

// seedScenario stores income 1000, expenses 300, unpaid obligations 80 and
// a 20% savings policy with a 70/30 split, giving a fund of 120.
func seedScenario(t *testing.T, store *memory.Store, userID string) {
	t.Helper()
	ctx := context.Background()

	_, err := store.CreateIncome(ctx, core.IncomeEntry{UserID: userID, Amount: dec("600"), Source: "Salary", CreatedAt: at(1)})
	require.NoError(t, err)
	_, err = store.CreateIncome(ctx, core.IncomeEntry{UserID: userID, Amount: dec("400"), Source: "Freelance", CreatedAt: at(15)})
	require.NoError(t, err)
	_, err = store.CreateExpense(ctx, core.ExpenseEntry{UserID: userID, Category: "rent", Amount: dec("300"), CreatedAt: at(3)})
	require.NoError(t, err)
	_, err = store.CreateSubscription(ctx, core.SubscriptionObligation{UserID: userID, Name: "gym", Price: dec("50"), DueDay: 5})
	require.NoError(t, err)
	_, err = store.CreateSubscription(ctx, core.SubscriptionObligation{UserID: userID, Name: "music", Price: dec("30"), DueDay: 9})
	require.NoError(t, err)

	require.NoError(t, store.SaveAllocationPolicy(ctx, core.AllocationPolicy{
		UserID:       userID,
		SavingsPct:   dec("20"),
		NeedsPct:     dec("50"),
		WantsPct:     dec("30"),
		LongTermPct:  dec("70"),
		ShortTermPct: dec("30"),
	}))

	for _, g := range []core.SavingsGoal{
		{ID: userID + "-l1", Name: "House", Category: core.LongTerm, TargetAmount: dec("300")},
		{ID: userID + "-l2", Name: "Pension", Category: core.LongTerm, TargetAmount: dec("700")},
		{ID: userID + "-s1", Name: "Trip", Category: core.ShortTerm, TargetAmount: dec("100")},
	} {
		g.UserID = userID
		_, err := store.CreateGoal(ctx, g)
		require.NoError(t, err)
	}
}

type testEnv struct {
	store     *memory.Store
	goals     *failingGoals
	publisher *recordingPublisher
	service   *AllocationService
}

func newTestEnv(t *testing.T, config AllocationServiceConfig) *testEnv {
	t.Helper()
	store := memory.New()
	goals := &failingGoals{Store: store, fail: map[string]bool{}}
	publisher := &recordingPublisher{}

	calc := allocation.NewCalculator(store, store, log.Discard())
	opts := allocation.DefaultOptions()
	opts.Logger = log.Discard()
	dist := allocation.NewDistributor(calc, store, store, goals, opts)

	svc := NewAllocationService(calc, dist, store, nil, publisher, config, log.Discard())
	return &testEnv{store: store, goals: goals, publisher: publisher, service: svc}
}
