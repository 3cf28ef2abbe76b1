package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"budgetwise/internal/allocation"
	"budgetwise/internal/core"
	"budgetwise/internal/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplier struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeApplier) Apply(_ context.Context, userID string, year, month int, _ allocation.Overrides) (core.AllocationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID)
	if err := f.fail[userID]; err != nil {
		return core.AllocationRun{}, err
	}
	return core.AllocationRun{ID: "run-" + userID, UserID: userID, Window: core.MonthWindow{Year: year, Month: month}}, nil
}

type failingPolicyUsers struct {
	*memory.Store
}

func (failingPolicyUsers) ListPolicyUsers(context.Context) ([]string, error) {
	return nil, errBoom
}

func TestScheduler_AppliesDueUsers(t *testing.T) {
	env := newTestEnv(t, DefaultAllocationServiceConfig())
	seedScenario(t, env.store, "u1")
	seedScenario(t, env.store, "u2")

	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	env.service.now = func() time.Time { return now }

	sched := NewScheduler(env.store, env.store, env.service, SchedulerConfig{RefreshAfter: 6 * time.Hour, Concurrency: 2}, nil)
	ctx := context.Background()

	n, err := sched.ProcessDueAllocations(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Fresh runs are not repeated.
	n, err = sched.ProcessDueAllocations(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	later := now.Add(7 * time.Hour)
	env.service.now = func() time.Time { return later }
	n, err = sched.ProcessDueAllocations(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs, err := env.store.ListRuns(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, march2025, runs[0].Window)
	assert.True(t, runs[0].Result.SavingsFund.Equal(dec("120")))
}

func TestScheduler_NewMonthIsDue(t *testing.T) {
	store := memory.New()
	seedScenario(t, store, "u1")
	applier := &fakeApplier{}
	sched := NewScheduler(store, store, applier, DefaultSchedulerConfig(), nil)

	require.NoError(t, store.SaveRun(context.Background(), core.AllocationRun{
		UserID:    "u1",
		Window:    march2025,
		CreatedAt: time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC),
	}))

	n, err := sched.ProcessDueAllocations(context.Background(), time.Date(2025, 4, 1, 0, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"u1"}, applier.calls)
}

func TestScheduler_PerUserFailuresAreSkipped(t *testing.T) {
	store := memory.New()
	for _, u := range []string{"u1", "u2", "u3"} {
		seedScenario(t, store, u)
	}
	applier := &fakeApplier{fail: map[string]error{
		"u2": &allocation.Error{Kind: allocation.UpstreamFailure, Message: "store down", Err: errBoom},
	}}
	sched := NewScheduler(store, store, applier, SchedulerConfig{RefreshAfter: time.Hour, Concurrency: 1}, nil)

	n, err := sched.ProcessDueAllocations(context.Background(), at(10))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, applier.calls)
}

func TestScheduler_Errors(t *testing.T) {
	t.Run("listing users fails", func(t *testing.T) {
		store := memory.New()
		sched := NewScheduler(failingPolicyUsers{store}, store, &fakeApplier{}, DefaultSchedulerConfig(), nil)
		_, err := sched.ProcessDueAllocations(context.Background(), at(1))
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("no users", func(t *testing.T) {
		store := memory.New()
		applier := &fakeApplier{}
		n, err := NewScheduler(store, store, applier, DefaultSchedulerConfig(), nil).ProcessDueAllocations(context.Background(), at(1))
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, applier.calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		store := memory.New()
		seedScenario(t, store, "u1")
		applier := &fakeApplier{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewScheduler(store, store, applier, DefaultSchedulerConfig(), nil).ProcessDueAllocations(ctx, at(1))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, applier.calls)
	})
}

func TestScheduler_RunStopsWithContext(t *testing.T) {
	store := memory.New()
	sched := NewScheduler(store, store, &fakeApplier{}, DefaultSchedulerConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := sched.Run(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
