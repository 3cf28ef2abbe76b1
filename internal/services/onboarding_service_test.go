package services

import (
	"context"
	"testing"

	"budgetwise/internal/allocation"
	"budgetwise/internal/core"
	"budgetwise/internal/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOnboarding() (*OnboardingService, *memory.Store, *countingInvalidator) {
	store := memory.New()
	inv := &countingInvalidator{}
	return NewOnboardingService(store, inv, dec("70"), dec("30"), nil), store, inv
}

func TestOnboard_StoresEverything(t *testing.T) {
	svc, store, inv := newOnboarding()
	ctx := context.Background()

	policy, err := svc.Onboard(ctx, OnboardingRequest{
		UserID:     "u1",
		SavingsPct: dec("20"),
		NeedsPct:   dec("50"),
		WantsPct:   dec("30"),
		Incomes: []core.IncomeEntry{
			{Amount: dec("2500")},
			{Amount: dec("300"), Source: "Rent"},
		},
		Goals: []core.SavingsGoal{
			{Name: "Emergency", Category: core.ShortTerm, TargetAmount: dec("3000")},
			{Name: "House", Category: core.LongTerm, TargetAmount: dec("50000")},
		},
	})
	require.NoError(t, err)
	assert.True(t, policy.LongTermPct.Equal(dec("70")))
	assert.True(t, policy.ShortTermPct.Equal(dec("30")))

	stored, err := store.GetAllocationPolicy(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, stored.SavingsPct.Equal(dec("20")))

	incomes, err := store.ListAllIncome(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, incomes, 2)
	assert.Equal(t, DefaultIncomeSource, incomes[0].Source)
	assert.Equal(t, "Rent", incomes[1].Source)

	goals, err := store.ListGoals(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, goals, 2)
	assert.Equal(t, []string{"u1"}, inv.users)
}

func TestOnboard_CustomSplit(t *testing.T) {
	svc, _, _ := newOnboarding()
	long, short := dec("60"), dec("40")

	policy, err := svc.Onboard(context.Background(), OnboardingRequest{
		UserID:       "u1",
		SavingsPct:   dec("10"),
		NeedsPct:     dec("60"),
		WantsPct:     dec("30"),
		LongTermPct:  &long,
		ShortTermPct: &short,
	})
	require.NoError(t, err)
	assert.True(t, policy.LongTermPct.Equal(long))
	assert.True(t, policy.ShortTermPct.Equal(short))
}

func TestOnboard_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		req     OnboardingRequest
		wantErr error
	}{
		{
			name:    "percentages not summing to 100",
			req:     OnboardingRequest{UserID: "u1", SavingsPct: dec("20"), NeedsPct: dec("50"), WantsPct: dec("40")},
			wantErr: core.ErrPercentSum,
		},
		{
			name:    "missing user",
			req:     OnboardingRequest{SavingsPct: dec("20"), NeedsPct: dec("50"), WantsPct: dec("30")},
			wantErr: core.ErrEmptyUserID,
		},
		{
			name: "invalid goal",
			req: OnboardingRequest{
				UserID: "u1", SavingsPct: dec("20"), NeedsPct: dec("50"), WantsPct: dec("30"),
				Incomes: []core.IncomeEntry{{Amount: dec("100")}},
				Goals:   []core.SavingsGoal{{Name: "", Category: core.LongTerm, TargetAmount: dec("1")}},
			},
			wantErr: core.ErrEmptyName,
		},
		{
			name: "negative income",
			req: OnboardingRequest{
				UserID: "u1", SavingsPct: dec("20"), NeedsPct: dec("50"), WantsPct: dec("30"),
				Incomes: []core.IncomeEntry{{Amount: dec("-5")}},
			},
			wantErr: core.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, inv := newOnboarding()
			_, err := svc.Onboard(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, allocation.InvalidArgument, allocation.KindOf(err))
			assert.ErrorIs(t, err, tt.wantErr)

			_, err = store.GetAllocationPolicy(context.Background(), "u1")
			assert.ErrorIs(t, err, core.ErrNotFound, "nothing may be stored")
			incomes, _ := store.ListAllIncome(context.Background(), "u1")
			assert.Empty(t, incomes)
			assert.Empty(t, inv.users)
		})
	}
}
