package allocation

import (
	"context"
	"testing"
	"time"

	"budgetwise/internal/core"
	"budgetwise/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 10, 30, 0, 0, time.UTC)
}

func newCalculator(f *fakeStore) *Calculator {
	return NewCalculator(f, f, log.Discard())
}

func TestComputeAllocation_NoEntries(t *testing.T) {
	f := newFakeStore()
	got, err := newCalculator(f).ComputeAllocation(context.Background(), "u1", 2025, 1)
	require.NoError(t, err)

	assert.True(t, got.TotalIncome.IsZero())
	assert.True(t, got.TotalExpenses.IsZero())
	assert.True(t, got.Remaining.IsZero())
}

func TestComputeAllocation_NegativeRemainder(t *testing.T) {
	f := newFakeStore()
	f.addIncome("u1", "500", day(2025, 3, 1))
	f.addExpense("u1", "400", day(2025, 3, 10))
	f.addExpense("u1", "250", day(2025, 3, 31))

	got, err := newCalculator(f).ComputeAllocation(context.Background(), "u1", 2025, 3)
	require.NoError(t, err)

	assert.True(t, got.TotalIncome.Equal(dec("500")))
	assert.True(t, got.TotalExpenses.Equal(dec("650")))
	assert.True(t, got.Remaining.Equal(dec("-150")), "remaining %s", got.Remaining)
}

func TestComputeAllocation_WindowIsInclusiveCalendarMonth(t *testing.T) {
	f := newFakeStore()
	f.addIncome("u1", "100", day(2024, 2, 1))
	f.addIncome("u1", "29", day(2024, 2, 29)) // leap day
	f.addIncome("u1", "7", day(2024, 1, 31))
	f.addIncome("u1", "3", day(2024, 3, 1))
	f.addIncome("u2", "1000", day(2024, 2, 10))

	got, err := newCalculator(f).ComputeAllocation(context.Background(), "u1", 2024, 2)
	require.NoError(t, err)
	assert.True(t, got.TotalIncome.Equal(dec("129")), "income %s", got.TotalIncome)
}

func TestComputeAllocation_December(t *testing.T) {
	f := newFakeStore()
	f.addExpense("u1", "10", day(2024, 12, 31))
	f.addExpense("u1", "20", day(2025, 1, 1))

	got, err := newCalculator(f).ComputeAllocation(context.Background(), "u1", 2024, 12)
	require.NoError(t, err)
	assert.True(t, got.TotalExpenses.Equal(dec("10")))
}

func TestComputeAllocation_InvalidArguments(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		year   int
		month  int
	}{
		{"empty user", "", 2025, 1},
		{"blank user", "  ", 2025, 1},
		{"month zero", "u1", 2025, 0},
		{"month thirteen", "u1", 2025, 13},
		{"year zero", "u1", 0, 1},
		{"negative year", "u1", -2025, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeStore()
			_, err := newCalculator(f).ComputeAllocation(context.Background(), tt.userID, tt.year, tt.month)
			require.Error(t, err)
			assert.Equal(t, InvalidArgument, KindOf(err))
			assert.Zero(t, f.reads, "no read may happen before validation")
		})
	}
}

func TestComputeAllocation_ReadFailure(t *testing.T) {
	f := newFakeStore()
	f.expenseErr = errBoom

	_, err := newCalculator(f).ComputeAllocation(context.Background(), "u1", 2025, 1)
	require.Error(t, err)
	assert.Equal(t, UpstreamFailure, KindOf(err))
	assert.ErrorIs(t, err, errBoom)
}

func TestComputeBudget(t *testing.T) {
	f := newFakeStore()
	f.addIncome("u1", "2000", day(2025, 5, 2))
	f.addExpense("u1", "1200", day(2025, 5, 3))
	f.policies["u1"] = core.AllocationPolicy{
		UserID:       "u1",
		NeedsPct:     dec("50"),
		WantsPct:     dec("30"),
		SavingsPct:   dec("20"),
		LongTermPct:  dec("70"),
		ShortTermPct: dec("30"),
	}

	got, err := newCalculator(f).ComputeBudget(context.Background(), "u1", 2025, 5)
	require.NoError(t, err)

	assert.True(t, got.Remaining.Equal(dec("800")))
	assert.True(t, got.Needs.Equal(dec("1000")))
	assert.True(t, got.Wants.Equal(dec("600")))
	assert.True(t, got.Savings.Equal(dec("400")))
}

func TestComputeBudget_Errors(t *testing.T) {
	t.Run("missing policy", func(t *testing.T) {
		f := newFakeStore()
		_, err := newCalculator(f).ComputeBudget(context.Background(), "u1", 2025, 5)
		assert.Equal(t, NotFound, KindOf(err))
	})

	t.Run("triple not summing to 100", func(t *testing.T) {
		f := newFakeStore()
		f.policies["u1"] = core.AllocationPolicy{
			UserID:     "u1",
			NeedsPct:   dec("50"),
			WantsPct:   dec("40"),
			SavingsPct: dec("20"),
		}
		_, err := newCalculator(f).ComputeBudget(context.Background(), "u1", 2025, 5)
		assert.Equal(t, InvalidArgument, KindOf(err))
		assert.ErrorIs(t, err, core.ErrPercentSum)
	})

	t.Run("policy read failure", func(t *testing.T) {
		f := newFakeStore()
		f.policyErr = errBoom
		_, err := newCalculator(f).ComputeBudget(context.Background(), "u1", 2025, 5)
		assert.Equal(t, UpstreamFailure, KindOf(err))
	})
}
