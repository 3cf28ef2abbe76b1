// Package allocation implements the monthly budget allocation engine: the
// calculator that reduces a month of income and expenses, and the
// distributor that spreads the savings fund across savings goals.
package allocation

import (
	"context"
	"errors"
	"strings"

	"budgetwise/internal/core"
	"budgetwise/internal/log"
	"budgetwise/internal/ports"

	"github.com/shopspring/decimal"
)

// Calculator computes income, expenses and the remainder for a month.
// It has no side effects.
type Calculator struct {
	ledger   ports.LedgerReader
	policies ports.PolicyReader
	logger   *log.Logger
}

func NewCalculator(ledger ports.LedgerReader, policies ports.PolicyReader, logger *log.Logger) *Calculator {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Calculator{
		ledger:   ledger,
		policies: policies,
		logger:   logger.WithComponent(log.ComponentAllocation),
	}
}

// ComputeAllocation sums the user's income and expenses created inside the
// month and returns their difference. Arguments are checked before any read.
// A month without entries yields zeros and a negative remainder is valid.
func (c *Calculator) ComputeAllocation(ctx context.Context, userID string, year, month int) (core.Allocation, error) {
	w, err := validateRequest(userID, year, month)
	if err != nil {
		return core.Allocation{}, err
	}
	return c.compute(ctx, userID, w)
}

// ComputeBudget applies the user's needs/wants/savings policy to the
// month's income, alongside the calculator figures.
func (c *Calculator) ComputeBudget(ctx context.Context, userID string, year, month int) (core.BudgetBreakdown, error) {
	w, err := validateRequest(userID, year, month)
	if err != nil {
		return core.BudgetBreakdown{}, err
	}

	policy, err := c.policies.GetAllocationPolicy(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.BudgetBreakdown{}, &Error{Kind: NotFound, Message: "allocation policy not found", Err: err}
	}
	if err != nil {
		return core.BudgetBreakdown{}, upstream("read allocation policy", err)
	}
	if err := policy.Validate(); err != nil {
		return core.BudgetBreakdown{}, invalidArgument(err)
	}

	alloc, err := c.compute(ctx, userID, w)
	if err != nil {
		return core.BudgetBreakdown{}, err
	}

	return core.BudgetBreakdown{
		Allocation: alloc,
		Needs:      core.RoundCents(core.Percent(alloc.TotalIncome, policy.NeedsPct)),
		Wants:      core.RoundCents(core.Percent(alloc.TotalIncome, policy.WantsPct)),
		Savings:    core.RoundCents(core.Percent(alloc.TotalIncome, policy.SavingsPct)),
	}, nil
}

func (c *Calculator) compute(ctx context.Context, userID string, w core.MonthWindow) (core.Allocation, error) {
	r := w.Range()

	incomes, err := c.ledger.ListIncome(ctx, userID, r)
	if err != nil {
		return core.Allocation{}, upstream("read income", err)
	}
	expenses, err := c.ledger.ListExpenses(ctx, userID, r)
	if err != nil {
		return core.Allocation{}, upstream("read expenses", err)
	}

	totalIncome := decimal.Zero
	for _, e := range incomes {
		totalIncome = totalIncome.Add(e.Amount)
	}
	totalExpenses := decimal.Zero
	for _, e := range expenses {
		totalExpenses = totalExpenses.Add(e.Amount)
	}

	c.logger.DebugContext(ctx, "Computed monthly allocation",
		log.FieldUserID, userID,
		log.FieldWindow, w.Key(),
		"income_entries", len(incomes),
		"expense_entries", len(expenses))

	return core.Allocation{
		TotalIncome:   totalIncome,
		TotalExpenses: totalExpenses,
		Remaining:     totalIncome.Sub(totalExpenses),
	}, nil
}

func validateRequest(userID string, year, month int) (core.MonthWindow, error) {
	if strings.TrimSpace(userID) == "" {
		return core.MonthWindow{}, invalidArgument(core.ErrEmptyUserID)
	}
	w, err := core.NewMonthWindow(year, month)
	if err != nil {
		return core.MonthWindow{}, invalidArgument(err)
	}
	return w, nil
}
