package allocation

import (
	"context"
	"errors"
	"fmt"

	"budgetwise/internal/core"
	"budgetwise/internal/log"
	"budgetwise/internal/ports"

	"github.com/shopspring/decimal"
)

// Overrides replace the stored long/short split for a single run. The
// stored policy is never modified.
type Overrides struct {
	LongTermPct  *decimal.Decimal
	ShortTermPct *decimal.Decimal
}

// Options configure a Distributor.
type Options struct {
	// Split used when the user has no stored policy.
	DefaultLongTermPct  decimal.Decimal
	DefaultShortTermPct decimal.Decimal

	// RequirePolicy turns a missing policy into a NotFound error instead of
	// a zero savings percentage.
	RequirePolicy bool

	Logger *log.Logger
}

func DefaultOptions() Options {
	return Options{
		DefaultLongTermPct:  decimal.NewFromInt(70),
		DefaultShortTermPct: decimal.NewFromInt(30),
	}
}

// Distributor computes the savings fund and spreads it across goals.
type Distributor struct {
	calc        *Calculator
	obligations ports.ObligationReader
	policies    ports.PolicyReader
	goals       ports.GoalRepository
	opts        Options
	logger      *log.Logger
}

func NewDistributor(calc *Calculator, obligations ports.ObligationReader, policies ports.PolicyReader, goals ports.GoalRepository, opts Options) *Distributor {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Distributor{
		calc:        calc,
		obligations: obligations,
		policies:    policies,
		goals:       goals,
		opts:        opts,
		logger:      logger.WithComponent(log.ComponentAllocation),
	}
}

// snapshot holds everything read for a run. The split works on it only.
type snapshot struct {
	alloc       core.Allocation
	savingsPct  decimal.Decimal
	longPct     decimal.Decimal
	shortPct    decimal.Decimal
	obligations decimal.Decimal
	goals       []core.SavingsGoal
}

// DistributeSavings runs one allocation pass for the month:
//
//  1. total income for the window
//  2. savings percentage from the stored policy (zero when absent)
//  3. fund = income × savings% − unpaid obligations, clamped at zero
//  4. long/short buckets from the override or stored split
//  5. proportional split of each bucket by goal target
//  6. one allocation write per goal
//
// Every read completes before the first write. Goal writes are not
// rolled back: if some fail, the result is returned together with a
// PartialApplication error naming the goals that were and were not written.
// If ctx is cancelled during the writes, the remaining goals are not
// attempted and are reported as failed.
func (d *Distributor) DistributeSavings(ctx context.Context, userID string, year, month int, ov Overrides) (core.AllocationResult, error) {
	w, err := validateRequest(userID, year, month)
	if err != nil {
		return core.AllocationResult{}, err
	}
	if err := validateOverrides(ov); err != nil {
		return core.AllocationResult{}, err
	}

	snap, err := d.read(ctx, userID, w, ov)
	if err != nil {
		return core.AllocationResult{}, err
	}

	if sum := snap.longPct.Add(snap.shortPct); !sum.Equal(core.Hundred) {
		d.logger.WarnContext(ctx, "Long/short split does not sum to 100, using values as given",
			log.FieldUserID, userID,
			log.FieldWindow, w.Key(),
			log.FieldLongTermPct, snap.longPct.String(),
			log.FieldShortTermPct, snap.shortPct.String(),
			"sum", sum.String())
	}

	result := compute(snap)

	d.logger.InfoContext(ctx, "Computed savings distribution",
		log.FieldUserID, userID,
		log.FieldWindow, w.Key(),
		log.FieldSavingsFund, result.SavingsFund.String(),
		"obligations", snap.obligations.String(),
		"goals", len(result.UpdatedGoals))

	if err := d.write(ctx, userID, w, result.UpdatedGoals); err != nil {
		return result, err
	}
	return result, nil
}

func validateOverrides(ov Overrides) error {
	for _, pct := range []*decimal.Decimal{ov.LongTermPct, ov.ShortTermPct} {
		if pct != nil && !core.ValidPercent(*pct) {
			return invalidArgument(core.ErrInvalidPercent)
		}
	}
	return nil
}

func (d *Distributor) read(ctx context.Context, userID string, w core.MonthWindow, ov Overrides) (snapshot, error) {
	alloc, err := d.calc.compute(ctx, userID, w)
	if err != nil {
		return snapshot{}, err
	}

	snap := snapshot{
		alloc:      alloc,
		savingsPct: decimal.Zero,
		longPct:    d.opts.DefaultLongTermPct,
		shortPct:   d.opts.DefaultShortTermPct,
	}

	policy, err := d.policies.GetAllocationPolicy(ctx, userID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		if d.opts.RequirePolicy {
			return snapshot{}, &Error{Kind: NotFound, Message: "allocation policy not found", Err: err}
		}
	case err != nil:
		return snapshot{}, upstream("read allocation policy", err)
	default:
		if err := policy.Validate(); err != nil {
			return snapshot{}, invalidArgument(err)
		}
		snap.savingsPct = policy.SavingsPct
		snap.longPct = policy.LongTermPct
		snap.shortPct = policy.ShortTermPct
	}
	if ov.LongTermPct != nil {
		snap.longPct = *ov.LongTermPct
	}
	if ov.ShortTermPct != nil {
		snap.shortPct = *ov.ShortTermPct
	}

	unpaid, err := d.obligations.ListUnpaidObligations(ctx, userID)
	if err != nil {
		return snapshot{}, upstream("read unpaid obligations", err)
	}
	snap.obligations = decimal.Zero
	for _, o := range unpaid {
		snap.obligations = snap.obligations.Add(o.Price)
	}

	goals, err := d.goals.ListGoals(ctx, userID)
	if err != nil {
		return snapshot{}, upstream("read savings goals", err)
	}
	snap.goals = append([]core.SavingsGoal(nil), goals...)

	return snap, nil
}

// compute is the pure part of a run.
func compute(s snapshot) core.AllocationResult {
	fund := core.RoundCents(core.Percent(s.alloc.TotalIncome, s.savingsPct)).Sub(s.obligations)
	if fund.IsNegative() {
		fund = decimal.Zero
	}

	longAmount := core.RoundCents(core.Percent(fund, s.longPct))
	var shortAmount decimal.Decimal
	if s.longPct.Add(s.shortPct).Equal(core.Hundred) {
		// Keep the two buckets summing to the fund after rounding.
		shortAmount = fund.Sub(longAmount)
	} else {
		shortAmount = core.RoundCents(core.Percent(fund, s.shortPct))
	}

	var longGoals, shortGoals []core.SavingsGoal
	for _, g := range s.goals {
		switch g.Category {
		case core.LongTerm:
			longGoals = append(longGoals, g)
		case core.ShortTerm:
			shortGoals = append(shortGoals, g)
		}
	}

	updated := make([]core.SavingsGoal, 0, len(longGoals)+len(shortGoals))
	updated = append(updated, spread(longAmount, longGoals)...)
	updated = append(updated, spread(shortAmount, shortGoals)...)

	return core.AllocationResult{
		TotalIncome:     s.alloc.TotalIncome,
		TotalExpenses:   s.alloc.TotalExpenses,
		Remaining:       s.alloc.Remaining,
		SavingsFund:     fund,
		LongTermAmount:  longAmount,
		ShortTermAmount: shortAmount,
		UpdatedGoals:    updated,
	}
}

func spread(bucket decimal.Decimal, goals []core.SavingsGoal) []core.SavingsGoal {
	targets := make([]decimal.Decimal, len(goals))
	for i, g := range goals {
		targets[i] = g.TargetAmount
	}
	shares := Distribute(bucket, targets)

	out := make([]core.SavingsGoal, len(goals))
	for i, g := range goals {
		g.AllocatedAmount = shares[i]
		out[i] = g
	}
	return out
}

func (d *Distributor) write(ctx context.Context, userID string, w core.MonthWindow, goals []core.SavingsGoal) error {
	var succeeded, failed []string
	var firstErr error

	for i, g := range goals {
		if err := ctx.Err(); err != nil {
			for _, rest := range goals[i:] {
				failed = append(failed, rest.ID)
			}
			if firstErr == nil {
				firstErr = err
			}
			d.logger.WarnContext(ctx, "Allocation run cancelled before all goal writes",
				log.FieldUserID, userID,
				log.FieldWindow, w.Key(),
				"written", len(succeeded),
				"not_attempted", len(goals)-i)
			break
		}

		if err := d.goals.UpdateGoalAllocation(ctx, g.ID, g.AllocatedAmount); err != nil {
			d.logger.ErrorContext(ctx, "Failed to write goal allocation",
				log.FieldUserID, userID,
				log.FieldGoalID, g.ID,
				log.FieldError, err)
			failed = append(failed, g.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		succeeded = append(succeeded, g.ID)
	}

	if len(failed) == 0 {
		return nil
	}
	if len(succeeded) == 0 {
		return &Error{
			Kind:    UpstreamFailure,
			Message: "no goal allocation could be written",
			Err:     firstErr,
			Failed:  failed,
		}
	}
	return &Error{
		Kind:      PartialApplication,
		Message:   fmt.Sprintf("%d of %d goal allocations written", len(succeeded), len(goals)),
		Err:       firstErr,
		Succeeded: succeeded,
		Failed:    failed,
	}
}
