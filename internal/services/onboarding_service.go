package services

import (
	"context"
	"strings"

	"budgetwise/internal/core"
	"budgetwise/internal/log"
	"budgetwise/internal/ports"

	"github.com/shopspring/decimal"
)

// OnboardingRequest is a first-time setup: the budget split plus the
// initial income sources and savings goals.
type OnboardingRequest struct {
	UserID     string
	SavingsPct decimal.Decimal
	NeedsPct   decimal.Decimal
	WantsPct   decimal.Decimal
	// Optional long/short split; the configured defaults apply when nil.
	LongTermPct  *decimal.Decimal
	ShortTermPct *decimal.Decimal
	Incomes      []core.IncomeEntry
	Goals        []core.SavingsGoal
}

// OnboardingService stores a user's policy, income sources and goals as
// one unit.
type OnboardingService struct {
	store        ports.Onboarder
	invalidator  Invalidator
	defaultLong  decimal.Decimal
	defaultShort decimal.Decimal
	logger       *log.Logger
}

func NewOnboardingService(store ports.Onboarder, invalidator Invalidator, defaultLong, defaultShort decimal.Decimal, logger *log.Logger) *OnboardingService {
	if logger == nil {
		logger = log.Discard()
	}
	return &OnboardingService{
		store:        store,
		invalidator:  invalidator,
		defaultLong:  defaultLong,
		defaultShort: defaultShort,
		logger:       logger.WithComponent(log.ComponentOnboarding),
	}
}

// Onboard validates the whole request before storing anything. A
// needs/wants/savings triple that does not add up to 100 is an
// InvalidArgument error wrapping core.ErrPercentSum.
func (s *OnboardingService) Onboard(ctx context.Context, req OnboardingRequest) (core.AllocationPolicy, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return core.AllocationPolicy{}, invalid(core.ErrEmptyUserID)
	}

	policy := core.AllocationPolicy{
		UserID:       userID,
		SavingsPct:   req.SavingsPct,
		NeedsPct:     req.NeedsPct,
		WantsPct:     req.WantsPct,
		LongTermPct:  s.defaultLong,
		ShortTermPct: s.defaultShort,
	}
	if req.LongTermPct != nil {
		policy.LongTermPct = *req.LongTermPct
	}
	if req.ShortTermPct != nil {
		policy.ShortTermPct = *req.ShortTermPct
	}
	if err := policy.Validate(); err != nil {
		return core.AllocationPolicy{}, invalid(err)
	}

	incomes := make([]core.IncomeEntry, len(req.Incomes))
	for i, e := range req.Incomes {
		e.UserID = userID
		e.Amount = core.RoundCents(e.Amount)
		e.Source = strings.TrimSpace(e.Source)
		if e.Source == "" {
			e.Source = DefaultIncomeSource
		}
		if err := e.Validate(); err != nil {
			return core.AllocationPolicy{}, invalid(err)
		}
		incomes[i] = e
	}

	goals := make([]core.SavingsGoal, len(req.Goals))
	for i, g := range req.Goals {
		g.UserID = userID
		g.Name = strings.TrimSpace(g.Name)
		g.TargetAmount = core.RoundCents(g.TargetAmount)
		g.AllocatedAmount = decimal.Zero
		if err := g.Validate(); err != nil {
			return core.AllocationPolicy{}, invalid(err)
		}
		goals[i] = g
	}

	if err := s.store.Onboard(ctx, policy, incomes, goals); err != nil {
		s.logger.ErrorContext(ctx, "Onboarding failed", log.FieldUserID, userID, log.FieldError, err)
		return core.AllocationPolicy{}, storeErr("onboard user", err)
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(userID)
	}

	s.logger.InfoContext(ctx, "User onboarded",
		log.FieldUserID, userID,
		"income_sources", len(incomes),
		"goals", len(goals))
	return policy, nil
}
