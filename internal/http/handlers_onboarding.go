package http

import (
	"net/http"

	"budgetwise/internal/core"
	"budgetwise/internal/log"
	"budgetwise/internal/services"
)

type budgetPreferences struct {
	Savings   *Percent `json:"savings" validate:"required"`
	Needs     *Percent `json:"needs" validate:"required"`
	Wants     *Percent `json:"wants" validate:"required"`
	LongTerm  *Percent `json:"longTerm"`
	ShortTerm *Percent `json:"shortTerm"`
}

type incomeSource struct {
	Source string  `json:"source" validate:"max=200"`
	Amount *Amount `json:"amount" validate:"required"`
}

type savingsGoalInput struct {
	Name         string            `json:"name" validate:"required,max=200"`
	Category     core.GoalCategory `json:"category" validate:"omitempty,oneof=long-term short-term"`
	TargetAmount *Amount           `json:"target_amount" validate:"required"`
}

type onboardingRequest struct {
	UserID            string             `json:"user_id" validate:"required"`
	BudgetPreferences budgetPreferences  `json:"budgetPreferences"`
	IncomeSources     []incomeSource     `json:"incomeSources" validate:"max=50,dive"`
	SavingsGoals      []savingsGoalInput `json:"savingsGoals" validate:"max=50,dive"`
}

type onboardingResponse struct {
	OK     bool                  `json:"ok"`
	Policy core.AllocationPolicy `json:"policy"`
}

func (req onboardingRequest) toService() services.OnboardingRequest {
	prefs := req.BudgetPreferences
	out := services.OnboardingRequest{
		UserID:       req.UserID,
		SavingsPct:   prefs.Savings.Decimal(),
		NeedsPct:     prefs.Needs.Decimal(),
		WantsPct:     prefs.Wants.Decimal(),
		LongTermPct:  prefs.LongTerm.Ptr(),
		ShortTermPct: prefs.ShortTerm.Ptr(),
		Incomes:      make([]core.IncomeEntry, 0, len(req.IncomeSources)),
		Goals:        make([]core.SavingsGoal, 0, len(req.SavingsGoals)),
	}
	for _, src := range req.IncomeSources {
		out.Incomes = append(out.Incomes, core.IncomeEntry{
			Source: sanitizeInput(src.Source),
			Amount: src.Amount.Decimal(),
		})
	}
	for _, g := range req.SavingsGoals {
		out.Goals = append(out.Goals, core.SavingsGoal{
			Name:         sanitizeInput(g.Name),
			Category:     g.Category,
			TargetAmount: g.TargetAmount.Decimal(),
		})
	}
	return out
}

// handleOnboarding stores the budget split, income sources and goals of a
// new user in one step. The needs/wants/savings split must add up to 100.
func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	var req onboardingRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpOnboard, err)
		return
	}

	policy, err := s.svc.Onboarding.Onboard(r.Context(), req.toService())
	if err != nil {
		writeError(w, r, log.OpOnboard, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(onboardingResponse{OK: true, Policy: policy}).Write(w)
}
