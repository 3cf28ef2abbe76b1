package http

import (
	"net/http"

	"budgetwise/internal/allocation"
	"budgetwise/internal/core"
	"budgetwise/internal/log"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

type monthRequest struct {
	UserID string `json:"userId" validate:"required"`
	Year   int    `json:"year" validate:"required,gte=1"`
	Month  int    `json:"month" validate:"required,gte=1,lte=12"`
}

type savingsAllocateRequest struct {
	UserID       string   `json:"userId" validate:"required"`
	Year         int      `json:"year" validate:"required,gte=1"`
	Month        int      `json:"month" validate:"required,gte=1,lte=12"`
	LongTermPct  *Percent `json:"longTermPct"`
	ShortTermPct *Percent `json:"shortTermPct"`
}

type allocationResponse struct {
	OK         bool            `json:"ok"`
	Allocation core.Allocation `json:"allocation"`
}

type budgetResponse struct {
	OK     bool                 `json:"ok"`
	Budget core.BudgetBreakdown `json:"budget"`
}

// runResponse carries the distribution result of one applied run.
type runResponse struct {
	OK     bool           `json:"ok"`
	RunID  string         `json:"runId"`
	Status core.RunStatus `json:"status"`
	core.AllocationResult
}

func newRunResponse(run core.AllocationRun) runResponse {
	result := run.Result
	if result.UpdatedGoals == nil {
		result.UpdatedGoals = []core.SavingsGoal{}
	}
	return runResponse{
		OK:               run.Status == core.RunApplied,
		RunID:            run.ID,
		Status:           run.Status,
		AllocationResult: result,
	}
}

// handleAllocation returns income, expenses and remainder for one month.
func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	var req monthRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCompute, err)
		return
	}

	alloc, err := s.svc.Allocations.Preview(r.Context(), req.UserID, req.Year, req.Month)
	if err != nil {
		writeError(w, r, log.OpCompute, err)
		return
	}
	NewJSONResponse().Body(allocationResponse{OK: true, Allocation: alloc}).Write(w)
}

// handleBudget returns the needs/wants/savings view of a month.
func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	userID, err := QueryString(r, "user_id")
	if err != nil {
		writeError(w, r, log.OpCompute, err)
		return
	}
	mp, err := ParseMonthParams(r)
	if err != nil {
		writeError(w, r, log.OpCompute, err)
		return
	}

	budget, err := s.svc.Allocations.Budget(r.Context(), userID, mp.Year, mp.Month)
	if err != nil {
		writeError(w, r, log.OpCompute, err)
		return
	}
	NewJSONResponse().Body(budgetResponse{OK: true, Budget: budget}).Write(w)
}

// handleSavingsAllocate distributes the savings fund, optionally with a
// one-off long/short split.
func (s *Server) handleSavingsAllocate(w http.ResponseWriter, r *http.Request) {
	var req savingsAllocateRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpDistribute, err)
		return
	}

	ov := allocation.Overrides{
		LongTermPct:  req.LongTermPct.Ptr(),
		ShortTermPct: req.ShortTermPct.Ptr(),
	}
	s.applyAllocation(w, r, monthRequest{UserID: req.UserID, Year: req.Year, Month: req.Month}, ov)
}

// handleApplyAllocation distributes the savings fund with the stored split.
func (s *Server) handleApplyAllocation(w http.ResponseWriter, r *http.Request) {
	var req monthRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpDistribute, err)
		return
	}
	s.applyAllocation(w, r, req, allocation.Overrides{})
}

func (s *Server) applyAllocation(w http.ResponseWriter, r *http.Request, req monthRequest, ov allocation.Overrides) {
	run, err := s.svc.Allocations.Apply(r.Context(), req.UserID, req.Year, req.Month, ov)
	if err != nil {
		var result any
		if run.ID != "" {
			result = newRunResponse(run)
		}
		writeErrorWithResult(w, r, log.OpDistribute, err, result)
		return
	}
	NewJSONResponse().Body(newRunResponse(run)).Write(w)
}

// handleAllocationRuns lists the user's most recent runs, newest first.
func (s *Server) handleAllocationRuns(w http.ResponseWriter, r *http.Request) {
	userID, err := QueryString(r, "user_id")
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	limit, err := QueryLimit(r, defaultRunsLimit, maxRunsLimit)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}

	runs, err := s.svc.Allocations.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	if runs == nil {
		runs = []core.AllocationRun{}
	}
	NewJSONResponse().Body(runs).Write(w)
}
