package http

import (
	"net/http"

	"budgetwise/internal/core"
	"budgetwise/internal/log"
)

type createIncomeRequest struct {
	UserID string  `json:"user_id" validate:"required"`
	Source string  `json:"source" validate:"max=200"`
	Amount *Amount `json:"amount" validate:"required"`
}

type updateIncomeRequest struct {
	ID     string  `json:"id" validate:"required"`
	Source string  `json:"source" validate:"max=200"`
	Amount *Amount `json:"amount" validate:"required"`
}

type createExpenseRequest struct {
	UserID   string  `json:"user_id" validate:"required"`
	Category string  `json:"category" validate:"required,max=200"`
	Amount   *Amount `json:"amount" validate:"required"`
}

type updateExpenseRequest struct {
	ID       string  `json:"id" validate:"required"`
	Category string  `json:"category" validate:"required,max=200"`
	Amount   *Amount `json:"amount" validate:"required"`
}

type createSubscriptionRequest struct {
	UserID string  `json:"user_id" validate:"required"`
	Name   string  `json:"name" validate:"required,max=200"`
	DueDay int     `json:"due_day" validate:"required,gte=1,lte=31"`
	Price  *Amount `json:"price" validate:"required"`
	IsPaid bool    `json:"is_paid"`
}

type updateSubscriptionRequest struct {
	ID     string  `json:"id" validate:"required"`
	Name   string  `json:"name" validate:"required,max=200"`
	DueDay int     `json:"due_day" validate:"required,gte=1,lte=31"`
	Price  *Amount `json:"price" validate:"required"`
}

type subscriptionPaidRequest struct {
	ID     string `json:"id" validate:"required"`
	IsPaid *bool  `json:"is_paid"`
}

type createGoalRequest struct {
	UserID       string            `json:"user_id" validate:"required"`
	Name         string            `json:"name" validate:"required,max=200"`
	Category     core.GoalCategory `json:"category" validate:"omitempty,oneof=long-term short-term"`
	TargetAmount *Amount           `json:"target_amount" validate:"required"`
	// Accepted for compatibility and ignored: new goals start unallocated.
	AllocatedAmount *Amount `json:"allocated_amount"`
}

type updateGoalRequest struct {
	ID           string            `json:"id" validate:"required"`
	Name         string            `json:"name" validate:"required,max=200"`
	Category     core.GoalCategory `json:"category" validate:"omitempty,oneof=long-term short-term"`
	TargetAmount *Amount           `json:"target_amount" validate:"required"`
}

type deletedResponse[T any] struct {
	Deleted T `json:"deleted"`
}

// nonNilList keeps empty lists encoded as [] rather than null.
func nonNilList[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// Income

func (s *Server) handleListIncome(w http.ResponseWriter, r *http.Request) {
	userID, err := QueryString(r, "user_id")
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	items, err := s.svc.Ledger.ListIncome(r.Context(), userID)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Body(nonNilList(items)).Write(w)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req createIncomeRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	created, err := s.svc.Ledger.CreateIncome(r.Context(), core.IncomeEntry{
		UserID: req.UserID,
		Source: sanitizeInput(req.Source),
		Amount: req.Amount.Decimal(),
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(map[string]core.IncomeEntry{"income": created}).Write(w)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	var req updateIncomeRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	updated, err := s.svc.Ledger.UpdateIncome(r.Context(), req.ID, req.Amount.Decimal(), sanitizeInput(req.Source))
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(map[string]core.IncomeEntry{"income": updated}).Write(w)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	id, err := QueryString(r, "id")
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	deleted, err := s.svc.Ledger.DeleteIncome(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Body(deletedResponse[core.IncomeEntry]{Deleted: deleted}).Write(w)
}

// Expenses

// handleListExpenses supports optional start and end date filters.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, err := QueryString(r, "user_id")
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	rng, err := ParseDateRange(r)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	items, err := s.svc.Ledger.ListExpenses(r.Context(), userID, rng)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Body(nonNilList(items)).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	created, err := s.svc.Ledger.CreateExpense(r.Context(), core.ExpenseEntry{
		UserID:   req.UserID,
		Category: sanitizeInput(req.Category),
		Amount:   req.Amount.Decimal(),
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(map[string]core.ExpenseEntry{"expense": created}).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req updateExpenseRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	updated, err := s.svc.Ledger.UpdateExpense(r.Context(), req.ID, req.Amount.Decimal(), sanitizeInput(req.Category))
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(map[string]core.ExpenseEntry{"expense": updated}).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := QueryString(r, "id")
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	deleted, err := s.svc.Ledger.DeleteExpense(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Body(deletedResponse[core.ExpenseEntry]{Deleted: deleted}).Write(w)
}

// Subscriptions

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, err := QueryString(r, "user_id")
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	items, err := s.svc.Ledger.ListSubscriptions(r.Context(), userID)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Body(nonNilList(items)).Write(w)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	created, err := s.svc.Ledger.CreateSubscription(r.Context(), core.SubscriptionObligation{
		UserID: req.UserID,
		Name:   sanitizeInput(req.Name),
		Price:  req.Price.Decimal(),
		DueDay: req.DueDay,
		IsPaid: req.IsPaid,
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(map[string]core.SubscriptionObligation{"subscription": created}).Write(w)
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req updateSubscriptionRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	updated, err := s.svc.Ledger.UpdateSubscription(r.Context(), req.ID, sanitizeInput(req.Name), req.Price.Decimal(), req.DueDay)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(map[string]core.SubscriptionObligation{"subscription": updated}).Write(w)
}

// handleSubscriptionPaid sets the paid flag; is_paid defaults to true.
func (s *Server) handleSubscriptionPaid(w http.ResponseWriter, r *http.Request) {
	var req subscriptionPaidRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	paid := true
	if req.IsPaid != nil {
		paid = *req.IsPaid
	}
	updated, err := s.svc.Ledger.MarkSubscriptionPaid(r.Context(), req.ID, paid)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(map[string]core.SubscriptionObligation{"subscription": updated}).Write(w)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := QueryString(r, "id")
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	deleted, err := s.svc.Ledger.DeleteSubscription(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Body(deletedResponse[core.SubscriptionObligation]{Deleted: deleted}).Write(w)
}

// Savings goals

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	userID, err := QueryString(r, "user_id")
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	items, err := s.svc.Ledger.ListGoals(r.Context(), userID)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Body(nonNilList(items)).Write(w)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	created, err := s.svc.Ledger.CreateGoal(r.Context(), core.SavingsGoal{
		UserID:       req.UserID,
		Name:         sanitizeInput(req.Name),
		Category:     req.Category,
		TargetAmount: req.TargetAmount.Decimal(),
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(map[string]core.SavingsGoal{"savings": created}).Write(w)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req updateGoalRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	updated, err := s.svc.Ledger.UpdateGoal(r.Context(), req.ID, sanitizeInput(req.Name), req.Category, req.TargetAmount.Decimal())
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(map[string]core.SavingsGoal{"savings": updated}).Write(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, err := QueryString(r, "id")
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	deleted, err := s.svc.Ledger.DeleteGoal(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Body(deletedResponse[core.SavingsGoal]{Deleted: deleted}).Write(w)
}
