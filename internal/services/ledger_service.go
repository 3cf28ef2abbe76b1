package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"budgetwise/internal/allocation"
	"budgetwise/internal/core"
	"budgetwise/internal/log"
	"budgetwise/internal/ports"

	"github.com/shopspring/decimal"
)

// DefaultIncomeSource is used when an income entry names no source.
const DefaultIncomeSource = "Other"

// Invalidator drops derived figures of a user after a ledger change.
type Invalidator interface {
	InvalidateUser(userID string)
}

// LedgerStore is the persistence surface the ledger service needs.
type LedgerStore interface {
	ports.IncomeStore
	ports.ExpenseStore
	ports.SubscriptionStore
	ports.GoalStore
}

// LedgerService validates and stores income, expenses, subscriptions and
// savings goals.
type LedgerService struct {
	store       LedgerStore
	invalidator Invalidator
	logger      *log.Logger
}

// NewLedgerService creates a ledger service. invalidator may be nil.
func NewLedgerService(store LedgerStore, invalidator Invalidator, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.Discard()
	}
	return &LedgerService{
		store:       store,
		invalidator: invalidator,
		logger:      logger.WithComponent(log.ComponentLedger),
	}
}

// invalid wraps a validation failure so callers see InvalidArgument.
func invalid(err error) error {
	return &allocation.Error{Kind: allocation.InvalidArgument, Message: err.Error(), Err: err}
}

// storeErr classifies an error returned by the store.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return &allocation.Error{Kind: allocation.NotFound, Message: op + ": not found", Err: err}
	case isValidation(err):
		return invalid(err)
	default:
		return &allocation.Error{Kind: allocation.UpstreamFailure, Message: op + " failed", Err: err}
	}
}

func isValidation(err error) bool {
	for _, target := range []error{
		core.ErrEmptyUserID, core.ErrInvalidAmount, core.ErrInvalidPercent, core.ErrPercentSum,
		core.ErrInvalidCategory, core.ErrEmptyName, core.ErrEmptyCategory, core.ErrInvalidDueDay,
		core.ErrDescriptionLimit, core.ErrInvalidMonth, core.ErrInvalidYear,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *LedgerService) changed(ctx context.Context, op, userID, id string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(userID)
	}
	s.logger.DebugContext(ctx, "Ledger changed", log.FieldOperation, op, log.FieldUserID, userID, "id", id)
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalid(core.ErrEmptyUserID)
	}
	return nil
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid(errors.New("id is required"))
	}
	return nil
}

// Income

func (s *LedgerService) CreateIncome(ctx context.Context, e core.IncomeEntry) (core.IncomeEntry, error) {
	e.Source = strings.TrimSpace(e.Source)
	if e.Source == "" {
		e.Source = DefaultIncomeSource
	}
	if err := e.Validate(); err != nil {
		return core.IncomeEntry{}, invalid(err)
	}
	created, err := s.store.CreateIncome(ctx, e)
	if err != nil {
		return core.IncomeEntry{}, storeErr("create income", err)
	}
	s.changed(ctx, log.OpCreate, created.UserID, created.ID)
	return created, nil
}

func (s *LedgerService) ListIncome(ctx context.Context, userID string) ([]core.IncomeEntry, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	out, err := s.store.ListAllIncome(ctx, userID)
	if err != nil {
		return nil, storeErr("list income", err)
	}
	return out, nil
}

func (s *LedgerService) UpdateIncome(ctx context.Context, id string, amount decimal.Decimal, source string) (core.IncomeEntry, error) {
	if err := requireID(id); err != nil {
		return core.IncomeEntry{}, err
	}
	if amount.IsNegative() {
		return core.IncomeEntry{}, invalid(core.ErrInvalidAmount)
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = DefaultIncomeSource
	}
	updated, err := s.store.UpdateIncome(ctx, id, core.RoundCents(amount), source)
	if err != nil {
		return core.IncomeEntry{}, storeErr("update income", err)
	}
	s.changed(ctx, log.OpUpdate, updated.UserID, id)
	return updated, nil
}

func (s *LedgerService) DeleteIncome(ctx context.Context, id string) (core.IncomeEntry, error) {
	if err := requireID(id); err != nil {
		return core.IncomeEntry{}, err
	}
	deleted, err := s.store.DeleteIncome(ctx, id)
	if err != nil {
		return core.IncomeEntry{}, storeErr("delete income", err)
	}
	s.changed(ctx, log.OpDelete, deleted.UserID, id)
	return deleted, nil
}

// Expenses

func (s *LedgerService) CreateExpense(ctx context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error) {
	e.Category = strings.TrimSpace(e.Category)
	if err := e.Validate(); err != nil {
		return core.ExpenseEntry{}, invalid(err)
	}
	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.ExpenseEntry{}, storeErr("create expense", err)
	}
	s.changed(ctx, log.OpCreate, created.UserID, created.ID)
	return created, nil
}

// ListExpenses returns the user's expenses inside r, or all of them when r is zero.
func (s *LedgerService) ListExpenses(ctx context.Context, userID string, r core.DateRange) ([]core.ExpenseEntry, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if !r.IsZero() && r.To.Before(r.From) {
		return nil, invalid(fmt.Errorf("end date %s is before start date %s",
			r.To.Format("2006-01-02"), r.From.Format("2006-01-02")))
	}
	out, err := s.store.ListExpenses(ctx, userID, r)
	if err != nil {
		return nil, storeErr("list expenses", err)
	}
	return out, nil
}

func (s *LedgerService) UpdateExpense(ctx context.Context, id string, amount decimal.Decimal, category string) (core.ExpenseEntry, error) {
	if err := requireID(id); err != nil {
		return core.ExpenseEntry{}, err
	}
	if amount.IsNegative() {
		return core.ExpenseEntry{}, invalid(core.ErrInvalidAmount)
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return core.ExpenseEntry{}, invalid(core.ErrEmptyCategory)
	}
	updated, err := s.store.UpdateExpense(ctx, id, core.RoundCents(amount), category)
	if err != nil {
		return core.ExpenseEntry{}, storeErr("update expense", err)
	}
	s.changed(ctx, log.OpUpdate, updated.UserID, id)
	return updated, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id string) (core.ExpenseEntry, error) {
	if err := requireID(id); err != nil {
		return core.ExpenseEntry{}, err
	}
	deleted, err := s.store.DeleteExpense(ctx, id)
	if err != nil {
		return core.ExpenseEntry{}, storeErr("delete expense", err)
	}
	s.changed(ctx, log.OpDelete, deleted.UserID, id)
	return deleted, nil
}

// Subscriptions

func (s *LedgerService) CreateSubscription(ctx context.Context, sub core.SubscriptionObligation) (core.SubscriptionObligation, error) {
	sub.Name = strings.TrimSpace(sub.Name)
	if err := sub.Validate(); err != nil {
		return core.SubscriptionObligation{}, invalid(err)
	}
	created, err := s.store.CreateSubscription(ctx, sub)
	if err != nil {
		return core.SubscriptionObligation{}, storeErr("create subscription", err)
	}
	s.changed(ctx, log.OpCreate, created.UserID, created.ID)
	return created, nil
}

func (s *LedgerService) ListSubscriptions(ctx context.Context, userID string) ([]core.SubscriptionObligation, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	out, err := s.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, storeErr("list subscriptions", err)
	}
	return out, nil
}

func (s *LedgerService) UpdateSubscription(ctx context.Context, id, name string, price decimal.Decimal, dueDay int) (core.SubscriptionObligation, error) {
	if err := requireID(id); err != nil {
		return core.SubscriptionObligation{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.SubscriptionObligation{}, invalid(core.ErrEmptyName)
	}
	if price.IsNegative() {
		return core.SubscriptionObligation{}, invalid(core.ErrInvalidAmount)
	}
	if dueDay < 1 || dueDay > 31 {
		return core.SubscriptionObligation{}, invalid(core.ErrInvalidDueDay)
	}
	updated, err := s.store.UpdateSubscription(ctx, id, name, core.RoundCents(price), dueDay)
	if err != nil {
		return core.SubscriptionObligation{}, storeErr("update subscription", err)
	}
	s.changed(ctx, log.OpUpdate, updated.UserID, id)
	return updated, nil
}

// MarkSubscriptionPaid sets the paid flag. Paid obligations are no longer
// deducted from the savings fund.
func (s *LedgerService) MarkSubscriptionPaid(ctx context.Context, id string, paid bool) (core.SubscriptionObligation, error) {
	if err := requireID(id); err != nil {
		return core.SubscriptionObligation{}, err
	}
	updated, err := s.store.SetSubscriptionPaid(ctx, id, paid)
	if err != nil {
		return core.SubscriptionObligation{}, storeErr("mark subscription paid", err)
	}
	s.changed(ctx, log.OpUpdate, updated.UserID, id)
	return updated, nil
}

func (s *LedgerService) DeleteSubscription(ctx context.Context, id string) (core.SubscriptionObligation, error) {
	if err := requireID(id); err != nil {
		return core.SubscriptionObligation{}, err
	}
	deleted, err := s.store.DeleteSubscription(ctx, id)
	if err != nil {
		return core.SubscriptionObligation{}, storeErr("delete subscription", err)
	}
	s.changed(ctx, log.OpDelete, deleted.UserID, id)
	return deleted, nil
}

// Savings goals

// CreateGoal stores a new goal. The allocated amount always starts at zero;
// only allocation runs change it.
func (s *LedgerService) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	g.Name = strings.TrimSpace(g.Name)
	g.AllocatedAmount = decimal.Zero
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, invalid(err)
	}
	g.TargetAmount = core.RoundCents(g.TargetAmount)
	created, err := s.store.CreateGoal(ctx, g)
	if err != nil {
		return core.SavingsGoal{}, storeErr("create goal", err)
	}
	s.changed(ctx, log.OpCreate, created.UserID, created.ID)
	return created, nil
}

func (s *LedgerService) ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	out, err := s.store.ListGoals(ctx, userID)
	if err != nil {
		return nil, storeErr("list goals", err)
	}
	return out, nil
}

func (s *LedgerService) UpdateGoal(ctx context.Context, id, name string, category core.GoalCategory, target decimal.Decimal) (core.SavingsGoal, error) {
	if err := requireID(id); err != nil {
		return core.SavingsGoal{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.SavingsGoal{}, invalid(core.ErrEmptyName)
	}
	if category != "" && !category.IsValid() {
		return core.SavingsGoal{}, invalid(core.ErrInvalidCategory)
	}
	if !target.IsPositive() {
		return core.SavingsGoal{}, invalid(core.ErrInvalidAmount)
	}
	updated, err := s.store.UpdateGoalDetails(ctx, id, name, category, core.RoundCents(target))
	if err != nil {
		return core.SavingsGoal{}, storeErr("update goal", err)
	}
	s.changed(ctx, log.OpUpdate, updated.UserID, id)
	return updated, nil
}

func (s *LedgerService) DeleteGoal(ctx context.Context, id string) (core.SavingsGoal, error) {
	if err := requireID(id); err != nil {
		return core.SavingsGoal{}, err
	}
	deleted, err := s.store.DeleteGoal(ctx, id)
	if err != nil {
		return core.SavingsGoal{}, storeErr("delete goal", err)
	}
	s.changed(ctx, log.OpDelete, deleted.UserID, id)
	return deleted, nil
}
