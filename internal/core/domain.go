package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	LongTerm  GoalCategory = "long-term"
	ShortTerm GoalCategory = "short-term"
)

const (
	RunApplied RunStatus = "applied"
	RunPartial RunStatus = "partial"
)

const (
	ExportPending ExportStatus = "pending"
	// ExportClaimed marks a run one exporter is writing right now.
	ExportClaimed ExportStatus = "exporting"
	ExportDone    ExportStatus = "exported"
	ExportFailed  ExportStatus = "failed"
)

type (
	GoalCategory string
	RunStatus    string
	ExportStatus string

	IncomeEntry struct {
		ID        string          `json:"id"`
		UserID    string          `json:"user_id"`
		Amount    decimal.Decimal `json:"amount"`
		Source    string          `json:"source"`
		CreatedAt time.Time       `json:"created_at"`
	}

	ExpenseEntry struct {
		ID        string          `json:"id"`
		UserID    string          `json:"user_id"`
		Category  string          `json:"category"`
		Amount    decimal.Decimal `json:"amount"`
		CreatedAt time.Time       `json:"created_at"`
	}

	// SubscriptionObligation is a recurring bill. Unpaid obligations are
	// deducted from the savings fund.
	SubscriptionObligation struct {
		ID        string          `json:"id"`
		UserID    string          `json:"user_id"`
		Name      string          `json:"name"`
		Price     decimal.Decimal `json:"price"`
		IsPaid    bool            `json:"is_paid"`
		DueDay    int             `json:"due_day"`
		CreatedAt time.Time       `json:"created_at"`
	}

	// AllocationPolicy is the user's configured split. Percentages are in
	// [0,100]; needs, wants and savings must add up to 100.
	AllocationPolicy struct {
		UserID       string          `json:"user_id"`
		SavingsPct   decimal.Decimal `json:"savings_pct"`
		NeedsPct     decimal.Decimal `json:"needs_pct"`
		WantsPct     decimal.Decimal `json:"wants_pct"`
		LongTermPct  decimal.Decimal `json:"long_term_pct"`
		ShortTermPct decimal.Decimal `json:"short_term_pct"`
		UpdatedAt    time.Time       `json:"updated_at"`
	}

	SavingsGoal struct {
		ID              string          `json:"id"`
		UserID          string          `json:"user_id"`
		Name            string          `json:"name"`
		Category        GoalCategory    `json:"category"`
		TargetAmount    decimal.Decimal `json:"target_amount"`
		AllocatedAmount decimal.Decimal `json:"allocated_amount"`
		CreatedAt       time.Time       `json:"created_at"`
	}

	// Allocation holds the calculator figures for one month.
	Allocation struct {
		TotalIncome   decimal.Decimal `json:"totalIncome"`
		TotalExpenses decimal.Decimal `json:"totalExpenses"`
		Remaining     decimal.Decimal `json:"remaining"`
	}

	// AllocationResult is the output of a savings distribution run.
	// UpdatedGoals lists long-term goals first, then short-term goals.
	AllocationResult struct {
		TotalIncome     decimal.Decimal `json:"totalIncome"`
		TotalExpenses   decimal.Decimal `json:"totalExpenses"`
		Remaining       decimal.Decimal `json:"remaining"`
		SavingsFund     decimal.Decimal `json:"savingsFund"`
		LongTermAmount  decimal.Decimal `json:"longTermAmount"`
		ShortTermAmount decimal.Decimal `json:"shortTermAmount"`
		UpdatedGoals    []SavingsGoal   `json:"updatedGoals"`
	}

	// BudgetBreakdown applies the needs/wants/savings triple to the month's income.
	BudgetBreakdown struct {
		Allocation
		Needs   decimal.Decimal `json:"needs"`
		Wants   decimal.Decimal `json:"wants"`
		Savings decimal.Decimal `json:"savings"`
	}

	// AllocationRun records one applied distribution and its export state.
	AllocationRun struct {
		ID           string           `json:"id"`
		UserID       string           `json:"user_id"`
		Window       MonthWindow      `json:"window"`
		Status       RunStatus        `json:"status"`
		Result       AllocationResult `json:"result"`
		FailedGoals  []string         `json:"failed_goals,omitempty"`
		ExportStatus ExportStatus     `json:"export_status"`
		Attempts     int              `json:"attempts"`
		LastError    string           `json:"last_error,omitempty"`
		CreatedAt    time.Time        `json:"created_at"`
		ExportedAt   *time.Time       `json:"exported_at,omitempty"`
	}
)

var (
	ErrEmptyUserID      = errors.New("user id is required")
	ErrInvalidYear      = errors.New("invalid year")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidPercent   = errors.New("percentage must be between 0 and 100")
	ErrPercentSum       = errors.New("needs, wants and savings percentages must sum to 100")
	ErrInvalidCategory  = errors.New("invalid goal category")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidDueDay    = errors.New("due day must be between 1 and 31")
	ErrNotFound         = errors.New("not found")
	ErrDescriptionLimit = errors.New("text too long (max 200 characters)")
)

// IsValid reports whether c is one of the two distribution buckets.
func (c GoalCategory) IsValid() bool {
	return c == LongTerm || c == ShortTerm
}

func (c GoalCategory) String() string {
	return string(c)
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	return nil
}

func validateText(s string, empty error) error {
	if strings.TrimSpace(s) == "" {
		return empty
	}
	if len(s) > 200 {
		return ErrDescriptionLimit
	}
	return nil
}

func (e IncomeEntry) Validate() error {
	if err := validateUserID(e.UserID); err != nil {
		return err
	}
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if len(e.Source) > 200 {
		return ErrDescriptionLimit
	}
	return nil
}

func (e ExpenseEntry) Validate() error {
	if err := validateUserID(e.UserID); err != nil {
		return err
	}
	if err := validateText(e.Category, ErrEmptyCategory); err != nil {
		return err
	}
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (s SubscriptionObligation) Validate() error {
	if err := validateUserID(s.UserID); err != nil {
		return err
	}
	if err := validateText(s.Name, ErrEmptyName); err != nil {
		return err
	}
	if s.Price.IsNegative() {
		return ErrInvalidAmount
	}
	if s.DueDay < 1 || s.DueDay > 31 {
		return ErrInvalidDueDay
	}
	return nil
}

// Validate checks a goal as submitted by a user. An empty category is
// accepted and leaves the goal out of every distribution.
func (g SavingsGoal) Validate() error {
	if err := validateUserID(g.UserID); err != nil {
		return err
	}
	if err := validateText(g.Name, ErrEmptyName); err != nil {
		return err
	}
	if g.Category != "" && !g.Category.IsValid() {
		return ErrInvalidCategory
	}
	if !g.TargetAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if g.AllocatedAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Validate enforces the percentage ranges and the needs/wants/savings sum.
// The long/short split is range checked only.
func (p AllocationPolicy) Validate() error {
	if err := validateUserID(p.UserID); err != nil {
		return err
	}
	for _, pct := range []decimal.Decimal{p.SavingsPct, p.NeedsPct, p.WantsPct, p.LongTermPct, p.ShortTermPct} {
		if !ValidPercent(pct) {
			return ErrInvalidPercent
		}
	}
	if !p.SavingsPct.Add(p.NeedsPct).Add(p.WantsPct).Equal(Hundred) {
		return ErrPercentSum
	}
	return nil
}

// SplitSum returns LongTermPct + ShortTermPct.
func (p AllocationPolicy) SplitSum() decimal.Decimal {
	return p.LongTermPct.Add(p.ShortTermPct)
}

// Allocation returns the calculator figures carried by the result.
func (r AllocationResult) Allocation() Allocation {
	return Allocation{
		TotalIncome:   r.TotalIncome,
		TotalExpenses: r.TotalExpenses,
		Remaining:     r.Remaining,
	}
}
