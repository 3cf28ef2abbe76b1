package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAllocationPolicyValidate(t *testing.T) {
	good := AllocationPolicy{
		UserID:       "u1",
		SavingsPct:   d("20"),
		NeedsPct:     d("50"),
		WantsPct:     d("30"),
		LongTermPct:  d("70"),
		ShortTermPct: d("30"),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	// The long/short pair is not required to sum to 100.
	uneven := good
	uneven.LongTermPct = d("60")
	if err := uneven.Validate(); err != nil {
		t.Fatalf("expected ok for uneven split, got %v", err)
	}
	if got := uneven.SplitSum(); !got.Equal(d("90")) {
		t.Fatalf("expected split sum 90, got %s", got)
	}

	cases := []struct {
		name string
		edit func(p *AllocationPolicy)
		err  error
	}{
		{"missing user", func(p *AllocationPolicy) { p.UserID = " " }, ErrEmptyUserID},
		{"triple over 100", func(p *AllocationPolicy) { p.NeedsPct = d("60") }, ErrPercentSum},
		{"triple under 100", func(p *AllocationPolicy) { p.WantsPct = d("10") }, ErrPercentSum},
		{"negative pct", func(p *AllocationPolicy) { p.LongTermPct = d("-1") }, ErrInvalidPercent},
		{"pct over 100", func(p *AllocationPolicy) { p.ShortTermPct = d("101") }, ErrInvalidPercent},
	}
	for _, tc := range cases {
		p := good
		tc.edit(&p)
		if err := p.Validate(); err != tc.err {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.err, err)
		}
	}
}

func TestSavingsGoalValidate(t *testing.T) {
	good := SavingsGoal{UserID: "u1", Name: "House", Category: LongTerm, TargetAmount: d("300")}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	uncategorized := good
	uncategorized.Category = ""
	if err := uncategorized.Validate(); err != nil {
		t.Fatalf("expected ok for uncategorized goal, got %v", err)
	}

	bads := []SavingsGoal{
		{UserID: "", Name: "a", Category: LongTerm, TargetAmount: d("1")},
		{UserID: "u1", Name: "", Category: LongTerm, TargetAmount: d("1")},
		{UserID: "u1", Name: "a", Category: "medium-term", TargetAmount: d("1")},
		{UserID: "u1", Name: "a", Category: ShortTerm, TargetAmount: d("0")},
		{UserID: "u1", Name: "a", Category: ShortTerm, TargetAmount: d("1"), AllocatedAmount: d("-1")},
	}
	for i, g := range bads {
		if err := g.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestLedgerEntriesValidate(t *testing.T) {
	if err := (IncomeEntry{UserID: "u1", Amount: d("0")}).Validate(); err != nil {
		t.Fatalf("zero income should be accepted, got %v", err)
	}
	if err := (IncomeEntry{UserID: "u1", Amount: d("-5")}).Validate(); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := (ExpenseEntry{UserID: "u1", Amount: d("5")}).Validate(); err != ErrEmptyCategory {
		t.Fatalf("expected ErrEmptyCategory, got %v", err)
	}
	sub := SubscriptionObligation{UserID: "u1", Name: "Music", Price: d("9.99"), DueDay: 31}
	if err := sub.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	sub.DueDay = 32
	if err := sub.Validate(); err != ErrInvalidDueDay {
		t.Fatalf("expected ErrInvalidDueDay, got %v", err)
	}
}

func TestGoalCategoryIsValid(t *testing.T) {
	for _, c := range []GoalCategory{LongTerm, ShortTerm} {
		if !c.IsValid() {
			t.Fatalf("%q should be valid", c)
		}
	}
	for _, c := range []GoalCategory{"", "long term", "Long-Term"} {
		if c.IsValid() {
			t.Fatalf("%q should be invalid", c)
		}
	}
}
