package core

import (
	"testing"
	"time"
)

func TestMonthWindowDays(t *testing.T) {
	cases := []struct {
		year, month, days int
	}{
		{2024, 2, 29}, // leap
		{2023, 2, 28},
		{1900, 2, 28}, // century, not leap
		{2000, 2, 29}, // divisible by 400
		{2025, 1, 31},
		{2025, 4, 30},
		{2025, 12, 31},
	}
	for _, tc := range cases {
		w, err := NewMonthWindow(tc.year, tc.month)
		if err != nil {
			t.Fatalf("%d-%02d unexpected error: %v", tc.year, tc.month, err)
		}
		if got := w.Days(); got != tc.days {
			t.Fatalf("%d-%02d expected %d days, got %d", tc.year, tc.month, tc.days, got)
		}
		r := w.Range()
		span := int(r.EndExclusive().Sub(r.From).Hours() / 24)
		if span != tc.days {
			t.Fatalf("%d-%02d range spans %d days, want %d", tc.year, tc.month, span, tc.days)
		}
	}
}

func TestMonthWindowValidate(t *testing.T) {
	cases := []struct {
		w   MonthWindow
		err error
	}{
		{MonthWindow{Year: 2025, Month: 1}, nil},
		{MonthWindow{Year: 2025, Month: 12}, nil},
		{MonthWindow{Year: 2025, Month: 0}, ErrInvalidMonth},
		{MonthWindow{Year: 2025, Month: 13}, ErrInvalidMonth},
		{MonthWindow{Year: 0, Month: 5}, ErrInvalidYear},
		{MonthWindow{Year: -1, Month: 5}, ErrInvalidYear},
	}
	for i, tc := range cases {
		if err := tc.w.Validate(); err != tc.err {
			t.Fatalf("case %d expected %v, got %v", i, tc.err, err)
		}
	}
}

func TestMonthWindowContainsIsInclusive(t *testing.T) {
	w := MonthWindow{Year: 2024, Month: 2}
	inside := []time.Time{
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC),
	}
	for _, ts := range inside {
		if !w.Contains(ts) {
			t.Fatalf("expected %v inside %s", ts, w)
		}
	}
	outside := []time.Time{
		time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, ts := range outside {
		if w.Contains(ts) {
			t.Fatalf("expected %v outside %s", ts, w)
		}
	}
}

func TestMonthWindowDecember(t *testing.T) {
	w := MonthWindow{Year: 2024, Month: 12}
	if got := w.LastDay(); !got.Equal(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected last day %v", got)
	}
	if got := w.Key(); got != "2024-12" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestCurrentMonth(t *testing.T) {
	now := time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC)
	if got := CurrentMonth(now); got != (MonthWindow{Year: 2025, Month: 3}) {
		t.Fatalf("unexpected window %+v", got)
	}
}
