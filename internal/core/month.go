package core

import (
	"fmt"
	"time"
)

// MonthWindow identifies a calendar month. It resolves to the inclusive
// range from the first to the last day of that month.
type MonthWindow struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// DateRange is an inclusive range of calendar dates in UTC.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewMonthWindow returns a validated window.
func NewMonthWindow(year, month int) (MonthWindow, error) {
	w := MonthWindow{Year: year, Month: month}
	if err := w.Validate(); err != nil {
		return MonthWindow{}, err
	}
	return w, nil
}

// CurrentMonth returns the window containing now.
func CurrentMonth(now time.Time) MonthWindow {
	now = now.UTC()
	return MonthWindow{Year: now.Year(), Month: int(now.Month())}
}

func (w MonthWindow) Validate() error {
	if w.Year <= 0 {
		return ErrInvalidYear
	}
	if w.Month < 1 || w.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// FirstDay returns midnight UTC of the first day of the month.
func (w MonthWindow) FirstDay() time.Time {
	return time.Date(w.Year, time.Month(w.Month), 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns midnight UTC of the last day of the month. Day 0 of the
// following month normalises to it, which accounts for leap years.
func (w MonthWindow) LastDay() time.Time {
	return time.Date(w.Year, time.Month(w.Month)+1, 0, 0, 0, 0, 0, time.UTC)
}

// Days returns the number of days in the month.
func (w MonthWindow) Days() int {
	return w.LastDay().Day()
}

func (w MonthWindow) Range() DateRange {
	return DateRange{From: w.FirstDay(), To: w.LastDay()}
}

// Key formats the window as YYYY-MM.
func (w MonthWindow) Key() string {
	return fmt.Sprintf("%04d-%02d", w.Year, w.Month)
}

func (w MonthWindow) String() string {
	return w.Key()
}

// Contains reports whether t falls on a day inside the window.
func (w MonthWindow) Contains(t time.Time) bool {
	return w.Range().Contains(t)
}

// Contains reports whether the calendar date of t (in UTC) lies within the
// range, both ends included.
func (r DateRange) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(truncateDay(r.From)) && !d.After(truncateDay(r.To))
}

// EndExclusive returns midnight after the last day, for half-open queries.
func (r DateRange) EndExclusive() time.Time {
	return truncateDay(r.To).AddDate(0, 0, 1)
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
