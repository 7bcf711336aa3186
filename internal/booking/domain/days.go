package domain

import (
	"fmt"
	"sort"
	"time"
)

const (
	DateLayout   = "2006-01-02"
	PeriodLayout = "2006-01"
)

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, value)
}

// DaysBetween returns the whole days from a to b (negative when b is earlier).
func DaysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// DaySet is a set of distinct YYYY-MM-DD days.
type DaySet map[string]struct{}

// Add inserts a day. Nil and empty values are ignored.
func (s DaySet) Add(day *string) {
	if day == nil || *day == "" {
		return
	}
	s[*day] = struct{}{}
}

// Markers returns the earliest day, the earliest day strictly after it, and
// the latest day. Second is nil when fewer than two distinct days exist.
func (s DaySet) Markers() (first, second, last *string) {
	if len(s) == 0 {
		return nil, nil, nil
	}
	days := make([]string, 0, len(s))
	for day := range s {
		days = append(days, day)
	}
	sort.Strings(days)

	f := days[0]
	l := days[len(days)-1]
	first, last = &f, &l
	if len(days) > 1 {
		sec := days[1]
		second = &sec
	}
	return first, second, last
}

// Period is a calendar month in YYYY-MM form, the unit of sync progress.
type Period string

// ParsePeriod validates a YYYY-MM string.
func ParsePeriod(value string) (Period, error) {
	if _, err := time.Parse(PeriodLayout, value); err != nil {
		return "", fmt.Errorf("invalid period %q: %w", value, err)
	}
	return Period(value), nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period(t.Format(PeriodLayout))
}

// Window returns the first and last day of the period.
func (p Period) Window() (Window, error) {
	start, err := time.Parse(PeriodLayout, string(p))
	if err != nil {
		return Window{}, fmt.Errorf("invalid period %q: %w", p, err)
	}
	return Window{Start: start, End: start.AddDate(0, 1, -1)}, nil
}

// Window is an inclusive range of calendar days.
type Window struct {
	Start time.Time
	End   time.Time
}

// StartDate returns the first day formatted as YYYY-MM-DD.
func (w Window) StartDate() string { return w.Start.Format(DateLayout) }

// EndDate returns the last day formatted as YYYY-MM-DD.
func (w Window) EndDate() string { return w.End.Format(DateLayout) }

// PeriodsBack lists the months newest-first, starting at the month containing
// now and going back count months in total.
func PeriodsBack(now time.Time, count int) []Period {
	if count <= 0 {
		return nil
	}
	anchor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periods := make([]Period, 0, count)
	for i := 0; i < count; i++ {
		periods = append(periods, PeriodOf(anchor.AddDate(0, -i, 0)))
	}
	return periods
}
