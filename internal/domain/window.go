package domain

import (
	"fmt"
	"time"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Trailing returns the window of length d ending at now.
func Trailing(now time.Time, d time.Duration) Window {
	return Window{Start: now.Add(-d), End: now}
}

// CalendarDay returns the UTC day containing now, ending at now.
func CalendarDay(now time.Time) Window {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: now}
}

// CalendarMonth returns the UTC month containing now, ending at now.
func CalendarMonth(now time.Time) Window {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: now}
}

// Period is a named reporting window accepted by usage and billing.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

func ParsePeriod(s string, fallback Period) (Period, error) {
	if s == "" {
		return fallback, nil
	}
	switch p := Period(s); p {
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodAll:
		return p, nil
	}
	return "", &SanitizationError{
		Field:   "period",
		Message: fmt.Sprintf("invalid period %q: expected one of today, week, month, all", s),
	}
}

// Resolve turns the period into instants relative to now. Week is the
// trailing seven days; month is the current UTC calendar month.
func (p Period) Resolve(now time.Time) Window {
	switch p {
	case PeriodWeek:
		return Trailing(now, 7*24*time.Hour)
	case PeriodMonth:
		return CalendarMonth(now)
	case PeriodAll:
		return Window{Start: time.Unix(0, 0).UTC(), End: now}
	default:
		return CalendarDay(now)
	}
}
