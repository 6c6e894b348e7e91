// Package cycle provides the fixed calendar windows civicrun's policy engine
// and treasury budget key their caps to: a daily UTC cycle for mint caps and
// an ISO-week (Monday UTC start) cycle for the treasury weekly budget.
package cycle

import (
	"fmt"
	"time"
)

// Window is a half-open calendar interval [Start, End) a cap is scoped to.
type Window struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Provider derives the Window containing now.
type Provider interface {
	WindowFor(now time.Time) Window
}

// DailyUTC aligns windows to UTC midnight.
type DailyUTC struct{}

// WindowFor returns [midnight(now), midnight(now)+24h) in UTC.
func (DailyUTC) WindowFor(now time.Time) Window {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	return Window{ID: start.Format("2006-01-02"), Start: start, End: end}
}

// WeeklyISO aligns windows to ISO weeks: Monday 00:00 UTC inclusive through
// the following Monday 00:00 UTC exclusive.
type WeeklyISO struct{}

// WindowFor returns the ISO week containing now.
func (WeeklyISO) WindowFor(now time.Time) Window {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	// time.Weekday: Sunday=0 ... Saturday=6. Distance back to Monday.
	offset := (int(midnight.Weekday()) + 6) % 7
	start := midnight.AddDate(0, 0, -offset)
	end := start.AddDate(0, 0, 7)
	isoYear, isoWeek := start.ISOWeek()
	return Window{ID: fmt.Sprintf("%04d-W%02d", isoYear, isoWeek), Start: start, End: end}
}
