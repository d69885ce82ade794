package eligibility

import "time"

// Interval is a half-open [Enter, Leave) span.
type Interval struct {
	Enter time.Time
	Leave time.Time
}

// Duration returns Leave - Enter.
func (i Interval) Duration() time.Duration {
	return i.Leave.Sub(i.Enter)
}

// Window is the in-progress search selection evaluated for eligibility.
type Window struct {
	Interval
	LocationID string
}

// StartOfDay returns midnight of t's calendar date in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last whole second of t's calendar date in t's location.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// AtHour returns t's calendar date at hour:00 in t's location.
func AtHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

// WholeDay snaps the interval to [start-of-day(enter), end-of-day(leave)].
func WholeDay(enter, leave time.Time) Interval {
	if leave.Before(enter) {
		leave = enter
	}
	return Interval{Enter: StartOfDay(enter), Leave: EndOfDay(leave)}
}
