package eligibility

import (
	"math"
	"time"
)

// Reason identifies why a window cannot be booked. The empty Reason means eligible.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonBookingLimitReached   Reason = "booking_limit_reached"
	ReasonPickLocation          Reason = "pick_location"
	ReasonEnterMustBeFuture     Reason = "enter_must_be_future"
	ReasonLeaveAfterEnter       Reason = "leave_after_enter"
	ReasonTooFarInAdvance       Reason = "too_far_in_advance"
	ReasonDurationTooLong       Reason = "duration_too_long"
	ReasonLocationMaxConcurrent Reason = "location_max_concurrent"
	ReasonSlotConflict          Reason = "slot_conflict"
	ReasonUnknown               Reason = "unknown"
)

// Verdict is the outcome of an eligibility check. Code carries the server
// application error code when the verdict originates from the backend.
type Verdict struct {
	Reason Reason
	Code   int
}

// Eligible is the verdict for a bookable window.
var Eligible = Verdict{}

// OK reports whether the verdict permits submission.
func (v Verdict) OK() bool {
	return v.Reason == ReasonNone
}

// Evaluate runs the ordered eligibility checks and returns the first failure.
func Evaluate(w Window, p Policy, currentBookingCount int, now time.Time) Verdict {
	if currentBookingCount >= p.MaxBookingsPerUser {
		return Verdict{Reason: ReasonBookingLimitReached}
	}
	if w.LocationID == "" {
		return Verdict{Reason: ReasonPickLocation}
	}

	enterDeadline := w.Enter
	if p.DailyBasisBooking {
		enterDeadline = EndOfDay(w.Enter)
	}
	if !enterDeadline.After(now) {
		return Verdict{Reason: ReasonEnterMustBeFuture}
	}
	if !w.Leave.After(w.Enter) {
		return Verdict{Reason: ReasonLeaveAfterEnter}
	}
	if daysInAdvance(w.Enter, now) > p.MaxDaysInAdvance {
		return Verdict{Reason: ReasonTooFarInAdvance}
	}
	if durationHours(w, p) > float64(p.MaxBookingDurationHours) {
		return Verdict{Reason: ReasonDurationTooLong}
	}
	return Eligible
}

func daysInAdvance(enter, now time.Time) int {
	return int(math.Floor(enter.Sub(now).Hours() / 24))
}

// durationHours measures in whole minutes. Daily-basis windows end at the last
// second of a day, which counts as the following midnight.
func durationHours(w Window, p Policy) float64 {
	leave := w.Leave
	if p.DailyBasisBooking {
		leave = StartOfDay(w.Leave).AddDate(0, 0, 1)
	}
	minutes := math.Floor(leave.Sub(w.Enter).Minutes())
	return minutes / 60
}
