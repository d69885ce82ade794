package eligibility

import "time"

// workdaySearchLimit bounds the NextWorkday search to one week.
const workdaySearchLimit = 7

// DeriveDefault computes the initial search interval from the user's preference
// and the organization policy. The result is expressed in now's location and is
// fully determined by its inputs.
func DeriveDefault(pref Preference, policy Policy, now time.Time) Interval {
	var enter time.Time

	switch pref.EnterTimeMode {
	case EnterNextDay:
		enter = AtHour(now.AddDate(0, 0, 1), pref.WorkdayStart)
	case EnterNextWorkday:
		enter = AtHour(nextWorkday(pref, now), pref.WorkdayStart)
	default:
		enter = time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, now.Location())
		switch {
		case enter.Hour() < pref.WorkdayStart:
			enter = AtHour(enter, pref.WorkdayStart)
		case enter.Hour() >= pref.WorkdayEnd:
			enter = AtHour(enter.AddDate(0, 0, 1), pref.WorkdayStart)
		}
	}

	if policy.DailyBasisBooking {
		return WholeDay(enter, enter)
	}
	return Interval{Enter: enter, Leave: AtHour(enter, pref.WorkdayEnd)}
}

// nextWorkday returns the first date strictly after now whose weekday is a
// preferred workday, or the following day when none occurs within a week.
func nextWorkday(pref Preference, now time.Time) time.Time {
	for offset := 1; offset <= workdaySearchLimit; offset++ {
		candidate := now.AddDate(0, 0, offset)
		if pref.isWorkday(candidate.Weekday()) {
			return candidate
		}
	}
	return now.AddDate(0, 0, 1)
}
