package eligibility

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Setting is a single name/value pair as delivered by the settings and
// preferences endpoints.
type Setting struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Organization-wide setting names.
const (
	SettingMaxBookingsPerUser      = "max_bookings_per_user"
	SettingMaxDaysInAdvance        = "max_days_in_advance"
	SettingMaxBookingDurationHours = "max_booking_duration_hours"
	SettingDailyBasisBooking       = "daily_basis_booking"
	SettingShowNames               = "show_names"
	SettingDefaultTimezone         = "default_timezone"
)

// User preference names.
const (
	PreferenceEnterTime    = "enter_time"
	PreferenceWorkdayStart = "workday_start"
	PreferenceWorkdayEnd   = "workday_end"
	PreferenceWorkdays     = "workdays"
	PreferenceLocationID   = "location_id"
)

// Policy is the immutable per-session snapshot of organization booking rules.
// The zero value represents an unknown policy and fails closed.
type Policy struct {
	MaxBookingsPerUser      int
	MaxDaysInAdvance        int
	MaxBookingDurationHours int
	DailyBasisBooking       bool
	ShowNames               bool
	DefaultTimezone         string
}

// PolicyFromSettings maps the fixed setting names onto a Policy. Unknown names
// are ignored and unparsable or negative numbers leave the field at zero.
func PolicyFromSettings(settings []Setting) Policy {
	var p Policy
	for _, s := range settings {
		switch s.Name {
		case SettingMaxBookingsPerUser:
			p.MaxBookingsPerUser = parseNonNegative(s.Value)
		case SettingMaxDaysInAdvance:
			p.MaxDaysInAdvance = parseNonNegative(s.Value)
		case SettingMaxBookingDurationHours:
			p.MaxBookingDurationHours = parseNonNegative(s.Value)
		case SettingDailyBasisBooking:
			p.DailyBasisBooking = strings.TrimSpace(s.Value) == "1"
		case SettingShowNames:
			p.ShowNames = strings.TrimSpace(s.Value) == "1"
		case SettingDefaultTimezone:
			p.DefaultTimezone = strings.TrimSpace(s.Value)
		}
	}
	return p
}

// Location resolves the policy time zone, returning fallback when the policy
// does not name a loadable zone.
func (p Policy) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.Local
	}
	if p.DefaultTimezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(p.DefaultTimezone)
	if err != nil {
		return fallback
	}
	return loc
}

// EnterTimeMode selects how the default enter instant is derived.
type EnterTimeMode int

const (
	// EnterNow starts at the next whole hour within working hours.
	EnterNow EnterTimeMode = 1
	// EnterNextDay starts at the beginning of the next day's working hours.
	EnterNextDay EnterTimeMode = 2
	// EnterNextWorkday starts at the beginning of the next preferred workday.
	EnterNextWorkday EnterTimeMode = 3
)

// Preference captures the user's defaults for new searches.
type Preference struct {
	EnterTimeMode       EnterTimeMode
	WorkdayStart        int
	WorkdayEnd          int
	Workdays            []time.Weekday
	PreferredLocationID string
}

// DefaultPreference is used until the user's stored preferences are known.
func DefaultPreference() Preference {
	return Preference{
		EnterTimeMode: EnterNow,
		WorkdayStart:  9,
		WorkdayEnd:    17,
		Workdays:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

// PreferenceFromSettings overlays stored preference values onto the defaults.
func PreferenceFromSettings(settings []Setting) Preference {
	pref := DefaultPreference()
	for _, s := range settings {
		value := strings.TrimSpace(s.Value)
		switch s.Name {
		case PreferenceEnterTime:
			if mode, err := strconv.Atoi(value); err == nil && mode >= int(EnterNow) && mode <= int(EnterNextWorkday) {
				pref.EnterTimeMode = EnterTimeMode(mode)
			}
		case PreferenceWorkdayStart:
			if hour, ok := parseHour(value); ok {
				pref.WorkdayStart = hour
			}
		case PreferenceWorkdayEnd:
			if hour, ok := parseHour(value); ok {
				pref.WorkdayEnd = hour
			}
		case PreferenceWorkdays:
			pref.Workdays = parseWorkdays(value)
		case PreferenceLocationID:
			pref.PreferredLocationID = value
		}
	}
	return pref
}

func (p Preference) isWorkday(day time.Weekday) bool {
	for _, d := range p.Workdays {
		if d == day {
			return true
		}
	}
	return false
}

func parseNonNegative(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseHour(value string) (int, bool) {
	hour, err := strconv.Atoi(value)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	return hour, true
}

// parseWorkdays reads a comma separated list of weekday numbers (0 = Sunday).
func parseWorkdays(value string) []time.Weekday {
	seen := make(map[time.Weekday]struct{}, 7)
	for _, part := range strings.Split(value, ",") {
		day, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || day < 0 || day > 6 {
			continue
		}
		seen[time.Weekday(day)] = struct{}{}
	}
	days := make([]time.Weekday, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}
