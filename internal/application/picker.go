package application

import (
	"errors"
	"time"
)

// ErrPickerState is returned when a picker input does not fit the current mode.
var ErrPickerState = errors.New("application: picker not in a state that accepts this input")

// Axis names one side of the booking interval.
type Axis int

const (
	AxisEnter Axis = iota
	AxisLeave
)

func (a Axis) String() string {
	if a == AxisLeave {
		return "leave"
	}
	return "enter"
}

// PickerMode is the entry state of one axis.
type PickerMode int

const (
	PickerIdle PickerMode = iota
	PickingDate
	PickingTime
)

func (m PickerMode) String() string {
	switch m {
	case PickingDate:
		return "picking_date"
	case PickingTime:
		return "picking_time"
	default:
		return "idle"
	}
}

// Picker is the interval entry state. At most one axis is active; the other
// is Idle, so inconsistent combinations cannot be expressed.
type Picker struct {
	Axis Axis
	Mode PickerMode
	// Date holds the chosen date combined with the axis's previous time of
	// day while Mode is PickingTime.
	Date time.Time
}

// ModeOf reports the mode of the given axis.
func (p Picker) ModeOf(axis Axis) PickerMode {
	if p.Mode == PickerIdle || p.Axis != axis {
		return PickerIdle
	}
	return p.Mode
}

func (p Picker) begin(axis Axis) Picker {
	return Picker{Axis: axis, Mode: PickingDate}
}

// chooseDate moves from PickingDate to PickingTime, keeping the time of day of
// current as the starting point.
func (p Picker) chooseDate(date, current time.Time) (Picker, error) {
	if p.Mode != PickingDate {
		return p, ErrPickerState
	}
	loc := current.Location()
	date = date.In(loc)
	combined := time.Date(date.Year(), date.Month(), date.Day(), current.Hour(), current.Minute(), 0, 0, loc)
	return Picker{Axis: p.Axis, Mode: PickingTime, Date: combined}, nil
}

// chooseTime commits the instant at hour:minute on the chosen date.
func (p Picker) chooseTime(hour, minute int) (time.Time, error) {
	if p.Mode != PickingTime {
		return time.Time{}, ErrPickerState
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, ErrPickerState
	}
	d := p.Date
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, d.Location()), nil
}
