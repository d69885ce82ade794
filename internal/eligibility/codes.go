package eligibility

// Application error codes returned by the booking backend.
const (
	CodeSlotConflict           = 1001
	CodeLocationMaxConcurrent  = 1002
	CodeTooManyUpcomingBooking = 1003
	CodeTooManyDaysInAdvance   = 1004
	CodeInvalidBookingDuration = 1005
)

var codeReasons = map[int]Reason{
	CodeSlotConflict:           ReasonSlotConflict,
	CodeLocationMaxConcurrent:  ReasonLocationMaxConcurrent,
	CodeTooManyUpcomingBooking: ReasonBookingLimitReached,
	CodeTooManyDaysInAdvance:   ReasonTooFarInAdvance,
	CodeInvalidBookingDuration: ReasonDurationTooLong,
}

// VerdictForCode maps a server application error code onto the same reason
// taxonomy the local checks use. Unrecognized codes map to ReasonUnknown.
func VerdictForCode(code int) Verdict {
	reason, ok := codeReasons[code]
	if !ok {
		reason = ReasonUnknown
	}
	return Verdict{Reason: reason, Code: code}
}
