package eligibility

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var supportedLanguages = []language.Tag{language.English, language.German}

var languageMatcher = language.NewMatcher(supportedLanguages)

// translations holds one entry per reason and language. Entries that take a
// number receive the matching policy limit.
var translations = map[language.Tag]map[Reason]string{
	language.English: {
		ReasonNone:                  "Search spaces",
		ReasonBookingLimitReached:   "You have reached the limit of %d bookings.",
		ReasonPickLocation:          "Please select an area.",
		ReasonEnterMustBeFuture:     "The start must be in the future.",
		ReasonLeaveAfterEnter:       "The end must be after the start.",
		ReasonTooFarInAdvance:       "Your booking must not be more than %d days in advance.",
		ReasonDurationTooLong:       "The maximum booking duration is %d hours.",
		ReasonLocationMaxConcurrent: "The maximum number of concurrent bookings for this area has been reached.",
		ReasonSlotConflict:          "The space is already booked for this period.",
		ReasonUnknown:               "An unknown error occurred.",
	},
	language.German: {
		ReasonNone:                  "Plätze suchen",
		ReasonBookingLimitReached:   "Das Limit von %d Buchungen wurde erreicht.",
		ReasonPickLocation:          "Bitte einen Bereich auswählen.",
		ReasonEnterMustBeFuture:     "Der Beginn muss in der Zukunft liegen.",
		ReasonLeaveAfterEnter:       "Das Ende muss nach dem Beginn liegen.",
		ReasonTooFarInAdvance:       "Die Buchung darf maximal %d Tage in der Zukunft liegen.",
		ReasonDurationTooLong:       "Die maximale Buchungsdauer beträgt %d Stunden.",
		ReasonLocationMaxConcurrent: "Die maximale Anzahl gleichzeitiger Buchungen für diesen Bereich wurde erreicht.",
		ReasonSlotConflict:          "Der Platz ist in diesem Zeitraum bereits gebucht.",
		ReasonUnknown:               "Ein unbekannter Fehler ist aufgetreten.",
	},
}

var messageCatalog = buildCatalog()

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, entries := range translations {
		for reason, msg := range entries {
			if err := b.SetString(tag, messageKey(reason), msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

func messageKey(r Reason) string {
	if r == ReasonNone {
		return "eligible"
	}
	return string(r)
}

// MatchLanguage picks the supported language closest to the requested one.
func MatchLanguage(requested ...language.Tag) language.Tag {
	_, index, _ := languageMatcher.Match(requested...)
	return supportedLanguages[index]
}

// Message renders a verdict for display. Local and server-originated verdicts
// share this lookup so both read identically.
func Message(tag language.Tag, v Verdict, p Policy) string {
	printer := message.NewPrinter(MatchLanguage(tag), message.Catalog(messageCatalog))
	key := messageKey(v.Reason)
	if _, known := translations[language.English][v.Reason]; !known {
		key = messageKey(ReasonUnknown)
	}

	switch v.Reason {
	case ReasonBookingLimitReached:
		return printer.Sprintf(key, p.MaxBookingsPerUser)
	case ReasonTooFarInAdvance:
		return printer.Sprintf(key, p.MaxDaysInAdvance)
	case ReasonDurationTooLong:
		return printer.Sprintf(key, p.MaxBookingDurationHours)
	default:
		return printer.Sprintf(key)
	}
}
