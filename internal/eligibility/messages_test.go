package eligibility

import (
	"testing"

	"golang.org/x/text/language"
)

func TestMessage(t *testing.T) {
	t.Parallel()

	policy := standardPolicy()

	t.Run("renders limits into the message", func(t *testing.T) {
		t.Parallel()

		got := Message(language.English, Verdict{Reason: ReasonTooFarInAdvance}, policy)
		if got != "Your booking must not be more than 14 days in advance." {
			t.Fatalf("unexpected message: %q", got)
		}
	})

	t.Run("local and server verdicts share wording", func(t *testing.T) {
		t.Parallel()

		local := Message(language.English, Verdict{Reason: ReasonBookingLimitReached}, policy)
		server := Message(language.English, VerdictForCode(CodeTooManyUpcomingBooking), policy)
		if local != server {
			t.Fatalf("expected identical wording, got %q and %q", local, server)
		}
	})

	t.Run("renders German", func(t *testing.T) {
		t.Parallel()

		got := Message(language.German, Verdict{Reason: ReasonDurationTooLong}, policy)
		if got != "Die maximale Buchungsdauer beträgt 8 Stunden." {
			t.Fatalf("unexpected message: %q", got)
		}
	})

	t.Run("falls back for unsupported languages", func(t *testing.T) {
		t.Parallel()

		got := Message(language.Japanese, Verdict{Reason: ReasonPickLocation}, policy)
		if got != "Please select an area." {
			t.Fatalf("unexpected fallback message: %q", got)
		}
	})

	t.Run("every reason has a message in every language", func(t *testing.T) {
		t.Parallel()

		for _, tag := range supportedLanguages {
			for reason := range translations[language.English] {
				if _, ok := translations[tag][reason]; !ok {
					t.Fatalf("missing %s translation for %q", tag, reason)
				}
			}
		}
	})
}

func TestMatchLanguage(t *testing.T) {
	t.Parallel()

	if got := MatchLanguage(language.MustParse("de-AT")); got != language.German {
		t.Fatalf("expected German, got %s", got)
	}
	if got := MatchLanguage(language.French); got != language.English {
		t.Fatalf("expected English fallback, got %s", got)
	}
}
