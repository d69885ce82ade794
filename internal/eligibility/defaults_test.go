package eligibility

import (
	"testing"
	"time"
)

// thursday is 2025-01-16, a Thursday.
func thursday(hour, minute int) time.Time {
	return time.Date(2025, time.January, 16, hour, minute, 0, 0, time.UTC)
}

func TestDeriveDefault_Now(t *testing.T) {
	t.Parallel()

	pref := DefaultPreference()

	cases := []struct {
		name      string
		now       time.Time
		wantEnter time.Time
		wantLeave time.Time
	}{
		{
			name:      "rounds up to the next whole hour",
			now:       thursday(10, 20),
			wantEnter: thursday(11, 0),
			wantLeave: thursday(17, 0),
		},
		{
			name:      "snaps to workday start before working hours",
			now:       thursday(7, 10),
			wantEnter: thursday(9, 0),
			wantLeave: thursday(17, 0),
		},
		{
			name:      "moves to next day at workday end",
			now:       thursday(16, 30),
			wantEnter: time.Date(2025, time.January, 17, 9, 0, 0, 0, time.UTC),
			wantLeave: time.Date(2025, time.January, 17, 17, 0, 0, 0, time.UTC),
		},
		{
			name:      "rolls over midnight",
			now:       thursday(23, 30),
			wantEnter: time.Date(2025, time.January, 17, 9, 0, 0, 0, time.UTC),
			wantLeave: time.Date(2025, time.January, 17, 17, 0, 0, 0, time.UTC),
		},
		{
			name:      "exact hour still moves forward",
			now:       thursday(12, 0),
			wantEnter: thursday(13, 0),
			wantLeave: thursday(17, 0),
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := DeriveDefault(pref, Policy{}, tc.now)
			if !got.Enter.Equal(tc.wantEnter) {
				t.Fatalf("expected enter %v, got %v", tc.wantEnter, got.Enter)
			}
			if !got.Leave.Equal(tc.wantLeave) {
				t.Fatalf("expected leave %v, got %v", tc.wantLeave, got.Leave)
			}
		})
	}
}

func TestDeriveDefault_NextDay(t *testing.T) {
	t.Parallel()

	pref := DefaultPreference()
	pref.EnterTimeMode = EnterNextDay
	pref.WorkdayStart = 8
	pref.WorkdayEnd = 16

	got := DeriveDefault(pref, Policy{}, thursday(10, 20))
	wantEnter := time.Date(2025, time.January, 17, 8, 0, 0, 0, time.UTC)
	wantLeave := time.Date(2025, time.January, 17, 16, 0, 0, 0, time.UTC)
	if !got.Enter.Equal(wantEnter) || !got.Leave.Equal(wantLeave) {
		t.Fatalf("unexpected interval: %v - %v", got.Enter, got.Leave)
	}
}

func TestDeriveDefault_NextWorkday(t *testing.T) {
	t.Parallel()

	pref := DefaultPreference()
	pref.EnterTimeMode = EnterNextWorkday
	pref.Workdays = []time.Weekday{time.Monday, time.Wednesday, time.Friday}

	t.Run("skips to the next preferred weekday", func(t *testing.T) {
		t.Parallel()

		got := DeriveDefault(pref, Policy{}, thursday(10, 20))
		want := time.Date(2025, time.January, 17, 9, 0, 0, 0, time.UTC)
		if !got.Enter.Equal(want) {
			t.Fatalf("expected Friday %v, got %v", want, got.Enter)
		}
	})

	t.Run("crosses the weekend to Monday", func(t *testing.T) {
		t.Parallel()

		friday := time.Date(2025, time.January, 17, 10, 0, 0, 0, time.UTC)
		got := DeriveDefault(pref, Policy{}, friday)
		want := time.Date(2025, time.January, 20, 9, 0, 0, 0, time.UTC)
		if !got.Enter.Equal(want) {
			t.Fatalf("expected Monday %v, got %v", want, got.Enter)
		}
		if got.Enter.Weekday() != time.Monday {
			t.Fatalf("expected Monday, got %s", got.Enter.Weekday())
		}
		wantLeave := time.Date(2025, time.January, 20, 17, 0, 0, 0, time.UTC)
		if !got.Leave.Equal(wantLeave) {
			t.Fatalf("expected leave %v, got %v", wantLeave, got.Leave)
		}
	})

	t.Run("is strictly after today", func(t *testing.T) {
		t.Parallel()

		monday := time.Date(2025, time.January, 20, 6, 0, 0, 0, time.UTC)
		got := DeriveDefault(pref, Policy{}, monday)
		want := time.Date(2025, time.January, 22, 9, 0, 0, 0, time.UTC)
		if !got.Enter.Equal(want) {
			t.Fatalf("expected Wednesday %v, got %v", want, got.Enter)
		}
	})

	t.Run("falls back to the next day without workdays", func(t *testing.T) {
		t.Parallel()

		empty := pref
		empty.Workdays = nil
		got := DeriveDefault(empty, Policy{}, thursday(10, 20))
		want := time.Date(2025, time.January, 17, 9, 0, 0, 0, time.UTC)
		if !got.Enter.Equal(want) {
			t.Fatalf("expected fallback %v, got %v", want, got.Enter)
		}
	})

	t.Run("is deterministic", func(t *testing.T) {
		t.Parallel()

		now := thursday(10, 20)
		first := DeriveDefault(pref, Policy{}, now)
		second := DeriveDefault(pref, Policy{}, now)
		if first != second {
			t.Fatalf("expected identical results, got %v and %v", first, second)
		}
	})
}

func TestDeriveDefault_DailyBasis(t *testing.T) {
	t.Parallel()

	pref := DefaultPreference()
	got := DeriveDefault(pref, Policy{DailyBasisBooking: true}, thursday(10, 20))

	wantEnter := thursday(0, 0)
	wantLeave := time.Date(2025, time.January, 16, 23, 59, 59, 0, time.UTC)
	if !got.Enter.Equal(wantEnter) || !got.Leave.Equal(wantLeave) {
		t.Fatalf("expected whole day, got %v - %v", got.Enter, got.Leave)
	}
}

func TestDeriveDefault_UsesLocationOfNow(t *testing.T) {
	t.Parallel()

	berlin := time.FixedZone("CET", 60*60)
	now := time.Date(2025, time.January, 16, 10, 20, 0, 0, berlin)
	got := DeriveDefault(DefaultPreference(), Policy{}, now)

	if got.Enter.Location() != berlin {
		t.Fatalf("expected result in the location of now")
	}
	if got.Enter.Hour() != 11 {
		t.Fatalf("expected local hour 11, got %d", got.Enter.Hour())
	}
}
