package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/example/seat-booking-client/internal/persistence/sqlite"
	"github.com/example/seat-booking-client/internal/testfixtures"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct-horse"
)

type harness struct {
	t       *testing.T
	backend *testfixtures.FakeBackend
	vars    map[string]string
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := testfixtures.NewFakeBackend(t, nil)
	backend.AddUser(testEmail, testPassword)
	backend.AddLocation(
		testfixtures.FakeLocation{ID: "loc-1", Name: "Headquarters"},
		testfixtures.FakeSpace{ID: "desk-1", Name: "Desk 1", LocationID: "loc-1"},
		testfixtures.FakeSpace{ID: "desk-2", Name: "Desk 2", LocationID: "loc-1"},
	)
	dir := t.TempDir()
	return &harness{
		t:       t,
		backend: backend,
		dir:     dir,
		vars: map[string]string{
			"SEATCLIENT_BACKEND_URL":  backend.URL,
			"SEATCLIENT_SQLITE_DSN":   filepath.Join(dir, "state.db"),
			"SEATCLIENT_REQUEST_RATE": "0",
			"SEATCLIENT_LOG_LEVEL":    "error",
		},
	}
}

// run executes one seatctl invocation and returns its exit code and output.
func (h *harness) run(stdin string, args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, environment{
		stdin:  strings.NewReader(stdin),
		stdout: &stdout,
		stderr: &stderr,
		lookup: func(key string) (string, bool) {
			value, ok := h.vars[key]
			return value, ok
		},
		now:     time.Now,
		envFile: filepath.Join(h.dir, "missing.env"),
	})
	return code, stdout.String(), stderr.String()
}

func (h *harness) login() {
	h.t.Helper()
	code, stdout, stderr := h.run(testPassword+"\n", "login", "-email", testEmail, "-password-stdin")
	if code != exitOK {
		h.t.Fatalf("login exited %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Signed in as "+testEmail) {
		h.t.Fatalf("unexpected login output: %q", stdout)
	}
}

// slot returns a two hour window starting on the hour two days from now.
func slot() (string, string) {
	enter := time.Now().Add(48 * time.Hour).Truncate(time.Hour)
	return enter.Format(timeLayout), enter.Add(2 * time.Hour).Format(timeLayout)
}

func TestRunUsage(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if code, _, stderr := h.run(""); code != exitUsage || !strings.Contains(stderr, "usage: seatctl") {
		t.Fatalf("expected usage for no command, got %d %q", code, stderr)
	}
	if code, _, stderr := h.run("", "teleport"); code != exitUsage || !strings.Contains(stderr, `unknown command "teleport"`) {
		t.Fatalf("expected usage for unknown command, got %d %q", code, stderr)
	}
	if code, _, _ := h.run("", "status", "extra"); code != exitUsage {
		t.Fatalf("expected usage for stray arguments, got %d", code)
	}
}

func TestRunRejectsInvalidConfiguration(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.vars["SEATCLIENT_STATE_BACKEND"] = "floppy"
	code, _, stderr := h.run("", "status")
	if code != exitError || !strings.Contains(stderr, "SEATCLIENT_STATE_BACKEND") {
		t.Fatalf("expected configuration error, got %d %q", code, stderr)
	}
}

func TestBookingLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	if code, _, stderr := h.run("", "bookings"); code != exitError || !strings.Contains(stderr, "not signed in") {
		t.Fatalf("expected not signed in before login, got %d %q", code, stderr)
	}

	h.login()

	code, stdout, stderr := h.run("", "status")
	if code != exitOK {
		t.Fatalf("status exited %d: %s", code, stderr)
	}
	for _, want := range []string{"authenticated", testEmail, "max bookings:", "3"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in status output %q", want, stdout)
		}
	}

	code, stdout, _ = h.run("", "locations")
	if code != exitOK || !strings.Contains(stdout, "loc-1") || !strings.Contains(stdout, "Headquarters") {
		t.Fatalf("unexpected locations output %d %q", code, stdout)
	}

	enter, leave := slot()
	code, stdout, stderr = h.run("", "search", "-location", "loc-1", "-enter", enter, "-leave", leave)
	if code != exitOK {
		t.Fatalf("search exited %d: %s", code, stderr)
	}
	for _, want := range []string{"bookable", "desk-1", "desk-2", enter} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in search output %q", want, stdout)
		}
	}

	code, stdout, stderr = h.run("", "book", "-enter", enter, "-leave", leave, "-space", "desk-1")
	if code != exitOK {
		t.Fatalf("book exited %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Booked desk-1 (booking-1)") {
		t.Fatalf("unexpected book output %q", stdout)
	}

	code, _, stderr = h.run("", "book", "-enter", enter, "-leave", leave, "-space", "desk-1")
	if code != exitError || !strings.Contains(stderr, "already booked") {
		t.Fatalf("expected slot conflict, got %d %q", code, stderr)
	}

	code, stdout, _ = h.run("", "bookings")
	if code != exitOK || !strings.Contains(stdout, "booking-1") || !strings.Contains(stdout, "desk-1") {
		t.Fatalf("unexpected bookings output %d %q", code, stdout)
	}

	code, stdout, _ = h.run("", "cancel", "-id", "booking-1")
	if code != exitOK || !strings.Contains(stdout, "Cancelled booking-1") {
		t.Fatalf("unexpected cancel output %d %q", code, stdout)
	}
	if len(h.backend.Bookings()) != 0 {
		t.Fatalf("expected booking removed on the backend")
	}

	code, stdout, _ = h.run("", "signout")
	if code != exitOK || !strings.Contains(stdout, "Signed out") {
		t.Fatalf("unexpected signout output %d %q", code, stdout)
	}
	code, stdout, _ = h.run("", "status")
	if code != exitOK || !strings.Contains(stdout, "anonymous") {
		t.Fatalf("expected anonymous status after signout, got %d %q", code, stdout)
	}
}

func TestBookRequiresSpace(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login()
	enter, leave := slot()
	code, _, stderr := h.run("", "book", "-location", "loc-1", "-enter", enter, "-leave", leave)
	if code != exitError || !strings.Contains(stderr, "space_id") {
		t.Fatalf("expected validation error, got %d %q", code, stderr)
	}
}

func TestSearchReportsIneligibleWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.vars["SEATCLIENT_LANGUAGE"] = "de"
	h.login()

	enter := time.Now().Add(48 * time.Hour).Truncate(time.Hour)
	code, stdout, stderr := h.run("", "search", "-location", "loc-1",
		"-enter", enter.Format(timeLayout),
		"-leave", enter.Add(10*time.Hour).Format(timeLayout))
	if code != exitOK {
		t.Fatalf("search exited %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Die maximale Buchungsdauer beträgt 8 Stunden.") {
		t.Fatalf("expected localized duration message, got %q", stdout)
	}
}

func TestSearchRejectsMalformedTime(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login()
	if code, _, _ := h.run("", "search", "-enter", "tomorrow"); code != exitUsage {
		t.Fatalf("expected usage error for malformed time, got %d", code)
	}
}

func TestSealedStateAtRest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.vars["SEATCLIENT_STATE_SECRET"] = "local passphrase"
	h.login()

	store, err := sqlite.Open(context.Background(), h.vars["SEATCLIENT_SQLITE_DSN"])
	if err != nil {
		t.Fatalf("sqlite.Open returned error: %v", err)
	}
	raw, ok, err := store.Get(context.Background(), "refresh_token")
	_ = store.Close()
	if err != nil || !ok {
		t.Fatalf("expected sealed refresh token, got ok=%v err=%v", ok, err)
	}
	if strings.HasPrefix(raw, "refresh-") {
		t.Fatalf("expected refresh token to be encrypted, got %q", raw)
	}

	code, stdout, stderr := h.run("", "status")
	if code != exitOK || !strings.Contains(stdout, "authenticated") {
		t.Fatalf("expected sealed session to restore, got %d %q %q", code, stdout, stderr)
	}

	h.vars["SEATCLIENT_STATE_SECRET"] = "another passphrase"
	if code, _, _ := h.run("", "status"); code != exitError {
		t.Fatalf("expected wrong secret to fail, got %d", code)
	}
}

func TestRedisStateBackend(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	h := newHarness(t)
	h.vars["SEATCLIENT_STATE_BACKEND"] = "redis"
	h.vars["SEATCLIENT_REDIS_URL"] = "redis://" + mr.Addr()
	h.login()

	if !mr.Exists("seatclient:refresh_token") {
		t.Fatalf("expected credentials in redis, keys: %v", mr.Keys())
	}
	code, stdout, _ := h.run("", "status")
	if code != exitOK || !strings.Contains(stdout, "authenticated") {
		t.Fatalf("expected redis session to restore, got %d %q", code, stdout)
	}
}
