package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/seat-booking-client/internal/eligibility"
)

// BookingAPI is the backend surface the booking window drives.
type BookingAPI interface {
	ListPreferences(ctx context.Context, target Target) ([]eligibility.Setting, error)
	ListBookings(ctx context.Context, target Target) ([]Booking, error)
	Precheck(ctx context.Context, target Target, req PrecheckRequest) error
	CreateBooking(ctx context.Context, target Target, req BookingRequest) (Booking, error)
	DeleteBooking(ctx context.Context, target Target, bookingID string) error
	ListLocations(ctx context.Context, target Target) ([]Location, error)
	GetLocation(ctx context.Context, target Target, locationID string) (Location, error)
	ListSpaceAvailability(ctx context.Context, target Target, locationID string, interval eligibility.Interval) ([]Space, error)
}

// WindowState is a snapshot of the booking window.
type WindowState struct {
	Window       eligibility.Window
	Policy       eligibility.Policy
	Preference   eligibility.Preference
	BookingCount int
	Verdict      eligibility.Verdict
	Availability []Space
	Picker       Picker
}

// ticket captures the state a background response was requested for. A
// response is applied only while the ticket still matches.
type ticket struct {
	epoch      uint64
	locationID string
	enter      time.Time
	leave      time.Time
}

// BookingWindow owns the in-progress search interval and location and keeps
// its eligibility verdict current. Mutations are serialized and each one
// recomputes the verdict before returning.
type BookingWindow struct {
	session   *SessionManager
	api       BookingAPI
	store     *credentialStore
	locations *locationCache
	now       func() time.Time
	fallback  *time.Location
	logger    *slog.Logger

	lifecycle context.Context
	cancel    context.CancelFunc
	pending   sync.WaitGroup

	mu         sync.Mutex
	epoch      uint64
	closed     bool
	policy     eligibility.Policy
	preference eligibility.Preference
	window     eligibility.Window
	count      int
	verdict    eligibility.Verdict
	spaces     []Space
	picker     Picker
	followUp   bool
}

// NewBookingWindow constructs a BookingWindow bound to session.
func NewBookingWindow(session *SessionManager, api BookingAPI, store KeyValueStore, now func() time.Time) *BookingWindow {
	return NewBookingWindowWithLogger(session, api, store, now, nil)
}

// NewBookingWindowWithLogger constructs a BookingWindow with a specified logger.
func NewBookingWindowWithLogger(session *SessionManager, api BookingAPI, store KeyValueStore, now func() time.Time, logger *slog.Logger) *BookingWindow {
	if now == nil {
		now = time.Now
	}
	lifecycle, cancel := context.WithCancel(context.Background())
	w := &BookingWindow{
		session:    session,
		api:        api,
		store:      newCredentialStore(store),
		locations:  newLocationCache(0, 0, now),
		now:        now,
		fallback:   now().Location(),
		logger:     defaultLogger(logger),
		lifecycle:  lifecycle,
		cancel:     cancel,
		preference: eligibility.DefaultPreference(),
	}
	w.policy = session.Session().Policy
	w.recomputeLocked()

	// EventBus matches handlers by code pointer and cannot tell two windows
	// apart, so a closed window ignores events instead of unsubscribing.
	events := session.Events()
	if err := events.OnSessionChanged(w.onSessionChanged); err != nil {
		w.logger.Error("failed to subscribe to session changes", "error", err)
	}
	if err := events.OnCredentialsRefreshed(w.onCredentialsRefreshed); err != nil {
		w.logger.Error("failed to subscribe to credential refreshes", "error", err)
	}
	return w
}

func (w *BookingWindow) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, w.logger, "BookingWindow", operation, attrs...)
}

// State returns a snapshot of the window.
func (w *BookingWindow) State() WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WindowState{
		Window:       w.window,
		Policy:       w.policy,
		Preference:   w.preference,
		BookingCount: w.count,
		Verdict:      w.verdict,
		Availability: append([]Space(nil), w.spaces...),
		Picker:       w.picker,
	}
}

// Verdict returns the verdict computed by the latest mutation or refresh.
func (w *BookingWindow) Verdict() eligibility.Verdict {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.verdict
}

// Close cancels in-flight refreshes and waits for them to finish. Late
// responses are discarded.
func (w *BookingWindow) Close() {
	w.mu.Lock()
	w.closed = true
	w.epoch++
	w.mu.Unlock()
	w.cancel()
	w.pending.Wait()
}

// Initialize loads policy and preferences, derives the default interval,
// restores the last location and refreshes the booking count.
func (w *BookingWindow) Initialize(ctx context.Context) (err error) {
	logger := w.loggerWith(ctx, "Initialize")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "booking window initialization failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking window initialized")
	}()

	ctx, stop := w.scoped(ctx)
	defer stop()

	w.mu.Lock()
	epoch := w.epoch
	w.mu.Unlock()

	var (
		policy   eligibility.Policy
		pref     = eligibility.DefaultPreference()
		interval eligibility.Interval
		location string
	)

	p := pipeline{
		name:   "initialize",
		logger: logger,
		stages: []stage{
			{name: "load-policy", run: func(ctx context.Context) error {
				s := w.session.Session()
				if !s.Authenticated() {
					return ErrNotAuthenticated
				}
				policy = s.Policy
				return nil
			}},
			{name: "load-preferences", run: func(ctx context.Context) error {
				var settings []eligibility.Setting
				callErr := w.session.Do(ctx, func(ctx context.Context, target Target) error {
					var err error
					settings, err = w.api.ListPreferences(ctx, target)
					return err
				})
				if callErr != nil {
					if errors.Is(callErr, ErrSessionExpired) || errors.Is(callErr, context.Canceled) {
						return callErr
					}
					logger.WarnContext(ctx, "preferences unavailable, using defaults", "error", callErr, "error_kind", ErrorKind(callErr))
					return nil
				}
				pref = eligibility.PreferenceFromSettings(settings)
				return nil
			}},
			{name: "derive-default", run: func(ctx context.Context) error {
				now := w.now().In(policy.Location(w.fallback))
				interval = eligibility.DeriveDefault(pref, policy, now)
				return nil
			}},
			{name: "restore-location", run: func(ctx context.Context) error {
				location = w.restoreLocation(ctx, pref.PreferredLocationID)
				return nil
			}},
			{name: "apply", run: func(ctx context.Context) error {
				w.mu.Lock()
				defer w.mu.Unlock()
				if w.closed || w.epoch != epoch {
					return context.Canceled
				}
				w.policy = policy
				w.preference = pref
				w.window = eligibility.Window{Interval: interval, LocationID: location}
				w.picker = Picker{}
				w.spaces = nil
				w.recomputeLocked()
				return nil
			}},
			{name: "refresh-count", run: func(ctx context.Context) error {
				return w.RefreshBookingCount(ctx)
			}},
		},
	}

	if err = p.run(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	w.scheduleAvailabilityLocked()
	w.mu.Unlock()
	return nil
}

// restoreLocation returns the persisted location when it still exists,
// otherwise the preferred one. A missing location is forgotten.
func (w *BookingWindow) restoreLocation(ctx context.Context, preferred string) string {
	stored, err := w.store.location(ctx)
	if err != nil {
		w.loggerWith(ctx, "RestoreLocation").WarnContext(ctx, "failed to read stored location", "error", err)
	}
	for _, candidate := range []string{stored, preferred} {
		if candidate == "" {
			continue
		}
		if _, err := w.Location(ctx, candidate); err != nil {
			if errors.Is(err, ErrNotFound) && candidate == stored {
				_ = w.store.saveLocation(ctx, "")
			}
			continue
		}
		return candidate
	}
	return ""
}

// SetInterval replaces both instants. Daily-basis policies snap them to whole days.
func (w *BookingWindow) SetInterval(enter, leave time.Time) eligibility.Verdict {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.policy.DailyBasisBooking {
		whole := eligibility.WholeDay(enter, leave)
		enter, leave = whole.Enter, whole.Leave
	}
	w.window.Enter = enter
	w.window.Leave = leave
	w.picker = Picker{}
	w.commitLocked()
	return w.verdict
}

// SetEnter moves the enter instant and shifts leave by the same delta.
func (w *BookingWindow) SetEnter(enter time.Time) eligibility.Verdict {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.picker = Picker{}
	w.setEnterLocked(enter)
	w.commitLocked()
	return w.verdict
}

// SetLeave moves the leave instant only.
func (w *BookingWindow) SetLeave(leave time.Time) eligibility.Verdict {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.picker = Picker{}
	w.setLeaveLocked(leave)
	w.commitLocked()
	return w.verdict
}

// SetLocation selects a location, persists it for the next search and
// refreshes availability. An empty id clears the selection.
func (w *BookingWindow) SetLocation(ctx context.Context, locationID string) eligibility.Verdict {
	locationID = strings.TrimSpace(locationID)
	if err := w.store.saveLocation(ctx, locationID); err != nil {
		w.loggerWith(ctx, "SetLocation").WarnContext(ctx, "failed to persist location", "error", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.window.LocationID = locationID
	w.spaces = nil
	w.commitLocked()
	return w.verdict
}

// BeginPick opens the date picker for axis, cancelling any other open picker.
func (w *BookingWindow) BeginPick(axis Axis) Picker {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.picker = w.picker.begin(axis)
	return w.picker
}

// SelectDate records a date for the open picker. Daily-basis policies commit
// immediately; otherwise the picker moves on to time selection.
func (w *BookingWindow) SelectDate(date time.Time) (Picker, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.picker.Mode != PickingDate {
		return w.picker, ErrPickerState
	}
	axis := w.picker.Axis
	date = date.In(w.locationLocked())

	if w.policy.DailyBasisBooking {
		if axis == AxisEnter {
			w.setEnterLocked(eligibility.StartOfDay(date))
			w.window.Leave = eligibility.EndOfDay(w.window.Leave)
		} else {
			w.setLeaveLocked(eligibility.EndOfDay(date))
		}
		w.picker = Picker{}
		w.commitLocked()
		return w.picker, nil
	}

	current := w.window.Enter
	if axis == AxisLeave {
		current = w.window.Leave
	}
	if current.IsZero() {
		current = date
	}
	next, err := w.picker.chooseDate(date, current.In(w.locationLocked()))
	if err != nil {
		return w.picker, err
	}
	w.picker = next
	return w.picker, nil
}

// SelectTime commits the open picker's instant at hour:minute.
func (w *BookingWindow) SelectTime(hour, minute int) (eligibility.Verdict, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	instant, err := w.picker.chooseTime(hour, minute)
	if err != nil {
		return w.verdict, err
	}
	if w.picker.Axis == AxisEnter {
		w.setEnterLocked(instant)
	} else {
		w.setLeaveLocked(instant)
	}
	w.picker = Picker{}
	w.commitLocked()
	return w.verdict, nil
}

// CancelPick closes the open picker without changing the window.
func (w *BookingWindow) CancelPick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.picker = Picker{}
}

func (w *BookingWindow) setEnterLocked(enter time.Time) {
	if !w.window.Enter.IsZero() && !w.window.Leave.IsZero() {
		delta := enter.Sub(w.window.Enter)
		w.window.Leave = w.window.Leave.Add(delta)
	}
	w.window.Enter = enter
}

func (w *BookingWindow) setLeaveLocked(leave time.Time) {
	w.window.Leave = leave
}

// commitLocked recomputes the verdict and refreshes availability after a
// window mutation.
func (w *BookingWindow) commitLocked() {
	w.recomputeLocked()
	w.scheduleAvailabilityLocked()
}

func (w *BookingWindow) recomputeLocked() {
	now := w.now().In(w.locationLocked())
	w.verdict = eligibility.Evaluate(w.window, w.policy, w.count, now)
}

func (w *BookingWindow) locationLocked() *time.Location {
	return w.policy.Location(w.fallback)
}

func (w *BookingWindow) ticketLocked() ticket {
	return ticket{
		epoch:      w.epoch,
		locationID: w.window.LocationID,
		enter:      w.window.Enter,
		leave:      w.window.Leave,
	}
}

func (w *BookingWindow) matchesLocked(t ticket) bool {
	return !w.closed &&
		t.epoch == w.epoch &&
		t.locationID == w.window.LocationID &&
		t.enter.Equal(w.window.Enter) &&
		t.leave.Equal(w.window.Leave)
}

func (w *BookingWindow) scheduleAvailabilityLocked() {
	if w.closed || w.window.LocationID == "" || w.window.Enter.IsZero() || !w.window.Leave.After(w.window.Enter) {
		return
	}
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		if err := w.RefreshAvailability(w.lifecycle); err != nil && !errors.Is(err, context.Canceled) {
			w.loggerWith(w.lifecycle, "RefreshAvailability").WarnContext(w.lifecycle, "availability refresh failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()
}

// scoped derives a context that also ends when the window is closed.
func (w *BookingWindow) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(w.lifecycle, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// RefreshBookingCount reloads the user's bookings and recomputes the verdict.
// A response for a window that changed in the meantime is discarded.
func (w *BookingWindow) RefreshBookingCount(ctx context.Context) error {
	_, err := w.Bookings(ctx)
	return err
}

// Bookings lists the user's bookings and updates the booking count.
func (w *BookingWindow) Bookings(ctx context.Context) (bookings []Booking, err error) {
	ctx, stop := w.scoped(ctx)
	defer stop()

	w.mu.Lock()
	t := w.ticketLocked()
	w.mu.Unlock()

	err = w.session.Do(ctx, func(ctx context.Context, target Target) error {
		var callErr error
		bookings, callErr = w.api.ListBookings(ctx, target)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.matchesLocked(t) {
		w.loggerWith(ctx, "RefreshBookingCount").DebugContext(ctx, "discarding stale booking count")
		return bookings, nil
	}
	w.count = len(bookings)
	w.recomputeLocked()
	return bookings, nil
}

// RefreshAvailability reloads space availability for the current location and
// interval. A response for a window that changed in the meantime is discarded.
func (w *BookingWindow) RefreshAvailability(ctx context.Context) error {
	ctx, stop := w.scoped(ctx)
	defer stop()

	w.mu.Lock()
	t := w.ticketLocked()
	w.mu.Unlock()

	if t.locationID == "" {
		return nil
	}

	var spaces []Space
	err := w.session.Do(ctx, func(ctx context.Context, target Target) error {
		var callErr error
		spaces, callErr = w.api.ListSpaceAvailability(ctx, target, t.locationID, eligibility.Interval{Enter: t.enter, Leave: t.leave})
		return callErr
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.matchesLocked(t) {
		w.loggerWith(ctx, "RefreshAvailability").DebugContext(ctx, "discarding stale availability", "location_id", t.locationID)
		return nil
	}
	w.spaces = spaces
	return nil
}

// Submit books spaceID for the current window. Ineligibility, local or
// reported by the backend, is returned as a verdict with a nil error.
func (w *BookingWindow) Submit(ctx context.Context, spaceID string) (booking Booking, verdict eligibility.Verdict, err error) {
	spaceID = strings.TrimSpace(spaceID)
	logger := w.loggerWith(ctx, "Submit", "space_id", spaceID)
	defer func() {
		switch {
		case err != nil:
			logger.ErrorContext(ctx, "booking submission failed", "error", err, "error_kind", ErrorKind(err))
		case !verdict.OK():
			logger.InfoContext(ctx, "booking submission not eligible", "reason", string(verdict.Reason), "code", verdict.Code)
		default:
			logger.With("booking_id", booking.ID).InfoContext(ctx, "booking submitted")
		}
	}()

	if spaceID == "" {
		vErr := &ValidationError{}
		vErr.add("space_id", "space is required")
		err = vErr
		return
	}

	w.mu.Lock()
	w.recomputeLocked()
	verdict = w.verdict
	t := w.ticketLocked()
	w.mu.Unlock()

	if !verdict.OK() {
		return
	}

	ctx, stop := w.scoped(ctx)
	defer stop()

	err = w.session.Do(ctx, func(ctx context.Context, target Target) error {
		if err := w.api.Precheck(ctx, target, PrecheckRequest{LocationID: t.locationID, Enter: t.enter, Leave: t.leave}); err != nil {
			return err
		}
		var createErr error
		booking, createErr = w.api.CreateBooking(ctx, target, BookingRequest{SpaceID: spaceID, Enter: t.enter, Leave: t.leave})
		return createErr
	})

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		err = nil
		verdict = eligibility.VerdictForCode(backendErr.Code)
		w.mu.Lock()
		if w.matchesLocked(t) {
			w.verdict = verdict
		}
		w.mu.Unlock()
		return
	}
	if err != nil {
		return
	}

	if refreshErr := w.RefreshBookingCount(ctx); refreshErr != nil {
		logger.WarnContext(ctx, "booking count refresh after submission failed", "error", refreshErr, "error_kind", ErrorKind(refreshErr))
	}
	return
}

// CancelBooking deletes a booking and refreshes the booking count.
func (w *BookingWindow) CancelBooking(ctx context.Context, bookingID string) (err error) {
	bookingID = strings.TrimSpace(bookingID)
	logger := w.loggerWith(ctx, "CancelBooking", "booking_id", bookingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "booking cancellation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking cancelled")
	}()

	if bookingID == "" {
		vErr := &ValidationError{}
		vErr.add("booking_id", "booking id is required")
		err = vErr
		return
	}

	ctx, stop := w.scoped(ctx)
	defer stop()

	if err = w.session.Do(ctx, func(ctx context.Context, target Target) error {
		return w.api.DeleteBooking(ctx, target, bookingID)
	}); err != nil {
		return
	}
	if refreshErr := w.RefreshBookingCount(ctx); refreshErr != nil {
		logger.WarnContext(ctx, "booking count refresh after cancellation failed", "error", refreshErr, "error_kind", ErrorKind(refreshErr))
	}
	return
}

// Locations lists bookable locations, served from a short-lived cache.
func (w *BookingWindow) Locations(ctx context.Context) ([]Location, error) {
	if cached, ok := w.locations.list(); ok {
		return cached, nil
	}
	var list []Location
	err := w.session.Do(ctx, func(ctx context.Context, target Target) error {
		var callErr error
		list, callErr = w.api.ListLocations(ctx, target)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	w.locations.storeList(list)
	return list, nil
}

// Location resolves a single location, served from a short-lived cache.
func (w *BookingWindow) Location(ctx context.Context, locationID string) (Location, error) {
	if cached, ok := w.locations.location(locationID); ok {
		return cached, nil
	}
	var loc Location
	err := w.session.Do(ctx, func(ctx context.Context, target Target) error {
		var callErr error
		loc, callErr = w.api.GetLocation(ctx, target, locationID)
		return callErr
	})
	if err != nil {
		return Location{}, fmt.Errorf("get location %s: %w", locationID, err)
	}
	w.locations.storeLocation(loc)
	return loc, nil
}

// onSessionChanged adopts the new session's policy. Any other session
// invalidates in-flight responses and the known booking count.
func (w *BookingWindow) onSessionChanged(s Session) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || s.State == StateRestoring {
		return
	}
	if s.Authenticated() && s.Policy == w.policy {
		return
	}
	w.epoch++
	w.policy = s.Policy
	if !s.Authenticated() {
		w.count = 0
		w.spaces = nil
		w.locations.invalidate()
	}
	w.recomputeLocked()
}

// onCredentialsRefreshed re-derives eligibility and reloads the booking count
// under the new credentials. At most one follow-up reload runs at a time.
func (w *BookingWindow) onCredentialsRefreshed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.recomputeLocked()
	if w.followUp {
		return
	}
	w.followUp = true
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		defer func() {
			w.mu.Lock()
			w.followUp = false
			w.mu.Unlock()
		}()
		if err := w.RefreshBookingCount(w.lifecycle); err != nil && !errors.Is(err, context.Canceled) {
			w.loggerWith(w.lifecycle, "RefreshBookingCount").WarnContext(w.lifecycle, "booking count refresh after credential refresh failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()
}

// wait blocks until background refreshes started so far have finished.
func (w *BookingWindow) wait() {
	w.pending.Wait()
}
