package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/example/seat-booking-client/internal/application"
	"github.com/example/seat-booking-client/internal/config"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// timeLayout is the accepted local form of -enter and -leave.
const timeLayout = "2006-01-02T15:04"

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"login", "sign in with a password or a provider verification id", runLogin},
	{"status", "show the restored session and booking policy", runStatus},
	{"signout", "clear stored credentials", runSignOut},
	{"locations", "list bookable locations", runLocations},
	{"search", "show the booking window, its verdict and free spaces", runSearch},
	{"book", "book a space for the booking window", runBook},
	{"bookings", "list your bookings", runBookings},
	{"cancel", "cancel a booking", runCancel},
}

// errUsage marks a command line the user has to fix.
var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, env environment) int {
	global := flag.NewFlagSet("seatctl", flag.ContinueOnError)
	global.SetOutput(env.stderr)
	configPath := global.String("config", "", "path to a YAML configuration file")
	global.Usage = func() { printUsage(env.stderr) }
	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(env.stderr)
		return exitUsage
	}

	cmd, ok := findCommand(rest[0])
	if !ok {
		fmt.Fprintf(env.stderr, "seatctl: unknown command %q\n", rest[0])
		printUsage(env.stderr)
		return exitUsage
	}

	envFile := env.envFile
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := config.LoadFrom(*configPath, envFile, env.lookup)
	if err != nil {
		fmt.Fprintf(env.stderr, "seatctl: %v\n", err)
		return exitError
	}

	a, err := newApp(ctx, cfg, env)
	if err != nil {
		fmt.Fprintf(env.stderr, "seatctl: %v\n", err)
		return exitError
	}

	err = cmd.run(ctx, a, rest[1:])
	if err != nil {
		a.logger.DebugContext(ctx, "command failed", "command", cmd.name, "error", err, "error_kind", application.ErrorKind(err))
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) && application.ErrorKind(err) != "validation" {
			a.reporter.Capture(err, cmd.name, application.ErrorKind(err))
		}
	}
	if closeErr := a.close(); closeErr != nil {
		a.logger.WarnContext(ctx, "failed to release resources", "error", closeErr)
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return exitUsage
	default:
		fmt.Fprintf(env.stderr, "seatctl: %s\n", describeError(err))
		return exitError
	}
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: seatctl [-config file] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
}

// describeError turns an error into a line for the terminal.
func describeError(err error) string {
	var vErr *application.ValidationError
	if errors.As(err, &vErr) && vErr.HasErrors() {
		fields := make([]string, 0, len(vErr.FieldErrors))
		for field, msg := range vErr.FieldErrors {
			fields = append(fields, field+": "+msg)
		}
		sort.Strings(fields)
		return "invalid input: " + strings.Join(fields, "; ")
	}
	switch {
	case errors.Is(err, application.ErrNotAuthenticated):
		return "not signed in; run 'seatctl login' first"
	case errors.Is(err, application.ErrSessionExpired):
		return "session expired; run 'seatctl login' again"
	case errors.Is(err, application.ErrInvalidCredentials):
		return "sign-in rejected: check email and password"
	case errors.Is(err, application.ErrForbidden):
		return "not permitted for this account"
	case errors.Is(err, application.ErrUnavailable):
		return "backend unavailable; try again later"
	}
	return err.Error()
}

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("seatctl "+name, flag.ContinueOnError)
	fs.SetOutput(a.env.stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return errUsage
	}
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "login")
	backendURL := fs.String("url", a.cfg.BackendURL, "backend base URL")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	passwordStdin := fs.Bool("password-stdin", false, "read the password from standard input")
	verifyID := fs.String("verify", "", "verification id from a completed provider sign-in")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *verifyID != "" {
		session, err := a.session.LoginWithProvider(ctx, *backendURL, *verifyID)
		if err != nil {
			return err
		}
		return printSignedIn(a, session)
	}

	preflight, err := a.session.Preflight(ctx, *backendURL, *email)
	if err != nil {
		return err
	}
	if !preflight.RequirePassword && len(preflight.AuthProviders) > 0 {
		fmt.Fprintf(a.env.stdout, "%s signs in through an identity provider:\n", preflight.Organization.Name)
		for _, provider := range preflight.AuthProviders {
			fmt.Fprintf(a.env.stdout, "  %s (%s)\n", provider.Name, provider.ID)
		}
		fmt.Fprintln(a.env.stdout, "Complete the sign-in in a browser, then run: seatctl login -verify <id>")
		return nil
	}

	secret := *password
	if *passwordStdin {
		line, err := bufio.NewReader(a.env.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	session, err := a.session.LoginWithPassword(ctx, *backendURL, *email, secret)
	if err != nil {
		return err
	}
	return printSignedIn(a, session)
}

func printSignedIn(a *app, session application.Session) error {
	fmt.Fprintf(a.env.stdout, "Signed in as %s at %s\n", session.Identity.Username, session.BackendURL)
	return nil
}

func runStatus(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet(a, "status"), args); err != nil {
		return err
	}
	session, err := a.session.Restore(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.env.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "state:\t%s\n", session.State)
	if session.BackendURL != "" {
		fmt.Fprintf(w, "backend:\t%s\n", session.BackendURL)
	}
	if session.Authenticated() {
		p := session.Policy
		fmt.Fprintf(w, "user:\t%s\n", session.Identity.Username)
		fmt.Fprintf(w, "max bookings:\t%d\n", p.MaxBookingsPerUser)
		fmt.Fprintf(w, "max days in advance:\t%d\n", p.MaxDaysInAdvance)
		fmt.Fprintf(w, "max duration (h):\t%d\n", p.MaxBookingDurationHours)
		fmt.Fprintf(w, "daily basis:\t%t\n", p.DailyBasisBooking)
		if p.DefaultTimezone != "" {
			fmt.Fprintf(w, "time zone:\t%s\n", p.DefaultTimezone)
		}
	}
	return w.Flush()
}

func runSignOut(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet(a, "signout"), args); err != nil {
		return err
	}
	if _, err := a.session.Restore(ctx); err != nil {
		return err
	}
	if err := a.session.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.env.stdout, "Signed out")
	return nil
}

func runLocations(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet(a, "locations"), args); err != nil {
		return err
	}
	if _, err := a.restore(ctx); err != nil {
		return err
	}
	locations, err := a.window.Locations(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.env.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, loc := range locations {
		fmt.Fprintf(w, "%s\t%s\n", loc.ID, loc.Name)
	}
	return w.Flush()
}

// windowFlags are shared by search and book.
type windowFlags struct {
	location string
	enter    string
	leave    string
}

func (f *windowFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.location, "location", "", "location id (default: last used or preferred)")
	fs.StringVar(&f.enter, "enter", "", "start, "+timeLayout+" in local time or RFC 3339")
	fs.StringVar(&f.leave, "leave", "", "end, "+timeLayout+" in local time or RFC 3339")
}

// prepareWindow initializes the booking window and applies the flags.
func prepareWindow(ctx context.Context, a *app, f windowFlags) error {
	if _, err := a.restore(ctx); err != nil {
		return err
	}
	if err := a.window.Initialize(ctx); err != nil {
		return err
	}

	if f.location != "" {
		if _, err := a.window.Location(ctx, f.location); err != nil {
			return err
		}
		a.window.SetLocation(ctx, f.location)
	}

	current := a.window.State().Window
	enter, leave := current.Enter, current.Leave
	loc := enter.Location()
	if f.enter != "" {
		t, err := parseTime(f.enter, loc)
		if err != nil {
			return err
		}
		leave = leave.Add(t.Sub(enter))
		enter = t
	}
	if f.leave != "" {
		t, err := parseTime(f.leave, loc)
		if err != nil {
			return err
		}
		leave = t
	}
	if f.enter != "" || f.leave != "" {
		a.window.SetInterval(enter, leave)
	}

	if err := a.window.RefreshAvailability(ctx); err != nil {
		a.logger.WarnContext(ctx, "availability unavailable", "error", err, "error_kind", application.ErrorKind(err))
	}
	return nil
}

func parseTime(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(timeLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid time %q, want %s", errUsage, value, timeLayout)
	}
	return t, nil
}

func printWindow(a *app) {
	state := a.window.State()
	verdict := state.Verdict
	w := tabwriter.NewWriter(a.env.stdout, 0, 4, 2, ' ', 0)
	location := state.Window.LocationID
	if location == "" {
		location = "-"
	}
	fmt.Fprintf(w, "location:\t%s\n", location)
	fmt.Fprintf(w, "enter:\t%s\n", state.Window.Enter.Format(timeLayout))
	fmt.Fprintf(w, "leave:\t%s\n", state.Window.Leave.Format(timeLayout))
	fmt.Fprintf(w, "bookings:\t%d/%d\n", state.BookingCount, state.Policy.MaxBookingsPerUser)
	if verdict.OK() {
		fmt.Fprintf(w, "status:\tbookable\n")
	} else {
		fmt.Fprintf(w, "status:\t%s\n", a.message(verdict, state.Policy))
	}
	_ = w.Flush()
}

func runSearch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "search")
	var f windowFlags
	f.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if err := prepareWindow(ctx, a, f); err != nil {
		return err
	}
	printWindow(a)

	spaces := a.window.State().Availability
	if len(spaces) == 0 {
		return nil
	}
	fmt.Fprintln(a.env.stdout)
	w := tabwriter.NewWriter(a.env.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SPACE\tNAME\tFREE")
	for _, space := range spaces {
		fmt.Fprintf(w, "%s\t%s\t%t\n", space.ID, space.Name, space.Available)
	}
	return w.Flush()
}

func runBook(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "book")
	var f windowFlags
	f.register(fs)
	spaceID := fs.String("space", "", "space id to book")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if err := prepareWindow(ctx, a, f); err != nil {
		return err
	}
	booking, verdict, err := a.window.Submit(ctx, *spaceID)
	if err != nil {
		return err
	}
	if !verdict.OK() {
		msg := a.message(verdict, a.window.State().Policy)
		return fmt.Errorf("%w: %s", application.ErrNotEligible, msg)
	}
	fmt.Fprintf(a.env.stdout, "Booked %s (%s) from %s to %s\n",
		booking.Space.ID, booking.ID,
		booking.Enter.In(a.window.State().Window.Enter.Location()).Format(timeLayout),
		booking.Leave.In(a.window.State().Window.Enter.Location()).Format(timeLayout),
	)
	return nil
}

func runBookings(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(newFlagSet(a, "bookings"), args); err != nil {
		return err
	}
	if _, err := a.restore(ctx); err != nil {
		return err
	}
	bookings, err := a.window.Bookings(ctx)
	if err != nil {
		return err
	}
	if len(bookings) == 0 {
		fmt.Fprintln(a.env.stdout, "No bookings")
		return nil
	}
	w := tabwriter.NewWriter(a.env.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSPACE\tENTER\tLEAVE")
	for _, b := range bookings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ID, b.Space.ID, b.Enter.Local().Format(timeLayout), b.Leave.Local().Format(timeLayout))
	}
	return w.Flush()
}

func runCancel(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "cancel")
	id := fs.String("id", "", "booking id to cancel")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if _, err := a.restore(ctx); err != nil {
		return err
	}
	if err := a.window.CancelBooking(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(a.env.stdout, "Cancelled %s\n", *id)
	return nil
}
