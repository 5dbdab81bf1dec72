package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeZone is where event dates and times are interpreted unless
// Options.Location says otherwise.
const DefaultTimeZone = "Europe/Prague"

// Options configures the services built by New. Zero values get defaults.
type Options struct {
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	// Location resolves event date+time into instants. Defaults to
	// Europe/Prague, falling back to UTC if the zone database is missing.
	Location *time.Location
	Logger   *slog.Logger
	Notifier Notifier
	// NewID generates entity ids. Defaults to random UUIDs.
	NewID func() string

	// DiscountFirstReservationOfDayOnly limits the multisport discount to
	// the first reservation a user holds on a given date.
	DiscountFirstReservationOfDayOnly bool
}

// Engine bundles every service over one store.
type Engine struct {
	Capacity     *CapacityLedger
	Balance      *BalanceLedger
	Reservations *ReservationService
	Events       *EventService
	Calendars    *CalendarService
	Accounts     *AccountService
	Audit        *Auditor

	env env
}

// Today is the current civil date in the engine's time zone.
func (e *Engine) Today() Date { return e.env.today() }

// New wires the services over st.
func New(st TxStore, opts Options) *Engine {
	env := newEnv(opts)
	capacity := &CapacityLedger{env: env}
	balance := &BalanceLedger{env: env}
	return &Engine{
		Capacity: capacity,
		Balance:  balance,
		Reservations: &ReservationService{
			env:                env,
			store:              st,
			capacity:           capacity,
			balance:            balance,
			notifier:           opts.Notifier,
			discountFirstOfDay: opts.DiscountFirstReservationOfDayOnly,
		},
		Events:    &EventService{env: env, store: st, capacity: capacity},
		Calendars: &CalendarService{env: env, store: st},
		Accounts:  &AccountService{env: env, store: st, balance: balance},
		Audit:     &Auditor{env: env, store: st},
		env:       env,
	}
}

// env is the clock, zone, logger and id source shared by the services.
type env struct {
	now   func() time.Time
	loc   *time.Location
	log   *slog.Logger
	newID func() string
}

func newEnv(opts Options) env {
	e := env{now: opts.Now, loc: opts.Location, log: opts.Logger, newID: opts.NewID}
	if e.now == nil {
		e.now = time.Now
	}
	if e.loc == nil {
		loc, err := time.LoadLocation(DefaultTimeZone)
		if err != nil {
			loc = time.UTC
		}
		e.loc = loc
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.NewString() }
	}
	return e
}

// today is the current civil date in the service zone.
func (e env) today() Date { return Today(e.now(), e.loc) }

// =============================================================================
// NOTIFIER
// =============================================================================

type NotificationKind string

const (
	NotifyReservationCreated   NotificationKind = "reservation.created"
	NotifyReservationCancelled NotificationKind = "reservation.cancelled"
)

// Notification is published after a reservation transaction commits.
type Notification struct {
	Kind        NotificationKind
	Reservation Reservation
	Event       Event
	Balance     Credits
	At          time.Time
}

// Notifier delivers notifications. Failures are logged by the caller and
// never undo the committed change.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
