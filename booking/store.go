/*
store.go - Persistence interface for calendars, events, reservations and users

PURPOSE:
  Defines the interface between the reservation rules and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:   Reads and writes of every entity
  TxStore: Store plus the transactional boundary (WithTx)

TRANSACTIONS:
  Every rule that reads a counter and then writes it (seats, balance) runs
  inside WithTx and uses the Store handed to fn. LockEvent and LockUser take
  a row lock where the backend has one (SELECT ... FOR UPDATE on
  PostgreSQL); backends that serialize whole transactions return the row.

NOT FOUND:
  Get/Lock methods return a *NotFoundError (errors.Is ErrNotFound) when the
  row does not exist.

CREDIT LOG:
  AppendCredit is append-only. A repeated idempotency key is rejected with
  ErrDuplicateIdempotencyKey.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL
  - booking/store: In-memory for testing
*/
package booking

import "context"

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// Locations
	CreateLocation(ctx context.Context, loc Location) error
	GetLocation(ctx context.Context, id string) (Location, error)
	ListLocations(ctx context.Context) ([]Location, error)

	// Calendars. DeleteCalendar removes the calendar with all its events and
	// their reservations.
	CreateCalendar(ctx context.Context, cal Calendar) error
	UpdateCalendar(ctx context.Context, cal Calendar) error
	GetCalendar(ctx context.Context, id string) (Calendar, error)
	ListCalendars(ctx context.Context, filter CalendarFilter) ([]Calendar, error)
	DeleteCalendar(ctx context.Context, id string) error

	// Events, ordered by date then start time.
	InsertEvents(ctx context.Context, events []Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	LockEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	UpdateEvent(ctx context.Context, ev Event) error
	DeleteEvent(ctx context.Context, id string) error

	// Reservations. ListReservations orders by event date then start time.
	InsertReservation(ctx context.Context, r Reservation) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	FindReservation(ctx context.Context, eventID, ownerID string) (Reservation, bool, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	DeleteReservation(ctx context.Context, id string) error

	// HasReservationOn reports whether owner holds a reservation for an event
	// on date other than exceptEventID.
	HasReservationOn(ctx context.Context, ownerID string, date Date, exceptEventID string) (bool, error)

	// Users. SaveUser inserts a new user with its balance, or updates the
	// profile fields of an existing one; balance changes go through
	// SetBalance only.
	SaveUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	LockUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetBalance(ctx context.Context, userID string, balance Credits) error

	// Credit log
	AppendCredit(ctx context.Context, tx CreditTransaction) error
	CreditHistory(ctx context.Context, userID string) ([]CreditTransaction, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
