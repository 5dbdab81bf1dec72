/*
Package booking is the calendar event scheduling and reservation engine.

PURPOSE:
  Owns every rule that must hold regardless of the transport in front of it:
  no event is over-booked, recurring events expand deterministically, a
  reservation reserves a seat and debits credits as one unit of work, and
  cancellation only happens inside the allowed window.

KEY CONCEPTS IN THIS FILE (types.go):
  - Calendar / Location: named collections of events
  - Event: a bookable, time-bounded occurrence with a seat counter
  - RecurrenceRule: weekdays + inclusive end date for series generation
  - Reservation: one user holding one seat of one event
  - User: role, credit balance and discount eligibility
  - CreditTransaction: append-only record of every balance change

INVARIANTS:
  1. 0 <= Event.SpacesAvailable <= Event.MaximumCapacity
  2. SpacesAvailable = MaximumCapacity - active reservations of the event
  3. 0 <= User.Balance, with input amounts capped at MaxCredits
  4. At most one active reservation per (event, owner)

SEE ALSO:
  - capacity.go: seat counter rules
  - balance.go: credit ledger rules
  - reservation.go: the create/cancel state machine
  - recurrence.go: series expansion
*/
package booking

import (
	"fmt"
	"time"
)

// =============================================================================
// CREDITS
// =============================================================================

// Credits is an integer amount of prepaid credit (minor units). There is no
// fractional arithmetic anywhere in the engine.
type Credits int64

// MaxCredits bounds every balance and price set from input. Refunds can
// then never overflow a balance.
const MaxCredits Credits = 1_000_000_000_000

// checkCredits rejects amounts outside [0, MaxCredits].
func checkCredits(field string, c Credits) error {
	if c < 0 || c > MaxCredits {
		return fmt.Errorf("%s %d outside [0, %d]: %w", field, c, MaxCredits, ErrInvalidAmount)
	}
	return nil
}

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleGuest Role = "GUEST"
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole maps unknown or empty values to GUEST.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s)
	default:
		return RoleGuest
	}
}

// Caller is the identity an operation runs on behalf of. It is produced by
// the authentication collaborator; the engine only reads it.
type Caller struct {
	UserID string
	Role   Role
}

// Guest is the anonymous caller.
var Guest = Caller{Role: RoleGuest}

// =============================================================================
// LOCATION / CALENDAR
// =============================================================================

type Location struct {
	ID   string
	Name string
}

type Calendar struct {
	ID         string
	Name       string
	LocationID string
	Thumbnail  []byte

	// Display bounds derived from the calendar's events on read.
	MinTime TimeOfDay
	MaxTime TimeOfDay

	CreatedAt time.Time
}

// =============================================================================
// EVENT
// =============================================================================

type Event struct {
	ID          string
	CalendarID  string
	Title       string
	Description string

	Date      Date
	StartTime TimeOfDay
	EndTime   TimeOfDay

	Price         Credits
	DiscountPrice Credits

	MaximumCapacity int
	SpacesAvailable int

	// Recurrence is the rule the event was generated from, copied into every
	// sibling. SeriesID is shared by all siblings; empty for single events.
	Recurrence *RecurrenceRule
	SeriesID   string

	CreatedAt time.Time
}

// StartsAt returns the start instant of the event in loc.
func (e *Event) StartsAt(loc *time.Location) time.Time { return e.StartTime.On(e.Date, loc) }

// EndsAt returns the end instant of the event in loc.
func (e *Event) EndsAt(loc *time.Location) time.Time { return e.EndTime.On(e.Date, loc) }

// HasStarted reports whether the start instant is not strictly after now.
func (e *Event) HasStarted(now time.Time, loc *time.Location) bool {
	return !e.StartsAt(loc).After(now)
}

// Reserved returns the number of seats taken.
func (e *Event) Reserved() int { return e.MaximumCapacity - e.SpacesAvailable }

// PriceFor returns the price charged for a reservation with or without the
// multisport discount.
func (e *Event) PriceFor(discountApplied bool) Credits {
	if discountApplied {
		return e.DiscountPrice
	}
	return e.Price
}

// Overlaps reports whether both events take place on the same date with
// intersecting [start, end) intervals.
func (e *Event) Overlaps(o *Event) bool {
	return e.Date == o.Date && e.StartTime < o.EndTime && o.StartTime < e.EndTime
}

// RecurrenceRule repeats a seed event on the given weekdays up to and
// including Until.
type RecurrenceRule struct {
	Weekdays []time.Weekday
	Until    Date
}

// Includes reports whether wd is one of the rule's weekdays.
func (r *RecurrenceRule) Includes(wd time.Weekday) bool {
	for _, w := range r.Weekdays {
		if w == wd {
			return true
		}
	}
	return false
}

// =============================================================================
// RESERVATION
// =============================================================================

type Reservation struct {
	ID              string
	EventID         string
	OwnerID         string
	DiscountApplied bool
	CreatedAt       time.Time
}

// ReservationFilter selects reservations; zero fields do not filter.
type ReservationFilter struct {
	From       *Date // event date >= From
	CalendarID string
	OwnerID    string
	EventID    string
}

// =============================================================================
// USER
// =============================================================================

type User struct {
	ID               string
	Email            string
	Name             string
	Role             Role
	Balance          Credits
	HasDailyDiscount bool
	Enabled          bool
	CreatedAt        time.Time
}

// =============================================================================
// CREDIT TRANSACTION - Append-only record of a balance change
// =============================================================================

type CreditTxType string

const (
	CreditDebit      CreditTxType = "debit"      // Reservation paid
	CreditRefund     CreditTxType = "refund"     // Reservation cancelled
	CreditAdjustment CreditTxType = "adjustment" // Admin top-up or correction
)

type CreditTransaction struct {
	ID             string
	UserID         string
	Delta          Credits
	BalanceAfter   Credits
	Type           CreditTxType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	CreatedBy      string
	CreatedAt      time.Time
}

// EventFilter selects events; zero fields do not filter.
type EventFilter struct {
	CalendarID string
	SeriesID   string
	From       *Date
	To         *Date
}

// CalendarFilter selects calendars by case-insensitive name substring.
type CalendarFilter struct {
	Fulltext string
}
