// Package store provides an in-memory booking.TxStore.
package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/xstejsk/bp-backup/booking"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every table in maps guarded by one mutex. Values are stored
// and returned by copy so callers never alias internal state.
type Memory struct {
	mu sync.Mutex
	data
}

type data struct {
	locations    map[string]booking.Location
	calendars    map[string]booking.Calendar
	events       map[string]booking.Event
	reservations map[string]booking.Reservation
	users        map[string]booking.User
	credits      []booking.CreditTransaction
	idempotency  map[string]bool
}

var (
	_ booking.TxStore = (*Memory)(nil)
	_ booking.Store   = (*txView)(nil)
)

func NewMemory() *Memory {
	return &Memory{data: data{
		locations:    make(map[string]booking.Location),
		calendars:    make(map[string]booking.Calendar),
		events:       make(map[string]booking.Event),
		reservations: make(map[string]booking.Reservation),
		users:        make(map[string]booking.User),
		idempotency:  make(map[string]bool),
	}}
}

// locked runs fn on the data under the store mutex.
func (m *Memory) locked(fn func(d *data) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&m.data)
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&txView{d: &m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (d *data) clone() data {
	return data{
		locations:    maps.Clone(d.locations),
		calendars:    maps.Clone(d.calendars),
		events:       maps.Clone(d.events),
		reservations: maps.Clone(d.reservations),
		users:        maps.Clone(d.users),
		credits:      slices.Clone(d.credits),
		idempotency:  maps.Clone(d.idempotency),
	}
}

// =============================================================================
// STORE METHODS - Each takes the lock and delegates to the data
// =============================================================================

func (m *Memory) CreateLocation(ctx context.Context, loc booking.Location) error {
	return m.locked(func(d *data) error { return d.createLocation(loc) })
}

func (m *Memory) GetLocation(ctx context.Context, id string) (loc booking.Location, err error) {
	err = m.locked(func(d *data) error { loc, err = d.getLocation(id); return err })
	return loc, err
}

func (m *Memory) ListLocations(ctx context.Context) (out []booking.Location, err error) {
	err = m.locked(func(d *data) error { out = d.listLocations(); return nil })
	return out, err
}

func (m *Memory) CreateCalendar(ctx context.Context, cal booking.Calendar) error {
	return m.locked(func(d *data) error { return d.createCalendar(cal) })
}

func (m *Memory) UpdateCalendar(ctx context.Context, cal booking.Calendar) error {
	return m.locked(func(d *data) error { return d.updateCalendar(cal) })
}

func (m *Memory) GetCalendar(ctx context.Context, id string) (cal booking.Calendar, err error) {
	err = m.locked(func(d *data) error { cal, err = d.getCalendar(id); return err })
	return cal, err
}

func (m *Memory) ListCalendars(ctx context.Context, f booking.CalendarFilter) (out []booking.Calendar, err error) {
	err = m.locked(func(d *data) error { out = d.listCalendars(f); return nil })
	return out, err
}

func (m *Memory) DeleteCalendar(ctx context.Context, id string) error {
	return m.locked(func(d *data) error { return d.deleteCalendar(id) })
}

func (m *Memory) InsertEvents(ctx context.Context, events []booking.Event) error {
	return m.locked(func(d *data) error { return d.insertEvents(events) })
}

func (m *Memory) GetEvent(ctx context.Context, id string) (ev booking.Event, err error) {
	err = m.locked(func(d *data) error { ev, err = d.getEvent(id); return err })
	return ev, err
}

func (m *Memory) LockEvent(ctx context.Context, id string) (booking.Event, error) {
	return m.GetEvent(ctx, id)
}

func (m *Memory) ListEvents(ctx context.Context, f booking.EventFilter) (out []booking.Event, err error) {
	err = m.locked(func(d *data) error { out = d.listEvents(f); return nil })
	return out, err
}

func (m *Memory) UpdateEvent(ctx context.Context, ev booking.Event) error {
	return m.locked(func(d *data) error { return d.updateEvent(ev) })
}

func (m *Memory) DeleteEvent(ctx context.Context, id string) error {
	return m.locked(func(d *data) error { return d.deleteEvent(id) })
}

func (m *Memory) InsertReservation(ctx context.Context, r booking.Reservation) error {
	return m.locked(func(d *data) error { return d.insertReservation(r) })
}

func (m *Memory) GetReservation(ctx context.Context, id string) (r booking.Reservation, err error) {
	err = m.locked(func(d *data) error { r, err = d.getReservation(id); return err })
	return r, err
}

func (m *Memory) FindReservation(ctx context.Context, eventID, ownerID string) (r booking.Reservation, ok bool, err error) {
	err = m.locked(func(d *data) error { r, ok = d.findReservation(eventID, ownerID); return nil })
	return r, ok, err
}

func (m *Memory) ListReservations(ctx context.Context, f booking.ReservationFilter) (out []booking.Reservation, err error) {
	err = m.locked(func(d *data) error { out = d.listReservations(f); return nil })
	return out, err
}

func (m *Memory) DeleteReservation(ctx context.Context, id string) error {
	return m.locked(func(d *data) error { return d.deleteReservation(id) })
}

func (m *Memory) HasReservationOn(ctx context.Context, ownerID string, date booking.Date, exceptEventID string) (ok bool, err error) {
	err = m.locked(func(d *data) error { ok = d.hasReservationOn(ownerID, date, exceptEventID); return nil })
	return ok, err
}

func (m *Memory) SaveUser(ctx context.Context, u booking.User) error {
	return m.locked(func(d *data) error { d.saveUser(u); return nil })
}

func (m *Memory) GetUser(ctx context.Context, id string) (u booking.User, err error) {
	err = m.locked(func(d *data) error { u, err = d.getUser(id); return err })
	return u, err
}

func (m *Memory) LockUser(ctx context.Context, id string) (booking.User, error) {
	return m.GetUser(ctx, id)
}

func (m *Memory) ListUsers(ctx context.Context) (out []booking.User, err error) {
	err = m.locked(func(d *data) error { out = d.listUsers(); return nil })
	return out, err
}

func (m *Memory) SetBalance(ctx context.Context, userID string, balance booking.Credits) error {
	return m.locked(func(d *data) error { return d.setBalance(userID, balance) })
}

func (m *Memory) AppendCredit(ctx context.Context, tx booking.CreditTransaction) error {
	return m.locked(func(d *data) error { return d.appendCredit(tx) })
}

func (m *Memory) CreditHistory(ctx context.Context, userID string) (out []booking.CreditTransaction, err error) {
	err = m.locked(func(d *data) error { out = d.creditHistory(userID); return nil })
	return out, err
}

// =============================================================================
// TRANSACTIONAL VIEW - Used inside WithTx, where the lock is already held
// =============================================================================

type txView struct {
	d *data
}

func (v *txView) CreateLocation(_ context.Context, loc booking.Location) error {
	return v.d.createLocation(loc)
}
func (v *txView) GetLocation(_ context.Context, id string) (booking.Location, error) {
	return v.d.getLocation(id)
}
func (v *txView) ListLocations(context.Context) ([]booking.Location, error) {
	return v.d.listLocations(), nil
}
func (v *txView) CreateCalendar(_ context.Context, cal booking.Calendar) error {
	return v.d.createCalendar(cal)
}
func (v *txView) UpdateCalendar(_ context.Context, cal booking.Calendar) error {
	return v.d.updateCalendar(cal)
}
func (v *txView) GetCalendar(_ context.Context, id string) (booking.Calendar, error) {
	return v.d.getCalendar(id)
}
func (v *txView) ListCalendars(_ context.Context, f booking.CalendarFilter) ([]booking.Calendar, error) {
	return v.d.listCalendars(f), nil
}
func (v *txView) DeleteCalendar(_ context.Context, id string) error { return v.d.deleteCalendar(id) }
func (v *txView) InsertEvents(_ context.Context, events []booking.Event) error {
	return v.d.insertEvents(events)
}
func (v *txView) GetEvent(_ context.Context, id string) (booking.Event, error) {
	return v.d.getEvent(id)
}
func (v *txView) LockEvent(_ context.Context, id string) (booking.Event, error) {
	return v.d.getEvent(id)
}
func (v *txView) ListEvents(_ context.Context, f booking.EventFilter) ([]booking.Event, error) {
	return v.d.listEvents(f), nil
}
func (v *txView) UpdateEvent(_ context.Context, ev booking.Event) error { return v.d.updateEvent(ev) }
func (v *txView) DeleteEvent(_ context.Context, id string) error      { return v.d.deleteEvent(id) }
func (v *txView) InsertReservation(_ context.Context, r booking.Reservation) error {
	return v.d.insertReservation(r)
}
func (v *txView) GetReservation(_ context.Context, id string) (booking.Reservation, error) {
	return v.d.getReservation(id)
}
func (v *txView) FindReservation(_ context.Context, eventID, ownerID string) (booking.Reservation, bool, error) {
	r, ok := v.d.findReservation(eventID, ownerID)
	return r, ok, nil
}
func (v *txView) ListReservations(_ context.Context, f booking.ReservationFilter) ([]booking.Reservation, error) {
	return v.d.listReservations(f), nil
}
func (v *txView) DeleteReservation(_ context.Context, id string) error {
	return v.d.deleteReservation(id)
}
func (v *txView) HasReservationOn(_ context.Context, ownerID string, date booking.Date, exceptEventID string) (bool, error) {
	return v.d.hasReservationOn(ownerID, date, exceptEventID), nil
}
func (v *txView) SaveUser(_ context.Context, u booking.User) error { v.d.saveUser(u); return nil }
func (v *txView) GetUser(_ context.Context, id string) (booking.User, error) {
	return v.d.getUser(id)
}
func (v *txView) LockUser(_ context.Context, id string) (booking.User, error) {
	return v.d.getUser(id)
}
func (v *txView) ListUsers(context.Context) ([]booking.User, error) { return v.d.listUsers(), nil }
func (v *txView) SetBalance(_ context.Context, userID string, balance booking.Credits) error {
	return v.d.setBalance(userID, balance)
}
func (v *txView) AppendCredit(_ context.Context, tx booking.CreditTransaction) error {
	return v.d.appendCredit(tx)
}
func (v *txView) CreditHistory(_ context.Context, userID string) ([]booking.CreditTransaction, error) {
	return v.d.creditHistory(userID), nil
}

// =============================================================================
// DATA OPERATIONS - Caller holds the lock
// =============================================================================

func notFound(kind, id string) error { return &booking.NotFoundError{Kind: kind, ID: id} }

func (d *data) createLocation(loc booking.Location) error {
	d.locations[loc.ID] = loc
	return nil
}

func (d *data) getLocation(id string) (booking.Location, error) {
	loc, ok := d.locations[id]
	if !ok {
		return booking.Location{}, notFound("location", id)
	}
	return loc, nil
}

func (d *data) listLocations() []booking.Location {
	out := slices.Collect(maps.Values(d.locations))
	slices.SortFunc(out, func(a, b booking.Location) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func (d *data) createCalendar(cal booking.Calendar) error {
	cal.Thumbnail = slices.Clone(cal.Thumbnail)
	d.calendars[cal.ID] = cal
	return nil
}

func (d *data) updateCalendar(cal booking.Calendar) error {
	if _, ok := d.calendars[cal.ID]; !ok {
		return notFound("calendar", cal.ID)
	}
	return d.createCalendar(cal)
}

func (d *data) getCalendar(id string) (booking.Calendar, error) {
	cal, ok := d.calendars[id]
	if !ok {
		return booking.Calendar{}, notFound("calendar", id)
	}
	cal.Thumbnail = slices.Clone(cal.Thumbnail)
	return cal, nil
}

func (d *data) listCalendars(f booking.CalendarFilter) []booking.Calendar {
	needle := strings.ToLower(f.Fulltext)
	var out []booking.Calendar
	for _, cal := range d.calendars {
		if needle != "" && !strings.Contains(strings.ToLower(cal.Name), needle) {
			continue
		}
		cal.Thumbnail = slices.Clone(cal.Thumbnail)
		out = append(out, cal)
	}
	slices.SortFunc(out, func(a, b booking.Calendar) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func (d *data) deleteCalendar(id string) error {
	if _, ok := d.calendars[id]; !ok {
		return notFound("calendar", id)
	}
	for evID, ev := range d.events {
		if ev.CalendarID == id {
			d.dropReservationsOf(evID)
			delete(d.events, evID)
		}
	}
	delete(d.calendars, id)
	return nil
}

func (d *data) insertEvents(events []booking.Event) error {
	for _, ev := range events {
		if _, ok := d.calendars[ev.CalendarID]; !ok {
			return notFound("calendar", ev.CalendarID)
		}
	}
	for _, ev := range events {
		d.events[ev.ID] = copyEvent(ev)
	}
	return nil
}

func (d *data) getEvent(id string) (booking.Event, error) {
	ev, ok := d.events[id]
	if !ok {
		return booking.Event{}, notFound("event", id)
	}
	return copyEvent(ev), nil
}

func (d *data) listEvents(f booking.EventFilter) []booking.Event {
	var out []booking.Event
	for _, ev := range d.events {
		if f.CalendarID != "" && ev.CalendarID != f.CalendarID {
			continue
		}
		if f.SeriesID != "" && ev.SeriesID != f.SeriesID {
			continue
		}
		if f.From != nil && ev.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && ev.Date.After(*f.To) {
			continue
		}
		out = append(out, copyEvent(ev))
	}
	slices.SortFunc(out, compareEvents)
	return out
}

func (d *data) updateEvent(ev booking.Event) error {
	if _, ok := d.events[ev.ID]; !ok {
		return notFound("event", ev.ID)
	}
	d.events[ev.ID] = copyEvent(ev)
	return nil
}

func (d *data) deleteEvent(id string) error {
	if _, ok := d.events[id]; !ok {
		return notFound("event", id)
	}
	d.dropReservationsOf(id)
	delete(d.events, id)
	return nil
}

func (d *data) dropReservationsOf(eventID string) {
	for id, r := range d.reservations {
		if r.EventID == eventID {
			delete(d.reservations, id)
		}
	}
}

func (d *data) insertReservation(r booking.Reservation) error {
	if _, ok := d.events[r.EventID]; !ok {
		return notFound("event", r.EventID)
	}
	if _, ok := d.findReservation(r.EventID, r.OwnerID); ok {
		return booking.ErrAlreadyReserved
	}
	d.reservations[r.ID] = r
	return nil
}

func (d *data) getReservation(id string) (booking.Reservation, error) {
	r, ok := d.reservations[id]
	if !ok {
		return booking.Reservation{}, notFound("reservation", id)
	}
	return r, nil
}

func (d *data) findReservation(eventID, ownerID string) (booking.Reservation, bool) {
	for _, r := range d.reservations {
		if r.EventID == eventID && r.OwnerID == ownerID {
			return r, true
		}
	}
	return booking.Reservation{}, false
}

func (d *data) listReservations(f booking.ReservationFilter) []booking.Reservation {
	var out []booking.Reservation
	for _, r := range d.reservations {
		ev := d.events[r.EventID]
		if f.OwnerID != "" && r.OwnerID != f.OwnerID {
			continue
		}
		if f.EventID != "" && r.EventID != f.EventID {
			continue
		}
		if f.CalendarID != "" && ev.CalendarID != f.CalendarID {
			continue
		}
		if f.From != nil && ev.Date.Before(*f.From) {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b booking.Reservation) int {
		ea, eb := d.events[a.EventID], d.events[b.EventID]
		return cmp.Or(compareEvents(ea, eb), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (d *data) deleteReservation(id string) error {
	if _, ok := d.reservations[id]; !ok {
		return notFound("reservation", id)
	}
	delete(d.reservations, id)
	return nil
}

func (d *data) hasReservationOn(ownerID string, date booking.Date, exceptEventID string) bool {
	for _, r := range d.reservations {
		if r.OwnerID != ownerID || r.EventID == exceptEventID {
			continue
		}
		if d.events[r.EventID].Date == date {
			return true
		}
	}
	return false
}

// saveUser inserts u, or updates its profile keeping the stored balance.
func (d *data) saveUser(u booking.User) {
	if existing, ok := d.users[u.ID]; ok {
		u.Balance = existing.Balance
		u.CreatedAt = existing.CreatedAt
	}
	d.users[u.ID] = u
}

func (d *data) getUser(id string) (booking.User, error) {
	u, ok := d.users[id]
	if !ok {
		return booking.User{}, notFound("user", id)
	}
	return u, nil
}

func (d *data) listUsers() []booking.User {
	out := slices.Collect(maps.Values(d.users))
	slices.SortFunc(out, func(a, b booking.User) int { return cmp.Compare(a.Email, b.Email) })
	return out
}

func (d *data) setBalance(userID string, balance booking.Credits) error {
	u, ok := d.users[userID]
	if !ok {
		return notFound("user", userID)
	}
	if balance < 0 {
		return fmt.Errorf("balance of user %s would be %d: %w", userID, balance, booking.ErrInvalidAmount)
	}
	u.Balance = balance
	d.users[userID] = u
	return nil
}

func (d *data) appendCredit(tx booking.CreditTransaction) error {
	if tx.IdempotencyKey != "" && d.idempotency[tx.IdempotencyKey] {
		return booking.ErrDuplicateIdempotencyKey
	}
	d.credits = append(d.credits, tx)
	if tx.IdempotencyKey != "" {
		d.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (d *data) creditHistory(userID string) []booking.CreditTransaction {
	var out []booking.CreditTransaction
	for _, tx := range d.credits {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out
}

func compareEvents(a, b booking.Event) int {
	return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.StartTime, b.StartTime), cmp.Compare(a.ID, b.ID))
}

func copyEvent(ev booking.Event) booking.Event {
	if ev.Recurrence != nil {
		r := *ev.Recurrence
		r.Weekdays = slices.Clone(r.Weekdays)
		ev.Recurrence = &r
	}
	return ev
}
