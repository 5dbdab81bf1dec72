package sqlstore_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xstejsk/bp-backup/booking"
	"github.com/xstejsk/bp-backup/store/sqlstore"
)

var admin = booking.Caller{UserID: "admin", Role: booking.RoleAdmin}

// newStores returns a SQLite in-memory store, plus a PostgreSQL store when
// RESERVATIONS_TEST_PG_DSN is set.
func newStores(t *testing.T) map[string]*sqlstore.Store {
	t.Helper()
	stores := map[string]*sqlstore.Store{}

	lite, err := sqlstore.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })
	stores["sqlite"] = lite

	if dsn := os.Getenv("RESERVATIONS_TEST_PG_DSN"); dsn != "" {
		pg, err := sqlstore.Open(sqlstore.DriverPostgres, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { pg.Close() })
		stores["postgres"] = pg
	}
	return stores
}

type env struct {
	ctx      context.Context
	store    *sqlstore.Store
	engine   *booking.Engine
	calendar booking.Calendar
	suffix   string
}

// setup seeds a calendar and an admin. Names carry a per-test suffix so
// runs against a shared PostgreSQL database do not collide.
func setup(t *testing.T, st *sqlstore.Store) *env {
	t.Helper()
	prague, err := time.LoadLocation("Europe/Prague")
	if err != nil {
		prague = time.UTC
	}
	now := time.Date(2026, time.October, 18, 10, 0, 0, 0, prague)
	e := &env{
		ctx:    context.Background(),
		store:  st,
		engine: booking.New(st, booking.Options{Now: func() time.Time { return now }, Location: prague}),
		suffix: time.Now().Format("150405.000000000"),
	}
	e.calendar, err = e.engine.Calendars.CreateCalendar(e.ctx, admin, booking.CalendarInput{Name: "Yoga " + e.suffix})
	require.NoError(t, err)
	_, err = e.engine.Accounts.SaveUser(e.ctx, admin, booking.UserInput{ID: "admin-" + e.suffix, Email: "admin@example.com", Role: booking.RoleAdmin})
	require.NoError(t, err)
	return e
}

func (e *env) user(t *testing.T, name string, balance booking.Credits) booking.Caller {
	t.Helper()
	id := name + "-" + e.suffix
	_, err := e.engine.Accounts.SaveUser(e.ctx, admin, booking.UserInput{
		ID: id, Email: name + "@example.com", Role: booking.RoleUser, Enabled: true, InitialBalance: balance,
	})
	require.NoError(t, err)
	return booking.Caller{UserID: id, Role: booking.RoleUser}
}

func (e *env) event(t *testing.T, date string, capacity int, price booking.Credits) booking.Event {
	t.Helper()
	events, err := e.engine.Events.CreateEvent(e.ctx, admin, e.calendar.ID, booking.EventInput{
		Title:           "Vinyasa",
		Date:            booking.MustParseDate(date),
		StartTime:       booking.MustParseTimeOfDay("18:00"),
		EndTime:         booking.MustParseTimeOfDay("19:00"),
		Price:           price,
		DiscountPrice:   price / 2,
		MaximumCapacity: capacity,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	return events[0]
}

func TestStore_ReserveAndCancel(t *testing.T) {
	for name, st := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN: a user with 100 credits and an event for 40
			e := setup(t, st)
			alice := e.user(t, "alice", 100)
			ev := e.event(t, "2026-10-20", 2, 40)

			// WHEN: reserving
			res, balance, err := e.engine.Reservations.CreateReservation(e.ctx, ev.ID, alice.UserID, alice)

			// THEN: a seat and the price are taken
			require.NoError(t, err)
			assert.Equal(t, booking.Credits(60), balance)
			got, err := st.GetEvent(e.ctx, ev.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.SpacesAvailable)

			list, err := e.engine.Reservations.ListReservations(e.ctx, alice, booking.ReservationFilter{})
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, res.ID, list[0].ID)

			// WHEN: cancelling
			balance, err = e.engine.Reservations.CancelReservation(e.ctx, res.ID, alice)

			// THEN: seat and credits come back, the log has both entries
			require.NoError(t, err)
			assert.Equal(t, booking.Credits(100), balance)
			got, err = st.GetEvent(e.ctx, ev.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, got.SpacesAvailable)

			history, err := st.CreditHistory(e.ctx, alice.UserID)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, booking.CreditDebit, history[0].Type)
			assert.Equal(t, booking.CreditRefund, history[1].Type)
			assert.Equal(t, "reservation:"+res.ID+":refund", history[1].IdempotencyKey)
		})
	}
}

func TestStore_FailedDebitRollsBackSeat(t *testing.T) {
	for name, st := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			e := setup(t, st)
			bob := e.user(t, "bob", 10)
			ev := e.event(t, "2026-10-21", 1, 40)

			_, _, err := e.engine.Reservations.CreateReservation(e.ctx, ev.ID, bob.UserID, bob)

			var funds *booking.InsufficientFundsError
			require.True(t, errors.As(err, &funds))
			assert.Equal(t, booking.Credits(30), funds.Shortfall())
			got, err := st.GetEvent(e.ctx, ev.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.SpacesAvailable)
		})
	}
}

func TestStore_UniqueReservationIndex(t *testing.T) {
	for name, st := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			e := setup(t, st)
			alice := e.user(t, "alice", 0)
			ev := e.event(t, "2026-10-22", 5, 0)
			r := booking.Reservation{ID: "r1-" + e.suffix, EventID: ev.ID, OwnerID: alice.UserID, CreatedAt: time.Now()}
			require.NoError(t, st.InsertReservation(e.ctx, r))

			r.ID = "r2-" + e.suffix
			err := st.InsertReservation(e.ctx, r)

			assert.ErrorIs(t, err, booking.ErrAlreadyReserved)
			found, ok, err := st.FindReservation(e.ctx, ev.ID, alice.UserID)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "r1-"+e.suffix, found.ID)
		})
	}
}

func TestStore_DuplicateIdempotencyKey(t *testing.T) {
	for name, st := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			e := setup(t, st)
			alice := e.user(t, "alice", 0)
			entry := booking.CreditTransaction{
				ID: "c1-" + e.suffix, UserID: alice.UserID, Delta: 10, BalanceAfter: 10,
				Type: booking.CreditRefund, IdempotencyKey: "k-" + e.suffix, CreatedAt: time.Now(),
			}
			require.NoError(t, st.AppendCredit(e.ctx, entry))

			entry.ID = "c2-" + e.suffix
			assert.ErrorIs(t, st.AppendCredit(e.ctx, entry), booking.ErrDuplicateIdempotencyKey)
		})
	}
}

func TestStore_WithTxRollsBack(t *testing.T) {
	for name, st := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			e := setup(t, st)
			alice := e.user(t, "alice", 50)
			boom := errors.New("boom")

			err := st.WithTx(e.ctx, func(tx booking.Store) error {
				require.NoError(t, tx.SetBalance(e.ctx, alice.UserID, 0))
				return boom
			})

			assert.ErrorIs(t, err, boom)
			u, err := st.GetUser(e.ctx, alice.UserID)
			require.NoError(t, err)
			assert.Equal(t, booking.Credits(50), u.Balance)
		})
	}
}

func TestStore_RecurringEventsRoundTrip(t *testing.T) {
	for name, st := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			e := setup(t, st)
			until := booking.MustParseDate("2026-11-01")

			created, err := e.engine.Events.CreateEvent(e.ctx, admin, e.calendar.ID, booking.EventInput{
				Title:           "Pilates",
				Date:            booking.MustParseDate("2026-10-19"),
				StartTime:       booking.MustParseTimeOfDay("07:00"),
				EndTime:         booking.MustParseTimeOfDay("08:00"),
				Price:           20,
				MaximumCapacity: 8,
				Recurrence:      &booking.RecurrenceRule{Weekdays: []time.Weekday{time.Monday, time.Wednesday}, Until: until},
			})
			require.NoError(t, err)
			require.Len(t, created, 4)

			from, to := booking.MustParseDate("2026-10-19"), booking.MustParseDate("2026-10-31")
			events, err := e.engine.Events.ListEvents(e.ctx, e.calendar.ID, from, to)
			require.NoError(t, err)
			require.Len(t, events, 4)
			for i, ev := range events {
				assert.Equal(t, created[i].ID, ev.ID)
				assert.Equal(t, created[0].SeriesID, ev.SeriesID)
				require.NotNil(t, ev.Recurrence)
				assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, ev.Recurrence.Weekdays)
				assert.Equal(t, until, ev.Recurrence.Until)
			}
		})
	}
}

func TestStore_DeleteCalendarCascades(t *testing.T) {
	for name, st := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			e := setup(t, st)
			alice := e.user(t, "alice", 100)
			ev := e.event(t, "2026-10-23", 3, 10)
			res, _, err := e.engine.Reservations.CreateReservation(e.ctx, ev.ID, alice.UserID, alice)
			require.NoError(t, err)

			require.NoError(t, st.DeleteCalendar(e.ctx, e.calendar.ID))

			_, err = st.GetEvent(e.ctx, ev.ID)
			assert.True(t, booking.IsNotFound(err))
			_, err = st.GetReservation(e.ctx, res.ID)
			assert.True(t, booking.IsNotFound(err))
			_, err = st.GetCalendar(e.ctx, e.calendar.ID)
			assert.True(t, booking.IsNotFound(err))
		})
	}
}

func TestStore_FulltextAndDiscountLookup(t *testing.T) {
	for name, st := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			e := setup(t, st)
			cals, err := st.ListCalendars(e.ctx, booking.CalendarFilter{Fulltext: "YOGA " + e.suffix})
			require.NoError(t, err)
			require.Len(t, cals, 1)
			assert.Equal(t, e.calendar.ID, cals[0].ID)

			alice := e.user(t, "alice", 100)
			morning := e.event(t, "2026-10-24", 3, 10)
			_, _, err = e.engine.Reservations.CreateReservation(e.ctx, morning.ID, alice.UserID, alice)
			require.NoError(t, err)

			has, err := st.HasReservationOn(e.ctx, alice.UserID, morning.Date, morning.ID)
			require.NoError(t, err)
			assert.False(t, has)
			has, err = st.HasReservationOn(e.ctx, alice.UserID, morning.Date, "other")
			require.NoError(t, err)
			assert.True(t, has)
		})
	}
}

func TestStore_ConcurrentLastSeat(t *testing.T) {
	for name, st := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN: one seat and eight users racing for it
			e := setup(t, st)
			ev := e.event(t, "2026-10-25", 1, 5)
			callers := make([]booking.Caller, 8)
			for i := range callers {
				callers[i] = e.user(t, "racer"+string(rune('a'+i)), 5)
			}

			// WHEN
			var wg sync.WaitGroup
			var mu sync.Mutex
			var won, full int
			for _, c := range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _, err := e.engine.Reservations.CreateReservation(e.ctx, ev.ID, c.UserID, c)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						won++
					case errors.Is(err, booking.ErrEventFull):
						full++
					}
				}()
			}
			wg.Wait()

			// THEN: exactly one winner, the counter stays at zero
			assert.Equal(t, 1, won)
			assert.Equal(t, len(callers)-1, full)
			got, err := st.GetEvent(e.ctx, ev.ID)
			require.NoError(t, err)
			assert.Equal(t, 0, got.SpacesAvailable)
		})
	}
}
