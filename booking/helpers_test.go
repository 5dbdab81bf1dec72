package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xstejsk/bp-backup/booking"
	"github.com/xstejsk/bp-backup/booking/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	prague = mustLoad("Europe/Prague")
	admin  = booking.Caller{UserID: "admin", Role: booking.RoleAdmin}
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, 2*60*60)
	}
	return loc
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fixture is an engine over a memory store with one calendar, clock at
// Sunday 2026-10-18 10:00 Prague.
type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    *testClock
	store    *store.Memory
	engine   *booking.Engine
	calendar booking.Calendar
}

func newFixture(t *testing.T, opts ...func(*booking.Options)) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, time.October, 18, 10, 0, 0, 0, prague)}
	o := booking.Options{Now: clock.Now, Location: prague}
	for _, fn := range opts {
		fn(&o)
	}
	mem := store.NewMemory()
	f := &fixture{t: t, ctx: context.Background(), clock: clock, store: mem, engine: booking.New(mem, o)}

	loc, err := f.engine.Calendars.CreateLocation(f.ctx, admin, "Sokolovna")
	require.NoError(t, err)
	f.calendar, err = f.engine.Calendars.CreateCalendar(f.ctx, admin, booking.CalendarInput{Name: "Yoga", LocationID: loc.ID})
	require.NoError(t, err)
	_, err = f.engine.Accounts.SaveUser(f.ctx, admin, booking.UserInput{ID: "admin", Email: "admin@example.com", Role: booking.RoleAdmin, Enabled: true})
	require.NoError(t, err)
	return f
}

// user creates a USER with the given balance and discount flag.
func (f *fixture) user(id string, balance booking.Credits, discount bool) booking.Caller {
	f.t.Helper()
	_, err := f.engine.Accounts.SaveUser(f.ctx, admin, booking.UserInput{
		ID:               id,
		Email:            id + "@example.com",
		Name:             id,
		Role:             booking.RoleUser,
		HasDailyDiscount: discount,
		Enabled:          true,
		InitialBalance:   balance,
	})
	require.NoError(f.t, err)
	return booking.Caller{UserID: id, Role: booking.RoleUser}
}

// event creates a single event on date at 18:00-19:00.
func (f *fixture) event(date string, capacity int, price, discountPrice booking.Credits) booking.Event {
	f.t.Helper()
	events, err := f.engine.Events.CreateEvent(f.ctx, admin, f.calendar.ID, booking.EventInput{
		Title:           "Vinyasa",
		Date:            booking.MustParseDate(date),
		StartTime:       booking.MustParseTimeOfDay("18:00"),
		EndTime:         booking.MustParseTimeOfDay("19:00"),
		Price:           price,
		DiscountPrice:   discountPrice,
		MaximumCapacity: capacity,
	})
	require.NoError(f.t, err)
	require.Len(f.t, events, 1)
	return events[0]
}

func (f *fixture) getEvent(id string) booking.Event {
	f.t.Helper()
	ev, err := f.store.GetEvent(f.ctx, id)
	require.NoError(f.t, err)
	return ev
}

func (f *fixture) balanceOf(id string) booking.Credits {
	f.t.Helper()
	u, err := f.store.GetUser(f.ctx, id)
	require.NoError(f.t, err)
	return u.Balance
}

// recordingNotifier keeps every notification.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []booking.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, note booking.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}
