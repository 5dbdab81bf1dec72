package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xstejsk/bp-backup/booking"
)

func TestCreateCalendar_NameRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Calendars.CreateCalendar(f.ctx, admin, booking.CalendarInput{Name: " "})
	assert.ErrorIs(t, err, booking.ErrInvalidArgument)

	_, err = f.engine.Calendars.CreateCalendar(f.ctx, admin, booking.CalendarInput{Name: "yoga"})
	assert.ErrorIs(t, err, booking.ErrConflict)

	_, err = f.engine.Calendars.CreateCalendar(f.ctx, admin, booking.CalendarInput{Name: "Box", LocationID: "nowhere"})
	assert.True(t, booking.IsNotFound(err))

	_, err = f.engine.Calendars.CreateCalendar(f.ctx, booking.Caller{UserID: "x", Role: booking.RoleUser}, booking.CalendarInput{Name: "Box"})
	assert.ErrorIs(t, err, booking.ErrForbidden)
}

func TestCreateLocation_UniqueName(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Calendars.CreateLocation(f.ctx, admin, "SOKOLOVNA")
	assert.ErrorIs(t, err, booking.ErrConflict)

	loc, err := f.engine.Calendars.CreateLocation(f.ctx, admin, "Stadion")
	require.NoError(t, err)
	all, err := f.engine.Calendars.ListLocations(f.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, loc)
}

func TestUpdateCalendar(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Calendars.UpdateCalendar(f.ctx, admin, f.calendar.ID, booking.CalendarPatch{})
	assert.ErrorIs(t, err, booking.ErrInvalidArgument)

	cal, err := f.engine.Calendars.UpdateCalendar(f.ctx, admin, f.calendar.ID, booking.CalendarPatch{Name: "Hot yoga", Thumbnail: []byte{0x89, 0x50}})
	require.NoError(t, err)
	assert.Equal(t, "Hot yoga", cal.Name)
	assert.Equal(t, f.calendar.LocationID, cal.LocationID)
	assert.Equal(t, []byte{0x89, 0x50}, cal.Thumbnail)

	_, err = f.engine.Calendars.UpdateCalendar(f.ctx, admin, "missing", booking.CalendarPatch{Name: "x"})
	assert.True(t, booking.IsNotFound(err))
}

func TestGetCalendar_BoundsAndRange(t *testing.T) {
	// GIVEN: events 18:00-19:00 and 07:15-08:40
	f := newFixture(t)
	f.event("2026-10-20", 5, 10, 10)
	_, err := f.engine.Events.CreateEvent(f.ctx, admin, f.calendar.ID, booking.EventInput{
		Title: "Early", Date: booking.MustParseDate("2026-11-20"),
		StartTime: booking.MustParseTimeOfDay("07:15"), EndTime: booking.MustParseTimeOfDay("08:40"),
		MaximumCapacity: 1,
	})
	require.NoError(t, err)

	// WHEN: fetching October only
	from, to := booking.MustParseDate("2026-10-01"), booking.MustParseDate("2026-10-31")
	got, err := f.engine.Calendars.GetCalendar(f.ctx, f.calendar.ID, &from, &to)

	// THEN: events are limited to the range, bounds cover every event
	require.NoError(t, err)
	assert.Len(t, got.Events, 1)
	assert.Equal(t, "07:00", got.MinTime.String())
	assert.Equal(t, "19:00", got.MaxTime.String())
}

func TestDisplayBounds(t *testing.T) {
	minT, maxT := booking.DisplayBounds(nil)
	assert.Equal(t, "08:00", minT.String())
	assert.Equal(t, "22:00", maxT.String())

	minT, maxT = booking.DisplayBounds([]booking.Event{
		{StartTime: booking.MustParseTimeOfDay("06:00"), EndTime: booking.MustParseTimeOfDay("23:59")},
	})
	assert.Equal(t, "06:00", minT.String())
	assert.Equal(t, "24:00", maxT.String())
}

func TestListCalendars_Fulltext(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Calendars.CreateCalendar(f.ctx, admin, booking.CalendarInput{Name: "Aerial Yoga"})
	require.NoError(t, err)
	_, err = f.engine.Calendars.CreateCalendar(f.ctx, admin, booking.CalendarInput{Name: "Boxing"})
	require.NoError(t, err)

	got, err := f.engine.Calendars.ListCalendars(f.ctx, booking.CalendarFilter{Fulltext: "yoga"})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Aerial Yoga", got[0].Name)
	assert.Equal(t, "Yoga", got[1].Name)
}

func TestDeleteCalendar(t *testing.T) {
	t.Run("future events are conflict", func(t *testing.T) {
		f := newFixture(t)
		f.event("2026-10-20", 5, 10, 10)

		err := f.engine.Calendars.DeleteCalendar(f.ctx, admin, f.calendar.ID)

		assert.ErrorIs(t, err, booking.ErrConflict)
	})

	t.Run("past events go with the calendar", func(t *testing.T) {
		// GIVEN: a reserved event that has since taken place
		f := newFixture(t)
		alice := f.user("alice", 100, false)
		ev := f.event("2026-10-18", 5, 10, 10)
		_, _, err := f.engine.Reservations.CreateReservation(f.ctx, ev.ID, "alice", alice)
		require.NoError(t, err)
		f.clock.Set(time.Date(2026, time.October, 19, 8, 0, 0, 0, prague))

		// WHEN: deleting the calendar
		require.NoError(t, f.engine.Calendars.DeleteCalendar(f.ctx, admin, f.calendar.ID))

		// THEN: calendar, event and reservation are gone; the credit log stays
		_, err = f.engine.Calendars.GetCalendar(f.ctx, f.calendar.ID, nil, nil)
		assert.True(t, booking.IsNotFound(err))
		_, err = f.store.GetEvent(f.ctx, ev.ID)
		assert.True(t, booking.IsNotFound(err))
		list, err := f.engine.Reservations.ListReservations(f.ctx, admin, booking.ReservationFilter{})
		require.NoError(t, err)
		assert.Empty(t, list)
		history, err := f.engine.Accounts.CreditHistory(f.ctx, admin, "alice")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("unknown calendar", func(t *testing.T) {
		f := newFixture(t)
		err := f.engine.Calendars.DeleteCalendar(f.ctx, admin, "missing")
		assert.True(t, booking.IsNotFound(err))
	})
}
