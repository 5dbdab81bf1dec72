package calview_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xstejsk/bp-backup/booking"
	"github.com/xstejsk/bp-backup/calview"
)

var prague = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Prague")
	if err != nil {
		return time.FixedZone("CEST", 2*60*60)
	}
	return loc
}()

// Sunday 2026-10-18 10:00
func now() time.Time { return time.Date(2026, time.October, 18, 10, 0, 0, 0, prague) }

// fakeLister records the requested ranges and serves a fixed event list.
type fakeLister struct {
	calls  []booking.DateRange
	events []booking.Event
	err    error
}

func (l *fakeLister) ListEvents(_ context.Context, calendarID string, from, to booking.Date) ([]booking.Event, error) {
	l.calls = append(l.calls, booking.DateRange{Start: from, End: to})
	if l.err != nil {
		return nil, l.err
	}
	var out []booking.Event
	for _, e := range l.events {
		if e.CalendarID == calendarID && (booking.DateRange{Start: from, End: to}).Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeLister) last() booking.DateRange { return l.calls[len(l.calls)-1] }

func newView(t *testing.T, lister *fakeLister, locale string, g calview.Granularity) *calview.View {
	t.Helper()
	v, err := calview.New(context.Background(), lister, "cal-1", calview.Options{
		Granularity: g, Locale: locale, Now: now, Location: prague,
	})
	require.NoError(t, err)
	return v
}

func dr(from, to string) booking.DateRange {
	return booking.DateRange{Start: booking.MustParseDate(from), End: booking.MustParseDate(to)}
}

func TestView_InitialStateFetchesToday(t *testing.T) {
	lister := &fakeLister{}

	v := newView(t, lister, "", calview.Day)

	assert.Equal(t, calview.Day, v.Granularity())
	assert.Equal(t, "2026-10-18", v.Date().String())
	assert.Equal(t, "October 18, 2026", v.Title())
	require.Len(t, lister.calls, 1)
	assert.Equal(t, dr("2026-10-18", "2026-10-18"), lister.last())
}

func TestView_TitlesAndRanges(t *testing.T) {
	tests := []struct {
		name   string
		locale string
		g      calview.Granularity
		date   string
		title  string
		rng    booking.DateRange
	}{
		{"en day", "en-US", calview.Day, "2026-10-18", "October 18, 2026", dr("2026-10-18", "2026-10-18")},
		{"cs day", "cs", calview.Day, "2026-10-18", "18. října 2026", dr("2026-10-18", "2026-10-18")},
		{"en week starts sunday", "en", calview.Week, "2026-10-18", "Oct 18 – 24, 2026", dr("2026-10-18", "2026-10-24")},
		{"cs week starts monday", "cs-CZ", calview.Week, "2026-10-18", "12. – 18. 10. 2026", dr("2026-10-12", "2026-10-18")},
		{"en week across months", "en", calview.Week, "2026-09-30", "Sep 27 – Oct 3, 2026", dr("2026-09-27", "2026-10-03")},
		{"cs week across months", "cs", calview.Week, "2026-09-30", "28. 9. – 4. 10. 2026", dr("2026-09-28", "2026-10-04")},
		{"en week across years", "en", calview.Week, "2026-12-31", "Dec 27, 2026 – Jan 2, 2027", dr("2026-12-27", "2027-01-02")},
		{"cs week across years", "cs", calview.Week, "2026-12-31", "28. 12. 2026 – 3. 1. 2027", dr("2026-12-28", "2027-01-03")},
		{"en month grid", "en", calview.Month, "2026-10-18", "October 2026", dr("2026-09-27", "2026-10-31")},
		{"cs month grid", "cs", calview.Month, "2026-10-18", "říjen 2026", dr("2026-09-28", "2026-11-01")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := &fakeLister{}
			v := newView(t, lister, tt.locale, tt.g)

			require.NoError(t, v.GoToDate(context.Background(), booking.MustParseDate(tt.date)))

			assert.Equal(t, tt.title, v.Title())
			assert.Equal(t, tt.rng, v.Range())
			assert.Equal(t, tt.rng, lister.last())
		})
	}
}

func TestView_LocaleMatching(t *testing.T) {
	for locale, title := range map[string]string{
		"cs-CZ,cs;q=0.9,en;q=0.8": "18. října 2026",
		"de-DE":                   "October 18, 2026",
		"not a locale":            "October 18, 2026",
	} {
		v := newView(t, &fakeLister{}, locale, calview.Day)
		assert.Equal(t, title, v.Title(), locale)
	}
}

func TestView_NextPrev(t *testing.T) {
	ctx := context.Background()

	t.Run("day", func(t *testing.T) {
		v := newView(t, &fakeLister{}, "", calview.Day)
		require.NoError(t, v.Next(ctx))
		assert.Equal(t, "2026-10-19", v.Date().String())
		require.NoError(t, v.Prev(ctx))
		require.NoError(t, v.Prev(ctx))
		assert.Equal(t, "2026-10-17", v.Date().String())
	})

	t.Run("week", func(t *testing.T) {
		v := newView(t, &fakeLister{}, "", calview.Week)
		require.NoError(t, v.Next(ctx))
		assert.Equal(t, "2026-10-25", v.Date().String())
		assert.Equal(t, "Oct 25 – 31, 2026", v.Title())
	})

	t.Run("month clamps to month length", func(t *testing.T) {
		// GIVEN: January 31st in a leap year
		v := newView(t, &fakeLister{}, "", calview.Month)
		require.NoError(t, v.GoToDate(ctx, booking.MustParseDate("2024-01-31")))

		// WHEN / THEN
		require.NoError(t, v.Next(ctx))
		assert.Equal(t, "2024-02-29", v.Date().String())
		assert.Equal(t, "February 2024", v.Title())

		require.NoError(t, v.GoToDate(ctx, booking.MustParseDate("2025-03-31")))
		require.NoError(t, v.Prev(ctx))
		assert.Equal(t, "2025-02-28", v.Date().String())
	})

	t.Run("today returns to the current date", func(t *testing.T) {
		v := newView(t, &fakeLister{}, "", calview.Month)
		require.NoError(t, v.Next(ctx))
		require.NoError(t, v.Next(ctx))
		require.NoError(t, v.Today(ctx))
		assert.Equal(t, "2026-10-18", v.Date().String())
		assert.Equal(t, calview.Month, v.Granularity())
	})
}

func TestView_SelectGranularityResetsToToday(t *testing.T) {
	// GIVEN: a month view moved to December
	ctx := context.Background()
	lister := &fakeLister{}
	v := newView(t, lister, "cs", calview.Month)
	require.NoError(t, v.GoToDate(ctx, booking.MustParseDate("2026-12-24")))

	// WHEN: switching to week
	require.NoError(t, v.SelectGranularity(ctx, calview.Week))

	// THEN: the view is back on today's week
	assert.Equal(t, calview.Week, v.Granularity())
	assert.Equal(t, "2026-10-18", v.Date().String())
	assert.Equal(t, dr("2026-10-12", "2026-10-18"), lister.last())
	assert.Len(t, lister.calls, 3)

	assert.ErrorIs(t, v.SelectGranularity(ctx, calview.Granularity(7)), booking.ErrInvalidArgument)
}

func TestView_SelectEvent(t *testing.T) {
	ctx := context.Background()
	ev := func(id, date, start string, spaces int) booking.Event {
		return booking.Event{
			ID: id, CalendarID: "cal-1", Title: id,
			Date:            booking.MustParseDate(date),
			StartTime:       booking.MustParseTimeOfDay(start),
			EndTime:         booking.MustParseTimeOfDay(start) + 60,
			MaximumCapacity: 10,
			SpacesAvailable: spaces,
		}
	}
	lister := &fakeLister{events: []booking.Event{
		ev("open", "2026-10-20", "18:00", 3),
		ev("started", "2026-10-18", "09:00", 3),
		ev("full", "2026-10-21", "18:00", 0),
		ev("mine", "2026-10-22", "18:00", 5),
		ev("next-month", "2026-11-20", "18:00", 5),
	}}
	v := newView(t, lister, "", calview.Week)
	v.SetReserved([]string{"mine"})

	t.Run("bookable event", func(t *testing.T) {
		got, err := v.SelectEvent("open")
		require.NoError(t, err)
		assert.Equal(t, "open", got.ID)
		sel, ok := v.Selected()
		assert.True(t, ok)
		assert.Equal(t, "open", sel.ID)
	})
	t.Run("started", func(t *testing.T) {
		_, err := v.SelectEvent("started")
		assert.ErrorIs(t, err, booking.ErrEventClosed)
	})
	t.Run("full", func(t *testing.T) {
		_, err := v.SelectEvent("full")
		assert.ErrorIs(t, err, booking.ErrEventFull)
	})
	t.Run("already reserved", func(t *testing.T) {
		_, err := v.SelectEvent("mine")
		assert.ErrorIs(t, err, booking.ErrAlreadyReserved)
	})
	t.Run("outside the visible range", func(t *testing.T) {
		_, err := v.SelectEvent("next-month")
		assert.True(t, booking.IsNotFound(err))
	})
	t.Run("failed selection keeps the previous one", func(t *testing.T) {
		sel, ok := v.Selected()
		assert.True(t, ok)
		assert.Equal(t, "open", sel.ID)
	})
	t.Run("transition clears the selection", func(t *testing.T) {
		require.NoError(t, v.Next(ctx))
		_, ok := v.Selected()
		assert.False(t, ok)
		assert.Empty(t, v.Events())
	})
}

func TestView_FetchFailureStillMoves(t *testing.T) {
	// GIVEN: a view whose backend starts failing
	ctx := context.Background()
	lister := &fakeLister{events: []booking.Event{{ID: "e", CalendarID: "cal-1", Date: booking.MustParseDate("2026-10-19")}}}
	v := newView(t, lister, "", calview.Day)
	boom := errors.New("connection refused")
	lister.err = boom

	// WHEN
	err := v.Next(ctx)

	// THEN: the date moved, no stale events remain
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "2026-10-19", v.Date().String())
	assert.Empty(t, v.Events())
}

func TestParseGranularity(t *testing.T) {
	for _, g := range []calview.Granularity{calview.Day, calview.Week, calview.Month} {
		got, err := calview.ParseGranularity(g.String())
		require.NoError(t, err)
		assert.Equal(t, g, got)
	}
	_, err := calview.ParseGranularity("year")
	assert.Error(t, err)
}
