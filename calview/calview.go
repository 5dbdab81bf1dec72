/*
Package calview holds the navigation state of a calendar screen.

PURPOSE:
  A View tracks granularity (day, week, month), the current date, the
  events of the visible range and the selected event. Every transition
  recomputes the title, refetches the visible range through a read-only
  EventLister and clears the selection.

TRANSITIONS:
  Next / Prev          one unit of the granularity; months clamp to length
  Today                current date = today
  GoToDate(d)          current date = d
  SelectGranularity(g) granularity = g, current date = today

SELECTION:
  SelectEvent accepts only a visible event that has not started, has free
  spaces and is not in the viewer's reserved set. The reserved set is a
  read-through cache supplied by the caller; the server stays the source of
  truth for capacity.

SEE ALSO:
  - booking/events.go: EventService.ListEvents satisfies EventLister
  - title.go: Locale-dependent titles and week start
*/
package calview

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/text/language"

	"github.com/xstejsk/bp-backup/booking"
)

// Granularity is the unit a View pages by.
type Granularity int

const (
	Day Granularity = iota
	Week
	Month
)

func (g Granularity) String() string {
	switch g {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	}
	return fmt.Sprintf("Granularity(%d)", int(g))
}

// ParseGranularity accepts "day", "week" and "month".
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "day":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	}
	return 0, fmt.Errorf("unknown granularity %q", s)
}

// EventLister is the read-only query a View refetches through.
type EventLister interface {
	ListEvents(ctx context.Context, calendarID string, from, to booking.Date) ([]booking.Event, error)
}

// Options configures a View. Zero values mean: day granularity, English,
// time.Now, Europe/Prague, slog.Default.
type Options struct {
	Granularity Granularity
	Locale      string
	Now         func() time.Time
	Location    *time.Location
	Logger      *slog.Logger
}

// View is the navigation state of one calendar. It is not safe for
// concurrent use.
type View struct {
	lister     EventLister
	calendarID string
	now        func() time.Time
	loc        *time.Location
	lang       language.Tag
	log        *slog.Logger

	granularity Granularity
	current     booking.Date
	title       string
	events      []booking.Event
	selected    string
	reserved    map[string]bool
}

// New creates a View anchored at today and fetches its first range.
func New(ctx context.Context, lister EventLister, calendarID string, opts Options) (*View, error) {
	v := &View{
		lister:      lister,
		calendarID:  calendarID,
		now:         opts.Now,
		loc:         opts.Location,
		lang:        matchLocale(opts.Locale),
		log:         opts.Logger,
		granularity: opts.Granularity,
		reserved:    map[string]bool{},
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.loc == nil {
		loc, err := time.LoadLocation(booking.DefaultTimeZone)
		if err != nil {
			loc = time.UTC
		}
		v.loc = loc
	}
	if v.log == nil {
		v.log = slog.Default()
	}
	v.log = v.log.With("calendar_id", calendarID)
	return v, v.moveTo(ctx, v.granularity, v.today())
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Next moves forward by one unit of the granularity.
func (v *View) Next(ctx context.Context) error {
	return v.moveTo(ctx, v.granularity, step(v.granularity, v.current, 1))
}

// Prev moves back by one unit of the granularity.
func (v *View) Prev(ctx context.Context) error {
	return v.moveTo(ctx, v.granularity, step(v.granularity, v.current, -1))
}

// Today moves to the current date.
func (v *View) Today(ctx context.Context) error {
	return v.moveTo(ctx, v.granularity, v.today())
}

// GoToDate moves to d.
func (v *View) GoToDate(ctx context.Context, d booking.Date) error {
	return v.moveTo(ctx, v.granularity, d)
}

// SelectGranularity switches granularity. The date resets to today.
func (v *View) SelectGranularity(ctx context.Context, g Granularity) error {
	if g < Day || g > Month {
		return &booking.InvalidArgumentError{Field: "granularity", Message: g.String() + " is not a granularity"}
	}
	return v.moveTo(ctx, g, v.today())
}

func step(g Granularity, d booking.Date, n int) booking.Date {
	switch g {
	case Day:
		return d.AddDays(n)
	case Week:
		return d.AddDays(7 * n)
	default:
		return d.AddMonths(n)
	}
}

// moveTo applies a transition. The new state holds even when the refetch
// fails; the events are then empty and the error is returned.
func (v *View) moveTo(ctx context.Context, g Granularity, d booking.Date) error {
	v.granularity = g
	v.current = d
	v.selected = ""
	v.events = nil
	v.title = formatTitle(v.lang, g, d, v.Range())

	r := v.Range()
	events, err := v.lister.ListEvents(ctx, v.calendarID, r.Start, r.End)
	if err != nil {
		v.log.Warn("failed to fetch events", "range", r.String(), "error", err)
		return fmt.Errorf("fetch events %s: %w", r, err)
	}
	v.events = events
	v.log.Debug("view moved", "granularity", g.String(), "date", d.String(), "events", len(events))
	return nil
}

func (v *View) today() booking.Date { return booking.Today(v.now(), v.loc) }

// =============================================================================
// DERIVED STATE
// =============================================================================

func (v *View) Granularity() Granularity { return v.granularity }
func (v *View) Date() booking.Date       { return v.current }
func (v *View) Title() string            { return v.title }

// Events returns the events of the visible range.
func (v *View) Events() []booking.Event { return slices.Clone(v.events) }

// Range is the visible date range. A month view covers the whole weeks
// around the month.
func (v *View) Range() booking.DateRange {
	first := weekStart(v.lang)
	switch v.granularity {
	case Day:
		return booking.DateRange{Start: v.current, End: v.current}
	case Week:
		start := booking.StartOfWeek(v.current, first)
		return booking.DateRange{Start: start, End: start.AddDays(6)}
	default:
		start := booking.StartOfWeek(booking.StartOfMonth(v.current), first)
		end := booking.StartOfWeek(booking.EndOfMonth(v.current), first).AddDays(6)
		return booking.DateRange{Start: start, End: end}
	}
}

// =============================================================================
// SELECTION
// =============================================================================

// SetReserved replaces the set of event ids the viewer holds reservations
// for.
func (v *View) SetReserved(eventIDs []string) {
	v.reserved = make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		v.reserved[id] = true
	}
}

// SelectEvent selects a visible event the viewer could reserve.
func (v *View) SelectEvent(id string) (booking.Event, error) {
	i := slices.IndexFunc(v.events, func(e booking.Event) bool { return e.ID == id })
	if i < 0 {
		return booking.Event{}, &booking.NotFoundError{Kind: "event", ID: id}
	}
	ev := v.events[i]
	switch {
	case ev.HasStarted(v.now(), v.loc):
		return booking.Event{}, fmt.Errorf("event %s: %w", id, booking.ErrEventClosed)
	case ev.SpacesAvailable <= 0:
		return booking.Event{}, fmt.Errorf("event %s: %w", id, booking.ErrEventFull)
	case v.reserved[id]:
		return booking.Event{}, fmt.Errorf("event %s: %w", id, booking.ErrAlreadyReserved)
	}
	v.selected = id
	return ev, nil
}

// Selected returns the selected event, if any.
func (v *View) Selected() (booking.Event, bool) {
	if v.selected == "" {
		return booking.Event{}, false
	}
	for _, e := range v.events {
		if e.ID == v.selected {
			return e, true
		}
	}
	return booking.Event{}, false
}

// ClearSelection drops the selection without moving.
func (v *View) ClearSelection() { v.selected = "" }
