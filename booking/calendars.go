package booking

import (
	"context"
	"strings"
)

// =============================================================================
// CALENDAR SERVICE - Locations and calendars
// =============================================================================

// Display bounds of a calendar without events.
var (
	DefaultMinTime = NewTimeOfDay(8, 0)
	DefaultMaxTime = NewTimeOfDay(22, 0)
)

// CalendarInput is a new calendar.
type CalendarInput struct {
	Name       string
	LocationID string
	Thumbnail  []byte
}

// CalendarPatch changes a calendar. Empty fields are kept.
type CalendarPatch struct {
	Name       string
	LocationID string
	Thumbnail  []byte
}

// CalendarWithEvents is a calendar and its events in the requested range.
type CalendarWithEvents struct {
	Calendar
	Events []Event
}

type CalendarService struct {
	env
	store TxStore
}

func (s *CalendarService) CreateLocation(ctx context.Context, caller Caller, name string) (Location, error) {
	if err := Authorize(caller, ActionManageCalendars, ""); err != nil {
		return Location{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Location{}, invalid("name", "must not be empty")
	}
	loc := Location{ID: s.newID(), Name: name}
	err := s.store.WithTx(ctx, func(st Store) error {
		existing, err := st.ListLocations(ctx)
		if err != nil {
			return err
		}
		for _, l := range existing {
			if strings.EqualFold(l.Name, name) {
				return &ConflictError{Kind: "location", ID: l.ID, Reason: "name " + name + " is taken"}
			}
		}
		return st.CreateLocation(ctx, loc)
	})
	if err != nil {
		return Location{}, err
	}
	s.log.Info("location created", "location", loc.ID, "name", loc.Name)
	return loc, nil
}

func (s *CalendarService) ListLocations(ctx context.Context) ([]Location, error) {
	return s.store.ListLocations(ctx)
}

func (s *CalendarService) CreateCalendar(ctx context.Context, caller Caller, in CalendarInput) (Calendar, error) {
	if err := Authorize(caller, ActionManageCalendars, ""); err != nil {
		return Calendar{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Calendar{}, invalid("name", "must not be empty")
	}
	cal := Calendar{
		ID:         s.newID(),
		Name:       name,
		LocationID: in.LocationID,
		Thumbnail:  in.Thumbnail,
		MinTime:    DefaultMinTime,
		MaxTime:    DefaultMaxTime,
		CreatedAt:  s.now().UTC(),
	}
	err := s.store.WithTx(ctx, func(st Store) error {
		if cal.LocationID != "" {
			if _, err := st.GetLocation(ctx, cal.LocationID); err != nil {
				return err
			}
		}
		if err := s.ensureUniqueName(ctx, st, name, ""); err != nil {
			return err
		}
		return st.CreateCalendar(ctx, cal)
	})
	if err != nil {
		return Calendar{}, err
	}
	s.log.Info("calendar created", "calendar", cal.ID, "name", cal.Name)
	return cal, nil
}

func (s *CalendarService) UpdateCalendar(ctx context.Context, caller Caller, id string, patch CalendarPatch) (Calendar, error) {
	if err := Authorize(caller, ActionManageCalendars, ""); err != nil {
		return Calendar{}, err
	}
	name := strings.TrimSpace(patch.Name)
	if name == "" && patch.LocationID == "" && patch.Thumbnail == nil {
		return Calendar{}, invalid("", "no update parameters provided")
	}
	var cal Calendar
	err := s.store.WithTx(ctx, func(st Store) error {
		var err error
		if cal, err = st.GetCalendar(ctx, id); err != nil {
			return err
		}
		if name != "" {
			if err := s.ensureUniqueName(ctx, st, name, id); err != nil {
				return err
			}
			cal.Name = name
		}
		if patch.LocationID != "" {
			if _, err := st.GetLocation(ctx, patch.LocationID); err != nil {
				return err
			}
			cal.LocationID = patch.LocationID
		}
		if patch.Thumbnail != nil {
			cal.Thumbnail = patch.Thumbnail
		}
		if err := st.UpdateCalendar(ctx, cal); err != nil {
			return err
		}
		return s.withBounds(ctx, st, &cal)
	})
	if err != nil {
		return Calendar{}, err
	}
	s.log.Info("calendar updated", "calendar", id)
	return cal, nil
}

func (s *CalendarService) ensureUniqueName(ctx context.Context, st Store, name, exceptID string) error {
	existing, err := st.ListCalendars(ctx, CalendarFilter{Fulltext: name})
	if err != nil {
		return err
	}
	for _, c := range existing {
		if c.ID != exceptID && strings.EqualFold(c.Name, name) {
			return &ConflictError{Kind: "calendar", ID: c.ID, Reason: "name " + name + " is taken"}
		}
	}
	return nil
}

// GetCalendar returns the calendar with its events dated within [from, to]
// and display bounds computed over all its events.
func (s *CalendarService) GetCalendar(ctx context.Context, id string, from, to *Date) (CalendarWithEvents, error) {
	cal, err := s.store.GetCalendar(ctx, id)
	if err != nil {
		return CalendarWithEvents{}, err
	}
	if err := s.withBounds(ctx, s.store, &cal); err != nil {
		return CalendarWithEvents{}, err
	}
	events, err := s.store.ListEvents(ctx, EventFilter{CalendarID: id, From: from, To: to})
	if err != nil {
		return CalendarWithEvents{}, err
	}
	return CalendarWithEvents{Calendar: cal, Events: events}, nil
}

// ListCalendars returns calendars ordered by name, each with its bounds.
func (s *CalendarService) ListCalendars(ctx context.Context, filter CalendarFilter) ([]Calendar, error) {
	cals, err := s.store.ListCalendars(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range cals {
		if err := s.withBounds(ctx, s.store, &cals[i]); err != nil {
			return nil, err
		}
	}
	return cals, nil
}

// DeleteCalendar removes the calendar unless it still has an event that
// has not started. Past events and their reservations go with it.
func (s *CalendarService) DeleteCalendar(ctx context.Context, caller Caller, id string) error {
	if err := Authorize(caller, ActionManageCalendars, ""); err != nil {
		return err
	}
	today := s.today()
	err := s.store.WithTx(ctx, func(st Store) error {
		if _, err := st.GetCalendar(ctx, id); err != nil {
			return err
		}
		events, err := st.ListEvents(ctx, EventFilter{CalendarID: id, From: &today})
		if err != nil {
			return err
		}
		for _, ev := range events {
			if !ev.HasStarted(s.now(), s.loc) {
				return &ConflictError{Kind: "calendar", ID: id, Reason: "calendar contains future events"}
			}
		}
		return st.DeleteCalendar(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("calendar deleted", "calendar", id)
	return nil
}

// withBounds sets MinTime to the earliest start rounded down to the hour
// and MaxTime to the latest end rounded up to the hour.
func (s *CalendarService) withBounds(ctx context.Context, st Store, cal *Calendar) error {
	events, err := st.ListEvents(ctx, EventFilter{CalendarID: cal.ID})
	if err != nil {
		return err
	}
	cal.MinTime, cal.MaxTime = DisplayBounds(events)
	return nil
}

// DisplayBounds returns the whole-hour window covering every event.
func DisplayBounds(events []Event) (minTime, maxTime TimeOfDay) {
	if len(events) == 0 {
		return DefaultMinTime, DefaultMaxTime
	}
	minTime, maxTime = EndOfDay, StartOfDay
	for _, ev := range events {
		minTime = min(minTime, ev.StartTime)
		maxTime = max(maxTime, ev.EndTime)
	}
	minTime -= minTime % 60
	if rem := maxTime % 60; rem != 0 {
		maxTime += 60 - rem
	}
	return minTime, min(maxTime, EndOfDay)
}
