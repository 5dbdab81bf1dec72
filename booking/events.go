package booking

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// =============================================================================
// EVENT SERVICE - Create, update, delete and list events
// =============================================================================

// EventInput is a new event, optionally repeated by Recurrence.
type EventInput struct {
	Title           string
	Description     string
	Date            Date
	StartTime       TimeOfDay
	EndTime         TimeOfDay
	Price           Credits
	DiscountPrice   Credits
	MaximumCapacity int
	Recurrence      *RecurrenceRule
}

// EventPatch changes the mutable text of an event. Nil fields are kept.
type EventPatch struct {
	Title       *string
	Description *string
}

type EventService struct {
	env
	store    TxStore
	capacity *CapacityLedger
}

// CreateEvent validates in, expands its recurrence and stores every
// instance with all seats free. Instances overlapping an existing event of
// the calendar are rejected with Conflict.
func (s *EventService) CreateEvent(ctx context.Context, caller Caller, calendarID string, in EventInput) ([]Event, error) {
	if err := Authorize(caller, ActionManageEvents, ""); err != nil {
		return nil, err
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}
	seed := Event{
		ID:              s.newID(),
		CalendarID:      calendarID,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Date:            in.Date,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		Price:           in.Price,
		DiscountPrice:   in.DiscountPrice,
		MaximumCapacity: in.MaximumCapacity,
		SpacesAvailable: in.MaximumCapacity,
		CreatedAt:       s.now().UTC(),
	}
	instances, err := ExpandRecurrence(seed, in.Recurrence)
	if err != nil {
		return nil, err
	}
	events := slices.Collect(instances)

	err = s.store.WithTx(ctx, func(st Store) error {
		if _, err := st.GetCalendar(ctx, calendarID); err != nil {
			return err
		}
		from, to := events[0].Date, events[len(events)-1].Date
		existing, err := st.ListEvents(ctx, EventFilter{CalendarID: calendarID, From: &from, To: &to})
		if err != nil {
			return err
		}
		for i := range events {
			for j := range existing {
				if events[i].Overlaps(&existing[j]) {
					return &ConflictError{
						Kind:   "event",
						ID:     existing[j].ID,
						Reason: fmt.Sprintf("overlaps %s %s-%s", events[i].Date, events[i].StartTime, events[i].EndTime),
					}
				}
			}
		}
		return st.InsertEvents(ctx, events)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("events created", "calendar", calendarID, "count", len(events), "series", events[0].SeriesID)
	return events, nil
}

func (s *EventService) validate(in EventInput) error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return invalid("title", "must not be empty")
	case in.MaximumCapacity < 1:
		return invalid("maximumCapacity", "must be at least 1")
	case in.Price < 0:
		return invalid("price", "must not be negative")
	case in.DiscountPrice < 0:
		return invalid("discountPrice", "must not be negative")
	case in.Price > MaxCredits || in.DiscountPrice > MaxCredits:
		return fmt.Errorf("price above %d: %w", MaxCredits, ErrInvalidAmount)
	case in.Date.IsZero():
		return invalid("date", "is required")
	case in.Date.Before(s.today()):
		return invalid("date", "event cannot be in the past")
	case in.StartTime >= EndOfDay || in.EndTime > EndOfDay:
		return invalid("time", "must be within the day")
	}
	return CheckSeriesSpan(in.Date, in.Recurrence)
}

// UpdateEvent changes title and description. With updateSeries it updates
// every event of the series that has not started yet; otherwise only
// eventID, which must not have started.
func (s *EventService) UpdateEvent(ctx context.Context, caller Caller, eventID string, patch EventPatch, updateSeries bool) ([]Event, error) {
	if err := Authorize(caller, ActionManageEvents, ""); err != nil {
		return nil, err
	}
	if patch.Title == nil && patch.Description == nil {
		return nil, invalid("", "no update parameters provided")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, invalid("title", "must not be empty")
	}

	var updated []Event
	err := s.store.WithTx(ctx, func(st Store) error {
		ev, err := st.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		targets := []Event{ev}
		if updateSeries {
			if ev.SeriesID == "" {
				return invalid("updateSeries", "event "+ev.ID+" is not part of a series")
			}
			if targets, err = st.ListEvents(ctx, EventFilter{SeriesID: ev.SeriesID}); err != nil {
				return err
			}
		} else if ev.HasStarted(s.now(), s.loc) {
			return fmt.Errorf("event %s: %w", ev.ID, ErrEventClosed)
		}

		for _, t := range targets {
			if t.HasStarted(s.now(), s.loc) {
				continue
			}
			if patch.Title != nil {
				t.Title = strings.TrimSpace(*patch.Title)
			}
			if patch.Description != nil {
				t.Description = *patch.Description
			}
			if err := st.UpdateEvent(ctx, t); err != nil {
				return err
			}
			updated = append(updated, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("events updated", "event", eventID, "series", updateSeries, "count", len(updated))
	return updated, nil
}

// DeleteEvent removes an event that has no reservation and has not started.
func (s *EventService) DeleteEvent(ctx context.Context, caller Caller, eventID string) error {
	if err := Authorize(caller, ActionManageEvents, ""); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(st Store) error {
		ev, err := st.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if !s.capacity.CanDelete(&ev) {
			reason := "event has already started"
			if ev.Reserved() > 0 {
				reason = fmt.Sprintf("event has %d active reservations", ev.Reserved())
			}
			return &ConflictError{Kind: "event", ID: ev.ID, Reason: reason}
		}
		return st.DeleteEvent(ctx, ev.ID)
	})
	if err != nil {
		return err
	}
	s.log.Info("event deleted", "event", eventID)
	return nil
}

// GetEvent returns one event.
func (s *EventService) GetEvent(ctx context.Context, eventID string) (Event, error) {
	return s.store.GetEvent(ctx, eventID)
}

// ListEvents returns the events of calendarID dated within [from, to],
// ordered by date and start time.
func (s *EventService) ListEvents(ctx context.Context, calendarID string, from, to Date) ([]Event, error) {
	if to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}
	if _, err := s.store.GetCalendar(ctx, calendarID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, EventFilter{CalendarID: calendarID, From: &from, To: &to})
}
