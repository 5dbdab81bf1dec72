/*
scenarios.go - Demo data loaders for development and demonstrations

PURPOSE:
  Populates an empty database with a location, calendars, a recurring
  series and users so the calendar screens have something to show. Every
  entity is created through the booking services, so the loaders exercise
  the same validation as real requests.

AVAILABLE SCENARIOS:
  studio-week:  Yoga calendar with a Mon/Wed/Fri series over four weeks,
                two users (one with the multisport discount)
  sold-out:     One single-seat event already taken by a user

USAGE VIA API:
  POST /api/scenarios/load
  {"scenarioId": "studio-week"}

NOTE:
  Scenarios add data; they do not reset the database. Loading the same
  scenario twice fails with 409 on the calendar name.

SEE ALSO:
  - handlers.go: Handler and error mapping
  - cmd/server/main.go: -seed flag
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/xstejsk/bp-backup/booking"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

var scenarios = []ScenarioDTO{
	{ID: "studio-week", Name: "Studio Week", Description: "Recurring yoga classes and two members"},
	{ID: "sold-out", Name: "Sold Out", Description: "A single-seat class that is already reserved"},
}

var scenarioLoaders = map[string]func(ctx context.Context, e *booking.Engine, today booking.Date) error{
	"studio-week": loadStudioWeek,
	"sold-out":    loadSoldOut,
}

// seeder acts as the built-in administrator.
var seeder = booking.Caller{UserID: "seed", Role: booking.RoleAdmin}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads one scenario. Admin only.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if err := booking.Authorize(callerFrom(r.Context()), booking.ActionManageCalendars, ""); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	if err := LoadScenario(r.Context(), h.Engine, req.ScenarioID, h.Engine.Today()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.log.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// LoadScenario runs the loader for id with dates relative to today.
func LoadScenario(ctx context.Context, e *booking.Engine, id string, today booking.Date) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return &booking.InvalidArgumentError{Field: "scenarioId", Message: fmt.Sprintf("unknown scenario %q", id)}
	}
	return load(ctx, e, today)
}

// =============================================================================
// LOADERS
// =============================================================================

func loadStudioWeek(ctx context.Context, e *booking.Engine, today booking.Date) error {
	loc, err := e.Calendars.CreateLocation(ctx, seeder, "Sokolovna")
	if err != nil {
		return err
	}
	cal, err := e.Calendars.CreateCalendar(ctx, seeder, booking.CalendarInput{Name: "Yoga", LocationID: loc.ID})
	if err != nil {
		return err
	}
	start := today.AddDays(1)
	_, err = e.Events.CreateEvent(ctx, seeder, cal.ID, booking.EventInput{
		Title:           "Vinyasa Flow",
		Description:     "Dynamic class for all levels",
		Date:            start,
		StartTime:       booking.NewTimeOfDay(18, 0),
		EndTime:         booking.NewTimeOfDay(19, 30),
		Price:           150,
		DiscountPrice:   50,
		MaximumCapacity: 12,
		Recurrence: &booking.RecurrenceRule{
			Weekdays: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
			Until:    start.AddDays(27),
		},
	})
	if err != nil {
		return err
	}
	members := []booking.UserInput{
		{ID: "jana", Email: "jana@example.com", Name: "Jana", Role: booking.RoleUser, Enabled: true, HasDailyDiscount: true, InitialBalance: 500},
		{ID: "petr", Email: "petr@example.com", Name: "Petr", Role: booking.RoleUser, Enabled: true, InitialBalance: 300},
	}
	for _, m := range members {
		if _, err := e.Accounts.SaveUser(ctx, seeder, m); err != nil {
			return err
		}
	}
	return nil
}

func loadSoldOut(ctx context.Context, e *booking.Engine, today booking.Date) error {
	cal, err := e.Calendars.CreateCalendar(ctx, seeder, booking.CalendarInput{Name: "Personal training"})
	if err != nil {
		return err
	}
	events, err := e.Events.CreateEvent(ctx, seeder, cal.ID, booking.EventInput{
		Title:           "One-on-one",
		Date:            today.AddDays(2),
		StartTime:       booking.NewTimeOfDay(7, 0),
		EndTime:         booking.NewTimeOfDay(8, 0),
		Price:           400,
		DiscountPrice:   400,
		MaximumCapacity: 1,
	})
	if err != nil {
		return err
	}
	if _, err := e.Accounts.SaveUser(ctx, seeder, booking.UserInput{
		ID: "early-bird", Email: "early@example.com", Name: "Early Bird", Role: booking.RoleUser, Enabled: true, InitialBalance: 400,
	}); err != nil {
		return err
	}
	owner := booking.Caller{UserID: "early-bird", Role: booking.RoleUser}
	_, _, err = e.Reservations.CreateReservation(ctx, events[0].ID, owner.UserID, owner)
	return err
}
