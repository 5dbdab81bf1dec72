/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the REST API. Field names are camelCase and keep the names
  existing clients use (spacesAvailable, maximumCapacity, discountApplied).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

CREDITS:
  Amounts arrive as JSON numbers decoded into decimal.Decimal so that a
  fractional amount is rejected with 400 instead of being truncated.
  Responses carry plain integers.

SEE ALSO:
  - handlers.go: Uses these types
  - booking/types.go: Domain types
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xstejsk/bp-backup/booking"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type CreateLocationRequest struct {
	Name string `json:"name"`
}

type CalendarRequest struct {
	Name       string `json:"name"`
	LocationID string `json:"locationId"`
	Thumbnail  []byte `json:"thumbnail,omitempty"`
}

type RecurrenceDTO struct {
	Days        []string `json:"days"` // MONDAY..SUNDAY
	RepeatUntil string   `json:"repeatUntil"`
}

type CreateEventRequest struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Date            string          `json:"date"`
	StartTime       string          `json:"startTime"`
	EndTime         string          `json:"endTime"`
	Price           decimal.Decimal `json:"price"`
	DiscountPrice   decimal.Decimal `json:"discountPrice"`
	MaximumCapacity int             `json:"maximumCapacity"`
	Recurrence      *RecurrenceDTO  `json:"recurrence,omitempty"`
}

type UpdateEventRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	UpdateSeries bool    `json:"updateSeries"`
}

type CreateReservationRequest struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"` // defaults to the caller
}

type SaveUserRequest struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	Name             string          `json:"name"`
	Role             string          `json:"role"`
	HasDailyDiscount bool            `json:"hasDailyDiscount"`
	Enabled          bool            `json:"enabled"`
	InitialBalance   decimal.Decimal `json:"initialBalance"`
}

type AdjustBalanceRequest struct {
	Balance decimal.Decimal `json:"balance"`
	Reason  string          `json:"reason"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type LocationDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CalendarDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	LocationID string     `json:"locationId,omitempty"`
	Thumbnail  []byte     `json:"thumbnail,omitempty"`
	MinTime    string     `json:"minTime"`
	MaxTime    string     `json:"maxTime"`
	Events     []EventDTO `json:"events,omitempty"`
}

type EventDTO struct {
	ID              string         `json:"id"`
	CalendarID      string         `json:"calendarId"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Date            string         `json:"date"`
	StartTime       string         `json:"startTime"`
	EndTime         string         `json:"endTime"`
	Price           int64          `json:"price"`
	DiscountPrice   int64          `json:"discountPrice"`
	MaximumCapacity int            `json:"maximumCapacity"`
	SpacesAvailable int            `json:"spacesAvailable"`
	SeriesID        string         `json:"seriesId,omitempty"`
	Recurrence      *RecurrenceDTO `json:"recurrence,omitempty"`
}

type ReservationDTO struct {
	ID              string `json:"id"`
	EventID         string `json:"eventId"`
	OwnerID         string `json:"ownerId"`
	DiscountApplied bool   `json:"discountApplied"`
	CreatedAt       string `json:"createdAt"`
}

// ReservationResultDTO answers a create or cancel with the new balance.
type ReservationResultDTO struct {
	Reservation *ReservationDTO `json:"reservation,omitempty"`
	Balance     int64           `json:"balance"`
}

type UserDTO struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Role             string `json:"role"`
	Balance          int64  `json:"balance"`
	HasDailyDiscount bool   `json:"hasDailyDiscount"`
	Enabled          bool   `json:"enabled"`
}

type CreditTransactionDTO struct {
	ID           string `json:"id"`
	Delta        int64  `json:"delta"`
	BalanceAfter int64  `json:"balanceAfter"`
	Type         string `json:"type"`
	ReferenceID  string `json:"referenceId,omitempty"`
	Reason       string `json:"reason,omitempty"`
	CreatedBy    string `json:"createdBy,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

type AuditDTO struct {
	At            string             `json:"at"`
	From          string             `json:"from"`
	Clean         bool               `json:"clean"`
	EventsChecked int                `json:"eventsChecked"`
	UsersChecked  int                `json:"usersChecked"`
	Capacity      []CapacityDriftDTO `json:"capacity"`
	Balances      []BalanceDriftDTO  `json:"balances"`
}

type CapacityDriftDTO struct {
	EventID         string `json:"eventId"`
	Date            string `json:"date"`
	MaximumCapacity int    `json:"maximumCapacity"`
	SpacesAvailable int    `json:"spacesAvailable"`
	Reservations    int    `json:"reservations"`
}

type BalanceDriftDTO struct {
	UserID        string `json:"userId"`
	Balance       int64  `json:"balance"`
	LoggedBalance int64  `json:"loggedBalance"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toLocationDTO(l booking.Location) LocationDTO { return LocationDTO{ID: l.ID, Name: l.Name} }

func toCalendarDTO(c booking.Calendar, events []booking.Event) CalendarDTO {
	dto := CalendarDTO{
		ID:         c.ID,
		Name:       c.Name,
		LocationID: c.LocationID,
		Thumbnail:  c.Thumbnail,
		MinTime:    c.MinTime.String(),
		MaxTime:    c.MaxTime.String(),
	}
	if events != nil {
		dto.Events = toEventDTOs(events)
	}
	return dto
}

func toEventDTO(e booking.Event) EventDTO {
	dto := EventDTO{
		ID:              e.ID,
		CalendarID:      e.CalendarID,
		Title:           e.Title,
		Description:     e.Description,
		Date:            e.Date.String(),
		StartTime:       e.StartTime.String(),
		EndTime:         e.EndTime.String(),
		Price:           int64(e.Price),
		DiscountPrice:   int64(e.DiscountPrice),
		MaximumCapacity: e.MaximumCapacity,
		SpacesAvailable: e.SpacesAvailable,
		SeriesID:        e.SeriesID,
	}
	if e.Recurrence != nil {
		days := make([]string, len(e.Recurrence.Weekdays))
		for i, d := range e.Recurrence.Weekdays {
			days[i] = weekdayName(d)
		}
		dto.Recurrence = &RecurrenceDTO{Days: days, RepeatUntil: e.Recurrence.Until.String()}
	}
	return dto
}

func toEventDTOs(events []booking.Event) []EventDTO {
	out := make([]EventDTO, len(events))
	for i, e := range events {
		out[i] = toEventDTO(e)
	}
	return out
}

func toReservationDTO(r booking.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:              r.ID,
		EventID:         r.EventID,
		OwnerID:         r.OwnerID,
		DiscountApplied: r.DiscountApplied,
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toUserDTO(u booking.User) UserDTO {
	return UserDTO{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             string(u.Role),
		Balance:          int64(u.Balance),
		HasDailyDiscount: u.HasDailyDiscount,
		Enabled:          u.Enabled,
	}
}

func toCreditTransactionDTO(tx booking.CreditTransaction) CreditTransactionDTO {
	return CreditTransactionDTO{
		ID:           tx.ID,
		Delta:        int64(tx.Delta),
		BalanceAfter: int64(tx.BalanceAfter),
		Type:         string(tx.Type),
		ReferenceID:  tx.ReferenceID,
		Reason:       tx.Reason,
		CreatedBy:    tx.CreatedBy,
		CreatedAt:    tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toAuditDTO(r booking.AuditReport) AuditDTO {
	dto := AuditDTO{
		At:            r.At.Format(time.RFC3339),
		From:          r.From.String(),
		Clean:         r.Clean(),
		EventsChecked: r.EventsChecked,
		UsersChecked:  r.UsersChecked,
		Capacity:      make([]CapacityDriftDTO, len(r.Capacity)),
		Balances:      make([]BalanceDriftDTO, len(r.Balances)),
	}
	for i, d := range r.Capacity {
		dto.Capacity[i] = CapacityDriftDTO{
			EventID:         d.EventID,
			Date:            d.Date.String(),
			MaximumCapacity: d.MaximumCapacity,
			SpacesAvailable: d.SpacesAvailable,
			Reservations:    d.Reservations,
		}
	}
	for i, d := range r.Balances {
		dto.Balances[i] = BalanceDriftDTO{UserID: d.UserID, Balance: int64(d.Balance), LoggedBalance: int64(d.LoggedBalance)}
	}
	return dto
}

// toEventInput parses the wire form of a new event.
func (req CreateEventRequest) toEventInput() (booking.EventInput, error) {
	in := booking.EventInput{
		Title:           req.Title,
		Description:     req.Description,
		MaximumCapacity: req.MaximumCapacity,
	}
	var err error
	if in.Date, err = parseDate("date", req.Date); err != nil {
		return in, err
	}
	if in.StartTime, err = parseTime("startTime", req.StartTime); err != nil {
		return in, err
	}
	if in.EndTime, err = parseTime("endTime", req.EndTime); err != nil {
		return in, err
	}
	if in.Price, err = toCredits("price", req.Price); err != nil {
		return in, err
	}
	if in.DiscountPrice, err = toCredits("discountPrice", req.DiscountPrice); err != nil {
		return in, err
	}
	if req.Recurrence != nil {
		if in.Recurrence, err = req.Recurrence.toRule(); err != nil {
			return in, err
		}
	}
	return in, nil
}

func (r RecurrenceDTO) toRule() (*booking.RecurrenceRule, error) {
	until, err := parseDate("recurrence.repeatUntil", r.RepeatUntil)
	if err != nil {
		return nil, err
	}
	rule := &booking.RecurrenceRule{Until: until}
	for _, name := range r.Days {
		wd, ok := weekdays[name]
		if !ok {
			return nil, &booking.InvalidArgumentError{Field: "recurrence.days", Message: fmt.Sprintf("unknown day %q", name)}
		}
		rule.Weekdays = append(rule.Weekdays, wd)
	}
	return rule, nil
}

var weekdays = map[string]time.Weekday{
	"SUNDAY": time.Sunday, "MONDAY": time.Monday, "TUESDAY": time.Tuesday, "WEDNESDAY": time.Wednesday,
	"THURSDAY": time.Thursday, "FRIDAY": time.Friday, "SATURDAY": time.Saturday,
}

func weekdayName(d time.Weekday) string {
	for name, wd := range weekdays {
		if wd == d {
			return name
		}
	}
	return d.String()
}

var maxCredits = decimal.NewFromInt(int64(booking.MaxCredits))

// toCredits accepts whole amounts in [0, booking.MaxCredits]. The range is
// checked on the decimal, before IntPart could truncate it.
func toCredits(field string, d decimal.Decimal) (booking.Credits, error) {
	if !d.IsInteger() {
		return 0, fmt.Errorf("%s %s is not a whole number of credits: %w", field, d, booking.ErrInvalidAmount)
	}
	if d.IsNegative() || d.GreaterThan(maxCredits) {
		return 0, fmt.Errorf("%s %s outside [0, %d]: %w", field, d, booking.MaxCredits, booking.ErrInvalidAmount)
	}
	return booking.Credits(d.IntPart()), nil
}

func parseDate(field, s string) (booking.Date, error) {
	d, err := booking.ParseDate(s)
	if err != nil {
		return booking.Date{}, &booking.InvalidArgumentError{Field: field, Message: "expected YYYY-MM-DD"}
	}
	return d, nil
}

func parseTime(field, s string) (booking.TimeOfDay, error) {
	t, err := booking.ParseTimeOfDay(s)
	if err != nil {
		return 0, &booking.InvalidArgumentError{Field: field, Message: "expected HH:MM"}
	}
	return t, nil
}
