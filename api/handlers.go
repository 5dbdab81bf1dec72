/*
handlers.go - HTTP API handlers for the reservation system

PURPOSE:
  Exposes the booking engine via REST. Handles request parsing, JSON
  serialization and error mapping, and delegates every decision to the
  booking services.

ENDPOINTS:
  Locations:
    GET    /api/locations                    List locations
    POST   /api/locations                    Create location (admin)

  Calendars:
    GET    /api/calendars?q=                 List, optional name search
    POST   /api/calendars                    Create (admin)
    GET    /api/calendars/{id}?from=&to=     Calendar with events and bounds
    PUT    /api/calendars/{id}               Update (admin)
    DELETE /api/calendars/{id}               Delete (admin)
    GET    /api/calendars/{id}/events        Events in [from, to]
    POST   /api/calendars/{id}/events        Create single or recurring

  Events:
    POST   /api/events/expand                Preview a recurrence
    GET    /api/events/{id}                  Event
    PUT    /api/events/{id}                  Update title/description
    DELETE /api/events/{id}                  Delete (admin)

  Reservations:
    GET    /api/reservations                 Caller's reservations (admin: any)
    POST   /api/reservations                 Reserve a seat
    DELETE /api/reservations/{id}            Cancel and refund

  Admin:
    GET    /api/admin/audit                  Latest counter audit
    POST   /api/admin/audit                  Run the audit now

  Users:
    GET    /api/users                        List (admin)
    POST   /api/users                        Create or update profile (admin)
    GET    /api/users/{id}                   Account
    PUT    /api/users/{id}/balance           Set balance (admin)
    GET    /api/users/{id}/transactions      Credit history

ERROR HANDLING:
  writeDomainError maps booking errors to statuses:
  - 400: invalid argument, recurrence or amount
  - 402: insufficient funds
  - 403: forbidden
  - 404: not found
  - 409: full, closed, already reserved, conflict
  - 500: anything else (logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/xstejsk/bp-backup/booking"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *booking.Engine
	// Pinger is optional; /health checks it when set.
	Pinger Pinger
	// Audits is optional; the admin audit routes answer 404 without it.
	Audits *AuditScheduler
	log    *slog.Logger
}

// NewHandler creates a handler over engine. A nil logger means
// slog.Default().
func NewHandler(engine *booking.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Engine: engine, log: logger}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Pinger != nil {
		if err := h.Pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// LOCATIONS
// =============================================================================

func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.Engine.Calendars.ListLocations(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]LocationDTO, len(locs))
	for i, l := range locs {
		dtos[i] = toLocationDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req CreateLocationRequest
	if !decode(w, r, &req) {
		return
	}
	loc, err := h.Engine.Calendars.CreateLocation(r.Context(), callerFrom(r.Context()), req.Name)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLocationDTO(loc))
}

// =============================================================================
// CALENDARS
// =============================================================================

func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	cals, err := h.Engine.Calendars.ListCalendars(r.Context(), booking.CalendarFilter{Fulltext: r.URL.Query().Get("q")})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]CalendarDTO, len(cals))
	for i, c := range cals {
		dtos[i] = toCalendarDTO(c, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCalendar(w http.ResponseWriter, r *http.Request) {
	var req CalendarRequest
	if !decode(w, r, &req) {
		return
	}
	cal, err := h.Engine.Calendars.CreateCalendar(r.Context(), callerFrom(r.Context()), booking.CalendarInput{
		Name: req.Name, LocationID: req.LocationID, Thumbnail: req.Thumbnail,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCalendarDTO(cal, nil))
}

func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	from, to, err := optionalRange(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	cal, err := h.Engine.Calendars.GetCalendar(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	events := cal.Events
	if events == nil {
		events = []booking.Event{}
	}
	writeJSON(w, http.StatusOK, toCalendarDTO(cal.Calendar, events))
}

func (h *Handler) UpdateCalendar(w http.ResponseWriter, r *http.Request) {
	var req CalendarRequest
	if !decode(w, r, &req) {
		return
	}
	cal, err := h.Engine.Calendars.UpdateCalendar(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), booking.CalendarPatch{
		Name: req.Name, LocationID: req.LocationID, Thumbnail: req.Thumbnail,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalendarDTO(cal, nil))
}

func (h *Handler) DeleteCalendar(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Calendars.DeleteCalendar(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EVENTS
// =============================================================================

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate("from", r.URL.Query().Get("from"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	to, err := parseDate("to", r.URL.Query().Get("to"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	events, err := h.Engine.Events.ListEvents(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.toEventInput()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	events, err := h.Engine.Events.CreateEvent(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTOs(events))
}

// ExpandEvent previews the instances a recurrence would create. Nothing is
// stored.
func (h *Handler) ExpandEvent(w http.ResponseWriter, r *http.Request) {
	if err := booking.Authorize(callerFrom(r.Context()), booking.ActionManageEvents, ""); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req CreateEventRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.toEventInput()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := booking.CheckSeriesSpan(in.Date, in.Recurrence); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	seed := booking.Event{
		ID:              "preview",
		Title:           in.Title,
		Description:     in.Description,
		Date:            in.Date,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		Price:           in.Price,
		DiscountPrice:   in.DiscountPrice,
		MaximumCapacity: in.MaximumCapacity,
		SpacesAvailable: in.MaximumCapacity,
	}
	seq, err := booking.ExpandRecurrence(seed, in.Recurrence)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(slices.Collect(seq)))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Engine.Events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req UpdateEventRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := h.Engine.Events.UpdateEvent(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"),
		booking.EventPatch{Title: req.Title, Description: req.Description}, req.UpdateSeries)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Events.DeleteEvent(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := booking.ReservationFilter{
		OwnerID:    q.Get("ownerId"),
		EventID:    q.Get("eventId"),
		CalendarID: q.Get("calendarId"),
	}
	if s := q.Get("from"); s != "" {
		from, err := parseDate("from", s)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		filter.From = &from
	}
	list, err := h.Engine.Reservations.ListReservations(r.Context(), callerFrom(r.Context()), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]ReservationDTO, len(list))
	for i, res := range list {
		dtos[i] = toReservationDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if !decode(w, r, &req) {
		return
	}
	caller := callerFrom(r.Context())
	userID := req.UserID
	if userID == "" {
		userID = caller.UserID
	}
	res, balance, err := h.Engine.Reservations.CreateReservation(r.Context(), req.EventID, userID, caller)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dto := toReservationDTO(res)
	writeJSON(w, http.StatusCreated, ReservationResultDTO{Reservation: &dto, Balance: int64(balance)})
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	balance, err := h.Engine.Reservations.CancelReservation(r.Context(), chi.URLParam(r, "id"), callerFrom(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReservationResultDTO{Balance: int64(balance)})
}

// =============================================================================
// USERS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Engine.Accounts.ListUsers(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveUser(w http.ResponseWriter, r *http.Request) {
	var req SaveUserRequest
	if !decode(w, r, &req) {
		return
	}
	initial, err := toCredits("initialBalance", req.InitialBalance)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	u, err := h.Engine.Accounts.SaveUser(r.Context(), callerFrom(r.Context()), booking.UserInput{
		ID:               req.ID,
		Email:            req.Email,
		Name:             req.Name,
		Role:             booking.ParseRole(req.Role),
		HasDailyDiscount: req.HasDailyDiscount,
		Enabled:          req.Enabled,
		InitialBalance:   initial,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Engine.Accounts.GetUser(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req AdjustBalanceRequest
	if !decode(w, r, &req) {
		return
	}
	balance, err := toCredits("balance", req.Balance)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	u, err := h.Engine.Accounts.AdjustBalance(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), balance, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

func (h *Handler) CreditHistory(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Engine.Accounts.CreditHistory(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]CreditTransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toCreditTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps booking errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrInvalidArgument),
		errors.Is(err, booking.ErrInvalidRecurrence),
		errors.Is(err, booking.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrEventFull),
		errors.Is(err, booking.ErrEventClosed),
		errors.Is(err, booking.ErrAlreadyReserved),
		errors.Is(err, booking.ErrConflict),
		errors.Is(err, booking.ErrDuplicateIdempotencyKey):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, status, "Internal error", nil)
		return
	}
	writeError(w, status, http.StatusText(status), err)
}

// decode reads a JSON body, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// optionalRange reads the from/to query parameters; absent ones are nil.
func optionalRange(r *http.Request) (from, to *booking.Date, err error) {
	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		d, err := parseDate("from", s)
		if err != nil {
			return nil, nil, err
		}
		from = &d
	}
	if s := q.Get("to"); s != "" {
		d, err := parseDate("to", s)
		if err != nil {
			return nil, nil, err
		}
		to = &d
	}
	return from, to, nil
}
