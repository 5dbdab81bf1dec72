package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/xstejsk/bp-backup/booking"
)

// queries implements booking.Store over a *sqlx.DB or a *sqlx.Tx. The same
// code serves the store and the view handed to WithTx callbacks.
type queries struct {
	q       sqlx.ExtContext
	dialect goqu.DialectWrapper
	// lockRows appends FOR UPDATE to LockEvent/LockUser.
	lockRows bool
}

var _ booking.Store = (*queries)(nil)

type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func (s *queries) exec(ctx context.Context, b sqlBuilder) (int64, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return 0, err
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *queries) get(ctx context.Context, dest any, b sqlBuilder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, s.q, dest, query, args...)
}

func (s *queries) selectAll(ctx context.Context, dest any, b sqlBuilder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, s.q, dest, query, args...)
}

func (s *queries) from(table string) *goqu.SelectDataset {
	return s.dialect.From(table).Prepared(true)
}

// =============================================================================
// LOCATIONS
// =============================================================================

func (s *queries) CreateLocation(ctx context.Context, loc booking.Location) error {
	_, err := s.exec(ctx, s.dialect.Insert("locations").Prepared(true).
		Rows(goqu.Record{"id": loc.ID, "name": loc.Name}))
	if isUniqueConstraintError(err) {
		return &booking.ConflictError{Kind: "location", ID: loc.ID, Reason: "name " + loc.Name + " is taken"}
	}
	if err != nil {
		return fmt.Errorf("failed to insert location: %w", err)
	}
	return nil
}

func (s *queries) GetLocation(ctx context.Context, id string) (booking.Location, error) {
	var row locationRow
	err := s.get(ctx, &row, s.from("locations").Select("id", "name").Where(goqu.Ex{"id": id}))
	if isNoRows(err) {
		return booking.Location{}, notFound("location", id)
	}
	if err != nil {
		return booking.Location{}, fmt.Errorf("failed to get location: %w", err)
	}
	return booking.Location(row), nil
}

func (s *queries) ListLocations(ctx context.Context) ([]booking.Location, error) {
	var rows []locationRow
	if err := s.selectAll(ctx, &rows, s.from("locations").Select("id", "name").Order(goqu.C("name").Asc())); err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	out := make([]booking.Location, len(rows))
	for i, r := range rows {
		out[i] = booking.Location(r)
	}
	return out, nil
}

// =============================================================================
// CALENDARS
// =============================================================================

func (s *queries) CreateCalendar(ctx context.Context, cal booking.Calendar) error {
	_, err := s.exec(ctx, s.dialect.Insert("calendars").Prepared(true).Rows(calendarRecord(cal)))
	if isUniqueConstraintError(err) {
		return &booking.ConflictError{Kind: "calendar", ID: cal.ID, Reason: "name " + cal.Name + " is taken"}
	}
	if err != nil {
		return fmt.Errorf("failed to insert calendar: %w", err)
	}
	return nil
}

func (s *queries) UpdateCalendar(ctx context.Context, cal booking.Calendar) error {
	rec := calendarRecord(cal)
	delete(rec, "id")
	delete(rec, "created_at")
	n, err := s.exec(ctx, s.dialect.Update("calendars").Prepared(true).Set(rec).Where(goqu.Ex{"id": cal.ID}))
	if isUniqueConstraintError(err) {
		return &booking.ConflictError{Kind: "calendar", ID: cal.ID, Reason: "name " + cal.Name + " is taken"}
	}
	if err != nil {
		return fmt.Errorf("failed to update calendar: %w", err)
	}
	if n == 0 {
		return notFound("calendar", cal.ID)
	}
	return nil
}

func (s *queries) GetCalendar(ctx context.Context, id string) (booking.Calendar, error) {
	var row calendarRow
	err := s.get(ctx, &row, s.from("calendars").Select(calendarColumns...).Where(goqu.Ex{"id": id}))
	if isNoRows(err) {
		return booking.Calendar{}, notFound("calendar", id)
	}
	if err != nil {
		return booking.Calendar{}, fmt.Errorf("failed to get calendar: %w", err)
	}
	return row.toCalendar(), nil
}

func (s *queries) ListCalendars(ctx context.Context, f booking.CalendarFilter) ([]booking.Calendar, error) {
	ds := s.from("calendars").Select(calendarColumns...).Order(goqu.C("name").Asc())
	if f.Fulltext != "" {
		ds = ds.Where(goqu.L("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Fulltext)+"%"))
	}
	var rows []calendarRow
	if err := s.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	out := make([]booking.Calendar, len(rows))
	for i, r := range rows {
		out[i] = r.toCalendar()
	}
	return out, nil
}

// DeleteCalendar removes the reservations of the calendar's events, the
// events and the calendar.
func (s *queries) DeleteCalendar(ctx context.Context, id string) error {
	eventIDs := s.from("events").Select("id").Where(goqu.Ex{"calendar_id": id})
	if _, err := s.exec(ctx, s.dialect.Delete("reservations").Prepared(true).Where(goqu.C("event_id").In(eventIDs))); err != nil {
		return fmt.Errorf("failed to delete reservations of calendar: %w", err)
	}
	if _, err := s.exec(ctx, s.dialect.Delete("events").Prepared(true).Where(goqu.Ex{"calendar_id": id})); err != nil {
		return fmt.Errorf("failed to delete events of calendar: %w", err)
	}
	n, err := s.exec(ctx, s.dialect.Delete("calendars").Prepared(true).Where(goqu.Ex{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to delete calendar: %w", err)
	}
	if n == 0 {
		return notFound("calendar", id)
	}
	return nil
}

// =============================================================================
// EVENTS
// =============================================================================

func (s *queries) InsertEvents(ctx context.Context, events []booking.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]any, len(events))
	for i, ev := range events {
		rows[i] = eventRecord(ev)
	}
	if _, err := s.exec(ctx, s.dialect.Insert("events").Prepared(true).Rows(rows...)); err != nil {
		return fmt.Errorf("failed to insert events: %w", err)
	}
	return nil
}

func (s *queries) GetEvent(ctx context.Context, id string) (booking.Event, error) {
	return s.getEvent(ctx, id, false)
}

func (s *queries) LockEvent(ctx context.Context, id string) (booking.Event, error) {
	return s.getEvent(ctx, id, s.lockRows)
}

func (s *queries) getEvent(ctx context.Context, id string, lock bool) (booking.Event, error) {
	ds := s.from("events").Select(eventColumns...).Where(goqu.Ex{"id": id})
	if lock {
		ds = ds.ForUpdate(exp.Wait)
	}
	var row eventRow
	err := s.get(ctx, &row, ds)
	if isNoRows(err) {
		return booking.Event{}, notFound("event", id)
	}
	if err != nil {
		return booking.Event{}, fmt.Errorf("failed to get event: %w", err)
	}
	return row.toEvent()
}

func (s *queries) ListEvents(ctx context.Context, f booking.EventFilter) ([]booking.Event, error) {
	ds := s.from("events").Select(eventColumns...).
		Order(goqu.C("event_date").Asc(), goqu.C("start_time").Asc(), goqu.C("id").Asc())
	if f.CalendarID != "" {
		ds = ds.Where(goqu.Ex{"calendar_id": f.CalendarID})
	}
	if f.SeriesID != "" {
		ds = ds.Where(goqu.Ex{"series_id": f.SeriesID})
	}
	if f.From != nil {
		ds = ds.Where(goqu.C("event_date").Gte(f.From.String()))
	}
	if f.To != nil {
		ds = ds.Where(goqu.C("event_date").Lte(f.To.String()))
	}
	var rows []eventRow
	if err := s.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	out := make([]booking.Event, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toEvent()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *queries) UpdateEvent(ctx context.Context, ev booking.Event) error {
	rec := eventRecord(ev)
	delete(rec, "id")
	delete(rec, "created_at")
	n, err := s.exec(ctx, s.dialect.Update("events").Prepared(true).Set(rec).Where(goqu.Ex{"id": ev.ID}))
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if n == 0 {
		return notFound("event", ev.ID)
	}
	return nil
}

func (s *queries) DeleteEvent(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, s.dialect.Delete("reservations").Prepared(true).Where(goqu.Ex{"event_id": id})); err != nil {
		return fmt.Errorf("failed to delete reservations of event: %w", err)
	}
	n, err := s.exec(ctx, s.dialect.Delete("events").Prepared(true).Where(goqu.Ex{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n == 0 {
		return notFound("event", id)
	}
	return nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// reservations joined with their events, for filters and ordering by
// event date.
func (s *queries) reservationsJoined() *goqu.SelectDataset {
	return s.dialect.From(goqu.T("reservations").As("r")).Prepared(true).
		Join(goqu.T("events").As("e"), goqu.On(goqu.I("e.id").Eq(goqu.I("r.event_id")))).
		Select("r.id", "r.event_id", "r.owner_id", "r.discount_applied", "r.created_at")
}

func (s *queries) InsertReservation(ctx context.Context, r booking.Reservation) error {
	_, err := s.exec(ctx, s.dialect.Insert("reservations").Prepared(true).Rows(goqu.Record{
		"id":               r.ID,
		"event_id":         r.EventID,
		"owner_id":         r.OwnerID,
		"discount_applied": r.DiscountApplied,
		"created_at":       formatTimestamp(r.CreatedAt),
	}))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("event %s, user %s: %w", r.EventID, r.OwnerID, booking.ErrAlreadyReserved)
	}
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

func (s *queries) GetReservation(ctx context.Context, id string) (booking.Reservation, error) {
	var row reservationRow
	err := s.get(ctx, &row, s.from("reservations").
		Select("id", "event_id", "owner_id", "discount_applied", "created_at").
		Where(goqu.Ex{"id": id}))
	if isNoRows(err) {
		return booking.Reservation{}, notFound("reservation", id)
	}
	if err != nil {
		return booking.Reservation{}, fmt.Errorf("failed to get reservation: %w", err)
	}
	return row.toReservation(), nil
}

func (s *queries) FindReservation(ctx context.Context, eventID, ownerID string) (booking.Reservation, bool, error) {
	var row reservationRow
	err := s.get(ctx, &row, s.from("reservations").
		Select("id", "event_id", "owner_id", "discount_applied", "created_at").
		Where(goqu.Ex{"event_id": eventID, "owner_id": ownerID}))
	if isNoRows(err) {
		return booking.Reservation{}, false, nil
	}
	if err != nil {
		return booking.Reservation{}, false, fmt.Errorf("failed to find reservation: %w", err)
	}
	return row.toReservation(), true, nil
}

func (s *queries) ListReservations(ctx context.Context, f booking.ReservationFilter) ([]booking.Reservation, error) {
	ds := s.reservationsJoined().
		Order(goqu.I("e.event_date").Asc(), goqu.I("e.start_time").Asc(), goqu.I("r.id").Asc())
	if f.OwnerID != "" {
		ds = ds.Where(goqu.Ex{"r.owner_id": f.OwnerID})
	}
	if f.EventID != "" {
		ds = ds.Where(goqu.Ex{"r.event_id": f.EventID})
	}
	if f.CalendarID != "" {
		ds = ds.Where(goqu.Ex{"e.calendar_id": f.CalendarID})
	}
	if f.From != nil {
		ds = ds.Where(goqu.I("e.event_date").Gte(f.From.String()))
	}
	var rows []reservationRow
	if err := s.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	out := make([]booking.Reservation, len(rows))
	for i, r := range rows {
		out[i] = r.toReservation()
	}
	return out, nil
}

func (s *queries) DeleteReservation(ctx context.Context, id string) error {
	n, err := s.exec(ctx, s.dialect.Delete("reservations").Prepared(true).Where(goqu.Ex{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	if n == 0 {
		return notFound("reservation", id)
	}
	return nil
}

func (s *queries) HasReservationOn(ctx context.Context, ownerID string, date booking.Date, exceptEventID string) (bool, error) {
	ds := s.dialect.From(goqu.T("reservations").As("r")).Prepared(true).
		Join(goqu.T("events").As("e"), goqu.On(goqu.I("e.id").Eq(goqu.I("r.event_id")))).
		Select(goqu.COUNT(goqu.Star())).
		Where(
			goqu.Ex{"r.owner_id": ownerID, "e.event_date": date.String()},
			goqu.I("r.event_id").Neq(exceptEventID),
		)
	var n int
	if err := s.get(ctx, &n, ds); err != nil {
		return false, fmt.Errorf("failed to count reservations: %w", err)
	}
	return n > 0, nil
}

// =============================================================================
// USERS
// =============================================================================

// SaveUser updates the profile columns of an existing user, or inserts the
// user with its balance.
func (s *queries) SaveUser(ctx context.Context, u booking.User) error {
	n, err := s.exec(ctx, s.dialect.Update("users").Prepared(true).Set(goqu.Record{
		"email":              u.Email,
		"name":               u.Name,
		"role":               string(u.Role),
		"has_daily_discount": u.HasDailyDiscount,
		"enabled":            u.Enabled,
	}).Where(goqu.Ex{"id": u.ID}))
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err = s.exec(ctx, s.dialect.Insert("users").Prepared(true).Rows(goqu.Record{
		"id":                 u.ID,
		"email":              u.Email,
		"name":               u.Name,
		"role":               string(u.Role),
		"balance":            int64(u.Balance),
		"has_daily_discount": u.HasDailyDiscount,
		"enabled":            u.Enabled,
		"created_at":         formatTimestamp(u.CreatedAt),
	}))
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *queries) GetUser(ctx context.Context, id string) (booking.User, error) {
	return s.getUser(ctx, id, false)
}

func (s *queries) LockUser(ctx context.Context, id string) (booking.User, error) {
	return s.getUser(ctx, id, s.lockRows)
}

func (s *queries) getUser(ctx context.Context, id string, lock bool) (booking.User, error) {
	ds := s.from("users").Select(userColumns...).Where(goqu.Ex{"id": id})
	if lock {
		ds = ds.ForUpdate(exp.Wait)
	}
	var row userRow
	err := s.get(ctx, &row, ds)
	if isNoRows(err) {
		return booking.User{}, notFound("user", id)
	}
	if err != nil {
		return booking.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toUser(), nil
}

func (s *queries) ListUsers(ctx context.Context) ([]booking.User, error) {
	var rows []userRow
	if err := s.selectAll(ctx, &rows, s.from("users").Select(userColumns...).Order(goqu.C("email").Asc())); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]booking.User, len(rows))
	for i, r := range rows {
		out[i] = r.toUser()
	}
	return out, nil
}

func (s *queries) SetBalance(ctx context.Context, userID string, balance booking.Credits) error {
	n, err := s.exec(ctx, s.dialect.Update("users").Prepared(true).
		Set(goqu.Record{"balance": int64(balance)}).
		Where(goqu.Ex{"id": userID}))
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	if n == 0 {
		return notFound("user", userID)
	}
	return nil
}

// =============================================================================
// CREDIT LOG (append-only)
// =============================================================================

func (s *queries) AppendCredit(ctx context.Context, tx booking.CreditTransaction) error {
	_, err := s.exec(ctx, s.dialect.Insert("credit_transactions").Prepared(true).Rows(goqu.Record{
		"id":              tx.ID,
		"user_id":         tx.UserID,
		"delta":           int64(tx.Delta),
		"balance_after":   int64(tx.BalanceAfter),
		"tx_type":         string(tx.Type),
		"reference_id":    nullString(tx.ReferenceID),
		"reason":          tx.Reason,
		"idempotency_key": nullString(tx.IdempotencyKey),
		"created_by":      tx.CreatedBy,
		"created_at":      formatTimestamp(tx.CreatedAt),
	}))
	if isUniqueConstraintError(err) {
		return booking.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("failed to append credit transaction: %w", err)
	}
	return nil
}

func (s *queries) CreditHistory(ctx context.Context, userID string) ([]booking.CreditTransaction, error) {
	var rows []creditRow
	err := s.selectAll(ctx, &rows, s.from("credit_transactions").
		Select(creditColumns...).
		Where(goqu.Ex{"user_id": userID}).
		Order(goqu.C("seq").Asc()))
	if err != nil {
		return nil, fmt.Errorf("failed to load credit history: %w", err)
	}
	out := make([]booking.CreditTransaction, len(rows))
	for i, r := range rows {
		out[i] = r.toCredit()
	}
	return out, nil
}
