package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/xstejsk/bp-backup/booking"
)

// =============================================================================
// ROW TYPES - Column mapping for sqlx
// =============================================================================

type locationRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

type calendarRow struct {
	ID         string         `db:"id"`
	Name       string         `db:"name"`
	LocationID sql.NullString `db:"location_id"`
	Thumbnail  []byte         `db:"thumbnail"`
	CreatedAt  string         `db:"created_at"`
}

var calendarColumns = []any{"id", "name", "location_id", "thumbnail", "created_at"}

func (r calendarRow) toCalendar() booking.Calendar {
	return booking.Calendar{
		ID:         r.ID,
		Name:       r.Name,
		LocationID: r.LocationID.String,
		Thumbnail:  r.Thumbnail,
		CreatedAt:  parseTimestamp(r.CreatedAt),
	}
}

func calendarRecord(c booking.Calendar) goqu.Record {
	return goqu.Record{
		"id":          c.ID,
		"name":        c.Name,
		"location_id": nullString(c.LocationID),
		"thumbnail":   c.Thumbnail,
		"created_at":  formatTimestamp(c.CreatedAt),
	}
}

type eventRow struct {
	ID              string         `db:"id"`
	CalendarID      string         `db:"calendar_id"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	Date            string         `db:"event_date"`
	StartTime       string         `db:"start_time"`
	EndTime         string         `db:"end_time"`
	Price           int64          `db:"price"`
	DiscountPrice   int64          `db:"discount_price"`
	MaximumCapacity int            `db:"maximum_capacity"`
	SpacesAvailable int            `db:"spaces_available"`
	RecurrenceDays  sql.NullString `db:"recurrence_days"`
	RepeatUntil     sql.NullString `db:"repeat_until"`
	SeriesID        sql.NullString `db:"series_id"`
	CreatedAt       string         `db:"created_at"`
}

var eventColumns = []any{
	"id", "calendar_id", "title", "description", "event_date", "start_time", "end_time",
	"price", "discount_price", "maximum_capacity", "spaces_available",
	"recurrence_days", "repeat_until", "series_id", "created_at",
}

func (r eventRow) toEvent() (booking.Event, error) {
	date, err := booking.ParseDate(r.Date)
	if err != nil {
		return booking.Event{}, err
	}
	start, err := booking.ParseTimeOfDay(r.StartTime)
	if err != nil {
		return booking.Event{}, err
	}
	end, err := booking.ParseTimeOfDay(r.EndTime)
	if err != nil {
		return booking.Event{}, err
	}
	ev := booking.Event{
		ID:              r.ID,
		CalendarID:      r.CalendarID,
		Title:           r.Title,
		Description:     r.Description,
		Date:            date,
		StartTime:       start,
		EndTime:         end,
		Price:           booking.Credits(r.Price),
		DiscountPrice:   booking.Credits(r.DiscountPrice),
		MaximumCapacity: r.MaximumCapacity,
		SpacesAvailable: r.SpacesAvailable,
		SeriesID:        r.SeriesID.String,
		CreatedAt:       parseTimestamp(r.CreatedAt),
	}
	if r.RecurrenceDays.Valid && r.RepeatUntil.Valid {
		until, err := booking.ParseDate(r.RepeatUntil.String)
		if err != nil {
			return booking.Event{}, err
		}
		days, err := parseWeekdays(r.RecurrenceDays.String)
		if err != nil {
			return booking.Event{}, err
		}
		ev.Recurrence = &booking.RecurrenceRule{Weekdays: days, Until: until}
	}
	return ev, nil
}

func eventRecord(ev booking.Event) goqu.Record {
	rec := goqu.Record{
		"id":               ev.ID,
		"calendar_id":      ev.CalendarID,
		"title":            ev.Title,
		"description":      ev.Description,
		"event_date":       ev.Date.String(),
		"start_time":       ev.StartTime.String(),
		"end_time":         ev.EndTime.String(),
		"price":            int64(ev.Price),
		"discount_price":   int64(ev.DiscountPrice),
		"maximum_capacity": ev.MaximumCapacity,
		"spaces_available": ev.SpacesAvailable,
		"recurrence_days":  sql.NullString{},
		"repeat_until":     sql.NullString{},
		"series_id":        nullString(ev.SeriesID),
		"created_at":       formatTimestamp(ev.CreatedAt),
	}
	if ev.Recurrence != nil {
		rec["recurrence_days"] = formatWeekdays(ev.Recurrence.Weekdays)
		rec["repeat_until"] = ev.Recurrence.Until.String()
	}
	return rec
}

type reservationRow struct {
	ID              string `db:"id"`
	EventID         string `db:"event_id"`
	OwnerID         string `db:"owner_id"`
	DiscountApplied bool   `db:"discount_applied"`
	CreatedAt       string `db:"created_at"`
}

func (r reservationRow) toReservation() booking.Reservation {
	return booking.Reservation{
		ID:              r.ID,
		EventID:         r.EventID,
		OwnerID:         r.OwnerID,
		DiscountApplied: r.DiscountApplied,
		CreatedAt:       parseTimestamp(r.CreatedAt),
	}
}

type userRow struct {
	ID               string `db:"id"`
	Email            string `db:"email"`
	Name             string `db:"name"`
	Role             string `db:"role"`
	Balance          int64  `db:"balance"`
	HasDailyDiscount bool   `db:"has_daily_discount"`
	Enabled          bool   `db:"enabled"`
	CreatedAt        string `db:"created_at"`
}

var userColumns = []any{"id", "email", "name", "role", "balance", "has_daily_discount", "enabled", "created_at"}

func (r userRow) toUser() booking.User {
	return booking.User{
		ID:               r.ID,
		Email:            r.Email,
		Name:             r.Name,
		Role:             booking.ParseRole(r.Role),
		Balance:          booking.Credits(r.Balance),
		HasDailyDiscount: r.HasDailyDiscount,
		Enabled:          r.Enabled,
		CreatedAt:        parseTimestamp(r.CreatedAt),
	}
}

type creditRow struct {
	ID             string         `db:"id"`
	UserID         string         `db:"user_id"`
	Delta          int64          `db:"delta"`
	BalanceAfter   int64          `db:"balance_after"`
	Type           string         `db:"tx_type"`
	ReferenceID    sql.NullString `db:"reference_id"`
	Reason         string         `db:"reason"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	CreatedBy      string         `db:"created_by"`
	CreatedAt      string         `db:"created_at"`
}

var creditColumns = []any{
	"id", "user_id", "delta", "balance_after", "tx_type", "reference_id",
	"reason", "idempotency_key", "created_by", "created_at",
}

func (r creditRow) toCredit() booking.CreditTransaction {
	return booking.CreditTransaction{
		ID:             r.ID,
		UserID:         r.UserID,
		Delta:          booking.Credits(r.Delta),
		BalanceAfter:   booking.Credits(r.BalanceAfter),
		Type:           booking.CreditTxType(r.Type),
		ReferenceID:    r.ReferenceID.String,
		Reason:         r.Reason,
		IdempotencyKey: r.IdempotencyKey.String,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      parseTimestamp(r.CreatedAt),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTimestamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Weekdays are stored as "1,3,5" (Sunday = 0).
func formatWeekdays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func parseWeekdays(s string) ([]time.Weekday, error) {
	if s == "" {
		return nil, nil
	}
	var days []time.Weekday
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid weekday %q", p)
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}

func isUniqueConstraintError(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

func notFound(kind, id string) error { return &booking.NotFoundError{Kind: kind, ID: id} }
