/*
Package notify delivers booking.Notification values.

IMPLEMENTATIONS:
  Log:      writes each notification as a structured slog record
  AMQP:     publishes JSON to a RabbitMQ topic exchange, routing key = kind
  Multi:    fans out to several notifiers, joining their errors
  Nop:      discards

Notifiers are called after the reservation transaction commits. Their
errors are logged by the booking engine and never undo a reservation.
*/
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xstejsk/bp-backup/booking"
)

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, booking.Notification) error { return nil }

// Log writes notifications to a slog.Logger at info level.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, n booking.Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"kind", string(n.Kind),
		"reservation_id", n.Reservation.ID,
		"event_id", n.Event.ID,
		"owner_id", n.Reservation.OwnerID,
		"event_date", n.Event.Date.String(),
		"balance", int64(n.Balance),
	)
	return nil
}

// Multi sends to every notifier, even when one fails.
type Multi []booking.Notifier

func (m Multi) Notify(ctx context.Context, n booking.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ booking.Notifier = Nop{}
	_ booking.Notifier = Log{}
	_ booking.Notifier = Multi(nil)
	_ booking.Notifier = (*AMQP)(nil)
)
