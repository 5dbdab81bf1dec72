package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xstejsk/bp-backup/booking"
)

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	err      error
	closed   bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.exchange, c.key = exchange, key
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func sample() booking.Notification {
	return booking.Notification{
		Kind:        booking.NotifyReservationCreated,
		Reservation: booking.Reservation{ID: "r1", EventID: "e1", OwnerID: "alice", DiscountApplied: true},
		Event: booking.Event{
			ID: "e1", CalendarID: "c1", Title: "Vinyasa",
			Date:      booking.MustParseDate("2026-10-20"),
			StartTime: booking.MustParseTimeOfDay("18:00"),
			EndTime:   booking.MustParseTimeOfDay("19:00"),
		},
		Balance: 60,
		At:      time.Date(2026, time.October, 18, 8, 0, 0, 0, time.UTC),
	}
}

func TestAMQP_PublishesJSONByKind(t *testing.T) {
	// GIVEN
	ch := &fakeChannel{}
	p := &AMQP{ch: ch, exchange: "reservations"}

	// WHEN
	require.NoError(t, p.Notify(context.Background(), sample()))

	// THEN
	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "reservations", ch.exchange)
	assert.Equal(t, "reservation.created", ch.key)
	msg := ch.msgs[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "reservation.created:r1", msg.MessageId)

	var got Message
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, "r1", got.ReservationID)
	assert.Equal(t, "2026-10-20", got.EventDate)
	assert.Equal(t, "18:00", got.StartTime)
	assert.True(t, got.DiscountApplied)
	assert.Equal(t, int64(60), got.Balance)
	assert.Contains(t, string(msg.Body), `"eventTitle":"Vinyasa"`)
}

func TestAMQP_PublishErrorIsWrapped(t *testing.T) {
	boom := errors.New("channel closed")
	p := &AMQP{ch: &fakeChannel{err: boom}, exchange: "reservations"}

	err := p.Notify(context.Background(), sample())

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "reservation.created")
}

func TestAMQP_Close(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQP{ch: ch}
	assert.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestLog_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	n := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, n.Notify(context.Background(), sample()))

	out := buf.String()
	assert.Contains(t, out, "kind=reservation.created")
	assert.Contains(t, out, "reservation_id=r1")
	assert.Contains(t, out, "balance=60")
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("down")
	ok := &fakeChannel{}
	m := Multi{
		&AMQP{ch: &fakeChannel{err: boom}, exchange: "x"},
		&AMQP{ch: ok, exchange: "x"},
		Nop{},
	}

	err := m.Notify(context.Background(), sample())

	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.msgs, 1)
}
