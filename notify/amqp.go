package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xstejsk/bp-backup/booking"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is the JSON body published for a notification.
type Message struct {
	Kind            string    `json:"kind"`
	ReservationID   string    `json:"reservationId"`
	OwnerID         string    `json:"ownerId"`
	EventID         string    `json:"eventId"`
	CalendarID      string    `json:"calendarId"`
	EventTitle      string    `json:"eventTitle"`
	EventDate       string    `json:"eventDate"`
	StartTime       string    `json:"startTime"`
	EndTime         string    `json:"endTime"`
	DiscountApplied bool      `json:"discountApplied"`
	Balance         int64     `json:"balance"`
	At              time.Time `json:"at"`
}

// NewMessage flattens a notification.
func NewMessage(n booking.Notification) Message {
	return Message{
		Kind:            string(n.Kind),
		ReservationID:   n.Reservation.ID,
		OwnerID:         n.Reservation.OwnerID,
		EventID:         n.Event.ID,
		CalendarID:      n.Event.CalendarID,
		EventTitle:      n.Event.Title,
		EventDate:       n.Event.Date.String(),
		StartTime:       n.Event.StartTime.String(),
		EndTime:         n.Event.EndTime.String(),
		DiscountApplied: n.Reservation.DiscountApplied,
		Balance:         int64(n.Balance),
		At:              n.At.UTC(),
	}
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes notifications to a topic exchange.
type AMQP struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
}

// DialAMQP connects to url and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQP{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQP) Notify(ctx context.Context, n booking.Notification) error {
	body, err := json.Marshal(NewMessage(n))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, string(n.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    string(n.Kind) + ":" + n.Reservation.ID,
		Timestamp:    n.At.UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", n.Kind, err)
	}
	return nil
}

func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
