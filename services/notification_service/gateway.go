// services/notification_service
package notification_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/outbox_models"
	"github.com/joy095/dispatch/utils/mail"
)

// Gateway delivers one notification to its recipient.
type Gateway interface {
	Send(ctx context.Context, n outbox_models.Notification) error
}

// LogGateway writes notifications to the log. Used in development.
type LogGateway struct{}

func (LogGateway) Send(_ context.Context, n outbox_models.Notification) error {
	logger.InfoLogger.WithFields(map[string]any{
		"recipient": n.RecipientID.String(),
		"type":      n.Type,
		"priority":  n.Priority,
	}).Infof("Notification: %s", string(n.Payload))
	return nil
}

// amqpChannel is the slice of *amqp.Channel the gateway publishes through.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPGateway publishes notifications to a topic exchange, routed by
// "notification.<type>", for the push delivery service to consume.
type AMQPGateway struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

func NewAMQPGateway(url, exchange string) (*AMQPGateway, error) {
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
	return &AMQPGateway{conn: conn, ch: ch, exchange: exchange}, nil
}

// RoutingKey maps a notification type to its routing key.
func RoutingKey(notificationType string) string {
	return "notification." + strings.ToLower(notificationType)
}

func (g *AMQPGateway) Send(ctx context.Context, n outbox_models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	var priority uint8
	if n.Priority == outbox_models.PriorityHigh {
		priority = 9
	}
	return g.ch.PublishWithContext(ctx, g.exchange, RoutingKey(n.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID.String(),
		Priority:     priority,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (g *AMQPGateway) Close() error {
	if g.ch != nil {
		_ = g.ch.Close()
	}
	if g.conn != nil {
		return g.conn.Close()
	}
	return nil
}

// ErrNoAddress means the directory has no email address for the recipient.
var ErrNoAddress = errors.New("no email address for recipient")

// Directory resolves a recipient id to an email address.
type Directory interface {
	EmailFor(ctx context.Context, recipientID uuid.UUID) (string, error)
}

// EmailGateway renders notifications through the booking email template.
// Recipients without an address are skipped.
type EmailGateway struct {
	mailer    *mail.Mailer
	directory Directory
}

func NewEmailGateway(mailer *mail.Mailer, directory Directory) *EmailGateway {
	return &EmailGateway{mailer: mailer, directory: directory}
}

var subjects = map[string]string{
	outbox_models.TypeNewBooking:         "New booking near you",
	outbox_models.TypeEmergencyBooking:   "Emergency booking near you",
	outbox_models.TypeBookingAccepted:    "Your booking was accepted",
	outbox_models.TypeBookingCompleted:   "Booking completed",
	outbox_models.TypeBookingRescheduled: "Booking rescheduled",
	outbox_models.TypeBookingCancelled:   "Booking cancelled",
	outbox_models.TypeBookingProvisional: "Booking update",
	outbox_models.TypeBookingUnmatched:   "We could not find a professional",
}

func (g *EmailGateway) Send(ctx context.Context, n outbox_models.Notification) error {
	to, err := g.directory.EmailFor(ctx, n.RecipientID)
	if errors.Is(err, ErrNoAddress) {
		logger.DebugLogger.Debugf("No email address for %s, skipping %s", n.RecipientID, n.Type)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve email for %s: %w", n.RecipientID, err)
	}

	var payload map[string]any
	if len(n.Payload) > 0 {
		if err := json.Unmarshal(n.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", n.Type, err)
		}
	}
	subject, ok := subjects[n.Type]
	if !ok {
		subject = "Booking update"
	}
	data := map[string]any{
		"Title":         subject,
		"Message":       payload["message"],
		"BookingID":     payload["bookingId"],
		"ScheduledDate": payload["scheduledDate"],
		"Reason":        payload["reason"],
	}
	return g.mailer.Send(to, subject, mail.BookingTemplate, data)
}

// Fanout sends to every gateway and reports the first failure.
type Fanout []Gateway

func (f Fanout) Send(ctx context.Context, n outbox_models.Notification) error {
	var errs []error
	for _, g := range f {
		if err := g.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
