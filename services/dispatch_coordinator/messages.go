package dispatch_coordinator

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/services/booking_store"
	"github.com/joy095/dispatch/services/realtime_service"
	"github.com/joy095/dispatch/utils"
)

// MaxMessageLength bounds a chat message in characters.
const MaxMessageLength = 1000

// Message is a chat line relayed between the parties of a booking.
// Messages are pushed live and never stored.
type Message struct {
	BookingID   uuid.UUID `json:"bookingId"`
	SenderID    uuid.UUID `json:"senderId"`
	RecipientID uuid.UUID `json:"recipientId"`
	Message     string    `json:"message"`
	SentAt      time.Time `json:"sentAt"`
}

// SendMessage relays text from actor to the other party of the booking:
// the customer writes to the assigned professional, anyone else writes to
// the customer.
func (c *Coordinator) SendMessage(ctx context.Context, id uuid.UUID, actor Actor, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, utils.NewValidationError("Message is required")
	case utf8.RuneCountInString(text) > MaxMessageLength:
		return nil, utils.NewValidationError("Message must be at most %d characters", MaxMessageLength)
	case c.filter.Contains(text):
		return nil, utils.NewValidationError(MsgInappropriateMessage)
	}

	b, err := c.bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := booking_store.CheckAccess(b, actor.ID, actor.Role); err != nil {
		return nil, err
	}

	recipient := b.CustomerID
	if actor.ID == b.CustomerID {
		if b.ProfessionalID == nil {
			return nil, utils.NewConflictError(MsgNoRecipient)
		}
		recipient = *b.ProfessionalID
	}

	msg := &Message{
		BookingID:   b.ID,
		SenderID:    actor.ID,
		RecipientID: recipient,
		Message:     text,
		SentAt:      time.Now().UTC(),
	}
	if err := c.bus.Emit(ctx, realtime_service.UserRoom(recipient), realtime_service.EventNewMessage, msg); err != nil {
		logger.ErrorLogger.Errorf("Failed to relay message on booking %s to %s: %v", b.ID, recipient, err)
		return nil, utils.NewRetryableError("Failed to send message", err)
	}
	return msg, nil
}
