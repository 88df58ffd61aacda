// models/outbox_models
package outbox_models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification types carried by outbox entries.
const (
	TypeNewBooking         = "NEW_BOOKING"
	TypeEmergencyBooking   = "EMERGENCY_BOOKING"
	TypeBookingAccepted    = "BOOKING_ACCEPTED"
	TypeBookingCompleted   = "BOOKING_COMPLETED"
	TypeBookingRescheduled = "BOOKING_RESCHEDULED"
	TypeBookingCancelled   = "BOOKING_CANCELLED"
	TypeBookingProvisional = "BOOKING_PROVISIONAL"
	TypeBookingUnmatched   = "BOOKING_UNMATCHED"
)

const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// OutboxEntry is a notification written in the same transaction as the
// state change that produced it and delivered later by the worker.
type OutboxEntry struct {
	ID            uuid.UUID       `json:"id"`
	RecipientID   uuid.UUID       `json:"recipientId"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Priority      string          `json:"priority"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	DeliveredAt   *time.Time      `json:"deliveredAt,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NewOutboxEntry marshals payload and makes the entry due immediately.
func NewOutboxEntry(recipientID uuid.UUID, notificationType, priority string, payload any) (*OutboxEntry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for outbox entry: %w", err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", notificationType, err)
	}
	if priority == "" {
		priority = PriorityNormal
	}
	now := time.Now().UTC()
	return &OutboxEntry{
		ID:            id,
		RecipientID:   recipientID,
		Type:          notificationType,
		Payload:       raw,
		Priority:      priority,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

// Notification is what a gateway delivers.
type Notification struct {
	ID          uuid.UUID       `json:"id"`
	RecipientID uuid.UUID       `json:"recipientId"`
	Type        string          `json:"type"`
	Priority    string          `json:"priority"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (e *OutboxEntry) Notification() Notification {
	return Notification{
		ID:          e.ID,
		RecipientID: e.RecipientID,
		Type:        e.Type,
		Priority:    e.Priority,
		Payload:     e.Payload,
		CreatedAt:   e.CreatedAt,
	}
}

func (e *OutboxEntry) Clone() *OutboxEntry {
	c := *e
	c.Payload = append(json.RawMessage(nil), e.Payload...)
	if e.DeliveredAt != nil {
		t := *e.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}
