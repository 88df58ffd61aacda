package dispatch_coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/outbox_models"
	"github.com/joy095/dispatch/models/professional_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/services/realtime_service"
)

const (
	typeAccepted    = outbox_models.TypeBookingAccepted
	typeCompleted   = outbox_models.TypeBookingCompleted
	typeRescheduled = outbox_models.TypeBookingRescheduled
	typeCancelled   = outbox_models.TypeBookingCancelled
)

// notice is the payload of every booking notification.
type notice struct {
	BookingID     uuid.UUID             `json:"bookingId"`
	Status        booking_models.Status `json:"status"`
	Message       string                `json:"message,omitempty"`
	ScheduledDate time.Time             `json:"scheduledDate"`
	IsEmergency   bool                  `json:"isEmergency,omitempty"`
	TotalAmount   float64               `json:"totalAmount,omitempty"`
	DistanceKm    float64               `json:"distanceKm,omitempty"`
	Reason        string                `json:"reason,omitempty"`
	Operation     string                `json:"operation,omitempty"`
	Outcome       string                `json:"outcome,omitempty"`
}

func priorityFor(b *booking_models.Booking) string {
	if b.IsEmergency {
		return outbox_models.PriorityHigh
	}
	return outbox_models.PriorityNormal
}

func enqueue(ctx context.Context, tx repository.Tx, recipient uuid.UUID, typ string, b *booking_models.Booking, n notice) error {
	n.BookingID = b.ID
	n.Status = b.Status
	n.ScheduledDate = b.ScheduledDate
	n.IsEmergency = b.IsEmergency
	n.TotalAmount = b.TotalAmount
	entry, err := outbox_models.NewOutboxEntry(recipient, typ, priorityFor(b), n)
	if err != nil {
		return err
	}
	return tx.InsertOutbox(ctx, entry)
}

// notifyParties enqueues n for the customer and the assigned professional.
func notifyParties(ctx context.Context, tx repository.Tx, b *booking_models.Booking, typ string, n notice) error {
	if err := enqueue(ctx, tx, b.CustomerID, typ, b, n); err != nil {
		return err
	}
	if b.ProfessionalID != nil {
		return enqueue(ctx, tx, *b.ProfessionalID, typ, b, n)
	}
	return nil
}

type statusEvent struct {
	BookingID      uuid.UUID             `json:"bookingId"`
	Status         booking_models.Status `json:"status"`
	ProfessionalID *uuid.UUID            `json:"professionalId,omitempty"`
	ScheduledDate  time.Time             `json:"scheduledDate"`
	Tracking       any                   `json:"tracking,omitempty"`
}

// emitStatus pushes the committed status to the booking and customer rooms.
// Failures are logged only.
func (c *Coordinator) emitStatus(ctx context.Context, b *booking_models.Booking) {
	if b == nil {
		return
	}
	ev := statusEvent{
		BookingID:      b.ID,
		Status:         b.Status,
		ProfessionalID: b.ProfessionalID,
		ScheduledDate:  b.ScheduledDate,
		Tracking:       b.Tracking,
	}
	for _, room := range []string{realtime_service.BookingRoom(b.ID), realtime_service.UserRoom(b.CustomerID)} {
		if err := c.bus.Emit(ctx, room, realtime_service.EventBookingStatus, ev); err != nil {
			logger.WarnLogger.Warnf("Failed to emit status of booking %s to %s: %v", b.ID, room, err)
		}
	}
}

func professionalPhase(phase string) professional_models.Phase {
	switch p := professional_models.Phase(phase); p {
	case professional_models.PhaseArrived, professional_models.PhaseStarted:
		return p
	}
	return ""
}
