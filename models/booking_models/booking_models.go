// models/booking_models
package booking_models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/utils/geo"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// RescheduleEntry records one change of the scheduled date.
type RescheduleEntry struct {
	OldDate     time.Time `json:"oldDate"`
	NewDate     time.Time `json:"newDate"`
	Reason      string    `json:"reason"`
	RequestedBy uuid.UUID `json:"requestedBy"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Tracking is the last known progress of the assigned professional.
type Tracking struct {
	LastLocation   *geo.Point `json:"lastLocation,omitempty"`
	LastLocationAt *time.Time `json:"lastLocationAt,omitempty"`
	ETAMinutes     *int       `json:"etaMinutes,omitempty"`
	ArrivedAt      *time.Time `json:"arrivedAt,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
}

// Booking is a customer's request for a service at a place and time.
type Booking struct {
	ID                  uuid.UUID         `json:"id"`
	CustomerID          uuid.UUID         `json:"customerId"`
	ServiceID           uuid.UUID         `json:"serviceId"`
	ProfessionalID      *uuid.UUID        `json:"professionalId,omitempty"`
	Status              Status            `json:"status"`
	Destination         geo.Point         `json:"destination"`
	Address             string            `json:"address,omitempty"`
	ScheduledDate       time.Time         `json:"scheduledDate"`
	TotalAmount         float64           `json:"totalAmount"`
	VerificationCode    string            `json:"-"`
	IsEmergency         bool              `json:"isEmergency"`
	Priority            Priority          `json:"priority"`
	ReschedulingHistory []RescheduleEntry `json:"reschedulingHistory"`
	Tracking            Tracking          `json:"tracking"`
	MatchAttempts       int               `json:"matchAttempts"`
	CancellationReason  string            `json:"cancellationReason,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	CompletedAt         *time.Time        `json:"completedAt,omitempty"`
	CancelledAt         *time.Time        `json:"cancelledAt,omitempty"`
}

// NewBooking creates a pending Booking with a fresh v7 id.
func NewBooking(customerID, serviceID uuid.UUID, destination geo.Point, scheduled time.Time, amount float64, code string, emergency bool) (*Booking, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for booking: %w", err)
	}
	priority := PriorityNormal
	if emergency {
		priority = PriorityHigh
	}
	now := time.Now().UTC()
	return &Booking{
		ID:                  id,
		CustomerID:          customerID,
		ServiceID:           serviceID,
		Status:              StatusPending,
		Destination:         destination,
		ScheduledDate:       scheduled,
		TotalAmount:         amount,
		VerificationCode:    code,
		IsEmergency:         emergency,
		Priority:            priority,
		ReschedulingHistory: []RescheduleEntry{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// AssignedTo reports whether professionalID holds this booking.
func (b *Booking) AssignedTo(professionalID uuid.UUID) bool {
	return b.ProfessionalID != nil && *b.ProfessionalID == professionalID
}

// Clone returns a deep copy.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.ProfessionalID = clonePtr(b.ProfessionalID)
	c.ReschedulingHistory = append([]RescheduleEntry{}, b.ReschedulingHistory...)
	c.Tracking = Tracking{
		LastLocation:   clonePtr(b.Tracking.LastLocation),
		LastLocationAt: clonePtr(b.Tracking.LastLocationAt),
		ETAMinutes:     clonePtr(b.Tracking.ETAMinutes),
		ArrivedAt:      clonePtr(b.Tracking.ArrivedAt),
		StartedAt:      clonePtr(b.Tracking.StartedAt),
	}
	c.CompletedAt = clonePtr(b.CompletedAt)
	c.CancelledAt = clonePtr(b.CancelledAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
