// Package repository defines the storage contract shared by the postgres and
// in-memory backends. All dispatch mutations go through Store.WithTx.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/outbox_models"
	"github.com/joy095/dispatch/models/professional_models"
	"github.com/joy095/dispatch/models/service_models"
	"github.com/joy095/dispatch/utils/geo"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert collides with an existing id.
	ErrDuplicate = errors.New("record already exists")
	// ErrSerialization means the transaction was aborted by the store
	// (serialization failure or deadlock) and nothing was written.
	ErrSerialization = errors.New("transaction aborted by concurrent update")
	// ErrNotActive is returned by conditional tracking writes when the
	// booking is no longer active or no longer assigned to the caller.
	ErrNotActive = errors.New("booking not active for professional")
)

// Tx is an open transaction. Reads through Tx lock the row for the rest of
// the transaction.
type Tx interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error)
	InsertBooking(ctx context.Context, b *booking_models.Booking) error
	UpdateBooking(ctx context.Context, b *booking_models.Booking) error

	GetProfessional(ctx context.Context, id uuid.UUID) (*professional_models.Professional, error)
	UpdateProfessional(ctx context.Context, p *professional_models.Professional) error

	// ActiveBookingsForProfessional returns the professional's bookings in
	// an active or pending status, excluding exclude.
	ActiveBookingsForProfessional(ctx context.Context, professionalID, exclude uuid.UUID) ([]*booking_models.Booking, error)

	InsertOutbox(ctx context.Context, e *outbox_models.OutboxEntry) error
}

// BookingFilter narrows customer/professional booking listings.
type BookingFilter struct {
	CustomerID     *uuid.UUID
	ProfessionalID *uuid.UUID
	Statuses       []booking_models.Status
	Limit          int
}

type Store interface {
	// WithTx runs fn in a single transaction. fn's error rolls back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetBooking(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error)
	// ListBookings is ordered by creation time, newest first.
	ListBookings(ctx context.Context, f BookingFilter) ([]*booking_models.Booking, error)
	// UpdateBookingLocation writes only the location fields of the tracking
	// snapshot and never the status. The write happens only while the
	// booking is accepted, assigned or in_progress and assigned to
	// professionalID; otherwise it returns ErrNotActive. Stores that can
	// tell an unknown id apart return ErrNotFound for it.
	UpdateBookingLocation(ctx context.Context, id, professionalID uuid.UUID, at geo.Point, seenAt time.Time, etaMinutes *int) error

	GetProfessional(ctx context.Context, id uuid.UUID) (*professional_models.Professional, error)
	InsertProfessional(ctx context.Context, p *professional_models.Professional) error
	// ProfessionalsInBox returns professionals whose current location is in box.
	ProfessionalsInBox(ctx context.Context, box geo.BoundingBox) ([]*professional_models.Professional, error)

	GetService(ctx context.Context, id uuid.UUID) (*service_models.Service, error)
	InsertService(ctx context.Context, s *service_models.Service) error

	// DueOutbox returns undelivered entries due at now with fewer than
	// maxAttempts attempts, high priority first.
	DueOutbox(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*outbox_models.OutboxEntry, error)
	MarkOutboxDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkOutboxFailed(ctx context.Context, id uuid.UUID, attempts int, next time.Time, lastErr string) error

	Close()
}
