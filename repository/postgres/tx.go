package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/outbox_models"
	"github.com/joy095/dispatch/models/professional_models"
)

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) GetBooking(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	return getBooking(ctx, t.tx, id, true)
}

func (t *txStore) InsertBooking(ctx context.Context, b *booking_models.Booking) error {
	return insertBooking(ctx, t.tx, b)
}

func (t *txStore) UpdateBooking(ctx context.Context, b *booking_models.Booking) error {
	return updateBooking(ctx, t.tx, b)
}

func (t *txStore) GetProfessional(ctx context.Context, id uuid.UUID) (*professional_models.Professional, error) {
	return getProfessional(ctx, t.tx, id, true)
}

func (t *txStore) UpdateProfessional(ctx context.Context, p *professional_models.Professional) error {
	return updateProfessional(ctx, t.tx, p)
}

func (t *txStore) ActiveBookingsForProfessional(ctx context.Context, professionalID, exclude uuid.UUID) ([]*booking_models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE professional_id = $1 AND id <> $2
		  AND status IN ('pending', 'accepted', 'assigned', 'in_progress')`
	rows, err := t.tx.Query(ctx, query, professionalID, exclude)
	if err != nil {
		return nil, mapErr(fmt.Errorf("failed to query professional bookings: %w", err))
	}
	defer rows.Close()

	out := make([]*booking_models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, mapErr(rows.Err())
}

func (t *txStore) InsertOutbox(ctx context.Context, e *outbox_models.OutboxEntry) error {
	return insertOutbox(ctx, t.tx, e)
}
