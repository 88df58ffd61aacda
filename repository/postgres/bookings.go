package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/utils/geo"
)

const bookingColumns = `
	id, customer_id, service_id, professional_id, status, dest_lon, dest_lat, address,
	scheduled_date, total_amount, verification_code, is_emergency, priority,
	rescheduling_history, tracking, match_attempts, cancellation_reason,
	created_at, updated_at, completed_at, cancelled_at`

func scanBooking(row pgx.Row) (*booking_models.Booking, error) {
	b := &booking_models.Booking{}
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.ServiceID, &b.ProfessionalID, &b.Status,
		&b.Destination.Lon, &b.Destination.Lat, &b.Address,
		&b.ScheduledDate, &b.TotalAmount, &b.VerificationCode, &b.IsEmergency, &b.Priority,
		&b.ReschedulingHistory, &b.Tracking, &b.MatchAttempts, &b.CancellationReason,
		&b.CreatedAt, &b.UpdatedAt, &b.CompletedAt, &b.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func getBooking(ctx context.Context, q querier, id uuid.UUID, lock bool) (*booking_models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			logger.WarnLogger.Warnf("Booking with ID %s not found", id)
		} else {
			logger.ErrorLogger.Errorf("Failed to fetch booking %s: %v", id, err)
		}
		return nil, mapErr(err)
	}
	return b, nil
}

func insertBooking(ctx context.Context, q querier, b *booking_models.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := q.Exec(ctx, query,
		b.ID, b.CustomerID, b.ServiceID, b.ProfessionalID, b.Status,
		b.Destination.Lon, b.Destination.Lat, b.Address,
		b.ScheduledDate, b.TotalAmount, b.VerificationCode, b.IsEmergency, b.Priority,
		b.ReschedulingHistory, b.Tracking, b.MatchAttempts, b.CancellationReason,
		b.CreatedAt, b.UpdatedAt, b.CompletedAt, b.CancelledAt,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to insert booking %s: %v", b.ID, err)
		return mapErr(fmt.Errorf("failed to create booking: %w", err))
	}
	logger.InfoLogger.Infof("Booking %s created", b.ID)
	return nil
}

// updateBooking writes every mutable column. The id, customer, service and
// verification code are immutable and never written.
func updateBooking(ctx context.Context, q querier, b *booking_models.Booking) error {
	query := `
		UPDATE bookings SET
			professional_id = $2, status = $3, scheduled_date = $4, rescheduling_history = $5,
			tracking = $6, match_attempts = $7, cancellation_reason = $8,
			updated_at = $9, completed_at = $10, cancelled_at = $11
		WHERE id = $1`
	tag, err := q.Exec(ctx, query,
		b.ID, b.ProfessionalID, b.Status, b.ScheduledDate, b.ReschedulingHistory,
		b.Tracking, b.MatchAttempts, b.CancellationReason,
		b.UpdatedAt, b.CompletedAt, b.CancelledAt,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to update booking %s: %v", b.ID, err)
		return mapErr(fmt.Errorf("failed to update booking: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	return getBooking(ctx, s.pool, id, false)
}

func (s *Store) ListBookings(ctx context.Context, f repository.BookingFilter) ([]*booking_models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.CustomerID != nil {
		args = append(args, *f.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if f.ProfessionalID != nil {
		args = append(args, *f.ProfessionalID)
		where = append(where, fmt.Sprintf("professional_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to list bookings: %v", err)
		return nil, mapErr(fmt.Errorf("failed to list bookings: %w", err))
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
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) UpdateBookingLocation(ctx context.Context, id, professionalID uuid.UUID, at geo.Point, seenAt time.Time, etaMinutes *int) error {
	query := `
		UPDATE bookings SET
			tracking = tracking
				|| jsonb_build_object('lastLocation', $2::jsonb, 'lastLocationAt', $3::timestamptz)
				|| CASE WHEN $4::int IS NULL THEN '{}'::jsonb ELSE jsonb_build_object('etaMinutes', $4::int) END,
			updated_at = NOW()
		WHERE id = $1
			AND professional_id = $5
			AND status IN ('accepted', 'assigned', 'in_progress')`
	tag, err := s.pool.Exec(ctx, query, id, at, seenAt, etaMinutes, professionalID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to update tracking for booking %s: %v", id, err)
		return mapErr(fmt.Errorf("failed to update booking tracking: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotActive
	}
	return nil
}
