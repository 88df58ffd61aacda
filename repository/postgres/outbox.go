package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/outbox_models"
	"github.com/joy095/dispatch/repository"
)

func insertOutbox(ctx context.Context, q querier, e *outbox_models.OutboxEntry) error {
	query := `
		INSERT INTO outbox (id, recipient_id, type, payload, priority, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := q.Exec(ctx, query,
		e.ID, e.RecipientID, e.Type, string(payload), e.Priority, e.Attempts, e.NextAttemptAt, e.CreatedAt,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to enqueue %s for %s: %v", e.Type, e.RecipientID, err)
		return mapErr(fmt.Errorf("failed to enqueue notification: %w", err))
	}
	return nil
}

func (s *Store) DueOutbox(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*outbox_models.OutboxEntry, error) {
	query := `
		SELECT id, recipient_id, type, payload, priority, attempts, next_attempt_at, delivered_at, last_error, created_at
		FROM outbox
		WHERE delivered_at IS NULL AND next_attempt_at <= $1 AND ($2 <= 0 OR attempts < $2)
		ORDER BY (priority = 'high') DESC, created_at
		LIMIT $3`
	rows, err := s.pool.Query(ctx, query, now, maxAttempts, limit)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to query due outbox entries: %v", err)
		return nil, mapErr(fmt.Errorf("failed to query outbox: %w", err))
	}
	defer rows.Close()

	out := make([]*outbox_models.OutboxEntry, 0)
	for rows.Next() {
		e := &outbox_models.OutboxEntry{}
		var payload []byte
		if err := rows.Scan(&e.ID, &e.RecipientID, &e.Type, &payload, &e.Priority, &e.Attempts,
			&e.NextAttemptAt, &e.DeliveredAt, &e.LastError, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) MarkOutboxDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outbox SET delivered_at = $2, attempts = attempts + 1, last_error = '' WHERE id = $1`, id, at)
	if err != nil {
		return mapErr(fmt.Errorf("failed to mark outbox entry delivered: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) MarkOutboxFailed(ctx context.Context, id uuid.UUID, attempts int, next time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outbox SET attempts = $2, next_attempt_at = $3, last_error = $4 WHERE id = $1`,
		id, attempts, next, lastErr)
	if err != nil {
		return mapErr(fmt.Errorf("failed to record outbox failure: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
