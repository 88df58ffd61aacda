package dispatch_coordinator

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/outbox_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/services/booking_store"
	"github.com/joy095/dispatch/services/matching_engine"
	"github.com/joy095/dispatch/utils"
)

var pendingOnly = []booking_models.Status{booking_models.StatusPending}

// dispatch ranks candidates for a pending booking and notifies them through
// the outbox. It reports matched=false when nobody was in range.
func (c *Coordinator) dispatch(ctx context.Context, id uuid.UUID) (bool, error) {
	b, err := c.bookings.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if b.Status != booking_models.StatusPending {
		return false, matching_engine.ErrStopRetrying
	}
	candidates, err := c.engine.Rank(ctx, b)
	if err != nil {
		return false, err
	}

	typ := outbox_models.TypeNewBooking
	message := "New booking near you"
	if b.IsEmergency {
		typ = outbox_models.TypeEmergencyBooking
		message = "Emergency booking near you"
	}

	err = c.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cur, err := c.bookings.TransitionTx(ctx, tx, id, pendingOnly, booking_store.Keep, func(b *booking_models.Booking) error {
			b.MatchAttempts++
			return nil
		})
		if err != nil {
			return err
		}
		for _, cand := range candidates {
			n := notice{Message: message, DistanceKm: cand.DistanceKm}
			if err := enqueue(ctx, tx, cand.Professional.ID, typ, cur, n); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, utils.ErrConflict) {
		return false, matching_engine.ErrStopRetrying
	}
	if err != nil {
		return false, err
	}
	logger.InfoLogger.Infof("Booking %s broadcast to %d professionals", id, len(candidates))
	return len(candidates) > 0, nil
}

// giveUp tells the customer nobody could be found, if the booking is still
// waiting.
func (c *Coordinator) giveUp(ctx context.Context, id uuid.UUID) {
	err := c.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := c.bookings.TransitionTx(ctx, tx, id, pendingOnly, booking_store.Keep, nil)
		if err != nil {
			return err
		}
		return enqueue(ctx, tx, b.CustomerID, outbox_models.TypeBookingUnmatched, b, notice{Message: "No professional is available nearby yet"})
	})
	if err != nil && !errors.Is(err, utils.ErrConflict) {
		logger.ErrorLogger.Errorf("Failed to report unmatched booking %s: %v", id, err)
	}
}
