package dispatch_coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/outbox_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/utils"
)

type result struct {
	booking *booking_models.Booking
	err     error
}

// bounded runs fn detached from the caller's cancellation and waits at most
// the dispatch timeout. On expiry the caller gets a TimeoutError while fn
// runs to completion; its outcome is then reported to actor through the
// outbox.
func (c *Coordinator) bounded(ctx context.Context, op string, actor, bookingID uuid.UUID, fn func(ctx context.Context) (*booking_models.Booking, error)) (*booking_models.Booking, error) {
	start := time.Now()
	bg := context.WithoutCancel(ctx)
	done := make(chan result, 1)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		b, err := fn(bg)
		done <- result{booking: b, err: err}
	}()

	timer := time.NewTimer(c.settings.Timeout)
	defer timer.Stop()

	var cause error
	select {
	case r := <-done:
		c.metrics.TxDuration(op, time.Since(start))
		c.metrics.Transition(op, outcome(r.err))
		return r.booking, r.err
	case <-timer.C:
		cause = context.DeadlineExceeded
	case <-ctx.Done():
		cause = ctx.Err()
	}

	logger.WarnLogger.Warnf("%s of booking %s exceeded %s, finishing in the background", op, bookingID, c.settings.Timeout)
	c.metrics.Transition(op, "provisional")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		r := <-done
		c.metrics.TxDuration(op, time.Since(start))
		c.reportProvisional(bg, op, actor, bookingID, r)
	}()
	return nil, utils.NewTimeoutError(MsgProcessingContinues, cause)
}

func (c *Coordinator) reportProvisional(ctx context.Context, op string, actor, bookingID uuid.UUID, r result) {
	n := notice{Operation: op, Outcome: "completed", Message: "Your request has been processed"}
	b := r.booking
	if r.err != nil {
		logger.ErrorLogger.Errorf("Background %s of booking %s failed: %v", op, bookingID, r.err)
		n.Outcome = "failed"
		n.Message = utils.Message(r.err)
		b = &booking_models.Booking{ID: bookingID}
		if cur, err := c.repo.GetBooking(ctx, bookingID); err == nil {
			b = cur
		}
	}
	err := c.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return enqueue(ctx, tx, actor, outbox_models.TypeBookingProvisional, b, n)
	})
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to report background %s of booking %s: %v", op, bookingID, err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, utils.ErrValidation):
		return "validation"
	case errors.Is(err, utils.ErrNotFound):
		return "not_found"
	case errors.Is(err, utils.ErrConflict):
		return "conflict"
	case errors.Is(err, utils.ErrRetryable):
		return "retryable"
	case errors.Is(err, utils.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
