package notification_service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joy095/dispatch/config"
	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/metrics"
	"github.com/joy095/dispatch/repository"
)

const (
	retryInitialInterval = time.Second
	retryMaxInterval     = 10 * time.Minute
)

// Worker drains the outbox, retrying failed deliveries with exponential
// backoff until OUTBOX_MAX_ATTEMPTS is reached.
type Worker struct {
	repo     repository.Store
	gateway  Gateway
	settings config.OutboxSettings
	metrics  metrics.Recorder
	now      func() time.Time
}

func NewWorker(repo repository.Store, gateway Gateway, settings config.OutboxSettings, rec metrics.Recorder) *Worker {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Worker{repo: repo, gateway: gateway, settings: settings, metrics: rec, now: func() time.Time { return time.Now().UTC() }}
}

// RetryDelay is the wait before the next attempt once `attempts` have failed.
func RetryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// RunOnce delivers one batch of due entries and returns how many succeeded.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()
	due, err := w.repo.DueOutbox(ctx, now, w.settings.MaxAttempts, w.settings.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, entry := range due {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		sendErr := w.gateway.Send(ctx, entry.Notification())
		if sendErr == nil {
			if err := w.repo.MarkOutboxDelivered(ctx, entry.ID, w.now()); err != nil {
				logger.ErrorLogger.Errorf("Failed to mark outbox entry %s delivered: %v", entry.ID, err)
				continue
			}
			delivered++
			w.metrics.OutboxDelivery("delivered")
			continue
		}

		attempts := entry.Attempts + 1
		next := w.now().Add(RetryDelay(attempts))
		result := "failed"
		if w.settings.MaxAttempts > 0 && attempts >= w.settings.MaxAttempts {
			result = "dead"
			logger.ErrorLogger.Errorf("Giving up on %s for %s after %d attempts: %v", entry.Type, entry.RecipientID, attempts, sendErr)
		} else {
			logger.WarnLogger.Warnf("Delivery of %s to %s failed (attempt %d): %v", entry.Type, entry.RecipientID, attempts, sendErr)
		}
		w.metrics.OutboxDelivery(result)
		if err := w.repo.MarkOutboxFailed(ctx, entry.ID, attempts, next, sendErr.Error()); err != nil {
			logger.ErrorLogger.Errorf("Failed to record outbox failure for %s: %v", entry.ID, err)
		}
	}
	return delivered, nil
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	logger.InfoLogger.Infof("Outbox worker started (poll every %s)", w.settings.PollInterval)
	ticker := time.NewTicker(w.settings.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorLogger.Errorf("Outbox batch failed: %v", err)
		}
		select {
		case <-ctx.Done():
			logger.InfoLogger.Info("Outbox worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}
