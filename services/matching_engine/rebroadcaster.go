package matching_engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/joy095/dispatch/config"
	"github.com/joy095/dispatch/logger"
)

// MatchFunc retries matching for a booking. matched=false with a nil error
// means nobody was found yet. Returning ErrStopRetrying ends the schedule.
type MatchFunc func(ctx context.Context, bookingID uuid.UUID) (matched bool, err error)

// GiveUpFunc runs once the retry budget is spent without a match.
type GiveUpFunc func(ctx context.Context, bookingID uuid.UUID)

// ErrStopRetrying tells the rebroadcaster the booking no longer needs a match.
var ErrStopRetrying = errors.New("booking no longer needs matching")

// Rebroadcaster re-runs matching for unmatched bookings on an exponential
// schedule with a bounded number of attempts.
type Rebroadcaster struct {
	settings config.MatchingSettings
	match    MatchFunc
	giveUp   GiveUpFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards inFlight and closed, and orders wg.Add before Close's Wait.
	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
	closed   bool
}

func NewRebroadcaster(settings config.MatchingSettings, match MatchFunc, giveUp GiveUpFunc) *Rebroadcaster {
	ctx, cancel := context.WithCancel(context.Background())
	return &Rebroadcaster{
		settings: settings,
		match:    match,
		giveUp:   giveUp,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[uuid.UUID]struct{}),
	}
}

func (r *Rebroadcaster) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.settings.InitialBackoff
	b.MaxInterval = r.settings.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, r.settings.MaxRetries)
}

// Schedule starts retrying bookingID unless a schedule is already running
// for it. It returns false when nothing was scheduled.
func (r *Rebroadcaster) Schedule(bookingID uuid.UUID) bool {
	if r.settings.MaxRetries == 0 {
		return false
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if _, busy := r.inFlight[bookingID]; busy {
		r.mu.Unlock()
		return false
	}
	r.inFlight[bookingID] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.inFlight, bookingID)
			r.mu.Unlock()
		}()
		r.run(bookingID)
	}()
	return true
}

func (r *Rebroadcaster) run(bookingID uuid.UUID) {
	b := r.newBackOff()
	for attempt := 1; ; attempt++ {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			logger.WarnLogger.Warnf("Booking %s still unmatched after %d retries, giving up", bookingID, attempt-1)
			r.giveUp(r.ctx, bookingID)
			return
		}
		timer := time.NewTimer(wait)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		matched, err := r.match(r.ctx, bookingID)
		switch {
		case errors.Is(err, ErrStopRetrying):
			logger.InfoLogger.Infof("Booking %s no longer pending, rebroadcast stopped", bookingID)
			return
		case err != nil:
			logger.ErrorLogger.Errorf("Rebroadcast attempt %d for booking %s failed: %v", attempt, bookingID, err)
		case matched:
			logger.InfoLogger.Infof("Booking %s matched on rebroadcast attempt %d", bookingID, attempt)
			return
		default:
			logger.InfoLogger.Infof("Booking %s: no candidates on rebroadcast attempt %d", bookingID, attempt)
		}
	}
}

// Close stops pending schedules and waits for running attempts.
func (r *Rebroadcaster) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

// Wait blocks until every scheduled retry has finished.
func (r *Rebroadcaster) Wait() {
	r.wg.Wait()
}
