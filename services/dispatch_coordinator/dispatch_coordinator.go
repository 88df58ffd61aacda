// services/dispatch_coordinator
package dispatch_coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/badwords"
	"github.com/joy095/dispatch/config"
	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/metrics"
	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/professional_models"
	"github.com/joy095/dispatch/models/service_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/services/booking_store"
	"github.com/joy095/dispatch/services/geocoding_service"
	"github.com/joy095/dispatch/services/matching_engine"
	"github.com/joy095/dispatch/services/professional_registry"
	"github.com/joy095/dispatch/services/realtime_service"
	"github.com/joy095/dispatch/services/store_errors"
	"github.com/joy095/dispatch/utils"
)

// Messages surfaced to callers.
const (
	MsgInvalidCode          = utils.MsgInvalidCode
	MsgUnavailableAtTime    = "Professional not available at the requested time"
	MsgInappropriateReason  = "Reason contains inappropriate language"
	MsgProcessingContinues  = "Request accepted, processing continues"
	MsgAddressNotResolvable = "Could not resolve address"
	MsgInappropriateMessage = "Message contains inappropriate language"
	MsgNoRecipient          = "No professional assigned to this booking yet"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Deps are the collaborators of a Coordinator. Geocoder, Bus, Filter and
// Metrics are optional.
type Deps struct {
	Repo     repository.Store
	Bookings *booking_store.Store
	Registry *professional_registry.Registry
	Engine   *matching_engine.Engine
	Geocoder geocoding_service.Provider
	Bus      realtime_service.Bus
	Filter   *badwords.Filter
	Metrics  metrics.Recorder
	Settings config.DispatchSettings
}

// Coordinator drives bookings through their lifecycle. Every state change
// runs in one repository transaction that also enqueues the resulting
// notifications; realtime events go out after commit.
type Coordinator struct {
	repo     repository.Store
	bookings *booking_store.Store
	registry *professional_registry.Registry
	engine   *matching_engine.Engine
	geocoder geocoding_service.Provider
	bus      realtime_service.Bus
	filter   *badwords.Filter
	metrics  metrics.Recorder
	settings config.DispatchSettings

	rebroadcaster *matching_engine.Rebroadcaster
	wg            sync.WaitGroup
	now           func() time.Time
}

func New(d Deps) *Coordinator {
	c := &Coordinator{
		repo:     d.Repo,
		bookings: d.Bookings,
		registry: d.Registry,
		engine:   d.Engine,
		geocoder: d.Geocoder,
		bus:      d.Bus,
		filter:   d.Filter,
		metrics:  d.Metrics,
		settings: d.Settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if c.bus == nil {
		c.bus = realtime_service.NopBus{}
	}
	if c.filter == nil {
		c.filter = badwords.NewFilter()
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop{}
	}
	if c.settings.Timeout <= 0 {
		c.settings.Timeout = 15 * time.Second
	}
	c.rebroadcaster = matching_engine.NewRebroadcaster(c.engine.Settings(), c.dispatch, c.giveUp)
	return c
}

// Wait blocks until background matching, rebroadcasts and provisional
// completions have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
	c.rebroadcaster.Wait()
}

// Close cancels pending rebroadcasts and waits for in-flight work.
func (c *Coordinator) Close() {
	c.wg.Wait()
	c.rebroadcaster.Close()
}

// RequestBooking creates a pending booking and starts matching in the
// background. The caller never waits on the match.
func (c *Coordinator) RequestBooking(ctx context.Context, req booking_store.CreateRequest) (*booking_models.Booking, *service_models.Service, error) {
	if req.Destination == nil && strings.TrimSpace(req.Address) != "" && c.geocoder != nil {
		res, err := c.geocoder.Geocode(ctx, req.Address)
		if err != nil {
			logger.WarnLogger.Warnf("Geocoding booking address failed: %v", err)
			return nil, nil, utils.NewValidationError(MsgAddressNotResolvable)
		}
		req.Destination = &res.Point
		req.Address = res.FormattedAddress
	}

	b, svc, err := c.bookings.Create(ctx, req)
	c.metrics.Transition("create", outcome(err))
	if err != nil {
		return nil, nil, err
	}
	c.startMatching(ctx, b.ID)
	return b, svc, nil
}

// HandleEmergency is RequestBooking with the emergency policy: high priority
// and a broadcast to every eligible professional in the emergency radius.
func (c *Coordinator) HandleEmergency(ctx context.Context, req booking_store.CreateRequest) (*booking_models.Booking, *service_models.Service, error) {
	req.Emergency = true
	return c.RequestBooking(ctx, req)
}

func (c *Coordinator) startMatching(ctx context.Context, id uuid.UUID) {
	bg := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		matched, err := c.dispatch(bg, id)
		switch {
		case errors.Is(err, matching_engine.ErrStopRetrying):
		case err != nil:
			logger.ErrorLogger.Errorf("Matching booking %s failed: %v", id, err)
			c.rebroadcaster.Schedule(id)
		case !matched:
			c.rebroadcaster.Schedule(id)
		}
	}()
}

// AcceptBooking assigns the booking to professionalID. The booking must be
// pending and the professional free; of two racing accepts exactly one
// commits and the other gets a ConflictError.
func (c *Coordinator) AcceptBooking(ctx context.Context, id, professionalID uuid.UUID) (*booking_models.Booking, error) {
	if id == uuid.Nil || professionalID == uuid.Nil {
		return nil, utils.NewValidationError("bookingId and professionalId are required")
	}
	return c.bounded(ctx, "accept", professionalID, id, func(ctx context.Context) (*booking_models.Booking, error) {
		var out *booking_models.Booking
		err := c.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			b, err := c.bookings.ApplyTx(ctx, tx, id, booking_models.EventAccept, func(b *booking_models.Booking) error {
				b.ProfessionalID = &professionalID
				return nil
			})
			if err != nil {
				return err
			}
			if _, err := c.registry.ClaimTx(ctx, tx, professionalID, id); err != nil {
				return err
			}
			out = b
			return enqueue(ctx, tx, b.CustomerID, typeAccepted, b, notice{Message: "A professional accepted your booking"})
		})
		if err != nil {
			return nil, store_errors.Map(err, "Booking")
		}
		logger.InfoLogger.Infof("Booking %s accepted by professional %s", id, professionalID)
		c.emitStatus(ctx, out)
		return out, nil
	})
}

// CompleteBooking checks the customer's verification code and closes the
// booking. A wrong code changes nothing.
func (c *Coordinator) CompleteBooking(ctx context.Context, id uuid.UUID, code string, actor Actor) (*booking_models.Booking, error) {
	if code == "" {
		return nil, utils.NewValidationError("verificationCode is required")
	}
	return c.bounded(ctx, "complete", actor.ID, id, func(ctx context.Context) (*booking_models.Booking, error) {
		var out *booking_models.Booking
		err := c.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			b, err := c.bookings.ApplyTx(ctx, tx, id, booking_models.EventComplete, func(b *booking_models.Booking) error {
				if err := booking_store.CheckAccess(b, actor.ID, actor.Role); err != nil {
					return err
				}
				if b.VerificationCode != code {
					logger.WarnLogger.Warnf("Wrong verification code for booking %s", b.ID)
					return utils.NewConflictError(MsgInvalidCode)
				}
				now := c.now()
				b.CompletedAt = &now
				return nil
			})
			if err != nil {
				return err
			}
			if b.ProfessionalID != nil {
				if err := c.registry.ReleaseTx(ctx, tx, *b.ProfessionalID, b.ID); err != nil {
					return err
				}
			}
			out = b
			return notifyParties(ctx, tx, b, typeCompleted, notice{Message: "Booking completed"})
		})
		if err != nil {
			return nil, store_errors.Map(err, "Booking")
		}
		logger.InfoLogger.Infof("Booking %s completed", id)
		c.emitStatus(ctx, out)
		return out, nil
	})
}

// RescheduleBooking moves a pending or accepted booking to newDate. When a
// professional is assigned they must still be verified and have no other
// open booking within the reschedule window of newDate.
func (c *Coordinator) RescheduleBooking(ctx context.Context, id uuid.UUID, newDate time.Time, reason string, actor Actor) (*booking_models.Booking, error) {
	reason = strings.TrimSpace(reason)
	switch {
	case newDate.IsZero():
		return nil, utils.NewValidationError("newDate is required")
	case !newDate.After(c.now()):
		return nil, utils.NewValidationError("newDate must be in the future")
	case reason == "":
		return nil, utils.NewValidationError("reason is required")
	case c.filter.Contains(reason):
		return nil, utils.NewValidationError(MsgInappropriateReason)
	}
	newDate = newDate.UTC()

	return c.bounded(ctx, "reschedule", actor.ID, id, func(ctx context.Context) (*booking_models.Booking, error) {
		var out *booking_models.Booking
		err := c.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			b, err := c.bookings.TransitionTx(ctx, tx, id, booking_models.ReschedulableStatuses, booking_store.Keep, func(b *booking_models.Booking) error {
				if err := booking_store.CheckAccess(b, actor.ID, actor.Role); err != nil {
					return err
				}
				if b.ProfessionalID != nil {
					if err := c.checkProfessionalFree(ctx, tx, *b.ProfessionalID, b.ID, newDate); err != nil {
						return err
					}
				}
				b.ReschedulingHistory = append(b.ReschedulingHistory, booking_models.RescheduleEntry{
					OldDate:     b.ScheduledDate,
					NewDate:     newDate,
					Reason:      reason,
					RequestedBy: actor.ID,
					RequestedAt: c.now(),
				})
				b.ScheduledDate = newDate
				return nil
			})
			if err != nil {
				return err
			}
			out = b
			return notifyParties(ctx, tx, b, typeRescheduled, notice{Message: "Booking rescheduled", Reason: reason})
		})
		if err != nil {
			return nil, store_errors.Map(err, "Booking")
		}
		logger.InfoLogger.Infof("Booking %s rescheduled to %s", id, newDate.Format(time.RFC3339))
		c.emitStatus(ctx, out)
		return out, nil
	})
}

func (c *Coordinator) checkProfessionalFree(ctx context.Context, tx repository.Tx, professionalID, bookingID uuid.UUID, at time.Time) error {
	p, err := tx.GetProfessional(ctx, professionalID)
	if err != nil {
		return store_errors.Map(err, "Professional")
	}
	if p.VerificationStatus != professional_models.VerificationVerified {
		return utils.NewConflictError(MsgUnavailableAtTime)
	}
	others, err := tx.ActiveBookingsForProfessional(ctx, professionalID, bookingID)
	if err != nil {
		return err
	}
	for _, o := range others {
		gap := o.ScheduledDate.Sub(at)
		if gap < 0 {
			gap = -gap
		}
		if gap < c.settings.RescheduleWindow {
			logger.WarnLogger.Warnf("Professional %s already booked at %s (booking %s)", professionalID, o.ScheduledDate.Format(time.RFC3339), o.ID)
			return utils.NewConflictError(MsgUnavailableAtTime)
		}
	}
	return nil
}

// CancelBooking cancels an open booking that has not started and frees the
// assigned professional.
func (c *Coordinator) CancelBooking(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*booking_models.Booking, error) {
	reason = strings.TrimSpace(reason)
	if c.filter.Contains(reason) {
		return nil, utils.NewValidationError(MsgInappropriateReason)
	}
	return c.bounded(ctx, "cancel", actor.ID, id, func(ctx context.Context) (*booking_models.Booking, error) {
		var out *booking_models.Booking
		err := c.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			b, err := c.bookings.ApplyTx(ctx, tx, id, booking_models.EventCancel, func(b *booking_models.Booking) error {
				if err := booking_store.CheckAccess(b, actor.ID, actor.Role); err != nil {
					return err
				}
				now := c.now()
				b.CancelledAt = &now
				b.CancellationReason = reason
				return nil
			})
			if err != nil {
				return err
			}
			if b.ProfessionalID != nil {
				if err := c.registry.ReleaseTx(ctx, tx, *b.ProfessionalID, b.ID); err != nil {
					return err
				}
			}
			out = b
			return notifyParties(ctx, tx, b, typeCancelled, notice{Message: "Booking cancelled", Reason: reason})
		})
		if err != nil {
			return nil, store_errors.Map(err, "Booking")
		}
		logger.InfoLogger.Infof("Booking %s cancelled by %s", id, actor.ID)
		c.emitStatus(ctx, out)
		return out, nil
	})
}

// RejectBooking lets an operator turn down a pending booking.
func (c *Coordinator) RejectBooking(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*booking_models.Booking, error) {
	if actor.Role != utils.RoleOperator {
		return nil, utils.NewForbiddenError("Only operators can reject bookings")
	}
	reason = strings.TrimSpace(reason)
	return c.bounded(ctx, "reject", actor.ID, id, func(ctx context.Context) (*booking_models.Booking, error) {
		var out *booking_models.Booking
		err := c.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			b, err := c.bookings.ApplyTx(ctx, tx, id, booking_models.EventReject, func(b *booking_models.Booking) error {
				b.CancellationReason = reason
				return nil
			})
			if err != nil {
				return err
			}
			out = b
			return enqueue(ctx, tx, b.CustomerID, typeCancelled, b, notice{Message: "Booking rejected", Reason: reason})
		})
		if err != nil {
			return nil, store_errors.Map(err, "Booking")
		}
		c.emitStatus(ctx, out)
		return out, nil
	})
}

// UpdatePhase records the assigned professional's progress. The first phase
// update of an accepted booking moves it to in_progress.
func (c *Coordinator) UpdatePhase(ctx context.Context, id, professionalID uuid.UUID, phase string) (*booking_models.Booking, error) {
	p := professionalPhase(phase)
	if p == "" {
		return nil, utils.NewValidationError("phase must be one of arrived, started")
	}
	return c.bounded(ctx, "phase", professionalID, id, func(ctx context.Context) (*booking_models.Booking, error) {
		var out *booking_models.Booking
		err := c.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			cur, err := tx.GetBooking(ctx, id)
			if err != nil {
				return store_errors.Map(err, "Booking")
			}
			mutate := func(b *booking_models.Booking) error {
				if !b.AssignedTo(professionalID) {
					return utils.NewNotFoundError("Booking not found")
				}
				now := c.now()
				if b.Tracking.ArrivedAt == nil {
					b.Tracking.ArrivedAt = &now
				}
				if p == professional_models.PhaseStarted && b.Tracking.StartedAt == nil {
					b.Tracking.StartedAt = &now
				}
				return nil
			}
			var b *booking_models.Booking
			if cur.Status == booking_models.StatusInProgress {
				b, err = c.bookings.TransitionTx(ctx, tx, id, []booking_models.Status{booking_models.StatusInProgress}, booking_store.Keep, mutate)
			} else {
				b, err = c.bookings.ApplyTx(ctx, tx, id, booking_models.EventStart, mutate)
			}
			if err != nil {
				return err
			}
			if err := c.registry.SetPhaseTx(ctx, tx, professionalID, id, p); err != nil {
				return err
			}
			out = b
			return nil
		})
		if err != nil {
			return nil, store_errors.Map(err, "Booking")
		}
		c.emitStatus(ctx, out)
		return out, nil
	})
}

// GetBooking returns the booking if actor is one of its parties.
func (c *Coordinator) GetBooking(ctx context.Context, id uuid.UUID, actor Actor) (*booking_models.Booking, error) {
	b, err := c.bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := booking_store.CheckAccess(b, actor.ID, actor.Role); err != nil {
		return nil, err
	}
	return b, nil
}

// ActiveBooking returns the caller's current booking.
func (c *Coordinator) ActiveBooking(ctx context.Context, actor Actor) (*booking_models.Booking, error) {
	if actor.Role == utils.RoleProfessional {
		return c.bookings.ActiveForProfessional(ctx, actor.ID)
	}
	return c.bookings.ActiveForCustomer(ctx, actor.ID)
}

// History lists the caller's bookings newest first.
func (c *Coordinator) History(ctx context.Context, actor Actor, limit int) ([]*booking_models.Booking, error) {
	if actor.Role == utils.RoleProfessional {
		return c.bookings.HistoryForProfessional(ctx, actor.ID, limit)
	}
	return c.bookings.History(ctx, actor.ID, limit)
}
