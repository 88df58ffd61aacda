// services/booking_store
package booking_store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/service_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/services/store_errors"
	"github.com/joy095/dispatch/utils"
	"github.com/joy095/dispatch/utils/geo"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// Conflict messages surfaced to callers.
const (
	MsgAlreadyProcessed = utils.MsgAlreadyProcessed
)

// Keep as the target status of Transition leaves the status unchanged.
const Keep booking_models.Status = ""

type CreateRequest struct {
	CustomerID    uuid.UUID
	ServiceID     uuid.UUID
	Destination   *geo.Point
	Address       string
	ScheduledDate time.Time
	Emergency     bool
}

// Store owns booking persistence and the guarded status write.
type Store struct {
	repo         repository.Store
	generateCode func() (string, error)
	now          func() time.Time
}

func New(repo repository.Store) *Store {
	return &Store{
		repo:         repo,
		generateCode: utils.GenerateVerificationCode,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithCodeGenerator overrides the verification code source.
func (s *Store) WithCodeGenerator(gen func() (string, error)) *Store {
	s.generateCode = gen
	return s
}

// Create validates req, prices the booking from the service and inserts it
// as pending.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*booking_models.Booking, *service_models.Service, error) {
	if req.CustomerID == uuid.Nil {
		return nil, nil, utils.NewValidationError("customerId is required")
	}
	if req.ServiceID == uuid.Nil {
		return nil, nil, utils.NewValidationError("serviceId is required")
	}
	if req.Destination == nil {
		return nil, nil, utils.NewValidationError("location coordinates are required")
	}
	if !req.Destination.Valid() {
		return nil, nil, utils.NewValidationError("location coordinates are out of range")
	}
	if req.ScheduledDate.IsZero() {
		return nil, nil, utils.NewValidationError("scheduledDate is required")
	}

	svc, err := s.repo.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, nil, store_errors.Map(err, "Service")
	}
	if !svc.IsActive {
		return nil, nil, utils.NewNotFoundError("Service not found")
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, nil, err
	}
	b, err := booking_models.NewBooking(req.CustomerID, svc.ID, *req.Destination, req.ScheduledDate.UTC(), svc.BasePrice, code, req.Emergency)
	if err != nil {
		return nil, nil, err
	}
	b.Address = req.Address
	b.CreatedAt = s.now()
	b.UpdatedAt = b.CreatedAt

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertBooking(ctx, b)
	})
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to create booking for customer %s: %v", req.CustomerID, err)
		return nil, nil, store_errors.Map(err, "Booking")
	}
	logger.InfoLogger.Infof("Booking %s created for customer %s (emergency=%t)", b.ID, b.CustomerID, b.IsEmergency)
	return b, svc, nil
}

// Transition is TransitionTx in a transaction of its own.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, allowedFrom []booking_models.Status, to booking_models.Status, mutate func(*booking_models.Booking) error) (*booking_models.Booking, error) {
	var out *booking_models.Booking
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := s.TransitionTx(ctx, tx, id, allowedFrom, to, mutate)
		out = b
		return err
	})
	if err != nil {
		return nil, store_errors.Map(err, "Booking")
	}
	return out, nil
}

// TransitionTx locks the booking and, only when its status is in
// allowedFrom, applies mutate and writes `to`. Otherwise it returns a
// ConflictError and writes nothing.
func (s *Store) TransitionTx(ctx context.Context, tx repository.Tx, id uuid.UUID, allowedFrom []booking_models.Status, to booking_models.Status, mutate func(*booking_models.Booking) error) (*booking_models.Booking, error) {
	return s.write(ctx, tx, id, func(b *booking_models.Booking) (booking_models.Status, error) {
		if !booking_models.Contains(allowedFrom, b.Status) {
			return "", conflictFor(b.Status, to)
		}
		if to == Keep {
			return b.Status, nil
		}
		return to, nil
	}, mutate)
}

// ApplyTx drives the booking through ev using the transition table.
func (s *Store) ApplyTx(ctx context.Context, tx repository.Tx, id uuid.UUID, ev booking_models.Event, mutate func(*booking_models.Booking) error) (*booking_models.Booking, error) {
	return s.write(ctx, tx, id, func(b *booking_models.Booking) (booking_models.Status, error) {
		to, err := booking_models.Next(b.Status, ev)
		if err != nil {
			return "", conflictForEvent(b.Status, ev)
		}
		return to, nil
	}, mutate)
}

func (s *Store) write(ctx context.Context, tx repository.Tx, id uuid.UUID, guard func(*booking_models.Booking) (booking_models.Status, error), mutate func(*booking_models.Booking) error) (*booking_models.Booking, error) {
	b, err := tx.GetBooking(ctx, id)
	if err != nil {
		return nil, store_errors.Map(err, "Booking")
	}
	to, err := guard(b)
	if err != nil {
		logger.WarnLogger.Warnf("Booking %s guard rejected write: %v", id, err)
		return nil, err
	}
	if mutate != nil {
		if err := mutate(b); err != nil {
			return nil, err
		}
	}
	from := b.Status
	b.Status = to
	b.UpdatedAt = s.now()
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return nil, store_errors.Map(err, "Booking")
	}
	if from != to {
		logger.InfoLogger.Infof("Booking %s moved from %s to %s", id, from, to)
	}
	return b, nil
}

func conflictFor(current, to booking_models.Status) error {
	if current.IsTerminal() || current != booking_models.StatusPending && to == booking_models.StatusAccepted {
		return utils.NewConflictError(MsgAlreadyProcessed)
	}
	if to == Keep {
		return utils.NewConflictError("Booking cannot be changed while %s", current)
	}
	return utils.NewConflictError("Booking cannot move from %s to %s", current, to)
}

func conflictForEvent(current booking_models.Status, ev booking_models.Event) error {
	if current.IsTerminal() || ev == booking_models.EventAccept || ev == booking_models.EventReject {
		return utils.NewConflictError(MsgAlreadyProcessed)
	}
	return utils.NewConflictError("Booking cannot %s while %s", ev, current)
}

// Get returns the booking or a NotFoundError.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, store_errors.Map(err, "Booking")
	}
	return b, nil
}

// History lists the customer's bookings newest first. limit <= 0 means the
// default; it is capped at MaxHistoryLimit.
func (s *Store) History(ctx context.Context, customerID uuid.UUID, limit int) ([]*booking_models.Booking, error) {
	return s.list(ctx, repository.BookingFilter{CustomerID: &customerID, Limit: clampLimit(limit)})
}

// HistoryForProfessional lists the bookings a professional has held.
func (s *Store) HistoryForProfessional(ctx context.Context, professionalID uuid.UUID, limit int) ([]*booking_models.Booking, error) {
	return s.list(ctx, repository.BookingFilter{ProfessionalID: &professionalID, Limit: clampLimit(limit)})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func (s *Store) list(ctx context.Context, f repository.BookingFilter) ([]*booking_models.Booking, error) {
	list, err := s.repo.ListBookings(ctx, f)
	if err != nil {
		return nil, store_errors.Map(err, "Booking")
	}
	return list, nil
}

var openStatuses = []booking_models.Status{
	booking_models.StatusPending, booking_models.StatusAccepted,
	booking_models.StatusAssigned, booking_models.StatusInProgress,
}

var activeStatuses = []booking_models.Status{
	booking_models.StatusAccepted, booking_models.StatusAssigned, booking_models.StatusInProgress,
}

// ActiveForCustomer returns the customer's most recent open booking.
func (s *Store) ActiveForCustomer(ctx context.Context, customerID uuid.UUID) (*booking_models.Booking, error) {
	return s.first(ctx, repository.BookingFilter{CustomerID: &customerID, Statuses: openStatuses, Limit: 1})
}

// ActiveForProfessional returns the booking the professional is working.
func (s *Store) ActiveForProfessional(ctx context.Context, professionalID uuid.UUID) (*booking_models.Booking, error) {
	return s.first(ctx, repository.BookingFilter{ProfessionalID: &professionalID, Statuses: activeStatuses, Limit: 1})
}

func (s *Store) first(ctx context.Context, f repository.BookingFilter) (*booking_models.Booking, error) {
	list, err := s.list(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, utils.NewNotFoundError("No active booking")
	}
	return list[0], nil
}

// CheckAccess reports NotFound when the caller is neither party of b.
// Operators see everything.
func CheckAccess(b *booking_models.Booking, callerID uuid.UUID, role string) error {
	if role == utils.RoleOperator || b.CustomerID == callerID || b.AssignedTo(callerID) {
		return nil
	}
	return &utils.AppError{Kind: utils.ErrNotFound, Message: "Booking not found", Err: fmt.Errorf("caller %s is not a party of booking %s", callerID, b.ID)}
}
