// Package memory is a Store kept in process memory. Transactions are
// serialized by the store and work on copies that are published on commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/outbox_models"
	"github.com/joy095/dispatch/models/professional_models"
	"github.com/joy095/dispatch/models/service_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/utils/geo"
)

type Store struct {
	mu            sync.RWMutex
	bookings      map[uuid.UUID]*booking_models.Booking
	professionals map[uuid.UUID]*professional_models.Professional
	services      map[uuid.UUID]*service_models.Service
	outbox        map[uuid.UUID]*outbox_models.OutboxEntry
}

func New() *Store {
	return &Store{
		bookings:      make(map[uuid.UUID]*booking_models.Booking),
		professionals: make(map[uuid.UUID]*professional_models.Professional),
		services:      make(map[uuid.UUID]*service_models.Service),
		outbox:        make(map[uuid.UUID]*outbox_models.OutboxEntry),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:         s,
		bookings:      make(map[uuid.UUID]*booking_models.Booking),
		professionals: make(map[uuid.UUID]*professional_models.Professional),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, b := range tx.bookings {
		s.bookings[id] = b
	}
	for id, p := range tx.professionals {
		s.professionals[id] = p
	}
	for _, e := range tx.outbox {
		s.outbox[e.ID] = e
	}
	return nil
}

func (s *Store) GetBooking(_ context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *Store) ListBookings(_ context.Context, f repository.BookingFilter) ([]*booking_models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*booking_models.Booking, 0)
	for _, b := range s.bookings {
		if f.CustomerID != nil && b.CustomerID != *f.CustomerID {
			continue
		}
		if f.ProfessionalID != nil && !b.AssignedTo(*f.ProfessionalID) {
			continue
		}
		if len(f.Statuses) > 0 && !booking_models.Contains(f.Statuses, b.Status) {
			continue
		}
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) UpdateBookingLocation(_ context.Context, id, professionalID uuid.UUID, at geo.Point, seenAt time.Time, etaMinutes *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !current.Status.IsActive() || !current.AssignedTo(professionalID) {
		return repository.ErrNotActive
	}
	b := current.Clone()
	b.Tracking.LastLocation = &at
	b.Tracking.LastLocationAt = &seenAt
	if etaMinutes != nil {
		eta := *etaMinutes
		b.Tracking.ETAMinutes = &eta
	}
	s.bookings[id] = b
	return nil
}

func (s *Store) GetProfessional(_ context.Context, id uuid.UUID) (*professional_models.Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.professionals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *Store) InsertProfessional(_ context.Context, p *professional_models.Professional) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.professionals[p.ID]; exists {
		return repository.ErrDuplicate
	}
	s.professionals[p.ID] = p.Clone()
	return nil
}

func (s *Store) ProfessionalsInBox(_ context.Context, box geo.BoundingBox) ([]*professional_models.Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*professional_models.Professional, 0)
	for _, p := range s.professionals {
		if pos, ok := p.Position(); ok && box.Contains(pos) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (s *Store) GetService(_ context.Context, id uuid.UUID) (*service_models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *svc
	c.ProfessionalTypes = append([]string(nil), svc.ProfessionalTypes...)
	return &c, nil
}

func (s *Store) InsertService(_ context.Context, svc *service_models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[svc.ID]; exists {
		return repository.ErrDuplicate
	}
	c := *svc
	c.ProfessionalTypes = append([]string(nil), svc.ProfessionalTypes...)
	s.services[svc.ID] = &c
	return nil
}

func (s *Store) DueOutbox(_ context.Context, now time.Time, maxAttempts, limit int) ([]*outbox_models.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*outbox_models.OutboxEntry, 0)
	for _, e := range s.outbox {
		if e.DeliveredAt != nil || e.NextAttemptAt.After(now) {
			continue
		}
		if maxAttempts > 0 && e.Attempts >= maxAttempts {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		hi, hj := out[i].Priority == outbox_models.PriorityHigh, out[j].Priority == outbox_models.PriorityHigh
		if hi != hj {
			return hi
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkOutboxDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	c := e.Clone()
	c.DeliveredAt = &at
	c.Attempts++
	c.LastError = ""
	s.outbox[id] = c
	return nil
}

func (s *Store) MarkOutboxFailed(_ context.Context, id uuid.UUID, attempts int, next time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	c := e.Clone()
	c.Attempts = attempts
	c.NextAttemptAt = next
	c.LastError = lastErr
	s.outbox[id] = c
	return nil
}

// Outbox returns every entry, delivered or not, oldest first.
func (s *Store) Outbox() []*outbox_models.OutboxEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*outbox_models.OutboxEntry, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Close() {}

// memTx stages copies; nothing is visible outside until WithTx commits.
type memTx struct {
	store         *Store
	bookings      map[uuid.UUID]*booking_models.Booking
	professionals map[uuid.UUID]*professional_models.Professional
	outbox        []*outbox_models.OutboxEntry
}

func (tx *memTx) GetBooking(_ context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	if b, ok := tx.bookings[id]; ok {
		return b.Clone(), nil
	}
	b, ok := tx.store.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b.Clone(), nil
}

func (tx *memTx) InsertBooking(_ context.Context, b *booking_models.Booking) error {
	if _, exists := tx.store.bookings[b.ID]; exists {
		return repository.ErrDuplicate
	}
	if _, exists := tx.bookings[b.ID]; exists {
		return repository.ErrDuplicate
	}
	tx.bookings[b.ID] = b.Clone()
	return nil
}

func (tx *memTx) UpdateBooking(_ context.Context, b *booking_models.Booking) error {
	_, staged := tx.bookings[b.ID]
	if _, exists := tx.store.bookings[b.ID]; !exists && !staged {
		return repository.ErrNotFound
	}
	tx.bookings[b.ID] = b.Clone()
	return nil
}

func (tx *memTx) GetProfessional(_ context.Context, id uuid.UUID) (*professional_models.Professional, error) {
	if p, ok := tx.professionals[id]; ok {
		return p.Clone(), nil
	}
	p, ok := tx.store.professionals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p.Clone(), nil
}

func (tx *memTx) UpdateProfessional(_ context.Context, p *professional_models.Professional) error {
	_, staged := tx.professionals[p.ID]
	if _, exists := tx.store.professionals[p.ID]; !exists && !staged {
		return repository.ErrNotFound
	}
	tx.professionals[p.ID] = p.Clone()
	return nil
}

func (tx *memTx) ActiveBookingsForProfessional(_ context.Context, professionalID, exclude uuid.UUID) ([]*booking_models.Booking, error) {
	seen := make(map[uuid.UUID]bool)
	out := make([]*booking_models.Booking, 0)
	consider := func(b *booking_models.Booking) {
		if seen[b.ID] {
			return
		}
		seen[b.ID] = true
		if b.ID == exclude || !b.AssignedTo(professionalID) {
			return
		}
		if b.Status == booking_models.StatusPending || b.Status.IsActive() {
			out = append(out, b.Clone())
		}
	}
	for _, b := range tx.bookings {
		consider(b)
	}
	for _, b := range tx.store.bookings {
		consider(b)
	}
	return out, nil
}

func (tx *memTx) InsertOutbox(_ context.Context, e *outbox_models.OutboxEntry) error {
	tx.outbox = append(tx.outbox, e.Clone())
	return nil
}
