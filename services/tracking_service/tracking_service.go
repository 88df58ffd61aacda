// services/tracking_service
package tracking_service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/professional_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/services/booking_store"
	"github.com/joy095/dispatch/services/professional_registry"
	"github.com/joy095/dispatch/services/realtime_service"
	"github.com/joy095/dispatch/services/store_errors"
	"github.com/joy095/dispatch/utils"
	"github.com/joy095/dispatch/utils/geo"
)

// AverageSpeedKmh is the travel speed assumed for ETAs.
const AverageSpeedKmh = 30

// Ingested is the outcome of one location ping.
type Ingested struct {
	Professional *professional_models.Professional `json:"professional"`
	BookingID    *uuid.UUID                        `json:"bookingId,omitempty"`
	ETAMinutes   *int                              `json:"etaMinutes,omitempty"`
}

// TrackingInfo is what the customer sees while waiting.
type TrackingInfo struct {
	BookingID            uuid.UUID             `json:"bookingId"`
	Status               booking_models.Status `json:"status"`
	ProfessionalID       *uuid.UUID            `json:"professionalId,omitempty"`
	ProfessionalLocation *geo.Point            `json:"professionalLocation"`
	LastLocationAt       *time.Time            `json:"lastLocationAt,omitempty"`
	Destination          geo.Point             `json:"destination"`
	ETAMinutes           *int                  `json:"etaMinutes"`
}

type locationEvent struct {
	BookingID      uuid.UUID `json:"bookingId"`
	ProfessionalID uuid.UUID `json:"professionalId"`
	Location       geo.Point `json:"location"`
	Timestamp      time.Time `json:"timestamp"`
	ETAMinutes     int       `json:"etaMinutes"`
}

type Service struct {
	repo     repository.Store
	registry *professional_registry.Registry
	bookings *booking_store.Store
	cache    LocationCache
	bus      realtime_service.Bus
	rooms    *realtime_service.Rooms
}

func New(repo repository.Store, registry *professional_registry.Registry, bookings *booking_store.Store, cache LocationCache, bus realtime_service.Bus, rooms *realtime_service.Rooms) *Service {
	if cache == nil {
		cache = NewMemoryCache(LocationTTL)
	}
	if bus == nil {
		bus = realtime_service.NopBus{}
	}
	if rooms == nil {
		rooms = realtime_service.NewRooms(0)
	}
	return &Service{
		repo:     repo,
		registry: registry,
		bookings: bookings,
		cache:    cache,
		bus:      bus,
		rooms:    rooms,
	}
}

func member(professionalID uuid.UUID) string { return "professional_" + professionalID.String() }

// IngestLocation records a ping and, when it belongs to an active booking
// assigned to the professional, refreshes the booking's ETA and pushes the
// position to the booking's watchers. It never changes booking status.
func (s *Service) IngestLocation(ctx context.Context, professionalID uuid.UUID, point geo.Point, meta professional_registry.LocationMeta, bookingID *uuid.UUID) (*Ingested, error) {
	meta.Timestamp = s.registry.ClampTimestamp(meta.Timestamp)
	p, err := s.registry.UpdateLocation(ctx, professionalID, point, meta)
	if err != nil {
		return nil, err
	}
	out := &Ingested{Professional: p}
	if p.CurrentLocation == nil || !p.CurrentLocation.Timestamp.Equal(meta.Timestamp) {
		// Older than what we already have.
		return out, nil
	}

	target := bookingID
	if target == nil && p.CurrentAssignment != nil {
		id := p.CurrentAssignment.BookingID
		target = &id
	}

	cached := CachedLocation{
		ProfessionalID: professionalID,
		Point:          point,
		Accuracy:       meta.Accuracy,
		Heading:        meta.Heading,
		Speed:          meta.Speed,
		Timestamp:      meta.Timestamp,
		BookingID:      target,
	}
	if err := s.cache.Put(ctx, cached); err != nil {
		logger.WarnLogger.Warnf("Failed to cache location of professional %s: %v", professionalID, err)
	}
	if target == nil {
		return out, nil
	}

	b, err := s.bookings.Get(ctx, *target)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			logger.DebugLogger.Debugf("Location ping for unknown booking %s", *target)
			return out, nil
		}
		return nil, err
	}
	if !b.Status.IsActive() || !b.AssignedTo(professionalID) {
		return out, nil
	}

	eta := geo.ETAMinutes(geo.DistanceKm(point, b.Destination), AverageSpeedKmh)
	if err := s.repo.UpdateBookingLocation(ctx, b.ID, professionalID, point, meta.Timestamp, &eta); err != nil {
		if errors.Is(err, repository.ErrNotActive) || errors.Is(err, repository.ErrNotFound) {
			// Completed, cancelled or reassigned since the read above.
			logger.DebugLogger.Debugf("Booking %s no longer active for professional %s, location not recorded", b.ID, professionalID)
			return out, nil
		}
		return nil, store_errors.Map(err, "Booking")
	}
	out.BookingID = &b.ID
	out.ETAMinutes = &eta

	s.rooms.Join(realtime_service.BookingRoom(b.ID), member(professionalID))
	ev := locationEvent{BookingID: b.ID, ProfessionalID: professionalID, Location: point, Timestamp: meta.Timestamp, ETAMinutes: eta}
	for _, room := range []string{realtime_service.BookingRoom(b.ID), realtime_service.UserRoom(b.CustomerID)} {
		if err := s.bus.Emit(ctx, room, realtime_service.EventProfessionalLocation, ev); err != nil {
			logger.WarnLogger.Warnf("Failed to emit location for booking %s to %s: %v", b.ID, room, err)
		}
	}
	return out, nil
}

// GetTrackingInfo reports where the professional is and how far away. The
// ETA is nil until a professional is assigned and has reported a position.
func (s *Service) GetTrackingInfo(ctx context.Context, bookingID, callerID uuid.UUID, role string) (*TrackingInfo, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := booking_store.CheckAccess(b, callerID, role); err != nil {
		return nil, err
	}
	info := &TrackingInfo{
		BookingID:      b.ID,
		Status:         b.Status,
		ProfessionalID: b.ProfessionalID,
		Destination:    b.Destination,
	}
	if b.ProfessionalID == nil {
		return info, nil
	}

	if loc, err := s.cache.Get(ctx, *b.ProfessionalID); err != nil {
		logger.WarnLogger.Warnf("Location cache lookup failed for %s: %v", *b.ProfessionalID, err)
	} else if loc != nil {
		info.ProfessionalLocation = &loc.Point
		info.LastLocationAt = &loc.Timestamp
	}
	if info.ProfessionalLocation == nil && b.Tracking.LastLocation != nil {
		info.ProfessionalLocation = b.Tracking.LastLocation
		info.LastLocationAt = b.Tracking.LastLocationAt
	}
	if info.ProfessionalLocation == nil {
		return info, nil
	}
	if b.Status.IsActive() {
		eta := geo.ETAMinutes(geo.DistanceKm(*info.ProfessionalLocation, b.Destination), AverageSpeedKmh)
		info.ETAMinutes = &eta
	}
	return info, nil
}

// Disconnect tears down a professional's live state: offline in the
// registry, cached position evicted, removed from every room.
func (s *Service) Disconnect(ctx context.Context, professionalID uuid.UUID) error {
	if err := s.registry.SetOffline(ctx, professionalID); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, professionalID); err != nil {
		logger.WarnLogger.Warnf("Failed to evict cached location of %s: %v", professionalID, err)
	}
	left := s.rooms.LeaveAll(member(professionalID))
	logger.InfoLogger.Infof("Professional %s disconnected, left %d rooms", professionalID, left)
	return nil
}
