// services/professional_registry
package professional_registry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/metrics"
	"github.com/joy095/dispatch/models/professional_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/services/store_errors"
	"github.com/joy095/dispatch/utils"
	"github.com/joy095/dispatch/utils/geo"
)

const MsgNotAvailable = "Professional not available"

// LocationMeta is the optional part of a location ping.
type LocationMeta struct {
	Accuracy  float64
	Heading   float64
	Speed     float64
	Timestamp time.Time
	// IsAvailable is honoured only while the professional holds no assignment.
	IsAvailable *bool
}

// Candidate is a professional ranked by distance from a query origin.
type Candidate struct {
	Professional *professional_models.Professional
	DistanceKm   float64
}

// DefaultMaxClockSkew is how far ahead of the server clock a device
// timestamp may run before it is replaced by the server time.
const DefaultMaxClockSkew = 5 * time.Second

type Registry struct {
	repo    repository.Store
	metrics metrics.Recorder
	now     func() time.Time
	maxSkew time.Duration
}

func New(repo repository.Store, rec metrics.Recorder) *Registry {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Registry{
		repo:    repo,
		metrics: rec,
		now:     func() time.Time { return time.Now().UTC() },
		maxSkew: DefaultMaxClockSkew,
	}
}

// WithMaxClockSkew overrides DefaultMaxClockSkew. Non-positive values are ignored.
func (r *Registry) WithMaxClockSkew(d time.Duration) *Registry {
	if d > 0 {
		r.maxSkew = d
	}
	return r
}

// ClampTimestamp returns the timestamp a ping is recorded under: ts itself,
// or the server time when ts is zero or too far in the future.
func (r *Registry) ClampTimestamp(ts time.Time) time.Time {
	now := r.now()
	if ts.IsZero() {
		return now
	}
	if ts.After(now.Add(r.maxSkew)) {
		logger.WarnLogger.Warnf("Location timestamp %s is ahead of server clock %s, using server time", ts, now)
		return now
	}
	return ts
}

// Register stores a new professional profile.
func (r *Registry) Register(ctx context.Context, p *professional_models.Professional) error {
	if p.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		p.ID = id
	}
	now := r.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := r.repo.InsertProfessional(ctx, p); err != nil {
		return store_errors.Map(err, "Professional")
	}
	logger.InfoLogger.Infof("Professional %s registered", p.ID)
	return nil
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*professional_models.Professional, error) {
	p, err := r.repo.GetProfessional(ctx, id)
	if err != nil {
		return nil, store_errors.Map(err, "Professional")
	}
	return p, nil
}

// UpdateLocation records a location ping. Pings not newer than the stored
// location are ignored, which makes retries of the same ping harmless.
func (r *Registry) UpdateLocation(ctx context.Context, id uuid.UUID, point geo.Point, meta LocationMeta) (*professional_models.Professional, error) {
	if !point.Valid() {
		r.metrics.LocationPing("rejected")
		return nil, utils.NewValidationError("Invalid coordinates: latitude must be within [-90, 90] and longitude within [-180, 180]")
	}
	now := r.now()
	ts := r.ClampTimestamp(meta.Timestamp)

	var out *professional_models.Professional
	stale := false
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.GetProfessional(ctx, id)
		if err != nil {
			return err
		}
		// A stored fix from beyond the skew window predates the clamp and
		// must not block newer pings.
		if prev := p.CurrentLocation; prev != nil && !ts.After(prev.Timestamp) && !prev.Timestamp.After(now.Add(r.maxSkew)) {
			stale = true
			out = p
			return nil
		}
		p.RecordLocation(professional_models.Location{
			Point:     point,
			Accuracy:  meta.Accuracy,
			Heading:   meta.Heading,
			Speed:     meta.Speed,
			Timestamp: ts,
		})
		p.IsOnline = true
		p.LastSeen = &now
		if meta.IsAvailable != nil && p.CurrentAssignment == nil {
			p.IsAvailable = *meta.IsAvailable
		}
		p.UpdatedAt = now
		out = p
		return tx.UpdateProfessional(ctx, p)
	})
	if err != nil {
		return nil, store_errors.Map(err, "Professional")
	}
	if stale {
		r.metrics.LocationPing("stale")
		logger.DebugLogger.Debugf("Ignoring stale location ping for professional %s at %s", id, ts)
	} else {
		r.metrics.LocationPing("accepted")
	}
	return out, nil
}

// FindCandidates returns dispatchable professionals covering at least one of
// capabilities within maxDistanceMeters of origin, nearest first and by
// descending rating on ties. limit <= 0 means unbounded.
func (r *Registry) FindCandidates(ctx context.Context, capabilities []string, origin geo.Point, maxDistanceMeters float64, limit int) ([]Candidate, error) {
	if !origin.Valid() {
		return nil, utils.NewValidationError("Invalid origin coordinates")
	}
	pool, err := r.repo.ProfessionalsInBox(ctx, geo.BoxAround(origin, maxDistanceMeters))
	if err != nil {
		return nil, store_errors.Map(err, "Professional")
	}
	hits := geo.Within(origin, maxDistanceMeters, limit, pool, func(p *professional_models.Professional) bool {
		return p.Dispatchable() && p.HasAnySpecialization(capabilities)
	})
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{Professional: h.Item, DistanceKm: h.DistanceKm}
	}
	return out, nil
}

// SetAssignment is SetAssignmentTx in its own transaction.
func (r *Registry) SetAssignment(ctx context.Context, id uuid.UUID, a *professional_models.Assignment) (*professional_models.Professional, error) {
	var out *professional_models.Professional
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := r.SetAssignmentTx(ctx, tx, id, a)
		out = p
		return err
	})
	if err != nil {
		return nil, store_errors.Map(err, "Professional")
	}
	return out, nil
}

// SetAssignmentTx sets a (availability false) or clears it (availability
// true) on the locked professional row.
func (r *Registry) SetAssignmentTx(ctx context.Context, tx repository.Tx, id uuid.UUID, a *professional_models.Assignment) (*professional_models.Professional, error) {
	p, err := tx.GetProfessional(ctx, id)
	if err != nil {
		return nil, store_errors.Map(err, "Professional")
	}
	return p, r.write(ctx, tx, p, a)
}

// ClaimTx assigns the professional to bookingID only if they can take work.
func (r *Registry) ClaimTx(ctx context.Context, tx repository.Tx, id, bookingID uuid.UUID) (*professional_models.Professional, error) {
	p, err := tx.GetProfessional(ctx, id)
	if err != nil {
		return nil, store_errors.Map(err, "Professional")
	}
	if !p.IsAvailable || p.CurrentAssignment != nil ||
		p.VerificationStatus != professional_models.VerificationVerified {
		logger.WarnLogger.Warnf("Professional %s cannot claim booking %s (available=%t, status=%s)", id, bookingID, p.IsAvailable, p.VerificationStatus)
		return nil, utils.NewConflictError(MsgNotAvailable)
	}
	a := &professional_models.Assignment{BookingID: bookingID, Phase: professional_models.PhaseAssigned, AssignedAt: r.now()}
	return p, r.write(ctx, tx, p, a)
}

// ReleaseTx clears the assignment if it still points at bookingID.
func (r *Registry) ReleaseTx(ctx context.Context, tx repository.Tx, id, bookingID uuid.UUID) error {
	p, err := tx.GetProfessional(ctx, id)
	if err != nil {
		return store_errors.Map(err, "Professional")
	}
	if p.CurrentAssignment != nil && p.CurrentAssignment.BookingID != bookingID {
		logger.WarnLogger.Warnf("Professional %s holds booking %s, not releasing for %s", id, p.CurrentAssignment.BookingID, bookingID)
		return nil
	}
	return r.write(ctx, tx, p, nil)
}

// SetPhaseTx records progress on the current assignment.
func (r *Registry) SetPhaseTx(ctx context.Context, tx repository.Tx, id, bookingID uuid.UUID, phase professional_models.Phase) error {
	p, err := tx.GetProfessional(ctx, id)
	if err != nil {
		return store_errors.Map(err, "Professional")
	}
	if p.CurrentAssignment == nil || p.CurrentAssignment.BookingID != bookingID {
		return nil
	}
	a := *p.CurrentAssignment
	a.Phase = phase
	return r.write(ctx, tx, p, &a)
}

func (r *Registry) write(ctx context.Context, tx repository.Tx, p *professional_models.Professional, a *professional_models.Assignment) error {
	p.Assign(a)
	p.UpdatedAt = r.now()
	if err := tx.UpdateProfessional(ctx, p); err != nil {
		return store_errors.Map(err, "Professional")
	}
	return nil
}

// SetOffline marks the professional disconnected.
func (r *Registry) SetOffline(ctx context.Context, id uuid.UUID) error {
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.GetProfessional(ctx, id)
		if err != nil {
			return err
		}
		now := r.now()
		p.IsOnline = false
		p.LastSeen = &now
		p.UpdatedAt = now
		return tx.UpdateProfessional(ctx, p)
	})
	if err != nil {
		return store_errors.Map(err, "Professional")
	}
	logger.InfoLogger.Infof("Professional %s went offline", id)
	return nil
}
