// services/matching_engine
package matching_engine

import (
	"context"

	"github.com/joy095/dispatch/config"
	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/metrics"
	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/services/professional_registry"
	"github.com/joy095/dispatch/services/store_errors"
	"github.com/joy095/dispatch/utils"
	"github.com/joy095/dispatch/utils/geo"
)

// Policy bounds a candidate search. Limit <= 0 means unbounded.
type Policy struct {
	Name         string
	RadiusMeters float64
	Limit        int
}

type NearbyQuery struct {
	Origin          geo.Point
	RadiusMeters    float64
	Specializations []string
}

type Engine struct {
	registry *professional_registry.Registry
	repo     repository.Store
	settings config.MatchingSettings
	metrics  metrics.Recorder
}

func New(registry *professional_registry.Registry, repo repository.Store, settings config.MatchingSettings, rec metrics.Recorder) *Engine {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Engine{registry: registry, repo: repo, settings: settings, metrics: rec}
}

func (e *Engine) Settings() config.MatchingSettings { return e.settings }

// PolicyFor picks the search policy for a booking: emergencies broadcast to
// everyone in a tighter radius.
func (e *Engine) PolicyFor(b *booking_models.Booking) Policy {
	if b.IsEmergency {
		return Policy{Name: "emergency", RadiusMeters: e.settings.EmergencyRadiusMeters, Limit: 0}
	}
	return Policy{Name: "normal", RadiusMeters: e.settings.NormalRadiusMeters, Limit: e.settings.NormalLimit}
}

// Rank returns the eligible candidates for b under its policy.
func (e *Engine) Rank(ctx context.Context, b *booking_models.Booking) ([]professional_registry.Candidate, error) {
	svc, err := e.repo.GetService(ctx, b.ServiceID)
	if err != nil {
		return nil, store_errors.Map(err, "Service")
	}
	policy := e.PolicyFor(b)
	candidates, err := e.registry.FindCandidates(ctx, svc.Capabilities(), b.Destination, policy.RadiusMeters, policy.Limit)
	if err != nil {
		return nil, err
	}
	e.metrics.Candidates(policy.Name, len(candidates))
	logger.InfoLogger.Infof("Booking %s: %d candidates under %s policy (%.0fm)", b.ID, len(candidates), policy.Name, policy.RadiusMeters)
	return candidates, nil
}

// Nearby is the customer-facing lookup. The radius defaults to and is capped
// at the configured maximum.
func (e *Engine) Nearby(ctx context.Context, q NearbyQuery) ([]professional_registry.Candidate, error) {
	if !q.Origin.Valid() {
		return nil, utils.NewValidationError("Invalid coordinates: latitude must be within [-90, 90] and longitude within [-180, 180]")
	}
	if q.RadiusMeters < 0 {
		return nil, utils.NewValidationError("radius must not be negative")
	}
	radius := q.RadiusMeters
	if radius == 0 || radius > e.settings.NearbyMaxRadiusMeters {
		radius = e.settings.NearbyMaxRadiusMeters
	}
	candidates, err := e.registry.FindCandidates(ctx, q.Specializations, q.Origin, radius, e.settings.NearbyLimit)
	if err != nil {
		return nil, err
	}
	e.metrics.Candidates("nearby", len(candidates))
	return candidates, nil
}
