// models/professional_models
package professional_models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/utils/geo"
)

type VerificationStatus string

const (
	VerificationRegistrationPending VerificationStatus = "registration_pending"
	VerificationDocumentPending     VerificationStatus = "document_pending"
	VerificationUnderReview         VerificationStatus = "under_review"
	VerificationVerified            VerificationStatus = "verified"
	VerificationRejected            VerificationStatus = "rejected"
)

// Phase is how far the professional has got with the current assignment.
type Phase string

const (
	PhaseAssigned Phase = "assigned"
	PhaseArrived  Phase = "arrived"
	PhaseStarted  Phase = "started"
)

// MaxLocationHistory caps LocationHistory; older entries are dropped first.
const MaxLocationHistory = 100

type Location struct {
	Point     geo.Point `json:"point"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Heading   float64   `json:"heading,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Assignment struct {
	BookingID  uuid.UUID `json:"bookingId"`
	Phase      Phase     `json:"phase"`
	AssignedAt time.Time `json:"assignedAt"`
}

type Professional struct {
	ID                 uuid.UUID          `json:"id"`
	Name               string             `json:"name"`
	Phone              string             `json:"phone,omitempty"`
	Email              string             `json:"email,omitempty"`
	Specializations    []string           `json:"specializations"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	IsAvailable        bool               `json:"isAvailable"`
	IsOnline           bool               `json:"isOnline"`
	Rating             float64            `json:"rating"`
	CurrentLocation    *Location          `json:"currentLocation,omitempty"`
	LocationHistory    []Location         `json:"locationHistory,omitempty"`
	CurrentAssignment  *Assignment        `json:"currentAssignment,omitempty"`
	LastSeen           *time.Time         `json:"lastSeen,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// RecordLocation makes loc current and prepends it to the history, evicting
// the oldest entries beyond MaxLocationHistory.
func (p *Professional) RecordLocation(loc Location) {
	p.CurrentLocation = &loc
	history := make([]Location, 0, min(len(p.LocationHistory)+1, MaxLocationHistory))
	history = append(history, loc)
	for _, h := range p.LocationHistory {
		if len(history) == MaxLocationHistory {
			break
		}
		history = append(history, h)
	}
	p.LocationHistory = history
}

// Assign sets or clears the current assignment. Availability always follows.
func (p *Professional) Assign(a *Assignment) {
	p.CurrentAssignment = a
	p.IsAvailable = a == nil
}

// Dispatchable reports whether p may receive new work.
func (p *Professional) Dispatchable() bool {
	return p.VerificationStatus == VerificationVerified && p.IsAvailable && p.IsOnline
}

// HasAnySpecialization reports whether p covers at least one capability.
// An empty capability list matches everyone.
func (p *Professional) HasAnySpecialization(capabilities []string) bool {
	if len(capabilities) == 0 {
		return true
	}
	for _, want := range capabilities {
		for _, have := range p.Specializations {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// Position implements geo.Locatable.
func (p *Professional) Position() (geo.Point, bool) {
	if p.CurrentLocation == nil {
		return geo.Point{}, false
	}
	return p.CurrentLocation.Point, true
}

// Score implements geo.Locatable.
func (p *Professional) Score() float64 { return p.Rating }

func (p *Professional) Clone() *Professional {
	if p == nil {
		return nil
	}
	c := *p
	c.Specializations = append([]string(nil), p.Specializations...)
	if p.CurrentLocation != nil {
		loc := *p.CurrentLocation
		c.CurrentLocation = &loc
	}
	c.LocationHistory = append([]Location(nil), p.LocationHistory...)
	if p.CurrentAssignment != nil {
		a := *p.CurrentAssignment
		c.CurrentAssignment = &a
	}
	if p.LastSeen != nil {
		t := *p.LastSeen
		c.LastSeen = &t
	}
	return &c
}
