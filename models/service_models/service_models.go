// models/service_models
package service_models

import (
	"time"

	"github.com/google/uuid"
)

// Service is a catalog entry a customer can book.
type Service struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	ProfessionalTypes []string  `json:"professionalTypes,omitempty"`
	BasePrice         float64   `json:"basePrice"`
	IsActive          bool      `json:"isActive"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Capabilities returns the specializations able to perform the service:
// the explicit professional types, or the category when none are listed.
func (s *Service) Capabilities() []string {
	if len(s.ProfessionalTypes) > 0 {
		return s.ProfessionalTypes
	}
	if s.Category == "" {
		return nil
	}
	return []string{s.Category}
}

// Summary is the slice of a service echoed back on booking creation.
type Summary struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
}

func (s *Service) Summary() Summary {
	return Summary{ID: s.ID, Name: s.Name, Category: s.Category}
}
