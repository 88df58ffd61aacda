package notification_service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/joy095/dispatch/repository"
)

// ProfessionalDirectory resolves professionals' addresses from the store.
// Customers live in the identity service and resolve to ErrNoAddress.
type ProfessionalDirectory struct {
	repo repository.Store
}

func NewProfessionalDirectory(repo repository.Store) *ProfessionalDirectory {
	return &ProfessionalDirectory{repo: repo}
}

func (d *ProfessionalDirectory) EmailFor(ctx context.Context, recipientID uuid.UUID) (string, error) {
	p, err := d.repo.GetProfessional(ctx, recipientID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrNoAddress
	}
	if err != nil {
		return "", err
	}
	if p.Email == "" {
		return "", ErrNoAddress
	}
	return p.Email, nil
}
