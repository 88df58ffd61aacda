package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/service_models"
)

func (s *Store) GetService(ctx context.Context, id uuid.UUID) (*service_models.Service, error) {
	svc := &service_models.Service{}
	query := `
		SELECT id, name, category, professional_types, base_price, is_active, created_at, updated_at
		FROM services WHERE id = $1`
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&svc.ID, &svc.Name, &svc.Category, &svc.ProfessionalTypes,
		&svc.BasePrice, &svc.IsActive, &svc.CreatedAt, &svc.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			logger.WarnLogger.Warnf("Service with ID %s not found", id)
		} else {
			logger.ErrorLogger.Errorf("Failed to fetch service %s: %v", id, err)
		}
		return nil, mapErr(err)
	}
	return svc, nil
}

func (s *Store) InsertService(ctx context.Context, svc *service_models.Service) error {
	types := svc.ProfessionalTypes
	if types == nil {
		types = []string{}
	}
	query := `
		INSERT INTO services (id, name, category, professional_types, base_price, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query,
		svc.ID, svc.Name, svc.Category, types, svc.BasePrice, svc.IsActive, svc.CreatedAt, svc.UpdatedAt,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to insert service %s: %v", svc.ID, err)
		return mapErr(fmt.Errorf("failed to create service: %w", err))
	}
	return nil
}
