package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/professional_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/utils/geo"
)

const professionalColumns = `
	id, name, phone, email, specializations, verification_status, is_available, is_online, rating,
	current_location, location_history, current_assignment, last_seen, created_at, updated_at`

func scanProfessional(row pgx.Row) (*professional_models.Professional, error) {
	p := &professional_models.Professional{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Phone, &p.Email, &p.Specializations, &p.VerificationStatus,
		&p.IsAvailable, &p.IsOnline, &p.Rating,
		&p.CurrentLocation, &p.LocationHistory, &p.CurrentAssignment, &p.LastSeen,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// locationColumns splits the current point out so the bounding-box index can
// serve proximity queries.
func locationColumns(p *professional_models.Professional) (lat, lon *float64) {
	if p.CurrentLocation == nil {
		return nil, nil
	}
	la, lo := p.CurrentLocation.Point.Lat, p.CurrentLocation.Point.Lon
	return &la, &lo
}

func getProfessional(ctx context.Context, q querier, id uuid.UUID, lock bool) (*professional_models.Professional, error) {
	query := `SELECT ` + professionalColumns + ` FROM professionals WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	p, err := scanProfessional(q.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			logger.WarnLogger.Warnf("Professional with ID %s not found", id)
		} else {
			logger.ErrorLogger.Errorf("Failed to fetch professional %s: %v", id, err)
		}
		return nil, mapErr(err)
	}
	return p, nil
}

func updateProfessional(ctx context.Context, q querier, p *professional_models.Professional) error {
	lat, lon := locationColumns(p)
	history := p.LocationHistory
	if history == nil {
		history = []professional_models.Location{}
	}
	query := `
		UPDATE professionals SET
			is_available = $2, is_online = $3, loc_lat = $4, loc_lon = $5,
			current_location = $6, location_history = $7, current_assignment = $8,
			last_seen = $9, updated_at = $10
		WHERE id = $1`
	tag, err := q.Exec(ctx, query,
		p.ID, p.IsAvailable, p.IsOnline, lat, lon,
		p.CurrentLocation, history, p.CurrentAssignment,
		p.LastSeen, p.UpdatedAt,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to update professional %s: %v", p.ID, err)
		return mapErr(fmt.Errorf("failed to update professional: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) GetProfessional(ctx context.Context, id uuid.UUID) (*professional_models.Professional, error) {
	return getProfessional(ctx, s.pool, id, false)
}

func (s *Store) InsertProfessional(ctx context.Context, p *professional_models.Professional) error {
	lat, lon := locationColumns(p)
	history := p.LocationHistory
	if history == nil {
		history = []professional_models.Location{}
	}
	specs := p.Specializations
	if specs == nil {
		specs = []string{}
	}
	query := `INSERT INTO professionals (` + professionalColumns + `, loc_lat, loc_lon)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Name, p.Phone, p.Email, specs, p.VerificationStatus, p.IsAvailable, p.IsOnline, p.Rating,
		p.CurrentLocation, history, p.CurrentAssignment, p.LastSeen, p.CreatedAt, p.UpdatedAt,
		lat, lon,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to insert professional %s: %v", p.ID, err)
		return mapErr(fmt.Errorf("failed to create professional: %w", err))
	}
	return nil
}

// ProfessionalsInBox is the index-backed prefilter for proximity queries.
// The exact haversine radius check happens in the caller.
func (s *Store) ProfessionalsInBox(ctx context.Context, box geo.BoundingBox) ([]*professional_models.Professional, error) {
	query := `SELECT ` + professionalColumns + ` FROM professionals
		WHERE loc_lat BETWEEN $1 AND $2 AND loc_lon BETWEEN $3 AND $4`
	rows, err := s.pool.Query(ctx, query, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to query professionals in box: %v", err)
		return nil, mapErr(fmt.Errorf("failed to query professionals: %w", err))
	}
	defer rows.Close()

	out := make([]*professional_models.Professional, 0)
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan professional: %w", err)
		}
		out = append(out, p)
	}
	return out, mapErr(rows.Err())
}
