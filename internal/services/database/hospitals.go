package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"blood-alert-engine/internal/models"
)

// HospitalRepository handles hospital database operations.
type HospitalRepository struct {
	db *DB
}

// NewHospitalRepository creates a new hospital repository.
func NewHospitalRepository(db *DB) *HospitalRepository {
	return &HospitalRepository{db: db}
}

// Create inserts a hospital, returning the existing ID when the name is already registered.
func (r *HospitalRepository) Create(ctx context.Context, hospital *models.HospitalCreate) (int64, error) {
	if err := hospital.Location.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO hospitals (name, lat, lng)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET lat = EXCLUDED.lat, lng = EXCLUDED.lng
		RETURNING id`,
		hospital.Name,
		hospital.Location.Lat,
		hospital.Location.Lng,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create hospital: %w", err)
	}

	return id, nil
}

// GetByID retrieves a hospital by ID.
func (r *HospitalRepository) GetByID(ctx context.Context, id int64) (*models.Hospital, error) {
	var h models.Hospital
	err := r.db.pool.QueryRow(ctx,
		`SELECT id, name, lat, lng, created_at FROM hospitals WHERE id = $1`, id,
	).Scan(&h.ID, &h.Name, &h.Location.Lat, &h.Location.Lng, &h.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrHospitalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hospital: %w", err)
	}
	return &h, nil
}

// ListAll retrieves all hospitals ordered by ID.
func (r *HospitalRepository) ListAll(ctx context.Context) ([]*models.Hospital, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT id, name, lat, lng, created_at FROM hospitals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hospitals: %w", err)
	}
	defer rows.Close()

	hospitals := []*models.Hospital{}
	for rows.Next() {
		var h models.Hospital
		if err := rows.Scan(&h.ID, &h.Name, &h.Location.Lat, &h.Location.Lng, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hospital: %w", err)
		}
		hospitals = append(hospitals, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hospitals: %w", err)
	}

	return hospitals, nil
}
