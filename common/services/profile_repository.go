package services

import (
	"context"

	"github.com/tdrizzle0202/hiddencash/common/db"
)

// ProfileRepository is the PostgreSQL implementation of ProfileService.
type ProfileRepository struct {
	db *db.DB
}

// NewProfileRepository creates a new PostgreSQL ProfileRepository
func NewProfileRepository(database *db.DB) ProfileService {
	return &ProfileRepository{
		db: database,
	}
}

func (r *ProfileRepository) HasProfile(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM search_profiles WHERE user_id = $1)`,
		userID).Scan(&exists)
	return exists, err
}

func (r *ProfileRepository) CreateProfile(ctx context.Context, userID, firstName, lastName string) (string, error) {
	// The conflict target is the normalized name, so resubmitting the
	// same identity with different casing lands on the existing profile.
	var id string
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO search_profiles (user_id, first_name, last_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, first_name_normalized, last_name_normalized)
		DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name
		RETURNING id`,
		userID, firstName, lastName).Scan(&id)
	return id, err
}
