package services

import (
	"context"

	"github.com/tdrizzle0202/hiddencash/common/db"
)

// PushTokenRepository is the PostgreSQL implementation of PushTokenService.
type PushTokenRepository struct {
	db *db.DB
}

// NewPushTokenRepository creates a new PostgreSQL PushTokenRepository
func NewPushTokenRepository(database *db.DB) PushTokenService {
	return &PushTokenRepository{
		db: database,
	}
}

func (r *PushTokenRepository) UpsertToken(ctx context.Context, userID, token, deviceID, platform string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO push_tokens (user_id, token, device_id, platform)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (user_id, token)
		DO UPDATE SET device_id = EXCLUDED.device_id,
		              platform = EXCLUDED.platform,
		              is_active = true,
		              updated_at = now()`,
		userID, token, deviceID, platform)
	return err
}

func (r *PushTokenRepository) ListActiveTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT token FROM push_tokens
		WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (r *PushTokenRepository) DeactivateToken(ctx context.Context, token string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE push_tokens
		SET is_active = false, updated_at = now()
		WHERE token = $1`, token)
	return err
}
