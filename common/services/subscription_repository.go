package services

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/tdrizzle0202/hiddencash/common/db"
)

// SubscriptionRepository is the PostgreSQL implementation of SubscriptionService.
type SubscriptionRepository struct {
	db *db.DB
}

// NewSubscriptionRepository creates a new PostgreSQL SubscriptionRepository
func NewSubscriptionRepository(database *db.DB) SubscriptionService {
	return &SubscriptionRepository{
		db: database,
	}
}

func (r *SubscriptionRepository) IsSubscribed(ctx context.Context, userID string) (bool, error) {
	var subscribed bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT is_subscribed FROM user_subscriptions WHERE user_id = $1`,
		userID).Scan(&subscribed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return subscribed, err
}

func (r *SubscriptionRepository) SetSubscribed(ctx context.Context, userID string, subscribed bool) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO user_subscriptions (user_id, is_subscribed)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET is_subscribed = EXCLUDED.is_subscribed, updated_at = now()`,
		userID, subscribed)
	return err
}
