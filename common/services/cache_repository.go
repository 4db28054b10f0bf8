package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tdrizzle0202/hiddencash/common/constants"
	"github.com/tdrizzle0202/hiddencash/common/db"
	"github.com/tdrizzle0202/hiddencash/common/models"
	"github.com/tdrizzle0202/hiddencash/common/utils"
)

// CacheRepository is the PostgreSQL implementation of CacheService.
type CacheRepository struct {
	db *db.DB
}

// NewCacheRepository creates a new PostgreSQL CacheRepository
func NewCacheRepository(database *db.DB) CacheService {
	return &CacheRepository{
		db: database,
	}
}

func (r *CacheRepository) CheckCache(ctx context.Context, firstName, lastName, stateCode string) (models.CacheCheck, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, results_count, total_pages
		FROM search_cache
		WHERE first_name_normalized = $1
		  AND last_name_normalized = $2
		  AND state_code = $3
		  AND expires_at > now()`,
		utils.NormalizeName(firstName), utils.NormalizeName(lastName), stateCode)

	var check models.CacheCheck
	err := row.Scan(&check.CacheID, &check.ResultsCount, &check.TotalPages)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CacheCheck{}, nil
	}
	if err != nil {
		return models.CacheCheck{}, err
	}

	check.IsValid = true
	return check, nil
}

// ClaimEntry inserts a new cache row or recycles an expired one. The
// conditional upsert makes concurrent misses race-safe: exactly one
// caller gets a row back and owns the scrape, the rest see the fresh
// entry another caller just claimed.
func (r *CacheRepository) ClaimEntry(ctx context.Context, firstName, lastName, stateCode, profileID string) (string, bool, error) {
	first := utils.NormalizeName(firstName)
	last := utils.NormalizeName(lastName)

	row := r.db.Pool.QueryRow(ctx, `
		INSERT INTO search_cache (
			first_name_normalized, last_name_normalized, state_code,
			search_profile_id, expires_at
		)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (first_name_normalized, last_name_normalized, state_code) DO UPDATE
		SET results_count = 0,
		    current_page = 1,
		    total_pages = NULL,
		    is_complete = false,
		    drip_complete = false,
		    search_profile_id = EXCLUDED.search_profile_id,
		    expires_at = EXCLUDED.expires_at,
		    created_at = now(),
		    updated_at = now()
		WHERE search_cache.expires_at <= now()
		RETURNING id`,
		first, last, stateCode, profileID, time.Now().Add(constants.CacheTTL))

	var cacheID string
	err := row.Scan(&cacheID)
	if err == nil {
		return cacheID, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, err
	}

	// Lost the race: a live entry already holds the key.
	err = r.db.Pool.QueryRow(ctx, `
		SELECT id FROM search_cache
		WHERE first_name_normalized = $1
		  AND last_name_normalized = $2
		  AND state_code = $3`,
		first, last, stateCode).Scan(&cacheID)
	if err != nil {
		return "", false, err
	}
	return cacheID, false, nil
}

func (r *CacheRepository) SavePageClaims(ctx context.Context, cacheID string, page int, claims []models.ClaimRecord) ([]string, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, len(claims))
	for _, claim := range claims {
		var id string
		err := tx.QueryRow(ctx, `
			INSERT INTO claims (
				cache_id, page_number, state_code, owner_name, holder_name,
				owner_address, owner_city, owner_state, owner_zip,
				property_type, amount, amount_text
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id`,
			cacheID, page, claim.StateCode, claim.OwnerName, claim.HolderName,
			claim.OwnerAddress, claim.OwnerCity, claim.OwnerState, claim.OwnerZip,
			claim.PropertyType, claim.Amount, claim.AmountText).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("inserting claim: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *CacheRepository) UpdateAfterFetch(ctx context.Context, cacheID string, currentPage int, totalPages *int, newClaims int, isComplete bool) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE search_cache
		SET current_page = $2,
		    total_pages = COALESCE($3, total_pages),
		    results_count = results_count + $4,
		    is_complete = $5,
		    updated_at = now()
		WHERE id = $1`,
		cacheID, currentPage, totalPages, newClaims, isComplete)
	return err
}

func (r *CacheRepository) GetEntry(ctx context.Context, cacheID string) (models.CacheEntry, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, first_name_normalized, last_name_normalized, state_code,
		       results_count, current_page, total_pages, is_complete,
		       drip_complete, COALESCE(search_profile_id::text, ''), expires_at
		FROM search_cache
		WHERE id = $1`, cacheID)

	var entry models.CacheEntry
	err := row.Scan(&entry.ID, &entry.FirstName, &entry.LastName, &entry.StateCode,
		&entry.ResultsCount, &entry.CurrentPage, &entry.TotalPages, &entry.IsComplete,
		&entry.DripComplete, &entry.SearchProfileID, &entry.ExpiresAt)
	if err != nil {
		return models.CacheEntry{}, err
	}
	return entry, nil
}

func (r *CacheRepository) ListClaimIDs(ctx context.Context, cacheID string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id FROM claims
		WHERE cache_id = $1
		ORDER BY created_at, id`, cacheID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *CacheRepository) LinkClaimsToUser(ctx context.Context, userID, profileID string, claimIDs []string, revealed bool) error {
	if len(claimIDs) == 0 {
		return nil
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO user_claims (user_id, claim_id, search_profile_id, revealed, revealed_at)
		SELECT $1, c.id, $2, $4, CASE WHEN $4 THEN now() END
		FROM claims c
		WHERE c.id = ANY($3)
		ON CONFLICT (user_id, claim_id) DO NOTHING`,
		userID, profileID, claimIDs, revealed)
	return err
}

func (r *CacheRepository) UnrevealedCount(ctx context.Context, userID, cacheID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM user_claims uc
		JOIN claims c ON c.id = uc.claim_id
		WHERE uc.user_id = $1
		  AND c.cache_id = $2
		  AND NOT uc.revealed`,
		userID, cacheID).Scan(&count)
	return count, err
}

// RevealClaims picks the user's oldest hidden links under the entry and
// flips them in one statement. SKIP LOCKED keeps two overlapping drip
// runs from revealing the same claim twice.
func (r *CacheRepository) RevealClaims(ctx context.Context, userID, cacheID string, limit int) ([]models.RevealedClaim, error) {
	rows, err := r.db.Pool.Query(ctx, `
		WITH picked AS (
			SELECT uc.id
			FROM user_claims uc
			JOIN claims c ON c.id = uc.claim_id
			WHERE uc.user_id = $1
			  AND c.cache_id = $2
			  AND NOT uc.revealed
			ORDER BY uc.created_at, uc.id
			LIMIT $3
			FOR UPDATE OF uc SKIP LOCKED
		)
		UPDATE user_claims uc
		SET revealed = true, revealed_at = now()
		FROM picked, claims c
		WHERE uc.id = picked.id
		  AND c.id = uc.claim_id
		RETURNING c.id, c.owner_name, c.holder_name, c.property_type, c.amount, c.amount_text`,
		userID, cacheID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revealed []models.RevealedClaim
	for rows.Next() {
		var claim models.RevealedClaim
		if err := rows.Scan(&claim.ClaimID, &claim.OwnerName, &claim.HolderName,
			&claim.PropertyType, &claim.Amount, &claim.AmountText); err != nil {
			return nil, err
		}
		revealed = append(revealed, claim)
	}
	return revealed, rows.Err()
}

// DripCandidates only considers entries whose user currently holds the
// subscription flag. Free-tier and lapsed users would otherwise pass the
// incomplete-pages branch below, and since the gate skip never touches
// updated_at they would head the ordering every run and starve real
// subscribers out of the batch.
func (r *CacheRepository) DripCandidates(ctx context.Context, limit int) ([]models.DripCandidate, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT sc.id, sp.user_id, sc.search_profile_id, sp.first_name, sp.last_name,
		       sc.state_code, sc.current_page, sc.total_pages, sc.is_complete,
		       COUNT(uc.id) FILTER (WHERE NOT uc.revealed) AS unrevealed
		FROM search_cache sc
		JOIN search_profiles sp ON sp.id = sc.search_profile_id
		JOIN user_subscriptions us ON us.user_id = sp.user_id AND us.is_subscribed
		LEFT JOIN claims c ON c.cache_id = sc.id
		LEFT JOIN user_claims uc ON uc.claim_id = c.id AND uc.user_id = sp.user_id
		WHERE NOT sc.drip_complete
		  AND sc.expires_at > now()
		GROUP BY sc.id, sp.user_id, sp.first_name, sp.last_name
		HAVING COUNT(uc.id) FILTER (WHERE NOT uc.revealed) > 0 OR NOT sc.is_complete
		ORDER BY sc.updated_at, sc.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []models.DripCandidate
	for rows.Next() {
		var candidate models.DripCandidate
		var isComplete bool
		if err := rows.Scan(&candidate.CacheID, &candidate.UserID, &candidate.SearchProfileID,
			&candidate.FirstName, &candidate.LastName, &candidate.StateCode,
			&candidate.CurrentPage, &candidate.TotalPages, &isComplete,
			&candidate.UnrevealedCount); err != nil {
			return nil, err
		}
		candidate.NeedsFetch = !isComplete
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

// CompleteDrip reports true for exactly one caller per entry, which
// gates the final audit notification to a single send.
func (r *CacheRepository) CompleteDrip(ctx context.Context, cacheID string) (bool, error) {
	var id string
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE search_cache
		SET drip_complete = true, updated_at = now()
		WHERE id = $1 AND NOT drip_complete
		RETURNING id`, cacheID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *CacheRepository) HasUserClaims(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_claims WHERE user_id = $1)`,
		userID).Scan(&exists)
	return exists, err
}

func (r *CacheRepository) ListUserClaims(ctx context.Context, userID string) ([]models.UserClaimView, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT c.id, c.state_code, c.owner_name, c.owner_city, c.property_type,
		       c.holder_name, c.amount, c.amount_text, uc.status, uc.revealed,
		       uc.created_at
		FROM user_claims uc
		JOIN claims c ON c.id = uc.claim_id
		WHERE uc.user_id = $1
		ORDER BY uc.revealed DESC, uc.created_at DESC, uc.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []models.UserClaimView
	for rows.Next() {
		var claim models.UserClaimView
		var createdAt time.Time
		if err := rows.Scan(&claim.ID, &claim.StateCode, &claim.OwnerName,
			&claim.OwnerCity, &claim.PropertyType, &claim.HolderName,
			&claim.Amount, &claim.AmountText, &claim.Status, &claim.Revealed,
			&createdAt); err != nil {
			return nil, err
		}
		claim.CreatedAt = createdAt.Format(time.RFC3339)
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

func (r *CacheRepository) UpdateClaimStatus(ctx context.Context, userID, claimID, status string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE user_claims
		SET status = $3,
		    viewed_at = CASE WHEN $3 = 'viewed' THEN now() ELSE viewed_at END,
		    liked_at = CASE WHEN $3 = 'liked' THEN now() ELSE liked_at END,
		    disliked_at = CASE WHEN $3 = 'disliked' THEN now() ELSE disliked_at END,
		    claimed_at = CASE WHEN $3 = 'claimed' THEN now() ELSE claimed_at END
		WHERE user_id = $1 AND claim_id = $2`,
		userID, claimID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
