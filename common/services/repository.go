package services

import (
	"context"

	"github.com/tdrizzle0202/hiddencash/common/models"
)

// CacheService is the persistence surface for the scrape cache: one row
// per (name, state) key, the claims scraped under it, and the per-user
// links that drive the reveal drip.
type CacheService interface {
	// CheckCache reports whether a live entry exists for the key.
	CheckCache(ctx context.Context, firstName, lastName, stateCode string) (models.CacheCheck, error)

	// ClaimEntry resolves a cache miss. It inserts a fresh entry or
	// recycles an expired one in a single statement; owned is true only
	// for the caller that won the row and must now scrape.
	ClaimEntry(ctx context.Context, firstName, lastName, stateCode, profileID string) (cacheID string, owned bool, err error)

	// SavePageClaims persists one page of scraped claims under the entry
	// and returns the new claim IDs in page order.
	SavePageClaims(ctx context.Context, cacheID string, page int, claims []models.ClaimRecord) ([]string, error)

	// UpdateAfterFetch records scrape progress on the entry.
	UpdateAfterFetch(ctx context.Context, cacheID string, currentPage int, totalPages *int, newClaims int, isComplete bool) error

	// GetEntry loads one cache row.
	GetEntry(ctx context.Context, cacheID string) (models.CacheEntry, error)

	// ListClaimIDs returns every claim ID under the entry in insertion order.
	ListClaimIDs(ctx context.Context, cacheID string) ([]string, error)

	// LinkClaimsToUser attaches claims to a user. Existing links are left
	// untouched, so re-linking after a cache hit is safe.
	LinkClaimsToUser(ctx context.Context, userID, profileID string, claimIDs []string, revealed bool) error

	// UnrevealedCount counts the user's linked but still hidden claims
	// under the entry.
	UnrevealedCount(ctx context.Context, userID, cacheID string) (int, error)

	// RevealClaims releases up to limit hidden claims to the user, oldest
	// link first, and returns what was revealed.
	RevealClaims(ctx context.Context, userID, cacheID string, limit int) ([]models.RevealedClaim, error)

	// DripCandidates lists cache entries that still owe their subscribed
	// user claims or pages, oldest progress first. Unsubscribed users'
	// entries are never candidates.
	DripCandidates(ctx context.Context, limit int) ([]models.DripCandidate, error)

	// CompleteDrip marks the entry's drip finished. It reports true
	// exactly once per entry.
	CompleteDrip(ctx context.Context, cacheID string) (bool, error)

	// HasUserClaims reports whether any claim is linked to the user. This
	// is what makes the onboarding search one-shot.
	HasUserClaims(ctx context.Context, userID string) (bool, error)

	// ListUserClaims returns every claim linked to the user, newest first.
	ListUserClaims(ctx context.Context, userID string) ([]models.UserClaimView, error)

	// UpdateClaimStatus transitions the user's view of one claim.
	UpdateClaimStatus(ctx context.Context, userID, claimID, status string) error
}

// ProfileService manages the one-per-identity search profile.
type ProfileService interface {
	// HasProfile reports whether the user already ran their search.
	HasProfile(ctx context.Context, userID string) (bool, error)

	// CreateProfile registers the user's search identity and returns the
	// profile ID. Re-registering the same normalized name is idempotent.
	CreateProfile(ctx context.Context, userID, firstName, lastName string) (string, error)
}

// JobService tracks per-state search jobs.
type JobService interface {
	CreateJob(ctx context.Context, profileID, stateCode string, priority int) (string, error)
	MarkStarted(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, message string) error

	// CountForUser summarizes the user's jobs for the results endpoint.
	CountForUser(ctx context.Context, userID string) (models.JobCounts, error)
}

// SubscriptionService is the locally stored subscription flag, kept in
// sync with the entitlement provider.
type SubscriptionService interface {
	IsSubscribed(ctx context.Context, userID string) (bool, error)
	SetSubscribed(ctx context.Context, userID string, subscribed bool) error
}

// PushTokenService manages device push tokens.
type PushTokenService interface {
	UpsertToken(ctx context.Context, userID, token, deviceID, platform string) error
	ListActiveTokens(ctx context.Context, userID string) ([]string, error)

	// DeactivateToken retires a token the push gateway rejected.
	DeactivateToken(ctx context.Context, token string) error
}
