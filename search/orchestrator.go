package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/tdrizzle0202/hiddencash/common"
	"github.com/tdrizzle0202/hiddencash/common/constants"
	"github.com/tdrizzle0202/hiddencash/common/logger"
	"github.com/tdrizzle0202/hiddencash/common/models"
	"github.com/tdrizzle0202/hiddencash/common/services"
	"github.com/tdrizzle0202/hiddencash/portals"
)

// Request is one search invocation: whose name to look up and where.
type Request struct {
	UserID    string   `json:"user_id" validate:"required,uuid"`
	FirstName string   `json:"first_name" validate:"required,max=100"`
	LastName  string   `json:"last_name" validate:"required,max=100"`
	States    []string `json:"states" validate:"required,min=1,dive,len=2"`
}

// Orchestrator runs the one-shot onboarding search: scrape each requested
// state in turn, cache what was found, and attach the claims to the user.
type Orchestrator struct {
	fetcher       *portals.Fetcher
	cache         services.CacheService
	profiles      services.ProfileService
	jobs          services.JobService
	subscriptions services.SubscriptionService
	events        *logger.EventLog
	validate      *validator.Validate
}

func NewOrchestrator(
	fetcher *portals.Fetcher,
	cache services.CacheService,
	profiles services.ProfileService,
	jobs services.JobService,
	subscriptions services.SubscriptionService,
	events *logger.EventLog,
) *Orchestrator {
	return &Orchestrator{
		fetcher:       fetcher,
		cache:         cache,
		profiles:      profiles,
		jobs:          jobs,
		subscriptions: subscriptions,
		events:        events,
		validate:      validator.New(),
	}
}

// Search executes the full search flow.
//
// States run strictly sequentially. The portals tolerate very little
// automated traffic, so one in-flight render per invocation is the
// politeness ceiling, not a performance bug.
func (o *Orchestrator) Search(ctx context.Context, req Request) (models.SearchSummary, error) {
	if err := o.validate.Struct(req); err != nil {
		return models.SearchSummary{}, fmt.Errorf("invalid search request: %w", err)
	}

	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)

	if invalid := lo.Filter(req.States, func(s string, _ int) bool {
		return !portals.Known(s)
	}); len(invalid) > 0 {
		return models.SearchSummary{}, fmt.Errorf("%w: %s", common.ErrInvalidState, strings.Join(invalid, ", "))
	}

	alreadySearched, err := o.cache.HasUserClaims(ctx, req.UserID)
	if err != nil {
		return models.SearchSummary{}, err
	}
	if alreadySearched {
		return models.SearchSummary{}, common.ErrAlreadySearched
	}

	subscribed, err := o.subscriptions.IsSubscribed(ctx, req.UserID)
	if err != nil {
		return models.SearchSummary{}, err
	}
	if !subscribed && len(req.States) > constants.FreeStateQuota {
		return models.SearchSummary{}, common.ErrQuotaExceeded
	}

	profileID, err := o.profiles.CreateProfile(ctx, req.UserID, firstName, lastName)
	if err != nil {
		return models.SearchSummary{}, fmt.Errorf("creating search profile: %w", err)
	}

	statesToSearch := portals.FilterSupported(req.States)
	if len(statesToSearch) == 0 {
		statesToSearch = []string{portals.DefaultState}
	}

	// Claims surface immediately for free users; subscribers get theirs
	// dripped out, so their links start hidden.
	reveal := !subscribed
	priority := 0
	if subscribed {
		priority = 1
	}

	summary := models.SearchSummary{ProfileID: profileID}
	for _, stateCode := range statesToSearch {
		outcome := o.searchState(ctx, req.UserID, profileID, firstName, lastName, stateCode, reveal, priority)
		summary.Results = append(summary.Results, outcome)
		summary.TotalClaims += outcome.Claims
	}

	// Nothing anywhere: take one last swing at the highest-population
	// portals before telling the user their name came up empty.
	if summary.TotalClaims == 0 {
		for _, stateCode := range portals.FallbackStates {
			if lo.Contains(statesToSearch, stateCode) {
				continue
			}
			outcome := o.searchState(ctx, req.UserID, profileID, firstName, lastName, stateCode, reveal, priority)
			summary.Results = append(summary.Results, outcome)
			summary.TotalClaims += outcome.Claims
			if summary.TotalClaims > 0 {
				break
			}
		}
	}

	return summary, nil
}

// searchState runs one state end to end. Failures never propagate; they
// land on the state's job record and in the per-state outcome so one bad
// portal cannot sink the rest of the search.
func (o *Orchestrator) searchState(ctx context.Context, userID, profileID, firstName, lastName, stateCode string, reveal bool, priority int) models.StateOutcome {
	outcome := models.StateOutcome{State: stateCode}

	jobID, err := o.jobs.CreateJob(ctx, profileID, stateCode, priority)
	if err != nil {
		log.Error().Err(err).Str("state_code", stateCode).Msg("failed to create search job")
		outcome.Error = "failed to create search job"
		return outcome
	}
	if err := o.jobs.MarkStarted(ctx, jobID); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("failed to mark job started")
	}

	claims, err := o.processState(ctx, userID, profileID, firstName, lastName, stateCode, reveal)
	if err != nil {
		log.Warn().Err(err).
			Str("state_code", stateCode).
			Str("user_id", userID).
			Msg("state search failed")
		outcome.Error = err.Error()
		if err := o.jobs.MarkFailed(ctx, jobID, err.Error()); err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Msg("failed to mark job failed")
		}
		return outcome
	}

	outcome.Success = true
	outcome.Claims = claims
	if err := o.jobs.MarkCompleted(ctx, jobID); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("failed to mark job completed")
	}
	return outcome
}

func (o *Orchestrator) processState(ctx context.Context, userID, profileID, firstName, lastName, stateCode string, reveal bool) (int, error) {
	check, err := o.cache.CheckCache(ctx, firstName, lastName, stateCode)
	if err != nil {
		return 0, fmt.Errorf("checking cache: %w", err)
	}

	if check.IsValid {
		log.Info().
			Str("state_code", stateCode).
			Str("cache_id", check.CacheID).
			Int("results", check.ResultsCount).
			Msg("cache hit")
		if err := o.linkCached(ctx, userID, profileID, check.CacheID, reveal); err != nil {
			return 0, err
		}
		return check.ResultsCount, nil
	}

	cacheID, owned, err := o.cache.ClaimEntry(ctx, firstName, lastName, stateCode, profileID)
	if err != nil {
		return 0, fmt.Errorf("claiming cache entry: %w", err)
	}
	if !owned {
		// A concurrent identical search won the entry and scrapes on our
		// behalf. Link whatever it has stored so far.
		log.Info().Str("cache_id", cacheID).Msg("cache entry claimed by concurrent search")
		entry, err := o.cache.GetEntry(ctx, cacheID)
		if err != nil {
			return 0, err
		}
		if err := o.linkCached(ctx, userID, profileID, cacheID, reveal); err != nil {
			return 0, err
		}
		return entry.ResultsCount, nil
	}

	if err := o.events.ScrapeStarted(ctx, stateCode, 1); err != nil {
		log.Debug().Err(err).Msg("failed to record scrape start")
	}

	result, err := o.fetcher.FetchResults(ctx, stateCode, firstName, lastName, 1)
	if err != nil {
		return 0, err
	}
	if result.Misaligned != nil {
		log.Warn().Err(result.Misaligned).Str("state_code", stateCode).Msg("parsed with truncated columns")
	}

	claimIDs, err := o.cache.SavePageClaims(ctx, cacheID, 1, result.Claims)
	if err != nil {
		return 0, fmt.Errorf("saving claims: %w", err)
	}

	var totalPages *int
	if result.TotalPages > 1 {
		totalPages = &result.TotalPages
	}
	isComplete := result.TotalPages <= 1
	if err := o.cache.UpdateAfterFetch(ctx, cacheID, 1, totalPages, len(result.Claims), isComplete); err != nil {
		return 0, fmt.Errorf("updating cache entry: %w", err)
	}

	if err := o.cache.LinkClaimsToUser(ctx, userID, profileID, claimIDs, reveal); err != nil {
		return 0, fmt.Errorf("linking claims: %w", err)
	}

	if err := o.events.ScrapeCompleted(ctx, stateCode, cacheID, len(result.Claims), result.TotalPages); err != nil {
		log.Debug().Err(err).Msg("failed to record scrape completion")
	}

	return len(result.Claims), nil
}

func (o *Orchestrator) linkCached(ctx context.Context, userID, profileID, cacheID string, reveal bool) error {
	claimIDs, err := o.cache.ListClaimIDs(ctx, cacheID)
	if err != nil {
		return fmt.Errorf("listing cached claims: %w", err)
	}
	if err := o.cache.LinkClaimsToUser(ctx, userID, profileID, claimIDs, reveal); err != nil {
		return fmt.Errorf("linking cached claims: %w", err)
	}
	return nil
}

// IsRejection reports whether err is a business-rule rejection the client
// should render as such, rather than a pipeline failure.
func IsRejection(err error) bool {
	return errors.Is(err, common.ErrAlreadySearched) ||
		errors.Is(err, common.ErrQuotaExceeded) ||
		errors.Is(err, common.ErrInvalidState)
}
