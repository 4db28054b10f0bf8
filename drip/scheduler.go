package drip

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/tdrizzle0202/hiddencash/common/config"
	"github.com/tdrizzle0202/hiddencash/common/constants"
	"github.com/tdrizzle0202/hiddencash/common/logger"
	"github.com/tdrizzle0202/hiddencash/common/models"
	"github.com/tdrizzle0202/hiddencash/common/redis"
	"github.com/tdrizzle0202/hiddencash/common/services"
	"github.com/tdrizzle0202/hiddencash/portals"
)

// EntitlementChecker answers whether a user may keep receiving drips.
// Satisfied by entitlement.Gate.
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, userID string) (bool, error)
}

// Notifier sends best-effort push notifications. Satisfied by
// notify.Notifier.
type Notifier interface {
	NotifyNewClaims(ctx context.Context, userID string, count int, totalAmount float64)
	NotifyAuditComplete(ctx context.Context, userID string)
}

// maskedAmountEstimate stands in for a claim whose portal listing only
// says "UNDER $100". The record keeps a null amount; this figure exists
// solely so notification totals are not dragged to zero by masked values.
const maskedAmountEstimate = 50

// runLockKey serializes scheduler runs across instances. The reveal SQL
// is already safe under overlap; the lock just keeps a second instance
// from burning render-service quota on the same candidates.
const runLockKey = "drip:run"

const runLockTTL = 10 * time.Minute

// Scheduler is the periodic half of the pipeline: it walks cache entries
// that still owe their subscriber claims or pages, tops them up from the
// portal when running low, and reveals claims in small batches.
type Scheduler struct {
	cache    services.CacheService
	gate     EntitlementChecker
	fetcher  *portals.Fetcher
	notifier Notifier
	events   *logger.EventLog
	redis    *redis.RedisClient

	cfg  config.DripConfig
	cron *cron.Cron
}

func NewScheduler(
	cfg config.DripConfig,
	cache services.CacheService,
	gate EntitlementChecker,
	fetcher *portals.Fetcher,
	notifier Notifier,
	events *logger.EventLog,
	redisClient *redis.RedisClient,
) *Scheduler {
	return &Scheduler{
		cache:    cache,
		gate:     gate,
		fetcher:  fetcher,
		notifier: notifier,
		events:   events,
		redis:    redisClient,
		cfg:      cfg,
		cron:     cron.New(),
	}
}

// Start registers the recurring batch run and starts the cron loop.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		log.Info().Msg("drip scheduler disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.cfg.CronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		report, err := s.RunBatch(ctx, constants.DripCandidateBatch)
		if err != nil {
			log.Error().Err(err).Msg("drip batch failed")
			return
		}
		log.Info().
			Int("processed", report.Processed).
			Int("errors", report.Errors).
			Int("total", report.Total).
			Msg("drip batch finished")
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Info().Str("spec", s.cfg.CronSpec).Msg("drip scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running batch to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunBatch processes up to limit drip candidates. A failure on one
// candidate is counted and the batch moves on; a candidate skipped for a
// lapsed subscription counts as neither processed nor failed.
func (s *Scheduler) RunBatch(ctx context.Context, limit int) (models.DripReport, error) {
	if s.redis != nil {
		lock, acquired, err := s.redis.AcquireLock(ctx, runLockKey, runLockTTL)
		if err != nil {
			log.Warn().Err(err).Msg("drip run lock unavailable, proceeding without it")
		} else if !acquired {
			log.Info().Msg("another drip run in progress, skipping")
			return models.DripReport{}, nil
		} else {
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					log.Warn().Err(err).Msg("failed to release drip run lock")
				}
			}()
		}
	}

	candidates, err := s.cache.DripCandidates(ctx, limit)
	if err != nil {
		return models.DripReport{}, err
	}

	report := models.DripReport{Total: len(candidates)}
	for _, candidate := range candidates {
		counted, err := s.processCandidate(ctx, candidate)
		if err != nil {
			log.Error().Err(err).
				Str("cache_id", candidate.CacheID).
				Str("user_id", candidate.UserID).
				Msg("drip candidate failed")
			report.Errors++
			continue
		}
		if counted {
			report.Processed++
		}
	}

	return report, nil
}

func (s *Scheduler) processCandidate(ctx context.Context, candidate models.DripCandidate) (bool, error) {
	entitled, err := s.gate.IsEntitled(ctx, candidate.UserID)
	if err != nil {
		return false, err
	}
	if !entitled {
		log.Info().Str("user_id", candidate.UserID).Msg("candidate no longer subscribed, skipping")
		return false, nil
	}

	// Top up the pool before revealing when the remaining stock will not
	// fill a whole batch and the portal has pages left.
	if candidate.UnrevealedCount < constants.ClaimsPerDrip && candidate.NeedsFetch {
		s.fetchNextPage(ctx, &candidate)
	}

	revealed, err := s.cache.RevealClaims(ctx, candidate.UserID, candidate.CacheID, constants.ClaimsPerDrip)
	if err != nil {
		return false, err
	}

	hasMorePages := candidate.TotalPages != nil && candidate.CurrentPage < *candidate.TotalPages

	if len(revealed) == 0 {
		remaining, err := s.cache.UnrevealedCount(ctx, candidate.UserID, candidate.CacheID)
		if err != nil {
			return false, err
		}
		if remaining > 0 || hasMorePages {
			// Not done, just nothing new this cycle.
			return false, nil
		}

		first, err := s.cache.CompleteDrip(ctx, candidate.CacheID)
		if err != nil {
			return false, err
		}
		if first {
			s.notifier.NotifyAuditComplete(ctx, candidate.UserID)
			if err := s.events.DripCompleted(ctx, candidate.CacheID, 0, true); err != nil {
				log.Debug().Err(err).Msg("failed to record drip completion")
			}
		}
		return first, nil
	}

	totalAmount := 0.0
	for _, claim := range revealed {
		switch {
		case claim.Amount != nil:
			totalAmount += *claim.Amount
		case claim.AmountText == "UNDER $100":
			totalAmount += maskedAmountEstimate
		}
	}

	s.notifier.NotifyNewClaims(ctx, candidate.UserID, len(revealed), totalAmount)
	if err := s.events.DripCompleted(ctx, candidate.CacheID, len(revealed), false); err != nil {
		log.Debug().Err(err).Msg("failed to record drip cycle")
	}

	log.Info().
		Str("cache_id", candidate.CacheID).
		Str("user_id", candidate.UserID).
		Int("revealed", len(revealed)).
		Msg("drip cycle revealed claims")

	return true, nil
}

// fetchNextPage pulls one more result page into the cache. Failures are
// deliberately non-fatal: the reveal step still runs on whatever is
// already stored.
func (s *Scheduler) fetchNextPage(ctx context.Context, candidate *models.DripCandidate) {
	nextPage := candidate.CurrentPage + 1

	if err := s.events.ScrapeStarted(ctx, candidate.StateCode, nextPage); err != nil {
		log.Debug().Err(err).Msg("failed to record scrape start")
	}

	result, err := s.fetcher.FetchResults(ctx, candidate.StateCode, candidate.FirstName, candidate.LastName, nextPage)
	if err != nil {
		log.Warn().Err(err).
			Str("cache_id", candidate.CacheID).
			Int("page", nextPage).
			Msg("next page fetch failed, revealing from cache")
		return
	}
	if result.Misaligned != nil {
		log.Warn().Err(result.Misaligned).Str("state_code", candidate.StateCode).Msg("parsed with truncated columns")
	}

	if len(result.Claims) > 0 {
		claimIDs, err := s.cache.SavePageClaims(ctx, candidate.CacheID, nextPage, result.Claims)
		if err != nil {
			log.Warn().Err(err).Str("cache_id", candidate.CacheID).Msg("failed to save page claims")
			return
		}
		if err := s.cache.LinkClaimsToUser(ctx, candidate.UserID, candidate.SearchProfileID, claimIDs, false); err != nil {
			log.Warn().Err(err).Str("cache_id", candidate.CacheID).Msg("failed to link page claims")
			return
		}
		candidate.UnrevealedCount += len(claimIDs)
	}

	totalPages := candidate.TotalPages
	if result.TotalPages > 1 {
		totalPages = &result.TotalPages
	}
	isComplete := totalPages == nil || nextPage >= *totalPages
	if err := s.cache.UpdateAfterFetch(ctx, candidate.CacheID, nextPage, totalPages, len(result.Claims), isComplete); err != nil {
		log.Warn().Err(err).Str("cache_id", candidate.CacheID).Msg("failed to advance page cursor")
		return
	}

	candidate.CurrentPage = nextPage
	candidate.TotalPages = totalPages

	if err := s.events.ScrapeCompleted(ctx, candidate.StateCode, candidate.CacheID, len(result.Claims), result.TotalPages); err != nil {
		log.Debug().Err(err).Msg("failed to record scrape completion")
	}
}
