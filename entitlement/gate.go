package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/tdrizzle0202/hiddencash/common/config"
	"github.com/tdrizzle0202/hiddencash/common/redis"
	"github.com/tdrizzle0202/hiddencash/common/services"
)

// verifiedTTL bounds how long a positive provider verification is trusted
// before the next live check.
const verifiedTTL = 10 * time.Minute

// Gate answers "is this user a paying subscriber right now". The local
// subscription flag is the cheap first word; the entitlement provider has
// the last word, and a lapse found there downgrades the local flag.
type Gate struct {
	cfg           config.EntitlementConfig
	client        *resty.Client
	subscriptions services.SubscriptionService
	redis         *redis.RedisClient
}

func NewGate(cfg config.EntitlementConfig, subscriptions services.SubscriptionService, redisClient *redis.RedisClient) *Gate {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(15 * time.Second)

	return &Gate{
		cfg:           cfg,
		client:        client,
		subscriptions: subscriptions,
		redis:         redisClient,
	}
}

// IsEntitled checks the stored flag first; only users marked subscribed
// are verified against the provider. A verification error counts as not
// entitled for this call but does not downgrade: a provider outage must
// not strip anyone's subscription.
func (g *Gate) IsEntitled(ctx context.Context, userID string) (bool, error) {
	subscribed, err := g.subscriptions.IsSubscribed(ctx, userID)
	if err != nil {
		return false, err
	}
	if !subscribed {
		return false, nil
	}

	// No provider credentials configured (dev, self-hosted): the stored
	// flag is all there is.
	if g.cfg.APIKey == "" {
		return true, nil
	}

	if g.cachedVerification(ctx, userID) {
		return true, nil
	}

	active, err := g.VerifyLive(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("entitlement verification failed")
		return false, nil
	}

	if !active {
		log.Info().Str("user_id", userID).Msg("subscription lapsed, downgrading")
		if err := g.subscriptions.SetSubscribed(ctx, userID, false); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("failed to downgrade subscription")
		}
		return false, nil
	}

	g.rememberVerification(ctx, userID)
	return true, nil
}

type entitlementInfo struct {
	ExpiresDate *time.Time `json:"expires_date"`
}

type providerResponse struct {
	Subscriber struct {
		Entitlements map[string]entitlementInfo `json:"entitlements"`
	} `json:"subscriber"`
}

// VerifyLive asks the entitlement provider whether the user holds any
// active entitlement. A nil expiry means a lifetime grant.
func (g *Gate) VerifyLive(ctx context.Context, userID string) (bool, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("userID", userID).
		Get("/subscribers/{userID}")
	if err != nil {
		return false, err
	}
	if resp.StatusCode() != 200 {
		return false, fmt.Errorf("entitlement provider returned %d", resp.StatusCode())
	}

	var parsed providerResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return false, fmt.Errorf("decoding entitlement response: %w", err)
	}

	now := time.Now()
	return lo.SomeBy(lo.Values(parsed.Subscriber.Entitlements), func(e entitlementInfo) bool {
		return e.ExpiresDate == nil || e.ExpiresDate.After(now)
	}), nil
}

func verificationKey(userID string) string {
	return "entitlement:verified:" + userID
}

func (g *Gate) cachedVerification(ctx context.Context, userID string) bool {
	if g.redis == nil {
		return false
	}
	val, err := g.redis.Get(ctx, verificationKey(userID))
	return err == nil && val == "1"
}

func (g *Gate) rememberVerification(ctx context.Context, userID string) {
	if g.redis == nil {
		return
	}
	if err := g.redis.Set(ctx, verificationKey(userID), "1", verifiedTTL); err != nil {
		log.Debug().Err(err).Msg("failed to cache entitlement verification")
	}
}
