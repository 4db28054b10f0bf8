package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/tdrizzle0202/hiddencash/common/config"
	"github.com/tdrizzle0202/hiddencash/common/constants"
	"github.com/tdrizzle0202/hiddencash/common/messaging"
	"github.com/tdrizzle0202/hiddencash/common/services"
)

// Deliverer sends queued push notifications to the Expo push gateway.
type Deliverer struct {
	cfg    config.PushConfig
	client *resty.Client
	tokens services.PushTokenService
}

func NewDeliverer(cfg config.PushConfig, tokens services.PushTokenService) *Deliverer {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Deliverer{
		cfg:    cfg,
		client: client,
		tokens: tokens,
	}
}

type expoMessage struct {
	To    string            `json:"to"`
	Sound string            `json:"sound"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type expoTicket struct {
	Status  string `json:"status"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data []expoTicket `json:"data"`
}

// Deliver fans the message out to every active device token the user has
// registered. Tokens the gateway reports as dead are retired so later
// sends stop wasting requests on them.
func (d *Deliverer) Deliver(ctx context.Context, msg messaging.PushMessage) error {
	tokens, err := d.tokens.ListActiveTokens(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("listing push tokens: %w", err)
	}
	if len(tokens) == 0 {
		log.Debug().Str("user_id", msg.UserID).Msg("no push tokens registered")
		return nil
	}

	payload := lo.Map(tokens, func(token string, _ int) expoMessage {
		return expoMessage{
			To:    token,
			Sound: "default",
			Title: msg.Title,
			Body:  msg.Body,
			Data:  msg.Data,
		}
	})

	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(d.cfg.ExpoURL)
	if err != nil {
		return fmt.Errorf("sending push notification: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode())
	}

	var parsed expoResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		// The send already went through; a malformed ticket list only
		// costs us the dead-token cleanup.
		log.Debug().Err(err).Msg("could not decode push tickets")
		return nil
	}

	for i, ticket := range parsed.Data {
		if i >= len(tokens) {
			break
		}
		if ticket.Status == "error" && ticket.Details.Error == "DeviceNotRegistered" {
			log.Info().Str("user_id", msg.UserID).Msg("retiring unregistered push token")
			if err := d.tokens.DeactivateToken(ctx, tokens[i]); err != nil {
				log.Warn().Err(err).Msg("failed to retire push token")
			}
		}
	}

	return nil
}

// Start attaches the deliverer to the notification subject and consumes
// until the context ends. Delivery failures are logged and acked; the
// product promise is best-effort notification, never a stuck queue.
func (d *Deliverer) Start(ctx context.Context, broker *messaging.NatsBroker) (jetstream.ConsumeContext, error) {
	consumer, err := broker.PushConsumer(ctx, constants.NotifyStreamName, constants.PushNotificationTopic)
	if err != nil {
		return nil, err
	}
	if consumer == nil {
		return nil, nil
	}

	return consumer.Consume(func(msg jetstream.Msg) {
		var push messaging.PushMessage
		if err := json.Unmarshal(msg.Data(), &push); err != nil {
			log.Error().Err(err).Msg("dropping malformed push message")
			_ = msg.Ack()
			return
		}

		if err := d.Deliver(ctx, push); err != nil {
			log.Warn().Err(err).Str("user_id", push.UserID).Msg("push delivery failed")
		}
		_ = msg.Ack()
	})
}
