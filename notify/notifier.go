package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/tdrizzle0202/hiddencash/common/constants"
	"github.com/tdrizzle0202/hiddencash/common/messaging"
)

// Notifier queues push notifications. With a broker the message rides
// JetStream to the Deliverer; without one it is delivered inline. Either
// way failures are logged and swallowed, notifications are best-effort
// and must never fail a drip or a search.
type Notifier struct {
	broker    *messaging.NatsBroker
	deliverer *Deliverer
}

func NewNotifier(broker *messaging.NatsBroker, deliverer *Deliverer) *Notifier {
	return &Notifier{
		broker:    broker,
		deliverer: deliverer,
	}
}

// NotifyNewClaims announces freshly revealed claims. The amount is an
// estimate: masked portal figures are counted at a nominal value.
func (n *Notifier) NotifyNewClaims(ctx context.Context, userID string, count int, totalAmount float64) {
	n.send(ctx, messaging.PushMessage{
		UserID: userID,
		Type:   constants.NotificationNewClaims,
		Title:  "New Properties Found!",
		Body:   fmt.Sprintf("We found %d more unclaimed properties worth $%s!", count, formatAmount(totalAmount)),
		Data: map[string]string{
			"type":  string(constants.NotificationNewClaims),
			"count": strconv.Itoa(count),
		},
	})
}

// NotifyAuditComplete announces that every page for the user's name has
// been scanned.
func (n *Notifier) NotifyAuditComplete(ctx context.Context, userID string) {
	n.send(ctx, messaging.PushMessage{
		UserID: userID,
		Type:   constants.NotificationAuditComplete,
		Title:  "Audit Complete",
		Body:   "We've scanned all available pages for your name. We'll continue monitoring for new listings.",
		Data: map[string]string{
			"type": string(constants.NotificationAuditComplete),
		},
	})
}

func (n *Notifier) send(ctx context.Context, msg messaging.PushMessage) {
	if n.broker != nil {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Error().Err(err).Msg("failed to encode push message")
			return
		}
		err = n.broker.PublishSync(ctx, constants.PushNotificationTopic, data)
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("user_id", msg.UserID).Msg("queueing push failed, delivering inline")
	}

	if n.deliverer == nil {
		return
	}
	if err := n.deliverer.Deliver(ctx, msg); err != nil {
		log.Warn().Err(err).Str("user_id", msg.UserID).Msg("push delivery failed")
	}
}

// formatAmount renders a dollar figure with thousands separators, the way
// the notification copy reads best.
func formatAmount(amount float64) string {
	whole := int64(amount)
	frac := amount - float64(whole)

	s := strconv.FormatInt(whole, 10)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if frac >= 0.005 {
		s += strconv.FormatFloat(frac, 'f', 2, 64)[1:]
	}
	return s
}
