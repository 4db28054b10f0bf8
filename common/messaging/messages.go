package messaging

import "github.com/tdrizzle0202/hiddencash/common/constants"

// PushMessage is the payload queued on the push notification subject. The
// delivery consumer resolves the user's device tokens at consume time, so
// a token registered after the drip ran still receives the notification.
type PushMessage struct {
	UserID string                     `json:"user_id"`
	Type   constants.NotificationType `json:"type"`
	Title  string                     `json:"title"`
	Body   string                     `json:"body"`
	Data   map[string]string          `json:"data,omitempty"`
}
