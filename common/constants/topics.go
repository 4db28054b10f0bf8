package constants

const (
	// PushNotificationTopic carries queued push notifications to the delivery consumer.
	PushNotificationTopic = "notify.push"
	// NotifyStreamName is the JetStream stream holding notification subjects.
	NotifyStreamName = "NOTIFY"
)
