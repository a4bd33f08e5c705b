package services

import (
	"context"
	"log"
)

// Notification intent kinds
const (
	NotifyStageCompleted = "stage_completed"
	NotifyAddonApproved  = "addon_approved"
	NotifyAddonRejected  = "addon_rejected"
)

// NotificationIntent is a structured request to notify a user about a
// workflow transition. Actual delivery (email, SMS, push) is an external
// concern.
type NotificationIntent struct {
	Kind        string `json:"kind"`
	RecipientID uint   `json:"recipient_id"` // customer user ID
	BookingID   uint   `json:"booking_id"`
	EntityID    uint   `json:"entity_id"` // stage or addon request ID
	Message     string `json:"message"`
}

// Notifier receives notification intents emitted by the workflow engines
type Notifier interface {
	Notify(ctx context.Context, intent NotificationIntent) error
}

// LogNotifier writes notification intents to the application log. The
// default implementation until a delivery channel is wired up.
type LogNotifier struct{}

// Notify logs the intent
func (LogNotifier) Notify(_ context.Context, intent NotificationIntent) error {
	log.Printf("notification intent: kind=%s recipient=%d booking=%d entity=%d message=%q",
		intent.Kind, intent.RecipientID, intent.BookingID, intent.EntityID, intent.Message)
	return nil
}

var notifierInstance Notifier = LogNotifier{}

// GetNotifier returns the notifier instance
func GetNotifier() Notifier {
	return notifierInstance
}

// SetNotifier sets the notifier instance (primarily for testing)
func SetNotifier(n Notifier) {
	notifierInstance = n
}
