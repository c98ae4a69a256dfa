package notify

import (
	"context"
	"log"

	"github.com/opsrelay/opsrelay/internal/utils"
)

// LogNotifier writes notifications to the process log. Used as the
// fallback sink when no delivery integration is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the notification
func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	log.Printf("Notification [%s] incident=%s recipient=%s: %s",
		notification.Type, notification.IncidentUUID, notification.Recipient,
		utils.EscapeForLogging(notification.Message, 300))
	return nil
}
