package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/opsrelay/opsrelay/internal/utils"
)

// SlackNotifier posts engine notifications to a Slack channel
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier creates a Slack-backed notifier
func NewSlackNotifier(botToken, channel string) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(botToken),
		channel: channel,
	}
}

// Notify posts the notification as a channel message
func (n *SlackNotifier) Notify(ctx context.Context, notification Notification) error {
	emoji := typeEmoji(notification.Type)
	text := fmt.Sprintf("%s *%s* incident `%s` for %s\n%s",
		emoji, notification.Type, notification.IncidentUUID,
		notification.Recipient, utils.TruncateText(notification.Message, 500))

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post Slack notification: %w", err)
	}
	return nil
}

func typeEmoji(t NotificationType) string {
	switch t {
	case TypeEscalated:
		return ":rotating_light:"
	case TypeOverflow:
		return ":hourglass_flowing_sand:"
	case TypeAssigned:
		return ":bust_in_silhouette:"
	default:
		return ":bell:"
	}
}
