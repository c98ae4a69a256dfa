package notify

import "context"

// NotificationType classifies outbound notices
type NotificationType string

const (
	TypeAssigned  NotificationType = "assigned"
	TypeEscalated NotificationType = "escalated"
	TypeOverflow  NotificationType = "overflow"
)

// Notification is a delivery request emitted by the engine.
// Rendering and delivery are the sink's problem, not the engine's.
type Notification struct {
	Type         NotificationType
	IncidentUUID string
	Recipient    string // technician name, "administrators", or "senior-tier"
	Message      string
}

// Notifier is the notification sink contract
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
