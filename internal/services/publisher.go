package services

// EventPublisher receives engine events for fan-out to dashboards.
// Implemented by the websocket hub; nil publishers are allowed so
// services stay usable in tests and batch contexts.
type EventPublisher interface {
	Publish(eventType string, payload map[string]interface{})
}

// Engine event types published to the outbound stream
const (
	EventAlertReceived     = "alert_received"
	EventIncidentCreated   = "incident_created"
	EventIncidentUpdated   = "incident_updated"
	EventDecisionMade      = "decision_made"
	EventIncidentAssigned  = "incident_assigned"
	EventIncidentEscalated = "incident_escalated"
	EventOverflowQueued    = "overflow_queued"
	EventIncidentResolved  = "incident_resolved"
)

func publish(p EventPublisher, eventType string, payload map[string]interface{}) {
	if p != nil {
		p.Publish(eventType, payload)
	}
}
