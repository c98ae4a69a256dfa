package adapters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsrelay/opsrelay/internal/alerts"
	"github.com/opsrelay/opsrelay/internal/services"
)

// PagerDutyAdapter handles PagerDuty V3 webhooks
type PagerDutyAdapter struct{}

// NewPagerDutyAdapter creates a new PagerDuty adapter
func NewPagerDutyAdapter() *PagerDutyAdapter {
	return &PagerDutyAdapter{}
}

// SourceType returns the source type name
func (a *PagerDutyAdapter) SourceType() string {
	return "pagerduty"
}

// pagerdutyPayload represents the V3 webhook envelope
type pagerdutyPayload struct {
	Event pagerdutyEvent `json:"event"`
}

type pagerdutyEvent struct {
	EventType  string         `json:"event_type"` // incident.triggered, incident.resolved, ...
	OccurredAt time.Time      `json:"occurred_at"`
	Data       pagerdutyData  `json:"data"`
}

type pagerdutyData struct {
	Title    string `json:"title"`
	Urgency  string `json:"urgency"` // high, low
	Priority *struct {
		Summary string `json:"summary"` // P1..P5
	} `json:"priority"`
	Service struct {
		ID      string `json:"id"`
		Summary string `json:"summary"`
	} `json:"service"`
}

// Parse parses a PagerDuty V3 webhook payload into a single alert input
func (a *PagerDutyAdapter) Parse(body []byte) ([]services.AlertInput, error) {
	var payload pagerdutyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse pagerduty payload: %w", err)
	}

	event := payload.Event
	if event.EventType != "incident.triggered" && event.EventType != "incident.escalated" {
		return nil, nil
	}

	severity := event.Data.Urgency
	if event.Data.Priority != nil && event.Data.Priority.Summary != "" {
		severity = event.Data.Priority.Summary
	}

	return []services.AlertInput{{
		AssetID:    event.Data.Service.ID,
		AssetName:  event.Data.Service.Summary,
		Signature:  event.Data.Title,
		Severity:   string(alerts.NormalizeSeverity(severity)),
		Message:    event.Data.Title,
		SourceTool: a.SourceType(),
		OccurredAt: alerts.EventTime(event.OccurredAt),
	}}, nil
}
