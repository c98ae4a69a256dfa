package adapters

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opsrelay/opsrelay/internal/alerts"
	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/services"
)

// DatadogAdapter handles Datadog monitor webhooks
type DatadogAdapter struct{}

// NewDatadogAdapter creates a new Datadog adapter
func NewDatadogAdapter() *DatadogAdapter {
	return &DatadogAdapter{}
}

// SourceType returns the source type name
func (a *DatadogAdapter) SourceType() string {
	return "datadog"
}

// datadogPayload represents the webhook payload from Datadog
type datadogPayload struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	AlertType   string   `json:"alert_type"` // error, warning, info, success
	Priority    string   `json:"priority"`
	AlertTitle  string   `json:"alert_title"`
	AlertStatus string   `json:"alert_status"` // Triggered, Recovered, etc.
	Hostname    string   `json:"hostname"`
	Date        int64    `json:"date"` // unix seconds
	Tags        []string `json:"tags"`
}

// Parse parses a Datadog webhook payload into a single alert input
func (a *DatadogAdapter) Parse(body []byte) ([]services.AlertInput, error) {
	var payload datadogPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse datadog payload: %w", err)
	}
	if strings.Contains(strings.ToLower(payload.AlertStatus), "recovered") || !alerts.IsFiring(payload.AlertStatus) {
		return nil, nil
	}

	tags := parseTags(payload.Tags)
	assetID := payload.Hostname
	if assetID == "" {
		assetID = tags["host"]
	}

	signature := payload.AlertTitle
	if signature == "" {
		signature = payload.Title
	}

	var occurredAt time.Time
	if payload.Date > 0 {
		occurredAt = time.Unix(payload.Date, 0)
	}

	labels := make(map[string]interface{}, len(tags))
	for k, v := range tags {
		labels[k] = v
	}

	return []services.AlertInput{{
		AssetID:    assetID,
		AssetName:  payload.Hostname,
		Signature:  signature,
		Severity:   string(a.mapAlertType(payload.AlertType, payload.Priority)),
		Message:    payload.Body,
		SourceTool: a.SourceType(),
		Labels:     labels,
		OccurredAt: alerts.EventTime(occurredAt),
	}}, nil
}

// mapAlertType maps Datadog alert_type (with priority as fallback) to
// a severity level
func (a *DatadogAdapter) mapAlertType(alertType, priority string) database.AlertSeverity {
	switch strings.ToLower(alertType) {
	case "error":
		return database.AlertSeverityCritical
	case "warning":
		return database.AlertSeverityMedium
	case "info", "success":
		return database.AlertSeverityLow
	}
	if strings.ToLower(priority) == "low" {
		return database.AlertSeverityLow
	}
	return database.AlertSeverityMedium
}

// parseTags parses the Datadog tags array into a map
func parseTags(tags []string) map[string]string {
	result := make(map[string]string)
	for _, tag := range tags {
		parts := strings.SplitN(tag, ":", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		} else {
			result[tag] = "true"
		}
	}
	return result
}
