package adapters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsrelay/opsrelay/internal/alerts"
	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/services"
)

// ZabbixAdapter handles Zabbix webhooks
type ZabbixAdapter struct{}

// NewZabbixAdapter creates a new Zabbix adapter
func NewZabbixAdapter() *ZabbixAdapter {
	return &ZabbixAdapter{}
}

// SourceType returns the source type name
func (a *ZabbixAdapter) SourceType() string {
	return "zabbix"
}

// zabbixPayload represents the webhook payload from Zabbix
type zabbixPayload struct {
	EventTime   string `json:"event_time"`
	AlertName   string `json:"alert_name"`
	Priority    string `json:"priority"`
	MetricName  string `json:"metric_name"`
	MetricValue string `json:"metric_value"`
	HostName    string `json:"host_name"`
	Hardware    string `json:"hardware"`
	EventStatus string `json:"event_status"`
	EventID     string `json:"event_id"`
}

// Parse parses a Zabbix webhook payload into a single alert input
func (a *ZabbixAdapter) Parse(body []byte) ([]services.AlertInput, error) {
	var payload zabbixPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse zabbix payload: %w", err)
	}
	if !alerts.IsFiring(payload.EventStatus) {
		return nil, nil
	}

	// Zabbix sends a local-format timestamp; fall back to RFC3339
	var occurredAt time.Time
	if payload.EventTime != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", payload.EventTime); err == nil {
			occurredAt = t
		} else if t, err := time.Parse(time.RFC3339, payload.EventTime); err == nil {
			occurredAt = t
		}
	}

	assetID := payload.HostName
	if assetID == "" {
		assetID = payload.Hardware
	}

	message := payload.AlertName
	if payload.MetricName != "" {
		message = fmt.Sprintf("%s (%s = %s)", payload.AlertName, payload.MetricName, payload.MetricValue)
	}

	return []services.AlertInput{{
		AssetID:    assetID,
		AssetName:  payload.HostName,
		Signature:  payload.AlertName,
		Severity:   string(a.mapPriority(payload.Priority)),
		Message:    message,
		SourceTool: a.SourceType(),
		OccurredAt: alerts.EventTime(occurredAt),
	}}, nil
}

// mapPriority maps Zabbix priority (1-5) to a severity level
func (a *ZabbixAdapter) mapPriority(priority string) database.AlertSeverity {
	switch priority {
	case "5": // Disaster
		return database.AlertSeverityCritical
	case "4": // High
		return database.AlertSeverityHigh
	case "3": // Average
		return database.AlertSeverityMedium
	case "2", "1": // Warning, Information
		return database.AlertSeverityLow
	default:
		return database.AlertSeverityMedium
	}
}
