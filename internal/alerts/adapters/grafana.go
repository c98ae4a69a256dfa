package adapters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsrelay/opsrelay/internal/alerts"
	"github.com/opsrelay/opsrelay/internal/services"
)

// GrafanaAdapter handles Grafana unified alerting webhooks
type GrafanaAdapter struct{}

// NewGrafanaAdapter creates a new Grafana adapter
func NewGrafanaAdapter() *GrafanaAdapter {
	return &GrafanaAdapter{}
}

// SourceType returns the source type name
func (a *GrafanaAdapter) SourceType() string {
	return "grafana"
}

// grafanaPayload represents the unified alerting webhook payload,
// which follows the Alertmanager group format
type grafanaPayload struct {
	Status string         `json:"status"`
	Alerts []grafanaAlert `json:"alerts"`
}

type grafanaAlert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
}

// Parse parses a Grafana webhook payload into alert inputs
func (a *GrafanaAdapter) Parse(body []byte) ([]services.AlertInput, error) {
	var payload grafanaPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse grafana payload: %w", err)
	}

	var inputs []services.AlertInput
	for _, alert := range payload.Alerts {
		if !alerts.IsFiring(alert.Status) {
			continue
		}

		assetID := alert.Labels["instance"]
		if assetID == "" {
			assetID = alert.Labels["host"]
		}

		message := alert.Annotations["summary"]
		if message == "" {
			message = alert.Annotations["description"]
		}

		inputs = append(inputs, services.AlertInput{
			AssetID:    assetID,
			AssetName:  alert.Labels["instance"],
			Signature:  alert.Labels["alertname"],
			Severity:   string(alerts.NormalizeSeverity(alert.Labels["severity"])),
			Message:    message,
			SourceTool: a.SourceType(),
			OccurredAt: alerts.EventTime(alert.StartsAt),
		})
	}
	return inputs, nil
}
