package adapters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsrelay/opsrelay/internal/alerts"
	"github.com/opsrelay/opsrelay/internal/services"
)

// AlertmanagerAdapter handles Prometheus Alertmanager webhooks
type AlertmanagerAdapter struct{}

// NewAlertmanagerAdapter creates a new Alertmanager adapter
func NewAlertmanagerAdapter() *AlertmanagerAdapter {
	return &AlertmanagerAdapter{}
}

// SourceType returns the source type name
func (a *AlertmanagerAdapter) SourceType() string {
	return "alertmanager"
}

// alertmanagerPayload represents the webhook payload from Alertmanager
type alertmanagerPayload struct {
	Alerts []alertmanagerAlert `json:"alerts"`
	Status string              `json:"status"`
}

// alertmanagerAlert represents a single alert in the payload
type alertmanagerAlert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	Fingerprint string            `json:"fingerprint"`
}

// Parse parses an Alertmanager webhook payload into alert inputs
func (a *AlertmanagerAdapter) Parse(body []byte) ([]services.AlertInput, error) {
	var payload alertmanagerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse alertmanager payload: %w", err)
	}

	var inputs []services.AlertInput
	for _, alert := range payload.Alerts {
		if !alerts.IsFiring(alert.Status) {
			continue
		}

		message := alert.Annotations["summary"]
		if message == "" {
			message = alert.Annotations["description"]
		}

		assetID := alert.Labels["instance"]
		if assetID == "" {
			assetID = alert.Labels["host"]
		}

		labels := make(map[string]interface{}, len(alert.Labels))
		for k, v := range alert.Labels {
			labels[k] = v
		}

		inputs = append(inputs, services.AlertInput{
			AssetID:    assetID,
			AssetName:  alert.Labels["instance"],
			Signature:  alert.Labels["alertname"],
			Severity:   string(alerts.NormalizeSeverity(alert.Labels["severity"])),
			Message:    message,
			SourceTool: a.SourceType(),
			Labels:     labels,
			OccurredAt: alerts.EventTime(alert.StartsAt),
		})
	}
	return inputs, nil
}
