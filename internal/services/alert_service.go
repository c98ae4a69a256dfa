package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/metrics"
)

// AlertInput is one raw alert record as received at the ingestion boundary
type AlertInput struct {
	AssetID    string                 `json:"asset_id"`
	AssetName  string                 `json:"asset_name"`
	Signature  string                 `json:"signature"`
	Severity   string                 `json:"severity"`
	Message    string                 `json:"message"`
	SourceTool string                 `json:"source_tool"`
	Labels     map[string]interface{} `json:"labels,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// AlertService appends raw alerts to the alert store
type AlertService struct {
	db     *gorm.DB
	events EventPublisher
}

// NewAlertService creates a new alert service
func NewAlertService(db *gorm.DB, events EventPublisher) *AlertService {
	return &AlertService{db: db, events: events}
}

// Validate rejects malformed alerts at the boundary so they never enter
// the alert store. Rejected alerts are not retried by the engine.
func (in *AlertInput) Validate() error {
	if strings.TrimSpace(in.AssetID) == "" {
		return fmt.Errorf("asset_id is required")
	}
	if strings.TrimSpace(in.Signature) == "" {
		return fmt.Errorf("signature is required")
	}
	if !database.ValidSeverity(database.AlertSeverity(in.Severity)) {
		return fmt.Errorf("severity must be one of low, medium, high, critical")
	}
	return nil
}

// Ingest appends one alert for the tenant. Correlation is triggered
// separately, reactively or on the periodic sweep.
func (s *AlertService) Ingest(tenantID uint, in AlertInput) (*database.Alert, error) {
	if err := in.Validate(); err != nil {
		metrics.IncAlertsRejected()
		return nil, err
	}

	alert := &database.Alert{
		UUID:       uuid.New().String(),
		TenantID:   tenantID,
		AssetID:    in.AssetID,
		AssetName:  in.AssetName,
		Signature:  in.Signature,
		Severity:   database.AlertSeverity(in.Severity),
		Message:    in.Message,
		SourceTool: in.SourceTool,
		Labels:     database.JSONB(in.Labels),
		OccurredAt: in.OccurredAt,
		Status:     database.AlertStatusActive,
	}
	if err := s.db.Create(alert).Error; err != nil {
		return nil, err
	}

	metrics.IncAlertsIngested()
	publish(s.events, EventAlertReceived, map[string]interface{}{
		"alert_uuid": alert.UUID,
		"asset_id":   alert.AssetID,
		"signature":  alert.Signature,
		"severity":   alert.Severity,
	})
	return alert, nil
}

// AcknowledgeAlert marks an active alert acknowledged
func (s *AlertService) AcknowledgeAlert(alertUUID string) error {
	return s.db.Model(&database.Alert{}).
		Where("uuid = ? AND status = ?", alertUUID, database.AlertStatusActive).
		Update("status", database.AlertStatusAcknowledged).Error
}

// ListAlerts returns the tenant's alerts, newest first
func (s *AlertService) ListAlerts(tenantID uint, limit int) ([]database.Alert, error) {
	var alerts []database.Alert
	q := s.db.Where("tenant_id = ?", tenantID).Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&alerts).Error
	return alerts, err
}
