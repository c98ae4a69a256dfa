package services

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/metrics"
)

// CorrelationResult summarizes one correlation pass for a tenant
type CorrelationResult struct {
	AlertsBefore     int `json:"alerts_before"`
	AlertsAfter      int `json:"alerts_after"`
	IncidentsCreated int `json:"incidents_created"`
	IncidentsUpdated int `json:"incidents_updated"`
	AlertsCorrelated int `json:"alerts_correlated"`
	DuplicatesFound  int `json:"duplicates_found"`
}

// CorrelationService groups active alerts into incidents using a sliding
// time window and the (tenant, asset, signature) grouping key.
type CorrelationService struct {
	db     *gorm.DB
	locks  *KeyLocks
	events EventPublisher
}

// NewCorrelationService creates a new correlation service
func NewCorrelationService(db *gorm.DB, locks *KeyLocks, events EventPublisher) *CorrelationService {
	return &CorrelationService{db: db, locks: locks, events: events}
}

// Correlate runs one correlation pass over the tenant's active alerts.
// Safe to invoke both reactively on ingestion and on a periodic interval:
// alerts already bound to an incident are skipped, so re-running over an
// unchanged alert set is a no-op.
func (s *CorrelationService) Correlate(tenantID uint) (*CorrelationResult, error) {
	settings, err := database.GetOrCreateTenantSettings(s.db, tenantID)
	if err != nil {
		return nil, err
	}
	window := time.Duration(settings.EffectiveWindowMinutes()) * time.Minute

	var alerts []database.Alert
	if err := s.db.Where("tenant_id = ? AND status = ? AND archived = ?",
		tenantID, database.AlertStatusActive, false).
		Order("occurred_at ASC").Find(&alerts).Error; err != nil {
		return nil, err
	}

	result := &CorrelationResult{AlertsBefore: len(alerts)}
	start := time.Now()

	for i := range alerts {
		alert := &alerts[i]
		if alert.IncidentID != nil {
			result.DuplicatesFound++
			continue
		}
		created, err := s.correlateAlert(alert, window, settings)
		if err != nil {
			log.Printf("Failed to correlate alert %s: %v", alert.UUID, err)
			continue
		}
		result.AlertsCorrelated++
		if created {
			result.IncidentsCreated++
		} else {
			result.IncidentsUpdated++
		}
	}

	var remaining int64
	s.db.Model(&database.Alert{}).
		Where("tenant_id = ? AND status = ? AND incident_id IS NULL AND archived = ?",
			tenantID, database.AlertStatusActive, false).
		Count(&remaining)
	result.AlertsAfter = int(remaining)

	metrics.ObserveCorrelationSweep(time.Since(start))
	return result, nil
}

// correlateAlert attaches one alert to a matching open incident or seeds a
// new one. Returns true when a new incident was created. The grouping key
// lock serializes concurrent sweeps: a losing racer re-reads under the
// lock and falls back to attach instead of duplicating the incident.
func (s *CorrelationService) correlateAlert(alert *database.Alert, window time.Duration, settings *database.TenantSettings) (bool, error) {
	key := GroupingKey(alert.TenantID, alert.AssetID, alert.Signature)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	now := time.Now()

	var incident database.Incident
	err := s.db.Where(
		"tenant_id = ? AND asset_id = ? AND signature = ? AND status NOT IN ? AND window_expires_at > ?",
		alert.TenantID, alert.AssetID, alert.Signature,
		[]database.IncidentStatus{database.IncidentStatusResolved, database.IncidentStatusEscalated},
		now,
	).Order("created_at DESC").First(&incident).Error

	switch {
	case err == nil:
		return false, s.attachAlert(alert, &incident, window, settings, now)
	case err == gorm.ErrRecordNotFound:
		// An incident whose window already elapsed starts a new one;
		// closed incidents are immutable for membership purposes.
		return true, s.createIncident(alert, window, settings, now)
	default:
		return false, err
	}
}

func (s *CorrelationService) attachAlert(alert *database.Alert, incident *database.Incident, window time.Duration, settings *database.TenantSettings, now time.Time) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(alert).Update("incident_id", incident.ID).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"alert_count":  gorm.Expr("alert_count + 1"),
			"severity":     database.MaxSeverity(incident.Severity, alert.Severity),
			"tool_sources": incident.ToolSources.AddUnique(alert.SourceTool),
		}
		// The window only slides while the incident is still new. Once a
		// decision is recorded the membership window is frozen so late
		// duplicates cannot contaminate an in-flight decision.
		if incident.Status == database.IncidentStatusNew {
			updates["window_expires_at"] = now.Add(window)
		}
		return tx.Model(incident).Updates(updates).Error
	})
	if err != nil {
		return err
	}

	// Reload and re-score; the score depends on count, sources, and age
	if err := s.db.First(incident, incident.ID).Error; err != nil {
		return err
	}
	score := ScoreIncident(incident, settings.CriticalAssets.Contains(incident.AssetID), now)
	if err := s.db.Model(incident).Update("priority_score", score).Error; err != nil {
		return err
	}

	publish(s.events, EventIncidentUpdated, map[string]interface{}{
		"incident_uuid": incident.UUID,
		"alert_count":   incident.AlertCount,
		"severity":      incident.Severity,
	})
	return nil
}

func (s *CorrelationService) createIncident(alert *database.Alert, window time.Duration, settings *database.TenantSettings, now time.Time) error {
	incident := &database.Incident{
		UUID:            uuid.New().String(),
		TenantID:        alert.TenantID,
		AssetID:         alert.AssetID,
		AssetName:       alert.AssetName,
		Signature:       alert.Signature,
		Severity:        alert.Severity,
		Category:        CategoryForSignature(alert.Signature),
		AlertCount:      1,
		ToolSources:     database.StringList{alert.SourceTool},
		Status:          database.IncidentStatusNew,
		WindowExpiresAt: now.Add(window),
	}
	incident.PriorityScore = ScoreIncident(incident, settings.CriticalAssets.Contains(incident.AssetID), now)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(incident).Error; err != nil {
			return err
		}
		return tx.Model(alert).Update("incident_id", incident.ID).Error
	})
	if err != nil {
		return err
	}

	metrics.IncIncidentsCreated()
	publish(s.events, EventIncidentCreated, map[string]interface{}{
		"incident_uuid": incident.UUID,
		"signature":     incident.Signature,
		"asset_id":      incident.AssetID,
		"severity":      incident.Severity,
	})
	log.Printf("Created incident %s for %s/%s (severity %s)",
		incident.UUID, incident.AssetID, incident.Signature, incident.Severity)
	return nil
}

// RescoreOpenIncidents recomputes priority for the tenant's open incidents.
// Run before each decision pass since ageDecay is time-dependent.
func (s *CorrelationService) RescoreOpenIncidents(tenantID uint) error {
	settings, err := database.GetOrCreateTenantSettings(s.db, tenantID)
	if err != nil {
		return err
	}

	var incidents []database.Incident
	if err := s.db.Where("tenant_id = ? AND status IN ?", tenantID, database.OpenIncidentStatuses).
		Find(&incidents).Error; err != nil {
		return err
	}

	now := time.Now()
	for i := range incidents {
		inc := &incidents[i]
		score := ScoreIncident(inc, settings.CriticalAssets.Contains(inc.AssetID), now)
		if err := s.db.Model(inc).Update("priority_score", score).Error; err != nil {
			log.Printf("Failed to rescore incident %s: %v", inc.UUID, err)
		}
	}
	return nil
}

// signatureCategories maps signature prefixes to technician categories.
// The classifier is deterministic and rule-based on purpose.
var signatureCategories = []struct {
	prefix   string
	category string
}{
	{"disk", "storage"},
	{"storage", "storage"},
	{"backup", "storage"},
	{"cpu", "performance"},
	{"memory", "performance"},
	{"load", "performance"},
	{"net", "network"},
	{"link", "network"},
	{"dns", "network"},
	{"http", "availability"},
	{"service", "availability"},
	{"cert", "security"},
	{"auth", "security"},
}

// CategoryForSignature classifies a normalized fault signature into a
// routing category. Unrecognized signatures fall into "general".
func CategoryForSignature(signature string) string {
	sig := strings.ToLower(signature)
	for _, m := range signatureCategories {
		if strings.HasPrefix(sig, m.prefix) {
			return m.category
		}
	}
	return "general"
}
