package services

import (
	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
)

// IncidentService provides read access to incidents for the API surface
type IncidentService struct {
	db *gorm.DB
}

// NewIncidentService creates a new incident service
func NewIncidentService(db *gorm.DB) *IncidentService {
	return &IncidentService{db: db}
}

// GetByUUID returns an incident with its decision preloaded
func (s *IncidentService) GetByUUID(uuid string) (*database.Incident, error) {
	var incident database.Incident
	err := s.db.Preload("Decision").Where("uuid = ?", uuid).First(&incident).Error
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// ListOpen returns one page of a tenant's open incidents, highest
// priority first, together with the total open count.
func (s *IncidentService) ListOpen(tenantID uint, offset, limit int) ([]database.Incident, int64, error) {
	var total int64
	err := s.db.Model(&database.Incident{}).
		Where("tenant_id = ? AND status IN ?", tenantID, database.OpenIncidentStatuses).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var incidents []database.Incident
	err = s.db.Where("tenant_id = ? AND status IN ?", tenantID, database.OpenIncidentStatuses).
		Order("priority_score DESC, created_at ASC").
		Offset(offset).Limit(limit).Find(&incidents).Error
	return incidents, total, err
}

// ListUndecided returns incidents awaiting a decision for the tenant
func (s *IncidentService) ListUndecided(tenantID uint) ([]database.Incident, error) {
	var incidents []database.Incident
	err := s.db.Where("tenant_id = ? AND status = ?", tenantID, database.IncidentStatusNew).
		Order("priority_score DESC, created_at ASC").Find(&incidents).Error
	return incidents, err
}

// MemberAlerts returns the alerts grouped into an incident
func (s *IncidentService) MemberAlerts(incidentID uint) ([]database.Alert, error) {
	var alerts []database.Alert
	err := s.db.Where("incident_id = ?", incidentID).Order("occurred_at ASC").Find(&alerts).Error
	return alerts, err
}
