package testhelpers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
)

// ========================================
// Model Builders
// ========================================

// AlertBuilder builds alerts for tests
type AlertBuilder struct {
	alert database.Alert
}

// NewAlertBuilder creates an alert builder with sensible defaults
func NewAlertBuilder() *AlertBuilder {
	return &AlertBuilder{alert: database.Alert{
		UUID:       uuid.New().String(),
		TenantID:   1,
		AssetID:    "web-01",
		AssetName:  "web-01",
		Signature:  "disk_full",
		Severity:   database.AlertSeverityHigh,
		Message:    "disk usage above 90%",
		SourceTool: "alertmanager",
		OccurredAt: time.Now(),
		Status:     database.AlertStatusActive,
	}}
}

func (b *AlertBuilder) WithTenant(id uint) *AlertBuilder {
	b.alert.TenantID = id
	return b
}

func (b *AlertBuilder) WithAsset(assetID string) *AlertBuilder {
	b.alert.AssetID = assetID
	b.alert.AssetName = assetID
	return b
}

func (b *AlertBuilder) WithSignature(sig string) *AlertBuilder {
	b.alert.Signature = sig
	return b
}

func (b *AlertBuilder) WithSeverity(sev database.AlertSeverity) *AlertBuilder {
	b.alert.Severity = sev
	return b
}

func (b *AlertBuilder) WithSourceTool(tool string) *AlertBuilder {
	b.alert.SourceTool = tool
	return b
}

func (b *AlertBuilder) WithOccurredAt(t time.Time) *AlertBuilder {
	b.alert.OccurredAt = t
	return b
}

// Build returns the alert without persisting it
func (b *AlertBuilder) Build() database.Alert {
	a := b.alert
	a.UUID = uuid.New().String()
	return a
}

// Create persists the alert
func (b *AlertBuilder) Create(t *testing.T, db *gorm.DB) *database.Alert {
	t.Helper()
	alert := b.Build()
	if err := db.Create(&alert).Error; err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}
	return &alert
}

// TechnicianBuilder builds technicians for tests
type TechnicianBuilder struct {
	tech database.Technician
}

// NewTechnicianBuilder creates a technician builder with defaults
func NewTechnicianBuilder() *TechnicianBuilder {
	return &TechnicianBuilder{tech: database.Technician{
		Name:      "Alex",
		Skills:    database.StringList{"storage"},
		Available: true,
	}}
}

func (b *TechnicianBuilder) WithName(name string) *TechnicianBuilder {
	b.tech.Name = name
	return b
}

func (b *TechnicianBuilder) WithSkills(skills ...string) *TechnicianBuilder {
	b.tech.Skills = database.StringList(skills)
	return b
}

func (b *TechnicianBuilder) WithWorkload(n int) *TechnicianBuilder {
	b.tech.Workload = n
	return b
}

func (b *TechnicianBuilder) Unavailable() *TechnicianBuilder {
	b.tech.Available = false
	return b
}

func (b *TechnicianBuilder) WithLastAssignedAt(t time.Time) *TechnicianBuilder {
	b.tech.LastAssignedAt = &t
	return b
}

// Create persists the technician
func (b *TechnicianBuilder) Create(t *testing.T, db *gorm.DB) *database.Technician {
	t.Helper()
	tech := b.tech
	if err := db.Create(&tech).Error; err != nil {
		t.Fatalf("failed to create technician: %v", err)
	}
	// GORM skips zero-value fields carrying a default tag on struct Create,
	// so available=false must be written explicitly after the insert.
	if !b.tech.Available {
		if err := db.Model(&tech).Update("available", false).Error; err != nil {
			t.Fatalf("failed to mark technician unavailable: %v", err)
		}
	}
	return &tech
}

// RunbookBuilder builds runbooks for tests
type RunbookBuilder struct {
	runbook database.Runbook
}

// NewRunbookBuilder creates a runbook builder with defaults
func NewRunbookBuilder() *RunbookBuilder {
	return &RunbookBuilder{runbook: database.Runbook{
		Name:      "clean-disk",
		Signature: "disk_full",
		Category:  "storage",
		RiskLevel: database.RiskLevelLow,
	}}
}

func (b *RunbookBuilder) WithName(name string) *RunbookBuilder {
	b.runbook.Name = name
	return b
}

func (b *RunbookBuilder) WithSignature(sig string) *RunbookBuilder {
	b.runbook.Signature = sig
	return b
}

func (b *RunbookBuilder) WithCategory(cat string) *RunbookBuilder {
	b.runbook.Category = cat
	return b
}

func (b *RunbookBuilder) WithRiskLevel(risk database.RunbookRiskLevel) *RunbookBuilder {
	b.runbook.RiskLevel = risk
	return b
}

func (b *RunbookBuilder) RequiringApproval() *RunbookBuilder {
	b.runbook.RequiresApproval = true
	return b
}

// Create persists the runbook
func (b *RunbookBuilder) Create(t *testing.T, db *gorm.DB) *database.Runbook {
	t.Helper()
	rb := b.runbook
	if err := db.Create(&rb).Error; err != nil {
		t.Fatalf("failed to create runbook: %v", err)
	}
	return &rb
}

// CreateTenant persists an enabled tenant with default settings
func CreateTenant(t *testing.T, db *gorm.DB, name string) *database.Tenant {
	t.Helper()
	tenant := &database.Tenant{
		UUID:    uuid.New().String(),
		Name:    name,
		Enabled: true,
	}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}
	if _, err := database.GetOrCreateTenantSettings(db, tenant.ID); err != nil {
		t.Fatalf("failed to create tenant settings: %v", err)
	}
	return tenant
}
