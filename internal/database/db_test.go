package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestGetOrCreateTenantSettingsDefaults(t *testing.T) {
	db := openTestDB(t)
	tenant := &Tenant{UUID: uuid.New().String(), Name: "acme", Enabled: true}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatal(err)
	}

	settings, err := GetOrCreateTenantSettings(db, tenant.ID)
	if err != nil {
		t.Fatalf("GetOrCreateTenantSettings failed: %v", err)
	}
	if !settings.AutoCorrelateEnabled || !settings.AutoDecideEnabled || !settings.AutoApproveLowRisk {
		t.Error("automation defaults should be enabled")
	}
	if settings.CorrelationWindowMinutes != 10 || settings.SLAMinutes != 30 {
		t.Error("window and SLA defaults wrong")
	}
	if settings.AssignmentStrategy != AssignmentStrategySkillBased {
		t.Errorf("strategy = %s, want skill_based", settings.AssignmentStrategy)
	}

	// A second call returns the same row
	again, err := GetOrCreateTenantSettings(db, tenant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != settings.ID {
		t.Error("settings must be created at most once per tenant")
	}
}

func TestSoftDeleteTenant(t *testing.T) {
	db := openTestDB(t)
	tenant := &Tenant{UUID: uuid.New().String(), Name: "acme", Enabled: true}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&AssignmentQueueEntry{
		IncidentID: 1,
		TenantID:   tenant.ID,
		Category:   "storage",
		EnqueuedAt: time.Now(),
	}).Error; err != nil {
		t.Fatal(err)
	}

	if err := SoftDeleteTenant(db, tenant.ID); err != nil {
		t.Fatalf("SoftDeleteTenant failed: %v", err)
	}

	var reloaded Tenant
	if err := db.First(&reloaded, tenant.ID).Error; err != nil {
		t.Fatal("tenant row must survive soft delete")
	}
	if reloaded.DeletedAt == nil || reloaded.Enabled {
		t.Error("tenant should be disabled with a deletion timestamp")
	}
	if reloaded.IsActive() {
		t.Error("soft-deleted tenant must not be active")
	}

	active, err := ActiveTenants(db)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("active tenants = %d, want 0", len(active))
	}

	var queued int64
	db.Model(&AssignmentQueueEntry{}).Where("tenant_id = ?", tenant.ID).Count(&queued)
	if queued != 0 {
		t.Error("queued work should be released on tenant deletion")
	}
}
