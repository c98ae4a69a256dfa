package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	log.Println("Running database migrations...")

	if err := Migrate(DB); err != nil {
		return err
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// Migrate runs migrations against the given database handle.
// Split out from AutoMigrate so tests can migrate an in-memory database.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Tenant{},
		&TenantSettings{},
		&Alert{},
		&Incident{},
		&Decision{},
		&Runbook{},
		&Technician{},
		&AssignmentQueueEntry{},
		&EscalationRecord{},
		&ExecutionAttempt{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewDefaultTenantSettings returns settings with engine defaults
func NewDefaultTenantSettings(tenantID uint) *TenantSettings {
	return &TenantSettings{
		TenantID:                 tenantID,
		AutoCorrelateEnabled:     true,
		CorrelationWindowMinutes: 10,
		CorrelateIntervalSeconds: 60,
		AutoDecideEnabled:        true,
		DecideIntervalSeconds:    60,
		AutoApproveLowRisk:       true,
		SLAMinutes:               30,
		AssignmentStrategy:       AssignmentStrategySkillBased,
	}
}

// GetOrCreateTenantSettings retrieves or creates settings for a tenant.
// Accepts a db parameter (rather than the global DB) to support
// transaction contexts and easier testing.
func GetOrCreateTenantSettings(db *gorm.DB, tenantID uint) (*TenantSettings, error) {
	var settings TenantSettings
	result := db.Where("tenant_id = ?", tenantID).First(&settings)
	if result.Error == gorm.ErrRecordNotFound {
		settings = *NewDefaultTenantSettings(tenantID)
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// UpdateTenantSettings persists changed settings.
// Uses Save() which handles both insert and update operations.
func UpdateTenantSettings(db *gorm.DB, settings *TenantSettings) error {
	return db.Save(settings).Error
}

// ActiveTenants returns all tenants the engine should process
func ActiveTenants(db *gorm.DB) ([]Tenant, error) {
	var tenants []Tenant
	err := db.Where("enabled = ? AND deleted_at IS NULL", true).Find(&tenants).Error
	return tenants, err
}

// SoftDeleteTenant marks a tenant deleted and releases its queued work.
// In-flight executor calls are not cancelled; their callbacks are
// discarded because the tenant no longer resolves as active.
func SoftDeleteTenant(db *gorm.DB, tenantID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&Tenant{}).Where("id = ?", tenantID).
			Updates(map[string]interface{}{"deleted_at": now, "enabled": false}).Error; err != nil {
			return err
		}
		return tx.Where("tenant_id = ?", tenantID).Delete(&AssignmentQueueEntry{}).Error
	})
}
