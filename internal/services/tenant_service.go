package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
)

// TenantService manages tenant records and their ingestion credentials
type TenantService struct {
	db *gorm.DB
}

// NewTenantService creates a new tenant service
func NewTenantService(db *gorm.DB) *TenantService {
	return &TenantService{db: db}
}

// CreateTenant registers a tenant and returns the tenant with its
// plaintext API key. The key is shown exactly once; only its bcrypt hash
// is stored.
func (s *TenantService) CreateTenant(name string) (*database.Tenant, string, error) {
	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash API key: %w", err)
	}

	tenant := &database.Tenant{
		UUID:       uuid.New().String(),
		Name:       name,
		APIKeyHash: string(hash),
		APIKeyHint: apiKey[:8],
		Enabled:    true,
	}
	if err := s.db.Create(tenant).Error; err != nil {
		return nil, "", err
	}
	return tenant, apiKey, nil
}

// GetByUUID returns a tenant by its UUID
func (s *TenantService) GetByUUID(tenantUUID string) (*database.Tenant, error) {
	var tenant database.Tenant
	if err := s.db.Where("uuid = ?", tenantUUID).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// List returns all non-deleted tenants
func (s *TenantService) List() ([]database.Tenant, error) {
	var tenants []database.Tenant
	err := s.db.Where("deleted_at IS NULL").Order("name ASC").Find(&tenants).Error
	return tenants, err
}

// Authenticate verifies an ingestion API key for a tenant
func (s *TenantService) Authenticate(tenant *database.Tenant, apiKey string) bool {
	if !tenant.IsActive() || apiKey == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(tenant.APIKeyHash), []byte(apiKey)) == nil
}

// Delete soft-deletes a tenant. Its incidents leave every periodic loop
// and its queued assignment entries are released.
func (s *TenantService) Delete(tenantUUID string) error {
	tenant, err := s.GetByUUID(tenantUUID)
	if err != nil {
		return err
	}
	return database.SoftDeleteTenant(s.db, tenant.ID)
}

func generateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
