package runbooks

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
)

// catalogEntry is one runbook definition in the external catalog file
type catalogEntry struct {
	Name             string `yaml:"name"`
	Signature        string `yaml:"signature"`
	Category         string `yaml:"category"`
	RiskLevel        string `yaml:"risk_level"`
	RequiresApproval bool   `yaml:"requires_approval"`
	Description      string `yaml:"description"`
}

type catalogFile struct {
	Runbooks []catalogEntry `yaml:"runbooks"`
}

// CatalogService syncs the external runbook catalog into the database.
// Runbooks are read-only to the engine; the catalog file is the source
// of truth and is re-synced at startup.
type CatalogService struct {
	db *gorm.DB
}

// NewCatalogService creates a new catalog service
func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// LoadFromFile reads the YAML catalog and upserts each runbook by name.
// Entries removed from the file are kept in the database so historical
// decisions retain their runbook reference.
func (s *CatalogService) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read runbook catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse runbook catalog: %w", err)
	}

	loaded := 0
	for _, entry := range file.Runbooks {
		if entry.Name == "" {
			log.Printf("Warning: skipping runbook catalog entry with empty name")
			continue
		}
		risk := database.RunbookRiskLevel(entry.RiskLevel)
		switch risk {
		case database.RiskLevelLow, database.RiskLevelMedium, database.RiskLevelHigh:
		default:
			log.Printf("Warning: runbook %q has unknown risk level %q, treating as high", entry.Name, entry.RiskLevel)
			risk = database.RiskLevelHigh
		}

		runbook := database.Runbook{
			Name:             entry.Name,
			Signature:        entry.Signature,
			Category:         entry.Category,
			RiskLevel:        risk,
			RequiresApproval: entry.RequiresApproval,
			Description:      entry.Description,
		}

		var existing database.Runbook
		result := s.db.Where("name = ?", entry.Name).First(&existing)
		if result.Error == gorm.ErrRecordNotFound {
			if err := s.db.Create(&runbook).Error; err != nil {
				return fmt.Errorf("failed to create runbook %q: %w", entry.Name, err)
			}
		} else if result.Error != nil {
			return result.Error
		} else {
			runbook.ID = existing.ID
			if err := s.db.Model(&existing).Updates(map[string]interface{}{
				"signature":         runbook.Signature,
				"category":          runbook.Category,
				"risk_level":        runbook.RiskLevel,
				"requires_approval": runbook.RequiresApproval,
				"description":       runbook.Description,
			}).Error; err != nil {
				return fmt.Errorf("failed to update runbook %q: %w", entry.Name, err)
			}
		}
		loaded++
	}

	log.Printf("Runbook catalog loaded: %d runbooks", loaded)
	return nil
}

// List returns all runbooks known to the engine
func (s *CatalogService) List() ([]database.Runbook, error) {
	var runbooks []database.Runbook
	err := s.db.Order("name ASC").Find(&runbooks).Error
	return runbooks, err
}
