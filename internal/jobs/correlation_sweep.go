package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/services"
)

// tickResolution is how often the per-tenant schedulers wake up to check
// which tenants are due. Tenant intervals are configured independently,
// down to one second.
const tickResolution = time.Second

// CorrelationSweep periodically runs correlation for every active tenant
// honoring each tenant's interval and enable flag.
type CorrelationSweep struct {
	db          *gorm.DB
	correlation *services.CorrelationService

	lastRun map[uint]time.Time
}

// NewCorrelationSweep creates a new correlation sweep job
func NewCorrelationSweep(db *gorm.DB, correlation *services.CorrelationService) *CorrelationSweep {
	return &CorrelationSweep{
		db:          db,
		correlation: correlation,
		lastRun:     make(map[uint]time.Time),
	}
}

// Run executes one scheduler pass, correlating each tenant that is due.
// Returns the number of tenants processed.
func (j *CorrelationSweep) Run() (int, error) {
	tenants, err := database.ActiveTenants(j.db)
	if err != nil {
		return 0, err
	}

	active := make(map[uint]bool, len(tenants))
	processed := 0
	now := time.Now()

	for _, tenant := range tenants {
		active[tenant.ID] = true

		settings, err := database.GetOrCreateTenantSettings(j.db, tenant.ID)
		if err != nil {
			log.Printf("Failed to load settings for tenant %s: %v", tenant.UUID, err)
			continue
		}
		if !settings.AutoCorrelateEnabled {
			continue
		}

		interval := time.Duration(settings.CorrelateIntervalSeconds) * time.Second
		if last, ok := j.lastRun[tenant.ID]; ok && now.Sub(last) < interval {
			continue
		}

		result, err := j.correlation.Correlate(tenant.ID)
		if err != nil {
			log.Printf("Correlation sweep failed for tenant %s: %v", tenant.UUID, err)
			continue
		}
		j.lastRun[tenant.ID] = now
		processed++

		if result.IncidentsCreated > 0 || result.AlertsCorrelated > 0 {
			log.Printf("Correlation sweep for tenant %s: %d created, %d updated, %d alerts grouped",
				tenant.UUID, result.IncidentsCreated, result.IncidentsUpdated, result.AlertsCorrelated)
		}
	}

	// Deleted tenants drop out of the schedule
	for id := range j.lastRun {
		if !active[id] {
			delete(j.lastRun, id)
		}
	}
	return processed, nil
}

// Start begins the periodic correlation scheduling
func (j *CorrelationSweep) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(tickResolution)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := j.Run(); err != nil {
				log.Printf("Correlation sweep error: %v", err)
			}
		case <-stop:
			log.Println("Correlation sweep stopped")
			return
		}
	}
}
