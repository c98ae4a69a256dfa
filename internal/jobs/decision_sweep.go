package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/services"
)

// DecisionSweep periodically re-scores and decides undecided incidents
// for every tenant with auto-decide enabled. This replaces the reference
// system's client-driven polling loop with a server-side scheduled task.
type DecisionSweep struct {
	db          *gorm.DB
	correlation *services.CorrelationService
	decision    *services.DecisionService
	incidents   *services.IncidentService

	lastRun map[uint]time.Time
}

// NewDecisionSweep creates a new decision sweep job
func NewDecisionSweep(db *gorm.DB, correlation *services.CorrelationService, decision *services.DecisionService, incidents *services.IncidentService) *DecisionSweep {
	return &DecisionSweep{
		db:          db,
		correlation: correlation,
		decision:    decision,
		incidents:   incidents,
		lastRun:     make(map[uint]time.Time),
	}
}

// Run executes one scheduler pass. Returns the number of decisions made.
func (j *DecisionSweep) Run() (int, error) {
	tenants, err := database.ActiveTenants(j.db)
	if err != nil {
		return 0, err
	}

	active := make(map[uint]bool, len(tenants))
	decided := 0
	now := time.Now()

	for _, tenant := range tenants {
		active[tenant.ID] = true

		settings, err := database.GetOrCreateTenantSettings(j.db, tenant.ID)
		if err != nil {
			log.Printf("Failed to load settings for tenant %s: %v", tenant.UUID, err)
			continue
		}
		if !settings.AutoDecideEnabled {
			continue
		}

		interval := time.Duration(settings.DecideIntervalSeconds) * time.Second
		if last, ok := j.lastRun[tenant.ID]; ok && now.Sub(last) < interval {
			continue
		}
		j.lastRun[tenant.ID] = now

		// ageDecay is time-dependent; refresh scores before deciding
		if err := j.correlation.RescoreOpenIncidents(tenant.ID); err != nil {
			log.Printf("Rescore failed for tenant %s: %v", tenant.UUID, err)
		}

		undecided, err := j.incidents.ListUndecided(tenant.ID)
		if err != nil {
			log.Printf("Failed to list undecided incidents for tenant %s: %v", tenant.UUID, err)
			continue
		}

		for i := range undecided {
			inc := &undecided[i]
			// Let the correlation window close before deciding so late
			// duplicates still join the incident
			if time.Now().Before(inc.WindowExpiresAt) {
				continue
			}
			if _, err := j.decision.Decide(inc, false); err != nil {
				log.Printf("Decision failed for incident %s: %v", inc.UUID, err)
				continue
			}
			decided++
		}
	}

	for id := range j.lastRun {
		if !active[id] {
			delete(j.lastRun, id)
		}
	}
	return decided, nil
}

// Start begins the periodic decision scheduling
func (j *DecisionSweep) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(tickResolution)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if decided, err := j.Run(); err != nil {
				log.Printf("Decision sweep error: %v", err)
			} else if decided > 0 {
				log.Printf("Decision sweep: %d decisions made", decided)
			}
		case <-stop:
			log.Println("Decision sweep stopped")
			return
		}
	}
}
