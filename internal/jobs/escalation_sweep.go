package jobs

import (
	"log"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/services"
)

// EscalationSweep is the single global SLA sweep. It scans assigned and
// executing incidents (plus decided-but-unassigned ones) and escalates
// those whose SLA clock has run out. One sweep serves all incidents so
// resource usage stays bounded as incident count grows.
type EscalationSweep struct {
	db         *gorm.DB
	escalation *services.EscalationService
	interval   time.Duration

	// guards against reentrant double-firing when a sweep
	// outlasts the interval
	sweeping atomic.Bool
}

// NewEscalationSweep creates a new escalation sweep job
func NewEscalationSweep(db *gorm.DB, escalation *services.EscalationService, interval time.Duration) *EscalationSweep {
	return &EscalationSweep{db: db, escalation: escalation, interval: interval}
}

// Run executes one SLA sweep. Returns the number of incidents escalated.
// Already-escalated incidents are skipped via the escalated flag, so
// overlapping or repeated sweeps after a breach escalate exactly once.
func (j *EscalationSweep) Run() (int, error) {
	if !j.sweeping.CompareAndSwap(false, true) {
		log.Println("Escalation sweep still in progress, skipping")
		return 0, nil
	}
	defer j.sweeping.Store(false)

	tenants, err := database.ActiveTenants(j.db)
	if err != nil {
		return 0, err
	}

	escalated := 0
	now := time.Now()

	for _, tenant := range tenants {
		settings, err := database.GetOrCreateTenantSettings(j.db, tenant.ID)
		if err != nil {
			log.Printf("Failed to load settings for tenant %s: %v", tenant.UUID, err)
			continue
		}
		sla := time.Duration(settings.SLAMinutes) * time.Minute

		var incidents []database.Incident
		err = j.db.Where("tenant_id = ? AND escalated = ? AND status IN ?",
			tenant.ID, false,
			[]database.IncidentStatus{
				database.IncidentStatusAssigned,
				database.IncidentStatusExecuting,
				database.IncidentStatusDecided,
			}).Find(&incidents).Error
		if err != nil {
			log.Printf("Escalation sweep query failed for tenant %s: %v", tenant.UUID, err)
			continue
		}

		for i := range incidents {
			inc := &incidents[i]
			if !j.slaBreached(inc, sla, now) {
				continue
			}
			did, err := j.escalation.Escalate(inc, database.EscalationReasonSLABreach)
			if err != nil {
				log.Printf("Failed to escalate incident %s: %v", inc.UUID, err)
				continue
			}
			if did {
				escalated++
			}
		}
	}
	return escalated, nil
}

// slaBreached measures age since assignment, or since the decision for
// incidents no one holds yet.
func (j *EscalationSweep) slaBreached(inc *database.Incident, sla time.Duration, now time.Time) bool {
	var since time.Time
	switch {
	case inc.AssignedAt != nil:
		since = *inc.AssignedAt
	case inc.DecidedAt != nil:
		since = *inc.DecidedAt
	default:
		since = inc.CreatedAt
	}
	return now.Sub(since) > sla
}

// Start begins the periodic SLA sweep
func (j *EscalationSweep) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if escalated, err := j.Run(); err != nil {
				log.Printf("Escalation sweep error: %v", err)
			} else if escalated > 0 {
				log.Printf("Escalation sweep: escalated %d incidents", escalated)
			}
		case <-stop:
			log.Println("Escalation sweep stopped")
			return
		}
	}
}
