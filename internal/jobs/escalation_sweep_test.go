package jobs

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/services"
	"github.com/opsrelay/opsrelay/internal/testhelpers"
)

func newEscalationSweep(t *testing.T) (*EscalationSweep, *database.Tenant, *gorm.DB) {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	assignment := services.NewAssignmentService(db, nil, nil)
	escalation := services.NewEscalationService(db, nil, nil, assignment)
	return NewEscalationSweep(db, escalation, time.Minute), tenant, db
}

func createAssignedIncident(t *testing.T, db *gorm.DB, tenantID uint, assignedAgo time.Duration) *database.Incident {
	t.Helper()
	assignedAt := time.Now().Add(-assignedAgo)
	inc := &database.Incident{
		UUID:            uuid.New().String(),
		TenantID:        tenantID,
		AssetID:         "web-01",
		AssetName:       "web-01",
		Signature:       "disk_full",
		Severity:        database.AlertSeverityHigh,
		Category:        "storage",
		AlertCount:      1,
		PriorityScore:   60,
		Status:          database.IncidentStatusAssigned,
		AssignedAt:      &assignedAt,
		WindowExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := db.Create(inc).Error; err != nil {
		t.Fatal(err)
	}
	return inc
}

func TestEscalationSweepBreachedIncidentEscalatesOnce(t *testing.T) {
	sweep, tenant, db := newEscalationSweep(t)
	// default SLA is 30 minutes
	inc := createAssignedIncident(t, db, tenant.ID, 31*time.Minute)

	escalated, err := sweep.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if escalated != 1 {
		t.Fatalf("escalated = %d, want 1", escalated)
	}

	// Repeated sweeps after the breach are no-ops
	for i := 0; i < 3; i++ {
		escalated, err = sweep.Run()
		if err != nil {
			t.Fatal(err)
		}
		if escalated != 0 {
			t.Fatalf("sweep %d escalated %d incidents, want 0", i, escalated)
		}
	}

	var records int64
	db.Model(&database.EscalationRecord{}).Where("incident_id = ?", inc.ID).Count(&records)
	if records != 1 {
		t.Errorf("escalation records = %d, want exactly 1", records)
	}
}

func TestEscalationSweepLeavesHealthyIncidents(t *testing.T) {
	sweep, tenant, db := newEscalationSweep(t)
	inc := createAssignedIncident(t, db, tenant.ID, 5*time.Minute)

	escalated, err := sweep.Run()
	if err != nil {
		t.Fatal(err)
	}
	if escalated != 0 {
		t.Errorf("escalated = %d, want 0 within SLA", escalated)
	}

	var reloaded database.Incident
	db.First(&reloaded, inc.ID)
	if reloaded.Escalated {
		t.Error("incident within SLA must not be escalated")
	}
}

func TestEscalationSweepUsesDecisionClockWhenUnassigned(t *testing.T) {
	sweep, tenant, db := newEscalationSweep(t)
	decidedAt := time.Now().Add(-45 * time.Minute)
	inc := &database.Incident{
		UUID:            uuid.New().String(),
		TenantID:        tenant.ID,
		AssetID:         "db-01",
		AssetName:       "db-01",
		Signature:       "replication_lag",
		Severity:        database.AlertSeverityHigh,
		Category:        "database",
		AlertCount:      1,
		Status:          database.IncidentStatusDecided,
		DecidedAt:       &decidedAt,
		WindowExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := db.Create(inc).Error; err != nil {
		t.Fatal(err)
	}

	escalated, err := sweep.Run()
	if err != nil {
		t.Fatal(err)
	}
	if escalated != 1 {
		t.Errorf("escalated = %d; decided-but-unassigned incidents use the decision clock", escalated)
	}
}

func TestEscalationSweepHonorsTenantSLA(t *testing.T) {
	sweep, tenant, db := newEscalationSweep(t)
	db.Model(&database.TenantSettings{}).Where("tenant_id = ?", tenant.ID).
		Update("sla_minutes", 60)
	createAssignedIncident(t, db, tenant.ID, 45*time.Minute)

	escalated, err := sweep.Run()
	if err != nil {
		t.Fatal(err)
	}
	if escalated != 0 {
		t.Errorf("escalated = %d; 45m is within the tenant's 60m SLA", escalated)
	}
}

func TestEscalationSweepSkipsDeletedTenants(t *testing.T) {
	sweep, tenant, db := newEscalationSweep(t)
	createAssignedIncident(t, db, tenant.ID, time.Hour)
	if err := database.SoftDeleteTenant(db, tenant.ID); err != nil {
		t.Fatal(err)
	}

	escalated, err := sweep.Run()
	if err != nil {
		t.Fatal(err)
	}
	if escalated != 0 {
		t.Errorf("escalated = %d; deleted tenants leave the sweep", escalated)
	}
}
