package handlers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/api"
	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/executor"
	"github.com/opsrelay/opsrelay/internal/runbooks"
	"github.com/opsrelay/opsrelay/internal/services"
	"github.com/opsrelay/opsrelay/internal/testhelpers"
)

type apiFixture struct {
	db     *gorm.DB
	mux    *http.ServeMux
	runner *executor.StubRunner
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	locks := services.NewKeyLocks()
	runner := executor.NewStubRunner()

	tenants := services.NewTenantService(db)
	incidents := services.NewIncidentService(db)
	correlation := services.NewCorrelationService(db, locks, nil)
	assignment := services.NewAssignmentService(db, nil, nil)
	escalation := services.NewEscalationService(db, nil, nil, assignment)
	decision := services.NewDecisionService(db, locks, runner, assignment, escalation, nil)
	catalog := runbooks.NewCatalogService(db)

	handler := NewAPIHandler(db, tenants, incidents, correlation, decision, assignment, catalog, nil)
	mux := http.NewServeMux()
	handler.SetupRoutes(mux)
	return &apiFixture{db: db, mux: mux, runner: runner}
}

func (f *apiFixture) createTenant(t *testing.T) *database.Tenant {
	t.Helper()
	return testhelpers.CreateTenant(t, f.db, "acme")
}

func TestCreateTenantReturnsKeyOnce(t *testing.T) {
	f := newAPIFixture(t)

	var resp struct {
		Tenant database.Tenant `json:"tenant"`
		APIKey string          `json:"api_key"`
	}
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/tenants", nil).
		WithJSONBody(map[string]string{"name": "acme"}).
		Execute(f.mux).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&resp)

	if resp.APIKey == "" {
		t.Fatal("plaintext API key not returned on create")
	}
	if resp.Tenant.UUID == "" {
		t.Error("tenant UUID missing")
	}

	// Listing never exposes the key again
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/tenants", nil).
		Execute(f.mux).
		AssertStatus(http.StatusOK)
}

func TestCreateTenantRequiresName(t *testing.T) {
	f := newAPIFixture(t)
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/tenants", nil).
		WithJSONBody(map[string]string{}).
		Execute(f.mux).
		AssertStatus(http.StatusUnprocessableEntity)
}

func TestTenantSettingsRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.createTenant(t)

	var settings database.TenantSettings
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/tenants/"+tenant.UUID+"/settings", nil).
		Execute(f.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&settings)
	if settings.SLAMinutes != 30 {
		t.Errorf("default SLA = %d, want 30", settings.SLAMinutes)
	}

	update := map[string]interface{}{
		"sla_minutes":         45,
		"assignment_strategy": "round_robin",
		"critical_assets":     []string{"db-01"},
	}
	var updated database.TenantSettings
	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/tenants/"+tenant.UUID+"/settings", nil).
		WithJSONBody(update).
		Execute(f.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&updated)

	if updated.SLAMinutes != 45 {
		t.Errorf("SLA = %d, want 45", updated.SLAMinutes)
	}
	if updated.AssignmentStrategy != database.AssignmentStrategyRoundRobin {
		t.Errorf("strategy = %s, want round_robin", updated.AssignmentStrategy)
	}
	if !updated.CriticalAssets.Contains("db-01") {
		t.Error("critical assets not updated")
	}
	// Fields absent from the request keep their values
	if !updated.AutoCorrelateEnabled {
		t.Error("unrelated settings must not be reset")
	}
}

func TestUpdateSettingsRejectsOutOfRange(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.createTenant(t)
	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/tenants/"+tenant.UUID+"/settings", nil).
		WithJSONBody(map[string]interface{}{"correlation_window_minutes": 500}).
		Execute(f.mux).
		AssertStatus(http.StatusUnprocessableEntity)
}

func TestCorrelateEndpointReportsCounters(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.createTenant(t)
	testhelpers.NewAlertBuilder().WithTenant(tenant.ID).Create(t, f.db)
	testhelpers.NewAlertBuilder().WithTenant(tenant.ID).Create(t, f.db)

	var result services.CorrelationResult
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/tenants/"+tenant.UUID+"/correlate", nil).
		Execute(f.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&result)

	if result.IncidentsCreated != 1 {
		t.Errorf("incidents created = %d, want 1", result.IncidentsCreated)
	}
	if result.AlertsCorrelated != 2 {
		t.Errorf("alerts correlated = %d, want 2", result.AlertsCorrelated)
	}
}

func TestListIncidentsPaginated(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.createTenant(t)
	for i, score := range []float64{90, 60, 30} {
		inc := &database.Incident{
			UUID:            uuid.New().String(),
			TenantID:        tenant.ID,
			AssetID:         fmt.Sprintf("web-%02d", i),
			Signature:       "disk_full",
			Severity:        database.AlertSeverityHigh,
			Category:        "storage",
			PriorityScore:   score,
			Status:          database.IncidentStatusNew,
			WindowExpiresAt: time.Now(),
		}
		if err := f.db.Create(inc).Error; err != nil {
			t.Fatal(err)
		}
	}

	var page struct {
		Incidents  []api.IncidentListItem `json:"incidents"`
		Page       int                    `json:"page"`
		Total      int64                  `json:"total"`
		TotalPages int                    `json:"total_pages"`
	}
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/tenants/"+tenant.UUID+"/incidents?per_page=2", nil).
		Execute(f.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&page)

	if len(page.Incidents) != 2 {
		t.Fatalf("got %d incidents, want 2", len(page.Incidents))
	}
	if page.Total != 3 || page.TotalPages != 2 {
		t.Errorf("total = %d pages = %d, want 3/2", page.Total, page.TotalPages)
	}
	if page.Incidents[0].PriorityScore != 90 {
		t.Error("highest priority incident should come first")
	}

	var second struct {
		Incidents []api.IncidentListItem `json:"incidents"`
		Page      int                    `json:"page"`
	}
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/tenants/"+tenant.UUID+"/incidents?per_page=2&page=2", nil).
		Execute(f.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&second)
	if len(second.Incidents) != 1 || second.Incidents[0].PriorityScore != 30 {
		t.Error("second page should hold the one remaining incident")
	}
}

func TestListTechniciansPaginated(t *testing.T) {
	f := newAPIFixture(t)
	for _, name := range []string{"alice", "bob", "carol"} {
		testhelpers.NewTechnicianBuilder().WithName(name).Create(t, f.db)
	}

	var page struct {
		Technicians []database.Technician `json:"technicians"`
		Total       int64                 `json:"total"`
	}
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/technicians?per_page=2", nil).
		Execute(f.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&page)

	if len(page.Technicians) != 2 || page.Total != 3 {
		t.Errorf("got %d technicians (total %d), want 2 of 3", len(page.Technicians), page.Total)
	}
	if page.Technicians[0].Name != "alice" {
		t.Error("technicians should list in name order")
	}
}

func TestDecisionActionApprove(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.createTenant(t)
	testhelpers.NewRunbookBuilder().WithRiskLevel(database.RiskLevelMedium).Create(t, f.db)
	testhelpers.NewTechnicianBuilder().WithSkills("storage").Create(t, f.db)

	inc := &database.Incident{
		UUID:            uuid.New().String(),
		TenantID:        tenant.ID,
		AssetID:         "web-01",
		AssetName:       "web-01",
		Signature:       "disk_full",
		Severity:        database.AlertSeverityHigh,
		Category:        "storage",
		AlertCount:      1,
		Status:          database.IncidentStatusNew,
		WindowExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := f.db.Create(inc).Error; err != nil {
		t.Fatal(err)
	}

	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/incidents/"+inc.UUID+"/decide", nil).
		Execute(f.mux).
		AssertStatus(http.StatusOK).
		AssertBodyContains("execute")

	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/incidents/"+inc.UUID+"/action", nil).
		WithJSONBody(map[string]string{"action": "approve"}).
		Execute(f.mux).
		AssertStatus(http.StatusOK)

	if len(f.runner.Submitted) != 1 {
		t.Errorf("runner submissions = %d, want 1", len(f.runner.Submitted))
	}

	// Approving twice conflicts with the recorded outcome
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/incidents/"+inc.UUID+"/action", nil).
		WithJSONBody(map[string]string{"action": "approve"}).
		Execute(f.mux).
		AssertStatus(http.StatusConflict).
		AssertBodyContains("decision_conflict")
}

func TestDecisionActionRejectsUnknownAction(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.createTenant(t)
	inc := &database.Incident{
		UUID:            uuid.New().String(),
		TenantID:        tenant.ID,
		AssetID:         "web-01",
		Signature:       "disk_full",
		Severity:        database.AlertSeverityHigh,
		Category:        "storage",
		Status:          database.IncidentStatusNew,
		WindowExpiresAt: time.Now(),
	}
	if err := f.db.Create(inc).Error; err != nil {
		t.Fatal(err)
	}
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/incidents/"+inc.UUID+"/action", nil).
		WithJSONBody(map[string]string{"action": "defenestrate"}).
		Execute(f.mux).
		AssertStatus(http.StatusUnprocessableEntity)
}

func TestTechnicianAvailabilityDrainsQueue(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.createTenant(t)
	tech := testhelpers.NewTechnicianBuilder().WithSkills("storage").Unavailable().Create(t, f.db)

	inc := &database.Incident{
		UUID:            uuid.New().String(),
		TenantID:        tenant.ID,
		AssetID:         "web-01",
		Signature:       "disk_full",
		Severity:        database.AlertSeverityHigh,
		Category:        "storage",
		PriorityScore:   60,
		Status:          database.IncidentStatusDecided,
		WindowExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := f.db.Create(inc).Error; err != nil {
		t.Fatal(err)
	}
	if err := f.db.Create(&database.AssignmentQueueEntry{
		IncidentID:    inc.ID,
		TenantID:      tenant.ID,
		Category:      "storage",
		PriorityScore: 60,
		EnqueuedAt:    time.Now(),
	}).Error; err != nil {
		t.Fatal(err)
	}

	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/technicians/1/availability", nil).
		WithJSONBody(map[string]bool{"available": true}).
		Execute(f.mux).
		AssertStatus(http.StatusOK)

	var reloaded database.Incident
	f.db.First(&reloaded, inc.ID)
	if reloaded.AssignedTo == nil || *reloaded.AssignedTo != tech.ID {
		t.Error("queued incident should be assigned once the technician is available")
	}
}

func TestExecutionCallback(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.createTenant(t)
	testhelpers.NewRunbookBuilder().Create(t, f.db)

	inc := &database.Incident{
		UUID:            uuid.New().String(),
		TenantID:        tenant.ID,
		AssetID:         "web-01",
		Signature:       "disk_full",
		Severity:        database.AlertSeverityHigh,
		Category:        "storage",
		Status:          database.IncidentStatusNew,
		WindowExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := f.db.Create(inc).Error; err != nil {
		t.Fatal(err)
	}

	// Auto-executes: low-risk runbook, auto-approve default
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/incidents/"+inc.UUID+"/decide", nil).
		Execute(f.mux).
		AssertStatus(http.StatusOK)

	var attempt database.ExecutionAttempt
	if err := f.db.Where("incident_id = ?", inc.ID).First(&attempt).Error; err != nil {
		t.Fatalf("no execution attempt: %v", err)
	}

	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/executions/"+attempt.CommandHandle+"/callback", nil).
		WithJSONBody(map[string]interface{}{"status": "success", "duration_ms": 1500}).
		Execute(f.mux).
		AssertStatus(http.StatusOK)

	var reloaded database.Incident
	f.db.First(&reloaded, inc.ID)
	if reloaded.Status != database.IncidentStatusResolved {
		t.Errorf("status = %s, want resolved", reloaded.Status)
	}
}

func TestExecutionCallbackUnknownHandle(t *testing.T) {
	f := newAPIFixture(t)
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/executions/nope/callback", nil).
		WithJSONBody(map[string]interface{}{"status": "success"}).
		Execute(f.mux).
		AssertStatus(http.StatusNotFound)
}

func TestGetIncidentNotFound(t *testing.T) {
	f := newAPIFixture(t)
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/incidents/"+uuid.New().String(), nil).
		Execute(f.mux).
		AssertStatus(http.StatusNotFound)
}
