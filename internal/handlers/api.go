package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/api"
	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/events"
	"github.com/opsrelay/opsrelay/internal/runbooks"
	"github.com/opsrelay/opsrelay/internal/services"
)

// APIHandler handles the operator API for tenants, incidents,
// technicians, and engine triggers
type APIHandler struct {
	db          *gorm.DB
	tenants     *services.TenantService
	incidents   *services.IncidentService
	correlation *services.CorrelationService
	decision    *services.DecisionService
	assignment  *services.AssignmentService
	catalog     *runbooks.CatalogService
	hub         *events.Hub
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(db *gorm.DB, tenants *services.TenantService, incidents *services.IncidentService, correlation *services.CorrelationService, decision *services.DecisionService, assignment *services.AssignmentService, catalog *runbooks.CatalogService, hub *events.Hub) *APIHandler {
	return &APIHandler{
		db:          db,
		tenants:     tenants,
		incidents:   incidents,
		correlation: correlation,
		decision:    decision,
		assignment:  assignment,
		catalog:     catalog,
		hub:         hub,
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Tenants
	mux.HandleFunc("GET /api/tenants", h.handleListTenants)
	mux.HandleFunc("POST /api/tenants", h.handleCreateTenant)
	mux.HandleFunc("DELETE /api/tenants/{uuid}", h.handleDeleteTenant)
	mux.HandleFunc("GET /api/tenants/{uuid}/settings", h.handleGetSettings)
	mux.HandleFunc("PUT /api/tenants/{uuid}/settings", h.handleUpdateSettings)
	mux.HandleFunc("GET /api/tenants/{uuid}/incidents", h.handleListIncidents)
	mux.HandleFunc("POST /api/tenants/{uuid}/correlate", h.handleRunCorrelation)

	// Incidents
	mux.HandleFunc("GET /api/incidents/{uuid}", h.handleGetIncident)
	mux.HandleFunc("POST /api/incidents/{uuid}/decide", h.handleDecide)
	mux.HandleFunc("POST /api/incidents/{uuid}/action", h.handleDecisionAction)
	mux.HandleFunc("POST /api/incidents/{uuid}/resolve", h.handleResolve)

	// Runbooks and technicians
	mux.HandleFunc("GET /api/runbooks", h.handleListRunbooks)
	mux.HandleFunc("GET /api/technicians", h.handleListTechnicians)
	mux.HandleFunc("POST /api/technicians", h.handleCreateTechnician)
	mux.HandleFunc("PUT /api/technicians/{id}/availability", h.handleTechnicianAvailability)

	// Execution connector completion callback
	mux.HandleFunc("POST /api/executions/{handle}/callback", h.handleExecutionCallback)

	// Dashboard event stream
	if h.hub != nil {
		mux.HandleFunc("/ws/events", h.hub.HandleWS)
	}
}

// ========== Tenants ==========

func (h *APIHandler) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.List()
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list tenants: %v", err))
		return
	}
	api.RespondJSON(w, http.StatusOK, tenants)
}

func (h *APIHandler) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required,max=255"`
	}
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	tenant, apiKey, err := h.tenants.CreateTenant(req.Name)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create tenant: %v", err))
		return
	}
	// The plaintext key is returned exactly once
	api.RespondJSON(w, http.StatusCreated, map[string]interface{}{
		"tenant":  tenant,
		"api_key": apiKey,
	})
}

func (h *APIHandler) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := h.tenants.Delete(r.PathValue("uuid")); err != nil {
		api.RespondError(w, http.StatusNotFound, "Tenant not found")
		return
	}
	api.RespondNoContent(w)
}

func (h *APIHandler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.tenants.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Tenant not found")
		return
	}
	settings, err := database.GetOrCreateTenantSettings(h.db, tenant.ID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load settings: %v", err))
		return
	}
	api.RespondJSON(w, http.StatusOK, settings)
}

func (h *APIHandler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.tenants.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Tenant not found")
		return
	}

	var req api.UpdateTenantSettingsRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	settings, err := database.GetOrCreateTenantSettings(h.db, tenant.ID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load settings: %v", err))
		return
	}
	api.ApplySettingsUpdate(settings, req)
	if err := database.UpdateTenantSettings(h.db, settings); err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update settings: %v", err))
		return
	}
	api.RespondJSON(w, http.StatusOK, settings)
}

func (h *APIHandler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.tenants.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Tenant not found")
		return
	}
	page := api.ParsePagination(r)
	incidents, total, err := h.incidents.ListOpen(tenant.ID, page.Offset(), page.PerPage)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list incidents: %v", err))
		return
	}
	api.RespondJSON(w, http.StatusOK, api.PagedResponse("incidents", api.IncidentsToListItems(incidents), page, total))
}

func (h *APIHandler) handleRunCorrelation(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.tenants.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Tenant not found")
		return
	}
	result, err := h.correlation.Correlate(tenant.ID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Correlation failed: %v", err))
		return
	}
	api.RespondJSON(w, http.StatusOK, result)
}

// ========== Incidents ==========

func (h *APIHandler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.incidents.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Incident not found")
		return
	}
	alerts, err := h.incidents.MemberAlerts(incident.ID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load alerts: %v", err))
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"incident": incident,
		"alerts":   alerts,
	})
}

func (h *APIHandler) handleDecide(w http.ResponseWriter, r *http.Request) {
	incident, err := h.incidents.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Incident not found")
		return
	}
	// Re-running after a rejection overwrites the prior decision
	force := r.URL.Query().Get("force") == "true"
	decision, err := h.decision.Decide(incident, force)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Decision failed: %v", err))
		return
	}
	api.RespondJSON(w, http.StatusOK, decision)
}

func (h *APIHandler) handleDecisionAction(w http.ResponseWriter, r *http.Request) {
	incident, err := h.incidents.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Incident not found")
		return
	}

	var req api.DecisionActionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	switch req.Action {
	case "approve":
		err = h.decision.Approve(incident)
	case "reject":
		err = h.decision.Reject(incident)
	case "escalate":
		// Manual override: escalate regardless of the recommendation
		err = h.decision.ManualEscalate(incident)
	}
	if err != nil {
		api.RespondErrorWithCode(w, http.StatusConflict, "decision_conflict", err.Error())
		return
	}

	updated, err := h.incidents.GetByUUID(incident.UUID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to reload incident: %v", err))
		return
	}
	api.RespondJSON(w, http.StatusOK, updated)
}

func (h *APIHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	incident, err := h.incidents.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Incident not found")
		return
	}
	if err := h.decision.ResolveIncident(incident); err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to resolve incident: %v", err))
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

// ========== Runbooks & Technicians ==========

func (h *APIHandler) handleListRunbooks(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.List()
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list runbooks: %v", err))
		return
	}
	api.RespondJSON(w, http.StatusOK, list)
}

func (h *APIHandler) handleListTechnicians(w http.ResponseWriter, r *http.Request) {
	page := api.ParsePagination(r)

	var total int64
	if err := h.db.Model(&database.Technician{}).Count(&total).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to count technicians: %v", err))
		return
	}
	var technicians []database.Technician
	if err := h.db.Order("name ASC").Offset(page.Offset()).Limit(page.PerPage).Find(&technicians).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list technicians: %v", err))
		return
	}
	api.RespondJSON(w, http.StatusOK, api.PagedResponse("technicians", technicians, page, total))
}

func (h *APIHandler) handleCreateTechnician(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTechnicianRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	tech := &database.Technician{
		Name:      req.Name,
		Skills:    database.StringList(req.Skills),
		Available: true,
	}
	if err := h.db.Create(tech).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create technician: %v", err))
		return
	}

	// A fresh technician is new capacity; try the overflow queue
	if err := h.assignment.DrainQueue(); err != nil {
		log.Printf("Warning: queue drain after technician create failed: %v", err)
	}
	api.RespondJSON(w, http.StatusCreated, tech)
}

func (h *APIHandler) handleTechnicianAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid technician ID")
		return
	}

	var req api.UpdateAvailabilityRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var tech database.Technician
	if err := h.db.First(&tech, uint(id)).Error; err != nil {
		api.RespondError(w, http.StatusNotFound, "Technician not found")
		return
	}
	if err := h.db.Model(&tech).Update("available", req.Available).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update availability: %v", err))
		return
	}

	// Newly available capacity drains the overflow queue
	if req.Available {
		if err := h.assignment.DrainQueue(); err != nil {
			log.Printf("Warning: queue drain after availability change failed: %v", err)
		}
	}
	api.RespondJSON(w, http.StatusOK, tech)
}

// ========== Execution callback ==========

func (h *APIHandler) handleExecutionCallback(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")

	var req api.ExecutionCallbackRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	status := database.ExecutionStatusFailure
	if req.Status == "success" {
		status = database.ExecutionStatusSuccess
	}
	if err := h.decision.HandleExecutionResult(handle, status, req.DurationMs); err != nil {
		api.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
