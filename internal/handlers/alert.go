package handlers

import (
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/alerts"
	"github.com/opsrelay/opsrelay/internal/api"
	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/services"
)

// APIKeyHeader carries the tenant ingestion key on webhook requests
const APIKeyHeader = "X-API-Key"

// AlertHandler accepts raw alerts from monitoring tools.
// Route: POST /webhook/alert/{tenant_uuid}. A ?source= query parameter
// selects a registered source adapter; without it the body must be the
// engine's native alert format.
type AlertHandler struct {
	db          *gorm.DB
	tenants     *services.TenantService
	alerts      *services.AlertService
	correlation *services.CorrelationService
	registry    *alerts.Registry
}

// NewAlertHandler creates a new alert webhook handler
func NewAlertHandler(db *gorm.DB, tenants *services.TenantService, alertService *services.AlertService, correlation *services.CorrelationService) *AlertHandler {
	return &AlertHandler{
		db:          db,
		tenants:     tenants,
		alerts:      alertService,
		correlation: correlation,
		registry:    alerts.NewRegistry(),
	}
}

// RegisterAdapter registers a source adapter for webhook parsing
func (h *AlertHandler) RegisterAdapter(a alerts.Adapter) {
	h.registry.Register(a)
}

// HandleWebhook authenticates the tenant API key, validates the
// alert(s), and appends them to the alert store. Ingestion never
// correlates inline; a reactive correlation pass is kicked off
// asynchronously when the tenant has auto-correlate enabled.
func (h *AlertHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	tenantUUID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/webhook/alert/"), "/")
	if tenantUUID == "" {
		api.RespondError(w, http.StatusBadRequest, "Missing tenant UUID")
		return
	}

	tenant, err := h.tenants.GetByUUID(tenantUUID)
	if err != nil {
		log.Printf("Alert webhook for unknown tenant %s", tenantUUID)
		api.RespondError(w, http.StatusNotFound, "Tenant not found")
		return
	}
	if !h.tenants.Authenticate(tenant, r.Header.Get(APIKeyHeader)) {
		api.RespondError(w, http.StatusUnauthorized, "Invalid API key")
		return
	}

	var inputs []services.AlertInput
	if source := r.URL.Query().Get("source"); source != "" {
		inputs, err = h.parseWithAdapter(r, source)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		var req api.IngestAlertRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if fieldErrors := api.Validate(req); fieldErrors != nil {
			api.RespondValidationError(w, fieldErrors)
			return
		}
		input := services.AlertInput{
			AssetID:    req.AssetID,
			AssetName:  req.AssetName,
			Signature:  req.Signature,
			Severity:   req.Severity,
			Message:    req.Message,
			SourceTool: req.SourceTool,
			Labels:     req.Labels,
		}
		if req.OccurredAt != nil {
			input.OccurredAt = *req.OccurredAt
		} else {
			input.OccurredAt = time.Now()
		}
		inputs = []services.AlertInput{input}
	}

	ingested := make([]string, 0, len(inputs))
	for _, input := range inputs {
		alert, err := h.alerts.Ingest(tenant.ID, input)
		if err != nil {
			// Malformed alerts are rejected at the boundary, not retried
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		ingested = append(ingested, alert.UUID)
	}

	if len(ingested) > 0 {
		settings, err := database.GetOrCreateTenantSettings(h.db, tenant.ID)
		if err == nil && settings.AutoCorrelateEnabled {
			go func(tenantID uint) {
				if _, err := h.correlation.Correlate(tenantID); err != nil {
					log.Printf("Reactive correlation failed for tenant %d: %v", tenantID, err)
				}
			}(tenant.ID)
		}
	}

	api.RespondJSON(w, http.StatusAccepted, map[string]interface{}{
		"alert_uuids": ingested,
		"ingested":    len(ingested),
	})
}

// parseWithAdapter routes the raw body through a source adapter
func (h *AlertHandler) parseWithAdapter(r *http.Request, source string) ([]services.AlertInput, error) {
	adapter, ok := h.registry.Get(source)
	if !ok {
		return nil, &unknownSourceError{source: source}
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, api.MaxBodySize))
	if err != nil {
		return nil, err
	}
	inputs, err := adapter.Parse(body)
	if err != nil {
		return nil, err
	}
	for i := range inputs {
		if inputs[i].OccurredAt.IsZero() {
			inputs[i].OccurredAt = time.Now()
		}
	}
	return inputs, nil
}

type unknownSourceError struct {
	source string
}

func (e *unknownSourceError) Error() string {
	return "unknown alert source: " + e.source
}
