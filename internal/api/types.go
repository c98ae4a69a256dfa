package api

import (
	"time"

	"github.com/opsrelay/opsrelay/internal/database"
)

// ========== Alert Types ==========

// IngestAlertRequest is the request body for POST /webhook/alert
type IngestAlertRequest struct {
	AssetID    string                 `json:"asset_id" validate:"required,max=255"`
	AssetName  string                 `json:"asset_name" validate:"omitempty,max=255"`
	Signature  string                 `json:"signature" validate:"required,max=255"`
	Severity   string                 `json:"severity" validate:"required,oneof=low medium high critical"`
	Message    string                 `json:"message"`
	SourceTool string                 `json:"source_tool" validate:"omitempty,max=100"`
	Labels     map[string]interface{} `json:"labels"`
	OccurredAt *time.Time             `json:"occurred_at"`
}

// ========== Incident Types ==========

// IncidentListItem is a compact incident representation for list endpoints
type IncidentListItem struct {
	ID               uint                    `json:"id"`
	UUID             string                  `json:"uuid"`
	TenantID         uint                    `json:"tenant_id"`
	AssetID          string                  `json:"asset_id"`
	AssetName        string                  `json:"asset_name"`
	Signature        string                  `json:"signature"`
	Severity         database.AlertSeverity  `json:"severity"`
	Category         string                  `json:"category"`
	PriorityScore    float64                 `json:"priority_score"`
	AlertCount       int                     `json:"alert_count"`
	ToolSources      database.StringList     `json:"tool_sources"`
	Status           database.IncidentStatus `json:"status"`
	AssignedTo       *uint                   `json:"assigned_to,omitempty"`
	Escalated        bool                    `json:"escalated"`
	EscalationReason string                  `json:"escalation_reason,omitempty"`
	WindowExpiresAt  time.Time               `json:"window_expires_at"`
	CreatedAt        time.Time               `json:"created_at"`
}

// DecisionActionRequest selects the operator action on a decision
type DecisionActionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject escalate"`
}

// ========== Execution Types ==========

// ExecutionCallbackRequest is the completion report from the connector
type ExecutionCallbackRequest struct {
	Status     string `json:"status" validate:"required,oneof=success failure"`
	DurationMs int64  `json:"duration_ms" validate:"gte=0"`
}

// ========== Settings Types ==========

// UpdateTenantSettingsRequest is the request body for PUT tenant settings
type UpdateTenantSettingsRequest struct {
	AutoCorrelateEnabled     *bool    `json:"auto_correlate_enabled"`
	CorrelationWindowMinutes *int     `json:"correlation_window_minutes" validate:"omitempty,gte=1,lte=60"`
	CorrelateIntervalSeconds *int     `json:"correlate_interval_seconds" validate:"omitempty,gte=1,lte=300"`
	AutoDecideEnabled        *bool    `json:"auto_decide_enabled"`
	DecideIntervalSeconds    *int     `json:"decide_interval_seconds" validate:"omitempty,gte=1,lte=300"`
	AutoApproveLowRisk       *bool    `json:"auto_approve_low_risk"`
	SLAMinutes               *int     `json:"sla_minutes" validate:"omitempty,gte=1,lte=1440"`
	AssignmentStrategy       *string  `json:"assignment_strategy" validate:"omitempty,oneof=skill_based round_robin least_busy"`
	CriticalAssets           []string `json:"critical_assets"`
}

// ========== Technician Types ==========

// UpdateAvailabilityRequest toggles a technician's availability
type UpdateAvailabilityRequest struct {
	Available bool `json:"available"`
}

// CreateTechnicianRequest is the request body for POST /api/technicians
type CreateTechnicianRequest struct {
	Name   string   `json:"name" validate:"required,max=255"`
	Skills []string `json:"skills"`
}
