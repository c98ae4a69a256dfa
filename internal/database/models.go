package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList is a JSON-encoded list of strings (tool sources, skill tags)
type StringList []string

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

// Contains reports whether the list contains s
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// AddUnique appends s if it is not already present
func (l StringList) AddUnique(s string) StringList {
	if l.Contains(s) {
		return l
	}
	return append(l, s)
}

// AlertSeverity represents normalized severity levels
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// SeverityRank returns the ordinal rank of a severity for comparisons.
// Unknown severities rank below low so they never promote an incident.
func SeverityRank(s AlertSeverity) int {
	switch s {
	case AlertSeverityLow:
		return 1
	case AlertSeverityMedium:
		return 2
	case AlertSeverityHigh:
		return 3
	case AlertSeverityCritical:
		return 4
	default:
		return 0
	}
}

// MaxSeverity returns the higher-ranked of two severities
func MaxSeverity(a, b AlertSeverity) AlertSeverity {
	if SeverityRank(b) > SeverityRank(a) {
		return b
	}
	return a
}

// ValidSeverity reports whether s is one of the known severity levels
func ValidSeverity(s AlertSeverity) bool {
	return SeverityRank(s) > 0
}

// AlertStatus represents the lifecycle state of a raw alert
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// Tenant represents one managed client company
type Tenant struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       string    `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	APIKeyHash string    `gorm:"type:text;not null" json:"-"` // bcrypt hash of the ingestion API key
	APIKeyHint string    `gorm:"size:16" json:"api_key_hint"` // key prefix for webhook routing
	Enabled    bool      `gorm:"default:true" json:"enabled"`
	DeletedAt  *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// IsActive reports whether the tenant should be considered by the engine
func (t *Tenant) IsActive() bool {
	return t.Enabled && t.DeletedAt == nil
}

// AssignmentStrategy selects how the router picks a technician
type AssignmentStrategy string

const (
	AssignmentStrategySkillBased AssignmentStrategy = "skill_based"
	AssignmentStrategyRoundRobin AssignmentStrategy = "round_robin"
	AssignmentStrategyLeastBusy  AssignmentStrategy = "least_busy"
)

// TenantSettings holds per-tenant engine configuration.
// One record per tenant, created on demand with defaults.
type TenantSettings struct {
	ID                       uint               `gorm:"primaryKey" json:"id"`
	TenantID                 uint               `gorm:"uniqueIndex;not null" json:"tenant_id"`
	AutoCorrelateEnabled     bool               `gorm:"default:true" json:"auto_correlate_enabled"`
	CorrelationWindowMinutes int                `gorm:"default:10" json:"correlation_window_minutes"`
	CorrelateIntervalSeconds int                `gorm:"default:60" json:"correlate_interval_seconds"`
	AutoDecideEnabled        bool               `gorm:"default:true" json:"auto_decide_enabled"`
	DecideIntervalSeconds    int                `gorm:"default:60" json:"decide_interval_seconds"`
	AutoApproveLowRisk       bool               `gorm:"default:true" json:"auto_approve_low_risk"`
	SLAMinutes               int                `gorm:"default:30" json:"sla_minutes"`
	AssignmentStrategy       AssignmentStrategy `gorm:"type:varchar(20);default:'skill_based'" json:"assignment_strategy"`
	CriticalAssets           StringList         `gorm:"type:text" json:"critical_assets"` // asset IDs that get a priority bonus
	CreatedAt                time.Time          `json:"created_at"`
	UpdatedAt                time.Time          `json:"updated_at"`
}

func (TenantSettings) TableName() string {
	return "tenant_settings"
}

// Correlation window bounds. Values outside this range are clamped
// rather than rejected so a bad settings write cannot stall the engine.
const (
	MinCorrelationWindowMinutes = 5
	MaxCorrelationWindowMinutes = 15
)

// EffectiveWindowMinutes returns the correlation window clamped to the allowed range
func (s *TenantSettings) EffectiveWindowMinutes() int {
	if s.CorrelationWindowMinutes < MinCorrelationWindowMinutes {
		return MinCorrelationWindowMinutes
	}
	if s.CorrelationWindowMinutes > MaxCorrelationWindowMinutes {
		return MaxCorrelationWindowMinutes
	}
	return s.CorrelationWindowMinutes
}

// Alert is one raw signal from a monitoring source.
// Alerts are never deleted, only archived.
type Alert struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	UUID       string        `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	TenantID   uint          `gorm:"not null;index:idx_alerts_tenant_status" json:"tenant_id"`
	AssetID    string        `gorm:"size:255;not null;index" json:"asset_id"`
	AssetName  string        `gorm:"size:255" json:"asset_name"`
	Signature  string        `gorm:"size:255;not null;index" json:"signature"` // normalized fault identifier
	Severity   AlertSeverity `gorm:"type:varchar(20);not null" json:"severity"`
	Message    string        `gorm:"type:text" json:"message"`
	SourceTool string        `gorm:"size:100" json:"source_tool"`
	Labels     JSONB         `gorm:"type:jsonb" json:"labels,omitempty"` // source tool context, not interpreted by the engine
	OccurredAt time.Time     `gorm:"not null" json:"occurred_at"`
	Status     AlertStatus   `gorm:"type:varchar(20);not null;default:'active';index:idx_alerts_tenant_status" json:"status"`
	IncidentID *uint         `gorm:"index" json:"incident_id,omitempty"` // back-reference, not ownership
	Archived   bool          `gorm:"default:false" json:"archived"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// BeforeCreate defaults OccurredAt to now when the source omitted it
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now()
	}
	return nil
}

// IncidentStatus represents the decision-pipeline state of an incident
type IncidentStatus string

const (
	IncidentStatusNew       IncidentStatus = "new"
	IncidentStatusDecided   IncidentStatus = "decided"
	IncidentStatusExecuting IncidentStatus = "executing"
	IncidentStatusAssigned  IncidentStatus = "assigned"
	IncidentStatusResolved  IncidentStatus = "resolved"
	IncidentStatusEscalated IncidentStatus = "escalated"
)

// OpenIncidentStatuses are the states in which an incident still needs attention
var OpenIncidentStatuses = []IncidentStatus{
	IncidentStatusNew,
	IncidentStatusDecided,
	IncidentStatusExecuting,
	IncidentStatusAssigned,
}

// Incident is a correlated group of alerts believed to share one root cause
type Incident struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UUID             string         `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	TenantID         uint           `gorm:"not null;index:idx_incidents_tenant_key" json:"tenant_id"`
	AssetID          string         `gorm:"size:255;not null;index:idx_incidents_tenant_key" json:"asset_id"`
	AssetName        string         `gorm:"size:255" json:"asset_name"`
	Signature        string         `gorm:"size:255;not null;index:idx_incidents_tenant_key" json:"signature"`
	Severity         AlertSeverity  `gorm:"type:varchar(20);not null" json:"severity"`
	Category         string         `gorm:"size:100" json:"category"`
	PriorityScore    float64        `json:"priority_score"`
	AlertCount       int            `gorm:"default:0" json:"alert_count"`
	ToolSources      StringList     `gorm:"type:text" json:"tool_sources"`
	Status           IncidentStatus `gorm:"type:varchar(20);not null;default:'new';index" json:"status"`
	WindowExpiresAt  time.Time      `gorm:"not null" json:"window_expires_at"`
	AssignedTo       *uint          `gorm:"index" json:"assigned_to,omitempty"` // technician id, a reference not ownership
	AssignedAt       *time.Time     `json:"assigned_at,omitempty"`
	DecidedAt        *time.Time     `json:"decided_at,omitempty"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	Escalated        bool           `gorm:"default:false" json:"escalated"`
	EscalatedAt      *time.Time     `json:"escalated_at,omitempty"`
	EscalationReason string         `gorm:"size:100" json:"escalation_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	// Owned 1:1; loaded on demand
	Decision *Decision `gorm:"foreignKey:IncidentID" json:"decision,omitempty"`
}

func (Incident) TableName() string {
	return "incidents"
}

// IsOpen reports whether the incident is still in the pipeline
func (i *Incident) IsOpen() bool {
	return i.Status != IncidentStatusResolved && i.Status != IncidentStatusEscalated
}

// WindowOpen reports whether alerts may still join this incident
func (i *Incident) WindowOpen(now time.Time) bool {
	return i.IsOpen() && now.Before(i.WindowExpiresAt)
}

// RecommendedAction is the decision engine's recommendation
type RecommendedAction string

const (
	ActionExecute  RecommendedAction = "execute"
	ActionEscalate RecommendedAction = "escalate"
)

// DecisionOutcome is the terminal result recorded on a decision
type DecisionOutcome string

const (
	DecisionOutcomePending  DecisionOutcome = "pending"
	DecisionOutcomeExecuted DecisionOutcome = "executed"
	DecisionOutcomeApproved DecisionOutcome = "approved"
	DecisionOutcomeRejected DecisionOutcome = "rejected"
)

// Decision is the engine's recommendation for one incident.
// Exactly one decision exists per incident; re-deciding overwrites it.
type Decision struct {
	ID                  uint              `gorm:"primaryKey" json:"id"`
	IncidentID          uint              `gorm:"uniqueIndex;not null" json:"incident_id"`
	RecommendedAction   RecommendedAction `gorm:"type:varchar(20);not null" json:"recommended_action"`
	RunbookID           *uint             `json:"runbook_id,omitempty"`
	RecommendedCategory string            `gorm:"size:100" json:"recommended_category,omitempty"`
	PriorityScore       float64           `json:"priority_score"` // snapshot at decision time
	Reason              string            `gorm:"type:text" json:"reason"`
	CanAutoExecute      bool              `gorm:"default:false" json:"can_auto_execute"`
	Outcome             DecisionOutcome   `gorm:"type:varchar(20);not null;default:'pending'" json:"outcome"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

func (Decision) TableName() string {
	return "decisions"
}

// RunbookRiskLevel classifies how dangerous a runbook is to auto-execute
type RunbookRiskLevel string

const (
	RiskLevelLow    RunbookRiskLevel = "low"
	RiskLevelMedium RunbookRiskLevel = "medium"
	RiskLevelHigh   RunbookRiskLevel = "high"
)

// Runbook is a predefined remediation procedure.
// Read-only to the engine; seeded from the external catalog file.
type Runbook struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	Name             string           `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Signature        string           `gorm:"size:255;index" json:"signature"` // matches Alert.Signature
	Category         string           `gorm:"size:100;index" json:"category"`
	RiskLevel        RunbookRiskLevel `gorm:"type:varchar(20);not null" json:"risk_level"`
	RequiresApproval bool             `gorm:"default:false" json:"requires_approval"`
	Description      string           `gorm:"type:text" json:"description"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (Runbook) TableName() string {
	return "runbooks"
}

// Technician is an assignable human
type Technician struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	Skills         StringList `gorm:"type:text" json:"skills"` // category tags
	Workload       int        `gorm:"default:0" json:"workload"`
	Available      bool       `gorm:"default:true" json:"available"`
	LastAssignedAt *time.Time `json:"last_assigned_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Technician) TableName() string {
	return "technicians"
}

// HasSkill reports whether the technician covers the given category.
// An empty category matches any technician.
func (t *Technician) HasSkill(category string) bool {
	if category == "" {
		return true
	}
	return t.Skills.Contains(category)
}

// AssignmentQueueEntry holds an incident waiting for an eligible technician
type AssignmentQueueEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	IncidentID    uint      `gorm:"uniqueIndex;not null" json:"incident_id"`
	TenantID      uint      `gorm:"not null;index" json:"tenant_id"`
	Category      string    `gorm:"size:100" json:"category"`
	PriorityScore float64   `json:"priority_score"`
	EnqueuedAt    time.Time `gorm:"not null" json:"enqueued_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (AssignmentQueueEntry) TableName() string {
	return "assignment_queue"
}

// EscalationReason explains why an incident was escalated
const (
	EscalationReasonSLABreach         = "sla_breach"
	EscalationReasonNoRunbook         = "no_runbook"
	EscalationReasonApprovalDenied    = "approval_denied"
	EscalationReasonRemediationFailed = "remediation_failed"
	EscalationReasonManual            = "manual"
)

// EscalationRecord is an audit entry for one automatic escalation
type EscalationRecord struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	IncidentID       uint      `gorm:"not null;index" json:"incident_id"`
	TriggeredAt      time.Time `gorm:"not null" json:"triggered_at"`
	TriggerReason    string    `gorm:"size:100;not null" json:"trigger_reason"`
	PreviousAssignee *uint     `json:"previous_assignee,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func (EscalationRecord) TableName() string {
	return "escalation_records"
}

// ExecutionStatus is the state of one connector invocation
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailure ExecutionStatus = "failure"
)

// ExecutionAttempt records one invocation of the execution connector.
// Failed attempts are preserved in the incident history.
type ExecutionAttempt struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	IncidentID    uint            `gorm:"not null;index" json:"incident_id"`
	TenantID      uint            `gorm:"not null;index" json:"tenant_id"`
	RunbookID     uint            `gorm:"not null" json:"runbook_id"`
	CommandHandle string          `gorm:"uniqueIndex;size:64;not null" json:"command_handle"`
	Status        ExecutionStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	DurationMs    int64           `json:"duration_ms"`
	SubmittedAt   time.Time       `gorm:"not null" json:"submitted_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (ExecutionAttempt) TableName() string {
	return "execution_attempts"
}
