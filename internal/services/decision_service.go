package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/executor"
	"github.com/opsrelay/opsrelay/internal/metrics"
	"github.com/opsrelay/opsrelay/internal/utils"
)

// DecisionService decides whether an incident can be auto-remediated,
// needs human approval, or must be escalated, and drives the resulting
// state transitions.
type DecisionService struct {
	db         *gorm.DB
	locks      *KeyLocks
	runner     executor.Runner
	assignment *AssignmentService
	escalation *EscalationService
	events     EventPublisher
}

// NewDecisionService creates a new decision service
func NewDecisionService(db *gorm.DB, locks *KeyLocks, runner executor.Runner, assignment *AssignmentService, escalation *EscalationService, events EventPublisher) *DecisionService {
	return &DecisionService{
		db:         db,
		locks:      locks,
		runner:     runner,
		assignment: assignment,
		escalation: escalation,
		events:     events,
	}
}

// Decide evaluates the decision rules for an incident and records exactly
// one Decision. A prior decision is returned as-is unless force is set
// (explicit re-run after a status change, e.g. a rejected approval);
// re-running overwrites the existing row rather than appending.
func (s *DecisionService) Decide(incident *database.Incident, force bool) (*database.Decision, error) {
	key := GroupingKey(incident.TenantID, incident.AssetID, incident.Signature)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// A resolved incident is terminal; a forced re-run must not revive it
	if incident.Status == database.IncidentStatusResolved {
		return nil, fmt.Errorf("incident %s is resolved", incident.UUID)
	}

	var existing database.Decision
	err := s.db.Where("incident_id = ?", incident.ID).First(&existing).Error
	if err == nil && !force {
		return &existing, nil
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}

	settings, err := database.GetOrCreateTenantSettings(s.db, incident.TenantID)
	if err != nil {
		return nil, err
	}

	decision := s.evaluate(incident, settings)
	if existing.ID != 0 {
		decision.ID = existing.ID
		decision.CreatedAt = existing.CreatedAt
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(decision).Error; err != nil {
			return err
		}
		return tx.Model(incident).Updates(map[string]interface{}{
			"status":     database.IncidentStatusDecided,
			"decided_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	incident.Status = database.IncidentStatusDecided
	incident.DecidedAt = &now

	metrics.IncDecision(string(decision.RecommendedAction))
	publish(s.events, EventDecisionMade, map[string]interface{}{
		"incident_uuid":    incident.UUID,
		"action":           decision.RecommendedAction,
		"can_auto_execute": decision.CanAutoExecute,
		"reason":           decision.Reason,
	})
	log.Printf("Decision for incident %s: %s (auto=%v, %s)",
		incident.UUID, decision.RecommendedAction, decision.CanAutoExecute, decision.Reason)

	if err := s.applyDecision(incident, decision); err != nil {
		return decision, err
	}
	return decision, nil
}

// evaluate applies the fixed decision rules in order. Pure with respect
// to external systems: identical incident state and runbook catalog
// always produce the same recommendation.
func (s *DecisionService) evaluate(incident *database.Incident, settings *database.TenantSettings) *database.Decision {
	decision := &database.Decision{
		IncidentID:          incident.ID,
		RecommendedCategory: incident.Category,
		PriorityScore:       incident.PriorityScore,
		Outcome:             database.DecisionOutcomePending,
	}

	runbook, err := s.matchRunbook(incident)
	if err != nil {
		// Catalog unreachable degrades to "no applicable runbook";
		// the pipeline never blocks on the catalog
		log.Printf("Warning: runbook lookup failed for incident %s: %v", incident.UUID, err)
		runbook = nil
	}

	if runbook == nil {
		decision.RecommendedAction = database.ActionEscalate
		decision.Reason = "no applicable runbook for signature " + incident.Signature
		decision.CanAutoExecute = false
		return decision
	}

	decision.RunbookID = &runbook.ID
	decision.RecommendedAction = database.ActionExecute

	if runbook.RiskLevel == database.RiskLevelLow && !runbook.RequiresApproval && settings.AutoApproveLowRisk {
		decision.CanAutoExecute = true
		decision.Reason = fmt.Sprintf("runbook %q is low risk and tenant allows auto-approval", runbook.Name)
	} else {
		decision.CanAutoExecute = false
		decision.Reason = fmt.Sprintf("runbook %q requires human approval (risk %s)", runbook.Name, runbook.RiskLevel)
	}
	return decision
}

// matchRunbook finds a runbook by exact signature first, then category
func (s *DecisionService) matchRunbook(incident *database.Incident) (*database.Runbook, error) {
	var runbook database.Runbook
	err := s.db.Where("signature = ?", incident.Signature).First(&runbook).Error
	if err == nil {
		return &runbook, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	err = s.db.Where("signature = '' AND category = ?", incident.Category).First(&runbook).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &runbook, nil
}

// applyDecision performs the decision's side effects
func (s *DecisionService) applyDecision(incident *database.Incident, decision *database.Decision) error {
	switch {
	case decision.RecommendedAction == database.ActionEscalate:
		return s.escalation.EscalateAndRoute(incident, database.EscalationReasonNoRunbook)

	case decision.CanAutoExecute:
		return s.startExecution(incident, decision)

	default:
		// Needs approval: route to a human who can approve or reject
		_, _, err := s.assignment.Assign(incident)
		return err
	}
}

// startExecution submits the runbook to the execution connector and marks
// the incident executing. Submission failure is treated like a reported
// execution failure: the incident escalates instead of being dropped.
func (s *DecisionService) startExecution(incident *database.Incident, decision *database.Decision) error {
	if decision.RunbookID == nil {
		return fmt.Errorf("decision for incident %s has no runbook", incident.UUID)
	}

	handle, err := s.runner.Submit(context.Background(), executor.SubmitRequest{
		IncidentID:   incident.ID,
		IncidentUUID: incident.UUID,
		RunbookID:    *decision.RunbookID,
		TargetIDs:    []string{incident.AssetID},
	})
	if err != nil {
		log.Printf("Runbook submission failed for incident %s: %v", incident.UUID, err)
		return s.escalation.EscalateAndRoute(incident, database.EscalationReasonRemediationFailed)
	}

	attempt := &database.ExecutionAttempt{
		IncidentID:    incident.ID,
		TenantID:      incident.TenantID,
		RunbookID:     *decision.RunbookID,
		CommandHandle: handle,
		Status:        database.ExecutionStatusPending,
		SubmittedAt:   time.Now(),
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attempt).Error; err != nil {
			return err
		}
		if err := tx.Model(incident).Update("status", database.IncidentStatusExecuting).Error; err != nil {
			return err
		}
		incident.Status = database.IncidentStatusExecuting
		return nil
	})
}

// Approve records human approval of an execute decision and submits the
// runbook to the connector.
func (s *DecisionService) Approve(incident *database.Incident) error {
	var decision database.Decision
	if err := s.db.Where("incident_id = ?", incident.ID).First(&decision).Error; err != nil {
		return fmt.Errorf("no decision recorded for incident %s", incident.UUID)
	}
	if decision.RecommendedAction != database.ActionExecute {
		return fmt.Errorf("decision for incident %s does not recommend execution", incident.UUID)
	}
	if decision.Outcome != database.DecisionOutcomePending {
		return fmt.Errorf("decision for incident %s already has outcome %s", incident.UUID, decision.Outcome)
	}

	if err := s.db.Model(&decision).Update("outcome", database.DecisionOutcomeApproved).Error; err != nil {
		return err
	}
	return s.startExecution(incident, &decision)
}

// Reject records a denied approval and falls through to escalation
func (s *DecisionService) Reject(incident *database.Incident) error {
	var decision database.Decision
	if err := s.db.Where("incident_id = ?", incident.ID).First(&decision).Error; err != nil {
		return fmt.Errorf("no decision recorded for incident %s", incident.UUID)
	}
	if decision.Outcome != database.DecisionOutcomePending {
		return fmt.Errorf("decision for incident %s already has outcome %s", incident.UUID, decision.Outcome)
	}

	if err := s.db.Model(&decision).Update("outcome", database.DecisionOutcomeRejected).Error; err != nil {
		return err
	}
	return s.escalation.EscalateAndRoute(incident, database.EscalationReasonApprovalDenied)
}

// ManualEscalate short-circuits to escalation regardless of the engine's
// recommendation. Operator override.
func (s *DecisionService) ManualEscalate(incident *database.Incident) error {
	return s.escalation.EscalateAndRoute(incident, database.EscalationReasonManual)
}

// HandleExecutionResult processes a completion callback from the
// execution connector. Success resolves the incident; failure escalates
// it with the failed attempt preserved in history. Results for deleted
// tenants are discarded.
func (s *DecisionService) HandleExecutionResult(commandHandle string, status database.ExecutionStatus, durationMs int64) error {
	var attempt database.ExecutionAttempt
	if err := s.db.Where("command_handle = ?", commandHandle).First(&attempt).Error; err != nil {
		return fmt.Errorf("unknown command handle %s", commandHandle)
	}

	var tenant database.Tenant
	if err := s.db.First(&tenant, attempt.TenantID).Error; err != nil || !tenant.IsActive() {
		log.Printf("Discarding execution result %s for inactive tenant %d", commandHandle, attempt.TenantID)
		return nil
	}

	now := time.Now()
	if err := s.db.Model(&attempt).Updates(map[string]interface{}{
		"status":       status,
		"duration_ms":  durationMs,
		"completed_at": now,
	}).Error; err != nil {
		return err
	}

	var incident database.Incident
	if err := s.db.First(&incident, attempt.IncidentID).Error; err != nil {
		return err
	}

	if status == database.ExecutionStatusSuccess {
		log.Printf("Remediation for incident %s completed in %s",
			incident.UUID, utils.FormatDuration(time.Duration(durationMs)*time.Millisecond))
		s.db.Model(&database.Decision{}).Where("incident_id = ?", incident.ID).
			Update("outcome", database.DecisionOutcomeExecuted)
		return s.ResolveIncident(&incident)
	}

	log.Printf("Remediation failed for incident %s (handle %s)", incident.UUID, commandHandle)
	return s.escalation.EscalateAndRoute(&incident, database.EscalationReasonRemediationFailed)
}

// ResolveIncident terminates an incident, resolves its member alerts, and
// frees the assignee's capacity.
func (s *DecisionService) ResolveIncident(incident *database.Incident) error {
	now := time.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(incident).Updates(map[string]interface{}{
			"status":      database.IncidentStatusResolved,
			"resolved_at": now,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&database.Alert{}).
			Where("incident_id = ? AND status != ?", incident.ID, database.AlertStatusResolved).
			Update("status", database.AlertStatusResolved).Error
	})
	if err != nil {
		return err
	}
	incident.Status = database.IncidentStatusResolved
	incident.ResolvedAt = &now

	publish(s.events, EventIncidentResolved, map[string]interface{}{
		"incident_uuid": incident.UUID,
	})
	log.Printf("Resolved incident %s", incident.UUID)

	return s.assignment.ReleaseIncident(incident)
}
