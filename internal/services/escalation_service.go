package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/metrics"
	"github.com/opsrelay/opsrelay/internal/notify"
)

// EscalationService moves incidents to the escalated state and records
// the audit trail. Escalation is idempotent: the escalated flag gates a
// conditional update so repeated calls (and overlapping sweeps) are no-ops.
type EscalationService struct {
	db         *gorm.DB
	notifier   notify.Notifier
	events     EventPublisher
	assignment *AssignmentService
}

// NewEscalationService creates a new escalation service
func NewEscalationService(db *gorm.DB, notifier notify.Notifier, events EventPublisher, assignment *AssignmentService) *EscalationService {
	return &EscalationService{db: db, notifier: notifier, events: events, assignment: assignment}
}

// Escalate flips the incident's escalated flag exactly once, writes an
// EscalationRecord, and notifies the senior tier. Returns true when this
// call performed the escalation and false when the incident was already
// escalated.
func (s *EscalationService) Escalate(incident *database.Incident, reason string) (bool, error) {
	now := time.Now()
	previousAssignee := incident.AssignedTo

	escalatedNow := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// The escalated flag, not re-derived age, guarantees exactly-once
		res := tx.Model(&database.Incident{}).
			Where("id = ? AND escalated = ?", incident.ID, false).
			Updates(map[string]interface{}{
				"escalated":         true,
				"escalated_at":      now,
				"escalation_reason": reason,
				"status":            database.IncidentStatusEscalated,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // already escalated; skip record and notification
		}

		record := &database.EscalationRecord{
			IncidentID:       incident.ID,
			TriggeredAt:      now,
			TriggerReason:    reason,
			PreviousAssignee: previousAssignee,
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		escalatedNow = true
		return nil
	})
	if err != nil || !escalatedNow {
		return false, err
	}

	incident.Escalated = true
	incident.EscalatedAt = &now
	incident.EscalationReason = reason
	incident.Status = database.IncidentStatusEscalated

	metrics.IncEscalation(reason)
	log.Printf("Escalated incident %s (reason: %s)", incident.UUID, reason)

	publish(s.events, EventIncidentEscalated, map[string]interface{}{
		"incident_uuid": incident.UUID,
		"reason":        reason,
	})

	if s.notifier != nil {
		err := s.notifier.Notify(context.Background(), notify.Notification{
			Type:         notify.TypeEscalated,
			IncidentUUID: incident.UUID,
			Recipient:    "senior-tier",
			Message:      fmt.Sprintf("Incident %s escalated: %s", incident.UUID, reason),
		})
		if err != nil {
			log.Printf("Warning: escalation notification failed: %v", err)
		}
	}
	return true, nil
}

// EscalateAndRoute escalates and then hands the incident to the
// assignment router so a human still receives it. Routing failure
// degrades to the overflow queue, never to a dropped incident.
func (s *EscalationService) EscalateAndRoute(incident *database.Incident, reason string) error {
	escalatedNow, err := s.Escalate(incident, reason)
	if err != nil {
		return err
	}
	if !escalatedNow {
		return nil
	}
	if incident.AssignedTo != nil {
		// Already with a human; the senior-tier notification is enough
		return nil
	}
	if _, _, err := s.assignment.Assign(incident); err != nil {
		log.Printf("Warning: failed to route escalated incident %s: %v", incident.UUID, err)
	}
	return nil
}
