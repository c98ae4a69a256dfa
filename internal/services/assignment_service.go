package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/metrics"
	"github.com/opsrelay/opsrelay/internal/notify"
)

// maxAssignRetries bounds the conditional-update retry loop when two
// routers race for the same technician slot.
const maxAssignRetries = 3

// AssignmentService routes incidents to technicians or the overflow queue
type AssignmentService struct {
	db       *gorm.DB
	notifier notify.Notifier
	events   EventPublisher
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(db *gorm.DB, notifier notify.Notifier, events EventPublisher) *AssignmentService {
	return &AssignmentService{db: db, notifier: notifier, events: events}
}

// Assign selects a technician for the incident or enqueues it when no
// technician is eligible. Returns the technician and whether the incident
// was queued instead.
func (s *AssignmentService) Assign(incident *database.Incident) (*database.Technician, bool, error) {
	settings, err := database.GetOrCreateTenantSettings(s.db, incident.TenantID)
	if err != nil {
		return nil, false, err
	}

	for attempt := 0; attempt < maxAssignRetries; attempt++ {
		tech, err := s.pickTechnician(incident.Category, settings.AssignmentStrategy)
		if err != nil {
			return nil, false, err
		}
		if tech == nil {
			return nil, true, s.enqueue(incident)
		}

		claimed, err := s.claim(incident, tech)
		if err != nil {
			return nil, false, err
		}
		if !claimed {
			// Lost the race for this technician's slot; re-select
			continue
		}

		s.notifyAssigned(incident, tech)
		return tech, false, nil
	}

	// Every candidate was claimed out from under us; overflow rather than spin
	return nil, true, s.enqueue(incident)
}

// pickTechnician applies the tenant's assignment strategy.
// Returns nil when no technician is eligible.
func (s *AssignmentService) pickTechnician(category string, strategy database.AssignmentStrategy) (*database.Technician, error) {
	var techs []database.Technician
	if err := s.db.Where("available = ?", true).Find(&techs).Error; err != nil {
		return nil, err
	}

	var candidates []database.Technician
	for _, t := range techs {
		if strategy == database.AssignmentStrategySkillBased && !t.HasSkill(category) {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	switch strategy {
	case database.AssignmentStrategyRoundRobin:
		// Longest since last assignment goes first
		sort.SliceStable(candidates, func(i, j int) bool {
			return lastAssignedBefore(candidates[i], candidates[j])
		})
	default:
		// skill_based and least_busy: lowest workload, fairness tie-break
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Workload != candidates[j].Workload {
				return candidates[i].Workload < candidates[j].Workload
			}
			return lastAssignedBefore(candidates[i], candidates[j])
		})
	}

	return &candidates[0], nil
}

// lastAssignedBefore orders technicians by idle time; never-assigned first
func lastAssignedBefore(a, b database.Technician) bool {
	if a.LastAssignedAt == nil {
		return true
	}
	if b.LastAssignedAt == nil {
		return false
	}
	return a.LastAssignedAt.Before(*b.LastAssignedAt)
}

// claim atomically increments the technician's workload and writes the
// incident's assigned_to in one transaction. The conditional update on
// availability makes the losing racer detect the conflict and retry,
// so two incidents never land on a slot meant for two different people.
func (s *AssignmentService) claim(incident *database.Incident, tech *database.Technician) (bool, error) {
	claimed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&database.Technician{}).
			Where("id = ? AND available = ? AND workload = ?", tech.ID, true, tech.Workload).
			Updates(map[string]interface{}{
				"workload":         gorm.Expr("workload + 1"),
				"last_assigned_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // lost the race
		}

		updates := map[string]interface{}{
			"assigned_to": tech.ID,
			"assigned_at": now,
		}
		// Escalated incidents keep their terminal status; everything else
		// moves to assigned
		if incident.Status != database.IncidentStatusEscalated {
			updates["status"] = database.IncidentStatusAssigned
		}
		if err := tx.Model(incident).Updates(updates).Error; err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}

func (s *AssignmentService) notifyAssigned(incident *database.Incident, tech *database.Technician) {
	log.Printf("Assigned incident %s to technician %s (workload now %d)",
		incident.UUID, tech.Name, tech.Workload+1)

	publish(s.events, EventIncidentAssigned, map[string]interface{}{
		"incident_uuid": incident.UUID,
		"technician_id": tech.ID,
	})

	if s.notifier != nil {
		err := s.notifier.Notify(context.Background(), notify.Notification{
			Type:         notify.TypeAssigned,
			IncidentUUID: incident.UUID,
			Recipient:    tech.Name,
			Message:      fmt.Sprintf("Incident %s (%s on %s) assigned to you", incident.UUID, incident.Signature, incident.AssetName),
		})
		if err != nil {
			log.Printf("Warning: assignment notification failed: %v", err)
		}
	}
}

// enqueue places the incident in the overflow queue and alerts admins.
// Assignment exhaustion is the defined overflow path, not an error.
func (s *AssignmentService) enqueue(incident *database.Incident) error {
	entry := &database.AssignmentQueueEntry{
		IncidentID:    incident.ID,
		TenantID:      incident.TenantID,
		Category:      incident.Category,
		PriorityScore: incident.PriorityScore,
		EnqueuedAt:    time.Now(),
	}
	// The unique index on incident_id makes re-enqueueing a no-op
	err := s.db.Where("incident_id = ?", incident.ID).FirstOrCreate(entry).Error
	if err != nil {
		return err
	}

	s.refreshQueueDepth()
	log.Printf("Incident %s queued for assignment (no eligible technician, category %s)",
		incident.UUID, incident.Category)

	publish(s.events, EventOverflowQueued, map[string]interface{}{
		"incident_uuid": incident.UUID,
		"category":      incident.Category,
	})

	if s.notifier != nil {
		err := s.notifier.Notify(context.Background(), notify.Notification{
			Type:         notify.TypeOverflow,
			IncidentUUID: incident.UUID,
			Recipient:    "administrators",
			Message:      fmt.Sprintf("No technician available for incident %s (category %s)", incident.UUID, incident.Category),
		})
		if err != nil {
			log.Printf("Warning: overflow notification failed: %v", err)
		}
	}
	return nil
}

// ReleaseIncident decrements the assignee's workload when an incident
// leaves their plate and clears the assignment, so workload always
// counts incidents currently assigned. Then drains the overflow queue
// against the freed capacity.
func (s *AssignmentService) ReleaseIncident(incident *database.Incident) error {
	if incident.AssignedTo == nil {
		return nil
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&database.Technician{}).
			Where("id = ? AND workload > 0", *incident.AssignedTo).
			Update("workload", gorm.Expr("workload - 1")).Error; err != nil {
			return err
		}
		return tx.Model(incident).Update("assigned_to", nil).Error
	})
	if err != nil {
		return err
	}
	incident.AssignedTo = nil
	return s.DrainQueue()
}

// DrainQueue attempts assignment for queued incidents in priority order
// (highest score first, oldest first on ties). Invoked whenever capacity
// frees up: an incident resolves or a technician becomes available.
func (s *AssignmentService) DrainQueue() error {
	var entries []database.AssignmentQueueEntry
	err := s.db.Order("priority_score DESC, enqueued_at ASC").Find(&entries).Error
	if err != nil {
		return err
	}

	for _, entry := range entries {
		var incident database.Incident
		if err := s.db.First(&incident, entry.IncidentID).Error; err != nil {
			// Incident vanished (tenant deleted); drop the entry
			s.db.Delete(&database.AssignmentQueueEntry{}, entry.ID)
			continue
		}
		if !incident.IsOpen() && incident.Status != database.IncidentStatusEscalated {
			s.db.Delete(&database.AssignmentQueueEntry{}, entry.ID)
			continue
		}

		settings, err := database.GetOrCreateTenantSettings(s.db, incident.TenantID)
		if err != nil {
			return err
		}
		tech, err := s.pickTechnician(incident.Category, settings.AssignmentStrategy)
		if err != nil {
			return err
		}
		if tech == nil {
			continue // still nobody for this category; try the next entry
		}

		claimed, err := s.claim(&incident, tech)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}

		s.db.Delete(&database.AssignmentQueueEntry{}, entry.ID)
		s.notifyAssigned(&incident, tech)
	}

	s.refreshQueueDepth()
	return nil
}

func (s *AssignmentService) refreshQueueDepth() {
	var depth int64
	if err := s.db.Model(&database.AssignmentQueueEntry{}).Count(&depth).Error; err == nil {
		metrics.SetAssignmentQueueDepth(depth)
	}
}
