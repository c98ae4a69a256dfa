package api

import "github.com/opsrelay/opsrelay/internal/database"

// IncidentToListItem converts a database Incident to its compact list form
func IncidentToListItem(i database.Incident) IncidentListItem {
	return IncidentListItem{
		ID:               i.ID,
		UUID:             i.UUID,
		TenantID:         i.TenantID,
		AssetID:          i.AssetID,
		AssetName:        i.AssetName,
		Signature:        i.Signature,
		Severity:         i.Severity,
		Category:         i.Category,
		PriorityScore:    i.PriorityScore,
		AlertCount:       i.AlertCount,
		ToolSources:      i.ToolSources,
		Status:           i.Status,
		AssignedTo:       i.AssignedTo,
		Escalated:        i.Escalated,
		EscalationReason: i.EscalationReason,
		WindowExpiresAt:  i.WindowExpiresAt,
		CreatedAt:        i.CreatedAt,
	}
}

// IncidentsToListItems converts a slice of incidents to list items
func IncidentsToListItems(incidents []database.Incident) []IncidentListItem {
	items := make([]IncidentListItem, len(incidents))
	for i, inc := range incidents {
		items[i] = IncidentToListItem(inc)
	}
	return items
}

// ApplySettingsUpdate copies the set fields of the request onto settings
func ApplySettingsUpdate(settings *database.TenantSettings, req UpdateTenantSettingsRequest) {
	if req.AutoCorrelateEnabled != nil {
		settings.AutoCorrelateEnabled = *req.AutoCorrelateEnabled
	}
	if req.CorrelationWindowMinutes != nil {
		settings.CorrelationWindowMinutes = *req.CorrelationWindowMinutes
	}
	if req.CorrelateIntervalSeconds != nil {
		settings.CorrelateIntervalSeconds = *req.CorrelateIntervalSeconds
	}
	if req.AutoDecideEnabled != nil {
		settings.AutoDecideEnabled = *req.AutoDecideEnabled
	}
	if req.DecideIntervalSeconds != nil {
		settings.DecideIntervalSeconds = *req.DecideIntervalSeconds
	}
	if req.AutoApproveLowRisk != nil {
		settings.AutoApproveLowRisk = *req.AutoApproveLowRisk
	}
	if req.SLAMinutes != nil {
		settings.SLAMinutes = *req.SLAMinutes
	}
	if req.AssignmentStrategy != nil {
		settings.AssignmentStrategy = database.AssignmentStrategy(*req.AssignmentStrategy)
	}
	if req.CriticalAssets != nil {
		settings.CriticalAssets = database.StringList(req.CriticalAssets)
	}
}
