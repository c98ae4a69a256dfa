package alerts

import (
	"strings"
	"time"

	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/services"
)

// Adapter parses a monitoring tool's native webhook payload into the
// engine's alert input format. A single webhook can carry multiple
// alerts (e.g. Alertmanager groups).
type Adapter interface {
	// SourceType returns the source type name (e.g., "alertmanager")
	SourceType() string

	// Parse parses the raw request body into alert inputs. Recovery
	// notifications are dropped; the engine only ingests firing alerts.
	Parse(body []byte) ([]services.AlertInput, error)
}

// Registry holds the registered source adapters keyed by source type
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter to the registry
func (r *Registry) Register(a Adapter) {
	r.adapters[a.SourceType()] = a
}

// Get returns the adapter for a source type
func (r *Registry) Get(sourceType string) (Adapter, bool) {
	a, ok := r.adapters[strings.ToLower(sourceType)]
	return a, ok
}

// SourceTypes returns the registered source type names
func (r *Registry) SourceTypes() []string {
	types := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	return types
}

// severityAliases maps common tool-specific severity labels onto the
// engine's four levels
var severityAliases = map[database.AlertSeverity][]string{
	database.AlertSeverityCritical: {"critical", "disaster", "p1", "emergency", "fatal", "error"},
	database.AlertSeverityHigh:     {"high", "major", "p2", "severe"},
	database.AlertSeverityMedium:   {"medium", "warning", "minor", "average", "p3", "warn", "normal"},
	database.AlertSeverityLow:      {"low", "info", "informational", "notice", "debug", "p4", "success"},
}

// NormalizeSeverity maps a tool-specific severity string to one of the
// engine's levels. Unknown values default to medium.
func NormalizeSeverity(raw string) database.AlertSeverity {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for severity, aliases := range severityAliases {
		for _, alias := range aliases {
			if raw == alias {
				return severity
			}
		}
	}
	return database.AlertSeverityMedium
}

// IsFiring reports whether a tool-specific status string describes an
// active problem rather than a recovery
func IsFiring(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "resolved", "ok", "recovered", "recovery", "inactive":
		return false
	}
	return true
}

// EventTime returns t, or now when the tool did not report a timestamp
func EventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
