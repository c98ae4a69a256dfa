package services

import (
	"math"
	"time"

	"github.com/opsrelay/opsrelay/internal/database"
)

// Priority scoring weights. The score is a fixed business formula,
// not user-programmable.
const (
	scoreSeverityLow      = 10.0
	scoreSeverityMedium   = 30.0
	scoreSeverityHigh     = 55.0
	scoreSeverityCritical = 80.0

	scoreCriticalAssetBonus = 10.0

	// duplicateFactor grows logarithmically so 50 duplicates
	// does not dwarf severity
	scoreDuplicateScale = 8.0
	scoreDuplicateCap   = 20.0

	// corroboration from more than one monitoring source
	scoreMultiToolPerSource = 5.0
	scoreMultiToolCap       = 10.0

	// ageDecay keeps stale noise from holding top priority forever
	scoreAgeDecayPerMinute = 0.05
	scoreAgeDecayCap       = 25.0

	scoreMin = 0.0
	scoreMax = 100.0
)

func severityWeight(s database.AlertSeverity) float64 {
	switch s {
	case database.AlertSeverityCritical:
		return scoreSeverityCritical
	case database.AlertSeverityHigh:
		return scoreSeverityHigh
	case database.AlertSeverityMedium:
		return scoreSeverityMedium
	case database.AlertSeverityLow:
		return scoreSeverityLow
	default:
		return 0
	}
}

func duplicateFactor(alertCount int) float64 {
	if alertCount <= 0 {
		return 0
	}
	f := scoreDuplicateScale * math.Log(1+float64(alertCount))
	return math.Min(f, scoreDuplicateCap)
}

func multiToolBonus(sources int) float64 {
	if sources <= 1 {
		return 0
	}
	b := scoreMultiToolPerSource * float64(sources-1)
	return math.Min(b, scoreMultiToolCap)
}

func ageDecay(age time.Duration) float64 {
	if age <= 0 {
		return 0
	}
	d := scoreAgeDecayPerMinute * age.Minutes()
	return math.Min(d, scoreAgeDecayCap)
}

// ScoreIncident maps an incident's attributes to a priority score in [0,100].
// criticalAsset marks the incident's asset as business-critical per tenant
// settings. The result is time-dependent through ageDecay, so callers
// recompute it on membership changes and on every scheduled pass.
func ScoreIncident(inc *database.Incident, criticalAsset bool, now time.Time) float64 {
	score := severityWeight(inc.Severity)
	if criticalAsset {
		score += scoreCriticalAssetBonus
	}
	score += duplicateFactor(inc.AlertCount)
	score += multiToolBonus(len(inc.ToolSources))
	score -= ageDecay(now.Sub(inc.CreatedAt))

	if score < scoreMin {
		return scoreMin
	}
	if score > scoreMax {
		return scoreMax
	}
	return score
}
