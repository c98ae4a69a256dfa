package services

import (
	"math"
	"testing"
	"time"

	"github.com/opsrelay/opsrelay/internal/database"
)

func baseIncident(severity database.AlertSeverity) *database.Incident {
	now := time.Now()
	return &database.Incident{
		Severity:    severity,
		AlertCount:  1,
		ToolSources: database.StringList{"alertmanager"},
		CreatedAt:   now,
	}
}

func TestScoreIncidentBounds(t *testing.T) {
	now := time.Now()

	// Everything maxed: critical severity, critical asset, many
	// duplicates from many tools, zero age
	inc := baseIncident(database.AlertSeverityCritical)
	inc.AlertCount = 500
	inc.ToolSources = database.StringList{"a", "b", "c", "d", "e"}
	if got := ScoreIncident(inc, true, now); got != 100 {
		t.Errorf("maxed-out incident should clamp to 100, got %v", got)
	}

	// Everything minimal: low severity, very old
	old := baseIncident(database.AlertSeverityLow)
	old.CreatedAt = now.Add(-24 * time.Hour)
	got := ScoreIncident(old, false, now)
	if got < 0 || got > 100 {
		t.Errorf("score out of bounds: %v", got)
	}
}

func TestScoreIncidentSeverityMonotonic(t *testing.T) {
	now := time.Now()
	severities := []database.AlertSeverity{
		database.AlertSeverityLow,
		database.AlertSeverityMedium,
		database.AlertSeverityHigh,
		database.AlertSeverityCritical,
	}

	prev := -1.0
	for _, sev := range severities {
		score := ScoreIncident(baseIncident(sev), false, now)
		if score <= prev {
			t.Errorf("severity %s scored %v, not above previous %v", sev, score, prev)
		}
		prev = score
	}
}

func TestScoreIncidentAlertCountMonotonic(t *testing.T) {
	now := time.Now()
	prev := -1.0
	for _, count := range []int{1, 2, 5, 10, 50} {
		inc := baseIncident(database.AlertSeverityMedium)
		inc.AlertCount = count
		score := ScoreIncident(inc, false, now)
		if score < prev {
			t.Errorf("alert count %d scored %v, below previous %v", count, score, prev)
		}
		prev = score
	}
}

func TestScoreIncidentDuplicateFactorCapped(t *testing.T) {
	now := time.Now()
	ten := baseIncident(database.AlertSeverityMedium)
	ten.AlertCount = 20
	huge := baseIncident(database.AlertSeverityMedium)
	huge.AlertCount = 100000

	diff := ScoreIncident(huge, false, now) - ScoreIncident(ten, false, now)
	if diff > scoreDuplicateCap {
		t.Errorf("duplicate factor not capped, diff %v", diff)
	}
}

func TestDuplicateFactorFormula(t *testing.T) {
	if got := duplicateFactor(0); got != 0 {
		t.Errorf("duplicateFactor(0) = %v, want 0", got)
	}
	want := scoreDuplicateScale * math.Log(1+3)
	if got := duplicateFactor(3); math.Abs(got-want) > 1e-9 {
		t.Errorf("duplicateFactor(3) = %v, want %v", got, want)
	}
	if got := duplicateFactor(100000); got != scoreDuplicateCap {
		t.Errorf("duplicateFactor(100000) = %v, want cap %v", got, scoreDuplicateCap)
	}
}

func TestScoreIncidentCriticalAssetBonus(t *testing.T) {
	now := time.Now()
	inc := baseIncident(database.AlertSeverityMedium)

	plain := ScoreIncident(inc, false, now)
	boosted := ScoreIncident(inc, true, now)
	if boosted-plain != scoreCriticalAssetBonus {
		t.Errorf("critical asset bonus = %v, want %v", boosted-plain, scoreCriticalAssetBonus)
	}
}

func TestScoreIncidentAgeDecay(t *testing.T) {
	now := time.Now()
	fresh := baseIncident(database.AlertSeverityHigh)
	stale := baseIncident(database.AlertSeverityHigh)
	stale.CreatedAt = now.Add(-2 * time.Hour)

	if ScoreIncident(stale, false, now) >= ScoreIncident(fresh, false, now) {
		t.Error("stale incident should score below a fresh one")
	}

	// Decay is capped so an ancient critical never drops below a fresh low
	ancient := baseIncident(database.AlertSeverityCritical)
	ancient.CreatedAt = now.Add(-30 * 24 * time.Hour)
	if ScoreIncident(ancient, false, now) <= ScoreIncident(baseIncident(database.AlertSeverityLow), false, now) {
		t.Error("age decay should be capped")
	}
}

func TestCategoryForSignature(t *testing.T) {
	tests := []struct {
		signature string
		want      string
	}{
		{"disk_full", "storage"},
		{"backup_failed", "storage"},
		{"cpu_high", "performance"},
		{"memory_leak", "performance"},
		{"net_unreachable", "network"},
		{"dns_timeout", "network"},
		{"http_5xx", "availability"},
		{"service_down", "availability"},
		{"cert_expiring", "security"},
		{"auth_failures", "security"},
		{"something_else", "general"},
		{"DISK_FULL", "storage"},
	}
	for _, tt := range tests {
		if got := CategoryForSignature(tt.signature); got != tt.want {
			t.Errorf("CategoryForSignature(%q) = %q, want %q", tt.signature, got, tt.want)
		}
	}
}
