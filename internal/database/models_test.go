package database

import (
	"testing"
)

func TestStringListAddUnique(t *testing.T) {
	var l StringList
	l = l.AddUnique("zabbix")
	l = l.AddUnique("datadog")
	l = l.AddUnique("zabbix")

	if len(l) != 2 {
		t.Fatalf("len = %d, want 2", len(l))
	}
	if !l.Contains("zabbix") || !l.Contains("datadog") {
		t.Error("expected both tools present")
	}
	if l.Contains("pagerduty") {
		t.Error("unexpected member")
	}
}

func TestStringListRoundTrip(t *testing.T) {
	l := StringList{"a", "b"}
	value, err := l.Value()
	if err != nil {
		t.Fatal(err)
	}

	var restored StringList
	if err := restored.Scan(value); err != nil {
		t.Fatal(err)
	}
	if len(restored) != 2 || restored[0] != "a" || restored[1] != "b" {
		t.Errorf("restored = %v", restored)
	}

	var empty StringList
	if err := empty.Scan(nil); err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Error("nil column should scan to an empty list")
	}
}

func TestSeverityRanking(t *testing.T) {
	if MaxSeverity(AlertSeverityLow, AlertSeverityCritical) != AlertSeverityCritical {
		t.Error("critical outranks low")
	}
	if MaxSeverity(AlertSeverityHigh, AlertSeverityMedium) != AlertSeverityHigh {
		t.Error("high outranks medium")
	}
	if MaxSeverity(AlertSeverityHigh, AlertSeverityHigh) != AlertSeverityHigh {
		t.Error("equal severities keep their value")
	}

	if !ValidSeverity(AlertSeverityLow) || !ValidSeverity(AlertSeverityCritical) {
		t.Error("known severities should validate")
	}
	if ValidSeverity("urgent") || ValidSeverity("") {
		t.Error("unknown severities must not validate")
	}
}

func TestEffectiveWindowMinutesClamped(t *testing.T) {
	cases := []struct {
		configured int
		want       int
	}{
		{1, 5},
		{5, 5},
		{10, 10},
		{15, 15},
		{60, 15},
		{0, 5},
	}
	for _, tc := range cases {
		s := TenantSettings{CorrelationWindowMinutes: tc.configured}
		if got := s.EffectiveWindowMinutes(); got != tc.want {
			t.Errorf("EffectiveWindowMinutes(%d) = %d, want %d", tc.configured, got, tc.want)
		}
	}
}

func TestTechnicianHasSkill(t *testing.T) {
	tech := Technician{Skills: StringList{"storage", "network"}}
	if !tech.HasSkill("storage") {
		t.Error("listed skill should match")
	}
	if tech.HasSkill("database") {
		t.Error("unlisted skill must not match")
	}
	if !tech.HasSkill("") {
		t.Error("empty category matches any technician")
	}
}

func TestIncidentIsOpen(t *testing.T) {
	open := []IncidentStatus{
		IncidentStatusNew,
		IncidentStatusDecided,
		IncidentStatusExecuting,
		IncidentStatusAssigned,
	}
	for _, status := range open {
		if !(&Incident{Status: status}).IsOpen() {
			t.Errorf("%s should be open", status)
		}
	}
	for _, status := range []IncidentStatus{IncidentStatusResolved, IncidentStatusEscalated} {
		if (&Incident{Status: status}).IsOpen() {
			t.Errorf("%s should be terminal", status)
		}
	}
}
