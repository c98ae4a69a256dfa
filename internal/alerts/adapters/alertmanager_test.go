package adapters

import (
	"testing"
)

func TestAlertmanagerParseFiringGroup(t *testing.T) {
	payload := []byte(`{
		"status": "firing",
		"alerts": [
			{
				"status": "firing",
				"labels": {"alertname": "disk_full", "instance": "web-01", "severity": "critical"},
				"annotations": {"summary": "disk usage above 95%"},
				"startsAt": "2026-03-01T12:00:00Z"
			},
			{
				"status": "firing",
				"labels": {"alertname": "disk_full", "instance": "web-02", "severity": "warning"},
				"annotations": {"description": "disk usage above 80%"}
			},
			{
				"status": "resolved",
				"labels": {"alertname": "disk_full", "instance": "web-03", "severity": "critical"}
			}
		]
	}`)

	inputs, err := NewAlertmanagerAdapter().Parse(payload)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("got %d inputs, want 2 (resolved alert dropped)", len(inputs))
	}

	first := inputs[0]
	if first.AssetID != "web-01" || first.Signature != "disk_full" {
		t.Errorf("first alert = %s/%s", first.AssetID, first.Signature)
	}
	if first.Severity != "critical" {
		t.Errorf("severity = %s, want critical", first.Severity)
	}
	if first.Message != "disk usage above 95%" {
		t.Errorf("message = %q", first.Message)
	}
	if first.SourceTool != "alertmanager" {
		t.Errorf("source tool = %s", first.SourceTool)
	}
	if first.OccurredAt.IsZero() {
		t.Error("startsAt not carried over")
	}
	if first.Labels["severity"] != "critical" {
		t.Error("source labels should be preserved")
	}

	second := inputs[1]
	if second.Severity != "medium" {
		t.Errorf("warning should normalize to medium, got %s", second.Severity)
	}
	if second.Message != "disk usage above 80%" {
		t.Error("description should back-fill a missing summary")
	}
}

func TestAlertmanagerParseHostLabelFallback(t *testing.T) {
	payload := []byte(`{
		"alerts": [
			{"status": "firing", "labels": {"alertname": "cpu_high", "host": "db-01", "severity": "high"}}
		]
	}`)
	inputs, err := NewAlertmanagerAdapter().Parse(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 1 || inputs[0].AssetID != "db-01" {
		t.Error("host label should back-fill a missing instance")
	}
}

func TestAlertmanagerParseBadJSON(t *testing.T) {
	if _, err := NewAlertmanagerAdapter().Parse([]byte(`{"alerts": [`)); err == nil {
		t.Error("malformed payload should error")
	}
}
