package adapters

import (
	"fmt"
	"testing"
	"time"
)

func TestZabbixParse(t *testing.T) {
	payload := []byte(`{
		"event_time": "2026-03-01 12:30:00",
		"alert_name": "disk_full",
		"priority": "5",
		"metric_name": "vfs.fs.size",
		"metric_value": "96%",
		"host_name": "web-01",
		"event_status": "PROBLEM",
		"event_id": "9001"
	}`)

	inputs, err := NewZabbixAdapter().Parse(payload)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(inputs) != 1 {
		t.Fatalf("got %d inputs, want 1", len(inputs))
	}

	in := inputs[0]
	if in.AssetID != "web-01" || in.Signature != "disk_full" {
		t.Errorf("parsed %s/%s", in.AssetID, in.Signature)
	}
	if in.Severity != "critical" {
		t.Errorf("disaster priority should map to critical, got %s", in.Severity)
	}
	if in.Message != "disk_full (vfs.fs.size = 96%)" {
		t.Errorf("message = %q", in.Message)
	}
	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	if !in.OccurredAt.Equal(want) {
		t.Errorf("occurred at %v, want %v", in.OccurredAt, want)
	}
}

func TestZabbixPriorityMapping(t *testing.T) {
	cases := map[string]string{
		"5": "critical",
		"4": "high",
		"3": "medium",
		"2": "low",
		"1": "low",
		"9": "medium",
		"":  "medium",
	}
	for priority, want := range cases {
		payload := []byte(fmt.Sprintf(
			`{"alert_name": "x", "host_name": "h", "priority": %q, "event_status": "PROBLEM"}`, priority))
		inputs, err := NewZabbixAdapter().Parse(payload)
		if err != nil {
			t.Fatal(err)
		}
		if inputs[0].Severity != want {
			t.Errorf("priority %q mapped to %s, want %s", priority, inputs[0].Severity, want)
		}
	}
}

func TestZabbixRecoverySkipped(t *testing.T) {
	payload := []byte(`{"alert_name": "disk_full", "host_name": "web-01", "event_status": "RESOLVED"}`)
	inputs, err := NewZabbixAdapter().Parse(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 0 {
		t.Error("recovery events must not produce alerts")
	}
}
