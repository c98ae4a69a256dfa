package services

import (
	"testing"
	"time"

	"github.com/opsrelay/opsrelay/internal/database"
	"github.com/opsrelay/opsrelay/internal/testhelpers"
)

func validInput() AlertInput {
	return AlertInput{
		AssetID:    "web-01",
		AssetName:  "web-01",
		Signature:  "disk_full",
		Severity:   "high",
		Message:    "disk usage above 90%",
		SourceTool: "alertmanager",
		Labels:     map[string]interface{}{"env": "prod"},
		OccurredAt: time.Now(),
	}
}

func TestIngestStoresAlert(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	svc := NewAlertService(db, nil)

	alert, err := svc.Ingest(tenant.ID, validInput())
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if alert.UUID == "" {
		t.Error("alert UUID not assigned")
	}
	if alert.Status != database.AlertStatusActive {
		t.Errorf("status = %s, want active", alert.Status)
	}
	if alert.IncidentID != nil {
		t.Error("ingestion must never correlate inline")
	}

	var reloaded database.Alert
	db.First(&reloaded, alert.ID)
	if reloaded.Labels["env"] != "prod" {
		t.Error("source labels not persisted")
	}
}

func TestIngestRejectsMalformedAlerts(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	svc := NewAlertService(db, nil)

	cases := []struct {
		name   string
		mutate func(*AlertInput)
	}{
		{"missing asset_id", func(in *AlertInput) { in.AssetID = "  " }},
		{"missing signature", func(in *AlertInput) { in.Signature = "" }},
		{"unknown severity", func(in *AlertInput) { in.Severity = "urgent" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if _, err := svc.Ingest(tenant.ID, in); err == nil {
				t.Error("malformed alert should be rejected")
			}
		})
	}

	var count int64
	db.Model(&database.Alert{}).Count(&count)
	if count != 0 {
		t.Errorf("rejected alerts stored: %d rows", count)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	svc := NewAlertService(db, nil)

	alert, err := svc.Ingest(tenant.ID, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.AcknowledgeAlert(alert.UUID); err != nil {
		t.Fatal(err)
	}

	var reloaded database.Alert
	db.First(&reloaded, alert.ID)
	if reloaded.Status != database.AlertStatusAcknowledged {
		t.Errorf("status = %s, want acknowledged", reloaded.Status)
	}
}

func TestListAlertsNewestFirst(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	svc := NewAlertService(db, nil)

	old := validInput()
	old.OccurredAt = time.Now().Add(-time.Hour)
	recent := validInput()

	if _, err := svc.Ingest(tenant.ID, old); err != nil {
		t.Fatal(err)
	}
	newest, err := svc.Ingest(tenant.ID, recent)
	if err != nil {
		t.Fatal(err)
	}

	alerts, err := svc.ListAlerts(tenant.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2", len(alerts))
	}
	if alerts[0].UUID != newest.UUID {
		t.Error("newest alert should be listed first")
	}
}
