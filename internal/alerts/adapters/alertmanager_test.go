package adapters

import (
	"testing"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

func TestAlertmanagerAdapter_ParsePayload_Group(t *testing.T) {
	adapter := NewAlertmanagerAdapter()

	payload := []byte(`{
		"version": "4",
		"status": "firing",
		"alerts": [
			{
				"status": "firing",
				"labels": {
					"alertname": "HighCPU",
					"severity": "critical",
					"instance": "web-01:9100",
					"job": "node",
					"env": "production"
				},
				"annotations": {
					"summary": "CPU above 90%",
					"description": "CPU on web-01 has been above 90% for 10 minutes",
					"runbook_url": "https://runbooks.example.com/high-cpu"
				},
				"startsAt": "2024-01-15T10:00:00Z",
				"fingerprint": "am-fp-1"
			},
			{
				"status": "resolved",
				"labels": {
					"alertname": "DiskFull",
					"severity": "warning",
					"instance": "web-02:9100",
					"job": "node"
				},
				"annotations": {
					"description": "Disk usage back to normal"
				},
				"startsAt": "2024-01-15T09:00:00Z",
				"endsAt": "2024-01-15T10:30:00Z",
				"fingerprint": "am-fp-2"
			}
		]
	}`)

	canonical, err := adapter.ParsePayload(payload)
	if err != nil {
		t.Fatalf("ParsePayload returned error: %v", err)
	}

	if len(canonical) != 2 {
		t.Fatalf("Expected 2 alerts from group, got %d", len(canonical))
	}

	first := canonical[0]
	if first.Title != "HighCPU" {
		t.Errorf("Expected Title 'HighCPU', got '%s'", first.Title)
	}
	if first.Severity != database.AlertSeverityCritical {
		t.Errorf("Expected Severity 'critical', got '%s'", first.Severity)
	}
	if first.Status != database.AlertStatusActive {
		t.Errorf("Expected Status 'active', got '%s'", first.Status)
	}
	if first.ServiceName != "node" {
		t.Errorf("Expected ServiceName 'node' (job label), got '%s'", first.ServiceName)
	}
	if first.Environment != "production" {
		t.Errorf("Expected Environment 'production', got '%s'", first.Environment)
	}
	if first.AlertID != "am-fp-1" {
		t.Errorf("Expected AlertID 'am-fp-1', got '%s'", first.AlertID)
	}
	if first.RunbookURL != "https://runbooks.example.com/high-cpu" {
		t.Errorf("Expected RunbookURL, got '%s'", first.RunbookURL)
	}

	second := canonical[1]
	if second.Status != database.AlertStatusResolved {
		t.Errorf("Expected Status 'resolved', got '%s'", second.Status)
	}
	if second.EndedAt == nil {
		t.Error("Expected EndedAt for resolved alert")
	}
}

func TestAlertmanagerAdapter_ParsePayload_EmptyGroup(t *testing.T) {
	adapter := NewAlertmanagerAdapter()

	canonical, err := adapter.ParsePayload([]byte(`{"version": "4", "alerts": []}`))
	if err != nil {
		t.Fatalf("ParsePayload returned error: %v", err)
	}
	if len(canonical) != 0 {
		t.Errorf("Expected 0 alerts, got %d", len(canonical))
	}
}
