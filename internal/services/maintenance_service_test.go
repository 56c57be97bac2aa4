package services

import (
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

func TestMaintenanceService_Create(t *testing.T) {
	svc := NewMaintenanceService(setupTestDB(t))
	now := time.Now().UTC()

	window := &database.MaintenanceWindow{
		OrganizationID: 1,
		ServiceName:    "api",
		Environment:    "prod",
		Reason:         "db migration",
		StartsAt:       now,
		EndsAt:         now.Add(time.Hour),
	}
	if err := svc.Create(window); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if window.ID == 0 {
		t.Error("Expected window ID to be assigned")
	}
}

func TestMaintenanceService_Create_RejectsInvertedInterval(t *testing.T) {
	svc := NewMaintenanceService(setupTestDB(t))
	now := time.Now().UTC()

	window := &database.MaintenanceWindow{
		OrganizationID: 1,
		StartsAt:       now,
		EndsAt:         now.Add(-time.Hour),
	}
	if err := svc.Create(window); err == nil {
		t.Error("Expected error for window ending before it starts")
	}
}

func TestMaintenanceService_ListAndDelete(t *testing.T) {
	svc := NewMaintenanceService(setupTestDB(t))
	now := time.Now().UTC()

	window := &database.MaintenanceWindow{
		OrganizationID: 1,
		ServiceName:    "api",
		StartsAt:       now,
		EndsAt:         now.Add(time.Hour),
	}
	if err := svc.Create(window); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	windows, err := svc.List(1)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("Expected 1 window, got %d", len(windows))
	}

	// Windows are scoped to their organization.
	other, err := svc.List(2)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected 0 windows for another org, got %d", len(other))
	}

	if err := svc.Delete(1, window.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := svc.Delete(1, window.ID); err != ErrWindowNotFound {
		t.Errorf("Expected ErrWindowNotFound on second delete, got %v", err)
	}
}

func TestMaintenanceService_InWindow(t *testing.T) {
	db := setupTestDB(t)
	svc := NewMaintenanceService(db)
	now := time.Now().UTC()

	windows := []database.MaintenanceWindow{
		{OrganizationID: 1, ServiceName: "api", Environment: "prod", StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)},
		{OrganizationID: 1, ServiceName: "", Environment: "staging", StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)},
		{OrganizationID: 1, ServiceName: "batch", Environment: "", StartsAt: now.Add(time.Hour), EndsAt: now.Add(2 * time.Hour)},
	}
	for i := range windows {
		if err := db.Create(&windows[i]).Error; err != nil {
			t.Fatalf("Failed to create window: %v", err)
		}
	}

	tests := []struct {
		name     string
		alert    database.Alert
		expected bool
	}{
		{"exact match", database.Alert{OrganizationID: 1, ServiceName: "api", Environment: "prod"}, true},
		{"wrong environment", database.Alert{OrganizationID: 1, ServiceName: "api", Environment: "staging"}, true}, // staging wildcard window
		{"service wildcard", database.Alert{OrganizationID: 1, ServiceName: "anything", Environment: "staging"}, true},
		{"no match", database.Alert{OrganizationID: 1, ServiceName: "web", Environment: "prod"}, false},
		{"future window not active", database.Alert{OrganizationID: 1, ServiceName: "batch", Environment: "dev"}, false},
		{"other org", database.Alert{OrganizationID: 2, ServiceName: "api", Environment: "prod"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.InWindow(&tt.alert)
			if err != nil {
				t.Fatalf("InWindow returned error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestMaintenanceWindow_Covers(t *testing.T) {
	now := time.Now().UTC()
	window := database.MaintenanceWindow{
		ServiceName: "api",
		Environment: "prod",
		StartsAt:    now.Add(-time.Hour),
		EndsAt:      now.Add(time.Hour),
	}

	if !window.Covers("api", "prod", now) {
		t.Error("Expected window to cover matching service/environment")
	}
	if window.Covers("api", "prod", now.Add(time.Hour)) {
		t.Error("Expected end boundary to be exclusive")
	}
	if !window.Covers("api", "prod", window.StartsAt) {
		t.Error("Expected start boundary to be inclusive")
	}
	if window.Covers("web", "prod", now) {
		t.Error("Expected non-matching service to not be covered")
	}
}
