package handlers

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulsewatch/pulsewatch/internal/alerts/adapters"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/lock"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/services"
	"github.com/pulsewatch/pulsewatch/internal/testhelpers"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&database.Organization{},
		&database.Alert{},
		&database.AlertEvent{},
		&database.Incident{},
		&database.MaintenanceWindow{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

type webhookTestEnv struct {
	db          *gorm.DB
	handler     *WebhookHandler
	mux         *http.ServeMux
	correlation *services.CorrelationService
	alertSvc    *services.AlertService
	org         database.Organization
}

func setupWebhookTest(t *testing.T, secret string) *webhookTestEnv {
	t.Helper()

	db := setupTestDB(t)
	org := database.Organization{Name: "test-org", APIKey: "org-key-1"}
	if err := db.Create(&org).Error; err != nil {
		t.Fatalf("Failed to create organization: %v", err)
	}

	alertSvc := services.NewAlertService(db, lock.NewMemoryLocker())
	maintenance := services.NewMaintenanceService(db)
	correlation := services.NewCorrelationService(db, alertSvc, maintenance,
		config.DefaultPolicy(), &notify.LogNotifier{}, nil)

	handler := NewWebhookHandler(db, correlation, nil, secret)
	handler.RegisterAdapter(adapters.NewDatadogAdapter())
	handler.RegisterAdapter(adapters.NewCloudWatchAdapter())
	handler.RegisterAdapter(adapters.NewAlertmanagerAdapter())
	handler.RegisterAdapter(adapters.NewGenericAdapter())

	mux := http.NewServeMux()
	handler.SetupRoutes(mux)

	return &webhookTestEnv{
		db:          db,
		handler:     handler,
		mux:         mux,
		correlation: correlation,
		alertSvc:    alertSvc,
		org:         org,
	}
}

func TestWebhookHandler_DatadogCreatesIncident(t *testing.T) {
	env := setupWebhookTest(t, "")
	payload := testhelpers.LoadFixture(t, "datadog_critical.json")

	var resp WebhookResponse
	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/datadog", bytes.NewReader(payload)).
		Execute(env.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&resp)

	if !resp.Success {
		t.Error("Expected success true")
	}
	if !resp.IncidentCreated {
		t.Error("Expected incident_created true for first delivery")
	}
	if resp.IncidentID == "" {
		t.Error("Expected incident_id in response")
	}
	if resp.AlertFingerprint == "" {
		t.Error("Expected alert_fingerprint in response")
	}

	incident, err := env.correlation.GetIncidentByUUID(resp.IncidentID)
	if err != nil {
		t.Fatalf("GetIncidentByUUID returned error: %v", err)
	}
	if incident.Severity != database.AlertSeverityHigh {
		t.Errorf("Expected incident severity 'high' for datadog error, got '%s'", incident.Severity)
	}
}

func TestWebhookHandler_RedeliveryUpdatesIncident(t *testing.T) {
	env := setupWebhookTest(t, "")
	payload := testhelpers.LoadFixture(t, "datadog_critical.json")

	var first WebhookResponse
	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/datadog", bytes.NewReader(payload)).
		Execute(env.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&first)

	var second WebhookResponse
	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/datadog", bytes.NewReader(payload)).
		Execute(env.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&second)

	if second.IncidentCreated {
		t.Error("Expected incident_created false for redelivery")
	}
	if !second.IncidentUpdated {
		t.Error("Expected incident_updated true for redelivery")
	}
	if second.IncidentID != first.IncidentID {
		t.Error("Expected redelivery to reference the same incident")
	}
	if second.AlertFingerprint != first.AlertFingerprint {
		t.Error("Expected identical fingerprints across deliveries")
	}

	var count int64
	env.db.Model(&database.Incident{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 incident, got %d", count)
	}
}

func TestWebhookHandler_ResolvedUnknownFingerprint(t *testing.T) {
	env := setupWebhookTest(t, "")
	payload := testhelpers.LoadFixture(t, "cloudwatch_ok.json")

	var resp WebhookResponse
	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/cloudwatch", bytes.NewReader(payload)).
		Execute(env.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&resp)

	if !resp.Success {
		t.Error("Expected success true for unknown resolved delivery")
	}
	if resp.IncidentID != "" {
		t.Errorf("Expected empty incident_id, got '%s'", resp.IncidentID)
	}
	if resp.IncidentCreated || resp.IncidentUpdated {
		t.Error("Expected no incident activity")
	}

	var count int64
	env.db.Model(&database.Alert{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected 0 alerts stored, got %d", count)
	}
}

func TestWebhookHandler_AlertmanagerGroup(t *testing.T) {
	env := setupWebhookTest(t, "")
	payload := testhelpers.LoadFixture(t, "alertmanager_group.json")

	var resp WebhookResponse
	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/alertmanager", bytes.NewReader(payload)).
		Execute(env.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&resp)

	if !resp.Success {
		t.Error("Expected success true")
	}

	// Both alerts in the group are stored.
	var count int64
	env.db.Model(&database.Alert{}).Count(&count)
	if count != 2 {
		t.Errorf("Expected 2 alerts from group, got %d", count)
	}
}

func TestWebhookHandler_MalformedPayload(t *testing.T) {
	env := setupWebhookTest(t, "")

	var resp WebhookResponse
	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/datadog", strings.NewReader(`{not json`)).
		Execute(env.mux).
		AssertStatus(http.StatusBadRequest).
		DecodeJSON(&resp)

	if resp.Success {
		t.Error("Expected success false for malformed payload")
	}
}

func TestWebhookHandler_UnknownSource(t *testing.T) {
	env := setupWebhookTest(t, "")

	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/nagios", strings.NewReader(`{}`)).
		Execute(env.mux).
		AssertStatus(http.StatusNotFound)
}

func TestWebhookHandler_MethodNotAllowed(t *testing.T) {
	env := setupWebhookTest(t, "")

	testhelpers.NewHTTPTestContext(t, "GET", "/webhook/datadog", nil).
		Execute(env.mux).
		AssertStatus(http.StatusMethodNotAllowed)
}

func TestWebhookHandler_WebhookSecret(t *testing.T) {
	env := setupWebhookTest(t, "hook-secret")
	payload := testhelpers.LoadFixture(t, "datadog_critical.json")

	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/datadog", bytes.NewReader(payload)).
		Execute(env.mux).
		AssertStatus(http.StatusUnauthorized)

	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/datadog", bytes.NewReader(payload)).
		WithHeader("X-Webhook-Secret", "hook-secret").
		Execute(env.mux).
		AssertStatus(http.StatusOK)
}

func TestWebhookHandler_OrganizationResolution(t *testing.T) {
	env := setupWebhookTest(t, "")
	payload := testhelpers.LoadFixture(t, "datadog_critical.json")

	// Single org install: no header needed.
	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/datadog", bytes.NewReader(payload)).
		Execute(env.mux).
		AssertStatus(http.StatusOK)

	second := database.Organization{Name: "second-org", APIKey: "org-key-2"}
	if err := env.db.Create(&second).Error; err != nil {
		t.Fatalf("Failed to create organization: %v", err)
	}

	// Two orgs: the header becomes mandatory.
	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/datadog", bytes.NewReader(payload)).
		Execute(env.mux).
		AssertStatus(http.StatusUnauthorized)

	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/datadog", bytes.NewReader(payload)).
		WithHeader(OrgKeyHeader, "org-key-2").
		Execute(env.mux).
		AssertStatus(http.StatusOK)

	// The alert lands in the keyed organization.
	var alert database.Alert
	if err := env.db.Where("organization_id = ?", second.ID).First(&alert).Error; err != nil {
		t.Errorf("Expected alert in second organization: %v", err)
	}

	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/datadog", bytes.NewReader(payload)).
		WithHeader(OrgKeyHeader, "bogus-key").
		Execute(env.mux).
		AssertStatus(http.StatusUnauthorized)
}

func TestWebhookHandler_InfoAlertRecordedWithoutIncident(t *testing.T) {
	env := setupWebhookTest(t, "")

	payload := `{"title": "Deploy finished", "severity": "info", "status": "firing", "service": "web", "environment": "staging"}`

	var resp WebhookResponse
	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/generic", strings.NewReader(payload)).
		Execute(env.mux).
		AssertStatus(http.StatusOK).
		DecodeJSON(&resp)

	if !resp.Success {
		t.Error("Expected success true")
	}
	if resp.IncidentCreated {
		t.Error("Expected no incident for info alert outside production")
	}

	var count int64
	env.db.Model(&database.Alert{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected alert to be recorded, got %d", count)
	}
}
