package alerts

import (
	"net/http/httptest"
	"testing"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		input    string
		expected database.AlertSeverity
	}{
		{"critical", database.AlertSeverityCritical},
		{"CRITICAL", database.AlertSeverityCritical},
		{"disaster", database.AlertSeverityCritical},
		{"p1", database.AlertSeverityCritical},
		{"sev1", database.AlertSeverityCritical},
		{"high", database.AlertSeverityHigh},
		{"major", database.AlertSeverityHigh},
		{"error", database.AlertSeverityHigh},
		{"p2", database.AlertSeverityHigh},
		{"warning", database.AlertSeverityWarning},
		{"warn", database.AlertSeverityWarning},
		{"minor", database.AlertSeverityWarning},
		{"p3", database.AlertSeverityWarning},
		{"info", database.AlertSeverityInfo},
		{"informational", database.AlertSeverityInfo},
		{"low", database.AlertSeverityInfo},
		{"p4", database.AlertSeverityInfo},
		{"p5", database.AlertSeverityInfo},
		{"debug", database.AlertSeverityInfo},
		{"  warning  ", database.AlertSeverityWarning},
		{"bogus", database.AlertSeverityWarning},
		{"", database.AlertSeverityWarning},
	}

	for _, tt := range tests {
		if got := NormalizeSeverity(tt.input); got != tt.expected {
			t.Errorf("NormalizeSeverity(%q): expected '%s', got '%s'", tt.input, tt.expected, got)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected database.AlertStatus
	}{
		{"firing", database.AlertStatusActive},
		{"alerting", database.AlertStatusActive},
		{"triggered", database.AlertStatusActive},
		{"problem", database.AlertStatusActive},
		{"ALARM", database.AlertStatusActive},
		{"resolved", database.AlertStatusResolved},
		{"ok", database.AlertStatusResolved},
		{"recovered", database.AlertStatusResolved},
		{"closed", database.AlertStatusResolved},
		{"acknowledged", database.AlertStatusAcknowledged},
		{"ack", database.AlertStatusAcknowledged},
		{"something-else", database.AlertStatusActive},
		{"", database.AlertStatusActive},
	}

	for _, tt := range tests {
		if got := NormalizeStatus(tt.input); got != tt.expected {
			t.Errorf("NormalizeStatus(%q): expected '%s', got '%s'", tt.input, tt.expected, got)
		}
	}
}

func TestBaseAdapter_ValidateWebhookSecret(t *testing.T) {
	adapter := &BaseAdapter{SourceType: "generic"}

	t.Run("NoSecretConfigured", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/webhook/generic", nil)
		if err := adapter.ValidateWebhookSecret(r, ""); err != nil {
			t.Errorf("Expected no error when no secret configured, got %v", err)
		}
	})

	t.Run("MatchingHeader", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/webhook/generic", nil)
		r.Header.Set("X-Webhook-Secret", "s3cret")
		if err := adapter.ValidateWebhookSecret(r, "s3cret"); err != nil {
			t.Errorf("Expected matching secret to validate, got %v", err)
		}
	})

	t.Run("BearerToken", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/webhook/generic", nil)
		r.Header.Set("Authorization", "Bearer s3cret")
		if err := adapter.ValidateWebhookSecret(r, "s3cret"); err != nil {
			t.Errorf("Expected bearer token to validate, got %v", err)
		}
	})

	t.Run("WrongSecret", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/webhook/generic", nil)
		r.Header.Set("X-Webhook-Secret", "wrong")
		if err := adapter.ValidateWebhookSecret(r, "s3cret"); err != ErrInvalidWebhookSecret {
			t.Errorf("Expected ErrInvalidWebhookSecret, got %v", err)
		}
	})

	t.Run("MissingSecret", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/webhook/generic", nil)
		if err := adapter.ValidateWebhookSecret(r, "s3cret"); err != ErrInvalidWebhookSecret {
			t.Errorf("Expected ErrInvalidWebhookSecret, got %v", err)
		}
	})
}

func TestExtractNestedValue(t *testing.T) {
	data := map[string]interface{}{
		"labels": map[string]interface{}{
			"alertname": "HighCPU",
			"nested": map[string]string{
				"deep": "value",
			},
		},
		"count": 3,
	}

	if got := ExtractString(data, "labels.alertname"); got != "HighCPU" {
		t.Errorf("Expected 'HighCPU', got '%s'", got)
	}
	if got := ExtractString(data, "labels.nested.deep"); got != "value" {
		t.Errorf("Expected 'value', got '%s'", got)
	}
	if got := ExtractString(data, "labels.missing"); got != "" {
		t.Errorf("Expected empty string for missing path, got '%s'", got)
	}
	if got := ExtractString(data, "count"); got != "" {
		t.Errorf("Expected empty string for non-string value, got '%s'", got)
	}
	if got := ExtractNestedValue(data, ""); got != nil {
		t.Errorf("Expected nil for empty path, got %v", got)
	}
}
