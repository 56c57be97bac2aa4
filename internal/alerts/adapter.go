package alerts

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// ErrInvalidWebhookSecret is returned when a webhook's secret does not match
var ErrInvalidWebhookSecret = errors.New("invalid webhook secret")

// CanonicalAlert is the common alert format all adapters produce
type CanonicalAlert struct {
	AlertID     string
	ExternalID  string
	Source      string
	Title       string
	Description string
	Severity    database.AlertSeverity
	Status      database.AlertStatus

	ServiceName string
	Environment string
	Host        string
	Region      string
	Labels      map[string]string

	RunbookURL   string
	DashboardURL string

	StartedAt *time.Time
	EndedAt   *time.Time

	RawPayload map[string]interface{}
}

// SourceAdapter defines the interface for source-specific alert parsing
type SourceAdapter interface {
	// GetSourceType returns the source type name (e.g., "datadog")
	GetSourceType() string

	// ValidateWebhookSecret validates the incoming webhook against the
	// configured shared secret, if any
	ValidateWebhookSecret(r *http.Request, secret string) error

	// ParsePayload parses the raw request body into canonical alerts.
	// A single webhook can contain multiple alerts (e.g., Alertmanager groups)
	ParsePayload(body []byte) ([]CanonicalAlert, error)
}

// BaseAdapter provides common functionality for all adapters
type BaseAdapter struct {
	SourceType string
}

// GetSourceType returns the source type name
func (b *BaseAdapter) GetSourceType() string {
	return b.SourceType
}

// ValidateWebhookSecret checks the usual secret-bearing headers against the
// configured secret. An empty configured secret allows the request.
func (b *BaseAdapter) ValidateWebhookSecret(r *http.Request, secret string) error {
	if secret == "" {
		return nil
	}

	got := r.Header.Get("X-Webhook-Secret")
	if got == "" {
		got = r.Header.Get("Authorization")
	}
	if got != secret && got != "Bearer "+secret {
		return ErrInvalidWebhookSecret
	}
	return nil
}

// ExtractNestedValue extracts a value using dot notation (e.g., "labels.alertname")
func ExtractNestedValue(data map[string]interface{}, path string) interface{} {
	if path == "" {
		return nil
	}

	parts := strings.Split(path, ".")
	current := interface{}(data)

	for _, part := range parts {
		switch v := current.(type) {
		case map[string]interface{}:
			current = v[part]
		case map[string]string:
			current = v[part]
		default:
			return nil
		}
		if current == nil {
			return nil
		}
	}

	return current
}

// ExtractString extracts a string value using dot notation
func ExtractString(data map[string]interface{}, path string) string {
	val := ExtractNestedValue(data, path)
	if val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// NormalizeSeverity normalizes severity strings to the four standard levels.
// Unknown values fall back to warning so nothing silently disappears.
func NormalizeSeverity(severity string) database.AlertSeverity {
	severity = strings.ToLower(strings.TrimSpace(severity))

	switch severity {
	case "critical":
		return database.AlertSeverityCritical
	case "high":
		return database.AlertSeverityHigh
	case "warning":
		return database.AlertSeverityWarning
	case "info", "informational":
		return database.AlertSeverityInfo
	}

	for normalized, aliases := range DefaultSeverityMapping {
		for _, alias := range aliases {
			if alias == severity {
				switch normalized {
				case "critical":
					return database.AlertSeverityCritical
				case "high":
					return database.AlertSeverityHigh
				case "warning":
					return database.AlertSeverityWarning
				case "info":
					return database.AlertSeverityInfo
				}
			}
		}
	}

	return database.AlertSeverityWarning
}

// NormalizeStatus normalizes status strings to standard values.
// Unknown values mean the alert is live, so they map to active.
func NormalizeStatus(status string) database.AlertStatus {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "firing", "alerting", "triggered", "active", "problem", "alarm", "open":
		return database.AlertStatusActive
	case "resolved", "ok", "recovered", "recovery", "closed", "inactive":
		return database.AlertStatusResolved
	case "acknowledged", "ack":
		return database.AlertStatusAcknowledged
	default:
		return database.AlertStatusActive
	}
}

// DefaultSeverityMapping provides the alias table for common severity values.
// Priority labels map monotonically: P1 critical, P2 high, P3 warning, P4/P5 info.
var DefaultSeverityMapping = map[string][]string{
	"critical": {"critical", "disaster", "p1", "emergency", "fatal", "sev1"},
	"high":     {"high", "major", "p2", "error", "severe", "sev2"},
	"warning":  {"warning", "minor", "p3", "average", "warn", "sev3"},
	"info":     {"info", "informational", "p4", "p5", "low", "notice", "debug", "success", "sev4", "sev5"},
}
