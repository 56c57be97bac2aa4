package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList is a JSON-encoded list of strings (incident tags)
type StringList []string

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Contains reports whether the list contains the given string
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// AlertSeverity represents normalized severity levels
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "critical"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityInfo     AlertSeverity = "info"
)

// SeverityRank returns a numeric rank for ordering (critical highest)
func SeverityRank(s AlertSeverity) int {
	switch s {
	case AlertSeverityCritical:
		return 4
	case AlertSeverityHigh:
		return 3
	case AlertSeverityWarning:
		return 2
	case AlertSeverityInfo:
		return 1
	default:
		return 0
	}
}

// AlertStatus represents the lifecycle status of an alert record
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusSuppressed   AlertStatus = "suppressed"
)

// IncidentStatus represents the lifecycle status of an incident
type IncidentStatus string

const (
	IncidentStatusOpen         IncidentStatus = "open"
	IncidentStatusAcknowledged IncidentStatus = "acknowledged"
	IncidentStatusResolved     IncidentStatus = "resolved"
	IncidentStatusClosed       IncidentStatus = "closed"
)

// Organization is a tenant. Webhook requests resolve to an organization via
// its API key; everything the core stores hangs off an organization id.
type Organization struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	APIKey    string    `gorm:"uniqueIndex;size:64;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

// Alert is one deduplicated signal from a monitoring source. There is at most
// one row per (organization, fingerprint); repeated deliveries mutate the row.
type Alert struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	UUID           string `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID uint   `gorm:"not null;uniqueIndex:idx_alerts_org_fingerprint" json:"organization_id"`
	ExternalID     string `gorm:"size:255" json:"external_id"`
	Fingerprint    string `gorm:"size:64;not null;uniqueIndex:idx_alerts_org_fingerprint" json:"fingerprint"`

	Title       string        `gorm:"size:255;not null" json:"title"`
	Description string        `gorm:"type:text" json:"description"`
	Severity    AlertSeverity `gorm:"type:varchar(20);not null" json:"severity"`
	Status      AlertStatus   `gorm:"type:varchar(20);not null;index" json:"status"`

	Source      string `gorm:"type:varchar(50);not null;index" json:"source"`
	ServiceName string `gorm:"size:255" json:"service_name"`
	Environment string `gorm:"size:64" json:"environment"`
	Host        string `gorm:"size:255" json:"host"`
	Region      string `gorm:"size:64" json:"region"`
	RunbookURL  string `gorm:"type:text" json:"runbook_url"`
	Labels      JSONB  `gorm:"type:jsonb" json:"labels"`
	RawPayload  JSONB  `gorm:"type:jsonb" json:"raw_payload"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Set by the correlation engine, never by the alert path itself.
	IncidentID *uint `gorm:"index" json:"incident_id,omitempty"`

	// Number of deliveries folded into this row, including the first.
	UpdateCount int `gorm:"not null;default:1" json:"update_count"`

	SuppressReason string    `gorm:"size:255" json:"suppress_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// IsOpen reports whether the alert still needs attention
func (a *Alert) IsOpen() bool {
	return a.Status == AlertStatusActive || a.Status == AlertStatusAcknowledged
}

// AlertEvent records a single webhook delivery for a fingerprint. The flap
// filter counts these over a trailing window; rows are append-only.
type AlertEvent struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	OrganizationID uint        `gorm:"not null;index:idx_alert_events_org_fp" json:"organization_id"`
	Fingerprint    string      `gorm:"size:64;not null;index:idx_alert_events_org_fp" json:"fingerprint"`
	Status         AlertStatus `gorm:"type:varchar(20);not null" json:"status"`
	ReceivedAt     time.Time   `gorm:"not null;index" json:"received_at"`
}

func (AlertEvent) TableName() string {
	return "alert_events"
}

// Incident is a human-actionable unit of work, 1-to-many with Alert
type Incident struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	UUID           string `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID uint   `gorm:"not null;index" json:"organization_id"`

	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Severity    AlertSeverity  `gorm:"type:varchar(20);not null" json:"severity"`
	Status      IncidentStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Tags        StringList     `gorm:"type:jsonb" json:"tags"`

	CreatedBy      string `gorm:"size:128" json:"created_by"`
	AcknowledgedBy string `gorm:"size:128" json:"acknowledged_by,omitempty"`
	ResolvedBy     string `gorm:"size:128" json:"resolved_by,omitempty"`

	AlertCount int `gorm:"not null;default:0" json:"alert_count"`

	// Escalation state, owned by the escalation scheduler.
	EscalationLevel int        `gorm:"not null;default:0" json:"escalation_level"`
	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Incident) TableName() string {
	return "incidents"
}

// IsOpen reports whether the incident is still active (open or acknowledged)
func (i *Incident) IsOpen() bool {
	return i.Status == IncidentStatusOpen || i.Status == IncidentStatusAcknowledged
}

// MaintenanceWindow silences incident creation for a service/environment
// during a planned time range. Alerts are still recorded.
type MaintenanceWindow struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	ServiceName    string    `gorm:"size:255" json:"service_name"`
	Environment    string    `gorm:"size:64" json:"environment"`
	Reason         string    `gorm:"size:255" json:"reason"`
	StartsAt       time.Time `gorm:"not null" json:"starts_at"`
	EndsAt         time.Time `gorm:"not null" json:"ends_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (MaintenanceWindow) TableName() string {
	return "maintenance_windows"
}

// Covers reports whether the window applies to the given service/environment
// at the given time. An empty service or environment on the window acts as a
// wildcard for that dimension.
func (w *MaintenanceWindow) Covers(service, environment string, at time.Time) bool {
	if at.Before(w.StartsAt) || !at.Before(w.EndsAt) {
		return false
	}
	if w.ServiceName != "" && w.ServiceName != service {
		return false
	}
	if w.Environment != "" && w.Environment != environment {
		return false
	}
	return true
}

// GetSeverityEmoji returns an emoji for the alert severity
func GetSeverityEmoji(severity AlertSeverity) string {
	switch severity {
	case AlertSeverityCritical:
		return ":red_circle:"
	case AlertSeverityHigh:
		return ":large_orange_circle:"
	case AlertSeverityWarning:
		return ":large_yellow_circle:"
	case AlertSeverityInfo:
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}
