package testhelpers

import (
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/database"
)

// CanonicalAlertBuilder builds CanonicalAlert instances for testing
type CanonicalAlertBuilder struct {
	alert alerts.CanonicalAlert
}

// NewAlertBuilder creates a new alert builder with defaults
func NewAlertBuilder() *CanonicalAlertBuilder {
	now := time.Now().UTC()
	return &CanonicalAlertBuilder{
		alert: alerts.CanonicalAlert{
			AlertID:     "test-alert-1",
			Source:      "generic",
			Title:       "Test Alert",
			Description: "Test alert description",
			Severity:    database.AlertSeverityWarning,
			Status:      database.AlertStatusActive,
			ServiceName: "test-service",
			Environment: "staging",
			Labels:      map[string]string{},
			StartedAt:   &now,
		},
	}
}

// WithAlertID sets the source alert id
func (b *CanonicalAlertBuilder) WithAlertID(id string) *CanonicalAlertBuilder {
	b.alert.AlertID = id
	return b
}

// WithSource sets the source type
func (b *CanonicalAlertBuilder) WithSource(source string) *CanonicalAlertBuilder {
	b.alert.Source = source
	return b
}

// WithTitle sets the title
func (b *CanonicalAlertBuilder) WithTitle(title string) *CanonicalAlertBuilder {
	b.alert.Title = title
	return b
}

// WithSeverity sets the severity
func (b *CanonicalAlertBuilder) WithSeverity(severity database.AlertSeverity) *CanonicalAlertBuilder {
	b.alert.Severity = severity
	return b
}

// WithStatus sets the status
func (b *CanonicalAlertBuilder) WithStatus(status database.AlertStatus) *CanonicalAlertBuilder {
	b.alert.Status = status
	return b
}

// WithService sets the service name
func (b *CanonicalAlertBuilder) WithService(service string) *CanonicalAlertBuilder {
	b.alert.ServiceName = service
	return b
}

// WithEnvironment sets the environment
func (b *CanonicalAlertBuilder) WithEnvironment(env string) *CanonicalAlertBuilder {
	b.alert.Environment = env
	return b
}

// WithLabel adds a label
func (b *CanonicalAlertBuilder) WithLabel(key, value string) *CanonicalAlertBuilder {
	b.alert.Labels[key] = value
	return b
}

// Resolved marks the alert as a resolved delivery
func (b *CanonicalAlertBuilder) Resolved() *CanonicalAlertBuilder {
	b.alert.Status = database.AlertStatusResolved
	return b
}

// Build returns the constructed alert
func (b *CanonicalAlertBuilder) Build() alerts.CanonicalAlert {
	return b.alert
}

// IncidentBuilder builds Incident instances for testing
type IncidentBuilder struct {
	incident database.Incident
}

// NewIncidentBuilder creates a new incident builder with defaults
func NewIncidentBuilder() *IncidentBuilder {
	return &IncidentBuilder{
		incident: database.Incident{
			UUID:           uuid.New().String(),
			OrganizationID: 1,
			Title:          "Test Incident",
			Severity:       database.AlertSeverityHigh,
			Status:         database.IncidentStatusOpen,
			CreatedBy:      "test",
		},
	}
}

// WithOrganization sets the organization id
func (b *IncidentBuilder) WithOrganization(orgID uint) *IncidentBuilder {
	b.incident.OrganizationID = orgID
	return b
}

// WithTitle sets the title
func (b *IncidentBuilder) WithTitle(title string) *IncidentBuilder {
	b.incident.Title = title
	return b
}

// WithSeverity sets the severity
func (b *IncidentBuilder) WithSeverity(severity database.AlertSeverity) *IncidentBuilder {
	b.incident.Severity = severity
	return b
}

// WithStatus sets the status
func (b *IncidentBuilder) WithStatus(status database.IncidentStatus) *IncidentBuilder {
	b.incident.Status = status
	return b
}

// WithCreatedAt sets the creation time
func (b *IncidentBuilder) WithCreatedAt(t time.Time) *IncidentBuilder {
	b.incident.CreatedAt = t
	return b
}

// WithEscalationLevel sets the escalation level
func (b *IncidentBuilder) WithEscalationLevel(level int) *IncidentBuilder {
	b.incident.EscalationLevel = level
	return b
}

// Acknowledged marks the incident acknowledged
func (b *IncidentBuilder) Acknowledged() *IncidentBuilder {
	now := time.Now().UTC()
	b.incident.Status = database.IncidentStatusAcknowledged
	b.incident.AcknowledgedAt = &now
	b.incident.AcknowledgedBy = "test"
	return b
}

// Build returns the constructed incident
func (b *IncidentBuilder) Build() database.Incident {
	return b.incident
}
