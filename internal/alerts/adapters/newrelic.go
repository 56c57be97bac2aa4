package adapters

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/database"
)

// NewRelicAdapter handles New Relic alert webhooks
type NewRelicAdapter struct {
	alerts.BaseAdapter
}

// NewNewRelicAdapter creates a new New Relic adapter
func NewNewRelicAdapter() *NewRelicAdapter {
	return &NewRelicAdapter{
		BaseAdapter: alerts.BaseAdapter{SourceType: "newrelic"},
	}
}

// NewRelicPayload represents the webhook payload from New Relic workflows
type NewRelicPayload struct {
	ID            string            `json:"id"`
	IssueID       string            `json:"issueId"`
	Title         string            `json:"title"`
	Priority      string            `json:"priority"` // CRITICAL, HIGH, MEDIUM, LOW
	State         string            `json:"state"`    // ACTIVATED, CLOSED, CREATED
	ImpactedEntities []string       `json:"impactedEntities"`
	Labels        map[string]string `json:"labels"`
	PolicyName    string            `json:"policyName"`
	ConditionName string            `json:"conditionName"`
	Details       string            `json:"details"`
	IssueURL      string            `json:"issueUrl"`
	RunbookURL    string            `json:"runbookUrl"`
	CreatedAt     int64             `json:"createdAt"` // epoch millis
	ClosedAt      int64             `json:"closedAt"`
}

// ParsePayload parses a New Relic webhook payload into a canonical alert
func (a *NewRelicAdapter) ParsePayload(body []byte) ([]alerts.CanonicalAlert, error) {
	var payload NewRelicPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse newrelic payload: %w", err)
	}

	title := payload.Title
	if title == "" {
		title = payload.ConditionName
	}
	if title == "" {
		title = "New Relic Alert"
	}

	labels := payload.Labels
	if labels == nil {
		labels = make(map[string]string)
	}

	var host string
	if len(payload.ImpactedEntities) > 0 {
		host = payload.ImpactedEntities[0]
	}
	service := labels["service"]
	if service == "" {
		service = payload.PolicyName
	}

	alertID := payload.IssueID
	if alertID == "" {
		alertID = payload.ID
	}
	if alertID == "" {
		alertID = alerts.SynthesizeAlertID(a.GetSourceType(), title, service, host)
	}

	var startedAt, endedAt *time.Time
	if payload.CreatedAt > 0 {
		t := time.UnixMilli(payload.CreatedAt).UTC()
		startedAt = &t
	}
	if payload.ClosedAt > 0 {
		t := time.UnixMilli(payload.ClosedAt).UTC()
		endedAt = &t
	}

	rawPayload := map[string]interface{}{
		"id":            payload.ID,
		"issueId":       payload.IssueID,
		"title":         payload.Title,
		"priority":      payload.Priority,
		"state":         payload.State,
		"policyName":    payload.PolicyName,
		"conditionName": payload.ConditionName,
		"issueUrl":      payload.IssueURL,
		"createdAt":     payload.CreatedAt,
	}

	n := alerts.CanonicalAlert{
		AlertID:      alertID,
		ExternalID:   payload.IssueID,
		Source:       a.GetSourceType(),
		Title:        title,
		Description:  payload.Details,
		Severity:     a.mapPriorityToSeverity(payload.Priority),
		Status:       a.mapStateToStatus(payload.State),
		ServiceName:  service,
		Environment:  labels["env"],
		Host:         host,
		Labels:       labels,
		RunbookURL:   payload.RunbookURL,
		DashboardURL: payload.IssueURL,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		RawPayload:   rawPayload,
	}
	return []alerts.CanonicalAlert{n}, nil
}

// mapPriorityToSeverity maps New Relic priority to normalized severity
func (a *NewRelicAdapter) mapPriorityToSeverity(priority string) database.AlertSeverity {
	switch strings.ToUpper(priority) {
	case "CRITICAL":
		return database.AlertSeverityCritical
	case "HIGH":
		return database.AlertSeverityHigh
	case "MEDIUM":
		return database.AlertSeverityWarning
	case "LOW":
		return database.AlertSeverityInfo
	default:
		return alerts.NormalizeSeverity(priority)
	}
}

// mapStateToStatus maps New Relic issue state to normalized status
func (a *NewRelicAdapter) mapStateToStatus(state string) database.AlertStatus {
	switch strings.ToUpper(state) {
	case "CLOSED":
		return database.AlertStatusResolved
	case "ACKNOWLEDGED":
		return database.AlertStatusAcknowledged
	default:
		return database.AlertStatusActive
	}
}
