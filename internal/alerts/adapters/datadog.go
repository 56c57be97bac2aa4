package adapters

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/database"
)

// DatadogAdapter handles Datadog webhooks
type DatadogAdapter struct {
	alerts.BaseAdapter
}

// NewDatadogAdapter creates a new Datadog adapter
func NewDatadogAdapter() *DatadogAdapter {
	return &DatadogAdapter{
		BaseAdapter: alerts.BaseAdapter{SourceType: "datadog"},
	}
}

// DatadogPayload represents the webhook payload from Datadog
type DatadogPayload struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	AlertType   string   `json:"alert_type"` // error, warning, info, success
	EventType   string   `json:"event_type"`
	Priority    string   `json:"priority"` // normal, low
	AlertID     string   `json:"alert_id"`
	AlertTitle  string   `json:"alert_title"`
	AlertStatus string   `json:"alert_status"` // Triggered, Recovered, etc.
	Hostname    string   `json:"hostname"`
	OrgID       string   `json:"org_id"`
	OrgName     string   `json:"org_name"`
	Date        int64    `json:"date"`
	Tags        []string `json:"tags"`
	EventLinks  []struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	} `json:"event_links"`
	AlertCycleKey string `json:"alert_cycle_key"`
	AlertMetric   string `json:"alert_metric"`
	AlertQuery    string `json:"alert_query"`
	AlertScope    string `json:"alert_scope"`
}

// ParsePayload parses a Datadog webhook payload into canonical alerts
func (a *DatadogAdapter) ParsePayload(body []byte) ([]alerts.CanonicalAlert, error) {
	var payload DatadogPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse datadog payload: %w", err)
	}

	labels := a.parseTags(payload.Tags)

	host := payload.Hostname
	if host == "" {
		host = labels["host"]
	}
	service := labels["service"]
	environment := labels["env"]
	if environment == "" {
		environment = labels["environment"]
	}

	// Prefer an explicit runbook link, otherwise take the first event link.
	var runbookURL, dashboardURL string
	for _, link := range payload.EventLinks {
		name := strings.ToLower(link.Name)
		if runbookURL == "" && strings.Contains(name, "runbook") {
			runbookURL = link.URL
		}
		if dashboardURL == "" && strings.Contains(name, "dashboard") {
			dashboardURL = link.URL
		}
	}
	if runbookURL == "" && len(payload.EventLinks) > 0 {
		runbookURL = payload.EventLinks[0].URL
	}

	title := payload.AlertTitle
	if title == "" {
		title = payload.Title
	}

	alertID := payload.AlertID
	if alertID == "" {
		alertID = payload.ID
	}
	if alertID == "" {
		alertID = alerts.SynthesizeAlertID(a.GetSourceType(), title, service, host)
	}

	var startedAt *time.Time
	if payload.Date > 0 {
		t := time.Unix(payload.Date, 0).UTC()
		startedAt = &t
	}

	rawPayload := map[string]interface{}{
		"id":           payload.ID,
		"title":        payload.Title,
		"body":         payload.Body,
		"alert_type":   payload.AlertType,
		"event_type":   payload.EventType,
		"priority":     payload.Priority,
		"alert_id":     payload.AlertID,
		"alert_title":  payload.AlertTitle,
		"alert_status": payload.AlertStatus,
		"hostname":     payload.Hostname,
		"org_name":     payload.OrgName,
		"date":         payload.Date,
		"tags":         payload.Tags,
		"alert_metric": payload.AlertMetric,
		"alert_query":  payload.AlertQuery,
		"alert_scope":  payload.AlertScope,
	}

	n := alerts.CanonicalAlert{
		AlertID:      alertID,
		ExternalID:   payload.AlertCycleKey,
		Source:       a.GetSourceType(),
		Title:        title,
		Description:  payload.Body,
		Severity:     a.mapSeverity(payload.AlertType, payload.Priority),
		Status:       a.mapStatus(payload.AlertStatus),
		ServiceName:  service,
		Environment:  environment,
		Host:         host,
		Labels:       labels,
		RunbookURL:   runbookURL,
		DashboardURL: dashboardURL,
		StartedAt:    startedAt,
		RawPayload:   rawPayload,
	}
	return []alerts.CanonicalAlert{n}, nil
}

// mapSeverity maps Datadog alert_type (falling back to priority) to severity
func (a *DatadogAdapter) mapSeverity(alertType, priority string) database.AlertSeverity {
	switch strings.ToLower(alertType) {
	case "error":
		return database.AlertSeverityHigh
	case "warning":
		return database.AlertSeverityWarning
	case "info", "success":
		return database.AlertSeverityInfo
	}

	switch strings.ToLower(priority) {
	case "normal":
		return database.AlertSeverityWarning
	case "low":
		return database.AlertSeverityInfo
	}

	return alerts.NormalizeSeverity(alertType)
}

// mapStatus maps Datadog alert_status to normalized status
func (a *DatadogAdapter) mapStatus(alertStatus string) database.AlertStatus {
	status := strings.ToLower(alertStatus)
	switch {
	case strings.Contains(status, "recovered"), strings.Contains(status, "resolved"), strings.Contains(status, "ok"):
		return database.AlertStatusResolved
	default:
		return database.AlertStatusActive
	}
}

// parseTags parses a Datadog tags array into a map
func (a *DatadogAdapter) parseTags(tags []string) map[string]string {
	result := make(map[string]string)
	for _, tag := range tags {
		parts := strings.SplitN(tag, ":", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		} else {
			result[tag] = "true"
		}
	}
	return result
}
