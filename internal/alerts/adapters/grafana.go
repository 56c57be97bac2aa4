package adapters

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/database"
)

// GrafanaAdapter handles Grafana alerting webhooks
type GrafanaAdapter struct {
	alerts.BaseAdapter
}

// NewGrafanaAdapter creates a new Grafana adapter
func NewGrafanaAdapter() *GrafanaAdapter {
	return &GrafanaAdapter{
		BaseAdapter: alerts.BaseAdapter{SourceType: "grafana"},
	}
}

// GrafanaPayload represents the webhook payload from Grafana.
// Supports both legacy alerting and Grafana Alerting (unified alerting)
type GrafanaPayload struct {
	// Unified Alerting format
	Receiver string         `json:"receiver"`
	Status   string         `json:"status"`
	Alerts   []GrafanaAlert `json:"alerts"`

	// Legacy alerting format
	RuleName    string `json:"ruleName"`
	State       string `json:"state"`
	Message     string `json:"message"`
	RuleURL     string `json:"ruleUrl"`
	RuleID      int    `json:"ruleId"`
	Title       string `json:"title"`
	OrgID       int    `json:"orgId"`
	DashboardID int    `json:"dashboardId"`
	PanelID     int    `json:"panelId"`
	EvalMatches []struct {
		Value  float64           `json:"value"`
		Metric string            `json:"metric"`
		Tags   map[string]string `json:"tags"`
	} `json:"evalMatches"`
}

// GrafanaAlert represents a single alert in unified alerting
type GrafanaAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     string            `json:"startsAt"`
	EndsAt       string            `json:"endsAt"`
	Fingerprint  string            `json:"fingerprint"`
	GeneratorURL string            `json:"generatorURL"`
	DashboardURL string            `json:"dashboardURL"`
	PanelURL     string            `json:"panelURL"`
}

// ParsePayload parses a Grafana webhook payload into canonical alerts
func (a *GrafanaAdapter) ParsePayload(body []byte) ([]alerts.CanonicalAlert, error) {
	var payload GrafanaPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse grafana payload: %w", err)
	}

	var canonical []alerts.CanonicalAlert

	if len(payload.Alerts) > 0 {
		for _, alert := range payload.Alerts {
			canonical = append(canonical, a.parseUnifiedAlert(alert))
		}
	} else {
		canonical = append(canonical, a.parseLegacyAlert(payload))
	}

	return canonical, nil
}

func (a *GrafanaAdapter) parseUnifiedAlert(alert GrafanaAlert) alerts.CanonicalAlert {
	title := alert.Labels["alertname"]
	if title == "" {
		title = "Grafana Alert"
	}

	service := alert.Labels["service"]
	if service == "" {
		service = alert.Labels["job"]
	}
	environment := alert.Labels["env"]
	if environment == "" {
		environment = alert.Labels["environment"]
	}

	alertID := alert.Fingerprint
	if alertID == "" {
		alertID = alerts.SynthesizeAlertID(a.GetSourceType(), title, service, alert.Labels["instance"])
	}

	dashboardURL := alert.DashboardURL
	if dashboardURL == "" {
		dashboardURL = alert.PanelURL
	}

	startedAt := parseRFC3339(alert.StartsAt)
	var endedAt *time.Time
	if strings.ToLower(alert.Status) == "resolved" {
		endedAt = parseRFC3339(alert.EndsAt)
	}

	rawPayload := map[string]interface{}{
		"status":       alert.Status,
		"labels":       alert.Labels,
		"annotations":  alert.Annotations,
		"startsAt":     alert.StartsAt,
		"endsAt":       alert.EndsAt,
		"fingerprint":  alert.Fingerprint,
		"generatorURL": alert.GeneratorURL,
	}

	return alerts.CanonicalAlert{
		AlertID:      alertID,
		ExternalID:   alert.Fingerprint,
		Source:       a.GetSourceType(),
		Title:        title,
		Description:  alert.Annotations["description"],
		Severity:     alerts.NormalizeSeverity(alert.Labels["severity"]),
		Status:       alerts.NormalizeStatus(alert.Status),
		ServiceName:  service,
		Environment:  environment,
		Host:         alert.Labels["instance"],
		Labels:       alert.Labels,
		RunbookURL:   alert.Annotations["runbook_url"],
		DashboardURL: dashboardURL,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		RawPayload:   rawPayload,
	}
}

func (a *GrafanaAdapter) parseLegacyAlert(payload GrafanaPayload) alerts.CanonicalAlert {
	status := database.AlertStatusActive
	state := strings.ToLower(payload.State)
	if state == "ok" || state == "no_data" || state == "paused" {
		status = database.AlertStatusResolved
	}

	var host string
	labels := make(map[string]string)
	if len(payload.EvalMatches) > 0 {
		match := payload.EvalMatches[0]
		host = match.Tags["instance"]
		for k, v := range match.Tags {
			labels[k] = v
		}
	}

	title := payload.RuleName
	if title == "" {
		title = payload.Title
	}

	alertID := ""
	if payload.RuleID > 0 {
		alertID = fmt.Sprintf("%d", payload.RuleID)
	} else {
		alertID = alerts.SynthesizeAlertID(a.GetSourceType(), title, "", host)
	}

	rawPayload := map[string]interface{}{
		"ruleName":    payload.RuleName,
		"state":       payload.State,
		"message":     payload.Message,
		"ruleUrl":     payload.RuleURL,
		"ruleId":      payload.RuleID,
		"title":       payload.Title,
		"orgId":       payload.OrgID,
		"dashboardId": payload.DashboardID,
		"panelId":     payload.PanelID,
	}

	return alerts.CanonicalAlert{
		AlertID:     alertID,
		ExternalID:  fmt.Sprintf("%d-%d-%d", payload.OrgID, payload.DashboardID, payload.RuleID),
		Source:      a.GetSourceType(),
		Title:       title,
		Description: payload.Message,
		Severity:    a.mapStateToSeverity(payload.State),
		Status:      status,
		ServiceName: labels["service"],
		Environment: labels["env"],
		Host:        host,
		Labels:      labels,
		RunbookURL:  payload.RuleURL,
		RawPayload:  rawPayload,
	}
}

// mapStateToSeverity maps a legacy Grafana state to normalized severity
func (a *GrafanaAdapter) mapStateToSeverity(state string) database.AlertSeverity {
	switch strings.ToLower(state) {
	case "alerting":
		return database.AlertSeverityCritical
	case "pending":
		return database.AlertSeverityWarning
	case "no_data", "ok", "paused":
		return database.AlertSeverityInfo
	default:
		return database.AlertSeverityWarning
	}
}

// parseRFC3339 parses a timestamp, treating Grafana's zero value as absent
func parseRFC3339(s string) *time.Time {
	if s == "" || strings.HasPrefix(s, "0001-01-01") {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
