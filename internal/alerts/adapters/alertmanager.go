package adapters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
)

// AlertmanagerAdapter handles Prometheus Alertmanager webhooks
type AlertmanagerAdapter struct {
	alerts.BaseAdapter
}

// NewAlertmanagerAdapter creates a new Alertmanager adapter
func NewAlertmanagerAdapter() *AlertmanagerAdapter {
	return &AlertmanagerAdapter{
		BaseAdapter: alerts.BaseAdapter{SourceType: "alertmanager"},
	}
}

// AlertmanagerPayload represents the webhook payload from Alertmanager
type AlertmanagerPayload struct {
	Alerts            []AlertmanagerAlert `json:"alerts"`
	Status            string              `json:"status"`
	GroupLabels       map[string]string   `json:"groupLabels"`
	CommonLabels      map[string]string   `json:"commonLabels"`
	CommonAnnotations map[string]string   `json:"commonAnnotations"`
	ExternalURL       string              `json:"externalURL"`
	Version           string              `json:"version"`
	GroupKey          string              `json:"groupKey"`
}

// AlertmanagerAlert represents a single alert in the payload
type AlertmanagerAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
}

// ParsePayload parses an Alertmanager webhook payload into canonical alerts.
// One webhook carries a whole notification group, so this fans out.
func (a *AlertmanagerAdapter) ParsePayload(body []byte) ([]alerts.CanonicalAlert, error) {
	var payload AlertmanagerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse alertmanager payload: %w", err)
	}

	var canonical []alerts.CanonicalAlert
	for _, alert := range payload.Alerts {
		canonical = append(canonical, a.parseAlert(alert))
	}

	return canonical, nil
}

func (a *AlertmanagerAdapter) parseAlert(alert AlertmanagerAlert) alerts.CanonicalAlert {
	title := alert.Labels["alertname"]
	if title == "" {
		title = "Alertmanager Alert"
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

	description := alert.Annotations["description"]
	if description == "" {
		description = alert.Annotations["summary"]
	}

	var startedAt, endedAt *time.Time
	if !alert.StartsAt.IsZero() {
		t := alert.StartsAt
		startedAt = &t
	}
	if !alert.EndsAt.IsZero() && alert.Status == "resolved" {
		t := alert.EndsAt
		endedAt = &t
	}

	rawPayload := map[string]interface{}{
		"status":       alert.Status,
		"labels":       alert.Labels,
		"annotations":  alert.Annotations,
		"startsAt":     alert.StartsAt.Format(time.RFC3339),
		"endsAt":       alert.EndsAt.Format(time.RFC3339),
		"generatorURL": alert.GeneratorURL,
		"fingerprint":  alert.Fingerprint,
	}

	return alerts.CanonicalAlert{
		AlertID:      alertID,
		ExternalID:   alert.Fingerprint,
		Source:       a.GetSourceType(),
		Title:        title,
		Description:  description,
		Severity:     alerts.NormalizeSeverity(alert.Labels["severity"]),
		Status:       alerts.NormalizeStatus(alert.Status),
		ServiceName:  service,
		Environment:  environment,
		Host:         alert.Labels["instance"],
		Labels:       alert.Labels,
		RunbookURL:   alert.Annotations["runbook_url"],
		DashboardURL: alert.Annotations["dashboard_url"],
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		RawPayload:   rawPayload,
	}
}
