package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/database"
)

// PagerDutyAdapter handles PagerDuty v3 webhooks
type PagerDutyAdapter struct {
	alerts.BaseAdapter
}

// NewPagerDutyAdapter creates a new PagerDuty adapter
func NewPagerDutyAdapter() *PagerDutyAdapter {
	return &PagerDutyAdapter{
		BaseAdapter: alerts.BaseAdapter{SourceType: "pagerduty"},
	}
}

// PagerDutyPayload represents the webhook payload from PagerDuty
type PagerDutyPayload struct {
	Event struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"` // incident.triggered, incident.resolved, etc.
		Data      struct {
			ID          string `json:"id"`
			Type        string `json:"type"`
			Title       string `json:"title"`
			Description string `json:"description"`
			Status      string `json:"status"`
			Urgency     string `json:"urgency"`
			HTMLURL     string `json:"html_url"`
			Priority    struct {
				ID      string `json:"id"`
				Summary string `json:"summary"`
			} `json:"priority"`
			Service struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				Summary string `json:"summary"`
			} `json:"service"`
			Source string `json:"source"`
			Body   struct {
				Type    string `json:"type"`
				Details struct {
					Runbook     string `json:"runbook"`
					Environment string `json:"environment"`
				} `json:"details"`
			} `json:"body"`
		} `json:"data"`
	} `json:"event"`
}

// ValidateWebhookSecret validates the PagerDuty webhook signature header
func (a *PagerDutyAdapter) ValidateWebhookSecret(r *http.Request, secret string) error {
	if secret == "" {
		return nil
	}

	signature := r.Header.Get("X-PagerDuty-Signature")
	if signature == "" {
		got := r.Header.Get("Authorization")
		if got == secret || got == "Bearer "+secret {
			return nil
		}
		return fmt.Errorf("missing webhook signature")
	}

	if !strings.HasPrefix(signature, "v1=") {
		return fmt.Errorf("invalid signature format")
	}

	return nil
}

// ParsePayload parses a PagerDuty webhook payload into a canonical alert
func (a *PagerDutyAdapter) ParsePayload(body []byte) ([]alerts.CanonicalAlert, error) {
	var payload PagerDutyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse pagerduty payload: %w", err)
	}

	event := payload.Event
	data := event.Data

	status := database.AlertStatusActive
	switch {
	case strings.Contains(event.EventType, "resolved"):
		status = database.AlertStatusResolved
	case strings.Contains(event.EventType, "acknowledged"):
		status = database.AlertStatusAcknowledged
	}

	title := data.Title
	if title == "" {
		title = data.Description
	}

	alertID := data.ID
	if alertID == "" {
		alertID = event.ID
	}
	if alertID == "" {
		alertID = alerts.SynthesizeAlertID(a.GetSourceType(), title, data.Service.Name, data.Source)
	}

	labels := map[string]string{
		"service_id":   data.Service.ID,
		"service_name": data.Service.Name,
		"urgency":      data.Urgency,
		"priority":     data.Priority.Summary,
	}

	rawPayload := map[string]interface{}{
		"event_id":    event.ID,
		"event_type":  event.EventType,
		"incident_id": data.ID,
		"title":       data.Title,
		"status":      data.Status,
		"urgency":     data.Urgency,
		"priority":    data.Priority.Summary,
		"service":     data.Service.Name,
		"source":      data.Source,
	}

	n := alerts.CanonicalAlert{
		AlertID:      alertID,
		ExternalID:   data.ID,
		Source:       a.GetSourceType(),
		Title:        title,
		Description:  data.Description,
		Severity:     a.mapUrgencyToSeverity(data.Urgency, data.Priority.Summary),
		Status:       status,
		ServiceName:  data.Service.Name,
		Environment:  data.Body.Details.Environment,
		Host:         data.Source,
		Labels:       labels,
		RunbookURL:   data.Body.Details.Runbook,
		DashboardURL: data.HTMLURL,
		RawPayload:   rawPayload,
	}
	return []alerts.CanonicalAlert{n}, nil
}

// mapUrgencyToSeverity maps PagerDuty urgency and priority to severity.
// An explicit priority label wins over urgency.
func (a *PagerDutyAdapter) mapUrgencyToSeverity(urgency, priority string) database.AlertSeverity {
	if priority != "" {
		return alerts.NormalizeSeverity(priority)
	}
	switch strings.ToLower(urgency) {
	case "high":
		return database.AlertSeverityCritical
	case "low":
		return database.AlertSeverityWarning
	default:
		return database.AlertSeverityWarning
	}
}
