package adapters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
)

// GenericAdapter handles webhooks from tools without a dedicated adapter.
// The payload is a flat JSON document with well-known field names; anything
// missing gets a sensible default rather than a rejection.
type GenericAdapter struct {
	alerts.BaseAdapter
}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{
		BaseAdapter: alerts.BaseAdapter{SourceType: "generic"},
	}
}

// GenericPayload represents the documented generic webhook format
type GenericPayload struct {
	AlertID     string            `json:"alert_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Severity    string            `json:"severity"`
	Status      string            `json:"status"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Host        string            `json:"host"`
	Region      string            `json:"region"`
	RunbookURL  string            `json:"runbook_url"`
	Labels      map[string]string `json:"labels"`
	StartedAt   string            `json:"started_at"`
}

// ParsePayload parses a generic webhook payload into a canonical alert
func (a *GenericAdapter) ParsePayload(body []byte) ([]alerts.CanonicalAlert, error) {
	var payload GenericPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse generic payload: %w", err)
	}

	title := payload.Title
	if title == "" {
		title = "Untitled Alert"
	}

	alertID := payload.AlertID
	if alertID == "" {
		alertID = alerts.SynthesizeAlertID(a.GetSourceType(), title, payload.Service, payload.Host)
	}

	var startedAt *time.Time
	if payload.StartedAt != "" {
		if t, err := time.Parse(time.RFC3339, payload.StartedAt); err == nil {
			startedAt = &t
		}
	}

	var rawPayload map[string]interface{}
	if err := json.Unmarshal(body, &rawPayload); err != nil {
		rawPayload = map[string]interface{}{}
	}

	n := alerts.CanonicalAlert{
		AlertID:     alertID,
		Source:      a.GetSourceType(),
		Title:       title,
		Description: payload.Description,
		Severity:    alerts.NormalizeSeverity(payload.Severity),
		Status:      alerts.NormalizeStatus(payload.Status),
		ServiceName: payload.Service,
		Environment: payload.Environment,
		Host:        payload.Host,
		Region:      payload.Region,
		Labels:      payload.Labels,
		RunbookURL:  payload.RunbookURL,
		StartedAt:   startedAt,
		RawPayload:  rawPayload,
	}
	return []alerts.CanonicalAlert{n}, nil
}
