package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/services"
)

// OrgKeyHeader carries the organization API key on webhook requests
const OrgKeyHeader = "X-Pulsewatch-Key"

// maxWebhookBody caps webhook payloads at 1 MiB
const maxWebhookBody = 1 << 20

// WebhookHandler receives monitoring-tool webhooks and feeds them through
// the correlation pipeline
type WebhookHandler struct {
	db          *gorm.DB
	correlation *services.CorrelationService
	metrics     *metrics.Metrics
	adapters    map[string]alerts.SourceAdapter

	// webhookSecret, when set, is required on every webhook request
	webhookSecret string
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(db *gorm.DB, correlation *services.CorrelationService, m *metrics.Metrics, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{
		db:            db,
		correlation:   correlation,
		metrics:       m,
		adapters:      make(map[string]alerts.SourceAdapter),
		webhookSecret: webhookSecret,
	}
}

// RegisterAdapter registers a source adapter for its source type
func (h *WebhookHandler) RegisterAdapter(adapter alerts.SourceAdapter) {
	h.adapters[adapter.GetSourceType()] = adapter
}

// SetupRoutes sets up webhook routes
func (h *WebhookHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/webhook/", h.handleWebhook)
}

// WebhookResponse is the JSON contract returned to integrators
type WebhookResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	IncidentID       string `json:"incident_id,omitempty"`
	IncidentCreated  bool   `json:"incident_created"`
	IncidentUpdated  bool   `json:"incident_updated"`
	AlertFingerprint string `json:"alert_fingerprint,omitempty"`
}

// handleWebhook handles POST /webhook/{source}
func (h *WebhookHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	source := strings.TrimPrefix(r.URL.Path, "/webhook/")
	source = strings.Trim(source, "/")
	adapter, ok := h.adapters[source]
	if !ok {
		api.RespondError(w, http.StatusNotFound, fmt.Sprintf("Unknown alert source: %s", source))
		return
	}

	org, err := h.resolveOrganization(r)
	if err != nil {
		api.RespondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if err := adapter.ValidateWebhookSecret(r, h.webhookSecret); err != nil {
		log.Printf("Webhook secret validation failed for %s: %v", source, err)
		api.RespondError(w, http.StatusUnauthorized, "Invalid webhook secret")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	canonical, err := adapter.ParsePayload(body)
	if err != nil {
		if h.metrics != nil {
			h.metrics.AlertsRejected.WithLabelValues(source).Inc()
		}
		log.Printf("Failed to parse %s webhook: %v", source, err)
		api.RespondJSON(w, http.StatusBadRequest, WebhookResponse{
			Success: false,
			Message: fmt.Sprintf("malformed payload: %v", err),
		})
		return
	}
	if len(canonical) == 0 {
		api.RespondJSON(w, http.StatusOK, WebhookResponse{
			Success: true,
			Message: "no alerts in payload",
		})
		return
	}

	// Batch payloads (Alertmanager groups) process every alert; the
	// response reflects the last one, which preserves the single-alert
	// contract for every source that sends one alert per request.
	var last *services.ProcessResult
	for i := range canonical {
		result, err := h.correlation.Process(r.Context(), org.ID, &canonical[i])
		if err != nil {
			log.Printf("Failed to process %s alert %q: %v", source, canonical[i].Title, err)
			api.RespondJSON(w, http.StatusInternalServerError, WebhookResponse{
				Success: false,
				Message: "failed to process alert",
			})
			return
		}
		last = result
	}

	api.RespondJSON(w, http.StatusOK, WebhookResponse{
		Success:          true,
		Message:          last.Message,
		IncidentID:       last.IncidentUUID,
		IncidentCreated:  last.IncidentCreated,
		IncidentUpdated:  last.IncidentUpdated,
		AlertFingerprint: last.Fingerprint,
	})
}

// resolveOrganization maps the request to a tenant. The API key header wins;
// without it, a single-organization install falls back to that organization.
func (h *WebhookHandler) resolveOrganization(r *http.Request) (*database.Organization, error) {
	key := r.Header.Get(OrgKeyHeader)
	if key != "" {
		var org database.Organization
		err := h.db.Where("api_key = ?", key).First(&org).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("unknown API key")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve organization: %w", err)
		}
		return &org, nil
	}

	var orgs []database.Organization
	if err := h.db.Limit(2).Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve organization: %w", err)
	}
	switch len(orgs) {
	case 1:
		return &orgs[0], nil
	case 0:
		return nil, fmt.Errorf("no organization configured")
	default:
		return nil, fmt.Errorf("missing %s header", OrgKeyHeader)
	}
}
