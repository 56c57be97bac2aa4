package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/jobs"
	"github.com/pulsewatch/pulsewatch/internal/middleware"
	"github.com/pulsewatch/pulsewatch/internal/services"
)

// APIHandler serves the management API: incidents, alerts, maintenance
// windows, and the manual escalation trigger
type APIHandler struct {
	alertSvc    *services.AlertService
	correlation *services.CorrelationService
	maintenance *services.MaintenanceService
	escalation  *jobs.EscalationJob
	defaultOrg  uint
}

// NewAPIHandler creates a new API handler. defaultOrg is the organization
// the management API operates on (webhooks carry their own key).
func NewAPIHandler(alertSvc *services.AlertService, correlation *services.CorrelationService, maintenance *services.MaintenanceService, escalation *jobs.EscalationJob, defaultOrg uint) *APIHandler {
	return &APIHandler{
		alertSvc:    alertSvc,
		correlation: correlation,
		maintenance: maintenance,
		escalation:  escalation,
		defaultOrg:  defaultOrg,
	}
}

// SetupRoutes sets up the management API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/incidents", h.handleListIncidents)
	mux.HandleFunc("GET /api/incidents/{uuid}", h.handleGetIncident)
	mux.HandleFunc("POST /api/incidents/{uuid}/acknowledge", h.handleAcknowledgeIncident)
	mux.HandleFunc("POST /api/incidents/{uuid}/resolve", h.handleResolveIncident)
	mux.HandleFunc("POST /api/incidents/{uuid}/reopen", h.handleReopenIncident)

	mux.HandleFunc("GET /api/alerts", h.handleListAlerts)
	mux.HandleFunc("GET /api/alerts/{uuid}", h.handleGetAlert)
	mux.HandleFunc("POST /api/alerts/{uuid}/acknowledge", h.handleAcknowledgeAlert)
	mux.HandleFunc("POST /api/alerts/{uuid}/suppress", h.handleSuppressAlert)

	mux.HandleFunc("GET /api/maintenance-windows", h.handleListWindows)
	mux.HandleFunc("POST /api/maintenance-windows", h.handleCreateWindow)
	mux.HandleFunc("DELETE /api/maintenance-windows/{id}", h.handleDeleteWindow)

	mux.HandleFunc("POST /api/escalations/run", h.handleRunEscalations)
}

// ListResponse wraps paginated list results
type ListResponse struct {
	Data interface{}  `json:"data"`
	Meta api.ListMeta `json:"meta"`
}

func (h *APIHandler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	p := api.ParsePagination(r)
	status := r.URL.Query().Get("status")

	incidents, total, err := h.correlation.ListIncidents(h.defaultOrg, status, p.PerPage, p.Offset())
	if err != nil {
		log.Printf("Failed to list incidents: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list incidents")
		return
	}

	api.RespondJSON(w, http.StatusOK, ListResponse{
		Data: incidents,
		Meta: api.NewListMeta(p, total),
	})
}

func (h *APIHandler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.correlation.GetIncidentByUUID(r.PathValue("uuid"))
	if err != nil {
		h.respondIncidentError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

func (h *APIHandler) handleAcknowledgeIncident(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetUserFromContext(r.Context())
	if actor == "" {
		actor = "api"
	}

	incident, err := h.correlation.AcknowledgeIncident(r.PathValue("uuid"), actor)
	if err != nil {
		h.respondIncidentError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

func (h *APIHandler) handleResolveIncident(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetUserFromContext(r.Context())
	if actor == "" {
		actor = "api"
	}

	incident, err := h.correlation.ResolveIncident(r.PathValue("uuid"), actor)
	if err != nil {
		h.respondIncidentError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

func (h *APIHandler) handleReopenIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.correlation.ReopenIncident(r.PathValue("uuid"))
	if err != nil {
		h.respondIncidentError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

func (h *APIHandler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	p := api.ParsePagination(r)
	status := r.URL.Query().Get("status")

	alertsList, total, err := h.alertSvc.List(h.defaultOrg, status, p.PerPage, p.Offset())
	if err != nil {
		log.Printf("Failed to list alerts: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list alerts")
		return
	}

	api.RespondJSON(w, http.StatusOK, ListResponse{
		Data: alertsList,
		Meta: api.NewListMeta(p, total),
	})
}

func (h *APIHandler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alertSvc.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		h.respondAlertError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, alert)
}

func (h *APIHandler) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alertSvc.Acknowledge(r.PathValue("uuid"))
	if err != nil {
		h.respondAlertError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, alert)
}

// SuppressRequest is the body for alert suppression
type SuppressRequest struct {
	Reason string `json:"reason"`
}

func (h *APIHandler) handleSuppressAlert(w http.ResponseWriter, r *http.Request) {
	var req SuppressRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Reason == "" {
		api.RespondError(w, http.StatusBadRequest, "Suppress reason is required")
		return
	}

	alert, err := h.alertSvc.Suppress(r.PathValue("uuid"), req.Reason)
	if err != nil {
		h.respondAlertError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, alert)
}

func (h *APIHandler) handleListWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := h.maintenance.List(h.defaultOrg)
	if err != nil {
		log.Printf("Failed to list maintenance windows: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list maintenance windows")
		return
	}
	api.RespondJSON(w, http.StatusOK, windows)
}

// CreateWindowRequest is the body for maintenance window creation
type CreateWindowRequest struct {
	ServiceName string    `json:"service_name"`
	Environment string    `json:"environment"`
	Reason      string    `json:"reason"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
}

func (h *APIHandler) handleCreateWindow(w http.ResponseWriter, r *http.Request) {
	var req CreateWindowRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() {
		api.RespondError(w, http.StatusBadRequest, "starts_at and ends_at are required")
		return
	}

	window := &database.MaintenanceWindow{
		OrganizationID: h.defaultOrg,
		ServiceName:    req.ServiceName,
		Environment:    req.Environment,
		Reason:         req.Reason,
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
	}
	if err := h.maintenance.Create(window); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	api.RespondJSON(w, http.StatusCreated, window)
}

func (h *APIHandler) handleDeleteWindow(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid window id")
		return
	}

	if err := h.maintenance.Delete(h.defaultOrg, uint(id)); err != nil {
		if errors.Is(err, services.ErrWindowNotFound) {
			api.RespondError(w, http.StatusNotFound, "Maintenance window not found")
			return
		}
		log.Printf("Failed to delete maintenance window %d: %v", id, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to delete maintenance window")
		return
	}
	api.RespondNoContent(w)
}

// handleRunEscalations triggers one escalation sweep. The sweep is
// idempotent with the timer, so operators can call it freely.
func (h *APIHandler) handleRunEscalations(w http.ResponseWriter, r *http.Request) {
	escalated, err := h.escalation.RunWithLeaderLock()
	if err != nil {
		log.Printf("Manual escalation run failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Escalation run failed")
		return
	}
	if escalated == nil {
		escalated = []string{}
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"escalated": escalated,
	})
}

func (h *APIHandler) respondIncidentError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrIncidentNotFound) {
		api.RespondError(w, http.StatusNotFound, "Incident not found")
		return
	}
	log.Printf("Incident operation failed: %v", err)
	api.RespondError(w, http.StatusInternalServerError, "Incident operation failed")
}

func (h *APIHandler) respondAlertError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrAlertNotFound) {
		api.RespondError(w, http.StatusNotFound, "Alert not found")
		return
	}
	log.Printf("Alert operation failed: %v", err)
	api.RespondError(w, http.StatusInternalServerError, "Alert operation failed")
}
