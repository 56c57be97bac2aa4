package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/notify"
)

// ErrIncidentNotFound is returned when an incident UUID does not exist
var ErrIncidentNotFound = errors.New("incident not found")

// CorrelationService turns alert deliveries into incident lifecycle changes.
// It owns the should-create-incident policy, incident creation, attachment
// of repeat alerts, and derived auto-resolution.
type CorrelationService struct {
	db          *gorm.DB
	alertSvc    *AlertService
	maintenance *MaintenanceService
	policy      *config.Policy
	notifier    notify.Notifier
	metrics     *metrics.Metrics
}

// NewCorrelationService creates a new correlation service
func NewCorrelationService(db *gorm.DB, alertSvc *AlertService, maintenance *MaintenanceService, policy *config.Policy, notifier notify.Notifier, m *metrics.Metrics) *CorrelationService {
	return &CorrelationService{
		db:          db,
		alertSvc:    alertSvc,
		maintenance: maintenance,
		policy:      policy,
		notifier:    notifier,
		metrics:     m,
	}
}

// ProcessResult describes the outcome of one delivery for the webhook response
type ProcessResult struct {
	Fingerprint     string
	Message         string
	IncidentUUID    string
	IncidentCreated bool
	IncidentUpdated bool
}

// Process runs one canonical alert through the full pipeline: persist the
// delivery, then decide what it means for incidents. Incident-side failures
// degrade to "alert recorded, no incident" and never undo the alert write.
func (s *CorrelationService) Process(ctx context.Context, orgID uint, canonical *alerts.CanonicalAlert) (*ProcessResult, error) {
	result := &ProcessResult{Fingerprint: alerts.Fingerprint(canonical)}

	upsert, err := s.alertSvc.Upsert(ctx, orgID, canonical)
	if err != nil {
		return nil, err
	}

	if upsert.ResolvedUnknown {
		result.Message = "resolved delivery for unknown alert ignored"
		return result, nil
	}

	alert := upsert.Alert
	if s.metrics != nil {
		s.metrics.AlertsIngested.WithLabelValues(alert.Source, string(alert.Severity)).Inc()
	}

	if alert.Status == database.AlertStatusResolved {
		s.handleResolved(ctx, alert)
		result.Message = "alert resolved"
		result.IncidentUUID = s.incidentUUIDFor(alert)
		result.IncidentUpdated = result.IncidentUUID != ""
		return result, nil
	}

	// Updates to an alert already attached to an incident never re-run the
	// creation policy; the incident is updated in place.
	if !upsert.Created && alert.IncidentID != nil {
		result.Message = "alert updated"
		result.IncidentUUID = s.incidentUUIDFor(alert)
		result.IncidentUpdated = true
		return result, nil
	}

	create, reason := s.shouldCreateIncident(alert)
	if !create {
		result.Message = reason
		return result, nil
	}

	incident, created, err := s.createOrAttach(ctx, alert)
	if err != nil {
		// The alert is committed; record the miss and answer success.
		log.Printf("Incident creation failed for alert %s: %v", alert.UUID, err)
		result.Message = "alert recorded, incident creation failed"
		return result, nil
	}

	result.IncidentUUID = incident.UUID
	result.IncidentCreated = created
	result.IncidentUpdated = !created
	if created {
		result.Message = "incident created"
	} else {
		result.Message = "alert attached to existing incident"
	}
	return result, nil
}

// shouldCreateIncident applies the creation policy to a newly firing alert.
// Suppression checks run first and win over every severity rule, including
// critical.
func (s *CorrelationService) shouldCreateIncident(alert *database.Alert) (bool, string) {
	flapping, err := s.alertSvc.IsFlapping(alert.OrganizationID, alert.Fingerprint, s.policy.FlapWindow(), s.policy.FlapThreshold)
	if err != nil {
		log.Printf("Flap check failed for %s: %v", alert.Fingerprint, err)
	} else if flapping {
		if s.metrics != nil {
			s.metrics.FlapSuppressions.Inc()
		}
		return false, "alert is flapping, incident suppressed"
	}

	inWindow, err := s.maintenance.InWindow(alert)
	if err != nil {
		log.Printf("Maintenance check failed for %s: %v", alert.Fingerprint, err)
	} else if inWindow {
		if s.metrics != nil {
			s.metrics.MaintenanceSuppressed.Inc()
		}
		return false, "service in maintenance window, incident suppressed"
	}

	isProd := s.policy.IsProduction(alert.Environment)

	switch alert.Severity {
	case database.AlertSeverityCritical:
		return true, ""
	case database.AlertSeverityHigh:
		return true, ""
	case database.AlertSeverityWarning:
		return true, ""
	case database.AlertSeverityInfo:
		if isProd && s.policy.IsCriticalService(alert.ServiceName) {
			return true, ""
		}
		return false, "info alert below incident threshold"
	default:
		return false, "unknown severity"
	}
}

// createOrAttach opens an incident for the alert, or attaches to one that a
// concurrent delivery created first. The incident_id check makes a double
// invocation for the same fingerprint safe.
func (s *CorrelationService) createOrAttach(ctx context.Context, alert *database.Alert) (*database.Incident, bool, error) {
	// Re-read in case a concurrent delivery already linked this alert.
	current, err := s.alertSvc.GetByFingerprint(alert.OrganizationID, alert.Fingerprint)
	if err == nil && current.IncidentID != nil {
		incident, err := s.GetIncidentByID(*current.IncidentID)
		if err != nil {
			return nil, false, err
		}
		return incident, false, nil
	}

	incident := s.buildIncident(alert)
	if err := s.db.Create(incident).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create incident: %w", err)
	}

	if err := s.alertSvc.LinkToIncident(alert, incident.ID); err != nil {
		return nil, false, fmt.Errorf("failed to link alert to incident: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncidentsCreated.Inc()
	}
	s.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventIncidentCreated,
		Incident: incident,
		Alert:    alert,
		Context:  fmt.Sprintf("from %s alert %s", alert.Source, alert.Title),
	})

	return incident, true, nil
}

// buildIncident assembles the incident record from the triggering alert
func (s *CorrelationService) buildIncident(alert *database.Alert) *database.Incident {
	title := fmt.Sprintf("[%s] %s", alert.Source, alert.Title)

	var desc strings.Builder
	if alert.Description != "" {
		desc.WriteString(alert.Description)
		desc.WriteString("\n\n")
	}
	desc.WriteString("Technical context:\n")
	if alert.ServiceName != "" {
		fmt.Fprintf(&desc, "- Service: %s\n", alert.ServiceName)
	}
	if alert.Environment != "" {
		fmt.Fprintf(&desc, "- Environment: %s\n", alert.Environment)
	}
	if alert.Region != "" {
		fmt.Fprintf(&desc, "- Region: %s\n", alert.Region)
	}
	if alert.Host != "" {
		fmt.Fprintf(&desc, "- Host: %s\n", alert.Host)
	}
	if alert.RunbookURL != "" {
		fmt.Fprintf(&desc, "- Runbook: %s\n", alert.RunbookURL)
	}

	tags := database.StringList{
		"source:" + alert.Source,
		"alert_id:" + alert.UUID,
		"severity:" + string(alert.Severity),
	}
	for k, v := range alert.Labels {
		if sv, ok := v.(string); ok {
			tags = append(tags, k+":"+sv)
		}
	}

	return &database.Incident{
		UUID:           uuid.New().String(),
		OrganizationID: alert.OrganizationID,
		Title:          title,
		Description:    desc.String(),
		Severity:       alert.Severity,
		Status:         database.IncidentStatusOpen,
		Tags:           tags,
		CreatedBy:      "correlation-engine",
	}
}

// handleResolved performs derived auto-resolution: when the resolving alert
// was the incident's last active one, the incident resolves with it.
func (s *CorrelationService) handleResolved(ctx context.Context, alert *database.Alert) {
	if alert.IncidentID == nil {
		return
	}

	active, err := s.alertSvc.CountActiveForIncident(*alert.IncidentID)
	if err != nil {
		log.Printf("Auto-resolution check failed for incident %d: %v", *alert.IncidentID, err)
		return
	}
	if active > 0 {
		return
	}

	incident, err := s.GetIncidentByID(*alert.IncidentID)
	if err != nil {
		log.Printf("Auto-resolution load failed for incident %d: %v", *alert.IncidentID, err)
		return
	}
	if !incident.IsOpen() {
		return
	}

	now := time.Now().UTC()
	incident.Status = database.IncidentStatusResolved
	incident.ResolvedAt = &now
	incident.ResolvedBy = "auto-resolution"
	if err := s.db.Save(incident).Error; err != nil {
		log.Printf("Auto-resolution save failed for incident %d: %v", incident.ID, err)
		return
	}

	if s.metrics != nil {
		s.metrics.IncidentsAutoResolved.Inc()
	}
	s.notifier.Notify(ctx, notify.Event{
		Kind:     notify.EventIncidentAutoResolved,
		Incident: incident,
		Alert:    alert,
		Context:  fmt.Sprintf("last active alert resolved: %s", alert.Title),
	})
}

// AcknowledgeIncident marks an open incident acknowledged by a user
func (s *CorrelationService) AcknowledgeIncident(incidentUUID, actor string) (*database.Incident, error) {
	incident, err := s.GetIncidentByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	if incident.Status != database.IncidentStatusOpen {
		return incident, nil
	}

	now := time.Now().UTC()
	incident.Status = database.IncidentStatusAcknowledged
	incident.AcknowledgedAt = &now
	incident.AcknowledgedBy = actor
	if err := s.db.Save(incident).Error; err != nil {
		return nil, fmt.Errorf("failed to acknowledge incident: %w", err)
	}
	return incident, nil
}

// ResolveIncident resolves an incident on behalf of a user
func (s *CorrelationService) ResolveIncident(incidentUUID, actor string) (*database.Incident, error) {
	incident, err := s.GetIncidentByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	if !incident.IsOpen() {
		return incident, nil
	}

	now := time.Now().UTC()
	incident.Status = database.IncidentStatusResolved
	incident.ResolvedAt = &now
	incident.ResolvedBy = actor
	if err := s.db.Save(incident).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve incident: %w", err)
	}
	return incident, nil
}

// ReopenIncident puts a resolved incident back to open
func (s *CorrelationService) ReopenIncident(incidentUUID string) (*database.Incident, error) {
	incident, err := s.GetIncidentByUUID(incidentUUID)
	if err != nil {
		return nil, err
	}
	if incident.IsOpen() {
		return incident, nil
	}

	incident.Status = database.IncidentStatusOpen
	incident.ResolvedAt = nil
	incident.ResolvedBy = ""
	if err := s.db.Save(incident).Error; err != nil {
		return nil, fmt.Errorf("failed to reopen incident: %w", err)
	}
	return incident, nil
}

// GetIncidentByUUID returns an incident by UUID
func (s *CorrelationService) GetIncidentByUUID(incidentUUID string) (*database.Incident, error) {
	var incident database.Incident
	err := s.db.Where("uuid = ?", incidentUUID).First(&incident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load incident: %w", err)
	}
	return &incident, nil
}

// GetIncidentByID returns an incident by primary key
func (s *CorrelationService) GetIncidentByID(id uint) (*database.Incident, error) {
	var incident database.Incident
	err := s.db.First(&incident, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load incident: %w", err)
	}
	return &incident, nil
}

// ListIncidents returns incidents for an organization, newest first, with
// limit/offset pagination. A non-empty status filters by incident status.
func (s *CorrelationService) ListIncidents(orgID uint, status string, limit, offset int) ([]database.Incident, int64, error) {
	query := s.db.Model(&database.Incident{}).Where("organization_id = ?", orgID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	var list []database.Incident
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	return list, total, nil
}

func (s *CorrelationService) incidentUUIDFor(alert *database.Alert) string {
	if alert.IncidentID == nil {
		return ""
	}
	incident, err := s.GetIncidentByID(*alert.IncidentID)
	if err != nil {
		return ""
	}
	return incident.UUID
}
