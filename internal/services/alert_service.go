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
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/lock"
)

// ErrAlertNotFound is returned when a fingerprint has no alert record
var ErrAlertNotFound = errors.New("alert not found")

// AlertService owns alert persistence: fingerprint deduplication, the alert
// state machine, and the per-delivery event log the flap filter reads.
type AlertService struct {
	db     *gorm.DB
	locker lock.KeyedLocker
}

// NewAlertService creates a new alert service
func NewAlertService(db *gorm.DB, locker lock.KeyedLocker) *AlertService {
	return &AlertService{db: db, locker: locker}
}

// UpsertResult describes what a delivery did to the alert store
type UpsertResult struct {
	Alert   *database.Alert
	Created bool

	// ResolvedUnknown is set when a resolved delivery arrived for a
	// fingerprint with no record; nothing was stored.
	ResolvedUnknown bool
}

// Upsert folds one canonical alert delivery into the store. The work runs
// under the fingerprint's lock so concurrent deliveries of the same alert
// serialize instead of racing the read-modify-write.
func (s *AlertService) Upsert(ctx context.Context, orgID uint, canonical *alerts.CanonicalAlert) (*UpsertResult, error) {
	fingerprint := alerts.Fingerprint(canonical)

	release, err := s.locker.Acquire(ctx, lockKey(orgID, fingerprint))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire fingerprint lock: %w", err)
	}
	defer release()

	now := time.Now().UTC()

	// Every delivery is recorded, whatever happens to the alert row.
	event := &database.AlertEvent{
		OrganizationID: orgID,
		Fingerprint:    fingerprint,
		Status:         canonical.Status,
		ReceivedAt:     now,
	}
	if err := s.db.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to record alert event: %w", err)
	}

	existing, err := s.GetByFingerprint(orgID, fingerprint)
	if err != nil && !errors.Is(err, ErrAlertNotFound) {
		return nil, err
	}

	if existing == nil {
		if canonical.Status == database.AlertStatusResolved {
			// Resolving something we never saw is not an error, just noise.
			log.Printf("Ignoring resolved delivery for unknown fingerprint %s", fingerprint)
			return &UpsertResult{ResolvedUnknown: true}, nil
		}
		alert, err := s.create(orgID, fingerprint, canonical, now)
		if err != nil {
			return nil, err
		}
		return &UpsertResult{Alert: alert, Created: true}, nil
	}

	alert, err := s.update(existing, canonical, now)
	if err != nil {
		return nil, err
	}
	return &UpsertResult{Alert: alert}, nil
}

func (s *AlertService) create(orgID uint, fingerprint string, canonical *alerts.CanonicalAlert, now time.Time) (*database.Alert, error) {
	startedAt := now
	if canonical.StartedAt != nil {
		startedAt = *canonical.StartedAt
	}

	alert := &database.Alert{
		UUID:           uuid.New().String(),
		OrganizationID: orgID,
		ExternalID:     canonical.ExternalID,
		Fingerprint:    fingerprint,
		Title:          canonical.Title,
		Description:    canonical.Description,
		Severity:       canonical.Severity,
		Status:         canonical.Status,
		Source:         canonical.Source,
		ServiceName:    canonical.ServiceName,
		Environment:    canonical.Environment,
		Host:           canonical.Host,
		Region:         canonical.Region,
		RunbookURL:     canonical.RunbookURL,
		Labels:         labelsToJSONB(canonical.Labels),
		RawPayload:     database.JSONB(canonical.RawPayload),
		StartedAt:      startedAt,
		UpdateCount:    1,
	}

	if err := s.db.Create(alert).Error; err != nil {
		// A concurrent delivery may have won the insert despite the lock
		// (e.g. a second instance without shared locking). Fold into the
		// winner's row instead of failing the delivery.
		if isUniqueViolation(err) {
			existing, lookupErr := s.GetByFingerprint(orgID, fingerprint)
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to create alert: %w", err)
			}
			return s.update(existing, canonical, now)
		}
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	return alert, nil
}

// update applies one delivery to an existing alert row, enforcing the alert
// state machine: an active delivery re-fires whatever state the alert is in,
// a resolved delivery closes it, and content fields track the latest payload.
func (s *AlertService) update(alert *database.Alert, canonical *alerts.CanonicalAlert, now time.Time) (*database.Alert, error) {
	alert.Title = canonical.Title
	alert.Description = canonical.Description
	alert.Severity = canonical.Severity
	alert.ServiceName = canonical.ServiceName
	alert.Environment = canonical.Environment
	alert.Host = canonical.Host
	alert.Region = canonical.Region
	if canonical.RunbookURL != "" {
		alert.RunbookURL = canonical.RunbookURL
	}
	alert.Labels = labelsToJSONB(canonical.Labels)
	alert.RawPayload = database.JSONB(canonical.RawPayload)
	alert.UpdateCount++

	switch canonical.Status {
	case database.AlertStatusResolved:
		if alert.Status != database.AlertStatusResolved {
			alert.Status = database.AlertStatusResolved
			endedAt := now
			if canonical.EndedAt != nil {
				endedAt = *canonical.EndedAt
			}
			alert.EndedAt = &endedAt
		}
	case database.AlertStatusAcknowledged:
		if alert.Status == database.AlertStatusActive {
			alert.Status = database.AlertStatusAcknowledged
		}
	default:
		// A re-fire forces the alert back to active from any state.
		alert.Status = database.AlertStatusActive
		alert.EndedAt = nil
		alert.SuppressReason = ""
	}

	if err := s.db.Save(alert).Error; err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	return alert, nil
}

// Acknowledge marks an active alert acknowledged. Already-acknowledged and
// resolved alerts are left untouched.
func (s *AlertService) Acknowledge(alertUUID string) (*database.Alert, error) {
	alert, err := s.GetByUUID(alertUUID)
	if err != nil {
		return nil, err
	}
	if alert.Status != database.AlertStatusActive {
		return alert, nil
	}
	alert.Status = database.AlertStatusAcknowledged
	if err := s.db.Save(alert).Error; err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return alert, nil
}

// Suppress marks an alert suppressed with a reason. Idempotent.
func (s *AlertService) Suppress(alertUUID, reason string) (*database.Alert, error) {
	alert, err := s.GetByUUID(alertUUID)
	if err != nil {
		return nil, err
	}
	if alert.Status == database.AlertStatusSuppressed || alert.Status == database.AlertStatusResolved {
		return alert, nil
	}
	alert.Status = database.AlertStatusSuppressed
	alert.SuppressReason = reason
	if err := s.db.Save(alert).Error; err != nil {
		return nil, fmt.Errorf("failed to suppress alert: %w", err)
	}
	return alert, nil
}

// IsFlapping reports whether the fingerprint has crossed the delivery
// threshold within the trailing window
func (s *AlertService) IsFlapping(orgID uint, fingerprint string, window time.Duration, threshold int) (bool, error) {
	var count int64
	cutoff := time.Now().UTC().Add(-window)
	err := s.db.Model(&database.AlertEvent{}).
		Where("organization_id = ? AND fingerprint = ? AND received_at >= ?", orgID, fingerprint, cutoff).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count alert events: %w", err)
	}
	return count >= int64(threshold), nil
}

// LinkToIncident attaches an alert to an incident and bumps the incident's
// alert counter in one transaction
func (s *AlertService) LinkToIncident(alert *database.Alert, incidentID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&database.Alert{}).Where("id = ?", alert.ID).
			Update("incident_id", incidentID).Error; err != nil {
			return err
		}
		alert.IncidentID = &incidentID
		return tx.Model(&database.Incident{}).Where("id = ?", incidentID).
			Update("alert_count", gorm.Expr("alert_count + 1")).Error
	})
}

// CountActiveForIncident counts the incident's alerts still in active state.
// Acknowledged and suppressed alerts deliberately do not count; auto
// resolution fires once no alert is actively firing.
func (s *AlertService) CountActiveForIncident(incidentID uint) (int64, error) {
	var count int64
	err := s.db.Model(&database.Alert{}).
		Where("incident_id = ? AND status = ?", incidentID, database.AlertStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active alerts: %w", err)
	}
	return count, nil
}

// GetByFingerprint returns the alert for an (org, fingerprint) pair
func (s *AlertService) GetByFingerprint(orgID uint, fingerprint string) (*database.Alert, error) {
	var alert database.Alert
	err := s.db.Where("organization_id = ? AND fingerprint = ?", orgID, fingerprint).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	return &alert, nil
}

// GetByUUID returns an alert by its UUID
func (s *AlertService) GetByUUID(alertUUID string) (*database.Alert, error) {
	var alert database.Alert
	err := s.db.Where("uuid = ?", alertUUID).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	return &alert, nil
}

// List returns alerts for an organization, newest first, with limit/offset
// pagination. A non-empty status filters by alert status.
func (s *AlertService) List(orgID uint, status string, limit, offset int) ([]database.Alert, int64, error) {
	query := s.db.Model(&database.Alert{}).Where("organization_id = ?", orgID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	var list []database.Alert
	err := query.Order("updated_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	return list, total, nil
}

func lockKey(orgID uint, fingerprint string) string {
	return fmt.Sprintf("alert:%d:%s", orgID, fingerprint)
}

func labelsToJSONB(labels map[string]string) database.JSONB {
	if labels == nil {
		return nil
	}
	out := make(database.JSONB, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// isUniqueViolation detects duplicate-key failures across postgres and sqlite
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
