package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// ErrWindowNotFound is returned when a maintenance window id does not exist
var ErrWindowNotFound = errors.New("maintenance window not found")

// MaintenanceService manages planned maintenance windows
type MaintenanceService struct {
	db *gorm.DB
}

// NewMaintenanceService creates a new maintenance service
func NewMaintenanceService(db *gorm.DB) *MaintenanceService {
	return &MaintenanceService{db: db}
}

// Create stores a new maintenance window
func (s *MaintenanceService) Create(window *database.MaintenanceWindow) error {
	if !window.EndsAt.After(window.StartsAt) {
		return fmt.Errorf("maintenance window must end after it starts")
	}
	if err := s.db.Create(window).Error; err != nil {
		return fmt.Errorf("failed to create maintenance window: %w", err)
	}
	return nil
}

// List returns all windows for an organization, newest first
func (s *MaintenanceService) List(orgID uint) ([]database.MaintenanceWindow, error) {
	var windows []database.MaintenanceWindow
	err := s.db.Where("organization_id = ?", orgID).Order("starts_at DESC").Find(&windows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list maintenance windows: %w", err)
	}
	return windows, nil
}

// Delete removes a window by id
func (s *MaintenanceService) Delete(orgID, windowID uint) error {
	result := s.db.Where("organization_id = ? AND id = ?", orgID, windowID).
		Delete(&database.MaintenanceWindow{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete maintenance window: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWindowNotFound
	}
	return nil
}

// InWindow reports whether the alert's service/environment is covered by a
// maintenance window right now. Delivery time decides, not alert start time.
func (s *MaintenanceService) InWindow(alert *database.Alert) (bool, error) {
	var windows []database.MaintenanceWindow
	now := time.Now().UTC()

	err := s.db.Where("organization_id = ? AND starts_at <= ? AND ends_at > ?",
		alert.OrganizationID, now, now).Find(&windows).Error
	if err != nil {
		return false, fmt.Errorf("failed to query maintenance windows: %w", err)
	}

	for _, w := range windows {
		if w.Covers(alert.ServiceName, alert.Environment, now) {
			return true, nil
		}
	}
	return false, nil
}
