package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/lock"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/notify"
)

const (
	leaderLockKey = "jobs:escalation"

	// Incidents younger than this never escalate.
	escalationGrace = 10 * time.Minute
)

// EscalationJob periodically raises the escalation level of open,
// unacknowledged incidents. The desired level is a pure function of how long
// the incident has existed, so a missed run catches up instead of
// compounding.
type EscalationJob struct {
	db       *gorm.DB
	notifier notify.Notifier
	locker   lock.KeyedLocker
	metrics  *metrics.Metrics
	interval time.Duration

	// now is swappable for tests
	now func() time.Time
}

// NewEscalationJob creates a new escalation job
func NewEscalationJob(db *gorm.DB, notifier notify.Notifier, locker lock.KeyedLocker, m *metrics.Metrics, interval time.Duration) *EscalationJob {
	return &EscalationJob{
		db:       db,
		notifier: notifier,
		locker:   locker,
		metrics:  m,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DesiredLevel computes the escalation level for an incident of the given
// age: below 10 minutes level 0, then one level per further 10 minutes,
// capped at 3.
func DesiredLevel(elapsed time.Duration) int {
	switch {
	case elapsed < 10*time.Minute:
		return 0
	case elapsed < 20*time.Minute:
		return 1
	case elapsed < 30*time.Minute:
		return 2
	default:
		return 3
	}
}

// Run executes one escalation sweep and returns the UUIDs of incidents whose
// level was raised. A failure on one incident logs and moves on.
func (j *EscalationJob) Run() ([]string, error) {
	now := j.now()
	cutoff := now.Add(-escalationGrace)

	var incidents []database.Incident
	err := j.db.Where("status = ? AND acknowledged_at IS NULL AND created_at <= ?",
		database.IncidentStatusOpen, cutoff).Find(&incidents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents for escalation: %w", err)
	}

	var escalated []string
	for i := range incidents {
		incident := &incidents[i]

		desired := DesiredLevel(now.Sub(incident.CreatedAt))
		if desired <= incident.EscalationLevel {
			continue
		}

		incident.EscalationLevel = desired
		escalatedAt := now
		incident.LastEscalatedAt = &escalatedAt
		if err := j.db.Save(incident).Error; err != nil {
			log.Printf("Failed to escalate incident %s: %v", incident.UUID, err)
			continue
		}

		if j.metrics != nil {
			j.metrics.EscalationsPerformed.Inc()
		}
		j.notifier.Notify(context.Background(), notify.Event{
			Kind:     notify.EventIncidentEscalated,
			Incident: incident,
			Context:  fmt.Sprintf("unacknowledged for %s", now.Sub(incident.CreatedAt).Round(time.Minute)),
		})

		escalated = append(escalated, incident.UUID)
	}

	return escalated, nil
}

// RunWithLeaderLock runs one sweep if this instance can take the leader
// lock, so horizontally scaled deployments escalate (and notify) once per
// interval instead of once per instance.
func (j *EscalationJob) RunWithLeaderLock() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release, ok, err := j.locker.TryAcquire(ctx, leaderLockKey, j.interval)
	if err != nil {
		return nil, fmt.Errorf("leader lock failed: %w", err)
	}
	if !ok {
		log.Println("Escalation sweep skipped, another instance holds the leader lock")
		return nil, nil
	}
	defer release()

	return j.Run()
}

// Start runs the job on its interval until stop is closed
func (j *EscalationJob) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	log.Printf("Escalation scheduler started (interval: %s)", j.interval)

	for {
		select {
		case <-ticker.C:
			escalated, err := j.RunWithLeaderLock()
			if err != nil {
				log.Printf("Escalation job error: %v", err)
			} else if len(escalated) > 0 {
				log.Printf("Escalation job: escalated %d incidents", len(escalated))
			}
		case <-stop:
			log.Println("Escalation scheduler stopped")
			return
		}
	}
}
