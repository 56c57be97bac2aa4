package jobs

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/lock"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/testhelpers"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&database.Incident{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

type recordingNotifier struct {
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	r.events = append(r.events, event)
}

func newTestJob(t *testing.T, db *gorm.DB) (*EscalationJob, *recordingNotifier) {
	t.Helper()
	recorder := &recordingNotifier{}
	job := NewEscalationJob(db, recorder, lock.NewMemoryLocker(), nil, 5*time.Minute)
	return job, recorder
}

func TestDesiredLevel(t *testing.T) {
	tests := []struct {
		elapsed  time.Duration
		expected int
	}{
		{0, 0},
		{5 * time.Minute, 0},
		{10*time.Minute - time.Second, 0},
		{10 * time.Minute, 1},
		{15 * time.Minute, 1},
		{20 * time.Minute, 2},
		{25 * time.Minute, 2},
		{30 * time.Minute, 3},
		{45 * time.Minute, 3},
		{24 * time.Hour, 3},
	}

	for _, tt := range tests {
		if got := DesiredLevel(tt.elapsed); got != tt.expected {
			t.Errorf("DesiredLevel(%v): expected %d, got %d", tt.elapsed, tt.expected, got)
		}
	}
}

func TestEscalationJob_Run(t *testing.T) {
	db := setupTestDB(t)
	job, recorder := newTestJob(t, db)

	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	young := testhelpers.NewIncidentBuilder().WithCreatedAt(now.Add(-5 * time.Minute)).Build()
	quarter := testhelpers.NewIncidentBuilder().WithCreatedAt(now.Add(-15 * time.Minute)).Build()
	half := testhelpers.NewIncidentBuilder().WithCreatedAt(now.Add(-25 * time.Minute)).Build()
	old := testhelpers.NewIncidentBuilder().WithCreatedAt(now.Add(-45 * time.Minute)).Build()

	for _, incident := range []*database.Incident{&young, &quarter, &half, &old} {
		if err := db.Create(incident).Error; err != nil {
			t.Fatalf("Failed to create incident: %v", err)
		}
	}

	escalated, err := job.Run()
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(escalated) != 3 {
		t.Errorf("Expected 3 escalated incidents, got %d", len(escalated))
	}

	expectLevel := func(id uint, level int) {
		var incident database.Incident
		db.First(&incident, id)
		if incident.EscalationLevel != level {
			t.Errorf("Incident %d: expected level %d, got %d", id, level, incident.EscalationLevel)
		}
		if level > 0 && incident.LastEscalatedAt == nil {
			t.Errorf("Incident %d: expected LastEscalatedAt to be set", id)
		}
	}
	expectLevel(young.ID, 0)
	expectLevel(quarter.ID, 1)
	expectLevel(half.ID, 2)
	expectLevel(old.ID, 3)

	if len(recorder.events) != 3 {
		t.Errorf("Expected 3 escalation notifications, got %d", len(recorder.events))
	}
	for _, e := range recorder.events {
		if e.Kind != notify.EventIncidentEscalated {
			t.Errorf("Expected incident_escalated event, got '%s'", e.Kind)
		}
	}
}

func TestEscalationJob_Run_LevelsAreMonotonic(t *testing.T) {
	db := setupTestDB(t)
	job, recorder := newTestJob(t, db)

	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	incident := testhelpers.NewIncidentBuilder().
		WithCreatedAt(now.Add(-45 * time.Minute)).
		WithEscalationLevel(3).
		Build()
	if err := db.Create(&incident).Error; err != nil {
		t.Fatalf("Failed to create incident: %v", err)
	}

	escalated, err := job.Run()
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(escalated) != 0 {
		t.Errorf("Expected no escalations for incident already at level, got %d", len(escalated))
	}
	if len(recorder.events) != 0 {
		t.Errorf("Expected no notifications, got %d", len(recorder.events))
	}
}

func TestEscalationJob_Run_RepeatSweepIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	job, recorder := newTestJob(t, db)

	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	incident := testhelpers.NewIncidentBuilder().
		WithCreatedAt(now.Add(-15 * time.Minute)).
		Build()
	if err := db.Create(&incident).Error; err != nil {
		t.Fatalf("Failed to create incident: %v", err)
	}

	if _, err := job.Run(); err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	escalated, err := job.Run()
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}

	if len(escalated) != 0 {
		t.Errorf("Expected second sweep at the same time to escalate nothing, got %d", len(escalated))
	}
	if len(recorder.events) != 1 {
		t.Errorf("Expected exactly one notification across sweeps, got %d", len(recorder.events))
	}
}

func TestEscalationJob_Run_SkipsAcknowledgedAndResolved(t *testing.T) {
	db := setupTestDB(t)
	job, _ := newTestJob(t, db)

	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	acked := testhelpers.NewIncidentBuilder().
		WithCreatedAt(now.Add(-45 * time.Minute)).
		Acknowledged().
		Build()
	resolved := testhelpers.NewIncidentBuilder().
		WithCreatedAt(now.Add(-45 * time.Minute)).
		WithStatus(database.IncidentStatusResolved).
		Build()
	for _, incident := range []*database.Incident{&acked, &resolved} {
		if err := db.Create(incident).Error; err != nil {
			t.Fatalf("Failed to create incident: %v", err)
		}
	}

	escalated, err := job.Run()
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(escalated) != 0 {
		t.Errorf("Expected no escalations, got %d", len(escalated))
	}
}

func TestEscalationJob_Run_CatchesUpAfterMissedSweeps(t *testing.T) {
	db := setupTestDB(t)
	job, _ := newTestJob(t, db)

	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	// Level 0 incident that is 45 minutes old jumps straight to 3.
	incident := testhelpers.NewIncidentBuilder().
		WithCreatedAt(now.Add(-45 * time.Minute)).
		Build()
	if err := db.Create(&incident).Error; err != nil {
		t.Fatalf("Failed to create incident: %v", err)
	}

	if _, err := job.Run(); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var reloaded database.Incident
	db.First(&reloaded, incident.ID)
	if reloaded.EscalationLevel != 3 {
		t.Errorf("Expected level 3 after catch-up, got %d", reloaded.EscalationLevel)
	}
}

func TestEscalationJob_RunWithLeaderLock(t *testing.T) {
	db := setupTestDB(t)
	job, _ := newTestJob(t, db)

	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	incident := testhelpers.NewIncidentBuilder().
		WithCreatedAt(now.Add(-15 * time.Minute)).
		Build()
	if err := db.Create(&incident).Error; err != nil {
		t.Fatalf("Failed to create incident: %v", err)
	}

	escalated, err := job.RunWithLeaderLock()
	if err != nil {
		t.Fatalf("RunWithLeaderLock returned error: %v", err)
	}
	if len(escalated) != 1 {
		t.Errorf("Expected 1 escalation, got %d", len(escalated))
	}
}

func TestEscalationJob_RunWithLeaderLock_SkipsWhenHeld(t *testing.T) {
	db := setupTestDB(t)

	locker := lock.NewMemoryLocker()
	recorder := &recordingNotifier{}
	job := NewEscalationJob(db, recorder, locker, nil, 5*time.Minute)

	// Another instance holds the leader lock.
	_, ok, err := locker.TryAcquire(context.Background(), leaderLockKey, time.Minute)
	if err != nil || !ok {
		t.Fatalf("Failed to take leader lock: ok=%v err=%v", ok, err)
	}

	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	incident := testhelpers.NewIncidentBuilder().
		WithCreatedAt(now.Add(-15 * time.Minute)).
		Build()
	if err := db.Create(&incident).Error; err != nil {
		t.Fatalf("Failed to create incident: %v", err)
	}

	escalated, err := job.RunWithLeaderLock()
	if err != nil {
		t.Fatalf("RunWithLeaderLock returned error: %v", err)
	}
	if escalated != nil {
		t.Errorf("Expected skipped sweep to escalate nothing, got %v", escalated)
	}

	var reloaded database.Incident
	db.First(&reloaded, incident.ID)
	if reloaded.EscalationLevel != 0 {
		t.Errorf("Expected incident untouched, got level %d", reloaded.EscalationLevel)
	}
}
