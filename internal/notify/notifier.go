package notify

import (
	"context"
	"log"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// EventKind identifies an incident lifecycle transition
type EventKind string

const (
	EventIncidentCreated      EventKind = "incident_created"
	EventIncidentAutoResolved EventKind = "incident_auto_resolved"
	EventIncidentEscalated    EventKind = "incident_escalated"
)

// Event carries an incident lifecycle notification
type Event struct {
	Kind     EventKind
	Incident *database.Incident
	Alert    *database.Alert

	// Context is a short human line, e.g. the resolving alert's title or
	// the escalation level reached
	Context string
}

// Notifier delivers incident lifecycle events. Implementations must not
// block the caller for long and handle their own errors; a failed
// notification never fails the pipeline.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LogNotifier writes events to the application log. It is the default
// notifier and always part of the fan-out.
type LogNotifier struct{}

// Notify logs the event
func (LogNotifier) Notify(_ context.Context, event Event) {
	if event.Incident != nil {
		log.Printf("Incident event %s: [%s] %s (%s)", event.Kind, event.Incident.Severity, event.Incident.Title, event.Context)
		return
	}
	log.Printf("Incident event %s: %s", event.Kind, event.Context)
}

// Multi fans an event out to several notifiers in order
type Multi []Notifier

// Notify delivers the event to every notifier
func (m Multi) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		n.Notify(ctx, event)
	}
}
