package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/slack-go/slack"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// SlackNotifier posts incident lifecycle events to a Slack channel
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier creates a Slack notifier for the given bot token and channel
func NewSlackNotifier(botToken, channel string) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(botToken),
		channel: channel,
	}
}

// Notify posts the event to Slack. Failures are logged, never returned.
func (s *SlackNotifier) Notify(_ context.Context, event Event) {
	message := s.formatMessage(event)
	if message == "" {
		return
	}

	_, _, err := s.client.PostMessage(
		s.channel,
		slack.MsgOptionText(message, false),
	)
	if err != nil {
		log.Printf("Failed to post Slack notification: %v", err)
	}
}

func (s *SlackNotifier) formatMessage(event Event) string {
	incident := event.Incident
	if incident == nil {
		return ""
	}

	emoji := database.GetSeverityEmoji(incident.Severity)

	switch event.Kind {
	case EventIncidentCreated:
		message := fmt.Sprintf(`%s *New Incident: %s*
*Severity:* %s
*Status:* %s`,
			emoji,
			incident.Title,
			incident.Severity,
			incident.Status,
		)
		if event.Context != "" {
			message += fmt.Sprintf("\n*Detail:* %s", event.Context)
		}
		return message

	case EventIncidentAutoResolved:
		return fmt.Sprintf(":white_check_mark: *Incident Resolved: %s*\n%s", incident.Title, event.Context)

	case EventIncidentEscalated:
		return fmt.Sprintf(":rotating_light: *Incident Escalated: %s*\n*Level:* %d\n%s",
			incident.Title, incident.EscalationLevel, event.Context)

	default:
		return ""
	}
}
