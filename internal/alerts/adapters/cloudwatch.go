package adapters

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/database"
)

// CloudWatchAdapter handles AWS CloudWatch alarm notifications, either posted
// directly or wrapped in an SNS notification envelope
type CloudWatchAdapter struct {
	alerts.BaseAdapter
}

// NewCloudWatchAdapter creates a new CloudWatch adapter
func NewCloudWatchAdapter() *CloudWatchAdapter {
	return &CloudWatchAdapter{
		BaseAdapter: alerts.BaseAdapter{SourceType: "cloudwatch"},
	}
}

// SNSEnvelope is the SNS notification wrapper around an alarm message
type SNSEnvelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	TopicArn  string `json:"TopicArn"`
	Subject   string `json:"Subject"`
	Message   string `json:"Message"`
	Timestamp string `json:"Timestamp"`
}

// CloudWatchAlarm represents a CloudWatch alarm state change message
type CloudWatchAlarm struct {
	AlarmName        string `json:"AlarmName"`
	AlarmDescription string `json:"AlarmDescription"`
	AWSAccountID     string `json:"AWSAccountId"`
	NewStateValue    string `json:"NewStateValue"` // OK, ALARM, INSUFFICIENT_DATA
	NewStateReason   string `json:"NewStateReason"`
	OldStateValue    string `json:"OldStateValue"`
	StateChangeTime  string `json:"StateChangeTime"`
	Region           string `json:"Region"`
	AlarmArn         string `json:"AlarmArn"`
	Trigger          struct {
		MetricName string `json:"MetricName"`
		Namespace  string `json:"Namespace"`
		Dimensions []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"Dimensions"`
	} `json:"Trigger"`
}

// ParsePayload parses a CloudWatch alarm payload into a canonical alert
func (a *CloudWatchAdapter) ParsePayload(body []byte) ([]alerts.CanonicalAlert, error) {
	alarmBody := body

	// SNS delivers the alarm as a JSON string inside the notification.
	var envelope SNSEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Type == "Notification" && envelope.Message != "" {
		alarmBody = []byte(envelope.Message)
	}

	var alarm CloudWatchAlarm
	if err := json.Unmarshal(alarmBody, &alarm); err != nil {
		return nil, fmt.Errorf("failed to parse cloudwatch payload: %w", err)
	}
	if alarm.AlarmName == "" {
		return nil, fmt.Errorf("cloudwatch payload missing AlarmName")
	}

	labels := map[string]string{
		"namespace": alarm.Trigger.Namespace,
		"metric":    alarm.Trigger.MetricName,
	}
	var host, service string
	for _, dim := range alarm.Trigger.Dimensions {
		labels[strings.ToLower(dim.Name)] = dim.Value
		switch strings.ToLower(dim.Name) {
		case "instanceid", "host":
			host = dim.Value
		case "servicename", "service":
			service = dim.Value
		}
	}

	alertID := alarm.AlarmArn
	if alertID == "" {
		alertID = alerts.SynthesizeAlertID(a.GetSourceType(), alarm.AlarmName, service, host)
	}

	var startedAt *time.Time
	if t, err := time.Parse("2006-01-02T15:04:05.000-0700", alarm.StateChangeTime); err == nil {
		startedAt = &t
	} else if t, err := time.Parse(time.RFC3339, alarm.StateChangeTime); err == nil {
		startedAt = &t
	}

	rawPayload := map[string]interface{}{
		"AlarmName":       alarm.AlarmName,
		"AWSAccountId":    alarm.AWSAccountID,
		"NewStateValue":   alarm.NewStateValue,
		"NewStateReason":  alarm.NewStateReason,
		"OldStateValue":   alarm.OldStateValue,
		"StateChangeTime": alarm.StateChangeTime,
		"Region":          alarm.Region,
		"AlarmArn":        alarm.AlarmArn,
		"MetricName":      alarm.Trigger.MetricName,
		"Namespace":       alarm.Trigger.Namespace,
	}

	n := alerts.CanonicalAlert{
		AlertID:     alertID,
		ExternalID:  alarm.AlarmArn,
		Source:      a.GetSourceType(),
		Title:       alarm.AlarmName,
		Description: alarm.NewStateReason,
		Severity:    a.mapStateToSeverity(alarm.NewStateValue),
		Status:      a.mapStateToStatus(alarm.NewStateValue),
		ServiceName: service,
		Environment: labels["environment"],
		Host:        host,
		Region:      alarm.Region,
		Labels:      labels,
		StartedAt:   startedAt,
		RawPayload:  rawPayload,
	}
	return []alerts.CanonicalAlert{n}, nil
}

// mapStateToSeverity maps a CloudWatch alarm state to normalized severity
func (a *CloudWatchAdapter) mapStateToSeverity(state string) database.AlertSeverity {
	switch strings.ToUpper(state) {
	case "ALARM":
		return database.AlertSeverityHigh
	case "INSUFFICIENT_DATA":
		return database.AlertSeverityInfo
	case "OK":
		return database.AlertSeverityInfo
	default:
		return database.AlertSeverityWarning
	}
}

// mapStateToStatus maps a CloudWatch alarm state to normalized status
func (a *CloudWatchAdapter) mapStateToStatus(state string) database.AlertStatus {
	if strings.ToUpper(state) == "OK" {
		return database.AlertStatusResolved
	}
	return database.AlertStatusActive
}
