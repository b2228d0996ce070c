package emergency

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/notification"
)

// EmergencyAlertNotification fans an alert out on every channel through the
// high-priority queue.
type EmergencyAlertNotification struct {
	AlertID   uuid.UUID  `json:"alert_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Severity  string     `json:"severity"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	QueueName string     `json:"queue"`
}

func NewEmergencyAlertNotification(a *EmergencyAlert, queue string) EmergencyAlertNotification {
	return EmergencyAlertNotification{
		AlertID:   a.ID,
		Title:     a.Title,
		Message:   a.Message,
		Severity:  a.Severity,
		ExpiresAt: a.ExpiresAt,
		QueueName: queue,
	}
}

func (EmergencyAlertNotification) Type() string { return "emergency_alert" }

func (n EmergencyAlertNotification) Queue() string { return n.QueueName }

func (EmergencyAlertNotification) Via(notification.Recipient) []notification.Channel {
	return []notification.Channel{
		notification.ChannelMail,
		notification.ChannelSMS,
		notification.ChannelDatabase,
		notification.ChannelPush,
	}
}

func (n EmergencyAlertNotification) subject() string {
	return "[" + strings.ToUpper(n.Severity) + "] Emergency Alert: " + n.Title
}

func (n EmergencyAlertNotification) ToMail(to notification.Recipient) *notification.MailMessage {
	m := notification.NewMail().
		WithSubject(n.subject()).
		WithGreeting("Attention " + to.Name + ",").
		WithLevel(notification.LevelError).
		Line(n.Message)
	if n.ExpiresAt != nil {
		m.Line("This alert is active until " + n.ExpiresAt.UTC().Format(time.RFC1123) + ".")
	}
	return m
}

// maxSMSRunes keeps alerts within two concatenated SMS segments.
const maxSMSRunes = 320

func (n EmergencyAlertNotification) ToSMS(notification.Recipient) string {
	msg := []rune("CareLink ALERT: " + n.Title + ". " + n.Message)
	if len(msg) > maxSMSRunes {
		return string(msg[:maxSMSRunes-3]) + "..."
	}
	return string(msg)
}

func (n EmergencyAlertNotification) ToPush(notification.Recipient) notification.PushMessage {
	return notification.PushMessage{
		Title: n.subject(),
		Body:  n.Message,
		Data: map[string]interface{}{
			"type":     n.Type(),
			"alert_id": n.AlertID.String(),
			"severity": n.Severity,
		},
	}
}

func (n EmergencyAlertNotification) ToDatabase(notification.Recipient) map[string]interface{} {
	data := map[string]interface{}{
		"type":     n.Type(),
		"alert_id": n.AlertID.String(),
		"title":    n.Title,
		"message":  n.Message,
		"severity": n.Severity,
	}
	if n.ExpiresAt != nil {
		data["expires_at"] = n.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return data
}
