package identity

import (
	"fmt"

	"github.com/carelink/carelink/internal/platform/notification"
)

// MFACodeNotification delivers a login code over the user's chosen channel.
// It is sent inline; a queued code could arrive after it expires.
type MFACodeNotification struct {
	Code             string `json:"code"`
	Method           string `json:"method"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

func (MFACodeNotification) Type() string { return "mfa_code" }

func (n MFACodeNotification) Via(notification.Recipient) []notification.Channel {
	if n.Method == MFAMethodSMS {
		return []notification.Channel{notification.ChannelSMS}
	}
	return []notification.Channel{notification.ChannelMail}
}

func (n MFACodeNotification) ToMail(to notification.Recipient) *notification.MailMessage {
	return notification.NewMail().
		WithSubject("Your CareLink verification code").
		WithGreeting("Hello " + to.Name + ",").
		Line("Your verification code is: " + n.Code).
		Line(fmt.Sprintf("This code expires in %d minutes.", n.ExpiresInMinutes)).
		Line("If you did not try to sign in, contact your administrator.")
}

func (n MFACodeNotification) ToSMS(notification.Recipient) string {
	return fmt.Sprintf("CareLink code: %s (expires in %d min)", n.Code, n.ExpiresInMinutes)
}
