package referral

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/notification"
)

// ReferralAssigned tells a clinician a referral is theirs. It is not sent by
// SMS.
type ReferralAssigned struct {
	ReferralID    uuid.UUID `json:"referral_id"`
	PatientName   string    `json:"patient_name"`
	Priority      string    `json:"priority"`
	Reason        string    `json:"reason"`
	ClinicalNotes string    `json:"clinical_notes,omitempty"`
	ActionURL     string    `json:"action_url"`
}

func NewReferralAssigned(r *Referral, appURL string) ReferralAssigned {
	ev := ReferralAssigned{
		ReferralID:  r.ID,
		PatientName: r.PatientName,
		Priority:    r.Priority,
		Reason:      r.Reason,
		ActionURL:   strings.TrimRight(appURL, "/") + "/referrals/" + r.ID.String(),
	}
	if r.ClinicalNotes != nil {
		ev.ClinicalNotes = *r.ClinicalNotes
	}
	return ev
}

func (ReferralAssigned) Type() string { return "referral_assigned" }

func (ReferralAssigned) Queue() string { return "" }

func (ReferralAssigned) Via(notification.Recipient) []notification.Channel {
	return []notification.Channel{notification.ChannelMail, notification.ChannelDatabase}
}

func (n ReferralAssigned) ToMail(to notification.Recipient) *notification.MailMessage {
	m := notification.NewMail().
		WithSubject(fmt.Sprintf("New Referral Assigned (%s priority)", n.Priority)).
		WithGreeting("Hello " + to.Name + ",").
		Line("A referral for " + n.PatientName + " has been assigned to you.").
		Line("Priority: " + n.Priority).
		Line("Reason: " + n.Reason)
	if n.ClinicalNotes != "" {
		m.Line("Clinical notes: " + n.ClinicalNotes)
	}
	if n.Priority == PriorityUrgent {
		m.WithLevel(notification.LevelError)
	}
	return m.Action("Open Referral", n.ActionURL)
}

func (n ReferralAssigned) ToDatabase(notification.Recipient) map[string]interface{} {
	return map[string]interface{}{
		"type":           n.Type(),
		"referral_id":    n.ReferralID.String(),
		"patient_name":   n.PatientName,
		"priority":       n.Priority,
		"reason":         n.Reason,
		"clinical_notes": n.ClinicalNotes,
		"message":        "Referral for " + n.PatientName + " assigned to you",
		"action_url":     n.ActionURL,
	}
}

// AppointmentConfirmation is sent to the patient's contact details.
type AppointmentConfirmation struct {
	ReferralID    uuid.UUID `json:"referral_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientName   string    `json:"patient_name"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Location      string    `json:"location"`
	Notes         string    `json:"notes,omitempty"`
}

func NewAppointmentConfirmation(r *Referral, a *Appointment) AppointmentConfirmation {
	ev := AppointmentConfirmation{
		ReferralID:    r.ID,
		AppointmentID: a.ID,
		PatientName:   r.PatientName,
		ScheduledAt:   a.ScheduledAt,
		Location:      a.Location,
	}
	if a.Notes != nil {
		ev.Notes = *a.Notes
	}
	return ev
}

// PatientRecipient addresses the patient contact stored on r.
func PatientRecipient(r *Referral) notification.Recipient {
	to := notification.Recipient{ID: r.ID, Name: r.PatientName}
	if r.PatientEmail != nil {
		to.Email = *r.PatientEmail
	}
	if r.PatientPhone != nil {
		to.Phone = *r.PatientPhone
	}
	return to
}

const appointmentTimeLayout = "Mon 02 Jan 2006, 15:04 MST"

func (AppointmentConfirmation) Type() string { return "appointment_confirmation" }

func (AppointmentConfirmation) Queue() string { return "" }

// Via skips channels the patient has no contact for.
func (AppointmentConfirmation) Via(to notification.Recipient) []notification.Channel {
	var out []notification.Channel
	if to.Email != "" {
		out = append(out, notification.ChannelMail)
	}
	if to.Phone != "" {
		out = append(out, notification.ChannelSMS)
	}
	return out
}

func (n AppointmentConfirmation) ToMail(to notification.Recipient) *notification.MailMessage {
	m := notification.NewMail().
		WithSubject("Appointment Confirmation").
		WithGreeting("Dear " + to.Name + ",").
		Line("Your referral appointment has been scheduled.").
		Line("When: " + n.ScheduledAt.Format(appointmentTimeLayout)).
		Line("Where: " + n.Location)
	if n.Notes != "" {
		m.Line(n.Notes)
	}
	return m.Line("Please bring any previous medical records with you.")
}

func (n AppointmentConfirmation) ToSMS(notification.Recipient) string {
	return fmt.Sprintf("CareLink: appointment on %s at %s.", n.ScheduledAt.Format(appointmentTimeLayout), n.Location)
}
