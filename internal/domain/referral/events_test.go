package referral

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/notification"
)

func TestReferralAssigned_Channels(t *testing.T) {
	notes := "BP 160/110"
	r := &Referral{ID: uuid.New(), PatientName: "Jane", Priority: PriorityUrgent, Reason: "Pre-eclampsia", ClinicalNotes: &notes}
	ev := NewReferralAssigned(r, "https://app.carelink.test")
	to := notification.Recipient{ID: uuid.New(), Name: "Dr. Kamau", Phone: "+254711111111"}

	want := []notification.Channel{notification.ChannelMail, notification.ChannelDatabase}
	if got := ev.Via(to); !reflect.DeepEqual(got, want) {
		t.Errorf("Via = %v, want %v", got, want)
	}
	if _, ok := interface{}(ev).(notification.SMSRenderer); ok {
		t.Error("ReferralAssigned must not render SMS")
	}

	mail := ev.ToMail(to)
	if mail.Level != notification.LevelError || !strings.Contains(mail.Text(), "Clinical notes: BP 160/110") {
		t.Errorf("unexpected mail %+v", mail)
	}
	if ev.ToDatabase(to)["referral_id"] != r.ID.String() {
		t.Error("database payload missing referral id")
	}
}

func TestAppointmentConfirmation_ViaFollowsContact(t *testing.T) {
	r := &Referral{ID: uuid.New(), PatientName: "Jane"}
	a := &Appointment{ID: uuid.New(), ScheduledAt: time.Date(2026, 5, 7, 9, 0, 0, 0, time.UTC), Location: "Ward 4"}
	ev := NewAppointmentConfirmation(r, a)

	tests := []struct {
		name string
		to   notification.Recipient
		want []notification.Channel
	}{
		{"mail and sms", notification.Recipient{Email: "j@example.org", Phone: "+254700"}, []notification.Channel{notification.ChannelMail, notification.ChannelSMS}},
		{"sms only", notification.Recipient{Phone: "+254700"}, []notification.Channel{notification.ChannelSMS}},
		{"none", notification.Recipient{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ev.Via(tt.to); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Via = %v, want %v", got, tt.want)
			}
		})
	}

	if sms := ev.ToSMS(notification.Recipient{}); sms != "CareLink: appointment on Thu 07 May 2026, 09:00 UTC at Ward 4." {
		t.Errorf("unexpected sms %q", sms)
	}
}

func TestPatientRecipient(t *testing.T) {
	phone := "+254700000002"
	r := &Referral{ID: uuid.New(), PatientName: "Jane", PatientPhone: &phone}
	to := PatientRecipient(r)
	if to.ID != r.ID || to.Phone != phone || to.Email != "" {
		t.Errorf("unexpected recipient %+v", to)
	}
}
