package assessment

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/notification"
)

func highRiskAssessment() *Assessment {
	return &Assessment{
		ID:             uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7"),
		ExternalID:     "MOB-1042",
		PatientName:    "Jane Wanjiru",
		SubmittedBy:    uuid.New(),
		FinalRiskLevel: "high",
		FinalRiskScore: 22,
		Status:         StatusValidated,
	}
}

func TestAssessmentValidated_Rendering(t *testing.T) {
	ev := NewAssessmentValidated(highRiskAssessment(), "Follow up in 48h", "https://app.carelink.test/")
	to := notification.Recipient{ID: uuid.New(), Name: "Amina"}

	mail := ev.ToMail(to)
	if !strings.Contains(mail.Subject, "Assessment Validated") {
		t.Errorf("subject %q missing title", mail.Subject)
	}
	if !strings.Contains(mail.Text(), "Risk Level: High") {
		t.Errorf("mail text missing risk level line:\n%s", mail.Text())
	}
	if mail.ActionURL != "https://app.carelink.test/assessments/7c9e6679-7425-40de-944b-e07fc1f90ae7" {
		t.Errorf("unexpected action url %q", mail.ActionURL)
	}

	data := ev.ToDatabase(to)
	if data["risk_level"] != "high" {
		t.Errorf("risk_level = %v", data["risk_level"])
	}
	if score, ok := data["risk_score"].(int); !ok || score != 22 {
		t.Errorf("risk_score = %#v, want int 22", data["risk_score"])
	}
}

func TestAssessmentValidated_BoundAtConstruction(t *testing.T) {
	a := highRiskAssessment()
	ev := NewAssessmentValidated(a, "", "https://app.carelink.test")
	to := notification.Recipient{ID: uuid.New()}

	first, err := notification.DatabasePayload(ev, to)
	if err != nil {
		t.Fatal(err)
	}
	a.FinalRiskLevel = "low"
	a.FinalRiskScore = 3
	second, err := notification.DatabasePayload(ev, to)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("payload changed after entity mutation:\n%s\n%s", first, second)
	}
}

func TestAssessmentEvents_DispatchChannels(t *testing.T) {
	logger := zerolog.Nop()
	mail := notification.NewMockDriver(notification.ChannelMail, logger, false)
	mail.Fail = true
	store := notification.NewMemoryStore()

	registry := notification.NewRegistry()
	registry.Register(mail)
	registry.Register(notification.NewDatabaseDriver(store, nil, logger, false))
	d := notification.NewDispatcher(registry, logger)

	to := notification.Recipient{ID: uuid.New(), Email: "amina@example.org"}
	tests := []struct {
		name string
		n    notification.Notification
	}{
		{"validated", NewAssessmentValidated(highRiskAssessment(), "", "https://app.carelink.test")},
		{"rejected", NewAssessmentRejected(highRiskAssessment(), "Vitals missing", "https://app.carelink.test")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := d.SendNow(context.Background(), tt.n, to)
			if len(results) != 2 {
				t.Fatalf("expected 2 attempts, got %d", len(results))
			}
			if results[0].Channel != notification.ChannelMail || results[0].Success {
				t.Errorf("mail attempt should fail: %+v", results[0])
			}
			if results[1].Channel != notification.ChannelDatabase || !results[1].Success {
				t.Errorf("database attempt should succeed: %+v", results[1])
			}
		})
	}

	records, total, err := store.ListForRecipient(context.Background(), to.ID, false, 10, 0)
	if err != nil || total != 2 {
		t.Fatalf("expected 2 stored records, got %d (%v)", total, err)
	}
	var stored map[string]interface{}
	for _, r := range records {
		if r.Type == "assessment_validated" {
			_ = json.Unmarshal(r.Data, &stored)
		}
	}
	if stored["risk_level"] != "high" || stored["risk_score"] != float64(22) {
		t.Errorf("unexpected stored payload %v", stored)
	}
}

func TestAssessmentEvents_QueueRoundTrip(t *testing.T) {
	codec := notification.NewCodec()
	notification.RegisterType[AssessmentValidated](codec)

	ev := NewAssessmentValidated(highRiskAssessment(), "ok", "https://app.carelink.test")
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := codec.Decode(ev.Type(), payload)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.(AssessmentValidated) != ev {
		t.Errorf("decoded %+v, want %+v", decoded, ev)
	}
}
