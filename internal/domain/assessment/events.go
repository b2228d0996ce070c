package assessment

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/notification"
)

// levelLabel capitalises a risk level for display: "high" -> "High".
func levelLabel(level string) string {
	if level == "" {
		return "Unknown"
	}
	return strings.ToUpper(level[:1]) + level[1:]
}

func assessmentURL(appURL string, id uuid.UUID) string {
	return strings.TrimRight(appURL, "/") + "/assessments/" + id.String()
}

// AssessmentValidated tells the submitter their assessment was reviewed and
// accepted, possibly with a referral required.
type AssessmentValidated struct {
	AssessmentID     uuid.UUID `json:"assessment_id"`
	ExternalID       string    `json:"external_id"`
	PatientName      string    `json:"patient_name"`
	RiskLevel        string    `json:"risk_level"`
	RiskScore        int       `json:"risk_score"`
	Status           string    `json:"status"`
	Notes            string    `json:"notes,omitempty"`
	ActionURL        string    `json:"action_url"`
	RequiresReferral bool      `json:"requires_referral"`
}

func NewAssessmentValidated(a *Assessment, notes, appURL string) AssessmentValidated {
	return AssessmentValidated{
		AssessmentID:     a.ID,
		ExternalID:       a.ExternalID,
		PatientName:      a.PatientName,
		RiskLevel:        a.FinalRiskLevel,
		RiskScore:        a.FinalRiskScore,
		Status:           a.Status,
		Notes:            notes,
		ActionURL:        assessmentURL(appURL, a.ID),
		RequiresReferral: a.Status == StatusRequiresReferral,
	}
}

func (AssessmentValidated) Type() string { return "assessment_validated" }

func (AssessmentValidated) Queue() string { return "" }

func (AssessmentValidated) Via(notification.Recipient) []notification.Channel {
	return []notification.Channel{notification.ChannelMail, notification.ChannelDatabase}
}

func (n AssessmentValidated) ToMail(to notification.Recipient) *notification.MailMessage {
	m := notification.NewMail().
		WithSubject("Assessment Validated: " + n.ExternalID).
		WithGreeting("Hello " + to.Name + ",").
		WithLevel(notification.LevelSuccess).
		Line(fmt.Sprintf("The assessment for %s has been validated.", n.PatientName)).
		Line("Risk Level: " + levelLabel(n.RiskLevel)).
		Line(fmt.Sprintf("Risk Score: %d", n.RiskScore))
	if n.RequiresReferral {
		m.Line("A referral is required for this patient.")
	}
	if n.Notes != "" {
		m.Line("Clinician notes: " + n.Notes)
	}
	return m.Action("View Assessment", n.ActionURL)
}

func (n AssessmentValidated) ToDatabase(notification.Recipient) map[string]interface{} {
	return map[string]interface{}{
		"type":              n.Type(),
		"assessment_id":     n.AssessmentID.String(),
		"external_id":       n.ExternalID,
		"patient_name":      n.PatientName,
		"risk_level":        n.RiskLevel,
		"risk_score":        n.RiskScore,
		"status":            n.Status,
		"notes":             n.Notes,
		"requires_referral": n.RequiresReferral,
		"message":           fmt.Sprintf("Assessment %s validated (%s risk)", n.ExternalID, n.RiskLevel),
		"action_url":        n.ActionURL,
	}
}

// AssessmentRejected tells the submitter their assessment was sent back.
type AssessmentRejected struct {
	AssessmentID uuid.UUID `json:"assessment_id"`
	ExternalID   string    `json:"external_id"`
	PatientName  string    `json:"patient_name"`
	Reason       string    `json:"reason"`
	ActionURL    string    `json:"action_url"`
}

func NewAssessmentRejected(a *Assessment, reason, appURL string) AssessmentRejected {
	return AssessmentRejected{
		AssessmentID: a.ID,
		ExternalID:   a.ExternalID,
		PatientName:  a.PatientName,
		Reason:       reason,
		ActionURL:    assessmentURL(appURL, a.ID),
	}
}

func (AssessmentRejected) Type() string { return "assessment_rejected" }

func (AssessmentRejected) Queue() string { return "" }

func (AssessmentRejected) Via(notification.Recipient) []notification.Channel {
	return []notification.Channel{notification.ChannelMail, notification.ChannelDatabase}
}

func (n AssessmentRejected) ToMail(to notification.Recipient) *notification.MailMessage {
	return notification.NewMail().
		WithSubject("Assessment Rejected: " + n.ExternalID).
		WithGreeting("Hello " + to.Name + ",").
		WithLevel(notification.LevelError).
		Line(fmt.Sprintf("The assessment for %s was rejected.", n.PatientName)).
		Line("Reason: " + n.Reason).
		Action("Review Assessment", n.ActionURL).
		Line("Please correct the assessment and submit it again.")
}

func (n AssessmentRejected) ToDatabase(notification.Recipient) map[string]interface{} {
	return map[string]interface{}{
		"type":          n.Type(),
		"assessment_id": n.AssessmentID.String(),
		"external_id":   n.ExternalID,
		"patient_name":  n.PatientName,
		"reason":        n.Reason,
		"message":       fmt.Sprintf("Assessment %s rejected", n.ExternalID),
		"action_url":    n.ActionURL,
	}
}
