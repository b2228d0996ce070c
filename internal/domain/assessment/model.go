package assessment

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("assessment not found")
	ErrDuplicate         = errors.New("assessment already submitted")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrArchived          = errors.New("assessment is archived")
)

// Status values.
const (
	StatusPending          = "pending"
	StatusInReview         = "in_review"
	StatusValidated        = "validated"
	StatusRejected         = "rejected"
	StatusRequiresReferral = "requires_referral"
)

// Risk levels.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

var riskLevels = map[string]bool{RiskLow: true, RiskMedium: true, RiskHigh: true, RiskCritical: true}

// transitions lists the statuses reachable from each status. Outcomes are
// terminal.
var transitions = map[string][]string{
	StatusPending:  {StatusInReview, StatusValidated, StatusRejected, StatusRequiresReferral},
	StatusInReview: {StatusValidated, StatusRejected, StatusRequiresReferral},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsOutcome reports whether status is a reviewed result.
func IsOutcome(status string) bool {
	return status == StatusValidated || status == StatusRejected || status == StatusRequiresReferral
}

type Assessment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ExternalID      string     `db:"external_id" json:"external_id"`
	PatientName     string     `db:"patient_name" json:"patient_name"`
	PatientPhone    *string    `db:"patient_phone" json:"patient_phone,omitempty"`
	PatientEmail    *string    `db:"patient_email" json:"patient_email,omitempty"`
	SubmittedBy     uuid.UUID  `db:"submitted_by" json:"submitted_by"`
	FacilityID      *uuid.UUID `db:"facility_id" json:"facility_id,omitempty"`
	MLRiskScore     *float64   `db:"ml_risk_score" json:"ml_risk_score,omitempty"`
	RuleRiskScore   *int       `db:"rule_risk_score" json:"rule_risk_score,omitempty"`
	FinalRiskLevel  string     `db:"final_risk_level" json:"final_risk_level"`
	FinalRiskScore  int        `db:"final_risk_score" json:"final_risk_score"`
	Status          string     `db:"status" json:"status"`
	ValidatedBy     *uuid.UUID `db:"validated_by" json:"validated_by,omitempty"`
	ValidationNotes *string    `db:"validation_notes" json:"validation_notes,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ValidatedAt     *time.Time `db:"validated_at" json:"validated_at,omitempty"`
	ArchivedAt      *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

func (a *Assessment) IsArchived() bool { return a.ArchivedAt != nil }

// Filter narrows a listing. Archived assessments are excluded unless
// IncludeArchived is set.
type Filter struct {
	Status          string
	RiskLevel       string
	SubmittedBy     *uuid.UUID
	IncludeArchived bool
}

// CreateInput is the intake payload submitted by the mobile app.
type CreateInput struct {
	ExternalID     string     `json:"external_id"`
	PatientName    string     `json:"patient_name"`
	PatientPhone   string     `json:"patient_phone"`
	PatientEmail   string     `json:"patient_email"`
	FacilityID     *uuid.UUID `json:"facility_id"`
	MLRiskScore    *float64   `json:"ml_risk_score"`
	RuleRiskScore  *int       `json:"rule_risk_score"`
	FinalRiskLevel string     `json:"final_risk_level"`
	FinalRiskScore int        `json:"final_risk_score"`
}

// Validate returns the list of problems with in, or nil.
func (in *CreateInput) Validate() []string {
	var problems []string
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	in.PatientName = strings.TrimSpace(in.PatientName)
	in.FinalRiskLevel = strings.ToLower(strings.TrimSpace(in.FinalRiskLevel))

	if in.ExternalID == "" {
		problems = append(problems, "external_id is required")
	}
	if in.PatientName == "" {
		problems = append(problems, "patient_name is required")
	}
	if !riskLevels[in.FinalRiskLevel] {
		problems = append(problems, "final_risk_level must be one of low, medium, high, critical")
	}
	if in.FinalRiskScore < 0 {
		problems = append(problems, "final_risk_score must not be negative")
	}
	if in.MLRiskScore != nil && (*in.MLRiskScore < 0 || *in.MLRiskScore > 1) {
		problems = append(problems, "ml_risk_score must be between 0 and 1")
	}
	return problems
}

// ValidateInput records a clinician's review. Overrides replace the
// submitted risk when set.
type ValidateInput struct {
	Notes            string  `json:"notes"`
	RequiresReferral bool    `json:"requires_referral"`
	RiskLevel        *string `json:"final_risk_level"`
	RiskScore        *int    `json:"final_risk_score"`
}

type RejectInput struct {
	Reason string `json:"reason"`
}

// BulkValidateInput validates up to MaxBulkValidate assessments with the
// same notes.
type BulkValidateInput struct {
	IDs   []uuid.UUID `json:"ids"`
	Notes string      `json:"notes"`
}

const MaxBulkValidate = 100

// BulkResult is the per-assessment outcome of a bulk validation.
type BulkResult struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`
}
