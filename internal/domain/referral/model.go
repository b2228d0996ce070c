package referral

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound              = errors.New("referral not found")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrNotEligible           = errors.New("assessment does not require a referral")
	ErrOpenReferralExists    = errors.New("assessment already has an open referral")
	ErrAssigneeNotFound      = errors.New("assignee not found")
	ErrFacilityNotAccepting  = errors.New("facility does not accept referrals")
	ErrAppointmentNotAllowed = errors.New("appointments need an assigned, accepted or in-progress referral")
)

// Status values.
const (
	StatusPending    = "pending"
	StatusAssigned   = "assigned"
	StatusAccepted   = "accepted"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var priorities = map[string]bool{PriorityLow: true, PriorityNormal: true, PriorityHigh: true, PriorityUrgent: true}

var transitions = map[string][]string{
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusAssigned, StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to is legal. Completed and
// cancelled are terminal.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

type Referral struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AssessmentID  uuid.UUID  `db:"assessment_id" json:"assessment_id"`
	PatientName   string     `db:"patient_name" json:"patient_name"`
	PatientPhone  *string    `db:"patient_phone" json:"patient_phone,omitempty"`
	PatientEmail  *string    `db:"patient_email" json:"patient_email,omitempty"`
	Priority      string     `db:"priority" json:"priority"`
	Reason        string     `db:"reason" json:"reason"`
	AssignedTo    *uuid.UUID `db:"assigned_to" json:"assigned_to,omitempty"`
	FacilityID    *uuid.UUID `db:"facility_id" json:"facility_id,omitempty"`
	ClinicalNotes *string    `db:"clinical_notes" json:"clinical_notes,omitempty"`
	Status        string     `db:"status" json:"status"`
	CreatedBy     uuid.UUID  `db:"created_by" json:"created_by"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	Appointments []*Appointment `db:"-" json:"appointments,omitempty"`
}

type Appointment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ReferralID  uuid.UUID `db:"referral_id" json:"referral_id"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Location    string    `db:"location" json:"location"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Filter struct {
	Status     string
	Priority   string
	AssignedTo *uuid.UUID
}

type CreateInput struct {
	AssessmentID  uuid.UUID  `json:"assessment_id"`
	Priority      string     `json:"priority"`
	Reason        string     `json:"reason"`
	FacilityID    *uuid.UUID `json:"facility_id"`
	ClinicalNotes string     `json:"clinical_notes"`
}

func (in *CreateInput) Validate() []string {
	var problems []string
	in.Reason = strings.TrimSpace(in.Reason)
	in.Priority = strings.ToLower(strings.TrimSpace(in.Priority))
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if in.AssessmentID == uuid.Nil {
		problems = append(problems, "assessment_id is required")
	}
	if in.Reason == "" {
		problems = append(problems, "reason is required")
	}
	if !priorities[in.Priority] {
		problems = append(problems, "priority must be one of low, normal, high, urgent")
	}
	return problems
}

type AssignInput struct {
	AssigneeID    uuid.UUID  `json:"assignee_id"`
	FacilityID    *uuid.UUID `json:"facility_id"`
	ClinicalNotes string     `json:"clinical_notes"`
}

type StatusInput struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type AppointmentInput struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	Location    string    `json:"location"`
	Notes       string    `json:"notes"`
}
