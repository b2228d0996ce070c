package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/assessment"
	"github.com/carelink/carelink/internal/domain/facility"
	"github.com/carelink/carelink/internal/domain/identity"
	"github.com/carelink/carelink/internal/platform/notification"
)

type Notifier interface {
	Send(ctx context.Context, n notification.Notification, recipients ...notification.Recipient) error
}

type Directory interface {
	Recipient(ctx context.Context, userID uuid.UUID) (notification.Recipient, error)
}

type AssessmentLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*assessment.Assessment, error)
}

type FacilityLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*facility.HealthcareFacility, error)
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

type Service struct {
	repo        Repository
	assessments AssessmentLookup
	facilities  FacilityLookup
	users       Directory
	notifier    Notifier
	appURL      string
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo Repository, assessments AssessmentLookup, facilities FacilityLookup, users Directory,
	notifier Notifier, appURL string, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		assessments: assessments,
		facilities:  facilities,
		users:       users,
		notifier:    notifier,
		appURL:      appURL,
		logger:      logger.With().Str("component", "referral").Logger(),
		now:         time.Now,
	}
}

// Create opens a referral for an assessment flagged as requiring one. The
// patient contact is copied from the assessment.
func (s *Service) Create(ctx context.Context, creator uuid.UUID, in CreateInput) (*Referral, error) {
	if problems := in.Validate(); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	a, err := s.assessments.Get(ctx, in.AssessmentID)
	if errors.Is(err, assessment.ErrNotFound) {
		return nil, &ValidationError{Problems: []string{"assessment_id does not exist"}}
	}
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	if a.Status != assessment.StatusRequiresReferral {
		return nil, ErrNotEligible
	}
	open, err := s.repo.HasOpen(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, ErrOpenReferralExists
	}
	if err := s.checkFacility(ctx, in.FacilityID); err != nil {
		return nil, err
	}

	r := &Referral{
		AssessmentID:  a.ID,
		PatientName:   a.PatientName,
		PatientPhone:  a.PatientPhone,
		PatientEmail:  a.PatientEmail,
		Priority:      in.Priority,
		Reason:        in.Reason,
		FacilityID:    in.FacilityID,
		ClinicalNotes: nonEmpty(in.ClinicalNotes),
		Status:        StatusPending,
		CreatedBy:     creator,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) checkFacility(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	f, err := s.facilities.Get(ctx, *id)
	if errors.Is(err, facility.ErrNotFound) {
		return &ValidationError{Problems: []string{"facility_id does not exist"}}
	}
	if err != nil {
		return fmt.Errorf("load facility: %w", err)
	}
	if !f.AcceptsReferrals {
		return ErrFacilityNotAccepting
	}
	return nil
}

// Get returns the referral with its appointments.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Referral, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Appointments, err = s.repo.ListAppointments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Referral, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// Assign hands the referral to a clinician and notifies them. Reassigning an
// assigned referral is allowed until it is accepted.
func (s *Service) Assign(ctx context.Context, id uuid.UUID, in AssignInput) (*Referral, error) {
	if in.AssigneeID == uuid.Nil {
		return nil, &ValidationError{Problems: []string{"assignee_id is required"}}
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, StatusAssigned) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusAssigned)
	}

	to, err := s.users.Recipient(ctx, in.AssigneeID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, ErrAssigneeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load assignee: %w", err)
	}
	if in.FacilityID != nil {
		if err := s.checkFacility(ctx, in.FacilityID); err != nil {
			return nil, err
		}
		r.FacilityID = in.FacilityID
	}
	if notes := nonEmpty(in.ClinicalNotes); notes != nil {
		r.ClinicalNotes = notes
	}
	r.AssignedTo = &in.AssigneeID
	r.Status = StatusAssigned
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}

	if err := s.notifier.Send(ctx, NewReferralAssigned(r, s.appURL), to); err != nil {
		s.logger.Error().Err(err).Str("referral_id", r.ID.String()).Msg("send referral assignment")
	}
	return r, nil
}

// UpdateStatus moves the referral along its pipeline. Assignment goes
// through Assign.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, in StatusInput) (*Referral, error) {
	target := strings.ToLower(strings.TrimSpace(in.Status))
	if target == StatusAssigned {
		return nil, &ValidationError{Problems: []string{"use the assign endpoint to assign a referral"}}
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, target)
	}

	r.Status = target
	if notes := nonEmpty(in.Notes); notes != nil {
		r.ClinicalNotes = notes
	}
	if target == StatusCompleted {
		now := s.now().UTC()
		r.CompletedAt = &now
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ScheduleAppointment books a visit and confirms it to the patient contact.
func (s *Service) ScheduleAppointment(ctx context.Context, id uuid.UUID, in AppointmentInput) (*Appointment, error) {
	var problems []string
	location := strings.TrimSpace(in.Location)
	if location == "" {
		problems = append(problems, "location is required")
	}
	if in.ScheduledAt.IsZero() {
		problems = append(problems, "scheduled_at is required")
	} else if !in.ScheduledAt.After(s.now()) {
		problems = append(problems, "scheduled_at must be in the future")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case StatusAssigned, StatusAccepted, StatusInProgress:
	default:
		return nil, ErrAppointmentNotAllowed
	}

	appt := &Appointment{
		ReferralID:  r.ID,
		ScheduledAt: in.ScheduledAt.UTC(),
		Location:    location,
		Notes:       nonEmpty(in.Notes),
	}
	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		return nil, err
	}

	to := PatientRecipient(r)
	if to.Email == "" && to.Phone == "" {
		s.logger.Warn().Str("referral_id", r.ID.String()).Msg("patient has no contact details; confirmation not sent")
		return appt, nil
	}
	if err := s.notifier.Send(ctx, NewAppointmentConfirmation(r, appt), to); err != nil {
		s.logger.Error().Err(err).Str("referral_id", r.ID.String()).Msg("send appointment confirmation")
	}
	return appt, nil
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
