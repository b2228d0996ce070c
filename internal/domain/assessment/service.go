package assessment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/notification"
)

// Notifier delivers notification events.
type Notifier interface {
	Send(ctx context.Context, n notification.Notification, recipients ...notification.Recipient) error
}

// Directory resolves users into notification recipients.
type Directory interface {
	Recipient(ctx context.Context, userID uuid.UUID) (notification.Recipient, error)
}

// ValidationError lists input problems.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

type Service struct {
	repo     Repository
	users    Directory
	notifier Notifier
	archiver Archiver
	appURL   string
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, users Directory, notifier Notifier, appURL string, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		notifier: notifier,
		appURL:   appURL,
		logger:   logger.With().Str("component", "assessment").Logger(),
		now:      time.Now,
	}
}

// SetArchiver makes Export keep a copy of every workbook it produces.
func (s *Service) SetArchiver(a Archiver) { s.archiver = a }

func (s *Service) Create(ctx context.Context, submitter uuid.UUID, in CreateInput) (*Assessment, error) {
	if problems := in.Validate(); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	a := &Assessment{
		ExternalID:     in.ExternalID,
		PatientName:    in.PatientName,
		PatientPhone:   nonEmpty(in.PatientPhone),
		PatientEmail:   nonEmpty(in.PatientEmail),
		SubmittedBy:    submitter,
		FacilityID:     in.FacilityID,
		MLRiskScore:    in.MLRiskScore,
		RuleRiskScore:  in.RuleRiskScore,
		FinalRiskLevel: in.FinalRiskLevel,
		FinalRiskScore: in.FinalRiskScore,
		Status:         StatusPending,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Assessment, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// mutable loads an assessment that may still change.
func (s *Service) mutable(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsArchived() {
		return nil, ErrArchived
	}
	return a, nil
}

// StartReview claims a pending assessment for review.
func (s *Service) StartReview(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	a, err := s.mutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusInReview) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusInReview)
	}
	a.Status = StatusInReview
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate accepts an assessment and notifies its submitter.
func (s *Service) Validate(ctx context.Context, id, validator uuid.UUID, in ValidateInput) (*Assessment, error) {
	a, err := s.mutable(ctx, id)
	if err != nil {
		return nil, err
	}

	target := StatusValidated
	if in.RequiresReferral {
		target = StatusRequiresReferral
	}
	if !CanTransition(a.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, target)
	}

	var problems []string
	level, score := a.FinalRiskLevel, a.FinalRiskScore
	if in.RiskLevel != nil {
		level = strings.ToLower(*in.RiskLevel)
		if !riskLevels[level] {
			problems = append(problems, "final_risk_level must be one of low, medium, high, critical")
		}
	}
	if in.RiskScore != nil {
		score = *in.RiskScore
		if score < 0 {
			problems = append(problems, "final_risk_score must not be negative")
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	a.FinalRiskLevel, a.FinalRiskScore = level, score
	now := s.now().UTC()
	a.Status = target
	a.ValidatedBy = &validator
	a.ValidatedAt = &now
	a.ValidationNotes = nonEmpty(in.Notes)
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.notify(ctx, a.SubmittedBy, NewAssessmentValidated(a, in.Notes, s.appURL))
	return a, nil
}

// Reject sends an assessment back to its submitter with a reason.
func (s *Service) Reject(ctx context.Context, id, validator uuid.UUID, in RejectInput) (*Assessment, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, &ValidationError{Problems: []string{"reason is required"}}
	}
	a, err := s.mutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusRejected) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusRejected)
	}

	now := s.now().UTC()
	a.Status = StatusRejected
	a.ValidatedBy = &validator
	a.ValidatedAt = &now
	a.RejectionReason = &reason
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.notify(ctx, a.SubmittedBy, NewAssessmentRejected(a, reason, s.appURL))
	return a, nil
}

// BulkValidate validates each id independently. A failure on one id is
// reported in its result and does not stop the rest.
func (s *Service) BulkValidate(ctx context.Context, validator uuid.UUID, in BulkValidateInput) ([]BulkResult, error) {
	if len(in.IDs) == 0 {
		return nil, &ValidationError{Problems: []string{"ids must not be empty"}}
	}
	if len(in.IDs) > MaxBulkValidate {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("at most %d ids per request", MaxBulkValidate)}}
	}

	seen := make(map[uuid.UUID]struct{}, len(in.IDs))
	results := make([]BulkResult, 0, len(in.IDs))
	for _, id := range in.IDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		a, err := s.Validate(ctx, id, validator, ValidateInput{Notes: in.Notes})
		if err != nil {
			results = append(results, BulkResult{ID: id, Error: err.Error()})
			continue
		}
		results = append(results, BulkResult{ID: id, Status: a.Status})
	}
	return results, nil
}

// Archive freezes a reviewed assessment.
func (s *Service) Archive(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	a, err := s.mutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if !IsOutcome(a.Status) {
		return nil, fmt.Errorf("%w: %s assessments cannot be archived", ErrInvalidTransition, a.Status)
	}
	now := s.now().UTC()
	a.ArchivedAt = &now
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ExportResult is a generated workbook.
type ExportResult struct {
	Filename string
	Data     []byte
	Rows     int
	// Location is where the archived copy lives, when an archiver is set.
	Location string
}

func (s *Service) Export(ctx context.Context, f Filter) (*ExportResult, error) {
	items, _, err := s.repo.List(ctx, f, exportMaxRows, 0)
	if err != nil {
		return nil, fmt.Errorf("load assessments: %w", err)
	}
	data, err := WriteXLSX(items)
	if err != nil {
		return nil, err
	}

	res := &ExportResult{
		Filename: "assessments-" + s.now().UTC().Format("20060102-150405") + ".xlsx",
		Data:     data,
		Rows:     len(items),
	}
	if s.archiver != nil {
		loc, err := s.archiver.Archive(ctx, "exports/"+res.Filename, data, XLSXContentType)
		if err != nil {
			s.logger.Error().Err(err).Str("file", res.Filename).Msg("archive export")
		} else {
			res.Location = loc
		}
	}
	return res, nil
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, n notification.Notification) {
	if s.notifier == nil {
		return
	}
	to, err := s.users.Recipient(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID.String()).Str("notification_type", n.Type()).Msg("resolve recipient")
		return
	}
	if err := s.notifier.Send(ctx, n, to); err != nil {
		s.logger.Error().Err(err).Str("notification_type", n.Type()).Msg("send notification")
	}
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
