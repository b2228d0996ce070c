package emergency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/identity"
	"github.com/carelink/carelink/internal/platform/notification"
	"github.com/carelink/carelink/internal/platform/websocket"
)

type Notifier interface {
	Send(ctx context.Context, n notification.Notification, recipients ...notification.Recipient) error
}

// Audience lists the users an alert goes to.
type Audience interface {
	RecipientsWithRoles(ctx context.Context, roles []string) ([]notification.Recipient, error)
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

type Service struct {
	repo      Repository
	audience  Audience
	notifier  Notifier
	publisher websocket.EventPublisher
	queue     string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService wires alert broadcasting. queue is the high-priority queue the
// notification is delivered through.
func NewService(repo Repository, audience Audience, notifier Notifier, publisher websocket.EventPublisher,
	queue string, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		audience:  audience,
		notifier:  notifier,
		publisher: publisher,
		queue:     queue,
		logger:    logger.With().Str("component", "emergency").Logger(),
		now:       time.Now,
	}
}

// CreateResult reports how far a broadcast reached.
type CreateResult struct {
	Alert      *EmergencyAlert `json:"alert"`
	Recipients int             `json:"recipients"`
}

// Create stores the alert, notifies every clinical user and pushes it to
// the live alerts topic. Delivery problems are logged; the alert stands.
func (s *Service) Create(ctx context.Context, creator uuid.UUID, in CreateInput) (*CreateResult, error) {
	now := s.now()
	if problems := in.Validate(now); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	a := &EmergencyAlert{
		Title:     in.Title,
		Message:   in.Message,
		Severity:  in.Severity,
		ExpiresAt: in.ExpiresAt,
		CreatedBy: creator,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	res := &CreateResult{Alert: a}

	recipients, err := s.audience.RecipientsWithRoles(ctx, identity.ClinicalRoles)
	if err != nil {
		s.logger.Error().Err(err).Str("alert_id", a.ID.String()).Msg("resolve alert recipients")
	} else {
		res.Recipients = len(recipients)
		if len(recipients) > 0 {
			if err := s.notifier.Send(ctx, NewEmergencyAlertNotification(a, s.queue), recipients...); err != nil {
				s.logger.Error().Err(err).Str("alert_id", a.ID.String()).Msg("dispatch emergency alert")
			}
		}
	}

	s.broadcast(ctx, a)
	s.logger.Warn().
		Str("alert_id", a.ID.String()).
		Str("severity", a.Severity).
		Int("recipients", res.Recipients).
		Msg("emergency alert raised")
	return res, nil
}

func (s *Service) broadcast(ctx context.Context, a *EmergencyAlert) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode alert")
		return
	}
	err = s.publisher.Publish(ctx, websocket.Event{
		Type:         "emergency_alert.created",
		Topic:        websocket.AlertsTopic,
		ResourceType: "emergency_alert",
		ResourceID:   a.ID.String(),
		Timestamp:    a.CreatedAt,
		Data:         data,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("publish alert")
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*EmergencyAlert, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListActive(ctx context.Context, limit, offset int) ([]*EmergencyAlert, int, error) {
	items, total, err := s.repo.ListActive(ctx, s.now(), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list active alerts: %w", err)
	}
	return items, total, nil
}
