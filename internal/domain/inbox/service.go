package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/notification"
	"github.com/carelink/carelink/internal/platform/websocket"
)

// Service reads the database channel on behalf of the signed-in user. Every
// call is scoped to the caller; one user can never see or mark another's
// notifications.
type Service struct {
	store     notification.Store
	publisher websocket.EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(store notification.Store, publisher websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger.With().Str("component", "inbox").Logger(),
		now:       time.Now,
	}
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) (*Page, error) {
	items, total, err := s.store.ListForRecipient(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	return &Page{Items: items, Total: total, UnreadCount: unread, Limit: limit, Offset: offset}, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

// MarkRead returns notification.ErrNotFound for ids the user does not own.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (int, error) {
	if err := s.store.MarkRead(ctx, userID, id); err != nil {
		return 0, err
	}
	unread, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	s.publishCount(ctx, userID, id.String(), unread)
	return unread, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (*ReadAllResult, error) {
	n, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("mark all read: %w", err)
	}
	if n > 0 {
		s.publishCount(ctx, userID, "", 0)
	}
	return &ReadAllResult{Updated: n}, nil
}

// publishCount keeps the user's other live sessions in step.
func (s *Service) publishCount(ctx context.Context, userID uuid.UUID, resourceID string, unread int) {
	if s.publisher == nil {
		return
	}
	data, _ := json.Marshal(map[string]int{"unread_count": unread})
	err := s.publisher.Publish(ctx, websocket.Event{
		Type:         "notification.read",
		Topic:        websocket.UserTopic(userID),
		ResourceType: "notification",
		ResourceID:   resourceID,
		Timestamp:    s.now().UTC(),
		Data:         data,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("publish read state")
	}
}
