package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/websocket"
)

var ErrNotFound = errors.New("notification not found")

// Record is a persisted in-app notification.
type Record struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Type         string          `db:"type" json:"type"`
	NotifiableID uuid.UUID       `db:"notifiable_id" json:"notifiable_id"`
	Data         json.RawMessage `db:"data" json:"data"`
	ReadAt       *time.Time      `db:"read_at" json:"read_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

func (r *Record) IsRead() bool { return r.ReadAt != nil }

// Store persists database-channel notifications.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	ListForRecipient(ctx context.Context, notifiableID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Record, int, error)
	UnreadCount(ctx context.Context, notifiableID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, notifiableID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, notifiableID uuid.UUID) (int64, error)
}

// UserTopic is the live-feed topic a recipient's connections subscribe to.
func UserTopic(id uuid.UUID) string {
	return websocket.UserTopic(id)
}

// DatabaseDriver stores the rendered payload as a Record and pushes it to
// the recipient's live feed when a publisher is attached.
type DatabaseDriver struct {
	Base
	store     Store
	publisher websocket.EventPublisher
	now       func() time.Time
}

func NewDatabaseDriver(store Store, publisher websocket.EventPublisher, logger zerolog.Logger, logEnabled bool) *DatabaseDriver {
	return &DatabaseDriver{
		Base:      NewBase("database", ChannelDatabase, logger, logEnabled),
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

func (d *DatabaseDriver) IsConfigured() bool { return d.store != nil }

func (d *DatabaseDriver) Send(ctx context.Context, to Recipient, msg Message) (Result, error) {
	if d.store == nil {
		return d.ErrorResponse("database driver has no store", nil), fmt.Errorf("database driver: nil store")
	}

	data, err := json.Marshal(msg.Data)
	if err != nil {
		res := d.ErrorResponse(fmt.Sprintf("encode payload: %v", err), nil)
		d.LogNotification(to, msg, res)
		return res, nil
	}

	rec := &Record{
		ID:           uuid.New(),
		Type:         msg.Type,
		NotifiableID: to.ID,
		Data:         data,
		CreatedAt:    d.now().UTC(),
	}
	if err := d.store.Insert(ctx, rec); err != nil {
		res := d.ErrorResponse(fmt.Sprintf("store notification: %v", err), nil)
		d.LogNotification(to, msg, res)
		return res, nil
	}

	if d.publisher != nil {
		event := websocket.Event{
			Type:         "notification.created",
			Topic:        UserTopic(to.ID),
			ResourceType: msg.Type,
			ResourceID:   rec.ID.String(),
			Timestamp:    rec.CreatedAt,
			Data:         rec.Data,
		}
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Warn().Err(err).Str("notification_id", rec.ID.String()).Msg("live feed publish failed")
		}
	}

	res := d.SuccessResponse("notification stored", map[string]interface{}{
		"notification_id": rec.ID.String(),
	})
	d.LogNotification(to, msg, res)
	return res, nil
}
