package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

const recordCols = `id, type, notifiable_id, data, read_at, created_at`

func (s *storePG) scan(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Type, &r.NotifiableID, &r.Data, &r.ReadAt, &r.CreatedAt)
	return &r, err
}

func (s *storePG) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO notifications (id, type, notifiable_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Type, rec.NotifiableID, rec.Data, rec.CreatedAt)
	return err
}

func (s *storePG) ListForRecipient(ctx context.Context, notifiableID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Record, int, error) {
	where := `WHERE notifiable_id = $1`
	if unreadOnly {
		where += ` AND read_at IS NULL`
	}

	q := db.Conn(ctx, s.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM notifications `+where, notifiableID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT `+recordCols+` FROM notifications `+where+`
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, notifiableID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		r, err := s.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}

func (s *storePG) UnreadCount(ctx context.Context, notifiableID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE notifiable_id = $1 AND read_at IS NULL`,
		notifiableID).Scan(&n)
	return n, err
}

func (s *storePG) MarkRead(ctx context.Context, notifiableID, id uuid.UUID) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND notifiable_id = $2`, id, notifiableID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *storePG) MarkAllRead(ctx context.Context, notifiableID uuid.UUID) (int64, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE notifications SET read_at = NOW()
		WHERE notifiable_id = $1 AND read_at IS NULL`, notifiableID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
