package emergency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const alertCols = `id, title, message, severity, expires_at, created_by, created_at`

func (r *repoPG) scan(row pgx.Row) (*EmergencyAlert, error) {
	var a EmergencyAlert
	err := row.Scan(&a.ID, &a.Title, &a.Message, &a.Severity, &a.ExpiresAt, &a.CreatedBy, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *EmergencyAlert) error {
	a.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO emergency_alerts (id, title, message, severity, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		a.ID, a.Title, a.Message, a.Severity, a.ExpiresAt, a.CreatedBy,
	).Scan(&a.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*EmergencyAlert, error) {
	return r.scan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+alertCols+` FROM emergency_alerts WHERE id = $1`, id))
}

func (r *repoPG) ListActive(ctx context.Context, now time.Time, limit, offset int) ([]*EmergencyAlert, int, error) {
	conn := db.Conn(ctx, r.pool)
	const where = ` WHERE expires_at IS NULL OR expires_at > $1`

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM emergency_alerts`+where, now).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `SELECT `+alertCols+` FROM emergency_alerts`+where+`
		ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'warning' THEN 1 ELSE 2 END, created_at DESC
		LIMIT $2 OFFSET $3`, now, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*EmergencyAlert
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
