package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

const userCols = `id, email, name, COALESCE(phone, ''), password_hash, roles, permissions,
	mfa_enabled, mfa_method, push_tokens, is_active, created_at, updated_at`

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.PasswordHash, &u.Roles, &u.Permissions,
		&u.MFAEnabled, &u.MFAMethod, &u.PushTokens, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	if u.Permissions == nil {
		u.Permissions = []string{}
	}
	if u.PushTokens == nil {
		u.PushTokens = []string{}
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (id, email, name, phone, password_hash, roles, permissions,
			mfa_enabled, mfa_method, push_tokens, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.Name, u.Phone, u.PasswordHash, u.Roles, u.Permissions,
		u.MFAEnabled, u.MFAMethod, u.PushTokens, u.IsActive).Scan(&u.CreatedAt, &u.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *userRepoPG) ListActiveByRoles(ctx context.Context, roles []string) ([]*User, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+userCols+` FROM users
		WHERE is_active AND roles && $1 ORDER BY created_at`, roles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

// =========== Trusted Device Repository ===========

type deviceRepoPG struct{ pool *pgxpool.Pool }

func NewDeviceRepoPG(pool *pgxpool.Pool) DeviceRepository { return &deviceRepoPG{pool: pool} }

const deviceCols = `id, user_id, device_id, COALESCE(device_name, ''), COALESCE(ip_address, ''),
	COALESCE(user_agent, ''), last_login_at, created_at`

func (r *deviceRepoPG) scanDevice(row pgx.Row) (*TrustedDevice, error) {
	var d TrustedDevice
	err := row.Scan(&d.ID, &d.UserID, &d.DeviceID, &d.DeviceName, &d.IPAddress, &d.UserAgent, &d.LastLoginAt, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	return &d, err
}

func (r *deviceRepoPG) Upsert(ctx context.Context, d *TrustedDevice) error {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO trusted_devices (id, user_id, device_id, device_name, ip_address, user_agent)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			device_name = COALESCE(EXCLUDED.device_name, trusted_devices.device_name),
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent,
			last_login_at = NOW()
		RETURNING `+deviceCols,
		uuid.New(), d.UserID, d.DeviceID, d.DeviceName, d.IPAddress, d.UserAgent)
	saved, err := r.scanDevice(row)
	if err != nil {
		return fmt.Errorf("upsert trusted device: %w", err)
	}
	*d = *saved
	return nil
}

func (r *deviceRepoPG) Get(ctx context.Context, userID uuid.UUID, deviceID string) (*TrustedDevice, error) {
	return r.scanDevice(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+deviceCols+` FROM trusted_devices WHERE user_id = $1 AND device_id = $2`, userID, deviceID))
}

func (r *deviceRepoPG) Touch(ctx context.Context, id uuid.UUID, ip, userAgent string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE trusted_devices SET last_login_at = NOW(), ip_address = NULLIF($2, ''), user_agent = NULLIF($3, '')
		WHERE id = $1`, id, ip, userAgent)
	return err
}

func (r *deviceRepoPG) ListByUser(ctx context.Context, userID uuid.UUID) ([]*TrustedDevice, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+deviceCols+` FROM trusted_devices WHERE user_id = $1 ORDER BY last_login_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TrustedDevice
	for rows.Next() {
		d, err := r.scanDevice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *deviceRepoPG) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM trusted_devices WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
