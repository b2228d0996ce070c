package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// ListActiveByRoles returns active users holding any of roles.
	ListActiveByRoles(ctx context.Context, roles []string) ([]*User, error)
}

type DeviceRepository interface {
	// Upsert inserts or refreshes the (user_id, device_id) pair.
	Upsert(ctx context.Context, d *TrustedDevice) error
	Get(ctx context.Context, userID uuid.UUID, deviceID string) (*TrustedDevice, error)
	Touch(ctx context.Context, id uuid.UUID, ip, userAgent string) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*TrustedDevice, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}
