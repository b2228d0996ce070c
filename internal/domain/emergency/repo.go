package emergency

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *EmergencyAlert) error
	GetByID(ctx context.Context, id uuid.UUID) (*EmergencyAlert, error)
	// ListActive returns alerts not expired at now, most severe first.
	ListActive(ctx context.Context, now time.Time, limit, offset int) ([]*EmergencyAlert, int, error)
}
