package facility

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*HealthcareFacility, error)
	// List returns every facility matching the type and referral filters,
	// ordered by name. Origin is ignored here.
	List(ctx context.Context, f Filter) ([]*HealthcareFacility, error)
}
