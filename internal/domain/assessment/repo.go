package assessment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	// Update persists the review fields of a.
	Update(ctx context.Context, a *Assessment) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Assessment, int, error)
}
