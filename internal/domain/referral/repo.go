package referral

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	Update(ctx context.Context, r *Referral) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Referral, int, error)
	// HasOpen reports whether assessmentID has a referral that is neither
	// completed nor cancelled.
	HasOpen(ctx context.Context, assessmentID uuid.UUID) (bool, error)

	CreateAppointment(ctx context.Context, a *Appointment) error
	ListAppointments(ctx context.Context, referralID uuid.UUID) ([]*Appointment, error)
}
