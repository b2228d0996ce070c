package facility

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const facilityCols = `id, name, facility_type, COALESCE(address, ''), COALESCE(phone, ''),
	latitude, longitude, capacity, is_accredited, accepts_referrals, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*HealthcareFacility, error) {
	var f HealthcareFacility
	err := row.Scan(&f.ID, &f.Name, &f.FacilityType, &f.Address, &f.Phone,
		&f.Latitude, &f.Longitude, &f.Capacity, &f.IsAccredited, &f.AcceptsReferrals, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &f, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*HealthcareFacility, error) {
	return r.scan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+facilityCols+` FROM healthcare_facilities WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*HealthcareFacility, error) {
	query := `SELECT ` + facilityCols + ` FROM healthcare_facilities WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.FacilityType != "" {
		query += fmt.Sprintf(` AND facility_type = $%d`, idx)
		args = append(args, f.FacilityType)
		idx++
	}
	if f.AcceptsReferrals != nil {
		query += fmt.Sprintf(` AND accepts_referrals = $%d`, idx)
		args = append(args, *f.AcceptsReferrals)
	}
	query += ` ORDER BY name`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*HealthcareFacility
	for rows.Next() {
		item, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
