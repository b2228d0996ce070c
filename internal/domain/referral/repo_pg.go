package referral

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

// =========== Referral Repository ===========

const referralCols = `id, assessment_id, patient_name, patient_phone, patient_email, priority, reason,
	assigned_to, facility_id, clinical_notes, status, created_by, completed_at, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(&ref.ID, &ref.AssessmentID, &ref.PatientName, &ref.PatientPhone, &ref.PatientEmail, &ref.Priority, &ref.Reason,
		&ref.AssignedTo, &ref.FacilityID, &ref.ClinicalNotes, &ref.Status, &ref.CreatedBy, &ref.CompletedAt, &ref.CreatedAt, &ref.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &ref, err
}

func (r *repoPG) Create(ctx context.Context, ref *Referral) error {
	ref.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO referrals (id, assessment_id, patient_name, patient_phone, patient_email, priority, reason,
			assigned_to, facility_id, clinical_notes, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		ref.ID, ref.AssessmentID, ref.PatientName, ref.PatientPhone, ref.PatientEmail, ref.Priority, ref.Reason,
		ref.AssignedTo, ref.FacilityID, ref.ClinicalNotes, ref.Status, ref.CreatedBy,
	).Scan(&ref.CreatedAt, &ref.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return r.scan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+referralCols+` FROM referrals WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, ref *Referral) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE referrals SET priority = $2, assigned_to = $3, facility_id = $4, clinical_notes = $5,
			status = $6, completed_at = $7, updated_at = NOW()
		WHERE id = $1`,
		ref.ID, ref.Priority, ref.AssignedTo, ref.FacilityID, ref.ClinicalNotes, ref.Status, ref.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Referral, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Priority != "" {
		where += fmt.Sprintf(` AND priority = $%d`, idx)
		args = append(args, f.Priority)
		idx++
	}
	if f.AssignedTo != nil {
		where += fmt.Sprintf(` AND assigned_to = $%d`, idx)
		args = append(args, *f.AssignedTo)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM referrals`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + referralCols + ` FROM referrals` + where +
		` ORDER BY CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END, created_at DESC` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Referral
	for rows.Next() {
		ref, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ref)
	}
	return items, total, rows.Err()
}

func (r *repoPG) HasOpen(ctx context.Context, assessmentID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM referrals WHERE assessment_id = $1 AND status NOT IN ('completed', 'cancelled'))`,
		assessmentID).Scan(&exists)
	return exists, err
}

// =========== Appointment Repository ===========

func (r *repoPG) CreateAppointment(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (id, referral_id, scheduled_at, location, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		a.ID, a.ReferralID, a.ScheduledAt, a.Location, a.Notes,
	).Scan(&a.CreatedAt)
}

func (r *repoPG) ListAppointments(ctx context.Context, referralID uuid.UUID) ([]*Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, referral_id, scheduled_at, location, notes, created_at
		FROM appointments WHERE referral_id = $1 ORDER BY scheduled_at`, referralID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.ReferralID, &a.ScheduledAt, &a.Location, &a.Notes, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}
