package assessment

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const assessmentCols = `id, external_id, patient_name, patient_phone, patient_email, submitted_by, facility_id,
	ml_risk_score, rule_risk_score, final_risk_level, final_risk_score, status,
	validated_by, validation_notes, rejection_reason, validated_at, archived_at, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Assessment, error) {
	var a Assessment
	err := row.Scan(&a.ID, &a.ExternalID, &a.PatientName, &a.PatientPhone, &a.PatientEmail, &a.SubmittedBy, &a.FacilityID,
		&a.MLRiskScore, &a.RuleRiskScore, &a.FinalRiskLevel, &a.FinalRiskScore, &a.Status,
		&a.ValidatedBy, &a.ValidationNotes, &a.RejectionReason, &a.ValidatedAt, &a.ArchivedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Assessment) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO assessments (id, external_id, patient_name, patient_phone, patient_email, submitted_by, facility_id,
			ml_risk_score, rule_risk_score, final_risk_level, final_risk_score, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		a.ID, a.ExternalID, a.PatientName, a.PatientPhone, a.PatientEmail, a.SubmittedBy, a.FacilityID,
		a.MLRiskScore, a.RuleRiskScore, a.FinalRiskLevel, a.FinalRiskScore, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return r.scan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+assessmentCols+` FROM assessments WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Assessment) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE assessments SET final_risk_level = $2, final_risk_score = $3, status = $4,
			validated_by = $5, validation_notes = $6, rejection_reason = $7, validated_at = $8,
			archived_at = $9, updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.FinalRiskLevel, a.FinalRiskScore, a.Status,
		a.ValidatedBy, a.ValidationNotes, a.RejectionReason, a.ValidatedAt, a.ArchivedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Assessment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.RiskLevel != "" {
		where += fmt.Sprintf(` AND final_risk_level = $%d`, idx)
		args = append(args, f.RiskLevel)
		idx++
	}
	if f.SubmittedBy != nil {
		where += fmt.Sprintf(` AND submitted_by = $%d`, idx)
		args = append(args, *f.SubmittedBy)
		idx++
	}
	if !f.IncludeArchived {
		where += ` AND archived_at IS NULL`
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM assessments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + assessmentCols + ` FROM assessments` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Assessment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
