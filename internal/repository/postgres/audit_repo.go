package postgres

import (
	"context"

	"qa-portal/internal/models"
	"qa-portal/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepo struct{ db *pgxpool.Pool }

var _ repository.AuditRepository = (*AuditRepo)(nil)

func NewAuditRepo(db *pgxpool.Pool) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Insert(ctx context.Context, e *models.AuditLogEntry) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO ncp_audit_log (ncp_code, changed_by, field_changed, old_value, new_value, description)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, changed_at
	`, e.NCPCode, e.ChangedBy, e.FieldChanged, e.OldValue, e.NewValue, e.Description).
		Scan(&e.ID, &e.ChangedAt)
}

func (r *AuditRepo) ListByCode(ctx context.Context, ncpCode string) ([]models.AuditLogEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, ncp_code, changed_by, field_changed, old_value, new_value, description, changed_at
		FROM ncp_audit_log
		WHERE ncp_code = $1
		ORDER BY changed_at ASC
	`, ncpCode)
	if err != nil {
		return nil, err
	}
	return collectAudit(rows)
}

func (r *AuditRepo) ListRecent(ctx context.Context, limit, offset int) ([]models.AuditLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, ncp_code, changed_by, field_changed, old_value, new_value, description, changed_at
		FROM ncp_audit_log
		ORDER BY changed_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAudit(rows)
}

func collectAudit(rows pgx.Rows) ([]models.AuditLogEntry, error) {
	defer rows.Close()
	var out []models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.NCPCode, &e.ChangedBy, &e.FieldChanged, &e.OldValue, &e.NewValue, &e.Description, &e.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
