package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qa-portal/internal/models"
	"qa-portal/internal/repository"
	"qa-portal/internal/workflow"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NCPRepo struct{ db *pgxpool.Pool }

var _ repository.NCPRepository = (*NCPRepo)(nil)

func NewNCPRepo(db *pgxpool.Pool) *NCPRepo { return &NCPRepo{db: db} }

const ncpColumns = `
	id, ncp_code, status,
	sku_code, machine_code, incident_date, incident_time, hold_quantity, hold_quantity_uom,
	problem_description, photo_attachment, submitted_by, submitted_at,
	qa_leader, qa_approved_by, qa_approved_at, disposition, sorted_qty, released_qty, rejected_qty,
	assigned_team_leader, qa_rejection_reason,
	tl_processed_by, tl_processed_at, root_cause_analysis, corrective_action, preventive_action,
	process_approved_by, process_approved_at, process_comment, process_rejection_reason,
	manager_approved_by, manager_approved_at, manager_comment, manager_rejection_reason,
	version, created_at, updated_at`

func scanNCP(row pgx.Row) (*models.NCPReport, error) {
	var r models.NCPReport
	var status string
	err := row.Scan(
		&r.ID, &r.NCPCode, &status,
		&r.SKUCode, &r.MachineCode, &r.IncidentDate, &r.IncidentTime, &r.HoldQuantity, &r.HoldQuantityUOM,
		&r.ProblemDescription, &r.PhotoAttachment, &r.SubmittedBy, &r.SubmittedAt,
		&r.QALeader, &r.QAApprovedBy, &r.QAApprovedAt, &r.Disposition, &r.SortedQty, &r.ReleasedQty, &r.RejectedQty,
		&r.AssignedTeamLeader, &r.QARejectionReason,
		&r.TLProcessedBy, &r.TLProcessedAt, &r.RootCauseAnalysis, &r.CorrectiveAction, &r.PreventiveAction,
		&r.ProcessApprovedBy, &r.ProcessApprovedAt, &r.ProcessComment, &r.ProcessRejectionReason,
		&r.ManagerApprovedBy, &r.ManagerApprovedAt, &r.ManagerComment, &r.ManagerRejectionReason,
		&r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.Status(status)
	return &r, nil
}

// -----------------------------------------------------------------------------
// Code allocation
// -----------------------------------------------------------------------------

// NextCode bumps the per-prefix counter in one statement. The first call for a
// prefix seeds the counter from the highest code already stored, so rows that
// predate the counter table are respected.
func (r *NCPRepo) NextCode(ctx context.Context, prefix string) (string, error) {
	var seq int
	err := r.db.QueryRow(ctx, `
		INSERT INTO ncp_code_sequences (prefix, last_seq)
		SELECT $1::text, COALESCE(MAX(split_part(ncp_code, '-', 2)::int), 0) + 1
		FROM ncp_reports
		WHERE ncp_code ~ ('^' || $1::text || '-[0-9]{4}$')
		ON CONFLICT (prefix) DO UPDATE SET last_seq = ncp_code_sequences.last_seq + 1
		RETURNING last_seq
	`, prefix).Scan(&seq)
	if err != nil {
		return "", mapErr(err)
	}
	return workflow.FormatCode(prefix, seq)
}

// -----------------------------------------------------------------------------
// Single record
// -----------------------------------------------------------------------------

func (r *NCPRepo) Create(ctx context.Context, n *models.NCPReport) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO ncp_reports (
			ncp_code, status, sku_code, machine_code, incident_date, incident_time,
			hold_quantity, hold_quantity_uom, problem_description, photo_attachment,
			submitted_by, submitted_at, qa_leader, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id, version, created_at, updated_at
	`,
		n.NCPCode, string(n.Status), n.SKUCode, n.MachineCode, n.IncidentDate, n.IncidentTime,
		n.HoldQuantity, n.HoldQuantityUOM, n.ProblemDescription, n.PhotoAttachment,
		n.SubmittedBy, n.SubmittedAt, n.QALeader, n.CreatedAt, n.UpdatedAt,
	).Scan(&n.ID, &n.Version, &n.CreatedAt, &n.UpdatedAt)
	return mapErr(err)
}

func (r *NCPRepo) Get(ctx context.Context, id string) (*models.NCPReport, error) {
	n, err := scanNCP(r.db.QueryRow(ctx, `SELECT `+ncpColumns+` FROM ncp_reports WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

func (r *NCPRepo) GetByCode(ctx context.Context, code string) (*models.NCPReport, error) {
	n, err := scanNCP(r.db.QueryRow(ctx, `SELECT `+ncpColumns+` FROM ncp_reports WHERE ncp_code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

// Transition is the only writer of status. The status and version predicates
// make two racing writers resolve to one winner; the loser sees ErrStale.
func (r *NCPRepo) Transition(ctx context.Context, n *models.NCPReport, from models.Status) error {
	err := r.db.QueryRow(ctx, `
		UPDATE ncp_reports SET
			status=$1,
			qa_approved_by=$2, qa_approved_at=$3, disposition=$4,
			sorted_qty=$5, released_qty=$6, rejected_qty=$7,
			assigned_team_leader=$8, qa_rejection_reason=$9,
			tl_processed_by=$10, tl_processed_at=$11,
			root_cause_analysis=$12, corrective_action=$13, preventive_action=$14,
			process_approved_by=$15, process_approved_at=$16,
			process_comment=$17, process_rejection_reason=$18,
			manager_approved_by=$19, manager_approved_at=$20,
			manager_comment=$21, manager_rejection_reason=$22,
			updated_at=$23, version=version+1
		WHERE id=$24 AND status=$25 AND version=$26
		RETURNING version
	`,
		string(n.Status),
		n.QAApprovedBy, n.QAApprovedAt, n.Disposition,
		n.SortedQty, n.ReleasedQty, n.RejectedQty,
		n.AssignedTeamLeader, n.QARejectionReason,
		n.TLProcessedBy, n.TLProcessedAt,
		n.RootCauseAnalysis, n.CorrectiveAction, n.PreventiveAction,
		n.ProcessApprovedBy, n.ProcessApprovedAt,
		n.ProcessComment, n.ProcessRejectionReason,
		n.ManagerApprovedBy, n.ManagerApprovedAt,
		n.ManagerComment, n.ManagerRejectionReason,
		n.UpdatedAt,
		n.ID, string(from), n.Version,
	).Scan(&n.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrStale
	}
	return mapErr(err)
}

func (r *NCPRepo) UpdateFields(ctx context.Context, n *models.NCPReport, columns []string) error {
	if len(columns) == 0 {
		return nil
	}
	sets := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+2)
	for _, col := range columns {
		v, ok := n.ColumnValue(col)
		if !ok {
			return fmt.Errorf("column %q is not editable", col)
		}
		args = append(args, v)
		sets = append(sets, col+"=$"+itoa(len(args)))
	}
	args = append(args, n.UpdatedAt)
	sets = append(sets, "updated_at=$"+itoa(len(args)), "version=version+1")
	args = append(args, n.ID, n.Version)

	err := r.db.QueryRow(ctx,
		`UPDATE ncp_reports SET `+strings.Join(sets, ", ")+
			` WHERE id=$`+itoa(len(args)-1)+` AND version=$`+itoa(len(args))+
			` RETURNING version`,
		args...).Scan(&n.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrStale
	}
	return mapErr(err)
}

func (r *NCPRepo) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM ncp_reports WHERE id = $1`, id)
	if err != nil {
		if isInvalidText(err) {
			return repository.ErrNotFound
		}
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------
// Listing with filters + pagination + sort
// -----------------------------------------------------------------------------

func (r *NCPRepo) List(ctx context.Context, f repository.NCPFilter) ([]models.NCPReport, int, error) {
	limit, offset := f.Limit, f.Offset
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	whereSQL, args := buildNCPWhere(f)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM ncp_reports `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM ncp_reports
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, ncpColumns, whereSQL, sanitizeSort(f.Sort, "submitted_at"), sanitizeOrder(f.Order, "desc"), len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.NCPReport
	for rows.Next() {
		n, err := scanNCP(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *n)
	}
	return out, total, rows.Err()
}

func (r *NCPRepo) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM ncp_reports GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[models.Status]int, len(models.Statuses))
	for _, s := range models.Statuses {
		out[s] = 0
	}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[models.Status(s)] = n
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func buildNCPWhere(f repository.NCPFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if s := strings.TrimSpace(f.Q); s != "" {
		p := "%" + s + "%"
		args = append(args, p)
		n := itoa(len(args))
		clauses = append(clauses, "(ncp_code ILIKE $"+n+" OR sku_code ILIKE $"+n+" OR machine_code ILIKE $"+n+" OR problem_description ILIKE $"+n+")")
	}
	if len(f.Statuses) > 0 {
		ss := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ss[i] = string(s)
		}
		args = append(args, ss)
		clauses = append(clauses, "status = ANY($"+itoa(len(args))+")")
	}
	if s := strings.TrimSpace(f.QALeader); s != "" {
		args = append(args, s)
		clauses = append(clauses, "qa_leader = $"+itoa(len(args)))
	}
	if s := strings.TrimSpace(f.AssignedTeamLeader); s != "" {
		args = append(args, s)
		clauses = append(clauses, "assigned_team_leader = $"+itoa(len(args)))
	}
	if s := strings.TrimSpace(f.SubmittedBy); s != "" {
		args = append(args, s)
		clauses = append(clauses, "submitted_by = $"+itoa(len(args)))
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func sanitizeSort(s, def string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "submitted_at", "updated_at", "ncp_code":
		return s
	default:
		return def
	}
}

func sanitizeOrder(o, def string) string {
	switch o = strings.ToLower(strings.TrimSpace(o)); o {
	case "asc", "desc":
		return o
	default:
		return def
	}
}
