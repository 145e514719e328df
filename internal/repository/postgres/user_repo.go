package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qa-portal/internal/models"
	"qa-portal/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepo struct{ db *pgxpool.Pool }

func NewUserRepo(db *pgxpool.Pool) repository.UserRepository { return &UserRepo{db: db} }

const userColumns = `id, username, full_name, role, active, created_at, updated_at`

func scanUser(row pgx.Row, extra ...any) (*models.User, error) {
	var u models.User
	var role string
	dest := append([]any{&u.ID, &u.Username, &u.FullName, &role, &u.Active, &u.CreatedAt, &u.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

// Create user (stores bcrypt hash in password_h)
func (r *UserRepo) Create(ctx context.Context, username, fullName string, role models.Role, passwordHash string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `
		INSERT INTO users (username, full_name, role, password_h)
		VALUES ($1,$2,$3,$4)
		RETURNING `+userColumns,
		username, fullName, string(role), passwordHash))
	return u, mapErr(err)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, string, error) {
	var ph string
	u, err := scanUser(r.db.QueryRow(ctx, `
		SELECT `+userColumns+`, password_h
		FROM users WHERE username=$1`, username), &ph)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return u, ph, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// ListActiveByRole backs role fan-out notifications.
func (r *UserRepo) ListActiveByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role=$1 AND active
		ORDER BY username`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Admin/list/update operations
// -----------------------------------------------------------------------------

// List returns a filtered, paginated list of users and total count.
// Filters: q (matches username or full name, ILIKE), role (exact), active (*bool).
func (r *UserRepo) List(ctx context.Context, q string, role models.Role, active *bool, limit, offset int) ([]models.User, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	clauses := []string{"1=1"}
	args := []any{}

	if s := strings.TrimSpace(q); s != "" {
		p := "%" + s + "%"
		args = append(args, p, p)
		clauses = append(clauses, "(username ILIKE $"+itoa(len(args)-1)+" OR full_name ILIKE $"+itoa(len(args))+")")
	}
	if role != "" {
		args = append(args, string(role))
		clauses = append(clauses, "role = $"+itoa(len(args)))
	}
	if active != nil {
		args = append(args, *active)
		clauses = append(clauses, "active = $"+itoa(len(args)))
	}

	// Count
	countSQL := `SELECT COUNT(*) FROM users WHERE ` + strings.Join(clauses, " AND ")
	var total int
	if err := r.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Page
	args = append(args, limit, offset)
	listSQL := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d
	`, userColumns, strings.Join(clauses, " AND "), len(args)-1, len(args))
	rows, err := r.db.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

func (r *UserRepo) UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	return r.updateReturning(ctx, `SET role=$1, updated_at=now() WHERE id=$2`, string(role), id)
}

func (r *UserRepo) SetActive(ctx context.Context, id string, active bool) (*models.User, error) {
	return r.updateReturning(ctx, `SET active=$1, updated_at=now() WHERE id=$2`, active, id)
}

func (r *UserRepo) UpdateBasic(ctx context.Context, id, fullName string) (*models.User, error) {
	return r.updateReturning(ctx, `SET full_name=$1, updated_at=now() WHERE id=$2`, fullName, id)
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE users
		SET password_h=$1, updated_at=now()
		WHERE id=$2
	`, passwordHash, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepo) updateReturning(ctx context.Context, set string, args ...any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `UPDATE users `+set+` RETURNING `+userColumns, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}
