package postgres

import (
	"errors"
	"strconv"

	"qa-portal/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes we branch on.
const (
	pgErrUniqueViolation     = "23505"
	pgErrCheckViolation      = "23514"
	pgErrInvalidTextEncoding = "22P02" // e.g. a malformed uuid literal
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isInvalidText(err error) bool { return pgCode(err) == pgErrInvalidTextEncoding }

// mapErr translates constraint failures into repository sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch pgCode(err) {
	case pgErrUniqueViolation:
		return errors.Join(repository.ErrDuplicate, err)
	case pgErrCheckViolation:
		return errors.Join(repository.ErrOutOfRange, err)
	}
	return err
}

// small helper to avoid fmt for performance-sensitive path.
func itoa(i int) string { return strconv.Itoa(i) }
