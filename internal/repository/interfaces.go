package repository

import (
	"context"
	"errors"

	"qa-portal/internal/models"
)

var (
	// ErrNotFound: no row matched the id.
	ErrNotFound = errors.New("record not found")
	// ErrStale: a conditional write matched zero rows because the record moved
	// on (status or version) since it was loaded.
	ErrStale = errors.New("record changed")
	// ErrDuplicate: a unique constraint rejected the write.
	ErrDuplicate = errors.New("duplicate key")
	// ErrOutOfRange: a check constraint rejected a value.
	ErrOutOfRange = errors.New("value out of range")
)

type NCPRepository interface {
	// NextCode atomically allocates the next YYMM-NNNN code under prefix.
	NextCode(ctx context.Context, prefix string) (string, error)
	Create(ctx context.Context, r *models.NCPReport) error
	// Get and GetByCode return nil, nil when nothing matches.
	Get(ctx context.Context, id string) (*models.NCPReport, error)
	GetByCode(ctx context.Context, code string) (*models.NCPReport, error)
	List(ctx context.Context, f NCPFilter) ([]models.NCPReport, int, error)
	// Transition writes status and the workflow-owned columns of r, only if
	// the stored status still equals from and the stored version still equals
	// r.Version. ErrStale otherwise. On success r.Version is the new version.
	Transition(ctx context.Context, r *models.NCPReport, from models.Status) error
	// UpdateFields writes the named columns of r under the same version
	// guard as Transition.
	UpdateFields(ctx context.Context, r *models.NCPReport, columns []string) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
}

type UserRepository interface {
	Create(ctx context.Context, username, fullName string, role models.Role, passwordHash string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, string /*passwordHash*/, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, q string, role models.Role, active *bool, limit, offset int) ([]models.User, int, error)
	ListActiveByRole(ctx context.Context, role models.Role) ([]models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error)
	SetActive(ctx context.Context, id string, active bool) (*models.User, error)
	UpdateBasic(ctx context.Context, id, fullName string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

type NotificationRepository interface {
	Insert(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	// MarkRead only touches notifications owned by userID.
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

type AuditRepository interface {
	Insert(ctx context.Context, e *models.AuditLogEntry) error
	ListByCode(ctx context.Context, ncpCode string) ([]models.AuditLogEntry, error)
	ListRecent(ctx context.Context, limit, offset int) ([]models.AuditLogEntry, error)
}
