package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"qa-portal/internal/models"
	"qa-portal/internal/repository"
	"qa-portal/internal/utils"
	"qa-portal/internal/workflow"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	sessionTTL     = 24 * time.Hour
	minPasswordLen = 6
	// SuperAdminUsername is the account seeded on an empty user table.
	SuperAdminUsername = "superadmin"
)

type AuthService struct {
	users         repository.UserRepository
	sessionSecret string
}

func NewAuthService(users repository.UserRepository, sessionSecret string) *AuthService {
	return &AuthService{users: users, sessionSecret: sessionSecret}
}

// CreateUser registers an account. Accounts are provisioned by admins; there
// is no self-registration.
func (a *AuthService) CreateUser(ctx context.Context, username, fullName, password string, role models.Role) (*models.User, error) {
	username = strings.TrimSpace(username)
	fullName = strings.TrimSpace(fullName)
	if username == "" || fullName == "" {
		return nil, workflow.Validationf("username and fullName are required")
	}
	if len(password) < minPasswordLen {
		return nil, workflow.Validationf("password must be at least %d characters", minPasswordLen)
	}
	if !role.Valid() {
		return nil, workflow.Validationf("unknown role %q", role)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u, err := a.users.Create(ctx, username, fullName, role, hash)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, workflow.Validationf("username %q is taken", username)
		}
		return nil, workflow.Persistence("create user", err)
	}
	return u, nil
}

func (a *AuthService) SetPassword(ctx context.Context, id, password string) error {
	if len(password) < minPasswordLen {
		return workflow.Validationf("password must be at least %d characters", minPasswordLen)
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	if err := a.users.UpdatePasswordHash(ctx, id, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return workflow.NotFoundf("user %s", id)
		}
		return workflow.Persistence("update password", err)
	}
	return nil
}

// EnsureSuperAdmin creates the super admin account when it does not exist yet.
func (a *AuthService) EnsureSuperAdmin(ctx context.Context, password string) (created bool, err error) {
	u, _, err := a.users.GetByUsername(ctx, SuperAdminUsername)
	if err != nil {
		return false, err
	}
	if u != nil {
		return false, nil
	}
	if _, err := a.CreateUser(ctx, SuperAdminUsername, "Super Admin", password, models.RoleSuperAdmin); err != nil {
		return false, err
	}
	return true, nil
}

func (a *AuthService) Login(ctx context.Context, username, password string) (token string, user *models.User, err error) {
	u, hash, err := a.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", nil, err
	}
	if u == nil || !u.Active {
		return "", nil, ErrInvalidCredentials
	}
	if !utils.CheckPassword(hash, password) {
		return "", nil, ErrInvalidCredentials
	}
	tok, err := utils.SignJWT(a.sessionSecret, u.ID, u.Username, string(u.Role), sessionTTL)
	if err != nil {
		return "", nil, err
	}
	return tok, u, nil
}
