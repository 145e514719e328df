package service

import (
	"context"

	"qa-portal/internal/models"
	"qa-portal/internal/repository"
	"qa-portal/internal/workflow"

	"github.com/rs/zerolog"
)

// Dispatcher delivers workflow notices. Delivery is best-effort: failures are
// logged and never reach the operation that produced the notice.
type Dispatcher struct {
	users repository.UserRepository
	notes repository.NotificationRepository
	log   zerolog.Logger
}

func NewDispatcher(users repository.UserRepository, notes repository.NotificationRepository, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{users: users, notes: notes, log: log.With().Str("component", "dispatcher").Logger()}
}

// NotifyUser stores one notification for userID. It reports whether the write succeeded.
func (d *Dispatcher) NotifyUser(ctx context.Context, userID, ncpCode, title, message, typ string) bool {
	n := &models.Notification{
		RecipientUserID: userID,
		RelatedNCPCode:  ncpCode,
		Title:           title,
		Message:         message,
		Type:            typ,
	}
	if err := d.notes.Insert(ctx, n); err != nil {
		d.log.Warn().Err(err).Str("ncp", ncpCode).Str("recipient", userID).Msg("notification not stored")
		return false
	}
	return true
}

// NotifyUsername resolves username and notifies that user.
func (d *Dispatcher) NotifyUsername(ctx context.Context, username, ncpCode, title, message, typ string) bool {
	u, _, err := d.users.GetByUsername(ctx, username)
	if err != nil {
		d.log.Warn().Err(err).Str("ncp", ncpCode).Str("username", username).Msg("recipient lookup failed")
		return false
	}
	if u == nil || !u.Active {
		d.log.Warn().Str("ncp", ncpCode).Str("username", username).Msg("recipient unknown or inactive")
		return false
	}
	return d.NotifyUser(ctx, u.ID, ncpCode, title, message, typ)
}

// NotifyRole fans out to every active user holding role and returns how many
// notifications were stored. A failed send does not stop the rest.
func (d *Dispatcher) NotifyRole(ctx context.Context, role models.Role, ncpCode, title, message, typ string) int {
	users, err := d.users.ListActiveByRole(ctx, role)
	if err != nil {
		d.log.Warn().Err(err).Str("ncp", ncpCode).Str("role", string(role)).Msg("role lookup failed")
		return 0
	}
	sent := 0
	for _, u := range users {
		if d.NotifyUser(ctx, u.ID, ncpCode, title, message, typ) {
			sent++
		}
	}
	return sent
}

// Emit delivers the notices of a committed decision.
func (d *Dispatcher) Emit(ctx context.Context, ncpCode string, notices []workflow.Notice) {
	for _, n := range notices {
		switch {
		case n.Username != "":
			d.NotifyUsername(ctx, n.Username, ncpCode, n.Title, n.Message, n.Type)
		case n.Role != "":
			d.NotifyRole(ctx, n.Role, ncpCode, n.Title, n.Message, n.Type)
		default:
			d.log.Warn().Str("ncp", ncpCode).Str("type", n.Type).Msg("notice without recipient dropped")
		}
	}
}
