package service

import (
	"context"

	"qa-portal/internal/models"
	"qa-portal/internal/repository"
	"qa-portal/internal/workflow"

	"github.com/rs/zerolog"
)

// AuditRecorder appends to the NCP audit trail. Writes are best-effort.
type AuditRecorder struct {
	repo repository.AuditRepository
	log  zerolog.Logger
}

func NewAuditRecorder(repo repository.AuditRepository, log zerolog.Logger) *AuditRecorder {
	return &AuditRecorder{repo: repo, log: log.With().Str("component", "audit").Logger()}
}

func (a *AuditRecorder) Record(ctx context.Context, ncpCode, changedBy, field, oldValue, newValue, description string) {
	e := &models.AuditLogEntry{
		NCPCode:      ncpCode,
		ChangedBy:    changedBy,
		FieldChanged: field,
		OldValue:     oldValue,
		NewValue:     newValue,
		Description:  description,
	}
	if err := a.repo.Insert(ctx, e); err != nil {
		a.log.Warn().Err(err).Str("ncp", ncpCode).Str("field", field).Msg("audit entry not stored")
	}
}

// RecordChanges writes one entry per change, in order.
func (a *AuditRecorder) RecordChanges(ctx context.Context, ncpCode, changedBy string, changes []workflow.Change) {
	for _, c := range changes {
		a.Record(ctx, ncpCode, changedBy, c.Field, c.Old, c.New, c.Description)
	}
}

func (a *AuditRecorder) History(ctx context.Context, ncpCode string) ([]models.AuditLogEntry, error) {
	out, err := a.repo.ListByCode(ctx, ncpCode)
	if err != nil {
		return nil, workflow.Persistence("list audit", err)
	}
	return out, nil
}

func (a *AuditRecorder) Recent(ctx context.Context, limit, offset int) ([]models.AuditLogEntry, error) {
	out, err := a.repo.ListRecent(ctx, limit, offset)
	if err != nil {
		return nil, workflow.Persistence("list audit", err)
	}
	return out, nil
}
