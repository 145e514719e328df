package postgres

import (
	"context"

	"qa-portal/internal/models"
	"qa-portal/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepo struct{ db *pgxpool.Pool }

var _ repository.NotificationRepository = (*NotificationRepo)(nil)

func NewNotificationRepo(db *pgxpool.Pool) *NotificationRepo { return &NotificationRepo{db: db} }

func (r *NotificationRepo) Insert(ctx context.Context, n *models.Notification) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO notifications (recipient_user_id, related_ncp_code, title, message, type)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, is_read, created_at
	`, n.RecipientUserID, n.RelatedNCPCode, n.Title, n.Message, n.Type).
		Scan(&n.ID, &n.IsRead, &n.CreatedAt)
}

func (r *NotificationRepo) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, recipient_user_id, related_ncp_code, title, message, type, is_read, created_at
		FROM notifications
		WHERE recipient_user_id = $1 AND (NOT $2::boolean OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientUserID, &n.RelatedNCPCode, &n.Title, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE recipient_user_id = $1 AND NOT is_read
	`, userID).Scan(&n)
	return n, err
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = true
		WHERE id = $1 AND recipient_user_id = $2
	`, id, userID)
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

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = true
		WHERE recipient_user_id = $1 AND NOT is_read
	`, userID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}
