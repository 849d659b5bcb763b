package postgres

import (
	"context"
	"fmt"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/pkg/database"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
)

// NotificationRepository implements repository.NotificationRepository using PostgreSQL.
type NotificationRepository struct {
	db database.DBTX
}

// NewNotificationRepository creates a new PostgreSQL-backed notification log.
func NewNotificationRepository(db database.DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, order_id, channel, recipient, template, subject,
		                           status, attempts, last_error, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID,
		nullable(n.OrderID),
		n.Channel,
		n.Recipient,
		n.Template,
		n.Subject,
		n.Status,
		n.Attempts,
		n.LastError,
		n.SentAt,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Update persists delivery progress.
func (r *NotificationRepository) Update(ctx context.Context, n *domain.Notification) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET status = $1, attempts = $2, last_error = $3, sent_at = $4
		WHERE id = $5`,
		n.Status, n.Attempts, n.LastError, n.SentAt, n.ID)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("notification", n.ID)
	}
	return nil
}

// ListByOrder returns the notifications of an order, oldest first.
func (r *NotificationRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, channel, recipient, template, subject, status, attempts,
		       last_error, sent_at, created_at
		FROM notifications
		WHERE order_id = $1
		ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []domain.Notification{}
	for rows.Next() {
		var (
			n       domain.Notification
			orderID *string
		)
		if err := rows.Scan(
			&n.ID,
			&orderID,
			&n.Channel,
			&n.Recipient,
			&n.Template,
			&n.Subject,
			&n.Status,
			&n.Attempts,
			&n.LastError,
			&n.SentAt,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.OrderID = orEmpty(orderID)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification rows: %w", err)
	}
	return out, nil
}
