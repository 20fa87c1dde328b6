package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// NotificationRepository is the outbox read by the delivery transport.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create queues a notification and returns its identifier.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) (string, error) {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, type, recipient_id, recipient_type, payload, created_at)
	VALUES (:id, :type, :recipient_id, :recipient_type, :payload, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return "", fmt.Errorf("create notification: %w", err)
	}
	return notification.ID, nil
}
