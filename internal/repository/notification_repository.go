package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/placementcell/placement-api/internal/models"
)

// NotificationRepository persists the durable notification outbox.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, recipient_ids, kind, subject, body, metadata, dedupe_key, status, attempts, last_error, created_at, sent_at`

// Rows with a dedupe key insert at most once; the conflict target keeps
// periodic producers idempotent.
const insertNotificationQuery = `INSERT INTO notifications (id, recipient_ids, kind, subject, body, metadata, dedupe_key, status, attempts, created_at)
        VALUES (:id, :recipient_ids, :kind, :subject, :body, :metadata, :dedupe_key, :status, :attempts, :created_at)
        ON CONFLICT (dedupe_key) DO NOTHING`

// Create enqueues an outbox row.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	prepareNotification(notification)
	if _, err := r.db.NamedExecContext(ctx, insertNotificationQuery, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func createNotificationIn(ctx context.Context, tx *sqlx.Tx, notification *models.Notification) error {
	prepareNotification(notification)
	if _, err := tx.NamedExecContext(ctx, insertNotificationQuery, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func prepareNotification(notification *models.Notification) {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	if notification.Status == "" {
		notification.Status = models.NotificationPending
	}
}

// FindByID returns an outbox row.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE id = $1", notificationColumns)
	var notification models.Notification
	if err := r.db.GetContext(ctx, &notification, query, id); err != nil {
		return nil, err
	}
	return &notification, nil
}

// FetchPending returns the oldest undelivered rows for the dispatch pump.
func (r *NotificationRepository) FetchPending(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE status = $1 ORDER BY created_at ASC LIMIT %d",
		notificationColumns, limit)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, models.NotificationPending); err != nil {
		return nil, fmt.Errorf("fetch pending notifications: %w", err)
	}
	return notifications, nil
}

// MarkSent records successful delivery.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE notifications SET status = $2, sent_at = $3, last_error = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.NotificationSent, sentAt); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure. Rows stay PENDING until the retry
// budget is exhausted so the pump picks them up again.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string, attempts int, lastError string, exhausted bool) error {
	status := models.NotificationPending
	if exhausted {
		status = models.NotificationFailed
	}
	const query = `UPDATE notifications SET status = $2, attempts = $3, last_error = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, attempts, lastError); err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}
