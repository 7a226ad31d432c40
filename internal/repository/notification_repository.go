package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kerane/projectdesk-api/internal/models"
)

// NotificationRepository persists in-app notifications and preferences.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts an in-app notification.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	notification.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO notifications (id, user_id, type, title, message, metadata, read, read_at, created_at)
	VALUES (:id, :user_id, :type, :title, :message, :metadata, :read, :read_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, user_id, type, title, message, metadata, read, read_at, created_at
	FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, userID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// CountUnread returns the user's unread notification count.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one of the user's notifications read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	const query = `UPDATE notifications SET read = TRUE, read_at = $3 WHERE id = $1 AND user_id = $2 AND read = FALSE`
	result, err := r.db.ExecContext(ctx, query, id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check notification rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	const query = `UPDATE notifications SET read = TRUE, read_at = $2 WHERE user_id = $1 AND read = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// GetPreferences returns the user's stored preferences, falling back to the
// opt-in defaults when no row exists.
func (r *NotificationRepository) GetPreferences(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	const query = `SELECT user_id, email_task_activity, email_status_changes, email_project_events, in_app_enabled, updated_at
	FROM notification_preferences WHERE user_id = $1`
	var pref models.NotificationPreference
	if err := r.db.GetContext(ctx, &pref, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			def := models.DefaultNotificationPreference(userID)
			return &def, nil
		}
		return nil, fmt.Errorf("get notification preferences: %w", err)
	}
	return &pref, nil
}

// UpsertPreferences stores the user's preferences.
func (r *NotificationRepository) UpsertPreferences(ctx context.Context, pref *models.NotificationPreference) error {
	pref.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO notification_preferences (user_id, email_task_activity, email_status_changes, email_project_events, in_app_enabled, updated_at)
	VALUES (:user_id, :email_task_activity, :email_status_changes, :email_project_events, :in_app_enabled, :updated_at)
	ON CONFLICT (user_id) DO UPDATE SET
		email_task_activity = EXCLUDED.email_task_activity,
		email_status_changes = EXCLUDED.email_status_changes,
		email_project_events = EXCLUDED.email_project_events,
		in_app_enabled = EXCLUDED.in_app_enabled,
		updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, pref); err != nil {
		return fmt.Errorf("upsert notification preferences: %w", err)
	}
	return nil
}
