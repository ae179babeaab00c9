package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/herald/herald-go/internal/model"
)

// NotificationRepository handles notification persistence operations.
type NotificationRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db, now: utcNow}
}

// Create inserts a notification and sets its generated ID and creation time.
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `INSERT INTO notifications (user_id, title, body, created_at) VALUES (?, ?, ?, ?)`

	now := r.now()
	result, err := r.db.ExecContext(ctx, query, n.UserID, n.Title, n.Body, now)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	n.ID = id
	n.CreatedAt = now
	return nil
}

// ListByUser retrieves all notifications for a user, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64) ([]model.Notification, error) {
	query := `SELECT id, user_id, title, body, created_at
		FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}
