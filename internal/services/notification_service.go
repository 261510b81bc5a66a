package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/isdelr/chirp-be/internal/apperr"
	"github.com/isdelr/chirp-be/internal/auth"
	"github.com/isdelr/chirp-be/internal/models"
)

// MsgNotificationNotFound is returned when a notification id is unknown.
const MsgNotificationNotFound = "Notification not found"

// NotificationServiceProvider defines the interface for the inbox.
type NotificationServiceProvider interface {
	List(ctx context.Context, userID string) ([]models.NotificationView, error)
	MarkRead(ctx context.Context, caller auth.Identity, notificationID string) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// NotificationService is a user's notification inbox.
type NotificationService struct {
	db *sql.DB
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(db *sql.DB) *NotificationService {
	return &NotificationService{db: db}
}

// List returns the user's notifications newest first, with actor and post.
func (s *NotificationService) List(ctx context.Context, userID string) ([]models.NotificationView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.type, n.is_read, n.created_at,
			a.id, a.display_name, a.email,
			p.id, p.text
		FROM notifications n
		JOIN users a ON a.id = n.actor_id
		LEFT JOIN posts p ON p.id = n.post_id
		WHERE n.user_id = ?
		ORDER BY n.created_at DESC, n.rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	views := []models.NotificationView{}
	for rows.Next() {
		var (
			v        models.NotificationView
			postID   sql.NullString
			postText sql.NullString
		)
		err := rows.Scan(&v.ID, &v.Type, &v.Read, &v.CreatedAt,
			&v.Actor.ID, &v.Actor.DisplayName, &v.Actor.Email,
			&postID, &postText)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if postID.Valid {
			v.Post = &models.PostSummary{ID: postID.String, Text: postText.String}
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// MarkRead marks one notification as read. Only its recipient may do so.
// Marking an already read notification succeeds.
func (s *NotificationService) MarkRead(ctx context.Context, caller auth.Identity, notificationID string) (models.Notification, error) {
	n, err := s.get(ctx, notificationID)
	if err != nil {
		return models.Notification{}, err
	}
	if err := auth.Permit(caller, n.UserID); err != nil {
		return models.Notification{}, err
	}

	if !n.Read {
		_, err = s.db.ExecContext(ctx, "UPDATE notifications SET is_read = 1 WHERE id = ?", n.ID)
		if err != nil {
			return models.Notification{}, fmt.Errorf("failed to mark notification read: %w", err)
		}
		n.Read = true
	}
	return n, nil
}

// MarkAllRead marks every unread notification of userID as read and returns
// how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

// UnreadCount returns the number of unread notifications of userID.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0", userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationService) get(ctx context.Context, id string) (models.Notification, error) {
	var n models.Notification
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, type, user_id, actor_id, post_id, is_read, created_at
		FROM notifications WHERE id = ?`, id)
	err := row.Scan(&n.ID, &n.EventID, &n.Type, &n.UserID, &n.ActorID, &n.PostID, &n.Read, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Notification{}, apperr.NotFound(MsgNotificationNotFound)
		}
		return models.Notification{}, fmt.Errorf("failed to get notification %s: %w", id, err)
	}
	return n, nil
}
