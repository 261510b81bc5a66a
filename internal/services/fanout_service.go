package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/isdelr/chirp-be/internal/models"
)

// fanoutBatchSize caps the rows per INSERT so the statement stays under
// SQLite's bound parameter limit.
const fanoutBatchSize = 500

// FanoutService turns follow and post events into inbox notifications.
type FanoutService struct {
	db *sql.DB
}

// NewFanoutService creates a new FanoutService.
func NewFanoutService(db *sql.DB) *FanoutService {
	return &FanoutService{db: db}
}

// HandleEvent dispatches an outbox event to the matching fan-out and returns
// the notifications it created.
func (s *FanoutService) HandleEvent(ctx context.Context, ev models.Event) ([]models.Notification, error) {
	switch ev.Type {
	case models.EventFollowCreated:
		return s.OnFollowCreated(ctx, ev.ID, ev.ActorID, ev.SubjectID)
	case models.EventPostCreated:
		return s.OnPostCreated(ctx, ev.ID, ev.SubjectID, ev.ActorID)
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
}

// OnFollowCreated notifies followingID that followerID started following them.
func (s *FanoutService) OnFollowCreated(ctx context.Context, eventID, followerID, followingID string) ([]models.Notification, error) {
	n := models.Notification{
		ID:        newID(),
		EventID:   eventID,
		Type:      models.NotificationFollow,
		UserID:    followingID,
		ActorID:   followerID,
		CreatedAt: now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	created, err := insertNotifications(ctx, tx, []models.Notification{n})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit notifications: %w", err)
	}
	return created, nil
}

// OnPostCreated notifies the followers authorID had when postID was created.
// Follows made after the post are skipped, however late the event is
// processed. An author without followers is a no-op.
func (s *FanoutService) OnPostCreated(ctx context.Context, eventID, postID, authorID string) ([]models.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	followerIDs, err := followersAtPostTx(ctx, tx, authorID, postID)
	if err != nil {
		return nil, err
	}
	if len(followerIDs) == 0 {
		return nil, nil
	}

	createdAt := now()
	pending := make([]models.Notification, 0, len(followerIDs))
	for _, followerID := range followerIDs {
		pid := postID
		pending = append(pending, models.Notification{
			ID:        newID(),
			EventID:   eventID,
			Type:      models.NotificationNewPost,
			UserID:    followerID,
			ActorID:   authorID,
			PostID:    &pid,
			CreatedAt: createdAt,
		})
	}

	var created []models.Notification
	for start := 0; start < len(pending); start += fanoutBatchSize {
		end := min(start+fanoutBatchSize, len(pending))
		batch, err := insertNotifications(ctx, tx, pending[start:end])
		if err != nil {
			return nil, err
		}
		created = append(created, batch...)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit notifications: %w", err)
	}
	return created, nil
}

// followersAtPostTx returns the followers of userID whose follow is no newer
// than postID. Timestamps are stored in one UTC layout and compare as text.
func followersAtPostTx(ctx context.Context, tx *sql.Tx, userID, postID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT follower_id FROM follows
		WHERE following_id = ?
			AND created_at <= (SELECT created_at FROM posts WHERE id = ?)`, userID, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to query followers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan follower: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// insertNotifications writes ns with a single statement. Rows whose
// (event_id, user_id) already exist are skipped, and only the rows actually
// inserted are returned.
func insertNotifications(ctx context.Context, tx *sql.Tx, ns []models.Notification) ([]models.Notification, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO notifications(id, event_id, type, user_id, actor_id, post_id, is_read, created_at) VALUES ")
	args := make([]any, 0, len(ns)*7)
	for i, n := range ns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, 0, ?)")
		args = append(args, n.ID, n.EventID, string(n.Type), n.UserID, n.ActorID, n.PostID, n.CreatedAt)
	}
	sb.WriteString(" ON CONFLICT(event_id, user_id) DO NOTHING RETURNING id")

	rows, err := tx.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert notifications: %w", err)
	}
	defer rows.Close()

	inserted := make(map[string]bool, len(ns))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan notification id: %w", err)
		}
		inserted[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to insert notifications: %w", err)
	}

	created := make([]models.Notification, 0, len(inserted))
	for _, n := range ns {
		if inserted[n.ID] {
			created = append(created, n)
		}
	}
	return created, nil
}
