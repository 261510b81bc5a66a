package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/isdelr/chirp-be/internal/apperr"
	"github.com/isdelr/chirp-be/internal/models"
	"github.com/isdelr/chirp-be/internal/outbox"
	"github.com/rs/zerolog/log"
)

// Messages shared with the HTTP layer.
const (
	MsgCannotFollowSelf = "Cannot follow yourself"
	MsgAlreadyFollowing = "Already following this user"
	MsgNotFollowing     = "Not following this user"
)

// FollowServiceProvider defines the interface for the follow graph.
type FollowServiceProvider interface {
	Follow(ctx context.Context, followerID, followingID string) (models.Follow, error)
	Unfollow(ctx context.Context, followerID, followingID string) error
	Followers(ctx context.Context, userID string) ([]models.FollowEntry, error)
	Following(ctx context.Context, userID string) ([]models.FollowEntry, error)
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
}

// FollowService maintains directed follow edges between users.
type FollowService struct {
	db       *sql.DB
	users    *UserService
	notifier EventNotifier
}

// NewFollowService creates a new FollowService. notifier may be nil.
func NewFollowService(db *sql.DB, notifier EventNotifier) *FollowService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &FollowService{db: db, users: NewUserService(db), notifier: notifier}
}

// Follow adds the edge followerID -> followingID and records a
// follow.created event in the same transaction.
func (s *FollowService) Follow(ctx context.Context, followerID, followingID string) (models.Follow, error) {
	if followerID == followingID {
		return models.Follow{}, apperr.Conflict(MsgCannotFollowSelf, http.StatusBadRequest)
	}
	if _, err := s.users.GetUserByID(ctx, followingID); err != nil {
		return models.Follow{}, err
	}

	follow := models.Follow{
		FollowerID:  followerID,
		FollowingID: followingID,
		CreatedAt:   now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Follow{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO follows(follower_id, following_id, created_at) VALUES(?, ?, ?)",
		follow.FollowerID, follow.FollowingID, follow.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Follow{}, apperr.Conflict(MsgAlreadyFollowing, http.StatusBadRequest)
		}
		return models.Follow{}, fmt.Errorf("failed to create follow: %w", err)
	}
	if _, err := outbox.Enqueue(ctx, tx, models.EventFollowCreated, followerID, followingID); err != nil {
		return models.Follow{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Follow{}, fmt.Errorf("failed to commit follow: %w", err)
	}

	log.Info().Str("follower_id", followerID).Str("following_id", followingID).Msg("User followed")
	s.notifier.Notify()
	return follow, nil
}

// Unfollow removes the edge followerID -> followingID.
func (s *FollowService) Unfollow(ctx context.Context, followerID, followingID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM follows WHERE follower_id = ? AND following_id = ?", followerID, followingID)
	if err != nil {
		return fmt.Errorf("failed to delete follow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete follow: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(MsgNotFollowing)
	}
	return nil
}

// Followers lists the users following userID, most recent first.
func (s *FollowService) Followers(ctx context.Context, userID string) ([]models.FollowEntry, error) {
	return s.queryEntries(ctx, `
		SELECT u.id, u.display_name, u.email, f.created_at
		FROM follows f JOIN users u ON u.id = f.follower_id
		WHERE f.following_id = ?
		ORDER BY f.created_at DESC, f.rowid DESC`, userID)
}

// Following lists the users userID follows, most recent first.
func (s *FollowService) Following(ctx context.Context, userID string) ([]models.FollowEntry, error) {
	return s.queryEntries(ctx, `
		SELECT u.id, u.display_name, u.email, f.created_at
		FROM follows f JOIN users u ON u.id = f.following_id
		WHERE f.follower_id = ?
		ORDER BY f.created_at DESC, f.rowid DESC`, userID)
}

func (s *FollowService) queryEntries(ctx context.Context, query, userID string) ([]models.FollowEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query follows: %w", err)
	}
	defer rows.Close()

	entries := []models.FollowEntry{}
	for rows.Next() {
		var e models.FollowEntry
		if err := rows.Scan(&e.ID, &e.DisplayName, &e.Email, &e.FollowedAt); err != nil {
			return nil, fmt.Errorf("failed to scan follow: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// IsFollowing reports whether the edge followerID -> followingID exists.
func (s *FollowService) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM follows WHERE follower_id = ? AND following_id = ?)",
		followerID, followingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check follow: %w", err)
	}
	return exists, nil
}
