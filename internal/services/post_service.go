package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/isdelr/chirp-be/internal/models"
	"github.com/isdelr/chirp-be/internal/outbox"
	"github.com/isdelr/chirp-be/internal/validation"
	"github.com/rs/zerolog/log"
)

// CreatePostInput is the payload accepted when publishing a post.
type CreatePostInput struct {
	// max mirrors models.MaxPostLength.
	Text string `json:"text" validate:"required,max=500"`
}

// PostServiceProvider defines the interface for post services.
type PostServiceProvider interface {
	CreatePost(ctx context.Context, authorID string, in CreatePostInput) (models.Post, error)
	ListPosts(ctx context.Context) ([]models.Post, error)
	ListPostsByAuthor(ctx context.Context, authorID string) ([]models.Post, error)
}

// PostService is the post store.
type PostService struct {
	db       *sql.DB
	users    *UserService
	notifier EventNotifier
}

// NewPostService creates a new PostService. notifier is told about every
// committed post so fan-out can start right away; it may be nil.
func NewPostService(db *sql.DB, notifier EventNotifier) *PostService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &PostService{db: db, users: NewUserService(db), notifier: notifier}
}

const postColumns = `p.id, p.text, p.author_id, p.created_at, u.id, u.display_name, u.email`

func scanPost(scanner interface{ Scan(...any) error }) (models.Post, error) {
	var p models.Post
	err := scanner.Scan(&p.ID, &p.Text, &p.AuthorID, &p.CreatedAt,
		&p.Author.ID, &p.Author.DisplayName, &p.Author.Email)
	return p, err
}

// CreatePost stores a post and its post.created event in one transaction.
func (s *PostService) CreatePost(ctx context.Context, authorID string, in CreatePostInput) (models.Post, error) {
	if err := validation.Struct(in); err != nil {
		return models.Post{}, err
	}

	author, err := s.users.GetUserByID(ctx, authorID)
	if err != nil {
		return models.Post{}, err
	}

	post := models.Post{
		ID:        newID(),
		Text:      in.Text,
		AuthorID:  author.ID,
		CreatedAt: now(),
		Author:    author.Summary(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Post{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO posts(id, author_id, text, created_at) VALUES(?, ?, ?, ?)",
		post.ID, post.AuthorID, post.Text, post.CreatedAt,
	)
	if err != nil {
		return models.Post{}, fmt.Errorf("failed to create post: %w", err)
	}
	if _, err := outbox.Enqueue(ctx, tx, models.EventPostCreated, post.AuthorID, post.ID); err != nil {
		return models.Post{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Post{}, fmt.Errorf("failed to commit post: %w", err)
	}

	log.Info().Str("post_id", post.ID).Str("author_id", post.AuthorID).Msg("Post created")
	s.notifier.Notify()
	return post, nil
}

// ListPosts returns every post, newest first.
func (s *PostService) ListPosts(ctx context.Context) ([]models.Post, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+`
		FROM posts p JOIN users u ON u.id = p.author_id
		ORDER BY p.created_at DESC, p.rowid DESC`)
}

// ListPostsByAuthor returns the posts of one author, newest first.
func (s *PostService) ListPostsByAuthor(ctx context.Context, authorID string) ([]models.Post, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+`
		FROM posts p JOIN users u ON u.id = p.author_id
		WHERE p.author_id = ?
		ORDER BY p.created_at DESC, p.rowid DESC`, authorID)
}

func (s *PostService) queryPosts(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
