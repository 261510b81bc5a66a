package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/isdelr/chirp-be/internal/apperr"
	"github.com/isdelr/chirp-be/internal/models"
	"github.com/isdelr/chirp-be/internal/validation"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt work factor for stored passwords.
const HashCost = 10

// Messages shared with the HTTP layer.
const (
	MsgEmailRegistered    = "Email already registered"
	MsgInvalidCredentials = "Invalid credentials"
	MsgUserNotFound       = "User not found"
)

// SignupInput is the payload accepted when creating an account.
type SignupInput struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginInput is the payload accepted when signing in.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Signup(ctx context.Context, in SignupInput) (models.User, error)
	Authenticate(ctx context.Context, in LoginInput) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetProfile(ctx context.Context, id string) (models.UserProfile, error)
}

// UserService is the credential store.
type UserService struct {
	db *sql.DB
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db}
}

// Signup validates the input and creates a new user with a hashed password.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return models.User{}, err
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", in.Email).Scan(&exists)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return models.User{}, apperr.Conflict(MsgEmailRegistered, 0)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), HashCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	name := in.Name
	user := models.User{
		ID:           newID(),
		Email:        in.Email,
		DisplayName:  &name,
		PasswordHash: string(hashedPassword),
		CreatedAt:    now(),
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users(id, display_name, email, password_hash, created_at) VALUES(?, ?, ?, ?, ?)",
		user.ID, user.DisplayName, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		// Lost a race with a concurrent signup for the same address.
		if isUniqueViolation(err) {
			return models.User{}, apperr.Conflict(MsgEmailRegistered, 0)
		}
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("user_id", user.ID).Msg("User signed up")
	return user, nil
}

// Authenticate checks an email and password pair. Unknown email and wrong
// password produce the same error.
func (s *UserService) Authenticate(ctx context.Context, in LoginInput) (models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return models.User{}, err
	}

	user, err := s.getUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, apperr.Auth(MsgInvalidCredentials)
		}
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return models.User{}, apperr.Auth(MsgInvalidCredentials)
	}
	return user, nil
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	row := s.db.QueryRowContext(ctx, "SELECT id, display_name, email, created_at FROM users WHERE id = ?", id)
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, apperr.NotFound(MsgUserNotFound)
		}
		return models.User{}, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return user, nil
}

// getUserByEmail retrieves a single user by their email, including the password hash.
func (s *UserService) getUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	row := s.db.QueryRowContext(ctx, "SELECT id, display_name, email, password_hash, created_at FROM users WHERE email = ?", email)
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, err
		}
		return models.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetProfile returns a user together with post and follow counters.
func (s *UserService) GetProfile(ctx context.Context, id string) (models.UserProfile, error) {
	var p models.UserProfile
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email, u.created_at,
			(SELECT COUNT(*) FROM posts WHERE author_id = u.id),
			(SELECT COUNT(*) FROM follows WHERE follower_id = u.id),
			(SELECT COUNT(*) FROM follows WHERE following_id = u.id)
		FROM users u WHERE u.id = ?`, id)
	err := row.Scan(&p.ID, &p.DisplayName, &p.Email, &p.CreatedAt,
		&p.Stats.Posts, &p.Stats.Following, &p.Stats.Followers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserProfile{}, apperr.NotFound(MsgUserNotFound)
		}
		return models.UserProfile{}, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return p, nil
}
