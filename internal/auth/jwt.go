package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/isdelr/chirp-be/internal/models"
)

// TokenValidity is how long an issued token stays valid.
const TokenValidity = 7 * 24 * time.Hour

// ErrInvalidToken is returned for any token that fails verification:
// bad signature, malformed payload or expiry.
var ErrInvalidToken = errors.New("invalid token")

// Claims defines the JWT claims structure. The user id travels in "sub".
type Claims struct {
	Email       string  `json:"email"`
	DisplayName *string `json:"displayName"`
	jwt.RegisteredClaims
}

// Identity is the verified caller attached to a request.
type Identity struct {
	ID          string
	Email       string
	DisplayName *string
}

// TokenService issues and verifies signed identity tokens.
type TokenService struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// NewTokenService creates a TokenService signing with secret.
// A non-positive validity falls back to TokenValidity.
func NewTokenService(secret string, validity time.Duration) *TokenService {
	if validity <= 0 {
		validity = TokenValidity
	}
	return &TokenService{
		secret:   []byte(secret),
		validity: validity,
		now:      time.Now,
	}
}

// Issue creates a new JWT for a given user.
func (s *TokenService) Issue(user models.User) (string, error) {
	now := s.now()
	claims := &Claims{
		Email:       user.Email,
		DisplayName: user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.validity)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a JWT string.
func (s *TokenService) Verify(tokenStr string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		ID:          claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
	}, nil
}
