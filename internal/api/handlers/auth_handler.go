package handlers

import (
	"net/http"

	"github.com/isdelr/chirp-be/internal/models"
	"github.com/isdelr/chirp-be/internal/services"
	"github.com/rs/zerolog/log"
)

// TokenIssuer signs tokens for authenticated users.
type TokenIssuer interface {
	Issue(user models.User) (string, error)
}

type authResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

// AuthHandler handles signup, login and the current session.
type AuthHandler struct {
	users  services.UserServiceProvider
	tokens TokenIssuer
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users services.UserServiceProvider, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

// Signup handles new user registration.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload services.SignupInput
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.users.Signup(r.Context(), payload)
	if err != nil {
		respondError(w, r, err)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate JWT")
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

// Login handles user authentication and token issuance.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload services.LoginInput
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), payload)
	if err != nil {
		respondError(w, r, err)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate JWT")
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

// Me returns the user behind the presented token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.users.GetUserByID(r.Context(), id.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}
