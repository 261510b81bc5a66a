package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/chirp-be/internal/services"
)

// UserHandler serves user profiles.
type UserHandler struct {
	service services.UserServiceProvider
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider) *UserHandler {
	return &UserHandler{service: service}
}

// Me returns the caller's profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.writeProfile(w, r, id.ID)
}

// Get returns the profile of the user in the path.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.writeProfile(w, r, chi.URLParam(r, "userId"))
}

func (h *UserHandler) writeProfile(w http.ResponseWriter, r *http.Request, userID string) {
	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}
