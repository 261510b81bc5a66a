package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/chirp-be/internal/services"
)

// FollowHandler handles HTTP requests for the follow graph.
type FollowHandler struct {
	service services.FollowServiceProvider
}

// NewFollowHandler creates a new FollowHandler.
func NewFollowHandler(service services.FollowServiceProvider) *FollowHandler {
	return &FollowHandler{service: service}
}

// Follow makes the caller follow the user in the path.
func (h *FollowHandler) Follow(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	follow, err := h.service.Follow(r.Context(), id.ID, chi.URLParam(r, "userId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Successfully followed user",
		"follow":  follow,
	})
}

// Unfollow removes the caller's follow of the user in the path.
func (h *FollowHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.service.Unfollow(r.Context(), id.ID, chi.URLParam(r, "userId")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Successfully unfollowed user"})
}

// Followers lists who follows the user in the path.
func (h *FollowHandler) Followers(w http.ResponseWriter, r *http.Request) {
	followers, err := h.service.Followers(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"followers": followers})
}

// Following lists whom the user in the path follows.
func (h *FollowHandler) Following(w http.ResponseWriter, r *http.Request) {
	following, err := h.service.Following(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"following": following})
}

// Status reports whether the caller follows the user in the path.
func (h *FollowHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ok, err := h.service.IsFollowing(r.Context(), id.ID, chi.URLParam(r, "userId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"isFollowing": ok})
}
