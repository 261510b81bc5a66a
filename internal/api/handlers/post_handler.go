package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/chirp-be/internal/services"
)

// PostHandler handles HTTP requests for posts.
type PostHandler struct {
	service services.PostServiceProvider
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(service services.PostServiceProvider) *PostHandler {
	return &PostHandler{service: service}
}

// List returns every post, newest first.
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.ListPosts(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"posts": posts})
}

// Mine returns the caller's posts.
func (h *PostHandler) Mine(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.writeByAuthor(w, r, id.ID)
}

// ByUser returns the posts of the user in the path.
func (h *PostHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	h.writeByAuthor(w, r, chi.URLParam(r, "userId"))
}

func (h *PostHandler) writeByAuthor(w http.ResponseWriter, r *http.Request, authorID string) {
	posts, err := h.service.ListPostsByAuthor(r.Context(), authorID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"posts": posts})
}

// Create publishes a post as the caller.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var payload services.CreatePostInput
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	post, err := h.service.CreatePost(r.Context(), id.ID, payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, post)
}
