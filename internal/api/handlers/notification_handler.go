package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/chirp-be/internal/services"
)

// NotificationHandler serves the caller's inbox.
type NotificationHandler struct {
	service services.NotificationServiceProvider
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(service services.NotificationServiceProvider) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List returns the caller's notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	notifications, err := h.service.List(r.Context(), id.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}

// MarkRead marks one of the caller's notifications as read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	n, err := h.service.MarkRead(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Notification marked as read",
		"notification": n,
	})
}

// MarkAllRead marks every notification of the caller as read.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	updated, err := h.service.MarkAllRead(r.Context(), id.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "All notifications marked as read",
		"updated": updated,
	})
}

// UnreadCount returns the number of unread notifications of the caller.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	count, err := h.service.UnreadCount(r.Context(), id.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
}
