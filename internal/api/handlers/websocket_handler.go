package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/isdelr/chirp-be/internal/apperr"
	"github.com/isdelr/chirp-be/internal/auth"
	"github.com/isdelr/chirp-be/internal/services"
	ws "github.com/isdelr/chirp-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades authenticated requests to websocket connections
// that receive the caller's notifications as they are created.
type WebSocketHandler struct {
	hub           *ws.Hub
	gate          *auth.Gate
	notifications services.NotificationServiceProvider
	upgrader      websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. Browsers cannot set
// headers on websocket requests, so the token may also come as ?token=.
func NewWebSocketHandler(hub *ws.Hub, gate *auth.Gate, notifications services.NotificationServiceProvider) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		gate:          gate,
		notifications: notifications,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Connections are authenticated by token, not by cookie.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles the WebSocket connection request.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.authenticate(r)
	if appErr != nil {
		respondError(w, r, appErr)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, id.ID)
	h.hub.Register(client)
	client.Reply(ws.NewConnectedMessage(id.ID))

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleIncomingWSMessage)
		h.hub.Unregister(client)
	}()
}

func (h *WebSocketHandler) authenticate(r *http.Request) (auth.Identity, *apperr.Error) {
	if header := r.Header.Get("Authorization"); header != "" {
		return h.gate.Authenticate(header)
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return h.gate.VerifyToken(token)
	}
	return h.gate.Authenticate("")
}

// handleIncomingWSMessage processes messages received from a websocket client.
func (h *WebSocketHandler) handleIncomingWSMessage(client *ws.Client, message []byte) {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().Err(err).Str("user_id", client.UserID).Msg("Error decoding websocket message")
		client.Reply(ws.NewErrorMessage("Invalid message"))
		return
	}

	switch msg.Action {
	case "ping":
		client.Reply(ws.NewPongMessage())

	case "unread_count":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		count, err := h.notifications.UnreadCount(ctx, client.UserID)
		if err != nil {
			log.Error().Err(err).Str("user_id", client.UserID).Msg("Failed to count unread notifications")
			client.Reply(ws.NewErrorMessage("Internal server error"))
			return
		}
		client.Reply(ws.NewUnreadCountMessage(count))

	default:
		log.Warn().Str("action", msg.Action).Msg("Unknown websocket action received")
		client.Reply(ws.NewErrorMessage("Unknown action: " + msg.Action))
	}
}
