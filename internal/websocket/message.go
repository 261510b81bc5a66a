package websocket

import (
	"encoding/json"

	"github.com/isdelr/chirp-be/internal/models"
)

// Actions sent from the server.
const (
	ActionConnected    = "connected"
	ActionNotification = "notification"
	ActionPong         = "pong"
	ActionUnreadCount  = "unread_count"
	ActionError        = "error"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

func encode(action string, payload interface{}) []byte {
	// Payloads are plain structs and maps, Marshal cannot fail on them.
	b, _ := json.Marshal(Message{Action: action, Payload: payload})
	return b
}

// NewConnectedMessage confirms a subscription to the user's notifications.
func NewConnectedMessage(userID string) []byte {
	return encode(ActionConnected, map[string]string{"userId": userID})
}

// NewNotificationMessage wraps a freshly created notification.
func NewNotificationMessage(n models.Notification) []byte {
	return encode(ActionNotification, n)
}

// NewPongMessage answers a client ping.
func NewPongMessage() []byte {
	return encode(ActionPong, nil)
}

// NewUnreadCountMessage reports the number of unread notifications.
func NewUnreadCountMessage(count int) []byte {
	return encode(ActionUnreadCount, map[string]int{"count": count})
}

// NewErrorMessage reports a problem with a client message.
func NewErrorMessage(message string) []byte {
	return encode(ActionError, map[string]string{"message": message})
}
