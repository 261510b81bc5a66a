// Package realtime pushes new notifications to connected websocket clients,
// either directly through the local hub or across instances through Redis.
package realtime

import (
	"context"

	"github.com/isdelr/chirp-be/internal/models"
	"github.com/isdelr/chirp-be/internal/websocket"
)

// Publisher delivers a notification to its recipient's live connections.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Deliverer is the part of the websocket hub publishers write to.
type Deliverer interface {
	SendToUser(userID string, message []byte)
}

// LocalPublisher hands notifications straight to this instance's hub.
type LocalPublisher struct {
	hub Deliverer
}

// NewLocalPublisher creates a LocalPublisher.
func NewLocalPublisher(hub Deliverer) *LocalPublisher {
	return &LocalPublisher{hub: hub}
}

// Publish implements Publisher.
func (p *LocalPublisher) Publish(ctx context.Context, n models.Notification) error {
	p.hub.SendToUser(n.UserID, websocket.NewNotificationMessage(n))
	return nil
}
