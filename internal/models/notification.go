package models

import "time"

// NotificationType distinguishes what triggered a notification.
type NotificationType string

const (
	NotificationFollow  NotificationType = "follow"
	NotificationNewPost NotificationType = "new_post"
)

// Notification is a single inbox entry owned by UserID.
// PostID is set only for NotificationNewPost.
type Notification struct {
	ID        string           `json:"id"`
	EventID   string           `json:"-"`
	Type      NotificationType `json:"type"`
	UserID    string           `json:"userId"`
	ActorID   string           `json:"actorId"`
	PostID    *string          `json:"postId"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// PostSummary is the part of a post shown inside a notification.
type PostSummary struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// NotificationView is a notification enriched for display in the inbox.
type NotificationView struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
	Actor     UserSummary      `json:"actor"`
	Post      *PostSummary     `json:"post"`
}
