package models

import "time"

// EventType names the action recorded in the outbox.
type EventType string

const (
	EventFollowCreated EventType = "follow.created"
	EventPostCreated   EventType = "post.created"
)

// EventStatus tracks an outbox event through dispatch.
type EventStatus string

const (
	EventPending EventStatus = "pending"
	EventDone    EventStatus = "done"
	EventFailed  EventStatus = "failed"
)

// Event is an outbox record written in the same transaction as the action it
// describes. SubjectID is the followed user for follows and the post for posts.
// A pending event is not retried before NextAttemptAt.
type Event struct {
	ID            string
	Type          EventType
	ActorID       string
	SubjectID     string
	Status        EventStatus
	Attempts      int
	LastError     *string
	CreatedAt     time.Time
	NextAttemptAt time.Time
	ProcessedAt   *time.Time
}
