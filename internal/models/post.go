package models

import "time"

// MaxPostLength is the upper bound on post text, counted in characters.
const MaxPostLength = 500

// Post is a short text message written by a user.
type Post struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	AuthorID  string      `json:"-"`
	CreatedAt time.Time   `json:"timestamp"`
	Author    UserSummary `json:"author"`
}
