package models

import "time"

// User represents a user account in the system.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  *string   `json:"displayName"`
	PasswordHash string    `json:"-"` // Never expose this to the client
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary returns the public subset embedded in posts and notifications.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, DisplayName: u.DisplayName, Email: u.Email}
}

// UserSummary is the author/actor shape shown next to posts and notifications.
type UserSummary struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"displayName"`
	Email       string  `json:"email"`
}

// UserStats holds the counters shown on a profile.
type UserStats struct {
	Posts     int `json:"posts"`
	Following int `json:"following"`
	Followers int `json:"followers"`
}

// UserProfile is a user together with their activity counters.
type UserProfile struct {
	User
	Stats UserStats `json:"stats"`
}
