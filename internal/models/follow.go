package models

import "time"

// Follow is a directed edge from FollowerID to FollowingID.
type Follow struct {
	FollowerID  string    `json:"followerId"`
	FollowingID string    `json:"followingId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FollowEntry is one row of a followers or following list.
type FollowEntry struct {
	UserSummary
	FollowedAt time.Time `json:"followedAt"`
}
