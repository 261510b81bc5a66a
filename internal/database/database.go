package database

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// New creates a new database connection pool.
func New(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", withPragmas(dataSourceName))
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// withPragmas appends the connection options every pooled connection needs.
// Timestamps are written in SQLite's own layout so that ORDER BY created_at
// compares them chronologically.
func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		display_name TEXT,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS posts (
		id TEXT NOT NULL PRIMARY KEY,
		author_id TEXT NOT NULL REFERENCES users(id),
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_posts_author_created ON posts (author_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS follows (
		follower_id TEXT NOT NULL REFERENCES users(id),
		following_id TEXT NOT NULL REFERENCES users(id),
		created_at DATETIME NOT NULL,
		PRIMARY KEY (follower_id, following_id),
		CHECK (follower_id <> following_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_follows_following ON follows (following_id)`,

	// post_id is present exactly for new_post notifications.
	// (event_id, user_id) makes replays of an outbox event a no-op.
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL PRIMARY KEY,
		event_id TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('follow', 'new_post')),
		user_id TEXT NOT NULL REFERENCES users(id),
		actor_id TEXT NOT NULL REFERENCES users(id),
		post_id TEXT REFERENCES posts(id),
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		UNIQUE (event_id, user_id),
		CHECK ((type = 'new_post') = (post_id IS NOT NULL))
	)`,

	`CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications (user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at DATETIME NOT NULL,
		next_attempt_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,

	`CREATE INDEX IF NOT EXISTS idx_outbox_status_next_attempt ON outbox_events (status, next_attempt_at)`,
}

// Migrate runs the SQL statements to set up the database schema.
func Migrate(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
