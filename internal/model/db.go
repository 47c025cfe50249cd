package model

import (
	"time"
)

// DBBookmark represents a bookmark record in the database. PackageJSON
// is the full Package frozen at bookmark time, not re-fetched live.
type DBBookmark struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	PackageName string    `db:"package_name"`
	PackageJSON string    `db:"package_json"`
	CreatedAt   time.Time `db:"created_at"`
}

// DBSession represents a session record keyed by its bearer token.
type DBSession struct {
	Token       string    `db:"token"`
	UserID      string    `db:"user_id"`
	Email       string    `db:"email"`
	GitHubToken string    `db:"github_token"`
	CreatedAt   time.Time `db:"created_at"`
}

// Schema contains the SQL schema for the database
const Schema = `
CREATE TABLE IF NOT EXISTS bookmarks (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    package_name TEXT NOT NULL,
    package_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, package_name)
);

CREATE TABLE IF NOT EXISTS sessions (
    token TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    github_token TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_bookmarks_user_id ON bookmarks(user_id);
CREATE INDEX IF NOT EXISTS idx_bookmarks_package_name ON bookmarks(package_name);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
`
