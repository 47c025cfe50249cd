// Package store owns the sessions and bookmarks tables. It is the
// narrow persistence surface the rest of the server talks to: resolve
// a user from a session token, and read or write one bookmark row
// keyed by user and package name.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/npmtok/npmtok/internal/model"
	"go.uber.org/zap"
)

// SQLiteStore implements the store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dataPath string, logger *zap.Logger) (*SQLiteStore, error) {
	dbPath := filepath.Join(dataPath, "npmtok.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(model.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PutSession inserts or replaces a session record keyed by its token.
func (s *SQLiteStore) PutSession(session *model.DBSession) error {
	query := `
		INSERT INTO sessions (token, user_id, email, github_token, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			user_id = excluded.user_id,
			email = excluded.email,
			github_token = excluded.github_token
	`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		query,
		session.Token,
		session.UserID,
		session.Email,
		session.GitHubToken,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

// UserByToken resolves a session token to its user. Returns (nil, nil)
// when no session matches.
func (s *SQLiteStore) UserByToken(token string) (*model.User, error) {
	query := `SELECT user_id, email, github_token FROM sessions WHERE token = ?`
	user := &model.User{}
	err := s.db.QueryRow(query, token).Scan(
		&user.ID,
		&user.Email,
		&user.GitHubToken,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return user, nil
}

// GetBookmark fetches a user's bookmark for one package. Returns
// (nil, nil) when the package is not bookmarked.
func (s *SQLiteStore) GetBookmark(userID, packageName string) (*model.DBBookmark, error) {
	query := `SELECT id, user_id, package_name, package_json, created_at FROM bookmarks WHERE user_id = ? AND package_name = ?`
	bm := &model.DBBookmark{}
	err := s.db.QueryRow(query, userID, packageName).Scan(
		&bm.ID,
		&bm.UserID,
		&bm.PackageName,
		&bm.PackageJSON,
		&bm.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark: %w", err)
	}
	return bm, nil
}

// AddBookmark saves a package snapshot for a user and returns the
// bookmark ID. Re-bookmarking the same package refreshes the snapshot
// and keeps the original ID.
func (s *SQLiteStore) AddBookmark(userID string, pkg *model.Package) (string, error) {
	snapshot, err := json.Marshal(pkg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal package: %w", err)
	}

	query := `
		INSERT INTO bookmarks (id, user_id, package_name, package_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, package_name) DO UPDATE SET
			package_json = excluded.package_json
		RETURNING id
	`

	var id string
	err = s.db.QueryRow(
		query,
		uuid.NewString(),
		userID,
		pkg.Name,
		string(snapshot),
		time.Now(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to add bookmark: %w", err)
	}
	return id, nil
}

// DeleteBookmark removes a user's bookmark for one package.
func (s *SQLiteStore) DeleteBookmark(userID, packageName string) error {
	query := `DELETE FROM bookmarks WHERE user_id = ? AND package_name = ?`
	_, err := s.db.Exec(query, userID, packageName)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	return nil
}

// ListBookmarks returns a user's saved packages, newest first. Each
// package is the snapshot frozen at bookmark time.
func (s *SQLiteStore) ListBookmarks(userID string) ([]model.Package, error) {
	query := `SELECT package_json FROM bookmarks WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmarks: %w", err)
	}
	defer rows.Close()

	packages := make([]model.Package, 0)
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		var pkg model.Package
		if err := json.Unmarshal([]byte(snapshot), &pkg); err != nil {
			s.logger.Error("failed to unmarshal bookmark snapshot",
				zap.String("user", userID),
				zap.Error(err),
			)
			continue
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

// BookmarkedNames returns the set of package names a user has saved,
// used to mark isBookmarked on outgoing packages.
func (s *SQLiteStore) BookmarkedNames(userID string) (map[string]bool, error) {
	query := `SELECT package_name FROM bookmarks WHERE user_id = ?`
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmarked names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark name: %w", err)
		}
		names[name] = true
	}
	return names, rows.Err()
}
