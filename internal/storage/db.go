// Package storage owns the SQLite archive: append-only version rows,
// relationship edges scoped to post versions, and archive session records.
package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database shared by the archiver and the viewing
// layer. Writes are short-lived per-item transactions so concurrent readers
// are never starved.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Foreign keys and WAL mode for concurrent readers alongside the writer.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist. Migrations are additive
// only: archived history is never dropped or rewritten.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS versions (
		content_type TEXT NOT NULL,
		remote_id INTEGER NOT NULL,
		version INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		excerpt TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		slug TEXT NOT NULL DEFAULT '',
		meta TEXT NOT NULL DEFAULT '{}',
		date_created TEXT NOT NULL DEFAULT '',
		date_modified TEXT NOT NULL DEFAULT '',
		recorded_at TIMESTAMP NOT NULL,
		UNIQUE(content_type, remote_id, version)
	);

	CREATE INDEX IF NOT EXISTS idx_versions_item ON versions(content_type, remote_id);
	CREATE INDEX IF NOT EXISTS idx_versions_hash ON versions(content_hash);

	CREATE TABLE IF NOT EXISTS post_terms (
		post_remote_id INTEGER NOT NULL,
		post_version INTEGER NOT NULL,
		related_type TEXT NOT NULL,
		related_remote_id INTEGER NOT NULL,
		PRIMARY KEY(post_remote_id, post_version, related_type, related_remote_id)
	);

	CREATE INDEX IF NOT EXISTS idx_post_terms_related ON post_terms(related_type, related_remote_id);

	CREATE TABLE IF NOT EXISTS archive_sessions (
		id TEXT PRIMARY KEY,
		content_type TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		status TEXT NOT NULL,
		items_processed INTEGER NOT NULL DEFAULT 0,
		items_new INTEGER NOT NULL DEFAULT 0,
		items_updated INTEGER NOT NULL DEFAULT 0,
		items_unchanged INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		error_detail TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON archive_sessions(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}
