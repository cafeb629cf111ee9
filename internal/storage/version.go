package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Version is one immutable snapshot of a logical item. Rows are append-only:
// never updated or deleted in place.
type Version struct {
	ContentType  string    `json:"content_type"`
	RemoteID     int64     `json:"remote_id"`
	Number       int       `json:"version"`
	ContentHash  string    `json:"content_hash"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Excerpt      string    `json:"excerpt,omitempty"`
	Author       string    `json:"author,omitempty"`
	Status       string    `json:"status,omitempty"`
	Slug         string    `json:"slug,omitempty"`
	Meta         string    `json:"meta,omitempty"` // JSON, type-specific extras
	DateCreated  string    `json:"date_created,omitempty"`
	DateModified string    `json:"date_modified,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Edge links a post version to a category or tag logical identity.
type Edge struct {
	RelatedType string `json:"related_type"` // "category" or "tag"
	RelatedID   int64  `json:"related_id"`
}

// ConflictError reports an attempt to insert a (contentType, remoteID,
// version) triple that already exists. It defends the append-only invariant
// under concurrent writers and is never silently retried.
type ConflictError struct {
	ContentType string
	RemoteID    int64
	Number      int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: %s/%d v%d already exists", e.ContentType, e.RemoteID, e.Number)
}

const versionColumns = `content_type, remote_id, version, content_hash, title, content,
	excerpt, author, status, slug, meta, date_created, date_modified, recorded_at`

func scanVersion(row interface{ Scan(...any) error }) (*Version, error) {
	v := &Version{}
	err := row.Scan(
		&v.ContentType, &v.RemoteID, &v.Number, &v.ContentHash, &v.Title, &v.Content,
		&v.Excerpt, &v.Author, &v.Status, &v.Slug, &v.Meta, &v.DateCreated, &v.DateModified, &v.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// CurrentVersion returns the highest-numbered version of a logical item, or
// nil when the item has never been archived.
func (s *Store) CurrentVersion(ctx context.Context, contentType string, remoteID int64) (*Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM versions
		WHERE content_type = ? AND remote_id = ?
		ORDER BY version DESC
		LIMIT 1`,
		contentType, remoteID,
	)

	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current version %s/%d: %w", contentType, remoteID, err)
	}
	return v, nil
}

// InsertVersion appends one version row together with its relationship edges
// in a single transaction: either both commit or neither does. Inserting a
// version number that already exists returns a ConflictError.
func (s *Store) InsertVersion(ctx context.Context, v *Version, edges []Edge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert version: %w", err)
	}
	defer tx.Rollback()

	if v.RecordedAt.IsZero() {
		v.RecordedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions (`+versionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ContentType, v.RemoteID, v.Number, v.ContentHash, v.Title, v.Content,
		v.Excerpt, v.Author, v.Status, v.Slug, v.Meta, v.DateCreated, v.DateModified, v.RecordedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{ContentType: v.ContentType, RemoteID: v.RemoteID, Number: v.Number}
		}
		return fmt.Errorf("insert version %s/%d v%d: %w", v.ContentType, v.RemoteID, v.Number, err)
	}

	for _, e := range edges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO post_terms (post_remote_id, post_version, related_type, related_remote_id)
			VALUES (?, ?, ?, ?)`,
			v.RemoteID, v.Number, e.RelatedType, e.RelatedID,
		)
		if err != nil {
			return fmt.Errorf("insert edge %s/%d v%d -> %s %d: %w",
				v.ContentType, v.RemoteID, v.Number, e.RelatedType, e.RelatedID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit version %s/%d v%d: %w", v.ContentType, v.RemoteID, v.Number, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint &&
			(serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

// ListVersions returns every version of a logical item, ascending by number.
func (s *Store) ListVersions(ctx context.Context, contentType string, remoteID int64) ([]*Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM versions
		WHERE content_type = ? AND remote_id = ?
		ORDER BY version ASC`,
		contentType, remoteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions %s/%d: %w", contentType, remoteID, err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// CurrentVersions returns the current version of every logical item of a
// content type, used for search index rebuilds.
func (s *Store) CurrentVersions(ctx context.Context, contentType string) ([]*Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM versions v
		WHERE content_type = ?
		  AND version = (SELECT MAX(version) FROM versions
		                 WHERE content_type = v.content_type AND remote_id = v.remote_id)
		ORDER BY remote_id ASC`,
		contentType,
	)
	if err != nil {
		return nil, fmt.Errorf("list current versions %s: %w", contentType, err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// TypeCount aggregates version rows for one content type.
type TypeCount struct {
	Items    int `json:"items"`    // distinct logical items
	Versions int `json:"versions"` // total stored versions
}

// Stats returns per-content-type counts.
func (s *Store) Stats(ctx context.Context) (map[string]TypeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_type, COUNT(DISTINCT remote_id), COUNT(*)
		FROM versions
		GROUP BY content_type`,
	)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]TypeCount)
	for rows.Next() {
		var ct string
		var tc TypeCount
		if err := rows.Scan(&ct, &tc.Items, &tc.Versions); err != nil {
			return nil, err
		}
		counts[ct] = tc
	}
	return counts, rows.Err()
}
