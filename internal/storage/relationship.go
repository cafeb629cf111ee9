package storage

import (
	"context"
	"fmt"
)

// Related term kinds recorded in post_terms.
const (
	RelatedCategory = "category"
	RelatedTag      = "tag"
)

// RecordEdges appends relationship edges for one post version. Edges of
// earlier versions are never touched; each version owns its own edge set.
// The archiver writes edges through InsertVersion so the version row and its
// edges share one transaction; this entry point serves out-of-band repairs.
func (s *Store) RecordEdges(ctx context.Context, postRemoteID int64, postVersion int, relatedType string, relatedIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record edges: %w", err)
	}
	defer tx.Rollback()

	for _, id := range relatedIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO post_terms (post_remote_id, post_version, related_type, related_remote_id)
			VALUES (?, ?, ?, ?)`,
			postRemoteID, postVersion, relatedType, id,
		)
		if err != nil {
			return fmt.Errorf("record edge post %d v%d -> %s %d: %w", postRemoteID, postVersion, relatedType, id, err)
		}
	}
	return tx.Commit()
}

// EdgesFor returns the edge set of one post version.
func (s *Store) EdgesFor(ctx context.Context, postRemoteID int64, postVersion int) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT related_type, related_remote_id
		FROM post_terms
		WHERE post_remote_id = ? AND post_version = ?
		ORDER BY related_type, related_remote_id`,
		postRemoteID, postVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("edges for post %d v%d: %w", postRemoteID, postVersion, err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.RelatedType, &e.RelatedID); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// PostsFor returns the remote ids of posts whose CURRENT version carries an
// edge to the given category or tag. Historical associations dropped in a
// later post version are not reported.
func (s *Store) PostsFor(ctx context.Context, relatedType string, relatedID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pt.post_remote_id
		FROM post_terms pt
		JOIN (
			SELECT remote_id, MAX(version) AS current
			FROM versions
			WHERE content_type = 'posts'
			GROUP BY remote_id
		) cur ON cur.remote_id = pt.post_remote_id AND cur.current = pt.post_version
		WHERE pt.related_type = ? AND pt.related_remote_id = ?
		ORDER BY pt.post_remote_id`,
		relatedType, relatedID,
	)
	if err != nil {
		return nil, fmt.Errorf("posts for %s %d: %w", relatedType, relatedID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
