package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/convstore/internal/domain"
	"github.com/roach88/convstore/internal/schema"
)

// CreatePost inserts a post.
func (s *Session) CreatePost(ctx context.Context, content string) (domain.Post, error) {
	now := s.Now()
	p := domain.Post{ID: s.NewID(), Content: content, CreatedAt: now, UpdatedAt: now}
	_, err := s.ExecContext(ctx, `
		INSERT INTO posts (id, content, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, p.ID, p.Content, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return domain.Post{}, fmt.Errorf("create post: %w", err)
	}
	return p, nil
}

// LockPost confirms the post exists and, on PostgreSQL, takes a row lock on
// it until the enclosing transaction ends. On SQLite the transaction already
// holds the database write lock (_txlock=immediate).
// Returns a NOT_FOUND error if the post does not exist.
func (s *Session) LockPost(ctx context.Context, postID string) error {
	query := `SELECT id FROM posts WHERE id = ?`
	if s.flavor == schema.Postgres {
		query += ` FOR UPDATE`
	}

	var id string
	err := s.QueryRowContext(ctx, query, postID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError("post", postID)
	}
	if err != nil {
		return fmt.Errorf("lock post: %w", err)
	}
	return nil
}

// CreateTag returns the tag with the normalized form of rawName, creating it
// if needed. Uses ON CONFLICT(name) DO NOTHING, so concurrent creators of the
// same name converge on one row.
func (s *Session) CreateTag(ctx context.Context, rawName string) (domain.Tag, error) {
	name, err := domain.NormalizeTagName(rawName)
	if err != nil {
		return domain.Tag{}, fmt.Errorf("create tag: %w", err)
	}

	now := s.Now()
	_, err = s.ExecContext(ctx, `
		INSERT INTO tags (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, s.NewID(), name, now, now)
	if err != nil {
		return domain.Tag{}, fmt.Errorf("create tag: %w", err)
	}

	return s.GetTagByName(ctx, name)
}

// GetTagByName looks a tag up by any spelling of its name.
// Returns a NOT_FOUND error if absent.
func (s *Session) GetTagByName(ctx context.Context, rawName string) (domain.Tag, error) {
	name, err := domain.NormalizeTagName(rawName)
	if err != nil {
		return domain.Tag{}, fmt.Errorf("get tag: %w", err)
	}

	var t domain.Tag
	err = s.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at FROM tags WHERE name = ?
	`, name).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Tag{}, domain.NewNotFoundError("tag", name)
	}
	if err != nil {
		return domain.Tag{}, fmt.Errorf("get tag: %w", err)
	}
	return t, nil
}

// TagExists reports whether a tag with the given ID exists.
func (s *Session) TagExists(ctx context.Context, tagID string) (bool, error) {
	var n int
	err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags WHERE id = ?`, tagID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check tag: %w", err)
	}
	return n > 0, nil
}

// HasTagAssociation reports whether tagID is already attached to postID.
func (s *Session) HasTagAssociation(ctx context.Context, postID, tagID string) (bool, error) {
	var n int
	err := s.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tag_associations WHERE post_id = ? AND tag_id = ?
	`, postID, tagID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check tag association: %w", err)
	}
	return n > 0, nil
}

// CountTagAssociations returns how many tags are attached to postID.
func (s *Session) CountTagAssociations(ctx context.Context, postID string) (int, error) {
	var n int
	err := s.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tag_associations WHERE post_id = ?
	`, postID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tag associations: %w", err)
	}
	return n, nil
}

// InsertTagAssociationRow writes an association without any cardinality
// check. The guard package is the only intended caller; everything else goes
// through guard.Guard.
//
// A driver-level unique violation is reported as a UNIQUENESS_VIOLATION.
func (s *Session) InsertTagAssociationRow(ctx context.Context, postID, tagID string) (domain.TagAssociation, error) {
	a := domain.TagAssociation{
		ID:        s.NewID(),
		PostID:    postID,
		TagID:     tagID,
		CreatedAt: s.Now(),
	}
	_, err := s.ExecContext(ctx, `
		INSERT INTO tag_associations (id, post_id, tag_id, created_at)
		VALUES (?, ?, ?, ?)
	`, a.ID, a.PostID, a.TagID, a.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.TagAssociation{}, domain.NewUniquenessError(postID, tagID, err)
		}
		return domain.TagAssociation{}, fmt.Errorf("insert tag association: %w", err)
	}
	return a, nil
}

// DeleteTagAssociation detaches tagID from postID.
// Returns whether a row was removed.
func (s *Session) DeleteTagAssociation(ctx context.Context, postID, tagID string) (bool, error) {
	result, err := s.ExecContext(ctx, `
		DELETE FROM tag_associations WHERE post_id = ? AND tag_id = ?
	`, postID, tagID)
	if err != nil {
		return false, fmt.Errorf("delete tag association: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete tag association: rows affected: %w", err)
	}
	return n > 0, nil
}

// ListPostTags returns the tags attached to postID ordered by name.
func (s *Session) ListPostTags(ctx context.Context, postID string) ([]domain.Tag, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT t.id, t.name, t.created_at, t.updated_at
		FROM tags t
		JOIN tag_associations ta ON ta.tag_id = t.id
		WHERE ta.post_id = ?
		ORDER BY t.name ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("query post tags: %w", err)
	}
	defer rows.Close()

	tags := []domain.Tag{}
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post tags: %w", err)
	}
	return tags, nil
}
