package guard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/convstore/internal/domain"
	"github.com/roach88/convstore/internal/store"
)

// DefaultMaxTagsPerPost is the tag limit when none is configured.
const DefaultMaxTagsPerPost = 3

// Guard admits tag associations subject to the per-post limit.
//
// Thread-safety: Guard holds no mutable state; serialization happens in the
// database. Safe for concurrent use.
type Guard struct {
	store  *store.Store
	max    int
	logger *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithMaxTagsPerPost sets the limit. Values below 1 are ignored.
func WithMaxTagsPerPost(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.max = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// New creates a Guard over st.
func New(st *store.Store, opts ...Option) *Guard {
	g := &Guard{
		store:  st,
		max:    DefaultMaxTagsPerPost,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Max returns the configured per-post limit.
func (g *Guard) Max() int {
	return g.max
}

// InsertTagAssociation attaches tagID to postID in its own transaction.
//
// Returns:
//   - NOT_FOUND if the post or tag does not exist
//   - UNIQUENESS_VIOLATION if the tag is already attached
//   - CARDINALITY_VIOLATION if the post already has Max() tags
func (g *Guard) InsertTagAssociation(ctx context.Context, postID, tagID string) (domain.TagAssociation, error) {
	var assoc domain.TagAssociation
	err := g.store.WithTx(ctx, func(sess *store.Session) error {
		a, err := g.Admit(ctx, sess, postID, tagID)
		assoc = a
		return err
	})
	if err != nil {
		return domain.TagAssociation{}, err
	}
	return assoc, nil
}

// TagPostByName attaches the tag named rawName to postID, creating the tag
// if it does not exist yet. Tag creation and admission share one transaction.
func (g *Guard) TagPostByName(ctx context.Context, postID, rawName string) (domain.TagAssociation, error) {
	var assoc domain.TagAssociation
	err := g.store.WithTx(ctx, func(sess *store.Session) error {
		if err := sess.LockPost(ctx, postID); err != nil {
			return err
		}
		tag, err := sess.CreateTag(ctx, rawName)
		if err != nil {
			return err
		}
		a, err := g.Admit(ctx, sess, postID, tag.ID)
		assoc = a
		return err
	})
	if err != nil {
		return domain.TagAssociation{}, err
	}
	return assoc, nil
}

// Admit runs the guarded insert on a caller-owned transaction.
// sess must be bound to a transaction; Admit never commits or rolls back.
func (g *Guard) Admit(ctx context.Context, sess *store.Session, postID, tagID string) (domain.TagAssociation, error) {
	if err := sess.LockPost(ctx, postID); err != nil {
		return domain.TagAssociation{}, err
	}

	ok, err := sess.TagExists(ctx, tagID)
	if err != nil {
		return domain.TagAssociation{}, fmt.Errorf("admit tag: %w", err)
	}
	if !ok {
		return domain.TagAssociation{}, domain.NewNotFoundError("tag", tagID)
	}

	// Uniqueness first: re-adding an attached tag to a full post is a
	// duplicate, not an overflow.
	dup, err := sess.HasTagAssociation(ctx, postID, tagID)
	if err != nil {
		return domain.TagAssociation{}, fmt.Errorf("admit tag: %w", err)
	}
	if dup {
		g.logger.Debug("tag rejected: duplicate", "post_id", postID, "tag_id", tagID)
		return domain.TagAssociation{}, domain.NewUniquenessError(postID, tagID, nil)
	}

	n, err := sess.CountTagAssociations(ctx, postID)
	if err != nil {
		return domain.TagAssociation{}, fmt.Errorf("admit tag: %w", err)
	}
	if n >= g.max {
		g.logger.Debug("tag rejected: limit reached", "post_id", postID, "count", n, "max", g.max)
		return domain.TagAssociation{}, domain.NewCardinalityError(postID, n, g.max)
	}

	assoc, err := sess.InsertTagAssociationRow(ctx, postID, tagID)
	if err != nil {
		return domain.TagAssociation{}, err
	}
	g.logger.Debug("tag attached", "post_id", postID, "tag_id", tagID, "count", n+1)
	return assoc, nil
}

// RemoveTag detaches tagID from postID. Reports whether a row was removed.
func (g *Guard) RemoveTag(ctx context.Context, postID, tagID string) (bool, error) {
	var removed bool
	err := g.store.WithTx(ctx, func(sess *store.Session) error {
		if err := sess.LockPost(ctx, postID); err != nil {
			return err
		}
		r, err := sess.DeleteTagAssociation(ctx, postID, tagID)
		removed = r
		return err
	})
	return removed, err
}

// CountTags returns how many tags postID carries.
func (g *Guard) CountTags(ctx context.Context, postID string) (int, error) {
	return g.store.Session().CountTagAssociations(ctx, postID)
}
