package guard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/convstore/internal/domain"
	"github.com/roach88/convstore/internal/store"
	"github.com/roach88/convstore/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "g.db"),
		store.WithClock(testutil.NewFixedClock()),
		store.WithIDGenerator(testutil.NewSequentialIDs("id")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// seed creates one post and n tags named t1..tn.
func seed(t *testing.T, st *store.Store, n int) (domain.Post, []domain.Tag) {
	t.Helper()
	ctx := context.Background()
	sess := st.Session()
	post, err := sess.CreatePost(ctx, "post")
	require.NoError(t, err)
	tags := make([]domain.Tag, n)
	for i := range tags {
		tags[i], err = sess.CreateTag(ctx, fmt.Sprintf("t%d", i+1))
		require.NoError(t, err)
	}
	return post, tags
}

func TestGuard_LimitScenario(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	post, tags := seed(t, st, 4)
	g := New(st, WithLogger(discard))

	for _, tag := range tags[:3] {
		_, err := g.InsertTagAssociation(ctx, post.ID, tag.ID)
		require.NoError(t, err, "tag %s", tag.Name)
	}

	_, err := g.InsertTagAssociation(ctx, post.ID, tags[3].ID)
	require.Error(t, err)
	assert.True(t, domain.IsCardinalityViolation(err), "got %v", err)
	assert.True(t, domain.IsConstraintViolation(err))

	_, err = g.InsertTagAssociation(ctx, post.ID, tags[0].ID)
	require.Error(t, err)
	assert.True(t, domain.IsUniquenessViolation(err), "got %v", err)
	assert.False(t, domain.IsCardinalityViolation(err))

	n, err := g.CountTags(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestGuard_DuplicateLeavesExistingRow(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	post, tags := seed(t, st, 1)
	g := New(st, WithLogger(discard))

	first, err := g.InsertTagAssociation(ctx, post.ID, tags[0].ID)
	require.NoError(t, err)

	_, err = g.InsertTagAssociation(ctx, post.ID, tags[0].ID)
	assert.True(t, domain.IsUniquenessViolation(err))

	list, err := st.Session().ListPostTags(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tags[0].ID, list[0].ID)
	assert.NotEmpty(t, first.ID)
}

func TestGuard_NotFound(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	post, tags := seed(t, st, 1)
	g := New(st, WithLogger(discard))

	_, err := g.InsertTagAssociation(ctx, "ghost", tags[0].ID)
	assert.True(t, domain.IsNotFound(err))

	_, err = g.InsertTagAssociation(ctx, post.ID, "ghost")
	assert.True(t, domain.IsNotFound(err))
}

func TestGuard_CustomLimit(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	post, tags := seed(t, st, 2)

	g := New(st, WithMaxTagsPerPost(1), WithLogger(discard))
	assert.Equal(t, 1, g.Max())

	_, err := g.InsertTagAssociation(ctx, post.ID, tags[0].ID)
	require.NoError(t, err)
	_, err = g.InsertTagAssociation(ctx, post.ID, tags[1].ID)
	assert.True(t, domain.IsCardinalityViolation(err))

	assert.Equal(t, DefaultMaxTagsPerPost, New(st, WithMaxTagsPerPost(0)).Max())
}

func TestGuard_RemoveFreesSlot(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	post, tags := seed(t, st, 4)
	g := New(st, WithLogger(discard))

	for _, tag := range tags[:3] {
		_, err := g.InsertTagAssociation(ctx, post.ID, tag.ID)
		require.NoError(t, err)
	}

	removed, err := g.RemoveTag(ctx, post.ID, tags[1].ID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = g.InsertTagAssociation(ctx, post.ID, tags[3].ID)
	require.NoError(t, err)

	removed, err = g.RemoveTag(ctx, post.ID, tags[1].ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestGuard_TagPostByName(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	post, _ := seed(t, st, 0)
	g := New(st, WithLogger(discard))

	a, err := g.TagPostByName(ctx, post.ID, "Go")
	require.NoError(t, err)

	tag, err := st.Session().GetTagByName(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, a.TagID)

	_, err = g.TagPostByName(ctx, post.ID, "  GO ")
	assert.True(t, domain.IsUniquenessViolation(err), "normalized names collide: %v", err)

	_, err = g.TagPostByName(ctx, "ghost", "rust")
	assert.True(t, domain.IsNotFound(err))

	// The rejected call must not leave a tag behind.
	_, err = st.Session().GetTagByName(ctx, "rust")
	assert.True(t, domain.IsNotFound(err))
}

func TestGuard_ConcurrentInsertsRespectLimit(t *testing.T) {
	st := openStore(t)
	post, tags := seed(t, st, 8)
	g := New(st, WithLogger(discard))

	var ok, rejected atomic.Int32
	var eg errgroup.Group
	for _, tag := range tags {
		tagID := tag.ID
		eg.Go(func() error {
			_, err := g.InsertTagAssociation(context.Background(), post.ID, tagID)
			switch {
			case err == nil:
				ok.Add(1)
			case domain.IsCardinalityViolation(err):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	assert.Equal(t, int32(DefaultMaxTagsPerPost), ok.Load())
	assert.Equal(t, int32(len(tags)-DefaultMaxTagsPerPost), rejected.Load())

	n, err := g.CountTags(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxTagsPerPost, n)
}

func TestGuard_ConcurrentDuplicates(t *testing.T) {
	st := openStore(t)
	post, tags := seed(t, st, 1)
	g := New(st, WithLogger(discard))

	var ok, dup atomic.Int32
	var eg errgroup.Group
	for i := 0; i < 6; i++ {
		eg.Go(func() error {
			_, err := g.InsertTagAssociation(context.Background(), post.ID, tags[0].ID)
			switch {
			case err == nil:
				ok.Add(1)
			case domain.IsUniquenessViolation(err):
				dup.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(5), dup.Load())
}

func TestGuard_PostgresConcurrentLimit(t *testing.T) {
	dsn := os.Getenv("CONVSTORE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CONVSTORE_TEST_PG_DSN not set")
	}
	ctx := context.Background()

	st, err := store.OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	post, tags := seed(t, st, 8)
	g := New(st, WithLogger(discard))

	var ok atomic.Int32
	var eg errgroup.Group
	for _, tag := range tags {
		tagID := tag.ID
		eg.Go(func() error {
			_, err := g.InsertTagAssociation(ctx, post.ID, tagID)
			if err == nil {
				ok.Add(1)
				return nil
			}
			if domain.IsCardinalityViolation(err) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, int32(DefaultMaxTagsPerPost), ok.Load())
}
