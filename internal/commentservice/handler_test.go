package commentservice

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metapresshq/metapress/internal/common"
)

func setupTestService(t *testing.T) (*CommentService, *sql.DB, *common.Cache, *common.IDCodec) {
	db := common.TestDB("file://../../migrations", t)
	cache := common.TestCache(t)

	codec, err := common.NewIDCodec("test-salt")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewCommentService(db, cache, codec, logger), db, cache, codec
}

func setupTestUser(t *testing.T, db *sql.DB, username string) common.Session {
	var id int
	err := db.QueryRow(`
		INSERT INTO users (name, username, email)
		VALUES ($1, $2, $3)
		RETURNING id`, "Test User", username, username+"@example.com").Scan(&id)
	require.NoError(t, err)

	return common.Session{
		UserID:   id,
		Name:     "Test User",
		Username: username,
		Role:     common.RoleUser,
	}
}

func setupTestBlog(t *testing.T, db *sql.DB, userID int) int {
	var id int
	err := db.QueryRow(`
		INSERT INTO blogs (title, content, author_name, author_username, user_id)
		VALUES ('A Blog', '{}', 'Test User', 'author', $1)
		RETURNING id`, userID).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedComments(t *testing.T, db *sql.DB, blogID, userID, n int, base time.Time) []int {
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		var id int
		err := db.QueryRow(`
			INSERT INTO comments (content, blog_id, user_id, author_name, author_username, created_at, updated_at)
			VALUES ($1, $2, $3, 'Test User', 'commenter', $4, $4)
			RETURNING id`,
			fmt.Sprintf("comment %d", i+1), blogID, userID, base.Add(time.Duration(i)*time.Second)).Scan(&id)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestCreateComment(t *testing.T) {
	svc, db, cache, codec := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	commenter := setupTestUser(t, db, "commenter")
	blogID := setupTestBlog(t, db, author.UserID)
	blogPublicID := codec.Encode(blogID)

	comment, err := svc.Create(ctx, commenter, blogPublicID, "first!")
	require.NoError(t, err)
	require.NotZero(t, comment.ID)
	assert.Equal(t, commenter.Username, comment.Author.Username)

	// the write primed the hash, the index and the meta sentinel
	fields, err := cache.HGetAll(ctx, common.KeyComment(comment.ID))
	require.NoError(t, err)
	assert.Equal(t, "first!", fields["content"])

	meta, err := cache.Get(ctx, common.KeyBlogCommentsMeta(blogID))
	require.NoError(t, err)
	assert.Equal(t, string(common.IndexOK), meta)

	comments, next, err := svc.FindByBlogID(ctx, blogPublicID, 10, nil)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, comment.ID, comments[0].ID)
	assert.Nil(t, next)
}

func TestCreateCommentValidation(t *testing.T) {
	svc, db, _, codec := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	blogID := setupTestBlog(t, db, author.UserID)

	_, err := svc.Create(ctx, author, codec.Encode(blogID), "")
	var ve common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Errors, "content")

	_, err = svc.Create(ctx, common.AnonymousSession, codec.Encode(blogID), "hello")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	// commenting on a missing blog maps the foreign key violation
	_, err = svc.Create(ctx, author, codec.Encode(999999), "hello")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestEmptyMetaShortCircuit(t *testing.T) {
	svc, db, cache, codec := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	blogID := setupTestBlog(t, db, author.UserID)
	blogPublicID := codec.Encode(blogID)

	comments, next, err := svc.FindByBlogID(ctx, blogPublicID, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.Nil(t, next)

	meta, err := cache.Get(ctx, common.KeyBlogCommentsMeta(blogID))
	require.NoError(t, err)
	assert.Equal(t, string(common.IndexEmpty), meta)

	// a row written behind the cache's back stays invisible while the
	// sentinel is live
	seedComments(t, db, blogID, author.UserID, 1, time.Now())

	comments, _, err = svc.FindByBlogID(ctx, blogPublicID, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, comments)

	// once the sentinel is gone the read falls through to the database
	require.NoError(t, cache.Del(ctx, common.KeyBlogCommentsMeta(blogID)))

	comments, _, err = svc.FindByBlogID(ctx, blogPublicID, 10, nil)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestFindByBlogIDPagination(t *testing.T) {
	svc, db, _, codec := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	blogID := setupTestBlog(t, db, author.UserID)
	blogPublicID := codec.Encode(blogID)

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	ids := seedComments(t, db, blogID, author.UserID, 5, base)

	// cold read comes from the database and repopulates the cache
	page, next, err := svc.FindByBlogID(ctx, blogPublicID, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)
	require.NotNil(t, next)

	// second page is served by the warm index and must not repeat rows
	page, next, err = svc.FindByBlogID(ctx, blogPublicID, 2, next)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)
	require.NotNil(t, next)

	page, next, err = svc.FindByBlogID(ctx, blogPublicID, 2, next)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
	assert.Nil(t, next)
}

func TestStaleCursorOnColdCache(t *testing.T) {
	svc, db, cache, codec := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	blogID := setupTestBlog(t, db, author.UserID)
	blogPublicID := codec.Encode(blogID)

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	ids := seedComments(t, db, blogID, author.UserID, 5, base)

	// a client kept a cursor across an index expiry: its next read hits a
	// cold cache with a mid-stream bound
	cursor := base.Add(2 * time.Second).UnixMilli()
	page, _, err := svc.FindByBlogID(ctx, blogPublicID, 2, &cursor)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)
	assert.Equal(t, ids[0], page[1].ID)

	// an older page must not prime the index or the sentinel: a trusted
	// index built from it would hide the newest comments
	_, err = cache.Get(ctx, common.KeyBlogCommentsMeta(blogID))
	assert.ErrorIs(t, err, common.ErrCacheMiss)

	page, next, err := svc.FindByBlogID(ctx, blogPublicID, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)
	require.NotNil(t, next)

	// the newest page did prime the cache
	meta, err := cache.Get(ctx, common.KeyBlogCommentsMeta(blogID))
	require.NoError(t, err)
	assert.Equal(t, string(common.IndexOK), meta)
}

func TestPartialHydrationFallsBack(t *testing.T) {
	svc, db, cache, codec := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	blogID := setupTestBlog(t, db, author.UserID)
	blogPublicID := codec.Encode(blogID)

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	ids := seedComments(t, db, blogID, author.UserID, 3, base)

	// warm the index and hashes
	page, _, err := svc.FindByBlogID(ctx, blogPublicID, 3, nil)
	require.NoError(t, err)
	require.Len(t, page, 3)

	// expire one hash under the index; the page can no longer be trusted
	require.NoError(t, cache.Del(ctx, common.KeyComment(ids[1])))

	page, _, err = svc.FindByBlogID(ctx, blogPublicID, 3, nil)
	require.NoError(t, err)
	require.Len(t, page, 3, "fallback must return the full page")
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)
	assert.Equal(t, ids[0], page[2].ID)

	// and the fallback healed the missing hash
	fields, err := cache.HGetAll(ctx, common.KeyComment(ids[1]))
	require.NoError(t, err)
	assert.NotEmpty(t, fields)
}

func TestDeleteComment(t *testing.T) {
	svc, db, cache, codec := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	commenter := setupTestUser(t, db, "commenter")
	stranger := setupTestUser(t, db, "stranger")
	blogID := setupTestBlog(t, db, author.UserID)

	comment, err := svc.Create(ctx, commenter, codec.Encode(blogID), "delete me")
	require.NoError(t, err)
	commentPublicID := codec.Encode(comment.ID)

	err = svc.Delete(ctx, stranger, commentPublicID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	err = svc.Delete(ctx, commenter, commentPublicID)
	require.NoError(t, err)

	fields, err := cache.HGetAll(ctx, common.KeyComment(comment.ID))
	require.NoError(t, err)
	assert.Empty(t, fields)

	comments, _, err := svc.FindByBlogID(ctx, codec.Encode(blogID), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestAdminCanDeleteAnyComment(t *testing.T) {
	svc, db, _, codec := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	commenter := setupTestUser(t, db, "commenter")
	admin := setupTestUser(t, db, "moderator")
	admin.Role = common.RoleAdmin
	blogID := setupTestBlog(t, db, author.UserID)

	comment, err := svc.Create(ctx, commenter, codec.Encode(blogID), "reported")
	require.NoError(t, err)

	err = svc.Delete(ctx, admin, codec.Encode(comment.ID))
	require.NoError(t, err)
}

func TestFlattenRoundTrip(t *testing.T) {
	created := time.Now().Truncate(time.Millisecond)

	c := &Comment{
		ID:        7,
		Content:   "hello",
		BlogID:    3,
		UserID:    5,
		CreatedAt: created,
		UpdatedAt: created,
	}
	c.Author.Name = "Test User"
	c.Author.Username = "commenter"

	got, ok := unflattenComment(flattenComment(c))
	require.True(t, ok)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.Content, got.Content)
	assert.Equal(t, c.Author, got.Author)
	assert.Equal(t, c.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())

	_, ok = unflattenComment(map[string]string{})
	assert.False(t, ok)
}
