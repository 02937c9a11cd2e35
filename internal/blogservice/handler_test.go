package blogservice

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metapresshq/metapress/internal/common"
)

type stubAssetStore struct {
	mu     sync.Mutex
	purged []string
}

func (s *stubAssetStore) DeleteMany(ctx context.Context, publicIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purged = append(s.purged, publicIDs...)
	return nil
}

func (s *stubAssetStore) Purged() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.purged...)
}

func setupTestService(t *testing.T) (*BlogService, *sql.DB, *common.Cache, *common.IDCodec, *stubAssetStore) {
	db := common.TestDB("file://../../migrations", t)
	cache := common.TestCache(t)

	codec, err := common.NewIDCodec("test-salt")
	require.NoError(t, err)

	assets := &stubAssetStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewBlogService(db, cache, assets, codec, logger), db, cache, codec, assets
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

func testBlogRequest(title string) *CreateBlogRequest {
	return &CreateBlogRequest{
		Title:    title,
		Content:  json.RawMessage(`{"blocks":[{"type":"paragraph","text":"hello"}]}`),
		Category: "engineering",
	}
}

func TestCreateAndFindBlog(t *testing.T) {
	svc, _, cache, codec, _ := setupTestService(t)
	ctx := context.Background()

	session := setupTestUser(t, svc.m.db, "author")

	created, err := svc.Create(ctx, session, testBlogRequest("My First Blog"))
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.Equal(t, session.Username, created.Author.Username)

	publicID := codec.Encode(created.ID)

	warm, err := svc.Find(ctx, session, publicID)
	require.NoError(t, err)
	require.NotNil(t, warm)
	assert.Equal(t, created.ID, warm.ID)
	assert.Equal(t, "My First Blog", warm.Title)

	// cache-miss correctness: dropping the record must not change the result
	require.NoError(t, cache.Del(ctx, common.KeyBlog(created.ID)))

	cold, err := svc.Find(ctx, session, publicID)
	require.NoError(t, err)
	require.NotNil(t, cold)
	assert.Equal(t, warm.Title, cold.Title)
	assert.Equal(t, warm.Content, cold.Content)
	assert.Equal(t, warm.Author, cold.Author)
	assert.Equal(t, warm.UserID, cold.UserID)

	// the miss repopulated the record
	_, err = cache.Get(ctx, common.KeyBlog(created.ID))
	assert.NoError(t, err)
}

func TestFindUnknownBlog(t *testing.T) {
	svc, _, _, codec, _ := setupTestService(t)
	ctx := context.Background()

	view, err := svc.Find(ctx, common.AnonymousSession, "not-a-real-id")
	require.NoError(t, err)
	assert.Nil(t, view)

	view, err = svc.Find(ctx, common.AnonymousSession, codec.Encode(999999))
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestCreateBlogValidation(t *testing.T) {
	svc, _, _, _, _ := setupTestService(t)
	ctx := context.Background()

	session := setupTestUser(t, svc.m.db, "author")

	testCases := []struct {
		name  string
		req   *CreateBlogRequest
		field string
	}{
		{
			name:  "missing title",
			req:   &CreateBlogRequest{Content: json.RawMessage(`{}`)},
			field: "title",
		},
		{
			name:  "title too short",
			req:   &CreateBlogRequest{Title: "ab", Content: json.RawMessage(`{}`)},
			field: "title",
		},
		{
			name:  "invalid content",
			req:   &CreateBlogRequest{Title: "A Valid Title", Content: json.RawMessage(`{not json`)},
			field: "content",
		},
		{
			name: "invalid image url",
			req: &CreateBlogRequest{
				Title:   "A Valid Title",
				Content: json.RawMessage(`{}`),
				Images:  []ImageInput{{URL: "not-a-url", PublicID: "p1"}},
			},
			field: "images",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, session, tc.req)

			var ve common.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Errors, tc.field)
		})
	}
}

func TestCreateBlogRequiresAuth(t *testing.T) {
	svc, _, _, _, _ := setupTestService(t)

	_, err := svc.Create(context.Background(), common.AnonymousSession, testBlogRequest("A Valid Title"))
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestLikeIsIdempotentThroughService(t *testing.T) {
	svc, _, _, codec, _ := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, svc.m.db, "author")
	reader := setupTestUser(t, svc.m.db, "reader")

	created, err := svc.Create(ctx, author, testBlogRequest("Likable"))
	require.NoError(t, err)
	publicID := codec.Encode(created.ID)

	applied, err := svc.Like(ctx, reader, publicID)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.Like(ctx, reader, publicID)
	require.NoError(t, err)
	assert.False(t, applied)

	likes, isLiked := svc.GetLikes(ctx, reader, created.ID)
	assert.Equal(t, int64(1), likes)
	assert.True(t, isLiked)

	applied, err = svc.Unlike(ctx, reader, publicID)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.Unlike(ctx, reader, publicID)
	require.NoError(t, err)
	assert.False(t, applied)

	likes, isLiked = svc.GetLikes(ctx, reader, created.ID)
	assert.Equal(t, int64(0), likes)
	assert.False(t, isLiked)
}

func TestLikeUnknownBlog(t *testing.T) {
	svc, _, _, codec, _ := setupTestService(t)
	ctx := context.Background()

	session := setupTestUser(t, svc.m.db, "reader")

	_, err := svc.Like(ctx, session, codec.Encode(999999))
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestUpdateBlogOwnership(t *testing.T) {
	svc, _, _, codec, _ := setupTestService(t)
	ctx := context.Background()

	owner := setupTestUser(t, svc.m.db, "owner")
	other := setupTestUser(t, svc.m.db, "other")

	created, err := svc.Create(ctx, owner, testBlogRequest("Original Title"))
	require.NoError(t, err)

	req := &UpdateBlogRequest{
		ID:      codec.Encode(created.ID),
		Title:   "Hijacked Title",
		Content: created.Content,
	}

	_, err = svc.Update(ctx, other, req)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	req.Title = "Updated Title"
	updated, err := svc.Update(ctx, owner, req)
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", updated.Title)

	// the cached record was overwritten with the fresh view
	view, err := svc.Find(ctx, owner, codec.Encode(created.ID))
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", view.Title)
}

func TestDeleteBlogCascade(t *testing.T) {
	svc, db, cache, codec, assets := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	reader := setupTestUser(t, db, "reader")

	req := testBlogRequest("Doomed Blog")
	req.Images = []ImageInput{{URL: "https://cdn.example.com/a.png", PublicID: "asset-1"}}

	created, err := svc.Create(ctx, author, req)
	require.NoError(t, err)
	publicID := codec.Encode(created.ID)

	_, err = svc.Like(ctx, reader, publicID)
	require.NoError(t, err)

	// a stranger cannot delete it
	err = svc.Delete(ctx, reader, publicID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	err = svc.Delete(ctx, author, publicID)
	require.NoError(t, err)

	view, err := svc.Find(ctx, author, publicID)
	require.NoError(t, err)
	assert.Nil(t, view)

	for _, key := range []string{
		common.KeyBlog(created.ID),
		common.KeyBlogLikesCount(created.ID),
		common.KeyBlogCommentsMeta(created.ID),
	} {
		_, err := cache.Get(ctx, key)
		assert.ErrorIs(t, err, common.ErrCacheMiss, key)
	}

	assert.Eventually(t, func() bool {
		purged := assets.Purged()
		return len(purged) == 1 && purged[0] == "asset-1"
	}, 2*time.Second, 50*time.Millisecond)
}

func TestAdminCanDeleteAnyBlog(t *testing.T) {
	svc, db, _, codec, _ := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	admin := setupTestUser(t, db, "moderator")
	admin.Role = common.RoleAdmin

	created, err := svc.Create(ctx, author, testBlogRequest("Reported Blog"))
	require.NoError(t, err)

	err = svc.Delete(ctx, admin, codec.Encode(created.ID))
	require.NoError(t, err)

	view, err := svc.Find(ctx, author, codec.Encode(created.ID))
	require.NoError(t, err)
	assert.Nil(t, view)
}

func seedBlogs(t *testing.T, db *sql.DB, userID, n int, base time.Time) []int {
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		var id int
		err := db.QueryRow(`
			INSERT INTO blogs (title, content, author_name, author_username, user_id, created_at, updated_at)
			VALUES ($1, '{}', 'Test User', 'author', $2, $3, $3)
			RETURNING id`,
			fmt.Sprintf("Blog %d", i+1), userID, base.Add(time.Duration(i)*time.Second)).Scan(&id)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestPageByUserID(t *testing.T) {
	svc, db, _, _, _ := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	ids := seedBlogs(t, db, author.UserID, 5, base)

	// newest first
	page, next, err := svc.PageByUserID(ctx, author.UserID, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)
	require.NotNil(t, next)
	assert.Equal(t, page[1].CreatedAt.UnixMilli(), *next)

	// the cursor bound is exclusive: no repeated rows
	page, next, err = svc.PageByUserID(ctx, author.UserID, 2, next)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)
	require.NotNil(t, next)

	// short final page means no next cursor
	page, next, err = svc.PageByUserID(ctx, author.UserID, 2, next)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
	assert.Nil(t, next)
}

func TestLikedPageByUserID(t *testing.T) {
	svc, db, _, _, _ := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	reader := setupTestUser(t, db, "reader")
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	ids := seedBlogs(t, db, author.UserID, 3, base)

	for i, id := range ids {
		_, err := db.Exec(`
			INSERT INTO likes (user_id, blog_id, created_at)
			VALUES ($1, $2, $3)`, reader.UserID, id, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	page, next, err := svc.LikedPageByUserID(ctx, reader.UserID, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)
	require.NotNil(t, next)
	assert.Equal(t, page[1].LikedAt.UnixMilli(), *next)

	page, next, err = svc.LikedPageByUserID(ctx, reader.UserID, 2, next)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
	assert.Nil(t, next)
}

func TestHydrateByIDs(t *testing.T) {
	svc, db, cache, _, _ := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	ids := seedBlogs(t, db, author.UserID, 3, base)

	// warm only the middle record
	mid, err := svc.m.find(ctx, ids[1])
	require.NoError(t, err)
	data, err := json.Marshal(mid)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, common.KeyBlog(ids[1]), string(data), time.Minute))

	// one dead id mixed in
	want := []int{ids[2], ids[1], ids[0]}
	blogs, stale, err := svc.HydrateByIDs(ctx, append(want, 999999))
	require.NoError(t, err)

	require.Len(t, blogs, 3)
	for i, id := range want {
		assert.Equal(t, id, blogs[i].ID)
	}
	assert.Equal(t, []int{999999}, stale)
}

func TestRandomBlogsRecencyWindow(t *testing.T) {
	svc, db, _, _, _ := setupTestService(t)
	ctx := context.Background()

	author := setupTestUser(t, db, "author")
	seedBlogs(t, db, author.UserID, 3, time.Now().Add(-time.Hour))

	// too old for the feed sample
	_, err := db.Exec(`
		INSERT INTO blogs (title, content, author_name, author_username, user_id, created_at, updated_at)
		VALUES ('Ancient', '{}', 'Test User', 'author', $1, NOW() - INTERVAL '3 years', NOW() - INTERVAL '3 years')`,
		author.UserID)
	require.NoError(t, err)

	blogs, err := svc.RandomBlogs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, blogs, 3)
	for _, b := range blogs {
		assert.NotEqual(t, "Ancient", b.Title)
	}
}

// End-to-end walk through the core lifecycle: create, like twice, unlike,
// delete, then verify everything is gone.
func TestBlogLifecycle(t *testing.T) {
	svc, db, _, codec, _ := setupTestService(t)
	ctx := context.Background()

	userA := setupTestUser(t, db, "usera")
	userB := setupTestUser(t, db, "userb")

	created, err := svc.Create(ctx, userA, testBlogRequest("Lifecycle"))
	require.NoError(t, err)
	publicID := codec.Encode(created.ID)

	applied, err := svc.Like(ctx, userB, publicID)
	require.NoError(t, err)
	assert.True(t, applied)

	likes, isLiked := svc.GetLikes(ctx, userB, created.ID)
	assert.Equal(t, int64(1), likes)
	assert.True(t, isLiked)

	applied, err = svc.Like(ctx, userB, publicID)
	require.NoError(t, err)
	assert.False(t, applied)

	likes, _ = svc.GetLikes(ctx, userB, created.ID)
	assert.Equal(t, int64(1), likes)

	applied, err = svc.Unlike(ctx, userB, publicID)
	require.NoError(t, err)
	assert.True(t, applied)

	likes, isLiked = svc.GetLikes(ctx, userB, created.ID)
	assert.Equal(t, int64(0), likes)
	assert.False(t, isLiked)

	require.NoError(t, svc.Delete(ctx, userA, publicID))

	view, err := svc.Find(ctx, userA, publicID)
	require.NoError(t, err)
	assert.Nil(t, view)

	page, next, err := svc.PageByUserID(ctx, userA.UserID, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Nil(t, next)
}
