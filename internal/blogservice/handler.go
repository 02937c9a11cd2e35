package blogservice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/metapresshq/metapress/internal/common"
)

type ImageInput struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

type CreateBlogRequest struct {
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content"`
	CoverImage string          `json:"cover_image"`
	Category   string          `json:"category"`
	Images     []ImageInput    `json:"images"`
}

type UpdateBlogRequest struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Content        json.RawMessage `json:"content"`
	CoverImage     string          `json:"cover_image"`
	Category       string          `json:"category"`
	AddImages      []ImageInput    `json:"add_images"`
	RemoveImageIDs []int           `json:"remove_image_ids"`
}

// Find returns the blog for an opaque public id, or nil when it does not
// exist. The record comes from the cache when warm and the database
// otherwise; the like count and caller's like state are always fetched fresh
// so a like never invalidates the record.
func (s *BlogService) Find(ctx context.Context, session common.Session, publicID string) (*BlogView, error) {
	id, err := s.codec.Decode(publicID)
	if err != nil {
		return nil, nil
	}

	if blog := s.cachedBlog(ctx, id); blog != nil {
		return s.withLikes(ctx, session, blog), nil
	}

	blog, err := s.m.find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	s.writeCachedBlog(ctx, blog)

	return s.withLikes(ctx, session, blog), nil
}

// GetLikes fetches the like count and whether the caller liked the blog in a
// single pipelined round trip. Any cache failure degrades to zero/false
// without touching the database; like state is display data, not critical.
func (s *BlogService) GetLikes(ctx context.Context, session common.Session, blogID int) (int64, bool) {
	batch := s.c.Batch()
	count := batch.Get(common.KeyBlogLikesCount(blogID))
	member := batch.SIsMember(common.KeyBlogLikes(blogID), strconv.Itoa(session.UserID))

	if err := batch.Exec(ctx); err != nil {
		s.cacheSoftFail("get likes", err)
		return 0, false
	}

	likes := int64(0)
	if raw, err := count.Result(); err == nil {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			likes = n
		}
	}

	isLiked := false
	if session.UserID != 0 {
		if ok, err := member.Result(); err == nil {
			isLiked = ok
		}
	}

	return likes, isLiked
}

// Create validates the request, writes the blog and its images in one
// transaction and then primes the cache: the record itself, the author's
// blog index and an "empty" comments sentinel so the first comment-list view
// skips the database.
func (s *BlogService) Create(ctx context.Context, session common.Session, req *CreateBlogRequest) (*BlogView, error) {
	if session.IsAnonymous() {
		return nil, common.ErrUnauthorized
	}

	v := common.NewValidator()
	validateTitle(v, req.Title)
	validateContent(v, req.Content)
	validateImages(v, req.Images)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	blog := &Blog{
		Title:      req.Title,
		Content:    sanitizeContent(req.Content),
		CoverImage: req.CoverImage,
		Category:   req.Category,
		Author: Author{
			Name:     session.Name,
			Username: session.Username,
			Image:    session.Image,
		},
		UserID: session.UserID,
		Images: imageInputs(req.Images),
	}

	if err := s.m.insert(ctx, blog); err != nil {
		return nil, err
	}

	if data, err := json.Marshal(blog); err == nil {
		batch := s.c.Batch()
		batch.Set(common.KeyBlog(blog.ID), string(data), common.BlogTTL)
		batch.Set(common.KeyUserBlogsMeta(blog.UserID), string(common.IndexOK), common.UserBlogsTTL)
		batch.ZAdd(common.KeyUserBlogs(blog.UserID), common.ZMember{
			Score: float64(blog.CreatedAt.UnixMilli()),
			Value: strconv.Itoa(blog.ID),
		})
		batch.Expire(common.KeyUserBlogs(blog.UserID), common.UserBlogsTTL)
		batch.Set(common.KeyBlogCommentsMeta(blog.ID), string(common.IndexEmpty), common.CommentIndexTTL)
		if err := batch.Exec(ctx); err != nil {
			s.cacheSoftFail("populate created blog", err)
		}
	}

	return &BlogView{Blog: *blog}, nil
}

// Update rewrites the blog in the database, overwrites the cached record with
// the fresh view and purges any removed CDN assets in the background.
func (s *BlogService) Update(ctx context.Context, session common.Session, req *UpdateBlogRequest) (*BlogView, error) {
	if session.IsAnonymous() {
		return nil, common.ErrUnauthorized
	}

	id, err := s.codec.Decode(req.ID)
	if err != nil {
		return nil, ErrRecordNotFound
	}

	v := common.NewValidator()
	validateTitle(v, req.Title)
	validateContent(v, req.Content)
	validateImages(v, req.AddImages)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	blog := &Blog{
		ID:         id,
		Title:      req.Title,
		Content:    sanitizeContent(req.Content),
		CoverImage: req.CoverImage,
		Category:   req.Category,
		UserID:     session.UserID,
	}

	removedPublicIDs, err := s.m.update(ctx, blog, imageInputs(req.AddImages), req.RemoveImageIDs)
	if err != nil {
		return nil, err
	}

	// re-read for the reconciled image set and author snapshot
	fresh, err := s.m.find(ctx, id)
	if err != nil {
		return nil, err
	}

	s.writeCachedBlog(ctx, fresh)
	s.purgeAssets(removedPublicIDs)

	return s.withLikes(ctx, session, fresh), nil
}

// Delete removes the blog row (the database cascades comments and likes),
// purges CDN assets in the background and clears every cache key derived
// from the blog. Only the deleting user's own indices are cleaned eagerly;
// other users' liked indices self-heal when hydration drops the dead id.
func (s *BlogService) Delete(ctx context.Context, session common.Session, publicID string) error {
	if session.IsAnonymous() {
		return common.ErrUnauthorized
	}

	id, err := s.codec.Decode(publicID)
	if err != nil {
		return ErrRecordNotFound
	}

	publicIDs, err := s.m.delete(ctx, id, session.UserID, session.IsAdmin())
	if err != nil {
		return err
	}

	s.purgeAssets(publicIDs)

	batch := s.c.Batch()
	batch.Del(
		common.KeyBlog(id),
		common.KeyBlogLikesCount(id),
		common.KeyBlogLikes(id),
		common.KeyBlogComments(id),
		common.KeyBlogCommentsMeta(id),
	)
	batch.ZRem(common.KeyUserBlogs(session.UserID), strconv.Itoa(id))
	batch.ZRem(common.KeyUserLiked(session.UserID), strconv.Itoa(id))
	batch.SRem(common.KeyFeedBlogs(), strconv.Itoa(id))
	if err := batch.Exec(ctx); err != nil {
		s.cacheSoftFail("clean deleted blog", err)
	}

	return nil
}

// Like records the like in the database first, then applies the atomic
// counter script best-effort. The composite key makes a repeat like a no-op;
// cache failures are invisible to the caller.
func (s *BlogService) Like(ctx context.Context, session common.Session, publicID string) (bool, error) {
	if session.IsAnonymous() {
		return false, common.ErrUnauthorized
	}

	id, err := s.codec.Decode(publicID)
	if err != nil {
		return false, nil
	}

	likedAt, applied, err := s.m.insertLike(ctx, session.UserID, id)
	if err != nil {
		if ForeignKeyError(err, "likes_blog_id_fkey") {
			return false, ErrRecordNotFound
		}
		return false, err
	}
	if !applied {
		return false, nil
	}

	if _, err := s.c.Like(ctx, session.UserID, id, likedAt, common.UserLikedTTL); err != nil {
		s.cacheSoftFail("like", err)
	}

	return true, nil
}

func (s *BlogService) Unlike(ctx context.Context, session common.Session, publicID string) (bool, error) {
	if session.IsAnonymous() {
		return false, common.ErrUnauthorized
	}

	id, err := s.codec.Decode(publicID)
	if err != nil {
		return false, nil
	}

	applied, err := s.m.deleteLike(ctx, session.UserID, id)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	if _, err := s.c.Unlike(ctx, session.UserID, id); err != nil {
		s.cacheSoftFail("unlike", err)
	}

	return true, nil
}

// HydrateByIDs resolves blog ids to records in input order, reading the
// cache first and stitching database results for the misses back into the
// original order. Ids that resolve nowhere are dropped and returned as stale
// so the caller can prune the index they came from.
func (s *BlogService) HydrateByIDs(ctx context.Context, ids []int) ([]Blog, []int, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	byID := make(map[int]Blog, len(ids))
	missing := ids

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = common.KeyBlog(id)
	}

	if vals, err := s.c.MGet(ctx, keys...); err == nil {
		missing = missing[:0:0]
		for i, val := range vals {
			if val == nil {
				missing = append(missing, ids[i])
				continue
			}
			var blog Blog
			if err := json.Unmarshal([]byte(*val), &blog); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			byID[blog.ID] = blog
		}
	} else {
		s.cacheSoftFail("hydrate blogs", err)
	}

	if len(missing) > 0 {
		fetched, err := s.m.findMany(ctx, missing)
		if err != nil {
			return nil, nil, err
		}
		for _, blog := range fetched {
			byID[blog.ID] = blog
			s.writeCachedBlog(ctx, &blog)
		}
	}

	blogs := make([]Blog, 0, len(ids))
	var stale []int
	for _, id := range ids {
		blog, ok := byID[id]
		if !ok {
			stale = append(stale, id)
			continue
		}
		blogs = append(blogs, blog)
	}

	return blogs, stale, nil
}

// PageByUserID is the authoritative page of a user's blogs, used when the
// cached index is cold. The next cursor is set only on a full page.
func (s *BlogService) PageByUserID(ctx context.Context, userID, pageSize int, cursor *int64) ([]Blog, *int64, error) {
	blogs, err := s.m.findManyByUserID(ctx, userID, pageSize, cursorTime(cursor))
	if err != nil {
		return nil, nil, err
	}

	var next *int64
	if len(blogs) == pageSize {
		ms := blogs[len(blogs)-1].CreatedAt.UnixMilli()
		next = &ms
	}

	return blogs, next, nil
}

func (s *BlogService) LikedPageByUserID(ctx context.Context, userID, pageSize int, cursor *int64) ([]LikedBlog, *int64, error) {
	liked, err := s.m.findManyLikedByUserID(ctx, userID, pageSize, cursorTime(cursor))
	if err != nil {
		return nil, nil, err
	}

	var next *int64
	if len(liked) == pageSize {
		ms := liked[len(liked)-1].LikedAt.UnixMilli()
		next = &ms
	}

	return liked, next, nil
}

// RandomBlogs samples the recency window directly from the database. Used to
// seed the feed set when it is cold.
func (s *BlogService) RandomBlogs(ctx context.Context, limit int) ([]Blog, error) {
	return s.m.findManyRandom(ctx, limit)
}

// CursorMax converts an optional cursor to the sorted-set max score bound.
func CursorMax(cursor *int64) float64 {
	if cursor == nil {
		return math.Inf(1)
	}
	return float64(*cursor)
}

func cursorTime(cursor *int64) *time.Time {
	if cursor == nil {
		return nil
	}
	t := time.UnixMilli(*cursor)
	return &t
}

func imageInputs(inputs []ImageInput) []BlogImage {
	images := make([]BlogImage, len(inputs))
	for i, in := range inputs {
		images[i] = BlogImage{URL: in.URL, PublicID: in.PublicID}
	}
	return images
}

func (s *BlogService) withLikes(ctx context.Context, session common.Session, blog *Blog) *BlogView {
	likes, isLiked := s.GetLikes(ctx, session, blog.ID)
	return &BlogView{Blog: *blog, Likes: likes, IsLiked: isLiked}
}

func (s *BlogService) cachedBlog(ctx context.Context, id int) *Blog {
	raw, err := s.c.Get(ctx, common.KeyBlog(id))
	if err != nil {
		if !errors.Is(err, common.ErrCacheMiss) {
			s.cacheSoftFail("read blog", err)
		}
		return nil
	}

	var blog Blog
	if err := json.Unmarshal([]byte(raw), &blog); err != nil {
		return nil
	}
	return &blog
}

func (s *BlogService) writeCachedBlog(ctx context.Context, blog *Blog) {
	data, err := json.Marshal(blog)
	if err != nil {
		return
	}
	if err := s.c.Set(ctx, common.KeyBlog(blog.ID), string(data), common.BlogTTL); err != nil {
		s.cacheSoftFail("write blog", err)
	}
}

// purgeAssets removes CDN assets in the background. The database row is gone
// either way; a failed purge only leaks an orphaned asset.
func (s *BlogService) purgeAssets(publicIDs []string) {
	if len(publicIDs) == 0 || s.assets == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.assets.DeleteMany(ctx, publicIDs); err != nil {
			s.logger.Warn("could not purge blog assets", slog.String("error", err.Error()))
		}
	}()
}

func (s *BlogService) cacheSoftFail(op string, err error) {
	s.logger.Warn("cache operation failed", slog.String("op", op), slog.String("error", err.Error()))
}
