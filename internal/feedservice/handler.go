package feedservice

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/metapresshq/metapress/internal/blogservice"
	"github.com/metapresshq/metapress/internal/common"
)

const (
	defaultFeedLimit = 9
	maxFeedLimit     = 30
	feedSeedSize     = 60
)

// FeedService serves the random explore feed. The cache holds an unordered
// set of sampled blog ids as the feed universe; each request draws a random
// subset from it, so two visitors rarely see the same page.
type FeedService struct {
	blogs  *blogservice.BlogService
	c      *common.Cache
	logger *slog.Logger
}

func NewFeedService(blogs *blogservice.BlogService, c *common.Cache, logger *slog.Logger) *FeedService {
	return &FeedService{
		blogs:  blogs,
		c:      c,
		logger: logger,
	}
}

// GetBlogsFeed returns up to limit random blogs. A warm feed set is sampled
// with SRANDMEMBER and hydrated through the shared blog cache; a cold one is
// rebuilt from a database-level random sample bounded to a recency window,
// and seeded for subsequent calls.
func (s *FeedService) GetBlogsFeed(ctx context.Context, session common.Session, limit int) ([]blogservice.BlogView, error) {
	if limit < 1 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}

	if ids, err := s.c.SRandMembers(ctx, common.KeyFeedBlogs(), int64(limit)); err == nil && len(ids) > 0 {
		blogIDs := make([]int, 0, len(ids))
		for _, raw := range ids {
			if id, err := strconv.Atoi(raw); err == nil {
				blogIDs = append(blogIDs, id)
			}
		}

		blogs, stale, err := s.blogs.HydrateByIDs(ctx, blogIDs)
		if err == nil && len(blogs) > 0 {
			if len(stale) > 0 {
				s.pruneFeed(ctx, stale)
			}
			return s.withLikes(ctx, session, blogs), nil
		}
	}

	blogs, err := s.blogs.RandomBlogs(ctx, feedSeedSize)
	if err != nil {
		return nil, err
	}

	s.seedFeed(ctx, blogs)

	if len(blogs) > limit {
		blogs = blogs[:limit]
	}

	return s.withLikes(ctx, session, blogs), nil
}

func (s *FeedService) seedFeed(ctx context.Context, blogs []blogservice.Blog) {
	if len(blogs) == 0 {
		return
	}

	ids := make([]string, len(blogs))
	for i, b := range blogs {
		ids[i] = strconv.Itoa(b.ID)
	}

	batch := s.c.Batch()
	batch.SAdd(common.KeyFeedBlogs(), ids...)
	batch.Expire(common.KeyFeedBlogs(), common.FeedTTL)
	if err := batch.Exec(ctx); err != nil {
		s.logger.Warn("cache operation failed", slog.String("op", "seed feed"), slog.String("error", err.Error()))
	}
}

func (s *FeedService) pruneFeed(ctx context.Context, stale []int) {
	ids := make([]string, len(stale))
	for i, id := range stale {
		ids[i] = strconv.Itoa(id)
	}
	if err := s.c.SRem(ctx, common.KeyFeedBlogs(), ids...); err != nil {
		s.logger.Warn("cache operation failed", slog.String("op", "prune feed"), slog.String("error", err.Error()))
	}
}

func (s *FeedService) withLikes(ctx context.Context, session common.Session, blogs []blogservice.Blog) []blogservice.BlogView {
	views := make([]blogservice.BlogView, len(blogs))
	for i, b := range blogs {
		likes, isLiked := s.blogs.GetLikes(ctx, session, b.ID)
		views[i] = blogservice.BlogView{Blog: b, Likes: likes, IsLiked: isLiked}
	}
	return views
}
