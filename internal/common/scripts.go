package common

import (
	"context"
	_ "embed"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	//go:embed scripts/like.lua
	likeLua    string
	likeScript = redis.NewScript(likeLua)

	//go:embed scripts/unlike.lua
	unlikeLua    string
	unlikeScript = redis.NewScript(unlikeLua)
)

// Like atomically applies a like: increments the blog's counter, records the
// user in the member set and adds the blog to the user's liked index. The
// check-and-mutate runs server-side so concurrent requests for the same
// (user, blog) pair cannot double count. Returns false when the user had
// already liked the blog.
func (c *Cache) Like(ctx context.Context, userID, blogID int, ts time.Time, ttl time.Duration) (bool, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	keys := []string{
		KeyBlogLikesCount(blogID),
		KeyBlogLikes(blogID),
		KeyUserLikedMeta(userID),
		KeyUserLiked(userID),
	}
	args := []any{
		strconv.Itoa(userID),
		strconv.Itoa(blogID),
		strconv.FormatInt(ts.UnixMilli(), 10),
		strconv.FormatInt(int64(ttl.Seconds()), 10),
	}

	applied, err := likeScript.Run(ctx, c.client, keys, args...).Int()
	if err != nil {
		return false, err
	}
	return applied == 1, nil
}

// Unlike atomically reverts a like. The counter is only decremented when the
// user was actually a member, and never below zero. Returns false for an
// unlike without a prior like.
func (c *Cache) Unlike(ctx context.Context, userID, blogID int) (bool, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	keys := []string{
		KeyBlogLikesCount(blogID),
		KeyBlogLikes(blogID),
		KeyUserLiked(userID),
	}
	args := []any{
		strconv.Itoa(userID),
		strconv.Itoa(blogID),
	}

	applied, err := unlikeScript.Run(ctx, c.client, keys, args...).Int()
	if err != nil {
		return false, err
	}
	return applied == 1, nil
}
