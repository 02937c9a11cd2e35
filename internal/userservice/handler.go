package userservice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/metapresshq/metapress/internal/blogservice"
	"github.com/metapresshq/metapress/internal/common"
)

// FindByUsername resolves a public profile, or nil when no such user exists.
//
// The global username set acts as a cheap negative-existence filter: a
// username absent from a non-empty filter cannot exist, so typos and scans
// are rejected without a record lookup. The filter is only trusted while it
// holds members; an empty or unreachable filter falls through to the normal
// read-through path.
func (s *UserService) FindByUsername(ctx context.Context, session common.Session, username string) (*Profile, error) {
	v := common.NewValidator()
	validateUsername(v, username)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	known, err := s.usernameKnown(ctx, username)
	if err == nil && !known {
		return nil, nil
	}

	if user := s.cachedUser(ctx, username); user != nil {
		return s.profile(session, user), nil
	}

	user, err := s.m.findByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	s.writeCachedUser(ctx, user)

	return s.profile(session, user), nil
}

// WarmUsernameFilter seeds the username membership set from the database.
// Called once at startup; afterwards the set is maintained on the read path.
func (s *UserService) WarmUsernameFilter(ctx context.Context) error {
	names, err := s.m.usernames(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	return s.c.SAdd(ctx, common.KeyUsernames(), names...)
}

// FindBlogs pages through a user's authored blogs, newest first, via the
// cached sorted index when warm. The meta sentinel distinguishes a user with
// genuinely zero blogs from a never-cached index, so empty profiles cost at
// most one database query.
func (s *UserService) FindBlogs(ctx context.Context, session common.Session, userPublicID string, pageSize int, cursor *int64) ([]blogservice.Blog, *int64, error) {
	userID, err := s.codec.Decode(userPublicID)
	if err != nil {
		return nil, nil, nil
	}

	if pageSize < 1 {
		pageSize = 10
	}

	meta, err := s.c.Get(ctx, common.KeyUserBlogsMeta(userID))
	if err != nil && !errors.Is(err, common.ErrCacheMiss) {
		s.cacheSoftFail("read user blogs meta", err)
	}

	switch common.IndexState(meta) {
	case common.IndexEmpty:
		return nil, nil, nil
	case common.IndexOK:
		blogs, next, ok := s.indexedPage(ctx, common.KeyUserBlogs(userID), pageSize, cursor)
		if ok {
			return blogs, next, nil
		}
	}

	blogs, next, err := s.blogs.PageByUserID(ctx, userID, pageSize, cursor)
	if err != nil {
		return nil, nil, err
	}

	if cursor == nil {
		s.primeIndex(ctx, common.KeyUserBlogs(userID), common.KeyUserBlogsMeta(userID), common.UserBlogsTTL, blogScores(blogs))
	}

	return blogs, next, nil
}

// FindLikedBlogs pages through the blogs a user liked, newest like first.
// The liked index is scored by like timestamp; when a liked blog has been
// deleted its id no longer hydrates and is pruned from the index on the way
// out (lazy self-healing, deletion does not fan out to every liker).
func (s *UserService) FindLikedBlogs(ctx context.Context, session common.Session, userPublicID string, pageSize int, cursor *int64) ([]blogservice.Blog, *int64, error) {
	userID, err := s.codec.Decode(userPublicID)
	if err != nil {
		return nil, nil, nil
	}

	if pageSize < 1 {
		pageSize = 10
	}

	meta, err := s.c.Get(ctx, common.KeyUserLikedMeta(userID))
	if err != nil && !errors.Is(err, common.ErrCacheMiss) {
		s.cacheSoftFail("read user liked meta", err)
	}

	switch common.IndexState(meta) {
	case common.IndexEmpty:
		return nil, nil, nil
	case common.IndexOK:
		blogs, next, ok := s.indexedPage(ctx, common.KeyUserLiked(userID), pageSize, cursor)
		if ok {
			return blogs, next, nil
		}
	}

	liked, next, err := s.blogs.LikedPageByUserID(ctx, userID, pageSize, cursor)
	if err != nil {
		return nil, nil, err
	}

	if len(liked) == 0 && cursor == nil {
		if err := s.c.Set(ctx, common.KeyUserLikedMeta(userID), string(common.IndexEmpty), common.UserLikedTTL); err != nil {
			s.cacheSoftFail("write user liked meta", err)
		}
		return nil, nil, nil
	}

	blogs := make([]blogservice.Blog, len(liked))
	scores := make([]common.ZMember, len(liked))
	for i, lb := range liked {
		blogs[i] = lb.Blog
		scores[i] = common.ZMember{
			Score: float64(lb.LikedAt.UnixMilli()),
			Value: strconv.Itoa(lb.ID),
		}
	}

	if cursor == nil {
		s.primeIndex(ctx, common.KeyUserLiked(userID), common.KeyUserLikedMeta(userID), common.UserLikedTTL, scores)
	}

	return blogs, next, nil
}

// indexedPage reads one page of blog ids from a sorted index and hydrates
// them. Cached records and database-fetched misses are stitched back into
// the index's id order; ids that resolve nowhere are dropped from both the
// page and the index. ok is false when the cache cannot serve the page.
func (s *UserService) indexedPage(ctx context.Context, indexKey string, pageSize int, cursor *int64) ([]blogservice.Blog, *int64, bool) {
	members, err := s.c.ZRevRangeByScoreWithScores(ctx, indexKey, blogservice.CursorMax(cursor), int64(pageSize))
	if err != nil {
		s.cacheSoftFail("read sorted index", err)
		return nil, nil, false
	}

	// the index may hold only the pages read so far; a short page has to be
	// re-checked against the database
	if len(members) < pageSize {
		return nil, nil, false
	}

	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m.Value)
		if err != nil {
			return nil, nil, false
		}
		ids = append(ids, id)
	}

	blogs, stale, err := s.blogs.HydrateByIDs(ctx, ids)
	if err != nil {
		return nil, nil, false
	}

	if len(stale) > 0 {
		staleValues := make([]string, len(stale))
		for i, id := range stale {
			staleValues[i] = strconv.Itoa(id)
		}
		if err := s.c.ZRem(ctx, indexKey, staleValues...); err != nil {
			s.cacheSoftFail("prune sorted index", err)
		}
	}

	var next *int64
	if len(members) == pageSize {
		ms := int64(members[len(members)-1].Score)
		next = &ms
	}

	return blogs, next, true
}

// primeIndex writes the first page of a sorted index together with its meta
// sentinel. Later pages are never primed: the index either holds the newest
// entries or gets rebuilt wholesale on its next cold read.
func (s *UserService) primeIndex(ctx context.Context, indexKey, metaKey string, ttl time.Duration, scores []common.ZMember) {
	if len(scores) == 0 {
		if err := s.c.Set(ctx, metaKey, string(common.IndexEmpty), ttl); err != nil {
			s.cacheSoftFail("write index meta", err)
		}
		return
	}

	batch := s.c.Batch()
	batch.ZAdd(indexKey, scores...)
	batch.Expire(indexKey, ttl)
	batch.Set(metaKey, string(common.IndexOK), ttl)
	if err := batch.Exec(ctx); err != nil {
		s.cacheSoftFail("prime sorted index", err)
	}
}

func (s *UserService) usernameKnown(ctx context.Context, username string) (bool, error) {
	size, err := s.c.SCard(ctx, common.KeyUsernames())
	if err != nil {
		return true, err
	}
	if size == 0 {
		// filter never seeded; cannot conclude anything
		return true, nil
	}

	return s.c.SIsMember(ctx, common.KeyUsernames(), username)
}

func (s *UserService) profile(session common.Session, user *User) *Profile {
	return &Profile{
		User:        *user,
		IsSelf:      session.UserID == user.ID,
		IsSelfAdmin: session.UserID == user.ID && session.IsAdmin(),
	}
}

func (s *UserService) cachedUser(ctx context.Context, username string) *User {
	raw, err := s.c.Get(ctx, common.KeyUser(username))
	if err != nil {
		if !errors.Is(err, common.ErrCacheMiss) {
			s.cacheSoftFail("read user", err)
		}
		return nil
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil
	}
	return &user
}

func (s *UserService) writeCachedUser(ctx context.Context, user *User) {
	data, err := json.Marshal(user)
	if err != nil {
		return
	}

	batch := s.c.Batch()
	batch.Set(common.KeyUser(user.Username), string(data), common.UserTTL)
	batch.SAdd(common.KeyUsernames(), user.Username)
	if err := batch.Exec(ctx); err != nil {
		s.cacheSoftFail("write user", err)
	}
}

func blogScores(blogs []blogservice.Blog) []common.ZMember {
	scores := make([]common.ZMember, len(blogs))
	for i, b := range blogs {
		scores[i] = common.ZMember{
			Score: float64(b.CreatedAt.UnixMilli()),
			Value: strconv.Itoa(b.ID),
		}
	}
	return scores
}

func (s *UserService) cacheSoftFail(op string, err error) {
	s.logger.Warn("cache operation failed", slog.String("op", op), slog.String("error", err.Error()))
}
