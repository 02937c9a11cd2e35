package common

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache is a thin adapter over the Redis client. It is an optimization layer
// only: callers treat every returned error as a miss and fall back to the
// database. Each operation is bounded by its own short timeout so a slow
// cache cannot stall a request.
type Cache struct {
	client *redis.Client
}

const cacheOpTimeout = 250 * time.Millisecond

func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &Cache{client: client}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, cacheOpTimeout)
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// MGet preserves the order of keys and returns nil for each miss.
func (c *Cache) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*string, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = &s
		}
	}
	return out, nil
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.Del(ctx, keys...).Err()
}

func (c *Cache) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.Incr(ctx, key).Result()
}

func (c *Cache) Decr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.Decr(ctx, key).Result()
}

func (c *Cache) SAdd(ctx context.Context, key string, members ...string) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.SAdd(ctx, key, toAnySlice(members)...).Err()
}

func (c *Cache) SRem(ctx context.Context, key string, members ...string) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.SRem(ctx, key, toAnySlice(members)...).Err()
}

func (c *Cache) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.SIsMember(ctx, key, member).Result()
}

func (c *Cache) SCard(ctx context.Context, key string) (int64, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.SCard(ctx, key).Result()
}

// SRandMembers draws up to n distinct members. The sample is uniform enough
// for feed diversity, nothing more.
func (c *Cache) SRandMembers(ctx context.Context, key string, n int64) ([]string, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.SRandMemberN(ctx, key, n).Result()
}

type ZMember struct {
	Score float64
	Value string
}

func (c *Cache) ZAdd(ctx context.Context, key string, members ...ZMember) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.ZAdd(ctx, key, toZSlice(members)...).Err()
}

func (c *Cache) ZRem(ctx context.Context, key string, members ...string) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.ZRem(ctx, key, toAnySlice(members)...).Err()
}

// ZRevRangeByScore returns up to count members with score below max in
// descending score order. Pass math.Inf(1) as max for the newest page;
// passing the previous page's last score implements cursor pagination (the
// bound is exclusive so the cursor row is not repeated).
func (c *Cache) ZRevRangeByScore(ctx context.Context, key string, max float64, count int64) ([]string, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rangeBy := &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatMaxScore(max),
		Count: count,
	}
	return c.client.ZRevRangeByScore(ctx, key, rangeBy).Result()
}

// ZRevRangeByScoreWithScores is ZRevRangeByScore keeping each member's score,
// so callers can derive the next cursor even when members are later dropped
// during hydration.
func (c *Cache) ZRevRangeByScoreWithScores(ctx context.Context, key string, max float64, count int64) ([]ZMember, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rangeBy := &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatMaxScore(max),
		Count: count,
	}
	zs, err := c.client.ZRevRangeByScoreWithScores(ctx, key, rangeBy).Result()
	if err != nil {
		return nil, err
	}

	members := make([]ZMember, len(zs))
	for i, z := range zs {
		value, _ := z.Member.(string)
		members[i] = ZMember{Score: z.Score, Value: value}
	}
	return members, nil
}

func formatMaxScore(max float64) string {
	if math.IsInf(max, 1) {
		return "+inf"
	}
	return "(" + strconv.FormatFloat(max, 'f', -1, 64)
}

func (c *Cache) HSet(ctx context.Context, key string, fields map[string]string) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.HSet(ctx, key, fields).Err()
}

func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.HGetAll(ctx, key).Result()
}

func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return c.client.Expire(ctx, key, ttl).Err()
}

// FlushAll is only used by tests to reset state between cases.
func (c *Cache) FlushAll(ctx context.Context) error {
	return c.client.FlushAll(ctx).Err()
}

func toAnySlice(members []string) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}

func toZSlice(members []ZMember) []redis.Z {
	out := make([]redis.Z, len(members))
	for i, m := range members {
		out[i] = redis.Z{Score: m.Score, Member: m.Value}
	}
	return out
}
