package common

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Batch queues cache operations and executes them in a single round trip.
// Results are bound to the accessor returned when the operation was queued,
// so callers never match results to operations by position themselves.
type Batch struct {
	pipe redis.Pipeliner
}

func (c *Cache) Batch() *Batch {
	return &Batch{pipe: c.client.Pipeline()}
}

func (b *Batch) Set(key, value string, ttl time.Duration) {
	b.pipe.Set(context.Background(), key, value, ttl)
}

func (b *Batch) Del(keys ...string) {
	b.pipe.Del(context.Background(), keys...)
}

func (b *Batch) SAdd(key string, members ...string) {
	b.pipe.SAdd(context.Background(), key, toAnySlice(members)...)
}

func (b *Batch) SRem(key string, members ...string) {
	b.pipe.SRem(context.Background(), key, toAnySlice(members)...)
}

func (b *Batch) ZAdd(key string, members ...ZMember) {
	b.pipe.ZAdd(context.Background(), key, toZSlice(members)...)
}

func (b *Batch) ZRem(key string, members ...string) {
	b.pipe.ZRem(context.Background(), key, toAnySlice(members)...)
}

func (b *Batch) HSet(key string, fields map[string]string) {
	b.pipe.HSet(context.Background(), key, fields)
}

func (b *Batch) Expire(key string, ttl time.Duration) {
	b.pipe.Expire(context.Background(), key, ttl)
}

// BatchString is the deferred result of a queued read. Valid after Exec.
type BatchString struct {
	cmd *redis.StringCmd
}

func (r *BatchString) Result() (string, error) {
	val, err := r.cmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

type BatchBool struct {
	cmd *redis.BoolCmd
}

func (r *BatchBool) Result() (bool, error) {
	return r.cmd.Result()
}

type BatchMap struct {
	cmd *redis.MapStringStringCmd
}

// Result returns the hash fields; an expired or absent hash comes back as an
// empty map, not an error.
func (r *BatchMap) Result() (map[string]string, error) {
	return r.cmd.Result()
}

func (b *Batch) HGetAll(key string) *BatchMap {
	return &BatchMap{cmd: b.pipe.HGetAll(context.Background(), key)}
}

func (b *Batch) Get(key string) *BatchString {
	return &BatchString{cmd: b.pipe.Get(context.Background(), key)}
}

func (b *Batch) SIsMember(key, member string) *BatchBool {
	return &BatchBool{cmd: b.pipe.SIsMember(context.Background(), key, member)}
}

// Exec runs the queued operations in one round trip. Missing keys on queued
// reads are not treated as execution errors; they surface through the
// individual result accessors.
func (b *Batch) Exec(ctx context.Context) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	_, err := b.pipe.Exec(ctx)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
