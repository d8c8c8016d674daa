package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

// Redis is a Cache shared by every process pointed at the same server.
// All keys live under prefix so Clear leaves foreign keys alone.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

var _ Cache = (*Redis)(nil)

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, r.prefix+key, val, ttl).Err()
}

// Clear collects every key under the prefix before deleting any, since
// deleting while a SCAN is in progress can make it skip keys.
func (r *Redis) Clear(ctx context.Context) error {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	for len(keys) > 0 {
		n := min(scanBatch, len(keys))
		if err := r.rdb.Del(ctx, keys[:n]...).Err(); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}
