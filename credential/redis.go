package credential

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisKV is a Redis-backed credential backend. Keys live under
// "<prefix>:<name>" so several clients can share one Redis instance.
type RedisKV struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisKV creates a backend on the given client. An empty prefix defaults
// to "gocounter".
func NewRedisKV(client redis.UniversalClient, prefix string) *RedisKV {
	if prefix == "" {
		prefix = "gocounter"
	}
	return &RedisKV{redis: client, prefix: prefix}
}

func (r *RedisKV) key(name string) string {
	return r.prefix + ":" + name
}

// Get reads all keys in one MGET round-trip.
func (r *RedisKV) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if r == nil || r.redis == nil {
		return nil, ErrUnavailable
	}
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}

	vals, err := r.redis.MGet(ctx, full...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make(map[string]string, len(keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = s
	}
	return out, nil
}

// SetMany writes every value inside one MULTI/EXEC block.
func (r *RedisKV) SetMany(ctx context.Context, values map[string]string) error {
	if r == nil || r.redis == nil {
		return ErrUnavailable
	}
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, r.key(k), v, 0)
		}
		return nil
	})
	return err
}

// Delete removes all keys with a single DEL.
func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if r == nil || r.redis == nil {
		return ErrUnavailable
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.redis.Del(ctx, full...).Err()
}
