package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vinceanalytics/collector/internal/config"
)

// compareAndSet swaps the value only if the current one matches. A ttl of 0
// keeps the key without expiry.
var compareAndSet = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		if tonumber(ARGV[3]) > 0 then
			redis.call("set", KEYS[1], ARGV[2], "PX", ARGV[3])
		else
			redis.call("set", KEYS[1], ARGV[2])
		end
		return 1
	else
		return 0
	end
`)

type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func OpenRedis(o config.Redis) (*RedisStore, error) {
	if o.Addr == "" {
		return nil, errors.New("kv: redis address is required")
	}
	return NewRedis(redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})), nil
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return b, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("kv: setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisStore) CompareAndSet(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	n, err := compareAndSet.Run(ctx, r.client, []string{key}, old, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("kv: compare and set %s: %w", key, err)
	}
	return n == 1, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv: del %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
