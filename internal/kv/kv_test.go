package kv

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/collector/internal/config"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { s.Close() })
	return mr, s
}

func newBadger(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	_, r := newMiniredis(t)
	return map[string]Store{
		Redis:  r,
		Badger: newBadger(t),
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
			v, err := s.Get(ctx, "a")
			require.NoError(t, err)
			require.Equal(t, []byte("1"), v)

			ok, err := s.SetIfAbsent(ctx, "a", []byte("2"), time.Minute)
			require.NoError(t, err)
			require.False(t, ok)
			ok, err = s.SetIfAbsent(ctx, "b", []byte("2"), time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = s.CompareAndSet(ctx, "a", []byte("0"), []byte("3"), time.Minute)
			require.NoError(t, err)
			require.False(t, ok, "stale old value")
			ok, err = s.CompareAndSet(ctx, "a", []byte("1"), []byte("3"), time.Minute)
			require.NoError(t, err)
			require.True(t, ok)
			v, err = s.Get(ctx, "a")
			require.NoError(t, err)
			require.Equal(t, []byte("3"), v)

			ok, err = s.CompareAndSet(ctx, "missing", []byte("1"), []byte("3"), time.Minute)
			require.NoError(t, err)
			require.False(t, ok, "absent keys never match")

			require.NoError(t, s.Delete(ctx, "a"))
			_, err = s.Get(ctx, "a")
			require.ErrorIs(t, err, ErrNotFound)
			require.NoError(t, s.Delete(ctx, "a"), "deleting absent keys")
			ok, err = s.SetIfAbsent(ctx, "a", []byte("4"), time.Minute)
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestSetIfAbsentExactlyOnce(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var won atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.SetIfAbsent(ctx, "once", []byte("x"), time.Minute)
					if err == nil && ok {
						won.Add(1)
					}
				}()
			}
			wg.Wait()
			require.Equal(t, int32(1), won.Load())
		})
	}
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	mr, s := newMiniredis(t)
	ok, err := s.SetIfAbsent(ctx, "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.CompareAndSet(ctx, "k", []byte("v"), []byte("w"), 2*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2*time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
	ok, err = s.SetIfAbsent(ctx, "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisUnavailable(t *testing.T) {
	mr, s := newMiniredis(t)
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.SetIfAbsent(ctx, "k", []byte("v"), time.Minute)
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	s, err := Open(config.KV{Backend: Badger})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(config.KV{Backend: "memcached"})
	require.Error(t, err)

	_, err = Open(config.KV{Backend: Redis})
	require.Error(t, err)
}
