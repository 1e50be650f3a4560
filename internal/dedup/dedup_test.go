package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/collector/internal/kv"
)

var ts = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newDedup(t *testing.T) (*miniredis.Miniredis, *Deduplicator) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kv.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { store.Close() })
	return mr, New(store, Options{Window: time.Minute, Timeout: time.Second})
}

func TestNewKey(t *testing.T) {
	props := map[string]any{"plan": "pro", "nested": map[string]any{"b": 1, "a": []any{"x"}}}
	same := map[string]any{"nested": map[string]any{"a": []any{"x"}, "b": 1}, "plan": "pro"}
	k := NewKey("abc", "fp", "signup", ts, time.Second, props)

	require.Equal(t, k, NewKey("abc", "fp", "signup", ts.Add(999*time.Millisecond), time.Second, same))
	require.NotEqual(t, k, NewKey("abc", "fp", "signup", ts.Add(time.Second), time.Second, props))
	require.NotEqual(t, k, NewKey("abc", "fp", "signup", ts, time.Second, map[string]any{"plan": "free"}))
	require.NotEqual(t, k, NewKey("abc", "fp2", "signup", ts, time.Second, props))
	require.NotEqual(t, k, NewKey("abc", "fp", "page_view", ts, time.Second, props))
	require.Equal(t,
		NewKey("abc", "fp", "signup", ts, time.Minute, nil),
		NewKey("abc", "fp", "signup", ts.Add(30*time.Second), time.Minute, map[string]any{}))
}

func TestAdmit(t *testing.T) {
	mr, d := newDedup(t)
	ctx := context.Background()
	k := NewKey("abc", "fp", "page_view", ts, time.Second, nil)
	require.True(t, d.Admit(ctx, k))
	require.False(t, d.Admit(ctx, k))
	require.True(t, d.Admit(ctx, NewKey("abc", "fp", "page_view", ts.Add(time.Second), time.Second, nil)))

	mr.FastForward(30 * time.Second)
	require.False(t, d.Admit(ctx, k))
	mr.FastForward(31 * time.Second)
	require.True(t, d.Admit(ctx, k))
}

func TestForget(t *testing.T) {
	_, d := newDedup(t)
	ctx := context.Background()
	k := NewKey("abc", "fp", "page_view", ts, time.Second, nil)
	require.True(t, d.Admit(ctx, k))
	d.Forget(ctx, k)
	require.True(t, d.Admit(ctx, k), "forgotten keys are admitted again")
	require.False(t, d.Admit(ctx, k))
	d.Forget(ctx, NewKey("abc", "fp", "missing", ts, time.Second, nil))
}

func TestAdmitExactlyOnce(t *testing.T) {
	_, d := newDedup(t)
	ctx := context.Background()
	k := NewKey("abc", "fp", "page_view", ts, time.Second, nil)
	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Admit(ctx, k) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), admitted.Load())
}

func TestAdmitFailsOpen(t *testing.T) {
	mr, d := newDedup(t)
	mr.Close()
	k := NewKey("abc", "fp", "page_view", ts, time.Second, nil)
	require.True(t, d.Admit(context.Background(), k))
	require.True(t, d.Admit(context.Background(), k))
}

func TestBadger(t *testing.T) {
	store, err := kv.OpenBadger("")
	require.NoError(t, err)
	defer store.Close()
	d := New(store, Options{})
	k := NewKey("abc", "fp", "page_view", ts, time.Second, nil)
	require.True(t, d.Admit(context.Background(), k))
	require.False(t, d.Admit(context.Background(), k))
}
