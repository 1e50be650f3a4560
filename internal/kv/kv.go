// Package kv is the shared key value capability used for session state and
// dedup keys. Every mutation is a single key atomic operation.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vinceanalytics/collector/internal/config"
)

var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	// Get returns ErrNotFound when key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetIfAbsent stores value only when key is absent. It reports whether
	// value was stored.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// CompareAndSet replaces the value of key with value only when the
	// current value equals old. Absent keys never match.
	CompareAndSet(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	Redis  = "redis"
	Badger = "badger"
)

func Open(o config.KV) (Store, error) {
	switch o.Backend {
	case Redis:
		return OpenRedis(o.Redis)
	case Badger, "":
		return OpenBadger(o.Path)
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", o.Backend)
	}
}
