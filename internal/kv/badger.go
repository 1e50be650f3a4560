package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// conflict retries for optimistic transactions
const maxConflicts = 16

// BadgerStore is the single node Store. Expiry has second resolution.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens the store at path. An empty path keeps everything in
// memory.
func OpenBadger(path string) (*BadgerStore, error) {
	o := badger.DefaultOptions(path).
		WithLogger(badgerLogger{log: slog.Default().With("component", "badger")})
	if path == "" {
		o = o.WithInMemory(true)
	}
	db, err := badger.Open(o)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Get(ctx context.Context, key string) (o []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err = b.db.View(func(txn *badger.Txn) error {
		o, err = get(txn, key)
		return err
	})
	return
}

func (b *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry(key, value, ttl))
	})
}

func (b *BadgerStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error) {
	err = b.update(ctx, func(txn *badger.Txn) error {
		ok = false
		_, err := get(txn, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		ok = true
		return txn.SetEntry(entry(key, value, ttl))
	})
	return ok && err == nil, err
}

func (b *BadgerStore) CompareAndSet(ctx context.Context, key string, old, value []byte, ttl time.Duration) (ok bool, err error) {
	err = b.update(ctx, func(txn *badger.Txn) error {
		ok = false
		current, err := get(txn, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if !bytes.Equal(current, old) {
			return nil
		}
		ok = true
		return txn.SetEntry(entry(key, value, ttl))
	})
	return ok && err == nil, err
}

func (b *BadgerStore) Delete(ctx context.Context, key string) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

// update runs f in a read-write transaction, retrying when a concurrent
// transaction committed a conflicting write first.
func (b *BadgerStore) update(ctx context.Context, f func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflicts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.db.Update(f)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return badger.ErrConflict
}

func get(txn *badger.Txn, key string) ([]byte, error) {
	it, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return it.ValueCopy(nil)
}

func entry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

var _ badger.Logger = (*badgerLogger)(nil)

type badgerLogger struct {
	log *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.log.Error(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.log.Warn(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.log.Debug(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.log.Debug(fmt.Sprintf(format, args...))
}
