// Package dedup suppresses repeated deliveries of the same event.
package dedup

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/vinceanalytics/collector/internal/kv"
	"github.com/vinceanalytics/collector/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultWindow      = 10 * time.Minute
	DefaultGranularity = time.Second
	DefaultTimeout     = 50 * time.Millisecond
)

// Key identifies a logical event. It is only used for existence checks.
type Key string

// NewKey derives the key of an event. ts is truncated to granularity and
// properties are reduced to a content hash.
func NewKey(siteID, fingerprint, name string, ts time.Time, granularity time.Duration, props map[string]any) Key {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	bucket := ts.UnixNano() / int64(granularity)
	return Key(siteID + ":" + fingerprint + ":" + name + ":" +
		strconv.FormatInt(bucket, 36) + ":" +
		strconv.FormatUint(ContentHash(props), 36))
}

// ContentHash is xxhash of the canonical json of props. encoding/json sorts
// map keys at every level so equal mappings hash equally.
func ContentHash(props map[string]any) uint64 {
	if len(props) == 0 {
		return 0
	}
	b, err := json.Marshal(props)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}

type Options struct {
	Window  time.Duration
	Timeout time.Duration
}

type Deduplicator struct {
	store kv.Store
	o     Options
	log   *slog.Logger
}

func New(store kv.Store, o Options) *Deduplicator {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return &Deduplicator{
		store: store,
		o:     o,
		log:   slog.Default().With("component", "dedup"),
	}
}

var seen = []byte{1}

// Admit reports whether k is seen for the first time within the window. Of
// concurrent callers with the same key exactly one is admitted. Store
// failures admit the event.
func (d *Deduplicator) Admit(ctx context.Context, k Key) bool {
	ctx, cancel := context.WithTimeout(ctx, d.o.Timeout)
	defer cancel()
	ok, err := d.store.SetIfAbsent(ctx, "d:"+string(k), seen, d.o.Window)
	if err != nil {
		d.log.Debug("dedup store unavailable, admitting", "err", err)
		metrics.StoreFailOpen.WithLabelValues("dedup").Inc()
		return true
	}
	return ok
}

// Forget releases an admitted key so a retry of the same event is admitted
// again. It is used when the event was refused after admission.
func (d *Deduplicator) Forget(ctx context.Context, k Key) {
	ctx, cancel := context.WithTimeout(ctx, d.o.Timeout)
	defer cancel()
	if err := d.store.Delete(ctx, "d:"+string(k)); err != nil {
		d.log.Warn("failed to release dedup key", "err", err)
	}
}
