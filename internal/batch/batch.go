// Package batch buffers enriched events and flushes them to storage on size
// or age, whichever comes first. Accumulation never waits for storage.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vinceanalytics/collector/internal/entry"
	verrors "github.com/vinceanalytics/collector/internal/errors"
	"github.com/vinceanalytics/collector/internal/metrics"
	"golang.org/x/sync/semaphore"
)

var (
	ErrBackpressure = errors.New("batch: too many pending batches")
	ErrClosed       = errors.New("batch: writer is closed")
)

// Inserter is the columnar store.
type Inserter interface {
	Insert(ctx context.Context, events []*entry.EnrichedEvent) error
}

// DeadLetter receives batches that exhausted their flush attempts.
type DeadLetter interface {
	Write(ctx context.Context, events []*entry.EnrichedEvent, cause error) error
}

type Retry struct {
	Initial time.Duration
	Max     time.Duration
	// MaxAttempts counts the first attempt.
	MaxAttempts int
}

type Options struct {
	MaxSize int
	MaxAge  time.Duration
	// MaxInFlight is the number of batches, the accumulating one included,
	// that may exist before Append rejects events that need a new batch.
	MaxInFlight  int
	FlushTimeout time.Duration
	Retry        Retry
}

func DefaultOptions() Options {
	return Options{
		MaxSize:      1000,
		MaxAge:       5 * time.Second,
		MaxInFlight:  8,
		FlushTimeout: 10 * time.Second,
		Retry: Retry{
			Initial:     200 * time.Millisecond,
			Max:         5 * time.Second,
			MaxAttempts: 5,
		},
	}
}

type Writer struct {
	o     Options
	store Inserter
	dead  DeadLetter

	mu     sync.Mutex
	active []*entry.EnrichedEvent
	timer  *time.Timer
	// gen identifies the active batch so a stale age timer is ignored.
	gen    uint64
	closed bool

	// slots bounds the active batch and sealed batches.
	slots  *semaphore.Weighted
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

func New(store Inserter, dead DeadLetter, o Options) *Writer {
	d := DefaultOptions()
	if o.MaxSize <= 0 {
		o.MaxSize = d.MaxSize
	}
	if o.MaxAge <= 0 {
		o.MaxAge = d.MaxAge
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = d.MaxInFlight
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = d.FlushTimeout
	}
	if o.Retry.Initial <= 0 {
		o.Retry.Initial = d.Retry.Initial
	}
	if o.Retry.Max < o.Retry.Initial {
		o.Retry.Max = o.Retry.Initial
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Writer{
		o:      o,
		store:  store,
		dead:   dead,
		slots:  semaphore.NewWeighted(int64(o.MaxInFlight)),
		ctx:    ctx,
		cancel: cancel,
		log:    slog.Default().With("component", "batch"),
	}
}

// Append adds e to the active batch. It never blocks on storage: when the
// ceiling of pending batches is reached it returns ErrBackpressure. The writer
// owns e once Append returns nil.
func (w *Writer) Append(e *entry.EnrichedEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if len(w.active) == 0 {
		if !w.slots.TryAcquire(1) {
			return ErrBackpressure
		}
		gen := w.gen
		w.timer = time.AfterFunc(w.o.MaxAge, func() { w.expire(gen) })
	}
	w.active = append(w.active, e)
	if len(w.active) >= w.o.MaxSize {
		w.seal()
	}
	return nil
}

// Flush seals the active batch without waiting for it to be stored.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if len(w.active) > 0 {
		w.seal()
	}
	return ctx.Err()
}

// Close seals the active batch and waits for every flush to finish. When ctx
// expires first pending flushes stop retrying and go to the dead letter.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if len(w.active) > 0 {
		w.seal()
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return ctx.Err()
	}
}

func (w *Writer) expire(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen || len(w.active) == 0 {
		return
	}
	w.seal()
}

// seal hands the active batch to a flush goroutine. The slot acquired by the
// batch is released once the flush completes. w.mu must be held.
func (w *Writer) seal() {
	b := w.active
	w.active = nil
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	metrics.BatchSize.Observe(float64(len(b)))
	metrics.InFlight.Inc()
	w.wg.Add(1)
	go w.flush(b)
}

func (w *Writer) flush(b []*entry.EnrichedEvent) {
	defer func() {
		for _, e := range b {
			e.Release()
		}
		metrics.InFlight.Dec()
		w.slots.Release(1)
		w.wg.Done()
	}()
	start := time.Now()
	var last error
	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(w.ctx, w.o.FlushTimeout)
		defer cancel()
		err := w.store.Insert(ctx, b)
		if err == nil {
			return nil
		}
		last = err
		if verrors.KindOf(err) == verrors.KindStorageFatal {
			return backoff.Permanent(err)
		}
		metrics.Flushes.WithLabelValues(metrics.FlushRetry).Inc()
		w.log.Debug("flush failed", "events", len(b), "err", err)
		return err
	}, w.policy())
	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.Flushes.WithLabelValues(metrics.FlushOK).Inc()
		return
	}
	if last == nil {
		last = err
	}
	metrics.Flushes.WithLabelValues(metrics.FlushDead).Inc()
	cause := verrors.StorageFatal("flush attempts exhausted", last)
	if w.dead == nil {
		w.log.Error("dropping batch", "events", len(b), "err", cause)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.o.FlushTimeout)
	defer cancel()
	if err := w.dead.Write(ctx, b, cause); err != nil {
		w.log.Error("failed writing dead letter, dropping batch", "events", len(b), "err", err, "cause", cause)
	}
}

func (w *Writer) policy() backoff.BackOff {
	e := backoff.NewExponentialBackOff()
	e.InitialInterval = w.o.Retry.Initial
	e.MaxInterval = w.o.Retry.Max
	e.MaxElapsedTime = 0
	e.Reset()
	return backoff.WithContext(
		backoff.WithMaxRetries(e, uint64(w.o.Retry.MaxAttempts-1)),
		w.ctx,
	)
}
