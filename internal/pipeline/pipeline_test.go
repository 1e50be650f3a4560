package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/collector/internal/batch"
	"github.com/vinceanalytics/collector/internal/dedup"
	"github.com/vinceanalytics/collector/internal/entry"
	"github.com/vinceanalytics/collector/internal/geoip"
	"github.com/vinceanalytics/collector/internal/kv"
	"github.com/vinceanalytics/collector/internal/session"
	"github.com/vinceanalytics/collector/internal/userid"
	"github.com/vinceanalytics/collector/internal/visitor"
)

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type memWriter struct {
	mu     sync.Mutex
	events []entry.EnrichedEvent
	err    error
}

func (m *memWriter) Append(e *entry.EnrichedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, *e)
	return nil
}

type memMeter map[string]int

func (m memMeter) Record(site string) { m[site]++ }

func newPipeline(t *testing.T, w Writer, meter Meter) *Pipeline {
	t.Helper()
	p, _ := newPipelineWithRedis(t, w, meter)
	return p
}

func newPipelineWithRedis(t *testing.T, w Writer, meter Meter) (*Pipeline, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kv.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { store.Close() })
	r, err := visitor.New(geoip.Noop{}, visitor.Options{})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	p := New(r,
		session.New(store, userid.New([]byte("secret"), 24*time.Hour), session.Options{Timeout: 2 * time.Second}),
		dedup.New(store, dedup.Options{Timeout: 2 * time.Second}),
		w, meter, Options{Deadline: time.Second},
	)
	p.now = func() time.Time { return base.Add(time.Second) }
	return p, mr
}

func pageView(ts, received time.Time) *entry.RawEvent {
	return &entry.RawEvent{
		ID:         uuid.New(),
		Name:       "page_view",
		SiteID:     "abc",
		Timestamp:  ts,
		ReceivedAt: received,
		IP:         "1.2.3.4",
		UserAgent:  desktopUA,
		Page:       "https://example.com/home",
		Enrich:     true,
	}
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	w := &memWriter{}
	meter := memMeter{}
	p := newPipeline(t, w, meter)

	o, err := p.Process(ctx, pageView(base, base))
	require.NoError(t, err)
	require.Equal(t, Accepted, o)
	require.Len(t, w.events, 1)
	first := w.events[0]
	require.Equal(t, "desktop", first.Context.Device)
	require.Equal(t, entry.Human, first.Class)
	require.True(t, first.NewSession)
	require.Equal(t, "/home", first.Page)
	require.Equal(t, "example.com", first.Host)

	o, err = p.Process(ctx, pageView(base, base.Add(5*time.Second)))
	require.NoError(t, err)
	require.Equal(t, Duplicate, o)
	require.Len(t, w.events, 1)

	next := pageView(base.Add(5*time.Second), base.Add(5*time.Second))
	next.Name = "signup"
	o, err = p.Process(ctx, next)
	require.NoError(t, err)
	require.Equal(t, Accepted, o)
	require.Len(t, w.events, 2)
	require.Equal(t, first.Session, w.events[1].Session)
	require.False(t, w.events[1].NewSession)

	require.Equal(t, 2, meter["abc"])
}

func TestRejections(t *testing.T) {
	ctx := context.Background()
	w := &memWriter{}
	meter := memMeter{}
	p := newPipeline(t, w, meter)

	bot := pageView(base, base)
	bot.UserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	o, err := p.Process(ctx, bot)
	require.NoError(t, err)
	require.Equal(t, Bot, o)

	headless := pageView(base, base)
	headless.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36"
	o, err = p.Process(ctx, headless)
	require.NoError(t, err)
	require.Equal(t, Bot, o)

	missing := pageView(time.Time{}, base)
	o, err = p.Process(ctx, missing)
	require.NoError(t, err)
	require.Equal(t, Invalid, o)

	future := pageView(base.Add(time.Hour), base)
	o, err = p.Process(ctx, future)
	require.NoError(t, err)
	require.Equal(t, Invalid, o)

	require.Empty(t, w.events)
	require.Empty(t, meter)
}

func TestBackpressure(t *testing.T) {
	w := &memWriter{err: batch.ErrBackpressure}
	meter := memMeter{}
	p := newPipeline(t, w, meter)
	o, err := p.Process(context.Background(), pageView(base, base))
	require.ErrorIs(t, err, batch.ErrBackpressure)
	require.Equal(t, Backpressure, o)
	require.Empty(t, meter)
}

func TestRetryAfterBackpressure(t *testing.T) {
	ctx := context.Background()
	w := &memWriter{err: batch.ErrBackpressure}
	meter := memMeter{}
	p, mr := newPipelineWithRedis(t, w, meter)

	o, err := p.Process(ctx, pageView(base, base))
	require.ErrorIs(t, err, batch.ErrBackpressure)
	require.Equal(t, Backpressure, o)
	require.Empty(t, mr.Keys(), "refused events leave no state behind")

	w.err = nil
	o, err = p.Process(ctx, pageView(base, base.Add(time.Second)))
	require.NoError(t, err)
	require.Equal(t, Accepted, o)
	require.Len(t, w.events, 1)
	require.True(t, w.events[0].NewSession)
	require.Equal(t, 1, meter["abc"])

	o, err = p.Process(ctx, pageView(base, base.Add(2*time.Second)))
	require.NoError(t, err)
	require.Equal(t, Duplicate, o)
	require.Len(t, w.events, 1)
}

func TestClosedWriterReleasesDedupKey(t *testing.T) {
	ctx := context.Background()
	w := &memWriter{}
	p := newPipeline(t, w, memMeter{})

	first := pageView(base, base)
	first.Name = "open"
	o, err := p.Process(ctx, first)
	require.NoError(t, err)
	require.Equal(t, Accepted, o)

	w.err = batch.ErrClosed
	o, err = p.Process(ctx, pageView(base, base))
	require.ErrorIs(t, err, batch.ErrClosed)
	require.Equal(t, Backpressure, o)

	w.err = nil
	o, err = p.Process(ctx, pageView(base, base))
	require.NoError(t, err)
	require.Equal(t, Accepted, o)
	require.Len(t, w.events, 2)
	require.False(t, w.events[1].NewSession, "continuing sessions are kept")
	require.Equal(t, w.events[0].Session, w.events[1].Session)
}

func TestInvalidTimestampTouchesNoSession(t *testing.T) {
	p, mr := newPipelineWithRedis(t, &memWriter{}, memMeter{})
	o, err := p.Process(context.Background(), pageView(time.Time{}, base))
	require.NoError(t, err)
	require.Equal(t, Invalid, o)
	require.Empty(t, mr.Keys())
}

func TestEnrichmentDisabled(t *testing.T) {
	w := &memWriter{}
	p := newPipeline(t, w, memMeter{})
	e := pageView(base, base)
	e.Enrich = false
	e.Referrer = "https://news.ycombinator.com/item?id=1"
	o, err := p.Process(context.Background(), e)
	require.NoError(t, err)
	require.Equal(t, Accepted, o)
	got := w.events[0]
	require.Equal(t, entry.Unknown, got.Context.Device)
	require.Equal(t, entry.Unknown, got.Context.Browser)
	require.Equal(t, "Hacker News", got.Context.ReferrerSource)
	require.NotEmpty(t, got.Session)
}
