package visitor

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/collector/internal/entry"
	"github.com/vinceanalytics/collector/internal/geoip"
)

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type fakeGeo struct {
	calls atomic.Int32
}

func (f *fakeGeo) Lookup(ip net.IP) (geoip.Info, error) {
	f.calls.Add(1)
	if !geoip.Public(ip) {
		return geoip.Info{}, geoip.ErrUnresolvable
	}
	return geoip.Info{Country: "TZ", City: "Dar es Salaam"}, nil
}

func (*fakeGeo) Close() error { return nil }

func newResolver(t *testing.T, geo geoip.Locator) *Resolver {
	t.Helper()
	r, err := New(geo, Options{})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestResolve(t *testing.T) {
	r := newResolver(t, &fakeGeo{})
	vc := r.Resolve(context.Background(), "1.2.3.4", desktopUA,
		"https://www.google.com/search?q=vince", "https://www.example.com/home")
	require.Equal(t, entry.VisitorContext{
		Country:        "TZ",
		Region:         entry.Unknown,
		City:           "Dar es Salaam",
		Browser:        "Chrome",
		BrowserVersion: "120",
		OS:             "Windows",
		OSVersion:      "10",
		Device:         "desktop",
		Host:           "example.com",
		Domain:         "example.com",
		ReferrerDomain: "google.com",
		ReferrerSource: "Google",
	}, vc)
}

func TestFamiliesDegradeIndependently(t *testing.T) {
	t.Run("geo", func(t *testing.T) {
		r := newResolver(t, geoip.Noop{})
		vc := r.Resolve(context.Background(), "1.2.3.4", desktopUA, "", "/")
		require.Equal(t, entry.Geo, vc.Degraded)
		require.Equal(t, entry.Unknown, vc.Country)
		require.Equal(t, "Chrome", vc.Browser)
		require.Equal(t, "", vc.ReferrerDomain)
	})
	t.Run("private address", func(t *testing.T) {
		r := newResolver(t, &fakeGeo{})
		vc := r.Resolve(context.Background(), "10.0.0.1", desktopUA, "", "/")
		require.Equal(t, entry.Geo, vc.Degraded)
	})
	t.Run("agent", func(t *testing.T) {
		r := newResolver(t, &fakeGeo{})
		vc := r.Resolve(context.Background(), "1.2.3.4", "", "", "/")
		require.Equal(t, entry.Agent, vc.Degraded)
		require.Equal(t, "TZ", vc.Country)
		require.Equal(t, entry.Unknown, vc.Device)
	})
	t.Run("referrer", func(t *testing.T) {
		r := newResolver(t, &fakeGeo{})
		vc := r.Resolve(context.Background(), "1.2.3.4", desktopUA, "http://[::1", "/")
		require.Equal(t, entry.Referrer, vc.Degraded)
		require.Equal(t, entry.Unknown, vc.ReferrerDomain)
		require.Equal(t, "TZ", vc.Country)
		require.Equal(t, "Chrome", vc.Browser)
	})
}

func TestExpiredDeadline(t *testing.T) {
	geo := &fakeGeo{}
	r := newResolver(t, geo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	vc := r.Resolve(ctx, "1.2.3.4", desktopUA, "https://t.co/x", "/")
	require.Equal(t, entry.Geo|entry.Agent|entry.Referrer, vc.Degraded)
	require.Equal(t, entry.Unknown, vc.Browser)
	require.Equal(t, int32(0), geo.calls.Load())

	r.cache.Wait()
	vc = r.Resolve(context.Background(), "1.2.3.4", desktopUA, "https://t.co/x", "/")
	require.Zero(t, vc.Degraded)
	require.Equal(t, "Twitter", vc.ReferrerSource)
}

func TestCache(t *testing.T) {
	geo := &fakeGeo{}
	r := newResolver(t, geo)
	ctx := context.Background()
	a := r.Resolve(ctx, "1.2.3.4", desktopUA, "https://example.com/blog", "https://other.com/")
	r.cache.Wait()
	b := r.Resolve(ctx, "1.2.3.4", desktopUA, "https://example.com/blog", "https://example.com/")
	require.Equal(t, int32(1), geo.calls.Load())

	require.False(t, a.SameSite)
	require.Equal(t, "example.com", a.ReferrerSource)
	require.True(t, b.SameSite, "page dependent fields are not cached")
	require.Equal(t, "", b.ReferrerSource)
}

func TestResolveEvent(t *testing.T) {
	geo := &fakeGeo{}
	r := newResolver(t, geo)
	ctx := context.Background()
	t.Run("enrichment not allowed", func(t *testing.T) {
		vc := r.ResolveEvent(ctx, &entry.RawEvent{
			IP: "1.2.3.4", UserAgent: desktopUA, Referrer: "https://t.co/x",
			Page: "https://example.com/", ScreenWidth: 1920,
		})
		require.Equal(t, entry.Geo|entry.Agent, vc.Degraded)
		require.Equal(t, entry.Unknown, vc.Country)
		require.Equal(t, entry.Unknown, vc.Device)
		require.Equal(t, "Twitter", vc.ReferrerSource)
		require.Equal(t, int32(0), geo.calls.Load())
	})
	t.Run("screen hint", func(t *testing.T) {
		vc := r.ResolveEvent(ctx, &entry.RawEvent{
			IP: "1.2.3.4", UserAgent: "Mozilla/5.0 (Linux) Firefox/120.0",
			Page: "/", ScreenWidth: 390, Enrich: true,
		})
		require.Equal(t, "Firefox", vc.Browser)
		require.Equal(t, "mobile", vc.Device)
	})
}
