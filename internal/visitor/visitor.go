// Package visitor derives the visitor context of a request. Resolution never
// fails: every enrichment family degrades to unknown on its own.
package visitor

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/vinceanalytics/collector/internal/entry"
	"github.com/vinceanalytics/collector/internal/geoip"
	"github.com/vinceanalytics/collector/internal/metrics"
	"github.com/vinceanalytics/collector/internal/referrer"
	"github.com/vinceanalytics/collector/internal/ua"
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultEntries = 1 << 16
)

type Options struct {
	// TTL bounds how long a resolved (ip, user agent, referrer) triple is
	// reused.
	TTL time.Duration
	// Entries is the maximum number of cached triples.
	Entries int64
}

// resolved is the cached part of a visitor context. Page dependent fields
// are computed on every call.
type resolved struct {
	geo      geoip.Info
	agent    ua.Agent
	ref      referrer.Ref
	degraded entry.Families
}

type Resolver struct {
	geo   geoip.Locator
	cache *ristretto.Cache
	ttl   time.Duration
	log   *slog.Logger
}

func New(geo geoip.Locator, o Options) (*Resolver, error) {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Entries <= 0 {
		o.Entries = DefaultEntries
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: o.Entries * 10,
		MaxCost:     o.Entries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	if geo == nil {
		geo = geoip.Noop{}
	}
	return &Resolver{
		geo:   geo,
		cache: cache,
		ttl:   o.TTL,
		log:   slog.Default().With("component", "visitor"),
	}, nil
}

// Resolve returns the visitor context for the request attributes. When ctx
// is done before a family is resolved that family is left unknown.
func (r *Resolver) Resolve(ctx context.Context, ip, userAgent, ref, page string) entry.VisitorContext {
	return r.resolve(ctx, ip, userAgent, ref, page, true)
}

// ResolveEvent resolves the context of e. Sites that are not allowed
// enrichment only get referrer resolution. The screen width is used as a
// device hint when the user agent has none.
func (r *Resolver) ResolveEvent(ctx context.Context, e *entry.RawEvent) entry.VisitorContext {
	vc := r.resolve(ctx, e.IP, e.UserAgent, e.Referrer, e.Page, e.Enrich)
	if e.Enrich && vc.Device == entry.Unknown {
		if d := screenDevice(e.ScreenWidth); d != "" {
			vc.Device = d
		}
	}
	return vc
}

func (r *Resolver) Close() {
	r.cache.Close()
}

func (r *Resolver) resolve(ctx context.Context, ip, userAgent, ref, page string, enrich bool) entry.VisitorContext {
	var x resolved
	if enrich {
		key := cacheKey(ip, userAgent, ref)
		if v, ok := r.cache.Get(key); ok {
			x = v.(resolved)
		} else {
			start := time.Now()
			var complete bool
			x, complete = r.lookup(ctx, ip, userAgent, ref)
			metrics.ResolveDuration.Observe(time.Since(start).Seconds())
			if complete {
				r.cache.SetWithTTL(key, x, 1, r.ttl)
			}
		}
	} else {
		x = resolved{
			geo:      unknownGeo(),
			agent:    unknownAgent(),
			degraded: entry.Geo | entry.Agent,
		}
		x.ref, x.degraded = r.referrer(ctx, ref, x.degraded)
	}
	vc := build(x, page)
	for _, f := range vc.Degraded.Names() {
		metrics.EnrichmentDegraded.WithLabelValues(f).Inc()
	}
	return vc
}

// lookup resolves every family. complete is false when ctx expired before
// all families were attempted, such results are not cached.
func (r *Resolver) lookup(ctx context.Context, ip, userAgent, ref string) (x resolved, complete bool) {
	x.geo = unknownGeo()
	x.agent = unknownAgent()
	x.ref = unknownRef()
	x.degraded = entry.Geo | entry.Agent | entry.Referrer
	if ctx.Err() != nil {
		return x, false
	}
	if g, err := r.geo.Lookup(net.ParseIP(ip)); err == nil {
		x.geo = orUnknownGeo(g)
		x.degraded &^= entry.Geo
	} else {
		r.log.Debug("geo lookup failed", "err", err)
	}

	if ctx.Err() != nil {
		return x, false
	}
	a := ua.Get(userAgent)
	x.agent = a
	if a.Bot || a.Browser != entry.Unknown || a.OS != entry.Unknown {
		x.degraded &^= entry.Agent
	}

	if ctx.Err() != nil {
		return x, false
	}
	x.ref, x.degraded = r.referrer(ctx, ref, x.degraded)
	return x, true
}

func (r *Resolver) referrer(ctx context.Context, ref string, degraded entry.Families) (referrer.Ref, entry.Families) {
	if ctx.Err() != nil {
		return unknownRef(), degraded | entry.Referrer
	}
	o, err := referrer.Parse(ref)
	if err != nil {
		r.log.Debug("invalid referrer", "referrer", ref, "err", err)
		return unknownRef(), degraded | entry.Referrer
	}
	return o, degraded &^ entry.Referrer
}

func build(x resolved, page string) entry.VisitorContext {
	vc := entry.VisitorContext{
		Country:        x.geo.Country,
		Region:         x.geo.Region,
		City:           x.geo.City,
		Browser:        x.agent.Browser,
		BrowserVersion: x.agent.BrowserVersion,
		OS:             x.agent.OS,
		OSVersion:      x.agent.OSVersion,
		Device:         x.agent.Device,
		Bot:            x.agent.Bot,
		Headless:       x.agent.Headless,
		Degraded:       x.degraded,
	}
	_, host := entry.Path(page, false)
	if host == "" {
		vc.Host, vc.Domain = entry.Unknown, entry.Unknown
	} else {
		vc.Host, vc.Domain = host, referrer.Domain(host)
	}
	if x.degraded.Has(entry.Referrer) {
		vc.ReferrerDomain = entry.Unknown
		vc.ReferrerSource = entry.Unknown
		return vc
	}
	info := x.ref.Info(page)
	vc.ReferrerDomain = info.Domain
	vc.ReferrerSource = info.Source
	vc.SameSite = info.SameSite
	return vc
}

func cacheKey(ip, userAgent, ref string) uint64 {
	h := xxhash.New()
	h.WriteString(ip)
	h.Write([]byte{0})
	h.WriteString(userAgent)
	h.Write([]byte{0})
	h.WriteString(ref)
	return h.Sum64()
}

func screenDevice(width int) string {
	switch entry.Screen(width) {
	case "mobile":
		return ua.Mobile
	case "tablet":
		return ua.Tablet
	case "laptop", "desktop":
		return ua.Desktop
	default:
		return ""
	}
}

func unknownGeo() geoip.Info {
	return geoip.Info{Country: entry.Unknown, Region: entry.Unknown, City: entry.Unknown}
}

func orUnknownGeo(g geoip.Info) geoip.Info {
	if g.Region == "" {
		g.Region = entry.Unknown
	}
	if g.City == "" {
		g.City = entry.Unknown
	}
	return g
}

func unknownAgent() ua.Agent {
	return ua.Agent{
		Browser: entry.Unknown, BrowserVersion: entry.Unknown,
		OS: entry.Unknown, OSVersion: entry.Unknown, Device: entry.Unknown,
	}
}

func unknownRef() referrer.Ref {
	return referrer.Ref{Host: entry.Unknown, Domain: entry.Unknown, Source: entry.Unknown}
}
