// Package session reconstructs sessions without cookies. A visitor is keyed
// by a fingerprint derived from a rotating salt and the session state lives
// in the shared store with the inactivity window as its expiry.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/vinceanalytics/collector/internal/entry"
	"github.com/vinceanalytics/collector/internal/kv"
	"github.com/vinceanalytics/collector/internal/metrics"
	"github.com/vinceanalytics/collector/internal/userid"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultWindow  = 30 * time.Minute
	DefaultTimeout = 50 * time.Millisecond

	// compare and set attempts before giving up on refreshing last seen
	maxSwaps = 3
)

type Options struct {
	// Window is the inactivity window.
	Window time.Duration
	// Timeout bounds the whole identification against the store.
	Timeout    time.Duration
	IPv4Prefix int
	IPv6Prefix int
}

type Engine struct {
	store kv.Store
	salts *userid.Salts
	o     Options
	log   *slog.Logger
}

func New(store kv.Store, salts *userid.Salts, o Options) *Engine {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.IPv4Prefix <= 0 {
		o.IPv4Prefix = userid.DefaultV4Prefix
	}
	if o.IPv6Prefix <= 0 {
		o.IPv6Prefix = userid.DefaultV6Prefix
	}
	return &Engine{
		store: store,
		salts: salts,
		o:     o,
		log:   slog.Default().With("component", "session"),
	}
}

// Fingerprint returns the fingerprint of the visitor under the salt in effect
// at ts.
func (e *Engine) Fingerprint(siteID, ip, userAgent string, ts time.Time) string {
	return userid.Fingerprint(e.salts.At(ts), siteID, e.prefix(ip), userAgent)
}

func (e *Engine) previous(siteID, ip, userAgent string, ts time.Time) string {
	return userid.Fingerprint(e.salts.Previous(ts), siteID, e.prefix(ip), userAgent)
}

func (e *Engine) prefix(ip string) string {
	return userid.Prefix(ip, e.o.IPv4Prefix, e.o.IPv6Prefix)
}

// Identify returns the session fingerprint of the visitor and whether ts
// starts a new session. Store failures and timeouts are treated as a new
// session.
//
// Identity only depends on (site, ip prefix, user agent) so that it stays
// stable when enrichment of vc degrades.
func (e *Engine) Identify(ctx context.Context, siteID string, vc entry.VisitorContext, ip, userAgent string, ts time.Time) (fingerprint string, isNew bool) {
	return e.IdentifyPage(ctx, siteID, vc, ip, userAgent, "", ts)
}

// IdentifyPage is Identify recording page as the entry page of new sessions.
func (e *Engine) IdentifyPage(ctx context.Context, siteID string, vc entry.VisitorContext, ip, userAgent, page string, ts time.Time) (fingerprint string, isNew bool) {
	fingerprint = e.Fingerprint(siteID, ip, userAgent, ts)
	ctx, cancel := context.WithTimeout(ctx, e.o.Timeout)
	defer cancel()
	id, isNew, err := e.identify(ctx, &visit{
		site:        siteID,
		fingerprint: fingerprint,
		ip:          ip,
		userAgent:   userAgent,
		page:        page,
		ts:          ts,
	})
	if err != nil {
		e.log.Debug("session store unavailable, treating as new", "site", siteID, "err", err)
		metrics.StoreFailOpen.WithLabelValues("session").Inc()
		return fingerprint, true
	}
	return id, isNew
}

// Forget removes the session that a refused event opened at ts, so that the
// retried event opens it again. Only call it when Identify reported a new
// session.
func (e *Engine) Forget(ctx context.Context, siteID, ip, userAgent string, ts time.Time) {
	ctx, cancel := context.WithTimeout(ctx, e.o.Timeout)
	defer cancel()
	if err := e.store.Delete(ctx, Key(siteID, e.Fingerprint(siteID, ip, userAgent, ts))); err != nil {
		e.log.Warn("failed to release session", "site", siteID, "err", err)
	}
}

type visit struct {
	site, fingerprint, ip, userAgent, page string
	ts                                     time.Time
}

func (v *visit) fresh() *entry.Session {
	return &entry.Session{
		Fingerprint: v.fingerprint,
		SiteID:      v.site,
		Created:     v.ts,
		LastSeen:    v.ts,
		EntryPage:   v.page,
	}
}

// identify returns the session id, which is the fingerprint the session
// started with. It differs from v.fingerprint only for sessions that were
// active across a salt rotation.
func (e *Engine) identify(ctx context.Context, v *visit) (string, bool, error) {
	key := Key(v.site, v.fingerprint)
	old, cur, err := e.get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		rec := v.fresh()
		// The salt may have rotated in the middle of the session. Carry the
		// session over to the new fingerprint.
		carried, ok := e.carry(ctx, v)
		if ok {
			rec = carried
			rec.LastSeen = later(carried.LastSeen, v.ts)
		}
		stored, err := e.store.SetIfAbsent(ctx, key, encode(rec), e.o.Window)
		if err != nil {
			return "", false, err
		}
		if stored {
			return rec.Fingerprint, !ok, nil
		}
		// Lost the race against a concurrent first event, continue with the
		// canonical record.
		old, cur, err = e.get(ctx, key)
	}
	for i := 0; i < maxSwaps; i++ {
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				// expired between calls
				return v.fingerprint, true, nil
			}
			return "", false, err
		}
		next := *cur
		isNew := false
		if v.ts.Sub(cur.LastSeen) > e.o.Window {
			isNew = true
			next = *v.fresh()
		} else {
			// last seen only moves forward
			next.LastSeen = later(cur.LastSeen, v.ts)
		}
		ok, err := e.store.CompareAndSet(ctx, key, old, encode(&next), e.o.Window)
		if err != nil {
			return "", false, err
		}
		if ok {
			return id(&next, v), isNew, nil
		}
		old, cur, err = e.get(ctx, key)
	}
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return v.fingerprint, true, nil
		}
		return "", false, err
	}
	// Persistent contention on the same visitor. The record exists and is
	// being refreshed by other events so this one continues the session.
	return id(cur, v), false, nil
}

func id(s *entry.Session, v *visit) string {
	if s.Fingerprint == "" {
		return v.fingerprint
	}
	return s.Fingerprint
}

// carry returns the session recorded under the previous salt when it is
// still within the inactivity window at ts.
func (e *Engine) carry(ctx context.Context, v *visit) (*entry.Session, bool) {
	if v.ts.Sub(e.salts.EffectiveFrom(v.ts)) > e.o.Window {
		return nil, false
	}
	_, rec, err := e.get(ctx, Key(v.site, e.previous(v.site, v.ip, v.userAgent, v.ts)))
	if err != nil {
		return nil, false
	}
	if v.ts.Sub(rec.LastSeen) > e.o.Window {
		return nil, false
	}
	return rec, true
}

func (e *Engine) get(ctx context.Context, key string) ([]byte, *entry.Session, error) {
	b, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	var s entry.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, nil, err
	}
	return b, &s, nil
}

// Key is the store key of a session.
func Key(siteID, fingerprint string) string {
	return "s:" + siteID + ":" + fingerprint
}

func encode(s *entry.Session) []byte {
	b, _ := json.Marshal(s)
	return b
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
