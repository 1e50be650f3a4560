// Package guard decides which events are worth storing.
package guard

import (
	"time"

	"github.com/vinceanalytics/collector/internal/entry"
	"github.com/vinceanalytics/collector/internal/ua"
)

const (
	DefaultRetention  = 30 * 24 * time.Hour
	DefaultFutureSkew = 5 * time.Minute
)

type Rules struct {
	// Retention is the oldest client timestamp accepted.
	Retention time.Duration
	// FutureSkew is how far ahead of the server clock a client timestamp may
	// be.
	FutureSkew time.Duration
}

func DefaultRules() Rules {
	return Rules{Retention: DefaultRetention, FutureSkew: DefaultFutureSkew}
}

// Classify applies the rules in order, the first match wins:
//
//  1. known bot signatures are bot
//  2. missing site id, event name or timestamp is invalid
//  3. timestamps beyond the future skew or older than retention are invalid
//  4. headless and automation signatures are bot
//  5. everything else is human
func (r Rules) Classify(e *entry.RawEvent, vc entry.VisitorContext, now time.Time) entry.Class {
	if vc.Bot || ua.IsBot(e.UserAgent) {
		return entry.Bot
	}
	if e.SiteID == "" || e.Name == "" || e.Timestamp.IsZero() {
		return entry.Invalid
	}
	if e.Timestamp.After(now.Add(r.FutureSkew)) || e.Timestamp.Before(now.Add(-r.Retention)) {
		return entry.Invalid
	}
	if vc.Headless || ua.IsHeadless(e.UserAgent) {
		return entry.Bot
	}
	return entry.Human
}

func Classify(e *entry.RawEvent, vc entry.VisitorContext, now time.Time) entry.Class {
	return DefaultRules().Classify(e, vc, now)
}
