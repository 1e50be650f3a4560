// Package pipeline runs a raw event through enrichment, identity,
// classification and deduplication before handing it to the batch writer.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vinceanalytics/collector/internal/batch"
	"github.com/vinceanalytics/collector/internal/dedup"
	"github.com/vinceanalytics/collector/internal/entry"
	verrors "github.com/vinceanalytics/collector/internal/errors"
	"github.com/vinceanalytics/collector/internal/guard"
	"github.com/vinceanalytics/collector/internal/metrics"
	"github.com/vinceanalytics/collector/internal/session"
	"github.com/vinceanalytics/collector/internal/visitor"
)

// Outcome is what happened to an event after it was received.
type Outcome uint8

const (
	Accepted Outcome = iota
	Bot
	Invalid
	Duplicate
	Backpressure
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Bot:
		return "bot"
	case Invalid:
		return "invalid"
	case Duplicate:
		return "duplicate"
	default:
		return "backpressure"
	}
}

// Writer accepts enriched events without blocking.
type Writer interface {
	Append(e *entry.EnrichedEvent) error
}

// Meter receives usage of accepted events.
type Meter interface {
	Record(siteID string)
}

// PromMeter meters usage with the site usage counter.
type PromMeter struct{}

func (PromMeter) Record(siteID string) {
	metrics.Usage.WithLabelValues(siteID).Inc()
}

type Options struct {
	// Deadline bounds visitor context resolution.
	Deadline time.Duration
	// Granularity is the timestamp bucket of deduplication keys.
	Granularity time.Duration
	Rules       guard.Rules
}

type Pipeline struct {
	resolver *visitor.Resolver
	sessions *session.Engine
	dedup    *dedup.Deduplicator
	writer   Writer
	meter    Meter
	o        Options
	now      func() time.Time
	log      *slog.Logger
}

func New(resolver *visitor.Resolver, sessions *session.Engine, d *dedup.Deduplicator, w Writer, meter Meter, o Options) *Pipeline {
	if o.Deadline <= 0 {
		o.Deadline = 50 * time.Millisecond
	}
	if o.Granularity <= 0 {
		o.Granularity = dedup.DefaultGranularity
	}
	if o.Rules == (guard.Rules{}) {
		o.Rules = guard.DefaultRules()
	}
	if meter == nil {
		meter = PromMeter{}
	}
	return &Pipeline{
		resolver: resolver,
		sessions: sessions,
		dedup:    d,
		writer:   w,
		meter:    meter,
		o:        o,
		now:      time.Now,
		log:      slog.Default().With("component", "pipeline"),
	}
}

// Process classifies raw and forwards it to the writer when it is a human
// event seen for the first time. Rejections are reported through the
// outcome, the returned error is only set for backpressure. An event refused
// by the writer releases its dedup key and the session it opened so that a
// retry is processed as if it was never seen.
func (p *Pipeline) Process(ctx context.Context, raw *entry.RawEvent) (Outcome, error) {
	metrics.EventReceived.Inc()

	rctx, cancel := context.WithTimeout(ctx, p.o.Deadline)
	vc := p.resolver.ResolveEvent(rctx, raw)
	cancel()

	var (
		fingerprint string
		isNew       bool
	)
	if !raw.Timestamp.IsZero() {
		fingerprint, isNew = p.sessions.IdentifyPage(ctx, raw.SiteID, vc, raw.IP, raw.UserAgent, raw.Page, raw.Timestamp)
	}

	switch p.o.Rules.Classify(raw, vc, p.now()) {
	case entry.Bot:
		metrics.EventRejected.WithLabelValues(metrics.ReasonBot).Inc()
		return Bot, nil
	case entry.Invalid:
		metrics.EventRejected.WithLabelValues(metrics.ReasonInvalid).Inc()
		return Invalid, nil
	}

	key := dedup.NewKey(raw.SiteID, fingerprint, raw.Name, raw.Timestamp, p.o.Granularity, raw.Properties)
	if !p.dedup.Admit(ctx, key) {
		metrics.EventRejected.WithLabelValues(metrics.ReasonDuplicate).Inc()
		return Duplicate, nil
	}

	e := entry.Enrich(raw, vc, fingerprint, isNew, entry.Human)
	if err := p.writer.Append(e); err != nil {
		e.Release()
		p.dedup.Forget(ctx, key)
		if isNew {
			p.sessions.Forget(ctx, raw.SiteID, raw.IP, raw.UserAgent, raw.Timestamp)
		}
		if errors.Is(err, batch.ErrBackpressure) || errors.Is(err, batch.ErrClosed) {
			metrics.EventRejected.WithLabelValues(metrics.ReasonBackpressure).Inc()
			return Backpressure, err
		}
		return Backpressure, verrors.Wrap(verrors.KindStorageTransient, "append", err)
	}
	metrics.EventAccepted.Inc()
	p.meter.Record(raw.SiteID)
	return Accepted, nil
}
