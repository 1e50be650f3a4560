package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// histograms
var (
	// buckets for seconds resolutions of histograms
	buckets       = []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10}
	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vince",
			Name:      "batch_flush_duration_seconds",
			Help:      "Time taken to persist a batch of events to storage, retries included.",
			Buckets:   buckets,
		},
	)
	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vince",
			Name:      "batch_size",
			Help:      "Number of events in a sealed batch.",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000},
		},
	)
	ResolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vince",
			Name:      "visitor_resolve_duration_seconds",
			Help:      "Time taken to resolve visitor context on a cache miss.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)

var (
	EventReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vince",
		Name:      "events_received_total",
	})
	EventAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vince",
		Name:      "events_accepted_total",
	})
	EventRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vince",
		Name:      "events_rejected_total",
		Help:      "Events not forwarded to storage by reason.",
	}, []string{"reason"})
	EnrichmentDegraded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vince",
		Name:      "enrichment_degraded_total",
		Help:      "Visitor context families that resolved to unknown.",
	}, []string{"family"})
	StoreFailOpen = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vince",
		Name:      "kv_fail_open_total",
		Help:      "Shared store calls that failed or timed out and were treated as new.",
	}, []string{"component"})
	Flushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vince",
		Name:      "batch_flushes_total",
	}, []string{"result"})
	DeadLettered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vince",
		Name:      "events_dead_lettered_total",
	})
	Usage = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vince",
		Name:      "site_usage_events_total",
		Help:      "Accepted events per site for metering.",
	}, []string{"site"})
)

// gauges
var (
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vince",
		Name:      "batch_in_flight",
		Help:      "Sealed batches waiting for or being flushed.",
	})
)

// Rejection reasons.
const (
	ReasonBot          = "bot"
	ReasonInvalid      = "invalid"
	ReasonDuplicate    = "duplicate"
	ReasonBackpressure = "backpressure"
	ReasonRateLimit    = "rate_limit"
)

// Flush results.
const (
	FlushOK    = "ok"
	FlushRetry = "retry"
	FlushDead  = "dead_letter"
)

func init() {
	prometheus.DefaultRegisterer.MustRegister(
		FlushDuration,
		BatchSize,
		ResolveDuration,
		EventReceived,
		EventAccepted,
		EventRejected,
		EnrichmentDegraded,
		StoreFailOpen,
		Flushes,
		DeadLettered,
		Usage,
		InFlight,
	)
}

func New() http.Handler {
	return promhttp.Handler()
}
