// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"daily-stock-analysis/internal/models"
)

const namespace = "intraday"

// Recorder records fetch, signal and run metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	fetchAttempts    *prometheus.CounterVec
	fetchLatency     *prometheus.HistogramVec
	cacheHits        prometheus.Counter
	unavailable      prometheus.Counter
	signals          *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	dispatches       *prometheus.CounterVec
	runs             prometheus.Counter
	runDuration      prometheus.Histogram
	abandoned        prometheus.Counter
	lastRunTimestamp prometheus.Gauge
}

// New creates a recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		fetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Quote fetch attempts by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		fetchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of quote source calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_cache_hits_total",
			Help:      "Quotes served from the cache",
		}),
		unavailable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_unavailable_total",
			Help:      "Symbols for which every source failed",
		}),
		signals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Classified signals by action",
			},
			[]string{"action"},
		),
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_decisions_total",
				Help:      "Filter decisions by notify flag and suppression reason",
			},
			[]string{"notify", "reason"},
		),
		dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Notification deliveries by channel and result",
			},
			[]string{"channel", "result"},
		),
		runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed checkpoint runs",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of checkpoint runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		abandoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_abandoned_total",
			Help:      "Symbols not started before shutdown",
		}),
		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last checkpoint run started",
		}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// FetchAttempt records one source call.
func (r *Recorder) FetchAttempt(source, outcome string, d time.Duration) {
	r.fetchAttempts.WithLabelValues(source, outcome).Inc()
	if d > 0 {
		r.fetchLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// CacheHit records a quote served from the cache.
func (r *Recorder) CacheHit() {
	r.cacheHits.Inc()
}

// SymbolUnavailable records a symbol for which every source failed.
func (r *Recorder) SymbolUnavailable() {
	r.unavailable.Inc()
}

// Signal records a classified signal.
func (r *Recorder) Signal(action models.Action) {
	r.signals.WithLabelValues(string(action)).Inc()
}

// Decision records a filter decision.
func (r *Recorder) Decision(d models.NotificationDecision) {
	r.decisions.WithLabelValues(strconv.FormatBool(d.ShouldNotify), d.SuppressionReason).Inc()
}

// Dispatch records one channel delivery.
func (r *Recorder) Dispatch(channel string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	r.dispatches.WithLabelValues(channel, result).Inc()
}

// Run records a finished checkpoint run.
func (r *Recorder) Run(s *models.RunSummary) {
	r.runs.Inc()
	r.runDuration.Observe(s.Duration.Seconds())
	r.abandoned.Add(float64(len(s.Abandoned)))
	r.lastRunTimestamp.Set(float64(s.StartedAt.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on addr.
func (r *Recorder) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
