package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchOutcomes   *prometheus.CounterVec
	fetchAttempts   *prometheus.HistogramVec
	cacheEvents     *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	analysisLatency prometheus.Histogram
	analysisSize    *prometheus.GaugeVec
	errorsTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg (tests pass a fresh registry).
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetchOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_fetch_outcomes_total",
				Help: "Fetch outcomes by data kind, status and failure reason",
			},
			[]string{"kind", "status", "reason"},
		),
		fetchAttempts: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_fetch_attempts",
				Help:    "Provider calls needed per ticker outcome",
				Buckets: []float64{1, 2, 3, 4, 5, 8},
			},
			[]string{"kind"},
		),
		cacheEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_price_cache_events_total",
				Help: "Price cache hits, stale serves, misses, evictions and backend activity",
			},
			[]string{"event"},
		),
		providerLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_provider_call_seconds",
				Help:    "Duration of provider calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		analysisLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pulse_analysis_seconds",
				Help:    "Duration of a full portfolio analysis pass",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		analysisSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulse_analysis_positions",
				Help: "Positions in the last analysis pass, total and excluded from aggregates",
			},
			[]string{"set"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulse_last_price",
				Help: "Last fetched price for a ticker",
			},
			[]string{"ticker"},
		),
	}
}

// RecordFetch counts one per-ticker outcome.
func (r *Recorder) RecordFetch(kind, status, reason string, attempts int) {
	r.fetchOutcomes.WithLabelValues(kind, status, reason).Inc()
	if attempts > 0 {
		r.fetchAttempts.WithLabelValues(kind).Observe(float64(attempts))
	}
}

// RecordCache counts a cache event.
func (r *Recorder) RecordCache(event string) {
	r.cacheEvents.WithLabelValues(event).Inc()
}

// RecordProviderLatency records provider call latency in seconds.
func (r *Recorder) RecordProviderLatency(op string, seconds float64) {
	r.providerLatency.WithLabelValues(op).Observe(seconds)
}

// RecordAnalysis records one analysis pass.
func (r *Recorder) RecordAnalysis(seconds float64, positions, excluded int) {
	r.analysisLatency.Observe(seconds)
	r.analysisSize.WithLabelValues("total").Set(float64(positions))
	r.analysisSize.WithLabelValues("excluded").Set(float64(excluded))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a ticker.
func (r *Recorder) RecordLastPrice(ticker string, price float64) {
	r.lastPrice.WithLabelValues(ticker).Set(price)
}
