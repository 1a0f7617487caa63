// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Live feed metrics
	FeedNotifications   *prometheus.CounterVec
	FeedDecodeErrors    *prometheus.CounterVec
	ActiveSubscriptions prometheus.Gauge
	FeedState           prometheus.Gauge

	// Store metrics
	StoreDispatches *prometheus.CounterVec

	// Subgraph metrics
	SubgraphLatency *prometheus.HistogramVec
	SubgraphErrors  *prometheus.CounterVec
	MetadataFetches *prometheus.CounterVec

	// Valuation metrics
	ValuationDuration prometheus.Histogram
	HistoricalReads   *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	registry prometheus.Gatherer
}

// NewMetrics creates metrics registered on reg.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "launchpad_terminal"
	}
	f := promauto.With(reg)

	m := &Metrics{
		FeedNotifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "livefeed",
			Name:      "notifications_total",
			Help:      "Log notifications received, by event kind",
		}, []string{"kind"}),
		FeedDecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "livefeed",
			Name:      "decode_errors_total",
			Help:      "Log notifications dropped as malformed, by event kind",
		}, []string{"kind"}),
		ActiveSubscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "livefeed",
			Name:      "active_subscriptions",
			Help:      "Number of open eth_subscribe subscriptions",
		}),
		FeedState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "livefeed",
			Name:      "state",
			Help:      "Live feed state (0 closed, 1 connecting, 2 open)",
		}),

		StoreDispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "dispatches_total",
			Help:      "Actions dispatched into the market store, by action",
		}, []string{"action"}),

		SubgraphLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "subgraph",
			Name:      "request_duration_seconds",
			Help:      "GraphQL request latency, by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		SubgraphErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subgraph",
			Name:      "errors_total",
			Help:      "Failed GraphQL requests, by operation",
		}, []string{"operation"}),
		MetadataFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subgraph",
			Name:      "metadata_fetches_total",
			Help:      "Token metadata fetches, by result",
		}, []string{"result"}),

		ValuationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "valuation_duration_seconds",
			Help:      "Wall time of a historical portfolio reconstruction",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		HistoricalReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "historical_reads_total",
			Help:      "Per-bucket historical balance reads, by result",
		}, []string{"result"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "cache_lookups_total",
			Help:      "Valuation cache lookups, by result",
		}, []string{"result"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
	if reg != nil {
		m.registry = reg
	}
	return m
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordNotification counts one live feed notification.
func (m *Metrics) RecordNotification(kind string) {
	if m == nil {
		return
	}
	m.FeedNotifications.WithLabelValues(kind).Inc()
}

// RecordDecodeError counts one dropped notification.
func (m *Metrics) RecordDecodeError(kind string) {
	if m == nil {
		return
	}
	m.FeedDecodeErrors.WithLabelValues(kind).Inc()
}

// SetSubscriptions sets the active subscription gauge.
func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Set(float64(n))
}

// SetFeedState sets the live feed state gauge.
func (m *Metrics) SetFeedState(state int) {
	if m == nil {
		return
	}
	m.FeedState.Set(float64(state))
}

// RecordDispatch counts one store action.
func (m *Metrics) RecordDispatch(action string) {
	if m == nil {
		return
	}
	m.StoreDispatches.WithLabelValues(action).Inc()
}

// RecordSubgraphRequest records GraphQL request latency and failures.
func (m *Metrics) RecordSubgraphRequest(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.SubgraphLatency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		m.SubgraphErrors.WithLabelValues(operation).Inc()
	}
}

// RecordMetadataFetch counts a metadata fetch outcome.
func (m *Metrics) RecordMetadataFetch(ok bool) {
	if m == nil {
		return
	}
	m.MetadataFetches.WithLabelValues(result(ok)).Inc()
}

// RecordValuation records the duration of one reconstruction.
func (m *Metrics) RecordValuation(seconds float64) {
	if m == nil {
		return
	}
	m.ValuationDuration.Observe(seconds)
}

// RecordHistoricalRead counts a per-bucket read outcome.
func (m *Metrics) RecordHistoricalRead(ok bool) {
	if m == nil {
		return
	}
	m.HistoricalReads.WithLabelValues(result(ok)).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
