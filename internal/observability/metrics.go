// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Intake metrics
	SignalsReceived prometheus.Counter
	SignalsRejected *prometheus.CounterVec
	OrdersAdmitted  prometheus.Counter

	// Order lifecycle metrics
	OrderTransitions *prometheus.CounterVec
	ActiveOrders     prometheus.Gauge
	CompletedOrders  prometheus.Gauge

	// Price metrics
	PriceFetchLatency prometheus.Histogram
	PriceFetchErrors  prometheus.Counter
	PriceCacheHits    prometheus.Counter
	PriceCacheMisses  prometheus.Counter

	// Publisher metrics
	SnapshotsPublished  *prometheus.CounterVec
	SnapshotsSuppressed *prometheus.CounterVec

	// Monitor metrics
	TicksTotal   *prometheus.CounterVec
	TicksSkipped prometheus.Counter
	TickDuration prometheus.Histogram

	// Venue metrics
	VenueCallLatency *prometheus.HistogramVec
	VenueCallErrors  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulTick       prometheus.Gauge
	ConsecutivePriceFailures prometheus.Gauge
	UptimeSeconds            prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "signal_engine"
	}

	return &Metrics{
		// Intake metrics
		SignalsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "signals_received_total",
			Help:      "Total number of signals received",
		}),
		SignalsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "signals_rejected_total",
			Help:      "Total number of signals rejected by reason",
		}, []string{"reason"}),
		OrdersAdmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "orders_admitted_total",
			Help:      "Total number of orders admitted",
		}),

		// Order lifecycle metrics
		OrderTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Total number of order state transitions by target state and exit reason",
		}, []string{"to", "exit_reason"}),
		ActiveOrders: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "active",
			Help:      "Current number of non-completed orders",
		}),
		CompletedOrders: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "completed",
			Help:      "Current number of completed orders",
		}),

		// Price metrics
		PriceFetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "fetch_latency_seconds",
			Help:      "Price source fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PriceFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed price fetches",
		}),
		PriceCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "cache_hits_total",
			Help:      "Total number of quote cache hits",
		}),
		PriceCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "cache_misses_total",
			Help:      "Total number of quote cache misses",
		}),

		// Publisher metrics
		SnapshotsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "snapshots_published_total",
			Help:      "Total number of snapshots emitted by push mode",
		}, []string{"mode"}),
		SnapshotsSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "snapshots_suppressed_total",
			Help:      "Total number of suppressed pushes by gate",
		}, []string{"gate"}),

		// Monitor metrics
		TicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ticks_total",
			Help:      "Total number of monitor ticks by status",
		}, []string{"status"}),
		TicksSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ticks_skipped_total",
			Help:      "Total number of ticks skipped because the previous tick was still running",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tick_duration_seconds",
			Help:      "Monitor tick duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		}),

		// Venue metrics
		VenueCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "call_latency_seconds",
			Help:      "Execution venue call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		VenueCallErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "call_errors_total",
			Help:      "Total number of failed venue calls",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulTick: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of the last fully successful monitor tick",
		}),
		ConsecutivePriceFailures: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "consecutive_price_failures",
			Help:      "Current streak of failed price source calls",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSignalReceived increments the signals received counter.
func RecordSignalReceived() {
	DefaultMetrics.SignalsReceived.Inc()
}

// RecordSignalRejected records a rejected signal by reason.
func RecordSignalRejected(reason string) {
	DefaultMetrics.SignalsRejected.WithLabelValues(reason).Inc()
}

// RecordOrderAdmitted increments the admitted orders counter.
func RecordOrderAdmitted() {
	DefaultMetrics.OrdersAdmitted.Inc()
}

// RecordOrderTransition records an order state transition.
func RecordOrderTransition(to, exitReason string) {
	DefaultMetrics.OrderTransitions.WithLabelValues(to, exitReason).Inc()
}

// UpdateOrderCounts updates the order collection gauges.
func UpdateOrderCounts(active, completed int) {
	DefaultMetrics.ActiveOrders.Set(float64(active))
	DefaultMetrics.CompletedOrders.Set(float64(completed))
}

// RecordPriceFetch records a price source fetch.
func RecordPriceFetch(seconds float64, err error) {
	DefaultMetrics.PriceFetchLatency.Observe(seconds)
	if err != nil {
		DefaultMetrics.PriceFetchErrors.Inc()
	}
}

// RecordCacheHit increments the quote cache hit counter.
func RecordCacheHit() {
	DefaultMetrics.PriceCacheHits.Inc()
}

// RecordCacheMiss increments the quote cache miss counter.
func RecordCacheMiss() {
	DefaultMetrics.PriceCacheMisses.Inc()
}

// RecordSnapshotPublished records an emitted snapshot.
func RecordSnapshotPublished(forced bool) {
	mode := "debounced"
	if forced {
		mode = "forced"
	}
	DefaultMetrics.SnapshotsPublished.WithLabelValues(mode).Inc()
}

// RecordSnapshotSuppressed records a suppressed push by gate.
func RecordSnapshotSuppressed(gate string) {
	DefaultMetrics.SnapshotsSuppressed.WithLabelValues(gate).Inc()
}

// RecordTick records a monitor tick.
func RecordTick(status string, durationSeconds float64) {
	DefaultMetrics.TicksTotal.WithLabelValues(status).Inc()
	DefaultMetrics.TickDuration.Observe(durationSeconds)
}

// RecordTickSkipped increments the skipped tick counter.
func RecordTickSkipped() {
	DefaultMetrics.TicksSkipped.Inc()
}

// RecordVenueCall records a venue call.
func RecordVenueCall(operation string, seconds float64, err error) {
	DefaultMetrics.VenueCallLatency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.VenueCallErrors.Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdatePriceFailureStreak updates the consecutive price failure gauge.
func UpdatePriceFailureStreak(n int) {
	DefaultMetrics.ConsecutivePriceFailures.Set(float64(n))
}

// RecordSuccessfulTick updates the last successful tick timestamp.
func RecordSuccessfulTick(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulTick.Set(float64(unixSeconds))
}
