// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Indexing metrics
	EventsApplied         *prometheus.CounterVec
	EventsReplayed        prometheus.Counter
	EventsSkipped         *prometheus.CounterVec
	EventProcessingErrors *prometheus.CounterVec
	ParticipantsRejected  prometheus.Counter

	// Poll loop metrics
	PollCycles        *prometheus.CounterVec
	PollCycleDuration prometheus.Histogram
	CheckpointLedger  prometheus.Gauge
	LatestLedgerSeen  prometheus.Gauge

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec

	// Fan-out metrics
	NotificationsPublished prometheus.Counter

	// Analytics metrics
	ActivityRowsWritten prometheus.Counter

	// Database metrics
	DBQueryErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "stream_indexer"
	}

	return &Metrics{
		// Indexing metrics
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_applied_total",
			Help:      "Total number of contract events applied by event type",
		}, []string{"event_type"}),
		EventsReplayed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_replayed_total",
			Help:      "Total number of already-applied events seen again and skipped",
		}),
		EventsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_skipped_total",
			Help:      "Total number of events skipped without application by reason",
		}, []string{"reason"}),
		EventProcessingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "event_processing_errors_total",
			Help:      "Total number of event processing errors by type",
		}, []string{"error_type"}),
		ParticipantsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "participants_rejected_total",
			Help:      "Total number of participant addresses rejected by validation",
		}),

		// Poll loop metrics
		PollCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "poll_cycles_total",
			Help:      "Total number of poll cycles by status",
		}, []string{"status"}),
		PollCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "poll_cycle_duration_seconds",
			Help:      "Poll cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CheckpointLedger: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "checkpoint_ledger",
			Help:      "Ledger sequence recorded in the checkpoint",
		}),
		LatestLedgerSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "latest_ledger_seen",
			Help:      "Latest closed ledger reported by the RPC node",
		}),

		// RPC metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "soroban",
			Name:      "rpc_call_latency_seconds",
			Help:      "Soroban RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Fan-out metrics
		NotificationsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_published_total",
			Help:      "Total number of post-commit notifications published",
		}),

		// Analytics metrics
		ActivityRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "activity_rows_total",
			Help:      "Total number of activity rows mirrored to ClickHouse",
		}),

		// Database metrics
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventApplied increments the applied counter for an event type.
func RecordEventApplied(eventType string) {
	DefaultMetrics.EventsApplied.WithLabelValues(eventType).Inc()
}

// RecordEventReplayed increments the replayed events counter.
func RecordEventReplayed() {
	DefaultMetrics.EventsReplayed.Inc()
}

// RecordEventSkipped increments the skipped counter for a reason.
func RecordEventSkipped(reason string) {
	DefaultMetrics.EventsSkipped.WithLabelValues(reason).Inc()
}

// RecordEventError records an event processing error.
func RecordEventError(errorType string) {
	DefaultMetrics.EventProcessingErrors.WithLabelValues(errorType).Inc()
}

// RecordParticipantRejected increments the rejected participants counter.
func RecordParticipantRejected() {
	DefaultMetrics.ParticipantsRejected.Inc()
}

// RecordPollCycle records one poll cycle with its outcome and duration.
func RecordPollCycle(status string, seconds float64) {
	DefaultMetrics.PollCycles.WithLabelValues(status).Inc()
	DefaultMetrics.PollCycleDuration.Observe(seconds)
}

// UpdateCheckpointLedger updates the checkpoint ledger gauge.
func UpdateCheckpointLedger(ledger uint32) {
	DefaultMetrics.CheckpointLedger.Set(float64(ledger))
}

// UpdateLatestLedger updates the latest ledger gauge.
func UpdateLatestLedger(ledger uint32) {
	DefaultMetrics.LatestLedgerSeen.Set(float64(ledger))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordNotification increments the published notifications counter.
func RecordNotification() {
	DefaultMetrics.NotificationsPublished.Inc()
}

// RecordActivityRows adds to the mirrored activity rows counter.
func RecordActivityRows(n int) {
	DefaultMetrics.ActivityRowsWritten.Add(float64(n))
}

// RecordDBError records a database query error.
func RecordDBError(database, operation string) {
	DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
}
