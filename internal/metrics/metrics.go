// Package metrics exposes Prometheus collectors for the storage engine and dispatcher.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation results.
const (
	ResultOK       = "ok"
	ResultMiss     = "miss"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var (
	Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "minicask_operations_total",
		Help: "Engine operations by type and result",
	}, []string{"op", "result"})

	OperationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "minicask_operation_latency_seconds",
		Help:    "Time spent executing an engine operation on the dispatcher",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	SegmentRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "minicask_segment_rotations_total",
		Help: "Number of times the active segment was archived and replaced",
	})

	RotationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "minicask_segment_rotation_failures_total",
		Help: "Rotations that failed to sync, create or close a segment",
	})

	ReplayedEntries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "minicask_replayed_entries_total",
		Help: "Entries applied to the index during startup replay",
	})

	ReplaySkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "minicask_replay_skipped_total",
		Help: "Entries skipped or scans stopped during replay, by reason",
	}, []string{"reason"})

	ActiveSegmentBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "minicask_active_segment_bytes",
		Help: "Current size of the active segment",
	})

	ArchivedSegments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "minicask_archived_segments",
		Help: "Number of archived segments",
	})

	LiveKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "minicask_live_keys",
		Help: "Number of keys in the index",
	})

	PendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "minicask_dispatcher_pending_requests",
		Help: "Callers waiting for the dispatcher to accept or answer a request",
	})
)

func init() {
	prometheus.MustRegister(Operations, OperationLatency, SegmentRotations, RotationFailures, ReplayedEntries, ReplaySkipped)
	prometheus.MustRegister(ActiveSegmentBytes, ArchivedSegments, LiveKeys, PendingRequests)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOperation records the outcome and latency of one operation.
func ObserveOperation(op, result string, elapsed time.Duration) {
	Operations.WithLabelValues(op, result).Inc()
	OperationLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}
