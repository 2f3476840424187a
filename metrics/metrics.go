// Package metrics holds the process-wide mutable accumulators spec.md
// 9 describes: "model as a per-process mutable accumulator whose
// lifetime is the server process; writers submit deltas at operation
// boundaries, not per-inner-loop step." Grounded on the teacher's
// index_manager.go prometheus var block, same shape, applied to
// object-manager operations instead of reindex tasks.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ramstore",
	Subsystem: "objectmanager",
	Name:      "operations_total",
}, []string{"op", "status"})

var OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ramstore",
	Subsystem: "objectmanager",
	Name:      "operation_duration_seconds",
	Buckets:   prometheus.DefBuckets,
}, []string{"op"})

var ReplayEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ramstore",
	Subsystem: "objectmanager",
	Name:      "replay_entries_total",
}, []string{"type", "result"})

var ReplayReturns = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "ramstore",
	Subsystem: "objectmanager",
	Name:      "replay_returns_total",
	Help:      "incremented on every replaySegment return path; the tombstone poller watches this to detect quiescence",
})

var CleanerRelocations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ramstore",
	Subsystem: "objectmanager",
	Name:      "cleaner_relocations_total",
}, []string{"type", "result"})

var PollerPasses = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "ramstore",
	Subsystem: "objectmanager",
	Name:      "tombstone_poller_passes_total",
})

var OrphansRemoved = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "ramstore",
	Subsystem: "objectmanager",
	Name:      "orphans_removed_total",
})

func init() {
	prometheus.MustRegister(
		Operations,
		OperationDuration,
		ReplayEntries,
		ReplayReturns,
		CleanerRelocations,
		PollerPasses,
		OrphansRemoved,
	)
}
