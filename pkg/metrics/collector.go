// Package metrics exposes Prometheus collectors for the persistence core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_cache_hits_total",
			Help: "Remote store cache hits per entity family",
		},
		[]string{"family"},
	)
	cacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_cache_misses_total",
			Help: "Remote store cache misses per entity family",
		},
		[]string{"family"},
	)
	storeMode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_mode",
			Help: "Current authoritative store mode (1 for the active mode)",
		},
		[]string{"mode"},
	)
	modeTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_mode_transitions_total",
			Help: "Mode transitions of the resilient manager",
		},
		[]string{"from", "to"},
	)
	syncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_queue_depth",
			Help: "Number of items currently in the outbound sync queue",
		},
	)
	syncItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_items_total",
			Help: "Sync queue items processed, labeled by result",
		},
		[]string{"result"},
	)
	remoteOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_op_duration_seconds",
			Help:    "Duration of remote store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)
)

// knownModes keeps the store_mode gauge exhaustive so dashboards can rely on
// every series existing.
var knownModes = []string{"unknown", "disabled", "local", "remote"}

// RecordCacheHit increments the hit counter for a cache family.
func RecordCacheHit(family string) {
	if family == "" {
		family = "unknown"
	}
	cacheHitsTotal.WithLabelValues(family).Inc()
}

// RecordCacheMiss increments the miss counter for a cache family.
func RecordCacheMiss(family string) {
	if family == "" {
		family = "unknown"
	}
	cacheMissesTotal.WithLabelValues(family).Inc()
}

// SetMode marks mode as active and clears the others.
func SetMode(mode string) {
	for _, known := range knownModes {
		value := 0.0
		if known == mode {
			value = 1.0
		}
		storeMode.WithLabelValues(known).Set(value)
	}
}

// RecordModeTransition counts a manager mode change.
func RecordModeTransition(from, to string) {
	modeTransitionsTotal.WithLabelValues(from, to).Inc()
}

// SetSyncQueueDepth updates the queue depth gauge.
func SetSyncQueueDepth(depth int) {
	syncQueueDepth.Set(float64(depth))
}

// RecordSyncItem counts one drained queue item by result ("success" or
// "failure").
func RecordSyncItem(result string) {
	if result == "" {
		result = "unknown"
	}
	syncItemsTotal.WithLabelValues(result).Inc()
}

// RecordRemoteOp observes the duration and outcome of a remote operation.
func RecordRemoteOp(op string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	remoteOpDurationSeconds.WithLabelValues(op, status).Observe(duration.Seconds())
}
