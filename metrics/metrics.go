// Package metrics provides optional prometheus instrumentation for the
// engine's cache, fetch, playback and prefetch internals.
//
// Instrumentation is disabled until Setup is called; every recording helper
// is a no-op in the disabled state so call sites never need to guard.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mu      sync.Mutex
	enabled bool

	cacheReads       *prometheus.CounterVec
	cacheEvictions   prometheus.Counter
	cacheMemoryBytes prometheus.Gauge
	fetchTasks       *prometheus.CounterVec
	fetchAttached    prometheus.Counter
	fetchBumped      prometheus.Counter
	sessionsPlaying  prometheus.Gauge
	prefetchWindows  *prometheus.CounterVec
)

// Setup registers all collectors with the given registerer and enables
// recording. A nil registerer falls back to the default prometheus registry.
func Setup(reg prometheus.Registerer) {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	cacheReads = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfeed_cache_reads_total",
			Help: "Total cache read operations by tier and status",
		},
		[]string{"tier", "status"}, // tier: "memory", "disk"; status: "hit", "miss"
	)
	cacheEvictions = promauto.With(reg).NewCounter(
		prometheus.CounterOpts{
			Name: "reelfeed_cache_evictions_total",
			Help: "Total entries evicted from the memory cache tier",
		},
	)
	cacheMemoryBytes = promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "reelfeed_cache_memory_bytes",
			Help: "Current cost of the memory cache tier in bytes",
		},
	)
	fetchTasks = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfeed_fetch_tasks_total",
			Help: "Total fetch tasks by terminal outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "cancelled"
	)
	fetchAttached = promauto.With(reg).NewCounter(
		prometheus.CounterOpts{
			Name: "reelfeed_fetch_attached_total",
			Help: "Total requests that attached to an already in-flight fetch task",
		},
	)
	fetchBumped = promauto.With(reg).NewCounter(
		prometheus.CounterOpts{
			Name: "reelfeed_fetch_priority_bumps_total",
			Help: "Total in-flight low-priority tasks promoted to high priority",
		},
	)
	sessionsPlaying = promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "reelfeed_sessions_playing",
			Help: "Number of playback sessions currently producing output (0 or 1)",
		},
	)
	prefetchWindows = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfeed_prefetch_windows_total",
			Help: "Total prefetch window fetches by result",
		},
		[]string{"result"}, // "loaded", "empty", "failed"
	)

	enabled = true
}

func isEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// CacheRead records one cache lookup against a tier with a hit/miss status.
func CacheRead(tier, status string) {
	if isEnabled() {
		cacheReads.WithLabelValues(tier, status).Inc()
	}
}

// CacheEviction records one memory-tier eviction.
func CacheEviction() {
	if isEnabled() {
		cacheEvictions.Inc()
	}
}

// SetCacheMemoryBytes publishes the current memory-tier cost.
func SetCacheMemoryBytes(n int64) {
	if isEnabled() {
		cacheMemoryBytes.Set(float64(n))
	}
}

// FetchTask records the terminal outcome of one fetch task.
func FetchTask(outcome string) {
	if isEnabled() {
		fetchTasks.WithLabelValues(outcome).Inc()
	}
}

// FetchAttached records a request fanning in to an existing task.
func FetchAttached() {
	if isEnabled() {
		fetchAttached.Inc()
	}
}

// FetchBumped records an in-place priority promotion.
func FetchBumped() {
	if isEnabled() {
		fetchBumped.Inc()
	}
}

// SessionPlaying adjusts the active-session gauge.
func SessionPlaying(delta float64) {
	if isEnabled() {
		sessionsPlaying.Add(delta)
	}
}

// PrefetchWindow records the result of one window fetch.
func PrefetchWindow(result string) {
	if isEnabled() {
		prefetchWindows.WithLabelValues(result).Inc()
	}
}
