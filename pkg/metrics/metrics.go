package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fluxcore_commit_duration_seconds",
			Help:    "Time from commit INIT to a FINISHED or ERROR result",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitStallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fluxcore_commit_stalls_total",
			Help: "Total number of LOAD_MISSING_REFS or DIRTY_CACHE_ENTRIES stalls returned by Process",
		},
	)

	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fluxcore_cache_hits_total",
			Help: "Total cache lookups that found a valid entry",
		},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fluxcore_cache_misses_total",
			Help: "Total cache lookups that found no entry or an invalid one",
		},
	)

	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluxcore_cache_entries",
			Help: "Current number of entries held in the cache",
		},
	)

	CacheDirtyEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluxcore_cache_dirty_entries",
			Help: "Current number of dirty entries awaiting a store flush",
		},
	)

	WaitQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fluxcore_wait_queue_depth",
			Help: "Outstanding waiters, by queue name",
		},
		[]string{"queue"},
	)

	BootstrapHandshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fluxcore_bootstrap_handshake_duration_seconds",
			Help:    "Time taken to complete the COBO-style bootstrap handshake",
			Buckets: prometheus.DefBuckets,
		},
	)

	BootstrapConnectAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fluxcore_bootstrap_connect_attempts_total",
			Help: "Total bootstrap dials to a parent, counted once per port-range scan",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CommitDuration,
		CommitStallsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEntries,
		CacheDirtyEntries,
		WaitQueueDepth,
		BootstrapHandshakeDuration,
		BootstrapConnectAttemptsTotal,
	)
}

// Handler returns the Prometheus HTTP scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
