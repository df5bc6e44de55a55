/*
Package metrics provides Prometheus metrics collection and exposition for
flux-core-go. Metrics are registered at package init and exposed via an
HTTP handler for scraping.

# Metrics Catalog

Commit engine:

	fluxcore_commit_duration_seconds: histogram, time from Process(INIT)
	  to a FINISHED/ERROR result, per commit.
	fluxcore_commit_stalls_total: counter, number of LOAD_MISSING_REFS or
	  DIRTY_CACHE_ENTRIES results returned.

Cache:

	fluxcore_cache_hits_total / fluxcore_cache_misses_total: counters.
	fluxcore_cache_entries: gauge, current entry count.
	fluxcore_cache_dirty_entries: gauge, current dirty entry count.

Wait queue:

	fluxcore_wait_queue_depth: gauge, outstanding waiters per queue name.

Bootstrap:

	fluxcore_bootstrap_handshake_duration_seconds: histogram.
	fluxcore_bootstrap_connect_attempts_total: counter.

# Usage

	timer := metrics.NewTimer()
	result, err := commit.Process(epoch)
	timer.ObserveDuration(metrics.CommitDuration)
*/
package metrics
