package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_lookups_total",
		Help: "Total number of cache lookups.",
	}, []string{"status" /* hit | miss | stale */})
	cacheEvictedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_cache_evicted_entries_total",
		Help: "Total number of entries expunged to make room for writes.",
	})
	cacheEvictedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_cache_evicted_bytes_total",
		Help: "Total size of the data records expunged to make room for writes.",
	})
	cacheWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_write_failures_total",
		Help: "Total number of abandoned or partial cache writes.",
	}, []string{"kind" /* serialization | capacity_exceeded | store_failure | expiry_write */})
)
