package cache

import "github.com/prometheus/client_golang/prometheus"

// Labelled by resource, the key segment before the first ':', which keeps
// cardinality bounded by the number of resource types.
var (
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Cache lookups served from memory.",
		},
		[]string{"resource"},
	)

	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Cache lookups that fell through to the resource store.",
		},
		[]string{"resource"},
	)

	cacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Entries removed by expiry, explicit delete or prefix invalidation.",
		},
		[]string{"resource"},
	)
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheEvictions)
}
