package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search engine Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vxsearch",
			Name:      "search_requests_total",
			Help:      "Total number of search engine calls",
		},
		[]string{"op", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vxsearch",
			Name:      "search_duration_seconds",
			Help:      "Search engine call duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"op"},
	)

	SearchSlowTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vxsearch",
			Name:      "search_slow_total",
			Help:      "Searches exceeding the configured warning threshold",
		},
		[]string{"op"},
	)

	IterationEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vxsearch",
			Name:      "iteration_emitted_total",
			Help:      "Documents passed to match-iteration callbacks",
		},
		[]string{"strategy"}, // "field" / "docid"
	)

	IndexHandlesLeased = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vxsearch",
			Name:      "index_handles_leased",
			Help:      "Searcher handles currently leased from the index",
		},
	)

	IndexRefreshTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vxsearch",
			Name:      "index_refresh_total",
			Help:      "Index reader refreshes",
		},
	)

	PrincipalCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vxsearch",
			Name:      "principal_cache_total",
			Help:      "Auth token cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchSlowTotal)
	prometheus.MustRegister(IterationEmittedTotal)
	prometheus.MustRegister(IndexHandlesLeased)
	prometheus.MustRegister(IndexRefreshTotal)
	prometheus.MustRegister(PrincipalCacheTotal)
	searchMetricsRegistered = true
}
