package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search and ingestion Prometheus metrics.
var (
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"query"},
	)

	SearchChunksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_chunks_total",
		Help:      "Store chunks scanned by the similarity engine",
	})

	SearchCandidatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_candidates_total",
		Help:      "Records scored by the similarity engine",
	})

	SearchExcludedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_excluded_total",
		Help:      "Records skipped for an undecodable or zero-norm feature",
	})

	SearchPartialTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_partial_total",
		Help:      "Scans cut short by a store failure",
	})

	IngestOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_outcomes_total",
			Help:      "Ingestion outcomes by status",
		},
		[]string{"status"},
	)

	IngestItemDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_item_duration_seconds",
		Help:      "Per-item ingestion duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers search and ingestion metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchChunksTotal)
	prometheus.MustRegister(SearchCandidatesTotal)
	prometheus.MustRegister(SearchExcludedTotal)
	prometheus.MustRegister(SearchPartialTotal)
	prometheus.MustRegister(IngestOutcomesTotal)
	prometheus.MustRegister(IngestItemDuration)
	retrievalMetricsRegistered = true
}
