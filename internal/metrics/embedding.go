package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodespace",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nodespace",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodespace",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodespace",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by outcome",
		},
		[]string{"level", "result"}, // result: "hit" / "miss" / "stale"
	)

	EmbeddingRegenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodespace",
			Name:      "embedding_regenerations_total",
			Help:      "Background embedding regenerations by outcome",
		},
		[]string{"level", "status"}, // status: "ok" / "error" / "superseded"
	)

	EmbeddingRegenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nodespace",
			Name:      "embedding_regeneration_duration_seconds",
			Help:      "Background embedding regeneration duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"level"},
	)

	EmbeddingQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nodespace",
			Name:      "embedding_queue_depth",
			Help:      "Pending background regeneration tasks",
		},
	)
)

var embMetricsRegistered bool

// RegisterEmbeddingMetrics registers Prometheus embedding metrics. Must be called once from main.
func RegisterEmbeddingMetrics() {
	if embMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(EmbeddingRegenerationsTotal)
	prometheus.MustRegister(EmbeddingRegenerationDuration)
	prometheus.MustRegister(EmbeddingQueueDepth)
	embMetricsRegistered = true
}
