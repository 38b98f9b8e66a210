package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline and provider Prometheus metrics.
var (
	ExtractionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "extraction_total",
			Help:      "Total document extractions",
		},
		[]string{"file_type", "status"},
	)

	ProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragline",
			Name:      "processing_duration_seconds",
			Help:      "End-to-end document processing duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"file_type", "status"},
	)

	ChunksIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "chunks_indexed_total",
			Help:      "Total chunks upserted into the vector index",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragline",
			Name:      "processing_queue_depth",
			Help:      "Documents waiting in the processing queue",
		},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragline",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "llm_requests_total",
			Help:      "LLM completion attempts per provider",
		},
		[]string{"provider", "model", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragline",
			Name:      "llm_request_duration_seconds",
			Help:      "LLM completion duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	QueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "query_cache_total",
			Help:      "Query answer cache hits and misses",
		},
		[]string{"result"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ragline",
			Name:      "breaker_open",
			Help:      "1 when the provider circuit breaker is open",
		},
		[]string{"provider"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(ExtractionTotal)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(ChunksIndexedTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(QueryCacheTotal)
	prometheus.MustRegister(BreakerState)
	pipelineMetricsRegistered = true
}
