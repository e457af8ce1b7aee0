package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssistantQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_queries_total",
			Help: "Total number of assistant queries processed, by resolved intent",
		},
		[]string{"intent"},
	)

	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_pipeline_failures_total",
			Help: "Total number of pipeline failures, by stage",
		},
		[]string{"stage"},
	)

	KnowledgeCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_kb_cache_hits_total",
			Help: "Knowledge base search cache hits",
		},
	)

	KnowledgeCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_kb_cache_misses_total",
			Help: "Knowledge base search cache misses",
		},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "assistant_pipeline_duration_seconds",
			Help: "Duration of the query-resolution pipeline in seconds",
		},
	)
)
