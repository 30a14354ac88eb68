// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector gathers pipeline metrics. A nil *Collector is a no-op, so the
// pipeline components can be wired without metrics in tests.
type Collector struct {
	retrievalDuration  prometheus.Histogram
	retrievalChunks    prometheus.Histogram
	generationTotal    *prometheus.CounterVec
	generationDuration prometheus.Histogram
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	promptTokens       prometheus.Counter

	logger *zap.Logger
}

// NewCollector registers the pipeline metrics on the given registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.retrievalDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_duration_seconds",
		Help:      "End-to-end retrieval pipeline duration in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	c.retrievalChunks = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_chunks",
		Help:      "Number of chunks returned per retrieval",
		Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12},
	})

	c.generationTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_total",
		Help:      "Total generation requests by outcome",
	}, []string{"status"})

	c.generationDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Full generation pipeline duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	c.cacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "response_cache_hits_total",
		Help:      "Response cache hits",
	})

	c.cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "response_cache_misses_total",
		Help:      "Response cache misses",
	})

	c.promptTokens = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prompt_tokens_total",
		Help:      "Prompt tokens submitted to the model",
	})

	return c
}

// ObserveRetrieval records one retrieval pipeline run.
func (c *Collector) ObserveRetrieval(d time.Duration, chunks int) {
	if c == nil {
		return
	}
	c.retrievalDuration.Observe(d.Seconds())
	c.retrievalChunks.Observe(float64(chunks))
}

// ObserveGeneration records one generation request outcome.
func (c *Collector) ObserveGeneration(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.generationTotal.WithLabelValues(status).Inc()
	c.generationDuration.Observe(d.Seconds())
}

// CacheHit records a response cache hit.
func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// CacheMiss records a response cache miss.
func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// AddPromptTokens records tokens submitted to the model.
func (c *Collector) AddPromptTokens(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.promptTokens.Add(float64(n))
}
