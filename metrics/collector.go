// Package metrics exports Prometheus metrics for ingestion and question answering.
//
// A Collector implements both query.Monitor and ingestion.Observer, so it can
// be handed to an Engine with query.WithMonitor and to a Pipeline with
// ingestion.WithObserver. Prometheus scrapes it through Handler:
//
//	# HELP dataroom_questions_total Questions answered, by answer status.
//	# TYPE dataroom_questions_total counter
//	dataroom_questions_total{status="answered"} 12
//	dataroom_questions_total{status="no_evidence"} 2
package metrics

import (
	"net/http"
	"time"

	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/index"
	"github.com/poiesic/dataroom/ingestion"
	"github.com/poiesic/dataroom/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dataroom"

// StatusError labels questions that failed before producing a status.
const StatusError = "error"

// Collector records dataroom activity as Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	questions        *prometheus.CounterVec
	questionDuration prometheus.Histogram
	stageDuration    *prometheus.HistogramVec
	subQueries       *prometheus.CounterVec
	subQueryHits     prometheus.Histogram
	citations        prometheus.Counter

	documents      prometheus.Counter
	ingestFailures prometheus.Counter
	chunks         *prometheus.CounterVec
	embedded       prometheus.Counter
	ingestDuration prometheus.Histogram

	durationBuckets []float64
	runtime         bool
}

var (
	_ query.Monitor      = (*Collector)(nil)
	_ ingestion.Observer = (*Collector)(nil)
)

// Option configures a Collector.
type Option func(*Collector)

// WithDurationBuckets sets custom buckets for duration histograms.
func WithDurationBuckets(buckets []float64) Option {
	return func(c *Collector) {
		c.durationBuckets = buckets
	}
}

// WithRegistry registers metrics with an existing Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Collector) {
		c.registry = registry
	}
}

// WithoutRuntimeMetrics skips the Go runtime and process collectors.
func WithoutRuntimeMetrics() Option {
	return func(c *Collector) {
		c.runtime = false
	}
}

// NewCollector creates a collector with its own registry, including Go
// runtime and process metrics unless disabled.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		durationBuckets: []float64{
			0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
		},
		runtime: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.questions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "questions_total",
		Help:      "Questions answered, by answer status.",
	}, []string{"status"})
	c.questionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "question_duration_seconds",
		Help:      "Time to answer a question end to end.",
		Buckets:   c.durationBuckets,
	})
	c.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Time spent per answering stage.",
		Buckets:   c.durationBuckets,
	}, []string{"stage"})
	c.subQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sub_queries_total",
		Help:      "Sub-questions searched, by outcome.",
	}, []string{"outcome"})
	c.subQueryHits = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sub_query_hits",
		Help:      "Chunks retrieved per sub-question.",
		Buckets:   prometheus.LinearBuckets(0, 1, 11),
	})
	c.citations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "citations_total",
		Help:      "Distinct citations returned with answers.",
	})
	c.documents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_ingested_total",
		Help:      "Documents ingested.",
	})
	c.ingestFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_failures_total",
		Help:      "Documents that failed to ingest.",
	})
	c.chunks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_indexed_total",
		Help:      "Chunks added to task indexes, by kind.",
	}, []string{"kind"})
	c.embedded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_embedded_total",
		Help:      "Indexed chunks that received an embedding.",
	})
	c.ingestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_duration_seconds",
		Help:      "Time to ingest one document.",
		Buckets:   c.durationBuckets,
	})

	c.registry.MustRegister(
		c.questions, c.questionDuration, c.stageDuration, c.subQueries, c.subQueryHits, c.citations,
		c.documents, c.ingestFailures, c.chunks, c.embedded, c.ingestDuration,
	)
	if c.runtime {
		c.registry.MustRegister(collectors.NewGoCollector())
		c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return c
}

// Handler returns an HTTP handler for Prometheus scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Start(_, _ string) {}

func (c *Collector) AfterDecomposition(_ []core.SubQuery, elapsed time.Duration) {
	c.stageDuration.WithLabelValues("decomposition").Observe(elapsed.Seconds())
}

func (c *Collector) SubQueryRetrieved(_ core.SubQuery, hits []index.Hit, elapsed time.Duration) {
	c.subQueries.WithLabelValues("retrieved").Inc()
	c.subQueryHits.Observe(float64(len(hits)))
	c.stageDuration.WithLabelValues("retrieval").Observe(elapsed.Seconds())
}

func (c *Collector) SubQueryFailed(_ core.SubQuery, _ error) {
	c.subQueries.WithLabelValues("failed").Inc()
}

func (c *Collector) AfterRetrieval(_ []core.RetrievalResult) {}

func (c *Collector) AfterSynthesis(_ *core.Answer, elapsed time.Duration, _ error) {
	c.stageDuration.WithLabelValues("synthesis").Observe(elapsed.Seconds())
}

func (c *Collector) Finish(answer *core.Answer, elapsed time.Duration, err error) {
	status := StatusError
	if answer != nil && answer.Status != "" {
		status = string(answer.Status)
		c.citations.Add(float64(answer.NumCitations()))
	}
	c.questions.WithLabelValues(status).Inc()
	c.questionDuration.Observe(elapsed.Seconds())
}

// DocumentIngested records a successfully ingested document.
func (c *Collector) DocumentIngested(result *ingestion.Result) {
	c.documents.Inc()
	c.chunks.WithLabelValues(string(core.ChunkKindText)).Add(float64(result.TextChunks))
	c.chunks.WithLabelValues(string(core.ChunkKindField)).Add(float64(result.FieldChunks))
	c.embedded.Add(float64(result.Embedded))
	c.ingestDuration.Observe(result.Duration.Seconds())
}

// IngestFailed records a document that could not be ingested.
func (c *Collector) IngestFailed(_ string, _ error) {
	c.ingestFailures.Inc()
}
