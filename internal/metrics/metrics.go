// Package metrics exposes Prometheus instrumentation for the ingestion and
// question-answering pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestAttempts counts ingestion attempts by terminal outcome
	// ("completed", "failed", "orphaned").
	IngestAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codequery",
		Subsystem: "ingest",
		Name:      "attempts_total",
		Help:      "Ingestion attempts by terminal outcome.",
	}, []string{"outcome"})

	// IngestDuration observes the wall time of whole ingestion attempts.
	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codequery",
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Wall time of ingestion attempts.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	// ChunksEmbedded counts chunks that made it through embedding.
	ChunksEmbedded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codequery",
		Subsystem: "ingest",
		Name:      "chunks_embedded_total",
		Help:      "Chunks successfully embedded and persisted.",
	})

	// EmbedBatchesFailed counts embedding batches that were dropped.
	EmbedBatchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codequery",
		Subsystem: "ingest",
		Name:      "embed_batches_failed_total",
		Help:      "Embedding batches dropped after a provider failure.",
	})

	// FilesSkipped counts files dropped because their embedding batch failed.
	FilesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codequery",
		Subsystem: "ingest",
		Name:      "files_skipped_total",
		Help:      "Files whose chunks were dropped with a failed batch.",
	})

	// Questions counts answered questions by outcome
	// ("answered", "no_context", "not_ready", "error").
	Questions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codequery",
		Subsystem: "qa",
		Name:      "questions_total",
		Help:      "Questions by outcome.",
	}, []string{"outcome"})

	// QuestionDuration observes end-to-end question latency.
	QuestionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codequery",
		Subsystem: "qa",
		Name:      "question_duration_seconds",
		Help:      "End-to-end question latency.",
		Buckets:   prometheus.DefBuckets,
	})
)
