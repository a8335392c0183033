// Package metrics exposes Prometheus collectors for the extraction pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taxgest"

var (
	CapabilityCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capability_calls_total",
		Help:      "Extraction capability calls by purpose and outcome.",
	}, []string{"purpose", "outcome"})

	CapabilityLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "capability_call_seconds",
		Help:      "Extraction capability call latency.",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
	}, []string{"purpose"})

	Documents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_total",
		Help:      "Documents processed by selection path and outcome.",
	}, []string{"path", "outcome"})

	ChunksPerDocument = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "chunks_per_document",
		Help:      "Extraction calls issued per document.",
		Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "job_queue_depth",
		Help:      "Jobs waiting for a worker.",
	})

	Jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Ingestion jobs by terminal status.",
	}, []string{"status"})
)

// ObserveCall records one capability call.
func ObserveCall(purpose string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CapabilityCalls.WithLabelValues(purpose, outcome).Inc()
	CapabilityLatency.WithLabelValues(purpose).Observe(d.Seconds())
}

// ObserveDocument records a finished pipeline run.
func ObserveDocument(path string, chunks int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	Documents.WithLabelValues(path, outcome).Inc()
	if err == nil {
		ChunksPerDocument.Observe(float64(chunks))
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
