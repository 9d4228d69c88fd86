// Package metrics exports answer request telemetry to Prometheus.
package metrics

import (
	"time"

	"github.com/poiesic/kbassist/answer"
	"github.com/poiesic/kbassist/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kbassist"

// Monitor implements answer.Monitor with Prometheus collectors.
type Monitor struct {
	requests         prometheus.Counter
	requestErrors    *prometheus.CounterVec
	requestLatency   prometheus.Histogram
	retrievals       *prometheus.CounterVec
	retrievalLatency *prometheus.HistogramVec
	retrievedCount   *prometheus.HistogramVec
	fusedCount       prometheus.Histogram
	contextChars     prometheus.Histogram
	contextBlocks    prometheus.Histogram
	inferenceLatency *prometheus.HistogramVec
	persistFailures  prometheus.Counter
}

var _ answer.Monitor = (*Monitor)(nil)

// NewMonitor registers the collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMonitor(reg prometheus.Registerer) *Monitor {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Monitor{
		requests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "requests_total",
			Help:      "Questions received",
		}),
		requestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "errors_total",
			Help:      "Questions that failed, by error class",
		}, []string{"reason"}),
		requestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "latency_seconds",
			Help:      "End to end answer latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		retrievals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "total",
			Help:      "Retriever invocations by kind and outcome",
		}, []string{"kind", "status"}),
		retrievalLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "latency_seconds",
			Help:      "Retriever latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1},
		}, []string{"kind"}),
		retrievedCount: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "fragments",
			Help:      "Fragments returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}, []string{"kind"}),
		fusedCount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fusion",
			Name:      "fragments",
			Help:      "Fragments left after fusion and deduplication",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		contextChars: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "context",
			Name:      "characters",
			Help:      "Characters of context sent to the model",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 8),
		}),
		contextBlocks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "context",
			Name:      "blocks",
			Help:      "Fragments included in the context",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),
		inferenceLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "latency_seconds",
			Help:      "Language model latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"status"}),
		persistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "persist_failures_total",
			Help:      "Answers returned without their turn being recorded",
		}),
	}
}

func (m *Monitor) Start(_ string) {
	m.requests.Inc()
}

func (m *Monitor) RetrievalDone(kind core.SourceKind, count int, degraded bool, elapsed time.Duration) {
	status := "ok"
	if degraded {
		status = "degraded"
	}
	m.retrievals.WithLabelValues(kind.String(), status).Inc()
	m.retrievalLatency.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
	m.retrievedCount.WithLabelValues(kind.String()).Observe(float64(count))
}

func (m *Monitor) Fused(count int) {
	m.fusedCount.Observe(float64(count))
}

func (m *Monitor) Budgeted(included, chars int) {
	m.contextBlocks.Observe(float64(included))
	m.contextChars.Observe(float64(chars))
}

func (m *Monitor) InferenceDone(elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.inferenceLatency.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Monitor) PersistFailed(_ error) {
	m.persistFailures.Inc()
}

func (m *Monitor) Finish(elapsed time.Duration, err error) {
	m.requestLatency.Observe(elapsed.Seconds())
	if err != nil {
		m.requestErrors.WithLabelValues(Reason(err)).Inc()
	}
}
