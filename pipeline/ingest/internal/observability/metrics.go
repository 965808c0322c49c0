package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "nsgflow"

// Drop reasons recorded on records_dropped_total
const (
	DropParse    = "parse"
	DropOverflow = "overflow"
)

// Metrics holds the pipeline's Prometheus collectors. Methods on a nil
// *Metrics are no-ops.
type Metrics struct {
	registry *prometheus.Registry

	chunksEmitted       *prometheus.CounterVec
	chunksSplit         prometheus.Counter
	recordsDenormalized prometheus.Counter
	recordsDropped      *prometheus.CounterVec
	batchesSent         *prometheus.CounterVec
	sendErrors          *prometheus.CounterVec
	bytesSent           *prometheus.CounterVec
	invocationDuration  *prometheus.HistogramVec
	deadLetters         *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.chunksEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "chunks_emitted_total",
		Help:      "Chunks published to a stage topic",
	}, []string{"topic"})

	m.chunksSplit = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "chunks_split_total",
		Help:      "Oversized chunks subdivided on record boundaries",
	})

	m.recordsDenormalized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "records_denormalized_total",
		Help:      "Flow tuples turned into denormalized records",
	})

	m.recordsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "records_dropped_total",
		Help:      "Records dropped before transmission",
	}, []string{"reason"})

	m.batchesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "batches_sent_total",
		Help:      "Payloads accepted by the sink",
	}, []string{"sink"})

	m.sendErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "send_errors_total",
		Help:      "Payloads the sink failed to accept",
	}, []string{"sink"})

	m.bytesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "bytes_sent_total",
		Help:      "Payload bytes accepted by the sink",
	}, []string{"sink"})

	m.invocationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "invocation_duration_seconds",
		Help:      "Duration of stage invocations",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"stage", "status"})

	m.deadLetters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "dead_letters_total",
		Help:      "Messages moved to the dead-letter topic",
	}, []string{"stage", "kind"})

	m.registry.MustRegister(
		m.chunksEmitted,
		m.chunksSplit,
		m.recordsDenormalized,
		m.recordsDropped,
		m.batchesSent,
		m.sendErrors,
		m.bytesSent,
		m.invocationDuration,
		m.deadLetters,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ChunksEmitted(topic string, n int) {
	if m == nil {
		return
	}
	m.chunksEmitted.WithLabelValues(topic).Add(float64(n))
}

func (m *Metrics) ChunkSplit() {
	if m == nil {
		return
	}
	m.chunksSplit.Inc()
}

func (m *Metrics) RecordsDenormalized(n int) {
	if m == nil {
		return
	}
	m.recordsDenormalized.Add(float64(n))
}

func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.recordsDropped.WithLabelValues(reason).Inc()
}

// BatchSent records one payload handed to sink; err marks it failed
func (m *Metrics) BatchSent(sink string, bytes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sendErrors.WithLabelValues(sink).Inc()
		return
	}
	m.batchesSent.WithLabelValues(sink).Inc()
	m.bytesSent.WithLabelValues(sink).Add(float64(bytes))
}

// ObserveInvocation records the duration since start
func (m *Metrics) ObserveInvocation(stage string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.invocationDuration.WithLabelValues(stage, status).Observe(time.Since(start).Seconds())
}

func (m *Metrics) DeadLettered(stage, kind string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(stage, kind).Inc()
}
