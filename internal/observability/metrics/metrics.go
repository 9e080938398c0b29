// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "polyglot"

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Chunk metrics
	ChunksProduced prometheus.Counter
	ChunksSilent   prometheus.Counter

	// Inference metrics
	InferenceLatency *prometheus.HistogramVec
	InferenceErrors  *prometheus.CounterVec
	ReorderPending   prometheus.Gauge
	UnitsEmitted     prometheus.Counter

	// Turn metrics
	TurnsFlushed *prometheus.CounterVec
	TurnChars    prometheus.Histogram
	TurnSeconds  prometheus.Histogram

	// Delivery metrics
	DeliveryQueueDepth   prometheus.Gauge
	DeliveryBackpressure prometheus.Counter
	DeliveryReconnects   prometheus.Counter

	// Translation metrics
	TranslateLatency *prometheus.HistogramVec
	TranslateRetries prometheus.Counter
	TranslateFailed  prometheus.Counter

	// Broadcast metrics
	SubscribersActive prometheus.Gauge
	SubscribersDropped prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ChunksProduced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_produced_total",
			Help:      "Total number of audio chunks produced",
		}),
		ChunksSilent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_silent_total",
			Help:      "Total number of chunks classified as silence",
		}),

		InferenceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_seconds",
			Help:      "Per-chunk inference latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"capability"}),
		InferenceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Total number of inference failures",
		}, []string{"capability", "error_type"}),
		ReorderPending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reorder_pending",
			Help:      "Speech units held in the reorder window",
		}),
		UnitsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_emitted_total",
			Help:      "Total number of speech units emitted in order",
		}),

		TurnsFlushed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_flushed_total",
			Help:      "Total number of buffered turns flushed",
		}, []string{"reason"}),
		TurnChars: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_chars",
			Help:      "Character count of flushed turns",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000},
		}),
		TurnSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of flushed turns in seconds",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120},
		}),

		DeliveryQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_queue_depth",
			Help:      "Turns waiting in the delivery queue",
		}),
		DeliveryBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_backpressure_total",
			Help:      "Times a flush blocked on a full delivery queue",
		}),
		DeliveryReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_reconnects_total",
			Help:      "Delivery connection reconnect attempts",
		}),

		TranslateLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translate_latency_seconds",
			Help:      "Translation call latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"provider"}),
		TranslateRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translate_retries_total",
			Help:      "Total number of translation retries",
		}),
		TranslateFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translate_failed_total",
			Help:      "Turns emitted untranslated after retry exhaustion",
		}),

		SubscribersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers_active",
			Help:      "Currently connected display subscribers",
		}),
		SubscribersDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_dropped_total",
			Help:      "Subscribers removed after send failures",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordChunk records a produced chunk, silent or not.
func (m *Metrics) RecordChunk(silent bool) {
	m.ChunksProduced.Inc()
	if silent {
		m.ChunksSilent.Inc()
	}
}

// RecordInference records one capability call for a chunk.
func (m *Metrics) RecordInference(capability string, err error, errType string, latencySeconds float64) {
	m.InferenceLatency.WithLabelValues(capability).Observe(latencySeconds)
	if err != nil {
		m.InferenceErrors.WithLabelValues(capability, errType).Inc()
	}
}

// RecordUnitEmitted records a speech unit released in sequence order.
func (m *Metrics) RecordUnitEmitted() {
	m.UnitsEmitted.Inc()
}

// RecordTurnFlushed records a flushed turn with its trigger.
func (m *Metrics) RecordTurnFlushed(reason string, chars int, durationSeconds float64) {
	m.TurnsFlushed.WithLabelValues(reason).Inc()
	m.TurnChars.Observe(float64(chars))
	m.TurnSeconds.Observe(durationSeconds)
}

// RecordTranslation records a translation call.
func (m *Metrics) RecordTranslation(provider string, latencySeconds float64) {
	m.TranslateLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
