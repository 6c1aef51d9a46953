package outbox

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "ergolife"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Outbox events acknowledged by Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbox",
		Name:      "publish_failures_total",
		Help:      "Outbox events that could not be published.",
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbox",
		Name:      "dead_lettered_total",
		Help:      "Outbox events moved to outbox_dlq, by topic.",
	}, []string{"topic"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of a non-empty dispatch pass.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	produceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "kafka",
		Name:      "produce_duration_seconds",
		Help:      "Latency of synchronous Kafka writes, by topic and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic", "outcome"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, dlqCounter, batchDuration, produceDuration)
}
