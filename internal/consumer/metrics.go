package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultHandled      = "handled"
	resultHandlerError = "handler_error"
	resultUndecodable  = "undecodable"
)

var (
	consumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ergolife",
		Subsystem: "consumer",
		Name:      "records_total",
		Help:      "Kafka records seen by the consumer, by topic, event type and result.",
	}, []string{"topic", "event_type", "result"})

	recordAge = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ergolife",
		Subsystem: "consumer",
		Name:      "record_age_seconds",
		Help:      "Time between a record being produced and being handled.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(consumedTotal, recordAge)
}

func recordProcessed(msg Message) {
	consumedTotal.WithLabelValues(msg.Topic, msg.EventType, resultHandled).Inc()
	if !msg.Timestamp.IsZero() {
		recordAge.WithLabelValues(msg.Topic).Observe(time.Since(msg.Timestamp).Seconds())
	}
}

func recordHandlerError(msg Message) {
	consumedTotal.WithLabelValues(msg.Topic, msg.EventType, resultHandlerError).Inc()
}

// Undecodable records have no trustworthy event type.
func recordDecodeError(topic string) {
	consumedTotal.WithLabelValues(topic, "", resultUndecodable).Inc()
}
