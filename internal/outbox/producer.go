package outbox

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption customises a KafkaProducer.
type ProducerOption func(*KafkaProducer)

// WithBatchTimeout bounds how long a writer waits to fill a batch. The
// dispatcher writes synchronously, so this is the floor on publish latency.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(p *KafkaProducer) { p.batchTimeout = d }
}

// WithRequiredAcks overrides the acknowledgement level (default all replicas).
func WithRequiredAcks(acks kafka.RequiredAcks) ProducerOption {
	return func(p *KafkaProducer) { p.acks = acks }
}

// KafkaProducer keeps one synchronous writer per topic. Records are hashed by
// key, which is the user id, so a user's events stay ordered on one partition.
type KafkaProducer struct {
	addr         net.Addr
	batchTimeout time.Duration
	acks         kafka.RequiredAcks

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	closed  bool
}

// NewKafkaProducer creates a producer for brokers.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) *KafkaProducer {
	p := &KafkaProducer{
		addr:         kafka.TCP(brokers...),
		batchTimeout: 10 * time.Millisecond,
		acks:         kafka.RequireAll,
		writers:      make(map[string]*kafka.Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ErrProducerClosed is returned by WriteMessages after Close.
var ErrProducerClosed = errors.New("outbox: producer closed")

// WriteMessages publishes msgs to topic and blocks until they are acknowledged.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	w, err := p.writer(topic)
	if err != nil {
		return err
	}

	started := time.Now()
	err = w.WriteMessages(ctx, msgs...)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	produceDuration.WithLabelValues(topic, outcome).Observe(time.Since(started).Seconds())
	return err
}

func (p *KafkaProducer) writer(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProducerClosed
	}
	if w, ok := p.writers[topic]; ok {
		return w, nil
	}
	w := &kafka.Writer{
		Addr:                   p.addr,
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           p.acks,
		Compression:            kafka.Snappy,
		BatchTimeout:           p.batchTimeout,
		AllowAutoTopicCreation: false,
	}
	p.writers[topic] = w
	return w, nil
}

// Close flushes and closes every writer. Later writes fail with
// ErrProducerClosed.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs error
	for topic, w := range p.writers {
		errs = errors.Join(errs, w.Close())
		delete(p.writers, topic)
	}
	return errs
}
