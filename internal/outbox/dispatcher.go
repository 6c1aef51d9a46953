// Package outbox delivers events recorded alongside wallet and streak changes to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kafka header keys set on every published record.
const (
	HeaderEventType     = "event_type"
	HeaderHouseID       = "house_id"
	HeaderSchemaSubject = "schema_subject"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Message is a claimed outbox row.
type Message struct {
	EventID       int64
	HouseID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// rejected groups messages that share one delivery failure.
type rejected struct {
	messages []Message
	reason   string
}

// Dispatcher polls the outbox, publishes claimed rows per topic and settles
// each batch in a single transaction: delivered rows are marked published and
// failed rows move to outbox_dlq together with that mark.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	registry     schemaRegistrar
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
	claimLease   time.Duration
	now          func() time.Time

	mu        sync.Mutex
	schemaIDs map[string]int

	done chan struct{}
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClaimLease sets how long a claimed row stays hidden from other
// dispatchers. It must exceed the longest expected publish; rows left by a
// dispatcher that died mid-batch are picked up again once it expires.
func WithClaimLease(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.claimLease = d
		}
	}
}

// NewDispatcher constructs a Dispatcher. The claim lease defaults to one minute.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, logger *zap.Logger, pollInterval time.Duration, batchSize int, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	d := &Dispatcher{
		pool:         pool,
		producer:     producer,
		registry:     registry,
		logger:       logger.Named("outbox"),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		claimLease:   time.Minute,
		now:          func() time.Time { return time.Now().UTC() },
		schemaIDs:    make(map[string]int),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start polls until ctx is cancelled. Run it in its own goroutine and use
// Wait to block until the loop has exited.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox batch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start returns.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	started := time.Now()

	claimed, err := d.claim(ctx)
	if err != nil || len(claimed) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(started).Seconds()) }()

	delivered, failures := d.deliver(ctx, claimed)
	if err := d.settle(ctx, claimed, failures); err != nil {
		return err
	}

	deliveredCounter.Add(float64(len(delivered)))
	for _, f := range failures {
		failedCounter.Add(float64(len(f.messages)))
		for _, msg := range f.messages {
			dlqCounter.WithLabelValues(msg.Topic).Inc()
		}
		d.logger.Warn("outbox events routed to dlq",
			zap.Int("events", len(f.messages)),
			zap.String("topic", f.messages[0].Topic),
			zap.String("reason", f.reason),
		)
	}
	return nil
}

const claimQuery = `SELECT event_id, house_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
                      FROM outbox
                     WHERE published_at IS NULL
                       AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))
                     ORDER BY event_id
                     LIMIT $1
                       FOR UPDATE SKIP LOCKED`

// claim locks the oldest unpublished rows that are unclaimed or whose lease
// has expired, and stamps claimed_at. Other dispatchers skip the rows while
// the row lock is held and, after commit, until the lease runs out.
func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, claimQuery, d.batchSize, d.claimLease.Seconds())
	if err != nil {
		return nil, err
	}
	claimed, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.EventID, &m.HouseID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Topic, &m.SchemaSubject, &m.PartitionKey, &m.Payload)
		return m, err
	})
	if err != nil || len(claimed) == 0 {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(claimed)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return claimed, nil
}

// deliver publishes messages grouped by topic in first-seen order. A message
// whose schema cannot be resolved fails alone; a failed topic write fails
// only that topic's group.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) ([]Message, []rejected) {
	var topics []string
	var failures []rejected
	groups := make(map[string][]Message)
	records := make(map[string][]kafka.Message)

	for _, msg := range messages {
		schemaID, err := d.schemaID(ctx, msg)
		if err != nil {
			failures = append(failures, rejected{messages: []Message{msg}, reason: err.Error()})
			continue
		}
		if _, seen := groups[msg.Topic]; !seen {
			topics = append(topics, msg.Topic)
		}
		groups[msg.Topic] = append(groups[msg.Topic], msg)
		records[msg.Topic] = append(records[msg.Topic], d.record(msg, schemaID))
	}

	var delivered []Message
	for _, topic := range topics {
		if err := d.producer.WriteMessages(ctx, topic, records[topic]...); err != nil {
			failures = append(failures, rejected{
				messages: groups[topic],
				reason:   fmt.Sprintf("%v (topic=%s)", err, topic),
			})
			continue
		}
		delivered = append(delivered, groups[topic]...)
	}
	return delivered, failures
}

func (d *Dispatcher) record(msg Message, schemaID int) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: encodeWireFormat(schemaID, msg.Payload),
		Time:  d.now(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(msg.EventType)},
			{Key: HeaderHouseID, Value: []byte(msg.HouseID)},
			{Key: HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
		},
	}
}

// schemaID resolves the registry id for the message's subject, caching by
// subject and schema text.
func (d *Dispatcher) schemaID(ctx context.Context, msg Message) (int, error) {
	entry, ok := schemaCatalog[msg.EventType]
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}

	key := msg.SchemaSubject + "\x00" + entry.Schema
	d.mu.Lock()
	id, cached := d.schemaIDs[key]
	d.mu.Unlock()
	if cached {
		return id, nil
	}

	id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, entry.Schema)
	if err != nil {
		return 0, fmt.Errorf("resolve schema %s: %w", msg.SchemaSubject, err)
	}
	d.mu.Lock()
	d.schemaIDs[key] = id
	d.mu.Unlock()
	return id, nil
}

// settle records failures in the DLQ and marks every claimed row published
// in one transaction, so a row is never both replayable and dead-lettered.
func (d *Dispatcher) settle(ctx context.Context, claimed []Message, failures []rejected) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, f := range failures {
		if err := writeDLQ(ctx, tx, f.reason, f.messages...); err != nil {
			return fmt.Errorf("write dlq: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(claimed)); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return tx.Commit(ctx)
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, len(messages))
	for i, msg := range messages {
		ids[i] = msg.EventID
	}
	return ids
}

// encodeWireFormat prefixes payload with the Confluent magic byte and the
// big-endian schema id.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	return append(frame, payload...)
}
