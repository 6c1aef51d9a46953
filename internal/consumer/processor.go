// Package consumer reads accrual events back from Kafka for downstream processing.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/outbox"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record emitted by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	Key           string
	EventType     string
	HouseID       string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *zap.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fetches and handles records until ctx is cancelled. Fetch errors other
// than cancellation are logged and retried.
func (p *Processor) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		msg, err := p.reader.FetchMessage(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case err != nil:
			p.logger.Warn("fetch failed", zap.Error(err))
		default:
			p.process(ctx, msg)
		}
	}
	return ctx.Err()
}

// process hands one record to the handler. Undecodable records are committed
// and dropped; a handler failure leaves the offset uncommitted.
func (p *Processor) process(ctx context.Context, msg kafka.Message) {
	event, err := decodeMessage(msg)
	if err != nil {
		p.logger.Warn("dropping undecodable message",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		recordDecodeError(msg.Topic)
		p.commit(ctx, msg)
		return
	}

	if err := p.handler.Handle(ctx, event); err != nil {
		p.logger.Error("handler failed",
			zap.String("event_type", event.EventType),
			zap.String("house_id", event.HouseID),
			zap.Int64("offset", event.Offset),
			zap.Error(err),
		)
		recordHandlerError(event)
		return
	}

	if p.commit(ctx, msg) {
		recordProcessed(event)
	}
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Error("commit failed",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return false
	}
	return true
}

// wireHeaderLen is the magic byte plus the 4-byte schema id.
const wireHeaderLen = 5

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) < wireHeaderLen {
		return Message{}, fmt.Errorf("record value is %d bytes, shorter than the wire header", len(msg.Value))
	}
	if msg.Value[0] != 0 {
		return Message{}, fmt.Errorf("unknown magic byte 0x%02x", msg.Value[0])
	}

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType, ok := headers[outbox.HeaderEventType]
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		Key:           string(msg.Key),
		EventType:     eventType,
		HouseID:       headers[outbox.HeaderHouseID],
		SchemaSubject: headers[outbox.HeaderSchemaSubject],
		SchemaID:      int(binary.BigEndian.Uint32(msg.Value[1:wireHeaderLen])),
		Payload:       json.RawMessage(append([]byte(nil), msg.Value[wireHeaderLen:]...)),
	}, nil
}
