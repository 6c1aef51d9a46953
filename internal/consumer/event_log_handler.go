package consumer

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// EventLogHandler appends consumed events to ergolife_event_log. Redelivered
// records are ignored by their (topic, partition, offset) key.
type EventLogHandler struct {
	db Execer
}

// NewEventLogHandler constructs a handler backed by db.
func NewEventLogHandler(db Execer) *EventLogHandler {
	return &EventLogHandler{db: db}
}

// Handle stores the event payload.
func (h *EventLogHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.db.Exec(ctx,
		`INSERT INTO ergolife_event_log (topic, partition, record_offset, event_type, house_id, schema_subject, schema_id, partition_key, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.EventType,
		msg.HouseID,
		msg.SchemaSubject,
		msg.SchemaID,
		msg.Key,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}
