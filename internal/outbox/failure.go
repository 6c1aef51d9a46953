package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const insertDLQ = `INSERT INTO outbox_dlq (house_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
                   VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`

// writeDLQ inserts one outbox_dlq row per message, all sharing reason, in a
// single round trip. The rows become eligible for replay immediately.
func writeDLQ(ctx context.Context, db batchSender, reason string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range messages {
		batch.Queue(insertDLQ, m.HouseID, m.EventID, m.EventType, m.Topic, m.Payload, reason, m.AggregateType, m.AggregateID, m.SchemaSubject, m.PartitionKey)
	}

	results := db.SendBatch(ctx, batch)
	for range messages {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}
