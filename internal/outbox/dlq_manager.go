package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const maxBackoff = time.Hour

// DLQManager replays dead-lettered events into the outbox. Entries that keep
// failing are rescheduled with exponential backoff and quarantined once they
// reach maxRetries.
type DLQManager struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager. Non-positive limits fall back to
// five retries and a one minute base delay.
func NewDLQManager(pool *pgxpool.Pool, logger *zap.Logger, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DLQManager{pool: pool, logger: logger.Named("dlq"), maxRetries: maxRetries, baseDelay: baseDelay}
}

// Run calls RunOnce every interval until ctx is cancelled.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		switch handled, err := m.RunOnce(ctx, batchSize); {
		case err != nil && !errors.Is(err, context.Canceled):
			m.logger.Error("dlq pass failed", zap.Error(err))
		case handled > 0:
			m.logger.Info("dlq pass finished", zap.Int("handled", handled))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

const dueEntries = `SELECT dlq_id
                      FROM outbox_dlq
                     WHERE quarantined_at IS NULL
                       AND (next_retry_at IS NULL OR next_retry_at <= NOW())
                     ORDER BY created_at
                     LIMIT $1`

// RunOnce handles up to batchSize due entries and returns how many were
// requeued, rescheduled or quarantined. Entries locked by another manager
// are skipped.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := m.pool.Query(ctx, dueEntries, batchSize)
	if err != nil {
		return 0, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, err
	}

	var errs error
	handled := 0
	for _, id := range ids {
		ok, err := m.handle(ctx, id)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("dlq entry %d: %w", id, err))
			continue
		}
		if ok {
			handled++
		}
	}

	refreshBacklog(ctx, m.pool)
	return handled, errs
}

const lockEntry = `SELECT dlq_id, house_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
                     FROM outbox_dlq
                    WHERE dlq_id = $1 AND quarantined_at IS NULL
                      FOR UPDATE SKIP LOCKED`

// handle processes one entry under a row lock. It reports false when the
// entry was already taken or resolved elsewhere.
func (m *DLQManager) handle(ctx context.Context, id int64) (bool, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var e dlqEntry
	err = tx.QueryRow(ctx, lockEntry, id).Scan(
		&e.ID, &e.HouseID, &e.EventID, &e.EventType, &e.Topic, &e.Payload, &e.Reason,
		&e.AggregateType, &e.AggregateID, &e.SchemaSubject, &e.PartitionKey, &e.RetryCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	outcome, err := m.resolve(ctx, tx, e)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	recordOutcome(e, outcome)
	if outcome == outcomeQuarantined {
		m.logger.Warn("dlq entry quarantined",
			zap.Int64("dlq_id", e.ID),
			zap.String("event_type", e.EventType),
			zap.String("house_id", e.HouseID),
			zap.Int("retries", e.RetryCount),
		)
	}
	return true, nil
}

func (m *DLQManager) resolve(ctx context.Context, tx pgx.Tx, e dlqEntry) (string, error) {
	if e.RetryCount >= m.maxRetries {
		_, err := tx.Exec(ctx,
			`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $2 WHERE dlq_id = $1`,
			e.ID, fmt.Sprintf("retry limit %d reached", m.maxRetries),
		)
		return outcomeQuarantined, err
	}

	// The replay insert runs in a savepoint so its failure can still be
	// recorded against the entry.
	sp, err := tx.Begin(ctx)
	if err != nil {
		return "", err
	}
	if replayErr := replay(ctx, sp, e); replayErr != nil {
		_ = sp.Rollback(ctx)
		_, err := tx.Exec(ctx,
			`UPDATE outbox_dlq
                SET retry_count = retry_count + 1,
                    last_attempt_at = NOW(),
                    next_retry_at = NOW() + $2::interval,
                    reason = $3
              WHERE dlq_id = $1`,
			e.ID, m.backoffDelay(e.RetryCount+1), replayErr.Error(),
		)
		return outcomeRescheduled, err
	}
	if err := sp.Commit(ctx); err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, e.ID)
	return outcomeRequeued, err
}

// backoffDelay doubles baseDelay for every attempt after the first, capped
// at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := m.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff || delay <= 0 {
			return maxBackoff
		}
	}
	return min(delay, maxBackoff)
}

// replay appends the entry to the outbox as a new unpublished row.
func replay(ctx context.Context, tx pgx.Tx, e dlqEntry) error {
	if e.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", e.ID)
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (house_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.HouseID, e.AggregateType, e.AggregateID, e.EventType, e.Topic, e.SchemaSubject, e.PartitionKey, e.Payload,
	)
	return err
}

type dlqEntry struct {
	ID            int64
	HouseID       string
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}
