// Package postgres implements the accrual engine's storage on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/domain"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/events"
)

// Repository provides Postgres-backed persistence for activities, wallets, streaks and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// HouseIDForUser returns the user's house, or "" when the user has none or does not exist.
func (r *Repository) HouseIDForUser(ctx context.Context, userID string) (string, error) {
	var houseID *string
	err := r.pool.QueryRow(ctx, `SELECT house_id FROM users WHERE user_id = $1`, userID).Scan(&houseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if houseID == nil {
		return "", nil
	}
	return *houseID, nil
}

// RecordActivity inserts the activity, credits the wallet, appends the wallet
// entry and the outbox event inside a single transaction.
func (r *Repository) RecordActivity(ctx context.Context, activity domain.Activity, event domain.Event) (domain.WalletChange, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.WalletChange{}, err
	}
	defer tx.Rollback(ctx)

	const insertActivity = `INSERT INTO activities (activity_id, user_id, house_id, task_name, duration_seconds, intensity, completion_percentage, points_earned, bonus_multiplier, completed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	if _, err := tx.Exec(ctx, insertActivity,
		activity.ID,
		activity.UserID,
		nullIfEmpty(activity.HouseID),
		activity.TaskName,
		activity.DurationSeconds,
		activity.Intensity,
		activity.CompletionPercentage,
		activity.PointsEarned,
		activity.BonusMultiplier,
		activity.CompletedAt,
	); err != nil {
		return domain.WalletChange{}, err
	}

	var balance int
	err = tx.QueryRow(ctx,
		`UPDATE users SET wallet_balance = wallet_balance + $2, updated_at = NOW() WHERE user_id = $1 RETURNING wallet_balance`,
		activity.UserID, activity.PointsEarned,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WalletChange{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.WalletChange{}, err
	}

	if err := insertLedgerEntry(ctx, tx, domain.LedgerEntry{
		UserID:       activity.UserID,
		Kind:         domain.LedgerCredit,
		Amount:       activity.PointsEarned,
		BalanceAfter: balance,
		ReferenceID:  activity.ID,
		CreatedAt:    activity.CompletedAt,
	}); err != nil {
		return domain.WalletChange{}, err
	}

	if err := insertOutbox(ctx, tx, event); err != nil {
		return domain.WalletChange{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.WalletChange{}, err
	}
	return domain.WalletChange{
		PreviousBalance: balance - activity.PointsEarned,
		PointsEarned:    activity.PointsEarned,
		NewBalance:      balance,
	}, nil
}

const selectUserState = `SELECT user_id, COALESCE(house_id, ''), display_name, wallet_balance, current_streak, longest_streak, last_activity_date, streak_freeze_count
        FROM users WHERE user_id = $1`

// GetUserState loads the wallet and streak columns of a user.
func (r *Repository) GetUserState(ctx context.Context, userID string) (*domain.UserState, error) {
	state, err := scanUserState(r.pool.QueryRow(ctx, selectUserState, userID))
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// UpdateUserState locks the user row, applies mutate and writes the result back
// together with any wallet entry and outbox event it implies.
func (r *Repository) UpdateUserState(ctx context.Context, userID string, mutate domain.UserMutation) (domain.UserState, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.UserState{}, err
	}
	defer tx.Rollback(ctx)

	before, err := scanUserState(tx.QueryRow(ctx, selectUserState+" FOR UPDATE", userID))
	if err != nil {
		return domain.UserState{}, err
	}

	next := before
	if before.Streak.LastActivityDate != nil {
		day := *before.Streak.LastActivityDate
		next.Streak.LastActivityDate = &day
	}

	change, err := mutate(&next)
	if err != nil {
		return before, err
	}
	if !change.Persist {
		return before, tx.Commit(ctx)
	}

	const update = `UPDATE users
           SET wallet_balance = $2,
               current_streak = $3,
               longest_streak = $4,
               last_activity_date = $5,
               streak_freeze_count = $6,
               updated_at = NOW()
         WHERE user_id = $1`

	if _, err := tx.Exec(ctx, update,
		userID,
		next.WalletBalance,
		next.Streak.CurrentStreak,
		next.Streak.LongestStreak,
		dateOrNil(next.Streak.LastActivityDate),
		next.Streak.FreezeCount,
	); err != nil {
		return before, err
	}

	if delta := next.WalletBalance - before.WalletBalance; delta != 0 {
		kind, amount := domain.LedgerCredit, delta
		if delta < 0 {
			kind, amount = domain.LedgerDebit, -delta
		}
		if err := insertLedgerEntry(ctx, tx, domain.LedgerEntry{
			UserID:       userID,
			Kind:         kind,
			Amount:       amount,
			BalanceAfter: next.WalletBalance,
			ReferenceID:  change.LedgerReference,
			CreatedAt:    change.EntryTime(),
		}); err != nil {
			return before, err
		}
	}

	if change.Event != nil {
		if err := insertOutbox(ctx, tx, *change.Event); err != nil {
			return before, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return before, err
	}
	return next, nil
}

// ListActivities returns a user's activities newest first.
func (r *Repository) ListActivities(ctx context.Context, userID string, filter domain.ActivityFilter, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []any{userID}
	query := `SELECT activity_id, user_id, COALESCE(house_id, ''), task_name, duration_seconds, intensity, completion_percentage, points_earned, bonus_multiplier, completed_at
        FROM activities WHERE user_id = $1` + filterClause(filter, &args)

	if cursor != nil {
		args = append(args, cursor.CompletedAt, cursor.ID)
		query += fmt.Sprintf(` AND (completed_at, activity_id) < ($%d, $%d)`, len(args)-1, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY completed_at DESC, activity_id DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.HouseID, &a.TaskName, &a.DurationSeconds, &a.Intensity, &a.CompletionPercentage, &a.PointsEarned, &a.BonusMultiplier, &a.CompletedAt); err != nil {
			return nil, nil, err
		}
		a.CompletedAt = a.CompletedAt.UTC()
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CompletedAt: last.CompletedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// SummarizeActivities totals points, duration and count for the filter.
func (r *Repository) SummarizeActivities(ctx context.Context, userID string, filter domain.ActivityFilter) (domain.ActivitySummary, error) {
	args := []any{userID}
	query := `SELECT COALESCE(SUM(points_earned), 0), COALESCE(SUM(duration_seconds), 0), COUNT(*)
        FROM activities WHERE user_id = $1` + filterClause(filter, &args)

	var summary domain.ActivitySummary
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&summary.TotalPoints, &summary.TotalDuration, &summary.ActivityCount); err != nil {
		return domain.ActivitySummary{}, err
	}
	return summary, nil
}

// TopTasks groups activities by task name ordered by points earned.
func (r *Repository) TopTasks(ctx context.Context, userID string, filter domain.ActivityFilter, limit int) ([]domain.TaskTotal, error) {
	args := []any{userID}
	query := `SELECT task_name, COUNT(*), COALESCE(SUM(points_earned), 0)
        FROM activities WHERE user_id = $1` + filterClause(filter, &args)
	args = append(args, limit)
	query += fmt.Sprintf(` GROUP BY task_name ORDER BY 3 DESC, task_name ASC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TaskTotal, 0, limit)
	for rows.Next() {
		var t domain.TaskTotal
		if err := rows.Scan(&t.TaskName, &t.Count, &t.TotalPoints); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// HouseLeaderboard sums each member's points in [from, to], including members with no activity.
func (r *Repository) HouseLeaderboard(ctx context.Context, houseID string, from, to time.Time) ([]domain.LeaderboardEntry, error) {
	const query = `SELECT u.user_id, u.display_name, COALESCE(SUM(a.points_earned), 0), COUNT(a.activity_id)
        FROM users u
        LEFT JOIN activities a
          ON a.user_id = u.user_id AND a.completed_at >= $2 AND a.completed_at <= $3
       WHERE u.house_id = $1
       GROUP BY u.user_id, u.display_name
       ORDER BY 3 DESC, u.user_id ASC`

	rows, err := r.pool.Query(ctx, query, houseID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.WeeklyPoints, &e.ActivityCount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreateHouse inserts a house and returns its id.
func (r *Repository) CreateHouse(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	if _, err := r.pool.Exec(ctx, `INSERT INTO houses (house_id, name) VALUES ($1, $2)`, id, name); err != nil {
		return "", err
	}
	return id, nil
}

// UpsertUser inserts a user with the given wallet and streak state. For an
// existing user only the house and display name change; wallet and streak
// fields move through the ledger and streak paths alone.
func (r *Repository) UpsertUser(ctx context.Context, state domain.UserState) error {
	const stmt = `INSERT INTO users (user_id, house_id, display_name, wallet_balance, current_streak, longest_streak, last_activity_date, streak_freeze_count)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (user_id) DO UPDATE SET
            house_id = EXCLUDED.house_id,
            display_name = EXCLUDED.display_name,
            updated_at = NOW()`

	_, err := r.pool.Exec(ctx, stmt,
		state.UserID,
		nullIfEmpty(state.HouseID),
		state.DisplayName,
		state.WalletBalance,
		state.Streak.CurrentStreak,
		state.Streak.LongestStreak,
		dateOrNil(state.Streak.LastActivityDate),
		state.Streak.FreezeCount,
	)
	return err
}

func scanUserState(row pgx.Row) (domain.UserState, error) {
	var (
		state   domain.UserState
		lastDay *time.Time
	)
	err := row.Scan(
		&state.UserID,
		&state.HouseID,
		&state.DisplayName,
		&state.WalletBalance,
		&state.Streak.CurrentStreak,
		&state.Streak.LongestStreak,
		&lastDay,
		&state.Streak.FreezeCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserState{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.UserState{}, err
	}
	if lastDay != nil {
		day := domain.UTCDay(*lastDay)
		state.Streak.LastActivityDate = &day
	}
	return state, nil
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, entry domain.LedgerEntry) error {
	const stmt = `INSERT INTO wallet_entries (entry_id, user_id, kind, amount, balance_after, reference_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err := tx.Exec(ctx, stmt,
		uuid.NewString(),
		entry.UserID,
		string(entry.Kind),
		entry.Amount,
		entry.BalanceAfter,
		entry.ReferenceID,
		entry.CreatedAt,
	)
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, event domain.Event) error {
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[event.Type]
	if !ok {
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	// A repeated dedupe key means the event is already queued.
	const stmt = `INSERT INTO outbox (house_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		event.HouseID,
		meta.AggregateType,
		event.AggregateID,
		event.Type,
		meta.Topic,
		meta.SchemaSubject,
		event.UserID,
		body,
		nullIfEmpty(event.DedupeKey),
	)
	return err
}

func filterClause(filter domain.ActivityFilter, args *[]any) string {
	clause := ""
	if !filter.From.IsZero() {
		*args = append(*args, filter.From)
		clause += fmt.Sprintf(` AND completed_at >= $%d`, len(*args))
	}
	if !filter.To.IsZero() {
		*args = append(*args, filter.To)
		clause += fmt.Sprintf(` AND completed_at <= $%d`, len(*args))
	}
	return clause
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func dateOrNil(day *time.Time) any {
	if day == nil {
		return nil
	}
	return day.UTC().Format(time.DateOnly)
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityLogged: {
		AggregateType: "activity",
		Topic:         "ergolife_activity_events",
		SchemaSubject: "ergolife_activity_events-value",
	},
	events.TypeStreakAdvanced: {
		AggregateType: "user",
		Topic:         "ergolife_streak_events",
		SchemaSubject: "ergolife_streak_events-value",
	},
	events.TypeStreakFreezePurchased: {
		AggregateType: "user",
		Topic:         "ergolife_wallet_events",
		SchemaSubject: "ergolife_wallet_events-value",
	},
}

// Topics lists the Kafka topics the outbox publishes to.
func Topics() []string {
	return []string{"ergolife_activity_events", "ergolife_streak_events", "ergolife_wallet_events"}
}
