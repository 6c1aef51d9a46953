// Package domain defines the chore accrual engine: points, wallet, streaks and the read models built on them.
package domain

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/events"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/observability"
)

const (
	// StreakFreezeCost is the wallet price of one streak freeze.
	StreakFreezeCost = 500

	defaultPageLimit = 20
	maxPageLimit     = 50
	topTaskLimit     = 5
)

// Event is a domain event appended to the outbox in the same transaction as
// the change it describes. DedupeKey, when set, is unique per logical event.
type Event struct {
	Type        string
	AggregateID string
	UserID      string
	HouseID     string
	DedupeKey   string
	Payload     any
}

// UserChange tells the store what to do with a mutated user record.
// LedgerReference and At are recorded on the wallet entry written when the
// balance changed; a zero At falls back to the store's clock.
type UserChange struct {
	Persist         bool
	LedgerReference string
	At              time.Time
	Event           *Event
}

// EntryTime is the timestamp for the wallet entry the change produces.
func (c UserChange) EntryTime() time.Time {
	if c.At.IsZero() {
		return time.Now().UTC()
	}
	return c.At.UTC().Truncate(time.Microsecond)
}

// UserMutation inspects and modifies the locked user state.
type UserMutation func(state *UserState) (UserChange, error)

// MembershipLookup resolves a user's current house. An empty id means no membership.
type MembershipLookup interface {
	HouseIDForUser(ctx context.Context, userID string) (string, error)
}

// Ledger performs the atomic activity insert and wallet credit.
type Ledger interface {
	RecordActivity(ctx context.Context, activity Activity, event Event) (WalletChange, error)
}

// UserStateStore reads and atomically read-modify-writes the per-user row.
type UserStateStore interface {
	GetUserState(ctx context.Context, userID string) (*UserState, error)
	UpdateUserState(ctx context.Context, userID string, mutate UserMutation) (UserState, error)
}

// ActivityReader serves history and aggregation queries.
type ActivityReader interface {
	ListActivities(ctx context.Context, userID string, filter ActivityFilter, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	SummarizeActivities(ctx context.Context, userID string, filter ActivityFilter) (ActivitySummary, error)
	TopTasks(ctx context.Context, userID string, filter ActivityFilter, limit int) ([]TaskTotal, error)
	HouseLeaderboard(ctx context.Context, houseID string, from, to time.Time) ([]LeaderboardEntry, error)
}

// Repository captures every persistence operation the service needs.
type Repository interface {
	MembershipLookup
	Ledger
	UserStateStore
	ActivityReader
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the logger used to report swallowed failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service orchestrates chore logging and the related read models.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogActivityResult composes the committed activity with wallet and streak snapshots.
type LogActivityResult struct {
	Activity Activity
	Wallet   WalletChange
	// Streak is nil when the post-commit streak update failed.
	Streak *StreakOutcome
}

// LogActivity validates the chore, credits the wallet atomically with the
// activity insert and then advances the streak.
func (s *Service) LogActivity(ctx context.Context, input LogActivityInput) (*LogActivityResult, error) {
	start := time.Now()
	defer func() { observability.ObserveLogActivity(time.Since(start)) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}

	houseID, err := s.repo.HouseIDForUser(ctx, input.UserID)
	if err != nil {
		return nil, &TransactionError{Op: "lookup house membership", Err: err}
	}
	if houseID == "" {
		return nil, ErrNotInHouse
	}

	points := CalculatePoints(input.DurationSeconds, input.Intensity, input.CompletionPercentage)
	// Stored timestamps have microsecond precision.
	now := s.now().UTC().Truncate(time.Microsecond)
	activity := Activity{
		ID:                   uuid.NewString(),
		UserID:               input.UserID,
		HouseID:              houseID,
		TaskName:             strings.TrimSpace(input.TaskName),
		DurationSeconds:      input.DurationSeconds,
		Intensity:            input.Intensity,
		CompletionPercentage: input.CompletionPercentage,
		PointsEarned:         points.Points,
		BonusMultiplier:      points.BonusMultiplier,
		CompletedAt:          now,
	}

	wallet, err := s.repo.RecordActivity(ctx, activity, Event{
		Type:        events.TypeActivityLogged,
		AggregateID: activity.ID,
		UserID:      activity.UserID,
		HouseID:     houseID,
		DedupeKey:   activity.ID + ":" + events.TypeActivityLogged,
		Payload: events.ActivityLogged{
			ActivityID:      activity.ID,
			UserID:          activity.UserID,
			HouseID:         houseID,
			TaskName:        activity.TaskName,
			DurationSeconds: activity.DurationSeconds,
			Intensity:       activity.Intensity,
			PointsEarned:    activity.PointsEarned,
			BonusMultiplier: activity.BonusMultiplier,
			CompletedAt:     activity.CompletedAt,
		},
	})
	if err != nil {
		return nil, &TransactionError{Op: "record activity", Err: err}
	}
	observability.RecordActivityLogged(activity.PointsEarned, activity.BonusMultiplier > BaseMultiplier, now)

	result := &LogActivityResult{Activity: activity, Wallet: wallet}

	outcome, err := s.advanceStreak(ctx, input.UserID, now)
	if err != nil {
		observability.RecordStreakFailure()
		s.logger.Warn("streak update skipped after activity commit",
			zap.String("user_id", input.UserID),
			zap.String("activity_id", activity.ID),
			zap.Error(err),
		)
		return result, nil
	}
	observability.RecordStreakTransition(string(outcome.Message))
	result.Streak = outcome
	return result, nil
}

func (s *Service) advanceStreak(ctx context.Context, userID string, now time.Time) (*StreakOutcome, error) {
	var outcome StreakOutcome
	_, err := s.repo.UpdateUserState(ctx, userID, func(state *UserState) (UserChange, error) {
		outcome = AdvanceStreak(state.Streak, now)
		if !outcome.Persist {
			return UserChange{}, nil
		}
		state.Streak = outcome.After
		return UserChange{
			Persist: true,
			Event: &Event{
				Type:        events.TypeStreakAdvanced,
				AggregateID: userID,
				UserID:      userID,
				HouseID:     state.HouseID,
				DedupeKey:   userID + ":" + outcome.After.LastActivityDate.Format(time.DateOnly) + ":" + events.TypeStreakAdvanced,
				Payload: events.StreakAdvanced{
					UserID:            userID,
					HouseID:           state.HouseID,
					PreviousStreak:    outcome.Before.CurrentStreak,
					CurrentStreak:     outcome.After.CurrentStreak,
					LongestStreak:     outcome.After.LongestStreak,
					StreakFreezeCount: outcome.After.FreezeCount,
					Message:           string(outcome.Message),
					ActivityDate:      *outcome.After.LastActivityDate,
				},
			},
		}, nil
	})
	if err != nil {
		return nil, &StreakUpdateError{UserID: userID, Err: err}
	}
	return &outcome, nil
}

// FreezePurchase is the wallet and freeze state after buying a streak freeze.
type FreezePurchase struct {
	WalletBalance int
	FreezeCount   int
}

// PurchaseStreakFreeze spends StreakFreezeCost points on one streak freeze.
func (s *Service) PurchaseStreakFreeze(ctx context.Context, userID string) (*FreezePurchase, error) {
	now := s.now().UTC()
	state, err := s.repo.UpdateUserState(ctx, userID, func(state *UserState) (UserChange, error) {
		if state.Streak.FreezeCount >= MaxStreakFreeze {
			return UserChange{}, ErrMaxFreezeReached
		}
		balance, err := Debit(state.WalletBalance, StreakFreezeCost)
		if err != nil {
			return UserChange{}, err
		}
		state.WalletBalance = balance
		state.Streak.FreezeCount++
		return UserChange{
			Persist:         true,
			LedgerReference: "streak_freeze",
			At:              now,
			Event: &Event{
				Type:        events.TypeStreakFreezePurchased,
				AggregateID: userID,
				UserID:      userID,
				HouseID:     state.HouseID,
				Payload: events.StreakFreezePurchased{
					UserID:            userID,
					HouseID:           state.HouseID,
					Cost:              StreakFreezeCost,
					WalletBalance:     state.WalletBalance,
					StreakFreezeCount: state.Streak.FreezeCount,
					PurchasedAt:       now,
				},
			},
		}, nil
	})
	if err != nil {
		return nil, classifyStoreError("purchase streak freeze", err)
	}
	return &FreezePurchase{WalletBalance: state.WalletBalance, FreezeCount: state.Streak.FreezeCount}, nil
}

// Profile returns the caller's wallet and streak state.
func (s *Service) Profile(ctx context.Context, userID string) (*UserState, error) {
	state, err := s.repo.GetUserState(ctx, userID)
	if err != nil {
		return nil, classifyStoreError("load profile", err)
	}
	return state, nil
}

// ActivityPage is a page of history plus the summary of the whole filter.
type ActivityPage struct {
	Items      []Activity
	NextCursor *Cursor
	Summary    ActivitySummary
}

// ListActivities returns the caller's history newest first.
func (s *Service) ListActivities(ctx context.Context, userID string, filter ActivityFilter, cursor *Cursor, limit int) (*ActivityPage, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, &ValidationError{Field: "from", Reason: "must not be after to"}
	}

	page := &ActivityPage{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, next, err := s.repo.ListActivities(gctx, userID, filter, cursor, limit)
		page.Items, page.NextCursor = items, next
		return err
	})
	g.Go(func() error {
		summary, err := s.repo.SummarizeActivities(gctx, userID, filter)
		page.Summary = summary
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, classifyStoreError("list activities", err)
	}
	return page, nil
}

// Leaderboard is a house-scoped weekly ranking.
type Leaderboard struct {
	Week     Week
	Rankings []LeaderboardEntry
}

// Leaderboard ranks the caller's house members by points earned in the given ISO week.
func (s *Service) Leaderboard(ctx context.Context, userID, weekLabel string) (*Leaderboard, error) {
	week, err := ParseWeek(weekLabel, s.now())
	if err != nil {
		return nil, err
	}
	houseID, err := s.repo.HouseIDForUser(ctx, userID)
	if err != nil {
		return nil, classifyStoreError("resolve house", err)
	}
	if houseID == "" {
		return nil, ErrNotInHouse
	}

	entries, err := s.repo.HouseLeaderboard(ctx, houseID, week.Start, week.End)
	if err != nil {
		return nil, classifyStoreError("load leaderboard", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return &Leaderboard{Week: week, Rankings: entries}, nil
}

// Stats summarises a user's activity over a period.
type Stats struct {
	Period            StatsPeriod
	Summary           ActivitySummary
	EstimatedCalories int
	TopTasks          []TaskTotal
	CurrentStreak     int
	LongestStreak     int
}

// Stats aggregates totals, top tasks and streak for the period.
func (s *Service) Stats(ctx context.Context, userID string, period StatsPeriod) (*Stats, error) {
	from, to := period.Bounds(s.now())
	filter := ActivityFilter{From: from, To: to}
	stats := &Stats{Period: period}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := s.repo.SummarizeActivities(gctx, userID, filter)
		stats.Summary = summary
		return err
	})
	g.Go(func() error {
		tasks, err := s.repo.TopTasks(gctx, userID, filter, topTaskLimit)
		stats.TopTasks = tasks
		return err
	})
	g.Go(func() error {
		state, err := s.repo.GetUserState(gctx, userID)
		if err != nil {
			return err
		}
		stats.CurrentStreak = state.Streak.CurrentStreak
		stats.LongestStreak = state.Streak.LongestStreak
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, classifyStoreError("load stats", err)
	}
	stats.EstimatedCalories = EstimateCalories(stats.Summary.TotalDuration)
	return stats, nil
}

// EstimateCalories applies minutes × 3.0 METs × 3.5 × 70 kg / 200.
func EstimateCalories(totalDurationSeconds int) int {
	minutes := float64(totalDurationSeconds) / 60
	return int(math.Round(minutes * 3.0 * 3.5 * 70 / 200))
}

func classifyStoreError(op string, err error) error {
	switch {
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrMaxFreezeReached),
		errors.Is(err, ErrInsufficientPoints):
		return err
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return err
	}
	return &TransactionError{Op: op, Err: err}
}
