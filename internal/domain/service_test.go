package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/domain"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/events"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/persistence/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, time.March, 11, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func seed(store *memory.Store, state domain.UserState) string {
	if state.HouseID == "" {
		state.HouseID = store.CreateHouse("Flat 4B")
	}
	return store.PutUser(state)
}

func TestLogActivityCreditsWalletAndIncreasesStreak(t *testing.T) {
	store := memory.NewStore()
	yesterday := domain.UTCDay(fixedNow.AddDate(0, 0, -1))
	userID := seed(store, domain.UserState{
		WalletBalance: 1000,
		Streak:        domain.StreakState{CurrentStreak: 14, LongestStreak: 20, LastActivityDate: &yesterday, FreezeCount: 1},
	})
	svc := domain.NewService(store, domain.WithClock(clock))

	result, err := svc.LogActivity(context.Background(), domain.LogActivityInput{
		UserID:               userID,
		TaskName:             "  Vacuum living room ",
		DurationSeconds:      600,
		Intensity:            7,
		CompletionPercentage: 90,
	})
	require.NoError(t, err)

	require.Equal(t, "Vacuum living room", result.Activity.TaskName)
	require.Equal(t, 700, result.Activity.PointsEarned)
	require.Equal(t, 1.0, result.Activity.BonusMultiplier)
	require.Equal(t, fixedNow, result.Activity.CompletedAt)
	require.Equal(t, domain.WalletChange{PreviousBalance: 1000, PointsEarned: 700, NewBalance: 1700}, result.Wallet)

	require.NotNil(t, result.Streak)
	require.Equal(t, domain.StreakIncreased, result.Streak.Message)
	require.Equal(t, 15, result.Streak.After.CurrentStreak)
	require.Equal(t, 14, result.Streak.Before.CurrentStreak)

	state, err := svc.Profile(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 1700, state.WalletBalance)
	require.Equal(t, 15, state.Streak.CurrentStreak)
	require.Equal(t, 20, state.Streak.LongestStreak)

	entries := store.LedgerEntries(userID)
	require.Len(t, entries, 1)
	require.Equal(t, domain.LedgerCredit, entries[0].Kind)
	require.Equal(t, 1700, entries[0].BalanceAfter)
	require.Equal(t, result.Activity.ID, entries[0].ReferenceID)

	emitted := store.Events()
	require.Len(t, emitted, 2)
	require.Equal(t, events.TypeActivityLogged, emitted[0].Type)
	require.Equal(t, events.TypeStreakAdvanced, emitted[1].Type)
}

func TestLogActivityBalanceConservation(t *testing.T) {
	store := memory.NewStore()
	userID := seed(store, domain.UserState{WalletBalance: 42})
	svc := domain.NewService(store, domain.WithClock(clock))

	inputs := []domain.LogActivityInput{
		{UserID: userID, TaskName: "Dishes", DurationSeconds: 60, Intensity: 1, CompletionPercentage: 70},
		{UserID: userID, TaskName: "Laundry", DurationSeconds: 900, Intensity: 3.5, CompletionPercentage: 95},
		{UserID: userID, TaskName: "Mop", DurationSeconds: 1234, Intensity: 6.2, CompletionPercentage: 100},
	}
	total := 0
	for _, in := range inputs {
		res, err := svc.LogActivity(context.Background(), in)
		require.NoError(t, err)
		require.Equal(t, res.Wallet.PreviousBalance+res.Activity.PointsEarned, res.Wallet.NewBalance)
		total += res.Activity.PointsEarned
	}

	state, err := svc.Profile(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 42+total, state.WalletBalance)
}

func TestLogActivitySameDaySkipsStreakWrite(t *testing.T) {
	store := memory.NewStore()
	today := domain.UTCDay(fixedNow)
	userID := seed(store, domain.UserState{
		Streak: domain.StreakState{CurrentStreak: 5, LongestStreak: 5, LastActivityDate: &today},
	})
	svc := domain.NewService(store, domain.WithClock(clock))

	result, err := svc.LogActivity(context.Background(), domain.LogActivityInput{
		UserID: userID, TaskName: "Dishes", DurationSeconds: 120, Intensity: 2, CompletionPercentage: 80,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StreakMaintained, result.Streak.Message)
	require.False(t, result.Streak.Persist)

	emitted := store.Events()
	require.Len(t, emitted, 1, "no streak event for a maintained streak")
}

func TestLogActivityRejectsUserWithoutHouse(t *testing.T) {
	store := memory.NewStore()
	userID := store.PutUser(domain.UserState{WalletBalance: 10})
	svc := domain.NewService(store, domain.WithClock(clock))

	_, err := svc.LogActivity(context.Background(), domain.LogActivityInput{
		UserID: userID, TaskName: "Dishes", DurationSeconds: 120, Intensity: 2, CompletionPercentage: 80,
	})
	require.ErrorIs(t, err, domain.ErrNotInHouse)

	_, err = svc.LogActivity(context.Background(), domain.LogActivityInput{
		UserID: "ghost", TaskName: "Dishes", DurationSeconds: 120, Intensity: 2, CompletionPercentage: 80,
	})
	require.ErrorIs(t, err, domain.ErrNotInHouse)

	require.Empty(t, store.Events())
	require.Empty(t, store.LedgerEntries(userID))
}

func TestLogActivityValidationHasNoSideEffects(t *testing.T) {
	store := memory.NewStore()
	userID := seed(store, domain.UserState{})
	svc := domain.NewService(store, domain.WithClock(clock))

	_, err := svc.LogActivity(context.Background(), domain.LogActivityInput{
		UserID: userID, TaskName: "Dishes", DurationSeconds: 30, Intensity: 2, CompletionPercentage: 80,
	})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "duration_seconds", validation.Field)
	require.Empty(t, store.Events())
}

type failingStreakStore struct {
	*memory.Store
}

func (f failingStreakStore) UpdateUserState(context.Context, string, domain.UserMutation) (domain.UserState, error) {
	return domain.UserState{}, errors.New("connection reset")
}

func TestLogActivityStreakFailureIsSwallowed(t *testing.T) {
	store := memory.NewStore()
	userID := seed(store, domain.UserState{WalletBalance: 5})

	core, logs := observer.New(zap.WarnLevel)
	svc := domain.NewService(failingStreakStore{store}, domain.WithClock(clock), domain.WithLogger(zap.New(core)))

	result, err := svc.LogActivity(context.Background(), domain.LogActivityInput{
		UserID: userID, TaskName: "Dishes", DurationSeconds: 60, Intensity: 1, CompletionPercentage: 70,
	})
	require.NoError(t, err)
	require.Nil(t, result.Streak)
	require.Equal(t, 15, result.Wallet.NewBalance)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, userID, entry.ContextMap()["user_id"])
}

type unreachableReadStore struct {
	*memory.Store
}

func (unreachableReadStore) HouseLeaderboard(context.Context, string, time.Time, time.Time) ([]domain.LeaderboardEntry, error) {
	return nil, errors.New("connection reset")
}

func (unreachableReadStore) ListActivities(context.Context, string, domain.ActivityFilter, *domain.Cursor, int) ([]domain.Activity, *domain.Cursor, error) {
	return nil, nil, errors.New("connection reset")
}

func TestReadModelsReportStoreFailuresAsTransient(t *testing.T) {
	store := memory.NewStore()
	userID := seed(store, domain.UserState{})
	svc := domain.NewService(unreachableReadStore{store}, domain.WithClock(clock))

	var txErr *domain.TransactionError
	_, err := svc.Leaderboard(context.Background(), userID, "")
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, "load leaderboard", txErr.Op)

	_, err = svc.ListActivities(context.Background(), userID, domain.ActivityFilter{}, nil, 10)
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, "list activities", txErr.Op)
}

func TestConcurrentLogsIncrementStreakOnce(t *testing.T) {
	store := memory.NewStore()
	yesterday := domain.UTCDay(fixedNow.AddDate(0, 0, -1))
	userID := seed(store, domain.UserState{
		Streak: domain.StreakState{CurrentStreak: 9, LongestStreak: 9, LastActivityDate: &yesterday},
	})
	svc := domain.NewService(store, domain.WithClock(clock))

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.LogActivity(context.Background(), domain.LogActivityInput{
				UserID: userID, TaskName: "Dishes", DurationSeconds: 60, Intensity: 1, CompletionPercentage: 70,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := svc.Profile(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 10, state.Streak.CurrentStreak)
	require.Equal(t, workers*10, state.WalletBalance)
	require.Len(t, store.LedgerEntries(userID), workers)
}

func TestPurchaseStreakFreeze(t *testing.T) {
	store := memory.NewStore()
	userID := seed(store, domain.UserState{WalletBalance: 1200, Streak: domain.StreakState{FreezeCount: 1}})
	svc := domain.NewService(store, domain.WithClock(clock))

	purchase, err := svc.PurchaseStreakFreeze(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, &domain.FreezePurchase{WalletBalance: 700, FreezeCount: 2}, purchase)

	_, err = svc.PurchaseStreakFreeze(context.Background(), userID)
	require.ErrorIs(t, err, domain.ErrMaxFreezeReached)

	entries := store.LedgerEntries(userID)
	require.Len(t, entries, 1)
	require.Equal(t, domain.LedgerDebit, entries[0].Kind)
	require.Equal(t, domain.StreakFreezeCost, entries[0].Amount)
	require.Equal(t, "streak_freeze", entries[0].ReferenceID)
	require.Equal(t, fixedNow, entries[0].CreatedAt)

	_, err = svc.PurchaseStreakFreeze(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestPurchaseStreakFreezeInsufficientPoints(t *testing.T) {
	store := memory.NewStore()
	userID := seed(store, domain.UserState{WalletBalance: 499})
	svc := domain.NewService(store, domain.WithClock(clock))

	_, err := svc.PurchaseStreakFreeze(context.Background(), userID)
	require.ErrorIs(t, err, domain.ErrInsufficientPoints)

	state, err := svc.Profile(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 499, state.WalletBalance)
	require.Equal(t, 0, state.Streak.FreezeCount)
	require.Empty(t, store.Events())
}

func TestListActivitiesPagesNewestFirst(t *testing.T) {
	store := memory.NewStore()
	userID := seed(store, domain.UserState{})

	current := fixedNow.Add(-time.Hour)
	svc := domain.NewService(store, domain.WithClock(func() time.Time { return current }))
	for i := 0; i < 5; i++ {
		_, err := svc.LogActivity(context.Background(), domain.LogActivityInput{
			UserID: userID, TaskName: "Dishes", DurationSeconds: 60, Intensity: 1, CompletionPercentage: 70,
		})
		require.NoError(t, err)
		current = current.Add(time.Minute)
	}

	first, err := svc.ListActivities(context.Background(), userID, domain.ActivityFilter{}, nil, 2)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotNil(t, first.NextCursor)
	require.True(t, first.Items[0].CompletedAt.After(first.Items[1].CompletedAt))
	require.Equal(t, domain.ActivitySummary{TotalPoints: 50, TotalDuration: 300, ActivityCount: 5}, first.Summary)

	second, err := svc.ListActivities(context.Background(), userID, domain.ActivityFilter{}, first.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	require.True(t, second.Items[0].CompletedAt.Before(first.Items[1].CompletedAt))

	third, err := svc.ListActivities(context.Background(), userID, domain.ActivityFilter{}, second.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, third.Items, 1)
	require.Nil(t, third.NextCursor)

	_, err = svc.ListActivities(context.Background(), userID, domain.ActivityFilter{From: fixedNow, To: fixedNow.Add(-time.Hour)}, nil, 2)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestLeaderboardRanksHouseMembers(t *testing.T) {
	store := memory.NewStore()
	houseID := store.CreateHouse("Flat 4B")
	alice := store.PutUser(domain.UserState{UserID: "alice", DisplayName: "Alice", HouseID: houseID})
	bob := store.PutUser(domain.UserState{UserID: "bob", DisplayName: "Bob", HouseID: houseID})
	store.PutUser(domain.UserState{UserID: "carol", DisplayName: "Carol", HouseID: houseID})
	outsider := seed(store, domain.UserState{UserID: "dave"})

	svc := domain.NewService(store, domain.WithClock(clock))
	log := func(userID string, seconds int) {
		_, err := svc.LogActivity(context.Background(), domain.LogActivityInput{
			UserID: userID, TaskName: "Sweep", DurationSeconds: seconds, Intensity: 1, CompletionPercentage: 70,
		})
		require.NoError(t, err)
	}
	log(alice, 60)
	log(bob, 120)
	log(bob, 60)
	log(outsider, 600)

	board, err := svc.Leaderboard(context.Background(), alice, "")
	require.NoError(t, err)
	require.Equal(t, "2026-W11", board.Week.Label)
	require.Len(t, board.Rankings, 3)
	require.Equal(t, "bob", board.Rankings[0].UserID)
	require.Equal(t, 30, board.Rankings[0].WeeklyPoints)
	require.Equal(t, 2, board.Rankings[0].ActivityCount)
	require.Equal(t, 1, board.Rankings[0].Rank)
	require.Equal(t, "alice", board.Rankings[1].UserID)
	require.Equal(t, "carol", board.Rankings[2].UserID)
	require.Equal(t, 3, board.Rankings[2].Rank)

	previous, err := svc.Leaderboard(context.Background(), alice, "2026-W10")
	require.NoError(t, err)
	for _, entry := range previous.Rankings {
		require.Zero(t, entry.WeeklyPoints)
	}
}

func TestLeaderboardIncludesFinalMicrosecondsOfSunday(t *testing.T) {
	store := memory.NewStore()
	userID := seed(store, domain.UserState{UserID: "alice", DisplayName: "Alice"})
	lateSunday := time.Date(2026, time.March, 15, 23, 59, 59, 999500000, time.UTC)
	svc := domain.NewService(store, domain.WithClock(func() time.Time { return lateSunday }))

	_, err := svc.LogActivity(context.Background(), domain.LogActivityInput{
		UserID: userID, TaskName: "Dishes", DurationSeconds: 60, Intensity: 1, CompletionPercentage: 70,
	})
	require.NoError(t, err)

	week11, err := svc.Leaderboard(context.Background(), userID, "2026-W11")
	require.NoError(t, err)
	require.Equal(t, 10, week11.Rankings[0].WeeklyPoints)

	week12, err := svc.Leaderboard(context.Background(), userID, "2026-W12")
	require.NoError(t, err)
	require.Zero(t, week12.Rankings[0].WeeklyPoints)
}

func TestStatsAggregatesPeriod(t *testing.T) {
	store := memory.NewStore()
	userID := seed(store, domain.UserState{})
	svc := domain.NewService(store, domain.WithClock(clock))

	for _, in := range []struct {
		task    string
		seconds int
	}{{"Dishes", 600}, {"Laundry", 1200}, {"Dishes", 600}} {
		_, err := svc.LogActivity(context.Background(), domain.LogActivityInput{
			UserID: userID, TaskName: in.task, DurationSeconds: in.seconds, Intensity: 2, CompletionPercentage: 80,
		})
		require.NoError(t, err)
	}

	stats, err := svc.Stats(context.Background(), userID, domain.PeriodWeek)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Summary.ActivityCount)
	require.Equal(t, 2400, stats.Summary.TotalDuration)
	require.Equal(t, domain.EstimateCalories(2400), stats.EstimatedCalories)
	require.Len(t, stats.TopTasks, 2)
	require.Equal(t, "Dishes", stats.TopTasks[0].TaskName)
	require.Equal(t, 2, stats.TopTasks[0].Count)
	require.Equal(t, 1, stats.CurrentStreak)

	_, err = svc.Stats(context.Background(), "ghost", domain.PeriodAll)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
