package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/domain"
)

func TestUpdateUserStateDiscardsUnpersistedChanges(t *testing.T) {
	store := NewStore()
	userID := store.PutUser(domain.UserState{WalletBalance: 100})

	state, err := store.UpdateUserState(context.Background(), userID, func(s *domain.UserState) (domain.UserChange, error) {
		s.WalletBalance = 0
		return domain.UserChange{}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 100, state.WalletBalance)

	_, err = store.UpdateUserState(context.Background(), userID, func(s *domain.UserState) (domain.UserChange, error) {
		s.WalletBalance = 0
		return domain.UserChange{Persist: true}, errors.New("rejected")
	})
	require.Error(t, err)

	stored, err := store.GetUserState(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 100, stored.WalletBalance)
	require.Empty(t, store.LedgerEntries(userID))
}

func TestUpdateUserStateWritesLedgerOnBalanceChange(t *testing.T) {
	store := NewStore()
	userID := store.PutUser(domain.UserState{WalletBalance: 100})

	_, err := store.UpdateUserState(context.Background(), userID, func(s *domain.UserState) (domain.UserChange, error) {
		s.WalletBalance -= 40
		return domain.UserChange{Persist: true, LedgerReference: "test"}, nil
	})
	require.NoError(t, err)

	entries := store.LedgerEntries(userID)
	require.Len(t, entries, 1)
	require.Equal(t, domain.LedgerDebit, entries[0].Kind)
	require.Equal(t, 40, entries[0].Amount)
	require.Equal(t, 60, entries[0].BalanceAfter)
}

func TestUpdateUserStateStampsLedgerWithChangeTime(t *testing.T) {
	store := NewStore()
	userID := store.PutUser(domain.UserState{WalletBalance: 100})
	at := time.Date(2026, time.March, 11, 9, 30, 0, 0, time.UTC)

	_, err := store.UpdateUserState(context.Background(), userID, func(s *domain.UserState) (domain.UserChange, error) {
		s.WalletBalance += 5
		return domain.UserChange{Persist: true, At: at}, nil
	})
	require.NoError(t, err)
	require.Equal(t, at, store.LedgerEntries(userID)[0].CreatedAt)
}

func TestRepeatedDedupeKeyQueuesEventOnce(t *testing.T) {
	store := NewStore()
	userID := store.PutUser(domain.UserState{})
	event := &domain.Event{Type: "streak.advanced", UserID: userID, DedupeKey: userID + ":2026-03-11:streak.advanced"}

	for i := 0; i < 2; i++ {
		_, err := store.UpdateUserState(context.Background(), userID, func(s *domain.UserState) (domain.UserChange, error) {
			s.Streak.CurrentStreak = 1
			return domain.UserChange{Persist: true, Event: event}, nil
		})
		require.NoError(t, err)
	}
	require.Len(t, store.Events(), 1)

	_, err := store.UpdateUserState(context.Background(), userID, func(s *domain.UserState) (domain.UserChange, error) {
		return domain.UserChange{Persist: true, Event: &domain.Event{Type: "streak_freeze.purchased", UserID: userID}}, nil
	})
	require.NoError(t, err)
	require.Len(t, store.Events(), 2)
}

func TestGetUserStateReturnsCopy(t *testing.T) {
	store := NewStore()
	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	userID := store.PutUser(domain.UserState{Streak: domain.StreakState{LastActivityDate: &day}})

	state, err := store.GetUserState(context.Background(), userID)
	require.NoError(t, err)
	*state.Streak.LastActivityDate = day.AddDate(1, 0, 0)

	again, err := store.GetUserState(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, day, *again.Streak.LastActivityDate)
}

func TestListActivitiesBreaksTiesByID(t *testing.T) {
	store := NewStore()
	houseID := store.CreateHouse("Flat")
	userID := store.PutUser(domain.UserState{HouseID: houseID})
	at := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "c", "b"} {
		_, err := store.RecordActivity(context.Background(), domain.Activity{ID: id, UserID: userID, CompletedAt: at, PointsEarned: 1}, domain.Event{})
		require.NoError(t, err)
	}

	page, next, err := store.ListActivities(context.Background(), userID, domain.ActivityFilter{}, nil, 2)
	require.NoError(t, err)
	require.Equal(t, "c", page[0].ID)
	require.Equal(t, "b", page[1].ID)

	rest, next, err := store.ListActivities(context.Background(), userID, domain.ActivityFilter{}, next, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "a", rest[0].ID)
	require.Nil(t, next)
}
