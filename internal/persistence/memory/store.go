// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/domain"
)

// Store keeps users, activities, wallet entries and outbox events in memory.
// A single mutex stands in for the row lock of the relational store.
type Store struct {
	mu         sync.RWMutex
	houses     map[string]string
	users      map[string]domain.UserState
	activities []domain.Activity
	ledger     []domain.LedgerEntry
	events     []domain.Event
	dedupe     map[string]struct{}
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		houses: make(map[string]string),
		users:  make(map[string]domain.UserState),
		dedupe: make(map[string]struct{}),
	}
}

// CreateHouse registers a house and returns its id.
func (s *Store) CreateHouse(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.houses[id] = name
	return id
}

// PutUser inserts or replaces a user record. An empty UserID is assigned.
func (s *Store) PutUser(state domain.UserState) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(state.UserID) == "" {
		state.UserID = uuid.NewString()
	}
	s.users[state.UserID] = cloneState(state)
	return state.UserID
}

// HouseIDForUser implements domain.MembershipLookup.
func (s *Store) HouseIDForUser(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return "", nil
	}
	return user.HouseID, nil
}

// RecordActivity implements domain.Ledger. The activity, credit, wallet entry
// and event are applied together under the store lock.
func (s *Store) RecordActivity(ctx context.Context, activity domain.Activity, event domain.Event) (domain.WalletChange, error) {
	if err := ctx.Err(); err != nil {
		return domain.WalletChange{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[activity.UserID]
	if !ok {
		return domain.WalletChange{}, domain.ErrUserNotFound
	}
	balance, err := domain.Credit(user.WalletBalance, activity.PointsEarned)
	if err != nil {
		return domain.WalletChange{}, err
	}

	change := domain.WalletChange{
		PreviousBalance: user.WalletBalance,
		PointsEarned:    activity.PointsEarned,
		NewBalance:      balance,
	}
	user.WalletBalance = balance
	s.users[user.UserID] = user
	s.activities = append(s.activities, activity)
	s.ledger = append(s.ledger, domain.LedgerEntry{
		ID:           uuid.NewString(),
		UserID:       user.UserID,
		Kind:         domain.LedgerCredit,
		Amount:       activity.PointsEarned,
		BalanceAfter: balance,
		ReferenceID:  activity.ID,
		CreatedAt:    activity.CompletedAt,
	})
	s.appendEvent(event)
	return change, nil
}

// GetUserState implements domain.UserStateStore.
func (s *Store) GetUserState(_ context.Context, userID string) (*domain.UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := cloneState(user)
	return &out, nil
}

// UpdateUserState implements domain.UserStateStore.
func (s *Store) UpdateUserState(ctx context.Context, userID string, mutate domain.UserMutation) (domain.UserState, error) {
	if err := ctx.Err(); err != nil {
		return domain.UserState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[userID]
	if !ok {
		return domain.UserState{}, domain.ErrUserNotFound
	}
	before := cloneState(current)
	next := cloneState(current)

	change, err := mutate(&next)
	if err != nil {
		return before, err
	}
	if !change.Persist {
		return before, nil
	}

	if delta := next.WalletBalance - before.WalletBalance; delta != 0 {
		kind, amount := domain.LedgerCredit, delta
		if delta < 0 {
			kind, amount = domain.LedgerDebit, -delta
		}
		s.ledger = append(s.ledger, domain.LedgerEntry{
			ID:           uuid.NewString(),
			UserID:       userID,
			Kind:         kind,
			Amount:       amount,
			BalanceAfter: next.WalletBalance,
			ReferenceID:  change.LedgerReference,
			CreatedAt:    change.EntryTime(),
		})
	}
	if change.Event != nil {
		s.appendEvent(*change.Event)
	}
	next.UserID = userID
	s.users[userID] = next
	return cloneState(next), nil
}

// ListActivities implements domain.ActivityReader.
func (s *Store) ListActivities(_ context.Context, userID string, filter domain.ActivityFilter, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	s.mu.RLock()
	matched := s.matching(userID, filter)
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return newerThan(matched[i].CompletedAt, matched[i].ID, matched[j].CompletedAt, matched[j].ID)
	})

	results := make([]domain.Activity, 0, limit)
	for _, activity := range matched {
		if cursor != nil && !newerThan(cursor.CompletedAt, cursor.ID, activity.CompletedAt, activity.ID) {
			continue
		}
		results = append(results, activity)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CompletedAt: last.CompletedAt, ID: last.ID}
	}
	return results, next, nil
}

// SummarizeActivities implements domain.ActivityReader.
func (s *Store) SummarizeActivities(_ context.Context, userID string, filter domain.ActivityFilter) (domain.ActivitySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary domain.ActivitySummary
	for _, activity := range s.matching(userID, filter) {
		summary.TotalPoints += activity.PointsEarned
		summary.TotalDuration += activity.DurationSeconds
		summary.ActivityCount++
	}
	return summary, nil
}

// TopTasks implements domain.ActivityReader.
func (s *Store) TopTasks(_ context.Context, userID string, filter domain.ActivityFilter, limit int) ([]domain.TaskTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := make(map[string]*domain.TaskTotal)
	for _, activity := range s.matching(userID, filter) {
		total, ok := byName[activity.TaskName]
		if !ok {
			total = &domain.TaskTotal{TaskName: activity.TaskName}
			byName[activity.TaskName] = total
		}
		total.Count++
		total.TotalPoints += activity.PointsEarned
	}

	out := make([]domain.TaskTotal, 0, len(byName))
	for _, total := range byName {
		out = append(out, *total)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].TaskName < out[j].TaskName
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HouseLeaderboard implements domain.ActivityReader.
func (s *Store) HouseLeaderboard(_ context.Context, houseID string, from, to time.Time) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.LeaderboardEntry, 0)
	for _, user := range s.users {
		if user.HouseID != houseID {
			continue
		}
		entry := domain.LeaderboardEntry{UserID: user.UserID, DisplayName: user.DisplayName}
		for _, activity := range s.matching(user.UserID, domain.ActivityFilter{From: from, To: to}) {
			entry.WeeklyPoints += activity.PointsEarned
			entry.ActivityCount++
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].WeeklyPoints != entries[j].WeeklyPoints {
			return entries[i].WeeklyPoints > entries[j].WeeklyPoints
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries, nil
}

// Events returns a copy of the recorded outbox events.
func (s *Store) Events() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

// LedgerEntries returns the wallet entries recorded for a user, oldest first.
func (s *Store) LedgerEntries(userID string) []domain.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LedgerEntry
	for _, entry := range s.ledger {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out
}

// appendEvent drops events whose dedupe key was already queued. Callers hold
// the write lock.
func (s *Store) appendEvent(event domain.Event) {
	if event.DedupeKey != "" {
		if _, seen := s.dedupe[event.DedupeKey]; seen {
			return
		}
		s.dedupe[event.DedupeKey] = struct{}{}
	}
	s.events = append(s.events, event)
}

// matching must be called with the lock held.
func (s *Store) matching(userID string, filter domain.ActivityFilter) []domain.Activity {
	out := make([]domain.Activity, 0)
	for _, activity := range s.activities {
		if activity.UserID != userID {
			continue
		}
		if !filter.From.IsZero() && activity.CompletedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && activity.CompletedAt.After(filter.To) {
			continue
		}
		out = append(out, activity)
	}
	return out
}

func newerThan(at time.Time, id string, otherAt time.Time, otherID string) bool {
	if !at.Equal(otherAt) {
		return at.After(otherAt)
	}
	return id > otherID
}

func cloneState(state domain.UserState) domain.UserState {
	if state.Streak.LastActivityDate != nil {
		day := *state.Streak.LastActivityDate
		state.Streak.LastActivityDate = &day
	}
	return state
}
