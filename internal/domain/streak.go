package domain

import (
	"fmt"
	"time"
)

const (
	// MaxStreakFreeze caps the number of freezes a user may hold.
	MaxStreakFreeze = 2
	// BonusFreezeAt is the streak length that grants a free freeze.
	BonusFreezeAt = 100
)

// StreakMessage identifies the transition applied by AdvanceStreak.
type StreakMessage string

const (
	StreakStarted     StreakMessage = "STREAK_STARTED"
	StreakMaintained  StreakMessage = "STREAK_MAINTAINED"
	StreakIncreased   StreakMessage = "STREAK_INCREASED"
	StreakFreezeUsed  StreakMessage = "STREAK_FREEZE_USED"
	StreakFreezeBonus StreakMessage = "STREAK_FREEZE_BONUS"
	StreakReset       StreakMessage = "STREAK_RESET"
)

// StreakState holds the per-user streak fields.
type StreakState struct {
	CurrentStreak    int
	LongestStreak    int
	LastActivityDate *time.Time
	FreezeCount      int
}

// StreakOutcome describes a single streak advance.
type StreakOutcome struct {
	Before  StreakState
	After   StreakState
	Message StreakMessage
	Info    string
	// Persist is false when the stored state must not be written.
	Persist bool
}

type streakInput struct {
	state    StreakState
	first    bool
	daysDiff int
}

type streakTransition struct {
	message StreakMessage
	when    func(in streakInput) bool
	apply   func(s StreakState) StreakState
	info    func(in streakInput) string
	persist bool
}

// streakTransitions is evaluated in order; the first matching row wins and the
// last row matches everything.
var streakTransitions = []streakTransition{
	{
		message: StreakStarted,
		when:    func(in streakInput) bool { return in.first },
		apply:   func(s StreakState) StreakState { s.CurrentStreak = 1; return s },
		persist: true,
	},
	{
		// daysDiff < 0 only happens under clock skew; lastActivityDate never moves backward.
		message: StreakMaintained,
		when:    func(in streakInput) bool { return in.daysDiff <= 0 },
		apply:   func(s StreakState) StreakState { return s },
		persist: false,
	},
	{
		message: StreakIncreased,
		when:    func(in streakInput) bool { return in.daysDiff == 1 },
		apply:   func(s StreakState) StreakState { s.CurrentStreak++; return s },
		persist: true,
	},
	{
		message: StreakFreezeUsed,
		when:    func(in streakInput) bool { return in.daysDiff == 2 && in.state.FreezeCount > 0 },
		apply:   func(s StreakState) StreakState { s.FreezeCount--; return s },
		info: func(streakInput) string {
			return "You missed yesterday, but your Streak Freeze kept your streak safe!"
		},
		persist: true,
	},
	{
		message: StreakReset,
		when:    func(streakInput) bool { return true },
		apply:   func(s StreakState) StreakState { s.CurrentStreak = 1; return s },
		info: func(in streakInput) string {
			return fmt.Sprintf("You missed %d+ days. Streak reset, but you can rebuild it!", in.daysDiff-1)
		},
		persist: true,
	},
}

// AdvanceStreak applies one qualifying activity logged at now to state.
func AdvanceStreak(state StreakState, now time.Time) StreakOutcome {
	today := UTCDay(now)
	in := streakInput{state: state, first: state.LastActivityDate == nil}
	if !in.first {
		in.daysDiff = DaysBetween(UTCDay(*state.LastActivityDate), today)
	}

	var rule streakTransition
	for _, candidate := range streakTransitions {
		if candidate.when(in) {
			rule = candidate
			break
		}
	}

	outcome := StreakOutcome{
		Before:  state,
		After:   state,
		Message: rule.message,
		Persist: rule.persist,
	}
	if !rule.persist {
		return outcome
	}

	next := rule.apply(state)
	if rule.info != nil {
		outcome.Info = rule.info(in)
	}

	if next.CurrentStreak == BonusFreezeAt && next.FreezeCount < MaxStreakFreeze {
		next.FreezeCount++
		outcome.Message = StreakFreezeBonus
		outcome.Info = fmt.Sprintf("%d day streak! Earned 1 free Streak Freeze!", BonusFreezeAt)
	}

	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	next.LastActivityDate = &today
	outcome.After = next
	return outcome
}

// UTCDay truncates t to midnight UTC.
func UTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of days from one UTC midnight to another.
func DaysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
