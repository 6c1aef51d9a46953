package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Activity is the immutable record of one completed chore.
type Activity struct {
	ID                   string
	UserID               string
	HouseID              string
	TaskName             string
	DurationSeconds      int
	Intensity            float64
	CompletionPercentage int
	PointsEarned         int
	BonusMultiplier      float64
	CompletedAt          time.Time
}

// LogActivityInput captures the payload from the API layer.
type LogActivityInput struct {
	UserID               string
	TaskName             string
	DurationSeconds      int
	Intensity            float64
	CompletionPercentage int
}

// Validate checks the accepted ranges before any storage access.
func (in LogActivityInput) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return &ValidationError{Field: "user_id", Reason: "is required"}
	}
	name := strings.TrimSpace(in.TaskName)
	if name == "" {
		return &ValidationError{Field: "task_name", Reason: "is required"}
	}
	if utf8.RuneCountInString(name) > MaxTaskNameLength {
		return &ValidationError{Field: "task_name", Reason: "must be at most 50 characters"}
	}
	if in.DurationSeconds < MinDurationSeconds || in.DurationSeconds > MaxDurationSeconds {
		return &ValidationError{Field: "duration_seconds", Reason: "must be between 60 and 7200"}
	}
	// NaN fails both comparisons, so check the accepted range positively.
	if !(in.Intensity >= MinIntensity && in.Intensity <= MaxIntensity) {
		return &ValidationError{Field: "intensity", Reason: "must be between 1.0 and 10.0"}
	}
	if in.CompletionPercentage < MinCompletionPercent || in.CompletionPercentage > MaxCompletionPercent {
		return &ValidationError{Field: "completion_percentage", Reason: "must be between 70 and 100"}
	}
	return nil
}

// UserState is the subset of the user record owned by the accrual engine.
type UserState struct {
	UserID        string
	DisplayName   string
	HouseID       string
	WalletBalance int
	Streak        StreakState
}

// Cursor models the pagination token for activity history.
type Cursor struct {
	CompletedAt time.Time
	ID          string
}

// ActivityFilter bounds history queries by completion time. Zero values are open ends.
type ActivityFilter struct {
	From time.Time
	To   time.Time
}

// ActivitySummary aggregates the activities matching a filter.
type ActivitySummary struct {
	TotalPoints   int
	TotalDuration int
	ActivityCount int
}

// TaskTotal aggregates activities by task name.
type TaskTotal struct {
	TaskName    string
	Count       int
	TotalPoints int
}

// LeaderboardEntry is one house member's weekly total.
type LeaderboardEntry struct {
	Rank          int
	UserID        string
	DisplayName   string
	WeeklyPoints  int
	ActivityCount int
}
