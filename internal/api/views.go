package api

import (
	"time"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/domain"
)

// LogActivityRequest is the payload for POST /v1/activities.
type LogActivityRequest struct {
	TaskName             string  `json:"task_name"`
	DurationSeconds      int     `json:"duration_seconds"`
	Intensity            float64 `json:"intensity"`
	CompletionPercentage int     `json:"completion_percentage"`
}

// LogActivityResponse is the committed activity with wallet and streak snapshots.
// Streak is omitted when the post-commit streak update was skipped.
type LogActivityResponse struct {
	Activity ActivityView `json:"activity"`
	Wallet   WalletView   `json:"wallet"`
	Streak   *StreakView  `json:"streak,omitempty"`
}

// ActivityView exposes a logged chore.
type ActivityView struct {
	ID                   string    `json:"id"`
	TaskName             string    `json:"task_name"`
	DurationSeconds      int       `json:"duration_seconds"`
	Intensity            float64   `json:"intensity"`
	CompletionPercentage int       `json:"completion_percentage"`
	PointsEarned         int       `json:"points_earned"`
	BonusMultiplier      float64   `json:"bonus_multiplier"`
	CompletedAt          time.Time `json:"completed_at"`
}

type WalletView struct {
	PreviousBalance int `json:"previous_balance"`
	PointsEarned    int `json:"points_earned"`
	NewBalance      int `json:"new_balance"`
}

type StreakView struct {
	PreviousStreak    int    `json:"previous_streak"`
	CurrentStreak     int    `json:"current_streak"`
	LongestStreak     int    `json:"longest_streak"`
	StreakFreezeCount int    `json:"streak_freeze_count"`
	Message           string `json:"message"`
	Info              string `json:"info,omitempty"`
}

type SummaryView struct {
	TotalPoints   int `json:"total_points"`
	TotalDuration int `json:"total_duration_seconds"`
	ActivityCount int `json:"activity_count"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
	Summary    SummaryView    `json:"summary"`
}

type MemberView struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type LeaderboardEntryView struct {
	Rank          int        `json:"rank"`
	User          MemberView `json:"user"`
	WeeklyPoints  int        `json:"weekly_points"`
	ActivityCount int        `json:"activity_count"`
	IsCurrentUser bool       `json:"is_current_user"`
}

type LeaderboardResponse struct {
	Week      string                 `json:"week"`
	WeekStart time.Time              `json:"week_start"`
	WeekEnd   time.Time              `json:"week_end"`
	Rankings  []LeaderboardEntryView `json:"rankings"`
}

type TaskTotalView struct {
	TaskName    string `json:"task_name"`
	Count       int    `json:"count"`
	TotalPoints int    `json:"total_points"`
}

type StreakSummaryView struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

type StatsResponse struct {
	Period            string            `json:"period"`
	TotalPoints       int               `json:"total_points"`
	TotalActivities   int               `json:"total_activities"`
	TotalDuration     int               `json:"total_duration"`
	EstimatedCalories int               `json:"estimated_calories"`
	TopTasks          []TaskTotalView   `json:"top_tasks"`
	Streak            StreakSummaryView `json:"streak"`
}

// ProfileView is the caller's wallet and streak state. LastActivityDate is a YYYY-MM-DD day.
type ProfileView struct {
	ID                string  `json:"id"`
	DisplayName       string  `json:"display_name"`
	HouseID           string  `json:"house_id,omitempty"`
	WalletBalance     int     `json:"wallet_balance"`
	CurrentStreak     int     `json:"current_streak"`
	LongestStreak     int     `json:"longest_streak"`
	LastActivityDate  *string `json:"last_activity_date"`
	StreakFreezeCount int     `json:"streak_freeze_count"`
}

type FreezePurchaseResponse struct {
	Cost              int `json:"cost"`
	WalletBalance     int `json:"wallet_balance"`
	StreakFreezeCount int `json:"streak_freeze_count"`
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ID:                   a.ID,
		TaskName:             a.TaskName,
		DurationSeconds:      a.DurationSeconds,
		Intensity:            a.Intensity,
		CompletionPercentage: a.CompletionPercentage,
		PointsEarned:         a.PointsEarned,
		BonusMultiplier:      a.BonusMultiplier,
		CompletedAt:          a.CompletedAt,
	}
}

func toSummaryView(s domain.ActivitySummary) SummaryView {
	return SummaryView{TotalPoints: s.TotalPoints, TotalDuration: s.TotalDuration, ActivityCount: s.ActivityCount}
}

func toLogActivityResponse(result *domain.LogActivityResult) LogActivityResponse {
	resp := LogActivityResponse{
		Activity: toActivityView(result.Activity),
		Wallet: WalletView{
			PreviousBalance: result.Wallet.PreviousBalance,
			PointsEarned:    result.Wallet.PointsEarned,
			NewBalance:      result.Wallet.NewBalance,
		},
	}
	if s := result.Streak; s != nil {
		resp.Streak = &StreakView{
			PreviousStreak:    s.Before.CurrentStreak,
			CurrentStreak:     s.After.CurrentStreak,
			LongestStreak:     s.After.LongestStreak,
			StreakFreezeCount: s.After.FreezeCount,
			Message:           string(s.Message),
			Info:              s.Info,
		}
	}
	return resp
}

func toProfileView(state domain.UserState) ProfileView {
	view := ProfileView{
		ID:                state.UserID,
		DisplayName:       state.DisplayName,
		HouseID:           state.HouseID,
		WalletBalance:     state.WalletBalance,
		CurrentStreak:     state.Streak.CurrentStreak,
		LongestStreak:     state.Streak.LongestStreak,
		StreakFreezeCount: state.Streak.FreezeCount,
	}
	if day := state.Streak.LastActivityDate; day != nil {
		formatted := day.Format(time.DateOnly)
		view.LastActivityDate = &formatted
	}
	return view
}
