// Package events defines the payloads published through the outbox.
package events

import "time"

// Event types written to the outbox.
const (
	TypeActivityLogged        = "activity.logged"
	TypeStreakAdvanced        = "streak.advanced"
	TypeStreakFreezePurchased = "streak_freeze.purchased"
)

// ActivityLogged is emitted when a chore is recorded and the wallet credited.
type ActivityLogged struct {
	ActivityID      string    `json:"activity_id"`
	UserID          string    `json:"user_id"`
	HouseID         string    `json:"house_id"`
	TaskName        string    `json:"task_name"`
	DurationSeconds int       `json:"duration_seconds"`
	Intensity       float64   `json:"intensity"`
	PointsEarned    int       `json:"points_earned"`
	BonusMultiplier float64   `json:"bonus_multiplier"`
	CompletedAt     time.Time `json:"completed_at"`
}

// StreakAdvanced tracks persisted streak transitions.
type StreakAdvanced struct {
	UserID            string    `json:"user_id"`
	HouseID           string    `json:"house_id"`
	PreviousStreak    int       `json:"previous_streak"`
	CurrentStreak     int       `json:"current_streak"`
	LongestStreak     int       `json:"longest_streak"`
	StreakFreezeCount int       `json:"streak_freeze_count"`
	Message           string    `json:"message"`
	ActivityDate      time.Time `json:"activity_date"`
}

// StreakFreezePurchased is emitted when points are spent on a streak freeze.
type StreakFreezePurchased struct {
	UserID            string    `json:"user_id"`
	HouseID           string    `json:"house_id,omitempty"`
	Cost              int       `json:"cost"`
	WalletBalance     int       `json:"wallet_balance"`
	StreakFreezeCount int       `json:"streak_freeze_count"`
	PurchasedAt       time.Time `json:"purchased_at"`
}
