package models

import "time"

// Completion kinds
const (
	KindHabit = "habit"
	KindTask  = "task"
)

// Completion logs one habit/task completion. The composite unique index makes
// the same-source same-day completion idempotent at the storage layer.
type Completion struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string `gorm:"not null;index;index:idx_completion_daily,unique" json:"user_id"`
	Kind     string `gorm:"size:8;not null;index:idx_completion_daily,unique" json:"kind"` // habit | task
	SourceID string `gorm:"size:64;not null;index:idx_completion_daily,unique" json:"source_id"`

	// CompletedOn is the calendar day (UTC, truncated); CompletedAt keeps the
	// exact instant for hour-window badge conditions.
	CompletedOn time.Time `gorm:"type:date;not null;index:idx_completion_daily,unique" json:"completed_on"`
	CompletedAt time.Time `gorm:"not null" json:"completed_at"`
	Hour        int       `gorm:"not null;default:0" json:"hour"` // local hour of completion, for time-window badges

	Category   string `gorm:"size:32;index" json:"category"`
	Difficulty string `gorm:"size:16" json:"difficulty"`

	XPEarned    int64 `json:"xp_earned"`
	CoinsEarned int64 `json:"coins_earned"`
}

// CompletionEvent is the engine's input for a completion (not persisted as-is;
// the habit/task CRUD and validation live outside this service).
type CompletionEvent struct {
	UserID         string    `json:"user_id"`
	Kind           string    `json:"kind"` // habit | task
	SourceID       string    `json:"source_id"`
	Category       string    `json:"category"`   // habit path
	Difficulty     string    `json:"difficulty"` // task path
	Timestamp      time.Time `json:"timestamp"`
	CompletedEarly bool      `json:"completed_early"` // task finished before due date
}

// TaskEvaluation is the externally computed difficulty/reward hint for a task.
// The engine consumes it, it never computes it.
type TaskEvaluation struct {
	Difficulty string `json:"difficulty"`
	XP         int64  `json:"xp"`
	Coins      int64  `json:"coins"`
}

// RewardResult is returned to the caller after a completion is applied.
type RewardResult struct {
	XPEarned         int64    `json:"xp_earned"`
	CoinsEarned      int64    `json:"coins_earned"`
	BaseXP           int64    `json:"base_xp"`
	BaseCoins        int64    `json:"base_coins"`
	StreakMultiplier float64  `json:"streak_multiplier"`
	NewStreak        int      `json:"new_streak"`
	FreezeUsed       bool     `json:"freeze_used"`
	StreakLost       bool     `json:"streak_lost"`
	LeveledUp        bool     `json:"leveled_up"`
	NewLevel         int      `json:"new_level,omitempty"`
	BadgesEarned     []string `json:"badges_earned"`
}
