package models

import (
	"time"
)

// Condition types understood by the badge evaluator registry
const (
	CondStreak        = "streak"
	CondCompletions   = "completions"
	CondLevel         = "level"
	CondTime          = "time"
	CondCombatWins    = "combat_wins"
	CondDate          = "date"
	CondCoins         = "coins"
	CondHabitCategory = "habit_category"
	CondFriends       = "friends"
	CondSecret        = "secret"
)

// JSONMap is the structured condition-parameter payload stored as jsonb.
type JSONMap map[string]any

// Badge: static catalog (seeded at startup, extendable via admin API)
type Badge struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	Code            string    `gorm:"uniqueIndex;not null" json:"code"` // e.g., "streak_7", "level_10"
	Name            string    `gorm:"not null" json:"name"`
	Description     string    `json:"description"`
	IconURL         string    `gorm:"type:text" json:"icon_url"` // R2 URL to SVG/png
	ConditionType   string    `gorm:"size:32;not null;index" json:"condition_type"`
	ConditionParams JSONMap   `gorm:"type:jsonb;serializer:json" json:"condition_params"`
	XPReward        int64     `gorm:"default:0" json:"xp_reward"`
	Secret          bool      `gorm:"default:false" json:"secret"` // hidden until unlocked
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UserBadge: awarded instance. The (user_id, badge_id) composite unique index
// is the idempotency guard for concurrent evaluation, never a
// check-then-insert.
type UserBadge struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string    `gorm:"not null;index:idx_user_badge,unique" json:"user_id"`
	BadgeID    string    `gorm:"not null;index:idx_user_badge,unique" json:"badge_id"`
	UnlockedAt time.Time `gorm:"autoCreateTime" json:"unlocked_at"`
	Displayed  bool      `gorm:"default:true" json:"displayed"`
}

// StreakBadgeThresholds are the consecutive-day marks that unlock a streak
// badge exactly once as a rising streak passes them.
var StreakBadgeThresholds = []int{7, 14, 30, 60, 90, 180, 365}

// DefaultBadges is the seeded catalog (loaded idempotently at startup).
var DefaultBadges = []Badge{
	{Code: "streak_7", Name: "One Week Wonder", Description: "Kept a 7 day streak", ConditionType: CondStreak, ConditionParams: JSONMap{"days": 7}, XPReward: 50},
	{Code: "streak_14", Name: "Fortnight Fighter", Description: "Kept a 14 day streak", ConditionType: CondStreak, ConditionParams: JSONMap{"days": 14}, XPReward: 100},
	{Code: "streak_30", Name: "Monthly Master", Description: "Kept a 30 day streak", ConditionType: CondStreak, ConditionParams: JSONMap{"days": 30}, XPReward: 250},
	{Code: "streak_60", Name: "Iron Will", Description: "Kept a 60 day streak", ConditionType: CondStreak, ConditionParams: JSONMap{"days": 60}, XPReward: 500},
	{Code: "streak_90", Name: "Quarter Champion", Description: "Kept a 90 day streak", ConditionType: CondStreak, ConditionParams: JSONMap{"days": 90}, XPReward: 750},
	{Code: "streak_180", Name: "Half Year Hero", Description: "Kept a 180 day streak", ConditionType: CondStreak, ConditionParams: JSONMap{"days": 180}, XPReward: 1500},
	{Code: "streak_365", Name: "Year of Discipline", Description: "Kept a 365 day streak", ConditionType: CondStreak, ConditionParams: JSONMap{"days": 365}, XPReward: 5000},

	{Code: "first_step", Name: "First Step", Description: "Completed your first habit", ConditionType: CondCompletions, ConditionParams: JSONMap{"count": 1}, XPReward: 10},
	{Code: "century", Name: "Centurion", Description: "100 completions", ConditionType: CondCompletions, ConditionParams: JSONMap{"count": 100}, XPReward: 300},
	{Code: "thousand", Name: "Relentless", Description: "1000 completions", ConditionType: CondCompletions, ConditionParams: JSONMap{"count": 1000}, XPReward: 2000},

	{Code: "level_10", Name: "Adventurer", Description: "Reached level 10", ConditionType: CondLevel, ConditionParams: JSONMap{"level": 10}, XPReward: 100},
	{Code: "level_25", Name: "Veteran", Description: "Reached level 25", ConditionType: CondLevel, ConditionParams: JSONMap{"level": 25}, XPReward: 300},
	{Code: "level_50", Name: "Halfway There", Description: "Reached level 50", ConditionType: CondLevel, ConditionParams: JSONMap{"level": 50}, XPReward: 1000},

	{Code: "early_bird", Name: "Early Bird", Description: "25 completions before 8am", ConditionType: CondTime, ConditionParams: JSONMap{"before_hour": 8, "count": 25}, XPReward: 150},
	{Code: "night_owl", Name: "Night Owl", Description: "25 completions after 10pm", ConditionType: CondTime, ConditionParams: JSONMap{"after_hour": 22, "count": 25}, XPReward: 150},

	{Code: "first_blood", Name: "First Blood", Description: "Won your first duel", ConditionType: CondCombatWins, ConditionParams: JSONMap{"wins": 1}, XPReward: 50},
	{Code: "gladiator", Name: "Gladiator", Description: "Won 25 duels", ConditionType: CondCombatWins, ConditionParams: JSONMap{"wins": 25}, XPReward: 500},

	{Code: "new_year", Name: "Fresh Start", Description: "Completed something on January 1st", ConditionType: CondDate, ConditionParams: JSONMap{"month": 1, "day": 1}, XPReward: 50},
	{Code: "winter_spirit", Name: "Winter Spirit", Description: "Active between Dec 21 and Jan 5", ConditionType: CondDate, ConditionParams: JSONMap{"from_month": 12, "from_day": 21, "to_month": 1, "to_day": 5}, XPReward: 100},

	{Code: "saver", Name: "Saver", Description: "Held 1000 coins at once", ConditionType: CondCoins, ConditionParams: JSONMap{"coins": 1000}, XPReward: 100},
	{Code: "hoarder", Name: "Hoarder", Description: "Held 10000 coins at once", ConditionType: CondCoins, ConditionParams: JSONMap{"coins": 10000}, XPReward: 500},

	{Code: "health_nut", Name: "Health Nut", Description: "50 health habit completions", ConditionType: CondHabitCategory, ConditionParams: JSONMap{"category": "health", "count": 50}, XPReward: 200},
	{Code: "bookworm", Name: "Bookworm", Description: "50 learning habit completions", ConditionType: CondHabitCategory, ConditionParams: JSONMap{"category": "learning", "count": 50}, XPReward: 200},

	{Code: "social_circle", Name: "Social Circle", Description: "Made 5 friends", ConditionType: CondFriends, ConditionParams: JSONMap{"count": 5}, XPReward: 100},

	{Code: "phoenix", Name: "Phoenix", Description: "???", ConditionType: CondSecret, ConditionParams: JSONMap{"kind": "first_streak_break"}, XPReward: 25, Secret: true},
	{Code: "comeback", Name: "The Comeback", Description: "???", ConditionType: CondSecret, ConditionParams: JSONMap{"kind": "comeback"}, XPReward: 100, Secret: true},
}
