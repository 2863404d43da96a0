package models

import "time"

// Leaderboard metrics and periods
const (
	MetricXP         = "xp"
	MetricStreak     = "streak"
	MetricCombatWins = "combat_wins"

	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodAllTime = "alltime"
)

// LeaderboardEntry is one ranked row returned from the ranking store.
type LeaderboardEntry struct {
	Rank   int64   `json:"rank"`
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
}

// LeaderboardSnapshot is a single user's standing within one board.
type LeaderboardSnapshot struct {
	Rank              int64   `json:"rank"`
	Score             float64 `json:"score"`
	TotalParticipants int64   `json:"total_participants"`
	RankChange        int64   `json:"rank_change"` // positive = climbed
}

// LeaderboardUpdate is a queued ranking-store write that failed and will be
// replayed best-effort by the retry worker. The ranking store is derived
// state; a row here never blocks the authoritative progression write.
type LeaderboardUpdate struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	Metric    string    `gorm:"size:16;not null" json:"metric"`
	Period    string    `gorm:"size:16;not null" json:"period"`
	Suffix    string    `gorm:"size:16" json:"suffix"` // dated board the write was aimed at; "" for all-time
	Delta     float64   `json:"delta"`
	Absolute  bool      `json:"absolute"` // replace score instead of incrementing
	Attempts  int       `gorm:"default:0" json:"attempts"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
