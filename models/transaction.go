package models

import "time"

// Source types recorded on ledger rows
const (
	SourceHabit       = "habit"
	SourceTask        = "task"
	SourceLevelReward = "level_reward"
	SourceBadge       = "badge"
	SourceCombat      = "combat"
	SourceFreeze      = "streak_freeze"
	SourceUndo        = "undo"
	SourceAdmin       = "admin"
)

// XPTransaction is an append-only ledger row. Rows are never updated or
// deleted; total_xp on the progression row is reconcilable by replay.
type XPTransaction struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"index;not null" json:"user_id"`
	Amount      int64     `json:"amount"` // signed
	SourceType  string    `gorm:"size:32;index" json:"source_type"`
	SourceID    string    `gorm:"size:64" json:"source_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// CoinTransaction mirrors XPTransaction for the coin currency.
type CoinTransaction struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"index;not null" json:"user_id"`
	Amount      int64     `json:"amount"` // signed
	SourceType  string    `gorm:"size:32;index" json:"source_type"`
	SourceID    string    `gorm:"size:64" json:"source_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}
