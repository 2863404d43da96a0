package models

import "time"

// TurnEntry is one attack resolution inside a combat's ordered turn log.
type TurnEntry struct {
	Turn       int    `json:"turn"`
	AttackerID string `json:"attacker_id"`
	DefenderID string `json:"defender_id"`
	Damage     int    `json:"damage"` // 0 when dodged
	Critical   bool   `json:"critical"`
	Dodged     bool   `json:"dodged"`
	DefenderHP int    `json:"defender_hp"` // HP remaining after the attack
}

// CombatRecord is immutable after creation: the snapshots, the seed and the
// turn log together make the outcome replayable byte for byte.
type CombatRecord struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	ChallengerID string `gorm:"index;not null" json:"challenger_id"`
	DefenderID   string `gorm:"index;not null" json:"defender_id"`

	ChallengerStats CombatSnapshot `gorm:"type:jsonb;serializer:json" json:"challenger_stats"`
	DefenderStats   CombatSnapshot `gorm:"type:jsonb;serializer:json" json:"defender_stats"`

	Seed    int64       `json:"seed"`
	TurnLog []TurnEntry `gorm:"type:jsonb;serializer:json" json:"turn_log"`

	ChallengerHP int     `json:"challenger_hp"`
	DefenderHP   int     `json:"defender_hp"`
	WinnerID     *string `gorm:"index" json:"winner_id,omitempty"` // nil ⇒ draw

	WagerCoins  int64 `json:"wager_coins"`
	WinnerXP    int64 `json:"winner_xp"`
	WinnerCoins int64 `json:"winner_coins"`
	LoserXP     int64 `json:"loser_xp"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
