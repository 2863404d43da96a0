package models

import (
	"time"

	"gorm.io/gorm"
)

// UserProgression tracks gamified progression for each user (denormalized for performance).
// Level is always a cache of LevelFromXP(TotalXP), never mutated independently.
type UserProgression struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // links to profile service

	// Core progression
	Level   int   `json:"level" gorm:"default:1"`
	TotalXP int64 `json:"total_xp" gorm:"default:0"`
	Coins   int64 `json:"coins" gorm:"default:0"`

	// Combat attributes (raised by spending stat points from level rewards)
	StatPoints   int `json:"stat_points" gorm:"default:0"`
	Strength     int `json:"strength" gorm:"default:5"`
	Agility      int `json:"agility" gorm:"default:5"`
	Intelligence int `json:"intelligence" gorm:"default:5"`
	Endurance    int `json:"endurance" gorm:"default:5"`
	WeaponBonus  int `json:"weapon_bonus" gorm:"default:0"`
	ArmorBonus   int `json:"armor_bonus" gorm:"default:0"`

	Title string `json:"title" gorm:"default:''"` // latest milestone title

	// Streak state
	CurrentStreak    int        `json:"current_streak" gorm:"default:0"`
	BestStreak       int        `json:"best_streak" gorm:"default:0"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`

	// Freeze economy
	FreezeAvailable   int        `json:"freeze_available" gorm:"default:0"`
	StreakFrozenUntil *time.Time `json:"streak_frozen_until,omitempty"`
	LastFreeFreezeAt  *time.Time `json:"last_free_freeze_at,omitempty"`
	FreezesBought     int        `json:"freezes_bought" gorm:"default:0"` // within FreezeMonth
	FreezeMonth       string     `json:"freeze_month" gorm:"size:7"`      // "2006-01"

	// Combat counters
	CombatWins   int64 `json:"combat_wins" gorm:"default:0"`
	CombatLosses int64 `json:"combat_losses" gorm:"default:0"`

	// Optimistic concurrency guard for serialized per-user mutations
	Version int64 `json:"-" gorm:"default:0"`

	// Milestones
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// CombatSnapshot is the frozen view of a combatant taken at combat start.
// The simulation never re-reads live progression state.
type CombatSnapshot struct {
	UserID       string `json:"user_id"`
	Level        int    `json:"level"`
	Strength     int    `json:"strength"`
	Agility      int    `json:"agility"`
	Intelligence int    `json:"intelligence"`
	Endurance    int    `json:"endurance"`
	WeaponBonus  int    `json:"weapon_bonus"`
	ArmorBonus   int    `json:"armor_bonus"`
}

// Snapshot freezes the combat-relevant attributes of a progression row.
func (p *UserProgression) Snapshot() CombatSnapshot {
	return CombatSnapshot{
		UserID:       p.UserID,
		Level:        p.Level,
		Strength:     p.Strength,
		Agility:      p.Agility,
		Intelligence: p.Intelligence,
		Endurance:    p.Endurance,
		WeaponBonus:  p.WeaponBonus,
		ArmorBonus:   p.ArmorBonus,
	}
}
