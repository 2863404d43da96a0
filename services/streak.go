package services

import (
	"fmt"
	"log"
	"time"

	"habit-quest-system/models"

	"gorm.io/gorm"
)

// Freeze economy knobs
const (
	FreezeCostCoins    = 100
	MaxFreezesPerMonth = 4

	streakMultiplierStep = 0.02
	streakMultiplierCap  = 2.0
)

// StreakMultiplier returns the XP booster for a streak: 2% per consecutive
// day, capped at 2.0 (reached at streak 50).
func StreakMultiplier(streak int) float64 {
	m := 1.0 + float64(streak)*streakMultiplierStep
	if m > streakMultiplierCap {
		return streakMultiplierCap
	}
	return m
}

// StreakResult describes what RecordActivity did to the streak.
type StreakResult struct {
	CurrentStreak     int   `json:"current_streak"`
	FreezeUsed        bool  `json:"freeze_used"`
	StreakLost        bool  `json:"streak_lost"`
	LostStreakLength  int   `json:"lost_streak_length,omitempty"`
	CrossedThresholds []int `json:"crossed_thresholds,omitempty"`
}

type StreakService struct {
	DB *gorm.DB
}

func NewStreakService(db *gorm.DB) *StreakService {
	return &StreakService{DB: db}
}

// utcDay truncates an instant to its UTC calendar day.
func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// mondayOfWeek returns Monday 00:00 UTC of the week containing t.
func mondayOfWeek(t time.Time) time.Time {
	day := utcDay(t)
	wd := int(day.Weekday()) // Sunday = 0
	if wd == 0 {
		wd = 7
	}
	return day.AddDate(0, 0, -(wd - 1))
}

// RecordActivity advances the per-user streak state machine for an activity at
// the given instant. It mutates prog in memory only; the caller persists the
// row inside its own transaction so streak, XP and coins commit atomically.
func RecordActivity(prog *models.UserProgression, at time.Time) StreakResult {
	day := utcDay(at)
	res := StreakResult{}

	grantWeeklyFreeze(prog, at)

	old := prog.CurrentStreak

	if prog.LastActivityDate == nil {
		prog.CurrentStreak = 1
	} else {
		last := utcDay(*prog.LastActivityDate)
		diff := int(day.Sub(last).Hours() / 24)
		switch {
		case diff <= 0:
			// same day: no-op
			return StreakResult{CurrentStreak: prog.CurrentStreak}
		case diff == 1:
			prog.CurrentStreak++
		case diff == 2 && freezeCovers(prog, last):
			// an activated freeze already bridged the missed day
			prog.CurrentStreak++
			res.FreezeUsed = true
		case diff == 2 && prog.FreezeAvailable > 0:
			prog.FreezeAvailable--
			prog.CurrentStreak++
			res.FreezeUsed = true
		default:
			if prog.CurrentStreak > prog.BestStreak {
				prog.BestStreak = prog.CurrentStreak
			}
			res.StreakLost = true
			res.LostStreakLength = prog.CurrentStreak
			prog.CurrentStreak = 1
		}
	}

	if prog.CurrentStreak > prog.BestStreak {
		prog.BestStreak = prog.CurrentStreak
	}
	prog.LastActivityDate = &day

	// an expired or spent protective freeze no longer applies
	if prog.StreakFrozenUntil != nil && !prog.StreakFrozenUntil.After(day) {
		prog.StreakFrozenUntil = nil
	}

	res.CurrentStreak = prog.CurrentStreak
	for _, th := range models.StreakBadgeThresholds {
		if old < th && prog.CurrentStreak >= th {
			res.CrossedThresholds = append(res.CrossedThresholds, th)
		}
	}
	return res
}

// freezeCovers reports whether an activated freeze protects the day right
// after the last activity.
func freezeCovers(prog *models.UserProgression, lastDay time.Time) bool {
	if prog.StreakFrozenUntil == nil {
		return false
	}
	missed := lastDay.AddDate(0, 0, 1)
	return !prog.StreakFrozenUntil.Before(missed)
}

// grantWeeklyFreeze hands out the free freeze on the first activity at or
// after Monday 00:00 UTC of each week.
func grantWeeklyFreeze(prog *models.UserProgression, at time.Time) {
	monday := mondayOfWeek(at)
	if prog.LastFreeFreezeAt == nil || prog.LastFreeFreezeAt.Before(monday) {
		prog.FreezeAvailable++
		t := utcDay(at)
		prog.LastFreeFreezeAt = &t
	}
}

// PurchaseFreeze buys an extra freeze for coins, bounded by the monthly cap.
// The debit and the inventory bump commit atomically.
func (s *StreakService) PurchaseFreeze(userID string) (*models.UserProgression, error) {
	var updated *models.UserProgression
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var prog models.UserProgression
		if err := tx.Where("user_id = ?", userID).First(&prog).Error; err != nil {
			return fmt.Errorf("progression not found for %s: %w", userID, err)
		}

		month := utcDay(time.Now()).Format("2006-01")
		if prog.FreezeMonth != month {
			prog.FreezeMonth = month
			prog.FreezesBought = 0
		}
		if prog.FreezesBought >= MaxFreezesPerMonth {
			return models.ErrFreezeCapReached
		}
		if prog.Coins < FreezeCostCoins {
			return models.ErrInsufficientCoins
		}

		prog.Coins -= FreezeCostCoins
		prog.FreezesBought++
		prog.FreezeAvailable++

		coinTx := models.CoinTransaction{
			UserID:      userID,
			Amount:      -FreezeCostCoins,
			SourceType:  models.SourceFreeze,
			Description: "streak freeze purchase",
		}
		if err := tx.Create(&coinTx).Error; err != nil {
			return err
		}
		if err := tx.Save(&prog).Error; err != nil {
			return err
		}
		updated = &prog
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🧊 Freeze purchased: %s (available=%d)", userID, updated.FreezeAvailable)
	return updated, nil
}

// ActivateFreeze consumes one freeze to protect the next missed day.
// Freezes cannot stack: activating while one is in effect is rejected.
func (s *StreakService) ActivateFreeze(userID string) (*models.UserProgression, error) {
	var updated *models.UserProgression
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var prog models.UserProgression
		if err := tx.Where("user_id = ?", userID).First(&prog).Error; err != nil {
			return fmt.Errorf("progression not found for %s: %w", userID, err)
		}

		now := time.Now().UTC()
		if prog.StreakFrozenUntil != nil && prog.StreakFrozenUntil.After(now) {
			return models.ErrFreezeActive
		}
		if prog.FreezeAvailable <= 0 {
			return models.ErrNoFreezeAvailable
		}

		prog.FreezeAvailable--
		until := utcDay(now).AddDate(0, 0, 1) // covers tomorrow
		prog.StreakFrozenUntil = &until

		if err := tx.Save(&prog).Error; err != nil {
			return err
		}
		updated = &prog
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
