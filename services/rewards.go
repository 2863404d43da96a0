package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"habit-quest-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Reward arithmetic knobs. Coins are always half the XP earned; the ratio is
// fixed, not independently tunable.
const (
	coinRatio        = 0.5
	earlyTaskBonus   = 1.20
	morningBonus     = 1.10 // 06:00–08:59
	lateNightBonus   = 1.05 // 22:00–23:59
	intelligenceStep = 0.005

	// bounded optimistic-lock retries on concurrent same-user completions
	maxConflictRetries = 3
)

// Habit base XP per difficulty tier
var difficultyBaseXP = map[string]int64{
	"easy":      10,
	"medium":    15,
	"hard":      20,
	"very_hard": 25,
}

// Habit categories map onto difficulty tiers; unknown categories fall back to medium.
var categoryTier = map[string]string{
	"health":       "medium",
	"fitness":      "hard",
	"learning":     "medium",
	"productivity": "medium",
	"mindfulness":  "easy",
	"social":       "easy",
	"finance":      "medium",
	"creativity":   "medium",
	"chores":       "easy",
	"discipline":   "very_hard",
}

// Task base XP per difficulty
var taskDifficultyXP = map[string]int64{
	"trivial":   5,
	"easy":      10,
	"medium":    25,
	"hard":      50,
	"very_hard": 100,
	"epic":      180,
	"legendary": 300,
}

// CalculateHabitXP runs the habit reward pipeline:
// base (category tier) → time-of-day bonus → streak multiplier → intelligence
// bonus. The result is truncated to an integer after the time bonus, after the
// streak multiplier and after the intelligence bonus. Collapsing these into a
// single multiply changes totals, so the order is part of the contract.
func CalculateHabitXP(category string, at time.Time, streak, intelligence int) (xp, baseXP int64, multiplier float64) {
	tier, ok := categoryTier[category]
	if !ok {
		tier = "medium"
	}
	baseXP = difficultyBaseXP[tier]
	xp = baseXP

	switch h := at.Hour(); {
	case h >= 6 && h < 9:
		xp = int64(float64(xp) * morningBonus)
	case h >= 22:
		xp = int64(float64(xp) * lateNightBonus)
	}

	multiplier = StreakMultiplier(streak)
	xp = int64(float64(xp) * multiplier)
	xp = int64(float64(xp) * (1.0 + float64(intelligence)*intelligenceStep))
	return xp, baseXP, multiplier
}

// CalculateTaskXP resolves task XP from the difficulty table, or from the
// external evaluator's hint when present, plus the early-completion bonus.
func CalculateTaskXP(difficulty string, eval *models.TaskEvaluation, completedEarly bool) (xp, baseXP int64) {
	if eval != nil && eval.XP > 0 {
		baseXP = eval.XP
	} else {
		d := difficulty
		if eval != nil && eval.Difficulty != "" {
			d = eval.Difficulty
		}
		var ok bool
		baseXP, ok = taskDifficultyXP[d]
		if !ok {
			baseXP = taskDifficultyXP["medium"]
		}
	}
	xp = baseXP
	if completedEarly {
		xp = int64(float64(xp) * earlyTaskBonus)
	}
	return xp, baseXP
}

type RewardService struct {
	DB          *gorm.DB
	Badges      *BadgeService
	Leaderboard *LeaderboardService // nil-safe: best-effort derived view
}

func NewRewardService(db *gorm.DB, badges *BadgeService, lb *LeaderboardService) *RewardService {
	return &RewardService{DB: db, Badges: badges, Leaderboard: lb}
}

// EnsureProgression ensures a UserProgression row exists (idempotent).
func (s *RewardService) EnsureProgression(userID string) (*models.UserProgression, error) {
	var prog models.UserProgression
	err := s.DB.Where("user_id = ?", userID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prog = models.UserProgression{UserID: userID, Level: 1}
		if err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&prog).Error; err != nil {
			return nil, err
		}
		// re-read: a concurrent creator may have won the upsert
		if err := s.DB.Where("user_id = ?", userID).First(&prog).Error; err != nil {
			return nil, err
		}
		return &prog, nil
	}
	if err != nil {
		return nil, err
	}
	return &prog, nil
}

// CompleteHabit applies a habit completion: streak transition, XP/coin grant,
// ledger rows, cascading level-ups and badge checks all commit as one unit.
// Conflicting writers on the same user retry a bounded number of times.
func (s *RewardService) CompleteHabit(event models.CompletionEvent) (*models.RewardResult, error) {
	return s.withConflictRetry(func() (*models.RewardResult, error) {
		return s.completeHabitOnce(event)
	})
}

func (s *RewardService) completeHabitOnce(event models.CompletionEvent) (*models.RewardResult, error) {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var result models.RewardResult
	var streakAfter int
	var publishXP int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		prog, oldVersion, err := s.lockProgression(tx, event.UserID)
		if err != nil {
			return err
		}
		xpBefore := prog.TotalXP

		streakRes := RecordActivity(prog, ts)
		xp, baseXP, mult := CalculateHabitXP(event.Category, ts, streakRes.CurrentStreak, prog.Intelligence)
		coins := int64(float64(xp) * coinRatio)

		completion := models.Completion{
			UserID:      event.UserID,
			Kind:        models.KindHabit,
			SourceID:    event.SourceID,
			CompletedOn: utcDay(ts),
			CompletedAt: ts,
			Hour:        ts.Hour(),
			Category:    event.Category,
			XPEarned:    xp,
			CoinsEarned: coins,
		}
		// the unique (user, kind, source, day) index is the real guard against
		// double completion; no prior existence check
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&completion)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrAlreadyCompleted
		}

		lvl, err := applyXP(tx, prog, xp, models.SourceHabit, event.SourceID,
			fmt.Sprintf("habit completion (%s)", event.Category))
		if err != nil {
			return err
		}
		if err := applyCoins(tx, prog, coins, models.SourceHabit, event.SourceID,
			fmt.Sprintf("habit completion (%s)", event.Category)); err != nil {
			return err
		}

		badges, err := s.Badges.CheckAllBadges(tx, prog, ts)
		if err != nil {
			return err
		}

		if err := saveProgression(tx, prog, oldVersion); err != nil {
			return err
		}

		streakAfter = prog.CurrentStreak
		result = models.RewardResult{
			XPEarned:         xp,
			CoinsEarned:      coins,
			BaseXP:           baseXP,
			BaseCoins:        coins,
			StreakMultiplier: mult,
			NewStreak:        streakRes.CurrentStreak,
			FreezeUsed:       streakRes.FreezeUsed,
			StreakLost:       streakRes.StreakLost,
			LeveledUp:        lvl.leveledUp,
			NewLevel:         lvl.newLevel,
			BadgesEarned:     badges,
		}
		// everything the commit added, badge rewards included; publishing
		// only the completion XP would let the board drift for good
		publishXP = prog.TotalXP - xpBefore
		return nil
	})
	if err != nil {
		return nil, err
	}

	// derived ranking view, never part of the authoritative commit
	s.publishScores(event.UserID, publishXP, streakAfter)

	log.Printf("🎯 Habit complete: %s +%dxp +%dc (streak=%d x%.2f)",
		event.UserID, result.XPEarned, result.CoinsEarned, result.NewStreak, result.StreakMultiplier)
	return &result, nil
}

// CompleteTask applies a task completion. Tasks advance the streak (a day with
// any completion counts) but the streak multiplier only boosts habit XP.
func (s *RewardService) CompleteTask(event models.CompletionEvent, eval *models.TaskEvaluation) (*models.RewardResult, error) {
	return s.withConflictRetry(func() (*models.RewardResult, error) {
		return s.completeTaskOnce(event, eval)
	})
}

func (s *RewardService) completeTaskOnce(event models.CompletionEvent, eval *models.TaskEvaluation) (*models.RewardResult, error) {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var result models.RewardResult
	var streakAfter int
	var publishXP int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		prog, oldVersion, err := s.lockProgression(tx, event.UserID)
		if err != nil {
			return err
		}
		xpBefore := prog.TotalXP

		streakRes := RecordActivity(prog, ts)
		xp, baseXP := CalculateTaskXP(event.Difficulty, eval, event.CompletedEarly)
		coins := int64(float64(xp) * coinRatio)

		completion := models.Completion{
			UserID:      event.UserID,
			Kind:        models.KindTask,
			SourceID:    event.SourceID,
			CompletedOn: utcDay(ts),
			CompletedAt: ts,
			Hour:        ts.Hour(),
			Difficulty:  event.Difficulty,
			XPEarned:    xp,
			CoinsEarned: coins,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&completion)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrAlreadyCompleted
		}

		lvl, err := applyXP(tx, prog, xp, models.SourceTask, event.SourceID, "task completion")
		if err != nil {
			return err
		}
		if err := applyCoins(tx, prog, coins, models.SourceTask, event.SourceID, "task completion"); err != nil {
			return err
		}

		badges, err := s.Badges.CheckAllBadges(tx, prog, ts)
		if err != nil {
			return err
		}

		if err := saveProgression(tx, prog, oldVersion); err != nil {
			return err
		}

		streakAfter = prog.CurrentStreak
		result = models.RewardResult{
			XPEarned:         xp,
			CoinsEarned:      coins,
			BaseXP:           baseXP,
			BaseCoins:        coins,
			StreakMultiplier: 1.0,
			NewStreak:        streakRes.CurrentStreak,
			FreezeUsed:       streakRes.FreezeUsed,
			StreakLost:       streakRes.StreakLost,
			LeveledUp:        lvl.leveledUp,
			NewLevel:         lvl.newLevel,
			BadgesEarned:     badges,
		}
		publishXP = prog.TotalXP - xpBefore
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishScores(event.UserID, publishXP, streakAfter)
	return &result, nil
}

// UndoCompletion reverses today's completion for a source: the exact earned XP
// and coins are debited back through the ledger (clamped at zero) and the
// completion row is removed.
//
// The streak is intentionally NOT recomputed on undo. Unwinding a streak
// transition (and any freeze it consumed) is a product decision that was
// settled as "keep the day counted"; do not change this without product
// sign-off.
//
// Badges and milestone rewards the completion triggered also stay: a badge
// is one-time by invariant and cannot be re-earned, so clawing back its XP
// would leave the user permanently short. The ledger keeps both sides
// auditable.
func (s *RewardService) UndoCompletion(userID, kind, sourceID string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.withConflictRetry(func() (*models.RewardResult, error) {
		return nil, s.undoOnce(userID, kind, sourceID, at)
	})
	return err
}

func (s *RewardService) undoOnce(userID, kind, sourceID string, at time.Time) error {
	var xpDelta int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var completion models.Completion
		err := tx.Where("user_id = ? AND kind = ? AND source_id = ? AND completed_on = ?",
			userID, kind, sourceID, utcDay(at)).First(&completion).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrCompletionNotFound
		}
		if err != nil {
			return err
		}

		prog, oldVersion, err := s.lockProgression(tx, userID)
		if err != nil {
			return err
		}
		xpBefore := prog.TotalXP

		if _, err := applyXP(tx, prog, -completion.XPEarned, models.SourceUndo, sourceID, "completion undone"); err != nil {
			return err
		}
		if err := applyCoins(tx, prog, -completion.CoinsEarned, models.SourceUndo, sourceID, "completion undone"); err != nil {
			return err
		}

		if err := tx.Unscoped().Delete(&completion).Error; err != nil {
			return err
		}
		if err := saveProgression(tx, prog, oldVersion); err != nil {
			return err
		}
		// the clamp at zero can absorb part of the debit; publish what the
		// authoritative total actually moved by
		xpDelta = prog.TotalXP - xpBefore
		return nil
	})
	if err != nil {
		return err
	}

	s.publishScores(userID, xpDelta, -1)
	return nil
}

// AddXP grants (or debits) XP outside a completion path, e.g. admin grants.
func (s *RewardService) AddXP(userID string, amount int64, sourceType, sourceID, description string) (*models.UserProgression, error) {
	var updated *models.UserProgression
	var publishXP int64
	_, err := s.withConflictRetry(func() (*models.RewardResult, error) {
		return nil, s.DB.Transaction(func(tx *gorm.DB) error {
			prog, oldVersion, err := s.lockProgression(tx, userID)
			if err != nil {
				return err
			}
			xpBefore := prog.TotalXP
			if _, err := applyXP(tx, prog, amount, sourceType, sourceID, description); err != nil {
				return err
			}
			if err := saveProgression(tx, prog, oldVersion); err != nil {
				return err
			}
			updated = prog
			publishXP = prog.TotalXP - xpBefore
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.publishScores(userID, publishXP, -1)
	return updated, nil
}

// AddCoins grants (or debits) coins outside a completion path.
func (s *RewardService) AddCoins(userID string, amount int64, sourceType, sourceID, description string) (*models.UserProgression, error) {
	var updated *models.UserProgression
	_, err := s.withConflictRetry(func() (*models.RewardResult, error) {
		return nil, s.DB.Transaction(func(tx *gorm.DB) error {
			prog, oldVersion, err := s.lockProgression(tx, userID)
			if err != nil {
				return err
			}
			if err := applyCoins(tx, prog, amount, sourceType, sourceID, description); err != nil {
				return err
			}
			if err := saveProgression(tx, prog, oldVersion); err != nil {
				return err
			}
			updated = prog
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// levelOutcome is what the cascading level-up loop produced.
type levelOutcome struct {
	leveledUp bool
	newLevel  int
}

// applyXP appends the ledger row, adjusts total XP (clamped at 0) and applies
// the level cache. Rewards for every crossed level are applied in ascending
// order; a "jump to final level" shortcut would skip milestone rewards.
func applyXP(tx *gorm.DB, prog *models.UserProgression, amount int64, sourceType, sourceID, description string) (levelOutcome, error) {
	out := levelOutcome{}
	xpTx := models.XPTransaction{
		UserID:      prog.UserID,
		Amount:      amount,
		SourceType:  sourceType,
		SourceID:    sourceID,
		Description: description,
	}
	if err := tx.Create(&xpTx).Error; err != nil {
		return out, err
	}

	prog.TotalXP += amount
	if prog.TotalXP < 0 {
		prog.TotalXP = 0
	}

	newLevel := LevelFromXP(prog.TotalXP)
	if newLevel > prog.Level {
		for l := prog.Level + 1; l <= newLevel; l++ {
			reward := GetLevelRewards(l)
			prog.StatPoints += reward.StatPoints
			if reward.Coins > 0 {
				prog.Coins += reward.Coins
				coinTx := models.CoinTransaction{
					UserID:      prog.UserID,
					Amount:      reward.Coins,
					SourceType:  models.SourceLevelReward,
					SourceID:    fmt.Sprintf("level_%d", l),
					Description: fmt.Sprintf("milestone reward for level %d", l),
				}
				if err := tx.Create(&coinTx).Error; err != nil {
					return out, err
				}
			}
			if reward.Title != "" {
				prog.Title = reward.Title
			}
		}
		prog.Level = newLevel
		now := time.Now()
		prog.LastLevelUpAt = &now
		out.leveledUp = true
		out.newLevel = newLevel
	} else if newLevel < prog.Level {
		// XP debits can drop the level; the cache always tracks the function
		prog.Level = newLevel
	}
	return out, nil
}

// applyCoins appends the coin ledger row and adjusts the balance, clamped at 0.
func applyCoins(tx *gorm.DB, prog *models.UserProgression, amount int64, sourceType, sourceID, description string) error {
	if amount == 0 {
		return nil
	}
	coinTx := models.CoinTransaction{
		UserID:      prog.UserID,
		Amount:      amount,
		SourceType:  sourceType,
		SourceID:    sourceID,
		Description: description,
	}
	if err := tx.Create(&coinTx).Error; err != nil {
		return err
	}
	prog.Coins += amount
	if prog.Coins < 0 {
		prog.Coins = 0
	}
	return nil
}

// lockProgression loads the row and remembers the version for the optimistic
// write. Creation is handled by EnsureProgression further up the stack.
func (s *RewardService) lockProgression(tx *gorm.DB, userID string) (*models.UserProgression, int64, error) {
	var prog models.UserProgression
	err := tx.Where("user_id = ?", userID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prog = models.UserProgression{UserID: userID, Level: 1}
		if err := tx.Create(&prog).Error; err != nil {
			return nil, 0, err
		}
		return &prog, prog.Version, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return &prog, prog.Version, nil
}

// saveProgression writes the row guarded by the version it was read at.
// A lost race surfaces as ErrConflict, which the bounded retry loop absorbs.
func saveProgression(tx *gorm.DB, prog *models.UserProgression, oldVersion int64) error {
	prog.Version = oldVersion + 1
	res := tx.Model(&models.UserProgression{}).
		Where("id = ? AND version = ?", prog.ID, oldVersion).
		Select("*").Omit("id", "created_at", "deleted_at").
		Updates(prog)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrConflict
	}
	return nil
}

func (s *RewardService) withConflictRetry(op func() (*models.RewardResult, error)) (*models.RewardResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		lastErr = err
		log.Printf("[REWARDS] version conflict, retrying (%d/%d)", attempt+1, maxConflictRetries)
	}
	return nil, lastErr
}

// publishScores pushes the XP delta and streak gauge to the ranking store.
// streak < 0 means "no streak change to publish".
func (s *RewardService) publishScores(userID string, xpDelta int64, streak int) {
	if s.Leaderboard == nil {
		return
	}
	if xpDelta != 0 {
		s.Leaderboard.RecordXPGain(userID, xpDelta)
	}
	if streak >= 0 {
		s.Leaderboard.RecordStreak(userID, streak)
	}
}
