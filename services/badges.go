package services

import (
	"log"
	"time"

	"habit-quest-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FriendsProvider resolves the accepted-friendship set for a user. The social
// workflow itself lives in another service; this engine only consumes ids.
type FriendsProvider interface {
	FriendIDs(userID string) ([]string, error)
}

// BadgeContext is what a condition predicate may look at: the progression
// snapshot, the evaluation instant, and history queries scoped to the caller's
// transaction.
type BadgeContext struct {
	Tx      *gorm.DB
	Prog    *models.UserProgression
	Now     time.Time
	Friends FriendsProvider
}

// ConditionFunc is a pure predicate over (snapshot, params, history).
// New condition types register once and are looked up by tag.
type ConditionFunc func(ctx *BadgeContext, params models.JSONMap) (bool, error)

type BadgeService struct {
	DB       *gorm.DB
	Friends  FriendsProvider
	registry map[string]ConditionFunc
}

func NewBadgeService(db *gorm.DB, friends FriendsProvider) *BadgeService {
	s := &BadgeService{DB: db, Friends: friends, registry: map[string]ConditionFunc{}}
	s.Register(models.CondStreak, condStreak)
	s.Register(models.CondCompletions, condCompletions)
	s.Register(models.CondLevel, condLevel)
	s.Register(models.CondTime, condTime)
	s.Register(models.CondCombatWins, condCombatWins)
	s.Register(models.CondDate, condDate)
	s.Register(models.CondCoins, condCoins)
	s.Register(models.CondHabitCategory, condHabitCategory)
	s.Register(models.CondFriends, condFriends)
	s.Register(models.CondSecret, condSecret)
	return s
}

// Register installs a condition evaluator for a tag. Last registration wins.
func (s *BadgeService) Register(conditionType string, fn ConditionFunc) {
	s.registry[conditionType] = fn
}

// HasCondition reports whether an evaluator is registered for the tag.
func (s *BadgeService) HasCondition(conditionType string) bool {
	_, ok := s.registry[conditionType]
	return ok
}

// SeedBadges loads the default catalog idempotently (existing codes untouched).
func (s *BadgeService) SeedBadges() error {
	for _, b := range models.DefaultBadges {
		badge := b
		if err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&badge).Error; err != nil {
			return err
		}
	}
	return nil
}

// CheckAllBadges evaluates every badge the user does not own yet and unlocks
// the satisfied ones, granting their XP reward through the shared ledger path.
// The (user, badge) unique index makes concurrent evaluation safe: an insert
// that hits the constraint is a no-op and grants nothing.
func (s *BadgeService) CheckAllBadges(tx *gorm.DB, prog *models.UserProgression, now time.Time) ([]string, error) {
	var badges []models.Badge
	owned := tx.Model(&models.UserBadge{}).Select("badge_id").Where("user_id = ?", prog.UserID)
	if err := tx.Where("id NOT IN (?)", owned).Find(&badges).Error; err != nil {
		return nil, err
	}

	ctx := &BadgeContext{Tx: tx, Prog: prog, Now: now, Friends: s.Friends}
	var earned []string
	for _, badge := range badges {
		fn, ok := s.registry[badge.ConditionType]
		if !ok {
			log.Printf("[BADGES] no evaluator registered for condition type %q (badge %s)", badge.ConditionType, badge.Code)
			continue
		}
		satisfied, err := fn(ctx, badge.ConditionParams)
		if err != nil {
			return nil, err
		}
		if !satisfied {
			continue
		}

		unlock := models.UserBadge{UserID: prog.UserID, BadgeID: badge.ID}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&unlock)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// a concurrent evaluation won the race; duplicate unlock is a no-op
			continue
		}

		if badge.XPReward > 0 {
			if _, err := applyXP(tx, prog, badge.XPReward, models.SourceBadge, badge.Code,
				"badge unlocked: "+badge.Name); err != nil {
				return nil, err
			}
		}
		earned = append(earned, badge.Code)
		log.Printf("🎖️ Badge unlocked: %s → %s", badge.Code, prog.UserID)
	}
	return earned, nil
}

// UserBadges lists a user's unlocked badges joined with their catalog rows.
func (s *BadgeService) UserBadges(userID string) ([]map[string]any, error) {
	type row struct {
		models.UserBadge
		Code        string
		Name        string
		Description string
		IconURL     string
		Secret      bool
	}
	var rows []row
	err := s.DB.Model(&models.UserBadge{}).
		Select("user_badges.*, badges.code, badges.name, badges.description, badges.icon_url, badges.secret").
		Joins("JOIN badges ON badges.id = user_badges.badge_id").
		Where("user_badges.user_id = ?", userID).
		Order("user_badges.unlocked_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]any{
			"code":        r.Code,
			"name":        r.Name,
			"description": r.Description,
			"icon_url":    r.IconURL,
			"unlocked_at": r.UnlockedAt,
			"displayed":   r.Displayed,
		})
	}
	return out, nil
}

// BadgeProgress is the current/target ratio for a locked badge, for UI display.
type BadgeProgress struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Current int64   `json:"current"`
	Target  int64   `json:"target"`
	Ratio   float64 `json:"ratio"`
}

// Progress reports current/target per locked, non-secret badge.
func (s *BadgeService) Progress(userID string) ([]BadgeProgress, error) {
	prog, err := s.loadProgression(userID)
	if err != nil {
		return nil, err
	}

	var badges []models.Badge
	owned := s.DB.Model(&models.UserBadge{}).Select("badge_id").Where("user_id = ?", userID)
	if err := s.DB.Where("id NOT IN (?) AND secret = ?", owned, false).Find(&badges).Error; err != nil {
		return nil, err
	}

	ctx := &BadgeContext{Tx: s.DB, Prog: prog, Now: time.Now(), Friends: s.Friends}
	out := make([]BadgeProgress, 0, len(badges))
	for _, badge := range badges {
		current, target := badgeProgress(ctx, badge)
		if target <= 0 {
			target = 1
		}
		ratio := float64(current) / float64(target)
		if ratio > 1 {
			ratio = 1
		}
		out = append(out, BadgeProgress{
			Code:    badge.Code,
			Name:    badge.Name,
			Type:    badge.ConditionType,
			Current: current,
			Target:  target,
			Ratio:   ratio,
		})
	}
	return out, nil
}

func (s *BadgeService) loadProgression(userID string) (*models.UserProgression, error) {
	var prog models.UserProgression
	if err := s.DB.Where("user_id = ?", userID).First(&prog).Error; err != nil {
		return nil, err
	}
	return &prog, nil
}

// badgeProgress computes (current, target) per condition type for UI bars.
func badgeProgress(ctx *BadgeContext, badge models.Badge) (int64, int64) {
	p := badge.ConditionParams
	switch badge.ConditionType {
	case models.CondStreak:
		best := ctx.Prog.CurrentStreak
		if ctx.Prog.BestStreak > best {
			best = ctx.Prog.BestStreak
		}
		return int64(best), paramInt(p, "days")
	case models.CondCompletions:
		n, _ := countCompletions(ctx.Tx, ctx.Prog.UserID, paramString(p, "category"), "")
		return n, paramInt(p, "count")
	case models.CondLevel:
		return int64(ctx.Prog.Level), paramInt(p, "level")
	case models.CondTime:
		n, _ := countCompletionsInWindow(ctx.Tx, ctx.Prog.UserID, p)
		return n, paramInt(p, "count")
	case models.CondCombatWins:
		return ctx.Prog.CombatWins, paramInt(p, "wins")
	case models.CondCoins:
		return ctx.Prog.Coins, paramInt(p, "coins")
	case models.CondHabitCategory:
		n, _ := countCompletions(ctx.Tx, ctx.Prog.UserID, paramString(p, "category"), models.KindHabit)
		return n, paramInt(p, "count")
	case models.CondFriends:
		if ctx.Friends == nil {
			return 0, paramInt(p, "count")
		}
		ids, err := ctx.Friends.FriendIDs(ctx.Prog.UserID)
		if err != nil {
			return 0, paramInt(p, "count")
		}
		return int64(len(ids)), paramInt(p, "count")
	default:
		// date/secret badges are all-or-nothing
		return 0, 1
	}
}

// ─── condition predicates ───

func condStreak(ctx *BadgeContext, p models.JSONMap) (bool, error) {
	days := paramInt(p, "days")
	return int64(ctx.Prog.CurrentStreak) >= days || int64(ctx.Prog.BestStreak) >= days, nil
}

func condCompletions(ctx *BadgeContext, p models.JSONMap) (bool, error) {
	n, err := countCompletions(ctx.Tx, ctx.Prog.UserID, paramString(p, "category"), "")
	if err != nil {
		return false, err
	}
	return n >= paramInt(p, "count"), nil
}

func condLevel(ctx *BadgeContext, p models.JSONMap) (bool, error) {
	return int64(ctx.Prog.Level) >= paramInt(p, "level"), nil
}

func condTime(ctx *BadgeContext, p models.JSONMap) (bool, error) {
	n, err := countCompletionsInWindow(ctx.Tx, ctx.Prog.UserID, p)
	if err != nil {
		return false, err
	}
	return n >= paramInt(p, "count"), nil
}

func condCombatWins(ctx *BadgeContext, p models.JSONMap) (bool, error) {
	return ctx.Prog.CombatWins >= paramInt(p, "wins"), nil
}

// condDate matches a single month-day, or a month-day range that may wrap the
// year boundary (seasonal badges).
func condDate(ctx *BadgeContext, p models.JSONMap) (bool, error) {
	now := ctx.Now.UTC()
	if m := paramInt(p, "month"); m > 0 {
		return int64(now.Month()) == m && int64(now.Day()) == paramInt(p, "day"), nil
	}
	fromM, fromD := paramInt(p, "from_month"), paramInt(p, "from_day")
	toM, toD := paramInt(p, "to_month"), paramInt(p, "to_day")
	cur := int64(now.Month())*100 + int64(now.Day())
	from := fromM*100 + fromD
	to := toM*100 + toD
	if from <= to {
		return cur >= from && cur <= to, nil
	}
	// wrapping range, e.g. Dec 21 – Jan 5
	return cur >= from || cur <= to, nil
}

func condCoins(ctx *BadgeContext, p models.JSONMap) (bool, error) {
	return ctx.Prog.Coins >= paramInt(p, "coins"), nil
}

func condHabitCategory(ctx *BadgeContext, p models.JSONMap) (bool, error) {
	n, err := countCompletions(ctx.Tx, ctx.Prog.UserID, paramString(p, "category"), models.KindHabit)
	if err != nil {
		return false, err
	}
	return n >= paramInt(p, "count"), nil
}

func condFriends(ctx *BadgeContext, p models.JSONMap) (bool, error) {
	if ctx.Friends == nil {
		return false, nil
	}
	ids, err := ctx.Friends.FriendIDs(ctx.Prog.UserID)
	if err != nil {
		// social service being down never fails a completion
		log.Printf("[BADGES] friends lookup failed for %s: %v", ctx.Prog.UserID, err)
		return false, nil
	}
	return int64(len(ids)) >= paramInt(p, "count"), nil
}

// condSecret is a small family of hidden heuristics keyed by "kind".
func condSecret(ctx *BadgeContext, p models.JSONMap) (bool, error) {
	switch paramString(p, "kind") {
	case "first_streak_break":
		// had a real streak once, and it just broke
		return ctx.Prog.BestStreak >= 3 && ctx.Prog.CurrentStreak == 1 &&
			ctx.Prog.BestStreak > ctx.Prog.CurrentStreak, nil
	case "comeback":
		// returned after two weeks or more away
		var last []models.Completion
		err := ctx.Tx.Where("user_id = ?", ctx.Prog.UserID).
			Order("completed_on DESC").Limit(2).Find(&last).Error
		if err != nil {
			return false, err
		}
		if len(last) < 2 {
			return false, nil
		}
		gap := last[0].CompletedOn.Sub(last[1].CompletedOn)
		return gap >= 14*24*time.Hour, nil
	default:
		return false, nil
	}
}

// ─── history queries ───

func countCompletions(tx *gorm.DB, userID, category, kind string) (int64, error) {
	q := tx.Model(&models.Completion{}).Where("user_id = ?", userID)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

func countCompletionsInWindow(tx *gorm.DB, userID string, p models.JSONMap) (int64, error) {
	q := tx.Model(&models.Completion{}).Where("user_id = ?", userID)
	if h := paramInt(p, "before_hour"); h > 0 {
		q = q.Where("hour < ?", h)
	}
	if h := paramInt(p, "after_hour"); h > 0 {
		q = q.Where("hour >= ?", h)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// ─── param access ───
// jsonb round-trips integers as float64; the seeded catalog stores them as int.

func paramInt(p models.JSONMap, key string) int64 {
	switch v := p[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func paramString(p models.JSONMap, key string) string {
	s, _ := p[key].(string)
	return s
}
