package services

import (
	"errors"
	"testing"
	"time"

	"habit-quest-system/models"
)

type stubFriends struct {
	ids []string
	err error
}

func (s *stubFriends) FriendIDs(string) ([]string, error) { return s.ids, s.err }

func seedBadge(t *testing.T, svc *BadgeService, badge models.Badge) models.Badge {
	t.Helper()
	if err := svc.DB.Create(&badge).Error; err != nil {
		t.Fatal(err)
	}
	return badge
}

func TestSeedBadgesIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewBadgeService(db, nil)

	if err := svc.SeedBadges(); err != nil {
		t.Fatal(err)
	}
	if err := svc.SeedBadges(); err != nil {
		t.Fatal(err)
	}

	var count int64
	db.Model(&models.Badge{}).Count(&count)
	if count != int64(len(models.DefaultBadges)) {
		t.Errorf("double seeding must not duplicate: %d badges, want %d", count, len(models.DefaultBadges))
	}
}

func TestCheckAllBadgesUnlockAndGrant(t *testing.T) {
	db := newTestDB(t)
	svc := NewBadgeService(db, nil)
	badge := seedBadge(t, svc, models.Badge{
		Code: "streak_7", Name: "One Week Wonder",
		ConditionType: models.CondStreak, ConditionParams: models.JSONMap{"days": 7},
		XPReward: 50,
	})

	prog := models.UserProgression{UserID: "u1", Level: 1, CurrentStreak: 7, BestStreak: 7}
	if err := db.Create(&prog).Error; err != nil {
		t.Fatal(err)
	}

	earned, err := svc.CheckAllBadges(db, &prog, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(earned) != 1 || earned[0] != "streak_7" {
		t.Fatalf("earned = %v, want [streak_7]", earned)
	}
	if prog.TotalXP != 50 {
		t.Errorf("badge xp reward not applied in memory: %d", prog.TotalXP)
	}

	// second pass: already owned, nothing new, no double grant
	earned, err = svc.CheckAllBadges(db, &prog, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(earned) != 0 {
		t.Errorf("re-evaluation must not re-earn: %v", earned)
	}

	var unlocks int64
	db.Model(&models.UserBadge{}).Where("user_id = ? AND badge_id = ?", "u1", badge.ID).Count(&unlocks)
	if unlocks != 1 {
		t.Errorf("expected exactly one unlock row, got %d", unlocks)
	}
}

func TestCheckAllBadgesDuplicateInsertIsNoop(t *testing.T) {
	db := newTestDB(t)
	svc := NewBadgeService(db, nil)
	badge := seedBadge(t, svc, models.Badge{
		Code: "level_10", Name: "Adventurer",
		ConditionType: models.CondLevel, ConditionParams: models.JSONMap{"level": 10},
		XPReward: 100,
	})

	prog := models.UserProgression{UserID: "u1", Level: 10}
	if err := db.Create(&prog).Error; err != nil {
		t.Fatal(err)
	}
	// simulate a concurrent winner holding the unlock already
	if err := db.Create(&models.UserBadge{UserID: "u1", BadgeID: badge.ID}).Error; err != nil {
		t.Fatal(err)
	}

	earned, err := svc.CheckAllBadges(db, &prog, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(earned) != 0 {
		t.Errorf("lost insert race must grant nothing, got %v", earned)
	}
	if prog.TotalXP != 0 {
		t.Errorf("no xp without a fresh unlock, got %d", prog.TotalXP)
	}
}

func TestConditionPredicates(t *testing.T) {
	db := newTestDB(t)

	prog := &models.UserProgression{
		UserID: "u1", Level: 12, Coins: 1500,
		CurrentStreak: 1, BestStreak: 10, CombatWins: 3,
	}
	ctx := &BadgeContext{Tx: db, Prog: prog, Now: time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC)}

	tests := []struct {
		name string
		fn   ConditionFunc
		p    models.JSONMap
		want bool
	}{
		{"streak met via best", condStreak, models.JSONMap{"days": 7}, true},
		{"streak unmet", condStreak, models.JSONMap{"days": 30}, false},
		{"level met", condLevel, models.JSONMap{"level": 10}, true},
		{"level unmet", condLevel, models.JSONMap{"level": 25}, false},
		{"combat wins met", condCombatWins, models.JSONMap{"wins": 1}, true},
		{"combat wins unmet", condCombatWins, models.JSONMap{"wins": 25}, false},
		{"coins met", condCoins, models.JSONMap{"coins": 1000}, true},
		{"coins unmet", condCoins, models.JSONMap{"coins": 5000}, false},
		{"exact date match", condDate, models.JSONMap{"month": 1, "day": 1}, true},
		{"exact date miss", condDate, models.JSONMap{"month": 7, "day": 4}, false},
		{"wrapping seasonal range hit", condDate, models.JSONMap{"from_month": 12, "from_day": 21, "to_month": 1, "to_day": 5}, true},
		{"plain range miss", condDate, models.JSONMap{"from_month": 6, "from_day": 1, "to_month": 8, "to_day": 31}, false},
		{"secret streak break fires", condSecret, models.JSONMap{"kind": "first_streak_break"}, true},
		{"unknown secret kind never fires", condSecret, models.JSONMap{"kind": "nope"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(ctx, tt.p)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCondTimeUsesCompletionHours(t *testing.T) {
	db := newTestDB(t)
	prog := &models.UserProgression{UserID: "u1", Level: 1}
	ctx := &BadgeContext{Tx: db, Prog: prog, Now: time.Now()}

	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		c := models.Completion{
			UserID: "u1", Kind: models.KindHabit, SourceID: "h" + string(rune('a'+i)),
			CompletedOn: base.AddDate(0, 0, i), CompletedAt: base.AddDate(0, 0, i).Add(7 * time.Hour),
			Hour: 7,
		}
		if err := db.Create(&c).Error; err != nil {
			t.Fatal(err)
		}
	}

	got, err := condTime(ctx, models.JSONMap{"before_hour": 8, "count": 3})
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Errorf("three 7am completions should satisfy a before-8 count of 3")
	}

	got, err = condTime(ctx, models.JSONMap{"after_hour": 22, "count": 1})
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Errorf("no late-night completions exist, condition must not fire")
	}
}

func TestCondFriendsToleratesOutage(t *testing.T) {
	db := newTestDB(t)
	prog := &models.UserProgression{UserID: "u1"}

	tests := []struct {
		name    string
		friends FriendsProvider
		want    bool
	}{
		{"no provider wired", nil, false},
		{"provider erroring", &stubFriends{err: errors.New("social service down")}, false},
		{"enough friends", &stubFriends{ids: []string{"a", "b", "c"}}, true},
		{"too few friends", &stubFriends{ids: []string{"a"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &BadgeContext{Tx: db, Prog: prog, Now: time.Now(), Friends: tt.friends}
			got, err := condFriends(ctx, models.JSONMap{"count": 3})
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProgressSkipsSecretAndOwned(t *testing.T) {
	db := newTestDB(t)
	svc := NewBadgeService(db, nil)

	visible := seedBadge(t, svc, models.Badge{
		Code: "streak_30", Name: "Monthly Master",
		ConditionType: models.CondStreak, ConditionParams: models.JSONMap{"days": 30},
	})
	owned := seedBadge(t, svc, models.Badge{
		Code: "streak_7", Name: "One Week Wonder",
		ConditionType: models.CondStreak, ConditionParams: models.JSONMap{"days": 7},
	})
	seedBadge(t, svc, models.Badge{
		Code: "phoenix", Name: "Phoenix", Secret: true,
		ConditionType: models.CondSecret, ConditionParams: models.JSONMap{"kind": "first_streak_break"},
	})

	prog := models.UserProgression{UserID: "u1", Level: 1, CurrentStreak: 12, BestStreak: 12}
	if err := db.Create(&prog).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&models.UserBadge{UserID: "u1", BadgeID: owned.ID}).Error; err != nil {
		t.Fatal(err)
	}

	rows, err := svc.Progress("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("want only the locked visible badge, got %d rows", len(rows))
	}
	if rows[0].Code != visible.Code {
		t.Errorf("Code = %s, want %s", rows[0].Code, visible.Code)
	}
	if rows[0].Current != 12 || rows[0].Target != 30 {
		t.Errorf("progress = %d/%d, want 12/30", rows[0].Current, rows[0].Target)
	}
	if rows[0].Ratio < 0.39 || rows[0].Ratio > 0.41 {
		t.Errorf("Ratio = %v, want 0.4", rows[0].Ratio)
	}
}
