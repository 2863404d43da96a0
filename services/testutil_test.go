package services

import (
	"path/filepath"
	"testing"

	"habit-quest-system/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a throwaway sqlite database with the full schema migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "engine_test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.UserProgression{},
		&models.XPTransaction{},
		&models.CoinTransaction{},
		&models.Completion{},
		&models.Badge{},
		&models.UserBadge{},
		&models.CombatRecord{},
		&models.LeaderboardUpdate{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// newTestRewards wires a reward service without leaderboard and with an empty
// badge catalog, so XP assertions stay exact.
func newTestRewards(t *testing.T, db *gorm.DB) *RewardService {
	t.Helper()
	badges := NewBadgeService(db, nil)
	return NewRewardService(db, badges, nil)
}
