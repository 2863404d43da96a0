package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"habit-quest-system/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Ranking keys live in redis as sorted sets, namespaced by metric × period ×
// period-suffix. The store is a derived view: every write here is best-effort
// and a failure is queued for replay, never propagated to a progression write.
const (
	leaderboardNamespace = "habitquest"

	dailyTTL   = 48 * time.Hour
	weeklyTTL  = 14 * 24 * time.Hour
	monthlyTTL = 62 * 24 * time.Hour
)

var allPeriods = []string{
	models.PeriodDaily,
	models.PeriodWeekly,
	models.PeriodMonthly,
	models.PeriodAllTime,
}

type LeaderboardService struct {
	RDB *redis.Client
	DB  *gorm.DB // retry queue; nil disables queuing

	now func() time.Time
}

func NewLeaderboardService(rdb *redis.Client, db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{RDB: rdb, DB: db, now: time.Now}
}

// periodSuffix returns the dated suffix for a period ("" for all-time).
func periodSuffix(period string, t time.Time) string {
	t = t.UTC()
	switch period {
	case models.PeriodDaily:
		return t.Format("2006-01-02")
	case models.PeriodWeekly:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case models.PeriodMonthly:
		return t.Format("2006-01")
	default:
		return ""
	}
}

func periodTTL(period string) time.Duration {
	switch period {
	case models.PeriodDaily:
		return dailyTTL
	case models.PeriodWeekly:
		return weeklyTTL
	case models.PeriodMonthly:
		return monthlyTTL
	default:
		return 0 // all-time keys never expire
	}
}

func (s *LeaderboardService) key(metric, period string, t time.Time) string {
	k := fmt.Sprintf("%s:lb:%s:%s", leaderboardNamespace, metric, period)
	if suffix := periodSuffix(period, t); suffix != "" {
		k += ":" + suffix
	}
	return k
}

// prevRankKey names the previous-rank hash for one concrete board. Dated
// periods get the suffix too: a daily rank change compares against a rank
// observed on the same day's board, never an older one.
func (s *LeaderboardService) prevRankKey(metric, period string, t time.Time) string {
	k := fmt.Sprintf("%s:lb:prevrank:%s:%s", leaderboardNamespace, metric, period)
	if suffix := periodSuffix(period, t); suffix != "" {
		k += ":" + suffix
	}
	return k
}

// RecordXPGain adds an XP delta to every period board (incremental metric).
func (s *LeaderboardService) RecordXPGain(userID string, delta int64) {
	s.apply(userID, models.MetricXP, float64(delta), false)
}

// RecordStreak replaces the streak score on every period board: streak is a
// point-in-time gauge, not a sum.
func (s *LeaderboardService) RecordStreak(userID string, streak int) {
	s.apply(userID, models.MetricStreak, float64(streak), true)
}

// RecordCombatWin increments the combat-wins boards.
func (s *LeaderboardService) RecordCombatWin(userID string) {
	s.apply(userID, models.MetricCombatWins, 1, false)
}

func (s *LeaderboardService) apply(userID, metric string, value float64, absolute bool) {
	if s.RDB == nil {
		return
	}
	ctx := context.Background()
	now := s.now()
	for _, period := range allPeriods {
		suffix := periodSuffix(period, now)
		if err := s.writeScore(ctx, userID, metric, period, suffix, value, absolute); err != nil {
			// queue exactly the boards that failed, pinned to the suffix they
			// were aimed at; replaying must not touch the ones that landed
			log.Printf("⚠️ [LEADERBOARD] ranking store write failed for %s/%s/%s — queued for retry", userID, metric, period)
			s.enqueue(userID, metric, period, suffix, value, absolute)
		}
	}
}

// writeScore lands one update on one concrete board and refreshes its TTL.
func (s *LeaderboardService) writeScore(ctx context.Context, userID, metric, period, suffix string, value float64, absolute bool) error {
	k := fmt.Sprintf("%s:lb:%s:%s", leaderboardNamespace, metric, period)
	if suffix != "" {
		k += ":" + suffix
	}
	var err error
	if absolute {
		err = s.RDB.ZAdd(ctx, k, redis.Z{Score: value, Member: userID}).Err()
	} else {
		err = s.RDB.ZIncrBy(ctx, k, value, userID).Err()
	}
	if err != nil {
		return err
	}
	if ttl := periodTTL(period); ttl > 0 {
		// refresh on every write; the sweep catches what slips through
		_ = s.RDB.Expire(ctx, k, ttl).Err()
	}
	return nil
}

func (s *LeaderboardService) enqueue(userID, metric, period, suffix string, value float64, absolute bool) {
	if s.DB == nil {
		return
	}
	row := models.LeaderboardUpdate{
		UserID:   userID,
		Metric:   metric,
		Period:   period,
		Suffix:   suffix,
		Delta:    value,
		Absolute: absolute,
	}
	if err := s.DB.Create(&row).Error; err != nil {
		// derived view: dropping the update is acceptable, losing the
		// progression write is not
		log.Printf("⚠️ [LEADERBOARD] failed to queue update for %s/%s: %v", userID, metric, err)
	}
}

// ReplayQueued re-applies queued updates, deleting the ones that land. Each
// row targets the single board it originally failed against, under the suffix
// recorded at write time; a daily delta earned on day X lands on day X's
// board no matter when the replay runs. Returns how many were replayed.
func (s *LeaderboardService) ReplayQueued(limit int) (int, error) {
	if s.DB == nil || s.RDB == nil {
		return 0, nil
	}
	var rows []models.LeaderboardUpdate
	if err := s.DB.Order("created_at ASC").Limit(limit).Find(&rows).Error; err != nil {
		return 0, err
	}

	ctx := context.Background()
	replayed := 0
	for _, row := range rows {
		if err := s.writeScore(ctx, row.UserID, row.Metric, row.Period, row.Suffix, row.Delta, row.Absolute); err != nil {
			s.DB.Model(&models.LeaderboardUpdate{}).Where("id = ?", row.ID).
				Update("attempts", gorm.Expr("attempts + 1"))
			continue
		}
		if err := s.DB.Delete(&models.LeaderboardUpdate{}, "id = ?", row.ID).Error; err != nil {
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

// Top returns n entries starting at offset, best first.
func (s *LeaderboardService) Top(metric, period string, n, offset int64) ([]models.LeaderboardEntry, error) {
	ctx := context.Background()
	k := s.key(metric, period, s.now())
	zs, err := s.RDB.ZRevRangeWithScores(ctx, k, offset, offset+n-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]models.LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		entries = append(entries, models.LeaderboardEntry{
			Rank:   offset + int64(i) + 1,
			UserID: fmt.Sprint(z.Member),
			Score:  z.Score,
		})
	}
	return entries, nil
}

// FriendsView ranks the caller against a pre-resolved friend-id set. Scores
// are looked up individually and re-sorted locally; ranks are relative to the
// friend circle, not the global board. Circle members who never scored on
// this board are left out rather than shown as zero.
func (s *LeaderboardService) FriendsView(metric, period, userID string, friendIDs []string) ([]models.LeaderboardEntry, error) {
	ctx := context.Background()
	k := s.key(metric, period, s.now())

	ids := append([]string{userID}, friendIDs...)
	entries := make([]models.LeaderboardEntry, 0, len(ids))
	for _, id := range ids {
		score, err := s.RDB.ZScore(ctx, k, id).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.LeaderboardEntry{UserID: id, Score: score})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	for i := range entries {
		entries[i].Rank = int64(i) + 1
	}
	return entries, nil
}

// UserRank returns one user's absolute rank plus the participant count, and
// detects rank movement against the previously observed rank.
func (s *LeaderboardService) UserRank(metric, period, userID string) (*models.LeaderboardSnapshot, error) {
	ctx := context.Background()
	k := s.key(metric, period, s.now())

	total, err := s.RDB.ZCard(ctx, k).Result()
	if err != nil {
		return nil, err
	}

	snap := &models.LeaderboardSnapshot{TotalParticipants: total}

	rank, err := s.RDB.ZRevRank(ctx, k, userID).Result()
	if err == redis.Nil {
		return snap, nil // not on the board
	}
	if err != nil {
		return nil, err
	}
	snap.Rank = rank + 1

	score, err := s.RDB.ZScore(ctx, k, userID).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	snap.Score = score

	// rank-change detection against the previous rank on this same board
	prevKey := s.prevRankKey(metric, period, s.now())
	prev, err := s.RDB.HGet(ctx, prevKey, userID).Int64()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if prev > 0 {
		snap.RankChange = prev - snap.Rank // positive = climbed
	}
	if err := s.RDB.HSet(ctx, prevKey, userID, snap.Rank).Err(); err != nil {
		return nil, err
	}
	if ttl := periodTTL(period); ttl > 0 {
		_ = s.RDB.Expire(ctx, prevKey, ttl).Err()
	}
	return snap, nil
}

// Around returns a window of entries centered on the user's rank.
func (s *LeaderboardService) Around(metric, period, userID string, window int64) ([]models.LeaderboardEntry, error) {
	ctx := context.Background()
	k := s.key(metric, period, s.now())

	rank, err := s.RDB.ZRevRank(ctx, k, userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	start := rank - window
	if start < 0 {
		start = 0
	}
	zs, err := s.RDB.ZRevRangeWithScores(ctx, k, start, rank+window).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]models.LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		entries = append(entries, models.LeaderboardEntry{
			Rank:   start + int64(i) + 1,
			UserID: fmt.Sprint(z.Member),
			Score:  z.Score,
		})
	}
	return entries, nil
}

// SweepExpired scans dated ranking keys and deletes the ones past their TTL
// horizon. Redis expiry normally handles this; the sweep covers keys written
// by older deployments without a TTL.
func (s *LeaderboardService) SweepExpired() (int, error) {
	if s.RDB == nil {
		return 0, nil
	}
	ctx := context.Background()
	now := s.now().UTC()

	deleted := 0
	pattern := leaderboardNamespace + ":lb:*"
	iter := s.RDB.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		period, suffix, ok := parseDatedKey(k)
		if !ok {
			continue
		}
		if expiredSuffix(period, suffix, now) {
			if err := s.RDB.Del(ctx, k).Err(); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// parseDatedKey splits "<ns>:lb:<metric>:<period>:<suffix>". Keys without a
// suffix (all-time, prevrank hashes) are skipped.
func parseDatedKey(k string) (period, suffix string, ok bool) {
	parts := strings.Split(k, ":")
	if len(parts) != 5 || parts[1] != "lb" {
		return "", "", false
	}
	period = parts[3]
	switch period {
	case models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly:
		return period, parts[4], true
	}
	return "", "", false
}

func expiredSuffix(period, suffix string, now time.Time) bool {
	switch period {
	case models.PeriodDaily:
		day, err := time.Parse("2006-01-02", suffix)
		if err != nil {
			return false
		}
		return now.Sub(day) > dailyTTL
	case models.PeriodWeekly:
		var y, w int
		if _, err := fmt.Sscanf(suffix, "%d-W%d", &y, &w); err != nil {
			return false
		}
		cy, cw := now.ISOWeek()
		return (cy-y)*53+(cw-w) > 2
	case models.PeriodMonthly:
		month, err := time.Parse("2006-01", suffix)
		if err != nil {
			return false
		}
		return now.Sub(month) > monthlyTTL
	}
	return false
}
