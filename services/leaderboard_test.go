package services

import (
	"context"
	"testing"
	"time"

	"habit-quest-system/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLeaderboard(t *testing.T) (*LeaderboardService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewLeaderboardService(rdb, nil)
	svc.now = func() time.Time { return time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC) }
	return svc, mr
}

func TestLoneParticipantRank(t *testing.T) {
	svc, _ := newTestLeaderboard(t)

	svc.RecordXPGain("u1", 120)

	snap, err := svc.UserRank(models.MetricXP, models.PeriodAllTime, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Rank != 1 {
		t.Errorf("Rank = %d, want 1", snap.Rank)
	}
	if snap.TotalParticipants != 1 {
		t.Errorf("TotalParticipants = %d, want 1", snap.TotalParticipants)
	}
	if snap.Score != 120 {
		t.Errorf("Score = %v, want 120", snap.Score)
	}
}

func TestUserRankNotOnBoard(t *testing.T) {
	svc, _ := newTestLeaderboard(t)

	svc.RecordXPGain("someone-else", 10)

	snap, err := svc.UserRank(models.MetricXP, models.PeriodAllTime, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Rank != 0 {
		t.Errorf("unranked user should report rank 0, got %d", snap.Rank)
	}
	if snap.TotalParticipants != 1 {
		t.Errorf("TotalParticipants = %d, want 1", snap.TotalParticipants)
	}
}

func TestXPGainsAccumulateStreakReplaces(t *testing.T) {
	svc, _ := newTestLeaderboard(t)

	svc.RecordXPGain("u1", 50)
	svc.RecordXPGain("u1", 30)
	svc.RecordStreak("u1", 10)
	svc.RecordStreak("u1", 3) // streak broke: gauge drops

	xpSnap, err := svc.UserRank(models.MetricXP, models.PeriodDaily, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if xpSnap.Score != 80 {
		t.Errorf("xp is incremental: score = %v, want 80", xpSnap.Score)
	}

	streakSnap, err := svc.UserRank(models.MetricStreak, models.PeriodDaily, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if streakSnap.Score != 3 {
		t.Errorf("streak is a gauge: score = %v, want 3", streakSnap.Score)
	}
}

func TestTopOrderingAndOffset(t *testing.T) {
	svc, _ := newTestLeaderboard(t)

	svc.RecordXPGain("bronze", 10)
	svc.RecordXPGain("gold", 100)
	svc.RecordXPGain("silver", 50)

	top, err := svc.Top(models.MetricXP, models.PeriodWeekly, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].UserID != "gold" || top[1].UserID != "silver" {
		t.Fatalf("top order wrong: %+v", top)
	}
	if top[0].Rank != 1 || top[1].Rank != 2 {
		t.Errorf("ranks wrong: %+v", top)
	}

	rest, err := svc.Top(models.MetricXP, models.PeriodWeekly, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || rest[0].UserID != "bronze" || rest[0].Rank != 3 {
		t.Fatalf("offset page wrong: %+v", rest)
	}
}

func TestFriendsViewRelativeRanks(t *testing.T) {
	svc, _ := newTestLeaderboard(t)

	svc.RecordXPGain("me", 50)
	svc.RecordXPGain("friend-a", 80)
	svc.RecordXPGain("friend-b", 20)
	svc.RecordXPGain("stranger", 9000) // not in the circle, must not appear

	entries, err := svc.FriendsView(models.MetricXP, models.PeriodAllTime, "me", []string{"friend-a", "friend-b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("want 3 circle entries, got %d", len(entries))
	}
	want := []string{"friend-a", "me", "friend-b"}
	for i, w := range want {
		if entries[i].UserID != w {
			t.Errorf("position %d = %s, want %s", i+1, entries[i].UserID, w)
		}
		if entries[i].Rank != int64(i)+1 {
			t.Errorf("rank at position %d = %d, want %d", i, entries[i].Rank, i+1)
		}
	}
}

func TestAroundWindow(t *testing.T) {
	svc, _ := newTestLeaderboard(t)

	users := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	for i, u := range users {
		svc.RecordXPGain(u, int64(100-i*10)) // p1 highest
	}

	entries, err := svc.Around(models.MetricXP, models.PeriodAllTime, "p4", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("window of 1 around rank 4 should hold 3 entries, got %d", len(entries))
	}
	if entries[0].UserID != "p3" || entries[1].UserID != "p4" || entries[2].UserID != "p5" {
		t.Errorf("window entries wrong: %+v", entries)
	}
	if entries[0].Rank != 3 {
		t.Errorf("window ranks must be absolute, got %+v", entries[0])
	}

	// near the top the window clips at rank 1
	entries, err = svc.Around(models.MetricXP, models.PeriodAllTime, "p1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Rank != 1 || entries[0].UserID != "p1" {
		t.Errorf("clipped window should start at rank 1: %+v", entries)
	}

	// absent member yields an empty window, not an error
	entries, err = svc.Around(models.MetricXP, models.PeriodAllTime, "ghost", 2)
	if err != nil || entries != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", entries, err)
	}
}

func TestRankChangeDetection(t *testing.T) {
	svc, _ := newTestLeaderboard(t)

	svc.RecordXPGain("u1", 10)
	svc.RecordXPGain("u2", 100)

	// first observation seeds the previous rank
	snap, err := svc.UserRank(models.MetricXP, models.PeriodAllTime, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Rank != 2 || snap.RankChange != 0 {
		t.Fatalf("first look: rank %d change %d, want rank 2 change 0", snap.Rank, snap.RankChange)
	}

	svc.RecordXPGain("u1", 200) // u1 overtakes u2

	snap, err = svc.UserRank(models.MetricXP, models.PeriodAllTime, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Rank != 1 {
		t.Fatalf("after overtake, rank = %d, want 1", snap.Rank)
	}
	if snap.RankChange != 1 {
		t.Errorf("RankChange = %d, want +1 (climbed one place)", snap.RankChange)
	}
}

func TestReplayQueuedDrainsTheQueue(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewLeaderboardService(rdb, db)
	svc.now = func() time.Time { return time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC) }

	// rows parked while the ranking store was unreachable
	svc.enqueue("u1", models.MetricXP, models.PeriodAllTime, "", 40, false)
	svc.enqueue("u1", models.MetricXP, models.PeriodAllTime, "", 10, false)
	svc.enqueue("u1", models.MetricStreak, models.PeriodAllTime, "", 6, true)

	replayed, err := svc.ReplayQueued(100)
	if err != nil {
		t.Fatal(err)
	}
	if replayed != 3 {
		t.Errorf("replayed = %d, want 3", replayed)
	}

	var remaining int64
	db.Model(&models.LeaderboardUpdate{}).Count(&remaining)
	if remaining != 0 {
		t.Errorf("queue should be empty after replay, %d rows left", remaining)
	}

	snap, err := svc.UserRank(models.MetricXP, models.PeriodAllTime, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Score != 50 {
		t.Errorf("replayed xp = %v, want 50", snap.Score)
	}
}

func TestSweepExpiredDropsStaleDatedKeys(t *testing.T) {
	svc, mr := newTestLeaderboard(t)

	svc.RecordXPGain("u1", 10) // writes daily, weekly, monthly, alltime keys

	// jump far past every period horizon
	svc.now = func() time.Time { return time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC) }

	deleted, err := svc.SweepExpired()
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want the 3 dated keys", deleted)
	}
	if !mr.Exists("habitquest:lb:xp:alltime") {
		t.Errorf("all-time key must survive the sweep")
	}
}

func TestReplayTargetsOnlyFailedBoard(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewLeaderboardService(rdb, db)

	// only the daily write failed on March 4; the other boards landed then
	svc.enqueue("u1", models.MetricXP, models.PeriodDaily, "2025-03-04", 40, false)

	// the replay runs a day later
	svc.now = func() time.Time { return time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC) }
	replayed, err := svc.ReplayQueued(100)
	if err != nil {
		t.Fatal(err)
	}
	if replayed != 1 {
		t.Fatalf("replayed = %d, want 1", replayed)
	}

	ctx := context.Background()
	score, err := rdb.ZScore(ctx, "habitquest:lb:xp:daily:2025-03-04", "u1").Result()
	if err != nil || score != 40 {
		t.Errorf("delta must land on the board it was earned on: score=%v err=%v", score, err)
	}
	if mr.Exists("habitquest:lb:xp:daily:2025-03-05") {
		t.Error("replay must not credit the replay day's board")
	}
	if mr.Exists("habitquest:lb:xp:alltime") {
		t.Error("replay must not touch boards that already took the write")
	}
}

func TestOutageQueuesPerBoardAndReplays(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewLeaderboardService(rdb, db)
	svc.now = func() time.Time { return time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC) }

	mr.SetError("LOADING")
	svc.RecordXPGain("u1", 25)

	var queued int64
	db.Model(&models.LeaderboardUpdate{}).Count(&queued)
	if queued != 4 {
		t.Fatalf("one row per failed board: got %d, want 4", queued)
	}

	mr.SetError("")
	svc.now = func() time.Time { return time.Date(2025, time.March, 6, 12, 0, 0, 0, time.UTC) }
	replayed, err := svc.ReplayQueued(100)
	if err != nil {
		t.Fatal(err)
	}
	if replayed != 4 {
		t.Fatalf("replayed = %d, want 4", replayed)
	}

	ctx := context.Background()
	for _, key := range []string{
		"habitquest:lb:xp:daily:2025-03-05",
		"habitquest:lb:xp:weekly:2025-W10",
		"habitquest:lb:xp:monthly:2025-03",
		"habitquest:lb:xp:alltime",
	} {
		score, err := rdb.ZScore(ctx, key, "u1").Result()
		if err != nil || score != 25 {
			t.Errorf("%s: score=%v err=%v, want 25", key, score, err)
		}
	}
	if mr.Exists("habitquest:lb:xp:daily:2025-03-06") {
		t.Error("delta earned on March 5 must not appear on March 6's board")
	}
}

func TestRankChangeScopedToBoardDay(t *testing.T) {
	svc, _ := newTestLeaderboard(t)

	svc.RecordXPGain("u1", 10)
	svc.RecordXPGain("u2", 100)

	// observed at rank 2 on today's daily board
	snap, err := svc.UserRank(models.MetricXP, models.PeriodDaily, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Rank != 2 {
		t.Fatalf("rank = %d, want 2", snap.Rank)
	}

	// the next day starts a fresh board where u1 leads alone; yesterday's
	// observation must not register as a climb
	svc.now = func() time.Time { return time.Date(2025, time.March, 6, 12, 0, 0, 0, time.UTC) }
	svc.RecordXPGain("u1", 5)

	snap, err = svc.UserRank(models.MetricXP, models.PeriodDaily, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Rank != 1 {
		t.Fatalf("fresh board rank = %d, want 1", snap.Rank)
	}
	if snap.RankChange != 0 {
		t.Errorf("RankChange = %d, want 0 on a board with no prior observation", snap.RankChange)
	}
}

func TestFriendsViewSkipsUnrankedMembers(t *testing.T) {
	svc, _ := newTestLeaderboard(t)

	svc.RecordStreak("me", 3)
	svc.RecordStreak("zero-friend", 0) // on the board with a genuine zero

	entries, err := svc.FriendsView(models.MetricStreak, models.PeriodAllTime, "me", []string{"zero-friend", "idle-friend"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries (the never-scored friend dropped), got %d", len(entries))
	}
	if entries[0].UserID != "me" || entries[1].UserID != "zero-friend" {
		t.Errorf("circle order wrong: %+v", entries)
	}
	if entries[1].Score != 0 {
		t.Errorf("a real zero score must survive, got %v", entries[1].Score)
	}
}
