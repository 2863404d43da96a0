package workers

import (
	"context"
	"log"
	"time"

	"habit-quest-system/services"
)

const retryBatchSize = 200

// PollLeaderboardQueue drains queued leaderboard updates that failed to reach
// Redis at write time. Rankings are best-effort: a Redis outage never blocks a
// completion, it just parks the score delta in the queue table until this loop
// replays it.
func PollLeaderboardQueue(ctx context.Context, lb *services.LeaderboardService, pollInterval time.Duration) {
	log.Println("Starting leaderboard retry polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Leaderboard retry polling stopped.")
			return
		case <-ticker.C:
			replayed, err := lb.ReplayQueued(retryBatchSize)
			if err != nil {
				log.Printf("❌ Error replaying leaderboard queue: %v", err)
				continue
			}
			if replayed > 0 {
				log.Printf("✅ Replayed %d queued leaderboard update(s).", replayed)
			}
		}
	}
}
