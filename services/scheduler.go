// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweepScheduler runs the expired ranking-key sweep on an interval.
func (s *LeaderboardService) StartSweepScheduler(interval time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			deleted, err := s.SweepExpired()
			if err != nil {
				log.Printf("[Scheduler] leaderboard sweep error: %v", err)
				return
			}
			if deleted > 0 {
				log.Printf("✅ Swept %d expired leaderboard key(s)", deleted)
			}
		}),
	)
}
