package services

import (
	"testing"
	"time"

	"habit-quest-system/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestStreakMultiplier(t *testing.T) {
	tests := []struct {
		name   string
		streak int
		want   float64
	}{
		{"no streak", 0, 1.0},
		{"one day", 1, 1.02},
		{"ten days", 10, 1.2},
		{"exactly at cap", 50, 2.0},
		{"beyond cap", 365, 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StreakMultiplier(tt.streak)
			if got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("StreakMultiplier(%d) = %v, want %v", tt.streak, got, tt.want)
			}
		})
	}
}

func TestRecordActivityFirstEver(t *testing.T) {
	prog := &models.UserProgression{}
	res := RecordActivity(prog, day(2025, time.March, 5)) // Wednesday

	if res.CurrentStreak != 1 || prog.CurrentStreak != 1 {
		t.Errorf("first activity should open a streak of 1, got %d", res.CurrentStreak)
	}
	if prog.BestStreak != 1 {
		t.Errorf("best streak should track, got %d", prog.BestStreak)
	}
	// first activity of the week also grants the free weekly freeze
	if prog.FreezeAvailable != 1 {
		t.Errorf("weekly free freeze not granted, available=%d", prog.FreezeAvailable)
	}
}

func TestRecordActivitySameDayIsNoop(t *testing.T) {
	prog := &models.UserProgression{}
	RecordActivity(prog, day(2025, time.March, 5))
	res := RecordActivity(prog, day(2025, time.March, 5).Add(6*time.Hour))

	if res.CurrentStreak != 1 || res.StreakLost || res.FreezeUsed {
		t.Errorf("same-day activity must not change streak state: %+v", res)
	}
}

func TestRecordActivityConsecutiveDays(t *testing.T) {
	prog := &models.UserProgression{}
	RecordActivity(prog, day(2025, time.March, 5))
	res := RecordActivity(prog, day(2025, time.March, 6))

	if res.CurrentStreak != 2 {
		t.Errorf("consecutive day should extend streak to 2, got %d", res.CurrentStreak)
	}
}

func TestRecordActivityOneMissedDayConsumesFreeze(t *testing.T) {
	prog := &models.UserProgression{FreezeAvailable: 2}
	RecordActivity(prog, day(2025, time.March, 5))
	before := prog.FreezeAvailable

	res := RecordActivity(prog, day(2025, time.March, 7)) // skipped the 6th

	if !res.FreezeUsed {
		t.Fatalf("freeze should bridge a single missed day: %+v", res)
	}
	if res.CurrentStreak != 2 {
		t.Errorf("bridged streak should continue to 2, got %d", res.CurrentStreak)
	}
	if prog.FreezeAvailable != before-1 {
		t.Errorf("freeze inventory should drop by one: %d -> %d", before, prog.FreezeAvailable)
	}
}

func TestRecordActivityActivatedFreezeCoversWithoutSpending(t *testing.T) {
	prog := &models.UserProgression{FreezeAvailable: 1}
	RecordActivity(prog, day(2025, time.March, 5))

	frozen := time.Date(2025, time.March, 6, 0, 0, 0, 0, time.UTC)
	prog.StreakFrozenUntil = &frozen
	before := prog.FreezeAvailable

	res := RecordActivity(prog, day(2025, time.March, 7))

	if !res.FreezeUsed || res.CurrentStreak != 2 {
		t.Fatalf("activated freeze should bridge the gap: %+v", res)
	}
	if prog.FreezeAvailable != before {
		t.Errorf("already-activated freeze must not spend inventory: %d -> %d", before, prog.FreezeAvailable)
	}
	if prog.StreakFrozenUntil != nil {
		t.Errorf("spent freeze window should clear")
	}
}

func TestRecordActivityStreakBreak(t *testing.T) {
	prog := &models.UserProgression{CurrentStreak: 9, BestStreak: 9}
	last := time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)
	prog.LastActivityDate = &last
	prog.CurrentStreak = 10
	prog.BestStreak = 10

	// two missed days: freezes cannot bridge, streak resets
	prog.FreezeAvailable = 3
	res := RecordActivity(prog, day(2025, time.March, 8))

	if !res.StreakLost {
		t.Fatalf("two missed days must break the streak: %+v", res)
	}
	if res.LostStreakLength != 10 {
		t.Errorf("lost length = %d, want 10", res.LostStreakLength)
	}
	if res.CurrentStreak != 1 {
		t.Errorf("broken streak restarts at 1, got %d", res.CurrentStreak)
	}
	if prog.BestStreak != 10 {
		t.Errorf("best streak preserved on break, got %d", prog.BestStreak)
	}
}

func TestRecordActivityCrossedThresholds(t *testing.T) {
	prog := &models.UserProgression{CurrentStreak: 6, BestStreak: 6}
	last := time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)
	prog.LastActivityDate = &last

	res := RecordActivity(prog, day(2025, time.March, 6))

	if len(res.CrossedThresholds) != 1 || res.CrossedThresholds[0] != 7 {
		t.Errorf("streak 6->7 should cross the 7-day mark, got %v", res.CrossedThresholds)
	}
}

func TestWeeklyFreezeGrantOncePerWeek(t *testing.T) {
	prog := &models.UserProgression{}
	RecordActivity(prog, day(2025, time.March, 3)) // Monday
	RecordActivity(prog, day(2025, time.March, 4))
	RecordActivity(prog, day(2025, time.March, 5))

	if prog.FreezeAvailable != 1 {
		t.Errorf("only one free freeze per week, got %d", prog.FreezeAvailable)
	}

	RecordActivity(prog, day(2025, time.March, 10)) // next Monday (streak breaks, grant still lands)
	if prog.FreezeAvailable != 2 {
		t.Errorf("new week should grant another freeze, got %d", prog.FreezeAvailable)
	}
}

func TestMondayOfWeek(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"monday maps to itself", day(2025, time.March, 3), time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)},
		{"sunday maps back six days", day(2025, time.March, 9), time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)},
		{"wednesday maps back two days", day(2025, time.March, 5), time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mondayOfWeek(tt.in); !got.Equal(tt.want) {
				t.Errorf("mondayOfWeek(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
