package services

import "math"

// Leveling curve: cumulative threshold for level L is the sum of
// floor(BaseXP * l^LevelExponent) for l = 2..L. Each term is truncated before
// summation; a closed-form approximation drifts at higher levels, so the
// per-term floor is load-bearing.
const (
	BaseXP        = 100
	LevelExponent = 1.8
	MaxLevel      = 200

	// Default per-level grant applied for every level gained.
	StatPointsPerLevel = 3
)

// XPForLevel returns the total XP required to reach the given level.
// Level 1 (and below) is 0.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	var total int64
	for l := 2; l <= level; l++ {
		total += int64(BaseXP * math.Pow(float64(l), LevelExponent))
	}
	return total
}

// LevelFromXP returns the largest level (≤ MaxLevel) whose threshold is
// covered by totalXP. The threshold function is strictly increasing, so
// binary search is exact.
func LevelFromXP(totalXP int64) int {
	if totalXP <= 0 {
		return 1
	}
	lo, hi := 1, MaxLevel
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if XPForLevel(mid) <= totalXP {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// LevelReward is what a single gained level grants. Every level carries the
// default stat-point grant; milestone levels add coins, a title, items and
// occasionally a feature unlock.
type LevelReward struct {
	Level      int      `json:"level"`
	StatPoints int      `json:"stat_points"`
	Coins      int64    `json:"coins,omitempty"`
	Title      string   `json:"title,omitempty"`
	Items      []string `json:"items,omitempty"`
	Feature    string   `json:"feature,omitempty"`
}

var milestoneRewards = map[int]LevelReward{
	5:   {Coins: 100, Title: "Novice", Items: []string{"wooden_sword"}},
	10:  {Coins: 250, Title: "Apprentice", Items: []string{"leather_armor"}, Feature: "combat"},
	15:  {Coins: 400, Title: "Journeyman", Items: []string{"iron_sword"}},
	20:  {Coins: 600, Title: "Adept", Items: []string{"iron_armor"}, Feature: "wager_combat"},
	25:  {Coins: 800, Title: "Expert", Items: []string{"steel_sword"}},
	30:  {Coins: 1000, Title: "Master", Items: []string{"steel_armor"}},
	40:  {Coins: 1500, Title: "Grandmaster", Items: []string{"enchanted_blade"}},
	50:  {Coins: 2500, Title: "Champion", Items: []string{"champion_plate"}, Feature: "prestige"},
	75:  {Coins: 5000, Title: "Legend", Items: []string{"legendary_relic"}},
	100: {Coins: 10000, Title: "Mythic", Items: []string{"mythic_crown"}, Feature: "mythic_cosmetics"},
}

// milestoneLevels in ascending order, for forward scans.
var milestoneLevels = []int{5, 10, 15, 20, 25, 30, 40, 50, 75, 100}

// GetLevelRewards returns the reward granted for reaching exactly this level.
func GetLevelRewards(level int) LevelReward {
	r := milestoneRewards[level] // zero value for non-milestones
	r.Level = level
	r.StatPoints = StatPointsPerLevel
	return r
}

// Milestone describes the next milestone ahead of a user.
type Milestone struct {
	Level       int         `json:"level"`
	Reward      LevelReward `json:"reward"`
	XPRemaining int64       `json:"xp_remaining"`
}

// GetNextMilestone scans forward from the current level for the next milestone
// and how much XP remains to reach it. Returns nil past the last milestone.
func GetNextMilestone(currentLevel int, totalXP int64) *Milestone {
	for _, m := range milestoneLevels {
		if m > currentLevel {
			remaining := XPForLevel(m) - totalXP
			if remaining < 0 {
				remaining = 0
			}
			return &Milestone{Level: m, Reward: GetLevelRewards(m), XPRemaining: remaining}
		}
	}
	return nil
}
