package services

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"habit-quest-system/models"

	"gorm.io/gorm"
)

// Combat tuning
const (
	combatMaxTurns = 50
	combatBaseHP   = 100
	hpPerEndurance = 5

	dodgePerAgility       = 0.005 // capped at 30%
	dodgeCap              = 0.30
	critPerIntelligence   = 0.003 // capped at 20%
	critCap               = 0.20
	critDamageMultiplier  = 1.5
	armorReductionPerPt   = 0.02 // capped at 50%
	armorReductionCap     = 0.50
	damageVarianceMin     = 0.8
	damageVarianceSpread  = 0.4
	winnerBaseXP          = 50
	winnerBaseCoins       = 25
	loserConsolationXP    = 10
	xpPerLevelUnderdogWin = 10
)

// MaxHP derives hit points from endurance.
func MaxHP(endurance int) int {
	return combatBaseHP + endurance*hpPerEndurance
}

// DodgeChance is agility-driven, capped at 30%.
func DodgeChance(agility int) float64 {
	c := float64(agility) * dodgePerAgility
	if c > dodgeCap {
		return dodgeCap
	}
	return c
}

// CritChance is intelligence-driven, capped at 20%.
func CritChance(intelligence int) float64 {
	c := float64(intelligence) * critPerIntelligence
	if c > critCap {
		return critCap
	}
	return c
}

// SimOutcome is the pure simulation result. WinnerIdx is 0 for the
// challenger, 1 for the defender, -1 for a draw.
type SimOutcome struct {
	WinnerIdx    int
	ChallengerHP int
	DefenderHP   int
	Turns        []models.TurnEntry
}

// SimulateCombat runs the seeded turn loop against two frozen snapshots.
// The same seed and stats always reproduce the same turn log: rolls are
// consumed in a fixed order (dodge, then variance, then crit; a dodged attack
// consumes only the dodge roll).
func SimulateCombat(seed int64, challenger, defender models.CombatSnapshot) SimOutcome {
	rng := rand.New(rand.NewSource(seed))

	hp := [2]int{MaxHP(challenger.Endurance), MaxHP(defender.Endurance)}
	maxHP := hp
	stats := [2]models.CombatSnapshot{challenger, defender}

	// higher agility opens; thereafter turns strictly alternate
	attacker := 0
	if defender.Agility > challenger.Agility {
		attacker = 1
	}

	out := SimOutcome{WinnerIdx: -1}
	for turn := 1; turn <= combatMaxTurns; turn++ {
		target := 1 - attacker
		entry := models.TurnEntry{
			Turn:       turn,
			AttackerID: stats[attacker].UserID,
			DefenderID: stats[target].UserID,
		}

		if rng.Float64() < DodgeChance(stats[target].Agility) {
			entry.Dodged = true
		} else {
			variance := damageVarianceMin + rng.Float64()*damageVarianceSpread
			dmg := float64(stats[attacker].Strength+stats[attacker].WeaponBonus) * variance
			if rng.Float64() < CritChance(stats[attacker].Intelligence) {
				dmg *= critDamageMultiplier
				entry.Critical = true
			}
			reduction := float64(stats[target].ArmorBonus) * armorReductionPerPt
			if reduction > armorReductionCap {
				reduction = armorReductionCap
			}
			dmg *= 1.0 - reduction
			final := int(dmg)
			if final < 1 {
				final = 1
			}
			hp[target] -= final
			if hp[target] < 0 {
				hp[target] = 0
			}
			entry.Damage = final
		}
		entry.DefenderHP = hp[target]
		out.Turns = append(out.Turns, entry)

		if hp[target] == 0 {
			out.WinnerIdx = attacker
			break
		}
		attacker = target
	}

	if out.WinnerIdx == -1 {
		// timeout: higher remaining HP percentage takes it
		pctC := float64(hp[0]) / float64(maxHP[0])
		pctD := float64(hp[1]) / float64(maxHP[1])
		if pctC > pctD {
			out.WinnerIdx = 0
		} else if pctD > pctC {
			out.WinnerIdx = 1
		}
	}

	out.ChallengerHP = hp[0]
	out.DefenderHP = hp[1]
	return out
}

// CombatResult is the resolution returned to the caller.
type CombatResult struct {
	Record      *models.CombatRecord `json:"record"`
	IsDraw      bool                 `json:"is_draw"`
	WinnerID    *string              `json:"winner_id,omitempty"`
	LoserID     *string              `json:"loser_id,omitempty"`
	WinnerXP    int64                `json:"winner_xp"`
	WinnerCoins int64                `json:"winner_coins"`
	LoserXP     int64                `json:"loser_xp"`
}

type CombatService struct {
	DB          *gorm.DB
	Rewards     *RewardService
	Leaderboard *LeaderboardService // nil-safe

	// seedFn is swappable in tests for reproducible end-to-end resolutions.
	seedFn func() int64
}

func NewCombatService(db *gorm.DB, rewards *RewardService, lb *LeaderboardService) *CombatService {
	return &CombatService{
		DB:          db,
		Rewards:     rewards,
		Leaderboard: lb,
		seedFn:      func() int64 { return time.Now().UnixNano() },
	}
}

// Challenge resolves a PvP combat synchronously. Both participants' stats are
// read once at the start and the simulation runs against those frozen
// snapshots. A missing participant fails the request outright; no partial
// combat record is ever written.
func (s *CombatService) Challenge(challengerID, defenderID string, wagerCoins int64) (*CombatResult, error) {
	if challengerID == defenderID {
		return nil, models.ErrSelfCombat
	}
	if wagerCoins < 0 {
		wagerCoins = 0
	}

	var result *CombatResult
	var winnerUID string
	var challengerXPDelta, defenderXPDelta int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		challenger, cVersion, err := loadCombatant(tx, challengerID)
		if err != nil {
			return err
		}
		defender, dVersion, err := loadCombatant(tx, defenderID)
		if err != nil {
			return err
		}
		challengerXPBefore := challenger.TotalXP
		defenderXPBefore := defender.TotalXP

		if challenger.Coins < wagerCoins {
			return models.ErrInsufficientCoins
		}

		seed := s.seedFn()
		sim := SimulateCombat(seed, challenger.Snapshot(), defender.Snapshot())

		record := models.CombatRecord{
			ChallengerID:    challengerID,
			DefenderID:      defenderID,
			ChallengerStats: challenger.Snapshot(),
			DefenderStats:   defender.Snapshot(),
			Seed:            seed,
			TurnLog:         sim.Turns,
			ChallengerHP:    sim.ChallengerHP,
			DefenderHP:      sim.DefenderHP,
			WagerCoins:      wagerCoins,
		}

		res := &CombatResult{IsDraw: sim.WinnerIdx == -1}

		// the challenger's wager goes into escrow up front
		if wagerCoins > 0 {
			if err := applyCoins(tx, challenger, -wagerCoins, models.SourceCombat, "", "combat wager staked"); err != nil {
				return err
			}
		}

		if sim.WinnerIdx == -1 {
			// draw: stake returns to the challenger
			if wagerCoins > 0 {
				if err := applyCoins(tx, challenger, wagerCoins, models.SourceCombat, "", "combat wager returned (draw)"); err != nil {
					return err
				}
			}
		} else {
			winner, loser := challenger, defender
			challengerWon := sim.WinnerIdx == 0
			if !challengerWon {
				winner, loser = defender, challenger
			}

			levelGap := int64(loser.Level - winner.Level)
			if levelGap < 0 {
				levelGap = 0
			}
			winnerXP := int64(winnerBaseXP) + levelGap*xpPerLevelUnderdogWin
			winnerCoins := int64(winnerBaseCoins) + wagerCoins

			if _, err := applyXP(tx, winner, winnerXP, models.SourceCombat, "", "combat victory"); err != nil {
				return err
			}
			if err := applyCoins(tx, winner, winnerCoins, models.SourceCombat, "", "combat victory"); err != nil {
				return err
			}
			if _, err := applyXP(tx, loser, loserConsolationXP, models.SourceCombat, "", "combat consolation"); err != nil {
				return err
			}

			winner.CombatWins++
			loser.CombatLosses++

			wid, lid := winner.UserID, loser.UserID
			record.WinnerID = &wid
			record.WinnerXP = winnerXP
			record.WinnerCoins = winnerCoins
			record.LoserXP = loserConsolationXP
			res.WinnerID = &wid
			res.LoserID = &lid
			res.WinnerXP = winnerXP
			res.WinnerCoins = winnerCoins
			res.LoserXP = loserConsolationXP
			winnerUID = wid
		}

		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		now := time.Now()
		if _, err := s.Rewards.Badges.CheckAllBadges(tx, challenger, now); err != nil {
			return err
		}
		if _, err := s.Rewards.Badges.CheckAllBadges(tx, defender, now); err != nil {
			return err
		}

		if err := saveProgression(tx, challenger, cVersion); err != nil {
			return err
		}
		if err := saveProgression(tx, defender, dVersion); err != nil {
			return err
		}

		res.Record = &record
		result = res
		challengerXPDelta = challenger.TotalXP - challengerXPBefore
		defenderXPDelta = defender.TotalXP - defenderXPBefore

		// point the record source ids at the persisted combat (ledger rows
		// were written before the record id existed, so backfill them)
		if err := tx.Model(&models.XPTransaction{}).
			Where("source_type = ? AND source_id = '' AND user_id IN ?", models.SourceCombat, []string{challengerID, defenderID}).
			Update("source_id", record.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.CoinTransaction{}).
			Where("source_type = ? AND source_id = '' AND user_id IN ?", models.SourceCombat, []string{challengerID, defenderID}).
			Update("source_id", record.ID).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// ranking store updates ride behind the committed write; the published
	// deltas cover combat rewards and any badges that unlocked with them
	if s.Leaderboard != nil {
		if challengerXPDelta != 0 {
			s.Leaderboard.RecordXPGain(challengerID, challengerXPDelta)
		}
		if defenderXPDelta != 0 {
			s.Leaderboard.RecordXPGain(defenderID, defenderXPDelta)
		}
		if result.WinnerID != nil {
			s.Leaderboard.RecordCombatWin(winnerUID)
		}
	}

	log.Printf("⚔️ Combat resolved: %s vs %s (turns=%d, draw=%v)",
		challengerID, defenderID, len(result.Record.TurnLog), result.IsDraw)
	return result, nil
}

// History lists a user's combats, newest first.
func (s *CombatService) History(userID string, limit int) ([]models.CombatRecord, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	var records []models.CombatRecord
	err := s.DB.Where("challenger_id = ? OR defender_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func loadCombatant(tx *gorm.DB, userID string) (*models.UserProgression, int64, error) {
	var prog models.UserProgression
	err := tx.Where("user_id = ?", userID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, fmt.Errorf("%w: %s", models.ErrMissingStats, userID)
	}
	if err != nil {
		return nil, 0, err
	}
	return &prog, prog.Version, nil
}
