// handlers/combat_routes.go
package handlers

import (
	"strconv"

	"habit-quest-system/middleware"
	"habit-quest-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCombatRoutes(app *fiber.App, combat *services.CombatService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/combat/challenge", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			DefenderID string `json:"defender_id"`
			WagerCoins int64  `json:"wager_coins"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if req.DefenderID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "defender_id is required"})
		}

		result, err := combat.Challenge(userID, req.DefenderID, req.WagerCoins)
		if err != nil {
			return fail(c, err)
		}

		return c.JSON(fiber.Map{
			"combat_id":     result.Record.ID,
			"is_draw":       result.IsDraw,
			"winner_id":     result.WinnerID,
			"loser_id":      result.LoserID,
			"turn_log":      result.Record.TurnLog,
			"challenger_hp": result.Record.ChallengerHP,
			"defender_hp":   result.Record.DefenderHP,
			"rewards": fiber.Map{
				"winner_xp":    result.WinnerXP,
				"winner_coins": result.WinnerCoins,
				"loser_xp":     result.LoserXP,
				"wager_coins":  result.Record.WagerCoins,
			},
		})
	})

	secured.Get("/combat/history", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		limit, _ := strconv.Atoi(c.Query("limit", "20"))

		records, err := combat.History(userID, limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(records)
	})
}
