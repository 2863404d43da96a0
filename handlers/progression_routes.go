// handlers/progression_routes.go
package handlers

import (
	"errors"
	"time"

	"habit-quest-system/middleware"
	"habit-quest-system/models"
	"habit-quest-system/services"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps domain error classes onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrAlreadyCompleted),
		errors.Is(err, models.ErrFreezeActive),
		errors.Is(err, models.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrInsufficientCoins),
		errors.Is(err, models.ErrFreezeCapReached),
		errors.Is(err, models.ErrNoFreezeAvailable),
		errors.Is(err, models.ErrSelfCombat):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrMissingStats),
		errors.Is(err, models.ErrCompletionNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

func SetupProgressionRoutes(app *fiber.App, rewards *services.RewardService, streaks *services.StreakService, badges *services.BadgeService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Completion paths. The habit/task CRUD lives in another service; this
	// engine receives the completion event and owns the arithmetic.
	secured.Post("/user/completions/habit", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			SourceID  string     `json:"source_id"`
			Category  string     `json:"category"`
			Timestamp *time.Time `json:"timestamp"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if req.SourceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "source_id is required"})
		}

		event := models.CompletionEvent{
			UserID:   userID,
			Kind:     models.KindHabit,
			SourceID: req.SourceID,
			Category: req.Category,
		}
		if req.Timestamp != nil {
			event.Timestamp = *req.Timestamp
		}

		result, err := rewards.CompleteHabit(event)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(result)
	})

	secured.Post("/user/completions/task", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			SourceID       string                 `json:"source_id"`
			Difficulty     string                 `json:"difficulty"`
			CompletedEarly bool                   `json:"completed_early"`
			Timestamp      *time.Time             `json:"timestamp"`
			Evaluation     *models.TaskEvaluation `json:"evaluation"` // pre-computed by the external evaluator
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if req.SourceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "source_id is required"})
		}

		event := models.CompletionEvent{
			UserID:         userID,
			Kind:           models.KindTask,
			SourceID:       req.SourceID,
			Difficulty:     req.Difficulty,
			CompletedEarly: req.CompletedEarly,
		}
		if req.Timestamp != nil {
			event.Timestamp = *req.Timestamp
		}

		result, err := rewards.CompleteTask(event, req.Evaluation)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(result)
	})

	secured.Delete("/user/completions", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		kind := c.Query("kind", models.KindHabit)
		sourceID := c.Query("source_id")
		if sourceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "source_id is required"})
		}

		if err := rewards.UndoCompletion(userID, kind, sourceID, time.Now()); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "completion undone"})
	})

	secured.Get("/user/progression", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		prog, err := rewards.EnsureProgression(userID)
		if err != nil {
			return fail(c, err)
		}

		next := services.GetNextMilestone(prog.Level, prog.TotalXP)
		return c.JSON(fiber.Map{
			"progression":       prog,
			"xp_for_next_level": services.XPForLevel(prog.Level + 1),
			"streak_multiplier": services.StreakMultiplier(prog.CurrentStreak),
			"next_milestone":    next,
		})
	})

	secured.Get("/user/badges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		list, err := badges.UserBadges(userID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(list)
	})

	secured.Get("/user/badges/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		progress, err := badges.Progress(userID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(progress)
	})

	secured.Post("/user/freeze/purchase", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		prog, err := streaks.PurchaseFreeze(userID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "freeze purchased", "freeze_available": prog.FreezeAvailable, "coins": prog.Coins})
	})

	secured.Post("/user/freeze/activate", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		prog, err := streaks.ActivateFreeze(userID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "freeze activated", "streak_frozen_until": prog.StreakFrozenUntil})
	})

	// Admin endpoints
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	admin.Post("/xp/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
			XP     int64  `json:"xp"`
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if req.UserID == "" || req.XP == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and xp are required"})
		}

		prog, err := rewards.AddXP(req.UserID, req.XP, models.SourceAdmin, "", req.Reason)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"message":  "XP granted successfully",
			"user_id":  req.UserID,
			"total_xp": prog.TotalXP,
			"level":    prog.Level,
		})
	})

	admin.Post("/coins/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
			Coins  int64  `json:"coins"`
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if req.UserID == "" || req.Coins == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and coins are required"})
		}

		prog, err := rewards.AddCoins(req.UserID, req.Coins, models.SourceAdmin, "", req.Reason)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"message": "coins granted successfully",
			"user_id": req.UserID,
			"coins":   prog.Coins,
		})
	})
}
