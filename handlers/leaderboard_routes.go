// handlers/leaderboard_routes.go
package handlers

import (
	"strconv"

	"habit-quest-system/middleware"
	"habit-quest-system/models"
	"habit-quest-system/services"

	"github.com/gofiber/fiber/v2"
)

func validMetric(m string) bool {
	return m == models.MetricXP || m == models.MetricStreak || m == models.MetricCombatWins
}

func validPeriod(p string) bool {
	return p == models.PeriodDaily || p == models.PeriodWeekly || p == models.PeriodMonthly || p == models.PeriodAllTime
}

func SetupLeaderboardRoutes(app *fiber.App, lb *services.LeaderboardService, friends services.FriendsProvider) {
	secured := app.Group("/leaderboard", middleware.UserContextMiddleware())

	secured.Get("/top", func(c *fiber.Ctx) error {
		metric := c.Query("metric", models.MetricXP)
		period := c.Query("period", models.PeriodAllTime)
		if !validMetric(metric) || !validPeriod(period) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid metric or period"})
		}
		limit, _ := strconv.ParseInt(c.Query("limit", "25"), 10, 64)
		offset, _ := strconv.ParseInt(c.Query("offset", "0"), 10, 64)
		if limit < 1 || limit > 100 {
			limit = 25
		}

		entries, err := lb.Top(metric, period, limit, offset)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"metric": metric, "period": period, "entries": entries})
	})

	secured.Get("/friends", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		metric := c.Query("metric", models.MetricXP)
		period := c.Query("period", models.PeriodAllTime)
		if !validMetric(metric) || !validPeriod(period) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid metric or period"})
		}

		ids, err := friends.FriendIDs(userID)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "friends lookup failed"})
		}

		entries, err := lb.FriendsView(metric, period, userID, ids)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"metric": metric, "period": period, "entries": entries})
	})

	secured.Get("/me", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		metric := c.Query("metric", models.MetricXP)
		period := c.Query("period", models.PeriodAllTime)
		if !validMetric(metric) || !validPeriod(period) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid metric or period"})
		}

		snap, err := lb.UserRank(metric, period, userID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(snap)
	})

	secured.Get("/around", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		metric := c.Query("metric", models.MetricXP)
		period := c.Query("period", models.PeriodAllTime)
		if !validMetric(metric) || !validPeriod(period) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid metric or period"})
		}
		window, _ := strconv.ParseInt(c.Query("window", "5"), 10, 64)
		if window < 1 || window > 25 {
			window = 5
		}

		entries, err := lb.Around(metric, period, userID, window)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"metric": metric, "period": period, "entries": entries})
	})
}
