// handlers/badge_admin_routes.go
package handlers

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"

	"habit-quest-system/middleware"
	"habit-quest-system/models"
	"habit-quest-system/services"
	"habit-quest-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

var titleCaser = cases.Title(language.English)

func SetupBadgeAdminRoutes(app *fiber.App, badges *services.BadgeService) {
	admin := app.Group("/admin/badges",
		middleware.UserContextMiddleware(),
		middleware.RequireRole("admin"),
	)

	// POST /admin/badges: multipart form: name, description, condition_type,
	// condition_params (JSON string), xp_reward, secret, icon (optional file)
	admin.Post("/", func(c *fiber.Ctx) error {
		name := strings.TrimSpace(c.FormValue("name"))
		if name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
		}
		condType := c.FormValue("condition_type")
		if !badges.HasCondition(condType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown condition_type: " + condType})
		}

		var params models.JSONMap
		if raw := c.FormValue("condition_params"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "condition_params must be valid JSON"})
			}
		}

		xpReward, _ := strconv.ParseInt(c.FormValue("xp_reward", "0"), 10, 64)

		badge := models.Badge{
			Code:            slug.Make(name),
			Name:            titleCaser.String(name),
			Description:     c.FormValue("description"),
			ConditionType:   condType,
			ConditionParams: params,
			XPReward:        xpReward,
			Secret:          c.FormValue("secret") == "true",
		}

		if fileHeader, err := c.FormFile("icon"); err == nil {
			url, upErr := utils.UploadBadgeIcon(fileHeader, badge.Code)
			if upErr != nil {
				log.Printf("❌ [BADGE] icon upload failed for %s: %v", badge.Code, upErr)
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "icon upload failed"})
			}
			badge.IconURL = url
		}

		if err := badges.DB.Create(&badge).Error; err != nil {
			if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "UNIQUE") {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "badge code already exists: " + badge.Code})
			}
			return fail(c, err)
		}

		log.Printf("✅ [BADGE] created %s (%s)", badge.Code, badge.ConditionType)
		return c.Status(fiber.StatusCreated).JSON(badge)
	})

	// PATCH /admin/badges/:code: update description, xp_reward, secret or icon
	admin.Patch("/:code", func(c *fiber.Ctx) error {
		var badge models.Badge
		if err := badges.DB.Where("code = ?", c.Params("code")).First(&badge).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "badge not found"})
			}
			return fail(c, err)
		}

		if v := c.FormValue("description"); v != "" {
			badge.Description = v
		}
		if v := c.FormValue("xp_reward"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				badge.XPReward = n
			}
		}
		if v := c.FormValue("secret"); v != "" {
			badge.Secret = v == "true"
		}
		if fileHeader, err := c.FormFile("icon"); err == nil {
			if badge.IconURL != "" {
				if delErr := utils.DeleteBadgeIcon(badge.IconURL); delErr != nil {
					log.Printf("⚠️ [BADGE] stale icon cleanup failed for %s: %v", badge.Code, delErr)
				}
			}
			url, upErr := utils.UploadBadgeIcon(fileHeader, badge.Code)
			if upErr != nil {
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "icon upload failed"})
			}
			badge.IconURL = url
		}

		if err := badges.DB.Save(&badge).Error; err != nil {
			return fail(c, err)
		}
		return c.JSON(badge)
	})

	// GET /admin/badges: full catalog including secret badges
	admin.Get("/", func(c *fiber.Ctx) error {
		var all []models.Badge
		if err := badges.DB.Order("created_at ASC").Find(&all).Error; err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"badges": all})
	})
}
