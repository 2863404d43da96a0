package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"habit-quest-system/handlers"
	"habit-quest-system/middleware"
	"habit-quest-system/models"
	"habit-quest-system/services"
	"habit-quest-system/utils"
	"habit-quest-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // badge icons only, no big uploads
	})

	// 🔐 GLOBAL: only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.UserProgression{},
		&models.XPTransaction{},
		&models.CoinTransaction{},
		&models.Completion{},
		&models.Badge{},
		&models.UserBadge{},
		&models.CombatRecord{},
		&models.LeaderboardUpdate{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatal("invalid REDIS_URL:", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// Rankings are best-effort: start anyway, writes queue up for replay.
		log.Printf("⚠️  Redis unreachable at startup (%v) — leaderboard writes will queue", err)
	}

	socialURL := os.Getenv("SOCIAL_SERVICE_URL")
	if socialURL == "" {
		log.Fatal("SOCIAL_SERVICE_URL environment variable not set")
	}
	engineToken := os.Getenv("ENGINE_SERVICE_TOKEN")
	if engineToken == "" {
		log.Fatal("ENGINE_SERVICE_TOKEN environment variable not set")
	}
	socialClient := services.NewSocialServiceClient(socialURL, engineToken)

	leaderboardService := services.NewLeaderboardService(rdb, db)
	badgeService := services.NewBadgeService(db, socialClient)
	rewardService := services.NewRewardService(db, badgeService, leaderboardService)
	streakService := services.NewStreakService(db)
	combatService := services.NewCombatService(db, rewardService, leaderboardService)

	if err := badgeService.SeedBadges(); err != nil {
		log.Fatal("failed to seed badge catalog:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go workers.PollLeaderboardQueue(ctx, leaderboardService, 30*time.Second)
	leaderboardService.StartSweepScheduler(6 * time.Hour)

	handlers.SetupProgressionRoutes(app, rewardService, streakService, badgeService)
	handlers.SetupCombatRoutes(app, combatService)
	handlers.SetupLeaderboardRoutes(app, leaderboardService, socialClient)
	handlers.SetupBadgeAdminRoutes(app, badgeService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Leaderboard retry polling running (every 30s)")
	log.Println("✅ Expired ranking key sweep scheduled (every 6h)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
