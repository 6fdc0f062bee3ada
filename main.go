package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"

	"github.com/threatlens/threatfeed-backend/config"
	"github.com/threatlens/threatfeed-backend/database"
	"github.com/threatlens/threatfeed-backend/handlers"
	"github.com/threatlens/threatfeed-backend/services"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	setupLogging(cfg)

	// Connect to database
	if err := database.Connect(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate("database/schema.sql"); err != nil {
		log.Printf("Migration warning: %v", err)
	}

	// Initialize services
	nvdClient := services.NewNVDClient(cfg.NVDBaseURL, cfg.GetNVDTimeout())
	cveStore := services.NewCVEStore(database.DB)
	threatFeedService := services.NewThreatFeedService(nvdClient, cveStore)

	logrus.WithFields(logrus.Fields{
		"nvd_base_url": cfg.NVDBaseURL,
		"nvd_timeout":  cfg.GetNVDTimeout(),
	}).Info("Threat feed services initialized")

	// Seed the cache before serving traffic. Best-effort: an unreachable NVD
	// must not keep the dashboard from starting.
	if err := threatFeedService.SeedIfEmpty(context.Background()); err != nil {
		logrus.WithError(err).Warn("Threat feed seeding failed")
	}

	// Initialize handlers
	threatFeedHandler := handlers.NewThreatFeedHandler(threatFeedService)

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// Routes
	api := app.Group("/api")
	api.Get("/threat-feed/latest", threatFeedHandler.GetLatest)
	api.Post("/threat-feed/refresh", threatFeedHandler.Refresh)

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func setupLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LogJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
