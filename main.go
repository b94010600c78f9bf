package main

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailblast/config"
	controller "mailblast/controllers"
	"mailblast/middleware"
	"mailblast/routes"
	"mailblast/store"
	"mailblast/utils"
	"mailblast/worker"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Warnf("Sentry initialization failed: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	st := store.New(config.DB)

	// Core engines
	prober := utils.NewProber(config.AppConfig.ProbeHeloName, config.AppConfig.ProbeFromEmail)
	verifier := utils.NewVerifier(prober)
	transport := utils.NewGomailTransport()
	personalizer := utils.NewPersonalizer(config.AppConfig.TrackingBaseURL)
	injector := utils.NewTrackingInjector(config.AppConfig.TrackingBaseURL)

	dispatcher := worker.NewDispatcher(st, transport, personalizer, injector, logger)
	hub := controller.NewProgressHub(logger)
	dispatcher.AddNotifier(hub)

	// Background bounce mailbox polling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bounceWorker := worker.NewBounceWorker(st, config.AppConfig.BounceMailbox, logger)
	go bounceWorker.Start(ctx)

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, st, dispatcher, verifier, transport, hub, logger)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Infof("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
