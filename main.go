package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cadenceflow/config"
	"cadenceflow/engine"
	"cadenceflow/middleware"
	"cadenceflow/notify"
	"cadenceflow/routes"
	"cadenceflow/utils"
	"cadenceflow/worker"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	// Initialize logger; LogError and LogEvent write through the standard logger
	logger := utils.NewLogger(cfg.LogLevel, cfg.Environment)
	logrus.SetFormatter(logger.Formatter)
	logrus.SetLevel(logger.GetLevel())
	logrus.SetOutput(logger.Out)

	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.WithError(err).Warn("Sentry initialization failed, continuing without it")
	}
	defer sentry.Flush(2 * time.Second)

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := notify.NewHub(0)
	var publisher notify.Publisher = hub
	var limiterStorage fiber.Storage

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()

		relay := notify.NewRedisRelay(client, hub, logger.WithField("component", "relay"))
		go relay.Run(ctx)
		publisher = relay
		limiterStorage = middleware.NewRedisStorage(client)
	}

	eng, err := engine.New(engine.Config{
		DB:       config.DB,
		Location: cfg.Location,
		Notifier: publisher,
		Logger:   logger.WithField("component", "engine"),
	})
	if err != nil {
		logger.Fatalf("Failed to initialize engine: %v", err)
	}

	// Start digest worker
	if cfg.DigestEnabled {
		mailer := utils.NewMailer(utils.SMTPSettings{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
			FromName:  "Cadenceflow",
		})
		digestWorker := worker.NewDigestWorker(config.DB, eng, mailer, cfg.DigestInterval, logger.WithField("component", "digest"))
		go digestWorker.Start(ctx)
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "cadenceflow",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				utils.LogError("unhandled_error", err, map[string]interface{}{
					"path":   c.Path(),
					"method": c.Method(),
				})
			}
			return utils.ErrorResponse(c, code, "request_failed", err.Error())
		},
	})

	// Add CORS middleware
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = middleware.ParseOrigins(cfg.CORSAllowedOrigins)
	app.Use(middleware.CORS(corsConfig))

	// Setup routes
	routes.SetupRoutes(app, config.DB, eng, hub, routes.Options{
		JWTSecret:        cfg.JWTSecret,
		RateLimitActions: cfg.RateLimitActions,
		RateLimitStorage: limiterStorage,
		Logger:           logger,
		AccessLog:        cfg.Environment == "development",
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		logger.Info("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	// Start server
	logger.WithField("port", cfg.ServerPort).Info("Server starting")
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
	logger.Info("Server stopped")
}
