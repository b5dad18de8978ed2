package routes

import (
	controller "cadenceflow/controllers"
	"cadenceflow/engine"
	"cadenceflow/middleware"
	"cadenceflow/notify"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Options struct {
	JWTSecret        string
	RateLimitActions int
	// RateLimitStorage keeps limiter counters; nil keeps them in memory.
	RateLimitStorage fiber.Storage
	Logger           *logrus.Logger
	// AccessLog enables fiber's request logger.
	AccessLog bool
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, eng *engine.Engine, hub *notify.Hub, opts Options) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	cadenceController := controller.NewCadenceController(db, eng, hub, log.WithField("component", "cadence"))

	handlers := []fiber.Handler{middleware.Protected(db, opts.JWTSecret)}
	if opts.AccessLog {
		handlers = append(handlers, logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	api := app.Group("/api/v1", handlers...)

	actionLimit := opts.RateLimitActions
	if actionLimit <= 0 {
		actionLimit = 120
	}
	stepActions := middleware.ActionRateLimiter(actionLimit, opts.RateLimitStorage)

	cadence := api.Group("/cadences")
	cadence.Post("/", cadenceController.CreateCadence)
	cadence.Get("/", cadenceController.ListCadences)
	cadence.Get("/:id", cadenceController.GetCadence)
	cadence.Post("/:id/steps/:stepId/deactivate", cadenceController.DeactivateStep)
	cadence.Post("/:id/enrollments", cadenceController.Enroll)
	cadence.Post("/:id/enrollments/bulk", cadenceController.BulkEnroll)
	cadence.Get("/:id/todo", cadenceController.GetCadenceToDo)
	cadence.Get("/:id/stream", cadenceController.StreamUpgrade, cadenceController.StreamCadence())

	enrollment := api.Group("/enrollments")
	enrollment.Get("/:id", cadenceController.GetEnrollment)
	enrollment.Delete("/:id", cadenceController.RemoveEnrollment)
	enrollment.Get("/:id/history", cadenceController.ListHistory)
	enrollment.Post("/:id/steps/:stepId/complete", stepActions, cadenceController.CompleteStep)
	enrollment.Post("/:id/steps/:stepId/skip", stepActions, cadenceController.SkipStep)
	enrollment.Post("/:id/steps/:stepId/postpone", stepActions, cadenceController.PostponeStep)

	api.Get("/todo", cadenceController.GetDueToDo)

	log.Info("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, eng *engine.Engine, hub *notify.Hub, opts Options) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAPIRoutes(app, db, eng, hub, opts)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "The requested resource was not found",
			"code":    "not_found",
		})
	})
}
