package api

import (
	"moneyrag/internal/api/handlers"
	"moneyrag/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func SetupRouter(
	sessionHandler *handlers.SessionHandler,
	cfg *config.ServerConfig,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		// Multi-file CSV uploads outgrow fiber's 4MB default.
		BodyLimit: 32 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	appLogger.Info("Registering API routes")

	// API routes
	api := app.Group("/api/v1")

	sessions := api.Group("/sessions")
	sessions.Post("", sessionHandler.CreateSession)
	sessions.Post("/:id/ingest", sessionHandler.Ingest)
	sessions.Post("/:id/chat", sessionHandler.Chat)
	sessions.Delete("/:id", sessionHandler.DeleteSession)

	return app
}
