// handlers/app.go
package handlers

import (
	"errors"
	"log"
	"strings"

	"calorie-challenge-engine/middleware"
	"calorie-challenge-engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// AppConfig carries the HTTP-facing settings.
type AppConfig struct {
	ServiceToken   string
	MealSyncToken  string
	AllowedOrigins []string
}

// NewApp builds the fiber app with every route wired to e.
func NewApp(cfg AppConfig, e *services.Engine) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: errorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: !containsWildcard(cfg.AllowedOrigins),
		MaxAge:           86400,
	}))

	SetupSystemRoutes(app, e)

	api := app.Group("/api/v1")

	// Collaborator ingest authenticates with its own token instead of the gateway's.
	internal := api.Group("/internal", middleware.ServiceTokenMiddleware(cfg.MealSyncToken))
	SetupInternalRoutes(internal, e.Meals)

	// 🔐 Everything else must come through the Gateway with a user context.
	secured := api.Group("/", middleware.GatewayAuthMiddleware(cfg.ServiceToken), middleware.UserContextMiddleware())
	SetupChallengeRoutes(secured, NewChallengeHandler(e))
	SetupProgressRoutes(secured, e.Leaderboard, e.Badges)

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	log.Printf("[API] ❌ Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

// containsWildcard reports whether origins allows any origin (empty means "*").
func containsWildcard(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
