// handlers/system.go
package handlers

import (
	"context"
	"log"
	"time"

	"calorie-challenge-engine/models"
	"calorie-challenge-engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupSystemRoutes mounts /healthz and /metrics. Both sit in front of the
// gateway check so probes and scrapers can reach them.
func SetupSystemRoutes(app *fiber.App, e *services.Engine) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if _, err := e.Store.ListRooms(ctx); err != nil {
			log.Printf("[Health] ❌ Store check failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  "store unreachable",
			})
		}
		return c.JSON(fiber.Map{"status": "ok", "rooms": len(e.Catalog.List())})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

// SetupInternalRoutes mounts the collaborator ingest route on r, which must
// already carry the service token middleware.
func SetupInternalRoutes(r fiber.Router, meals *services.MealService) {
	r.Post("/meals", func(c *fiber.Ctx) error {
		var body struct {
			Meals []models.MealLog `json:"meals"`
		}
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		created, err := meals.Ingest(c.UserContext(), body.Meals)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"received": len(body.Meals),
			"created":  created,
		})
	})
}
