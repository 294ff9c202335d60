// middleware/service_token.go
package middleware

import (
	"crypto/subtle"
	"log"

	"github.com/gofiber/fiber/v2"
)

// ServiceTokenMiddleware guards service-to-service routes (meal ingestion)
// with the X-Service-Token header.
func ServiceTokenMiddleware(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			log.Printf("🚫 [SERVICE_AUTH] No service token configured, rejecting %s", c.Path())
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "service ingestion is not configured",
			})
		}
		got := c.Get("X-Service-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			log.Printf("❌ [SERVICE_AUTH] Invalid X-Service-Token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid service token",
			})
		}
		return c.Next()
	}
}
