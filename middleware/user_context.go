// middleware/user_context.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserIDKey is the fiber.Locals key holding the caller's user id.
const UserIDKey = "user_id"

// UserContextMiddleware reads the identity the Gateway forwards in X-User-ID.
// Routes behind it always see a non-empty user id.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID missing on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}
		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// UserID returns the id set by UserContextMiddleware, or "".
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDKey).(string)
	return id
}
