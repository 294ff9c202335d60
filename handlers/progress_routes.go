// handlers/progress_routes.go
package handlers

import (
	"calorie-challenge-engine/middleware"
	"calorie-challenge-engine/services"

	"github.com/gofiber/fiber/v2"
)

// SetupProgressRoutes mounts the leaderboard and badge routes.
func SetupProgressRoutes(r fiber.Router, leaderboard *services.LeaderboardService, badges *services.BadgeService) {
	r.Get("/leaderboard/:roomId", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", services.DefaultLeaderboardLimit)
		offset := c.QueryInt("offset", 0)
		page, err := leaderboard.Rank(c.UserContext(), c.Params("roomId"), middleware.UserID(c), limit, offset)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	})

	r.Get("/my-badges", func(c *fiber.Ctx) error {
		list, err := badges.ListForUser(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		response := make([]fiber.Map, 0, len(list))
		for _, b := range list {
			response = append(response, fiber.Map{
				"id":               b.ID,
				"code":             b.BadgeCode,
				"name":             b.Name,
				"description":      b.Description,
				"rarity":           b.Rarity,
				"participation_id": b.ParticipationID,
				"awarded_at":       b.AwardedAt,
			})
		}
		return c.JSON(response)
	})
}
