// handlers/challenge.go
package handlers

import (
	"strconv"
	"strings"
	"time"

	"calorie-challenge-engine/middleware"
	"calorie-challenge-engine/models"
	"calorie-challenge-engine/services"
	"calorie-challenge-engine/utils"

	"github.com/gofiber/fiber/v2"
)

// ChallengeHandler exposes the engine's participant-facing operations.
type ChallengeHandler struct {
	engine *services.Engine
}

func NewChallengeHandler(e *services.Engine) *ChallengeHandler {
	return &ChallengeHandler{engine: e}
}

// SetupChallengeRoutes mounts the catalog and challenge routes on r, which
// must already carry the user context middleware.
func SetupChallengeRoutes(r fiber.Router, h *ChallengeHandler) {
	// Catalog
	r.Get("/rooms", h.ListRooms)
	r.Get("/rooms/:roomId", h.GetRoom)
	r.Get("/recommended-calories", h.RecommendedCalories)

	// Enrollment
	r.Post("/challenges/join", h.Join)
	r.Post("/challenges/:id/leave", h.Leave)
	r.Post("/challenges/:id/extend", h.Extend)
	r.Get("/my-challenges", h.MyChallenges)
	r.Get("/stats/:id", h.Stats)

	// Cheat days
	r.Post("/challenges/:id/cheat/request", h.RequestCheat)
	r.Get("/challenges/:id/cheat/status", h.CheatStatus)

	// Daily verdicts
	r.Get("/challenges/:id/verdicts/:date/preview", h.PreviewVerdict)
	r.Post("/challenges/:id/verdicts/:date/evaluate", h.EvaluateVerdict)
}

func (h *ChallengeHandler) ListRooms(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"rooms": h.engine.Catalog.List()})
}

func (h *ChallengeHandler) GetRoom(c *fiber.Ctx) error {
	room, err := h.engine.Catalog.Get(c.Params("roomId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(room)
}

func (h *ChallengeHandler) RecommendedCalories(c *fiber.Ctx) error {
	var vals [3]float64
	for i, key := range []string{"height_cm", "weight_kg", "target_weight_kg"} {
		v, err := strconv.ParseFloat(c.Query(key), 64)
		if err != nil || v <= 0 {
			return badRequest(c, key+" must be a positive number")
		}
		vals[i] = v
	}
	age := c.QueryInt("age", services.DefaultAge)
	if age <= 0 || age > 120 {
		return badRequest(c, "age must be between 1 and 120")
	}
	return c.JSON(fiber.Map{
		"recommended_calories": services.RecommendedCalories(vals[0], vals[1], vals[2], age),
		"age":                  age,
	})
}

func (h *ChallengeHandler) Join(c *fiber.Ctx) error {
	var req services.JoinRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	p, err := h.engine.Enrollment.Join(c.UserContext(), middleware.UserID(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *ChallengeHandler) Leave(c *fiber.Ctx) error {
	p, err := h.engine.Enrollment.Leave(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

func (h *ChallengeHandler) Extend(c *fiber.Ctx) error {
	var body struct {
		ExtraDays int `json:"extra_days"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	p, err := h.engine.Enrollment.Extend(c.UserContext(), middleware.UserID(c), c.Params("id"), body.ExtraDays)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

func (h *ChallengeHandler) MyChallenges(c *fiber.Ctx) error {
	history := strings.EqualFold(c.Query("history"), "true")
	userID := middleware.UserID(c)
	ps, err := h.engine.Enrollment.MyChallenges(c.UserContext(), userID, history)
	if err != nil {
		return respondError(c, err)
	}

	out := make([]fiber.Map, 0, len(ps))
	for i := range ps {
		stats, err := h.engine.Enrollment.Stats(c.UserContext(), userID, ps[i].ID)
		if err != nil {
			return respondError(c, err)
		}
		out = append(out, fiber.Map{"participation": ps[i], "stats": stats})
	}
	return c.JSON(fiber.Map{"challenges": out})
}

func (h *ChallengeHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.engine.Enrollment.Stats(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

func (h *ChallengeHandler) RequestCheat(c *fiber.Ctx) error {
	var body struct {
		Date string `json:"date"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON body")
		}
	}
	userID := middleware.UserID(c)
	date, err := h.dateOrCurrent(c, userID, body.Date)
	if err != nil {
		return respondError(c, err)
	}
	res, err := h.engine.Cheats.RequestCheat(c.UserContext(), userID, c.Params("id"), date)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *ChallengeHandler) CheatStatus(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	date, err := h.dateOrCurrent(c, userID, c.Query("date"))
	if err != nil {
		return respondError(c, err)
	}
	st, err := h.engine.Cheats.Status(c.UserContext(), userID, c.Params("id"), date)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(st)
}

func (h *ChallengeHandler) PreviewVerdict(c *fiber.Ctx) error {
	date, err := parseDate(c.Params("date"))
	if err != nil {
		return respondError(c, err)
	}
	pv, err := h.engine.Adherence.Preview(c.UserContext(), middleware.UserID(c), c.Params("id"), date)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(pv)
}

func (h *ChallengeHandler) EvaluateVerdict(c *fiber.Ctx) error {
	date, err := parseDate(c.Params("date"))
	if err != nil {
		return respondError(c, err)
	}
	v, err := h.engine.Adherence.Evaluate(c.UserContext(), middleware.UserID(c), c.Params("id"), date)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(verdictResponse(v))
}

// dateOrCurrent parses raw, or falls back to the participation's current
// bucket date when raw is empty.
func (h *ChallengeHandler) dateOrCurrent(c *fiber.Ctx, userID, raw string) (time.Time, error) {
	if raw != "" {
		return parseDate(raw)
	}
	p, err := h.engine.Enrollment.Get(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return time.Time{}, err
	}
	return h.engine.Cheats.CurrentDate(p), nil
}

func verdictResponse(v *models.DailyVerdict) fiber.Map {
	return fiber.Map{
		"participation_id":      v.ParticipationID,
		"date":                  utils.FormatDate(v.Date),
		"verdict_type":          v.VerdictType,
		"total_calories_logged": v.TotalCaloriesLogged,
		"meal_count":            v.MealCount,
		"finalized_at":          v.FinalizedAt,
	}
}
