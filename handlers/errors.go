// handlers/errors.go
package handlers

import (
	"errors"
	"log"
	"time"

	"calorie-challenge-engine/services"
	"calorie-challenge-engine/utils"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an engine error kind to its HTTP status.
func StatusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindForbidden:
		return fiber.StatusForbidden
	case services.KindConflict:
		return fiber.StatusConflict
	case services.KindQuota:
		return fiber.StatusUnprocessableEntity
	case services.KindTransient:
		return fiber.StatusServiceUnavailable
	case services.KindInternal:
		return fiber.StatusInternalServerError
	}
	return fiber.StatusInternalServerError
}

// respondError writes {"error", "code"} for err.
func respondError(c *fiber.Ctx, err error) error {
	var ee *services.EngineError
	if !errors.As(err, &ee) {
		log.Printf("[API] ❌ %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
			"code":  services.CodeOf(err),
		})
	}
	status := StatusFor(ee.Kind)
	if status >= fiber.StatusInternalServerError {
		log.Printf("[API] ⚠️ %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": ee.Message,
		"code":  ee.Code,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  services.ErrInvalidInput.Code,
	})
}

// parseDate parses a YYYY-MM-DD value into an INVALID_INPUT engine error on failure.
func parseDate(raw string) (time.Time, error) {
	d, err := utils.ParseDate(raw)
	if err != nil {
		return time.Time{}, &services.EngineError{
			Code:    services.ErrInvalidInput.Code,
			Kind:    services.KindValidation,
			Message: "date must be YYYY-MM-DD",
			Err:     err,
		}
	}
	return d, nil
}
