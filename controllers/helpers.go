package controllers

import (
	"strconv"
	"strings"
	"time"

	"prepxiq_go/config"
	"prepxiq_go/middleware"
	"prepxiq_go/services"
	"prepxiq_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// respondError renders err as {"error": <user message>} with the mapped status.
func respondError(c *fiber.Ctx, err error) error {
	status := utils.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"error":      err.Error(),
			"path":       c.Path(),
			"method":     c.Method(),
			"request_id": c.Locals("request_id"),
		}).Error("Request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": utils.UserMessage(err)})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// currentActor builds the service-level actor from the JWT claims.
func currentActor(c *fiber.Ctx) (services.Actor, error) {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return services.Actor{}, utils.ErrSession
	}
	return services.Actor{UserID: claims.UserID, Role: claims.Role}, nil
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, utils.ValidationError("invalid %s", name)
	}
	return uint(id), nil
}

func queryUint(c *fiber.Ctx, name string) (*uint, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, utils.ValidationError("%s must be a number", name)
	}
	id := uint(v)
	return &id, nil
}

// queryDate parses a YYYY-MM-DD query value in the institute timezone.
func queryDate(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := utils.ParseDateLocal(raw, config.AppConfig.Location())
	if err != nil {
		return nil, utils.ValidationError("%s must be a date in YYYY-MM-DD format", name)
	}
	return &t, nil
}
