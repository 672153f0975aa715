package middlewares

import (
	"strings"

	"marketpay/helpers"
	"marketpay/services/settlement"

	"github.com/gofiber/fiber/v2"
)

const actorKey = "actor"

// Identity trusts the user id and role the gateway in front of us has already
// authenticated and puts them on the request as the acting user.
func Identity(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Get("X-User-ID"))
	if userID == "" {
		return helpers.JSONStatus(c, fiber.StatusUnauthorized, "USER_ID_REQUIRED", nil)
	}

	c.Locals(actorKey, settlement.Actor{
		UserID: userID,
		Admin:  strings.EqualFold(c.Get("X-User-Role"), "admin"),
	})
	return c.Next()
}

func AdminOnly(c *fiber.Ctx) error {
	if !ActorFrom(c).Admin {
		return helpers.JSONStatus(c, fiber.StatusForbidden, "ADMIN_ONLY", nil)
	}
	return c.Next()
}

func ActorFrom(c *fiber.Ctx) settlement.Actor {
	actor, _ := c.Locals(actorKey).(settlement.Actor)
	return actor
}
