package middlewares

import (
	"crypto/hmac"

	"marketpay/helpers"

	"github.com/gofiber/fiber/v2"
)

// WebhookSecret guards the bank notification endpoint with a shared secret. With no
// secret configured every call is refused.
func WebhookSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get("X-Webhook-Secret")
		if secret == "" || !hmac.Equal([]byte(got), []byte(secret)) {
			return helpers.JSONStatus(c, fiber.StatusUnauthorized, "INVALID_WEBHOOK_SECRET", nil)
		}
		return c.Next()
	}
}
