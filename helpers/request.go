package helpers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ParamID reads a positive numeric route parameter.
func ParamID(c *fiber.Ctx, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
