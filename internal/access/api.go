package access

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptoboost/portal/internal/identity"
)

// RequireAPI is the JSON API form of Guard. Instead of redirecting it
// answers 503 while loading, 401 when signed out and 403 for a foreign role.
func RequireAPI(state StateFunc, roles ...identity.Role) fiber.Handler {
	rule := Protected(roles...)
	return func(c *fiber.Ctx) error {
		d := Decide(state(c), rule)
		switch {
		case d.Action == Wait:
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(RetryAfter))
			return fiber.NewError(fiber.StatusServiceUnavailable, "session is loading")
		case d.Action == Redirect && d.Location == LoginPath:
			return fiber.NewError(fiber.StatusUnauthorized, "not signed in")
		case d.Action == Redirect:
			return fiber.NewError(fiber.StatusForbidden, "forbidden")
		default:
			return c.Next()
		}
	}
}
