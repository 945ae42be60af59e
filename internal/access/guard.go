package access

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptoboost/portal/internal/session"
)

// RetryAfter is the hint, in seconds, sent with the loading view.
const RetryAfter = 1

// StateFunc reads the session state of the request.
type StateFunc func(c *fiber.Ctx) session.State

// Guard enforces rule on a fiber route.
func Guard(state StateFunc, rule Rule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d := Decide(state(c), rule)
		switch d.Action {
		case Wait:
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(RetryAfter))
			c.Set(fiber.HeaderCacheControl, "no-store")
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"view": "loading"})
		case Redirect:
			return c.Redirect(d.Location, fiber.StatusFound)
		default:
			return c.Next()
		}
	}
}
